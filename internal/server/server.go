// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"sync"
	"time"

	"agora/internal/bootstrap"
	"agora/internal/config"
	"agora/internal/lifecycle"
	"agora/internal/middleware"
	"agora/internal/models"
	"agora/internal/notifications"
	"agora/internal/repository"
	"agora/internal/service"
	"agora/internal/sweep"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds dependencies for the HTTP server
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	verifier       middleware.TokenVerifier

	// provisioned remembers user ids already known to have a users row.
	provisioned sync.Map

	userRepo  repository.UserRepository
	postRepo  repository.PostRepository
	replyRepo repository.ReplyRepository
	runRepo   repository.CleanupRunRepository

	notifier *notifications.Notifier
	hub      *notifications.Hub

	postService   *service.PostService
	ratingService *service.RatingService
	replyService  *service.ReplyService
	sweepService  *service.SweepService
	adminService  *service.AdminService

	shutdownCtx context.Context
	shutdownFn  context.CancelFunc
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	// Redis is optional; without it caching, locks and pub/sub fall back to
	// single-instance behaviour.
	db, redisClient, err := bootstrap.InitRuntime(cfg, bootstrap.Options{EnsureAdmin: true})
	if err != nil {
		return nil, err
	}

	return NewServerWithDeps(cfg, db, redisClient)
}

// NewServerWithDeps wires repositories and services around an existing
// database and an optional Redis client.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	replyRepo := repository.NewReplyRepository(db)
	runRepo := repository.NewCleanupRunRepository(db)

	notifier := notifications.NewNotifier(redisClient)
	policy := lifecycle.NewPolicy(cfg.ExpiryWindow)

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("agora-api"),
		verifier: middleware.TokenVerifier{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		},
		userRepo:  userRepo,
		postRepo:  postRepo,
		replyRepo: replyRepo,
		runRepo:   runRepo,
		notifier:  notifier,
		hub:       notifications.NewHub(),
	}

	s.postService = service.NewPostService(postRepo, s.isAdminByUserID, notifier, service.PostServiceOptions{
		Policy:        policy,
		ImageMaxBytes: cfg.ImageMaxBytes,
	})
	s.ratingService = service.NewRatingService(postRepo, notifier, nil)
	s.replyService = service.NewReplyService(replyRepo, postRepo, notifier, cfg.MaxReplyIndent)
	s.sweepService = service.NewSweepService(postRepo, runRepo,
		sweep.New(policy, cfg.LegacyImageEstimateKB), notifier,
		service.SweepServiceOptions{
			BatchSize: cfg.SweepBatchSize,
			Interval:  cfg.SweepInterval,
		})
	s.adminService = service.NewAdminService(postRepo, userRepo, policy, notifier, nil)

	return s, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	// Context middleware must run after requestid so the id reaches the logger
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())

	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so error responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Public post routes
	publicPosts := api.Group("/posts")
	publicPosts.Get("/", s.ListPosts)
	publicPosts.Get("/:id/replies", s.GetReplies)
	publicPosts.Get("/:id", s.GetPost)

	api.Get("/users/:id/replies", s.GetUserReplies)

	// Protected routes
	protected := api.Group("", s.AuthRequired())

	posts := protected.Group("/posts")
	posts.Post("/", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "create_post"), s.CreatePost)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	posts.Post("/:id/replies", middleware.RateLimit(
		s.redis, 10, time.Minute, "create_reply"), s.CreateReply)
	posts.Post("/:id/ratings", middleware.RateLimitWithPolicy(
		s.redis, 20, time.Minute, middleware.FailLocal, "rate_post"), s.SubmitRating)
	posts.Post("/:id/attend", s.Attend)
	posts.Delete("/:id/attend", s.Unattend)
	posts.Put("/:id", s.UpdatePost)
	posts.Delete("/:id", s.DeletePost)

	// Live feed
	protected.Get("/ws", s.LiveFeedHandler())

	// Admin routes
	admin := protected.Group("/admin", s.AdminRequired())
	adminPosts := admin.Group("/posts")
	adminPosts.Post("/expired/delete", s.DeleteExpiredPosts)
	adminPosts.Post("/:id/pin", s.PinPost)
	adminPosts.Delete("/:id/pin", s.UnpinPost)

	adminSweep := admin.Group("/sweep")
	adminSweep.Post("/", s.RunSweep)
	adminSweep.Get("/stats", s.GetSweepStats)
	adminSweep.Get("/runs", s.GetSweepRuns)
}

// NewApp builds the Fiber app with middleware and routes attached.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "Agora API",
		BodyLimit: bodyLimit(s.config.ImageMaxBytes),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "path", c.Path(), "error", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})

	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// bodyLimit leaves room for a base64 image of maxImage bytes plus the rest
// of the post.
func bodyLimit(maxImage int64) int {
	const base = 4 * 1024 * 1024
	if maxImage <= 0 {
		return base
	}
	return int(maxImage)*4/3 + 64*1024
}

// LivenessCheck handles liveness check requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness check requests. Redis is optional, so
// only a configured but unreachable Redis fails the check.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"connections": s.hub.ConnectionCount(),
		"time":        time.Now(),
	})
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.NewApp()

	go func() {
		if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
			middleware.Logger.Error("failed to start hub wiring", "hub", s.hub.Name(), "error", err)
		}
	}()

	if s.config.SweepEnabled {
		s.sweepService.StartBackgroundWorker(s.shutdownCtx)
	}

	middleware.Logger.Info("Server starting", "port", s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop wiring and the sweep worker
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", "error", err)
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down hub", "hub", s.hub.Name(), "error", err)
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", "error", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", "error", rerr)
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
