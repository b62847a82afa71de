package middleware

import (
	"context"
	"log/slog"
	"os"
	"time"

	"agora/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// Logger is the global structured logger instance used throughout the application.
var Logger *slog.Logger

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
	TraceIDKey   contextKey = "trace_id"
)

// ctxHandler is a slog.Handler that adds context values to the log record.
type ctxHandler struct {
	slog.Handler
}

// Handle adds context values to the record before passing it to the underlying handler.
func (h *ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	if rid, ok := ctx.Value(RequestIDKey).(string); ok {
		r.AddAttrs(slog.String("request_id", rid))
	}
	if uid, ok := ctx.Value(UserIDKey).(uint); ok {
		r.AddAttrs(slog.Any("user_id", uid))
	}
	if tid, ok := ctx.Value(TraceIDKey).(string); ok {
		r.AddAttrs(slog.String("trace_id", tid))
	}
	if cid := observability.ExtractCorrelationID(ctx); cid != "" {
		r.AddAttrs(slog.String("correlation_id", cid))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ctxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ctxHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ctxHandler) WithGroup(name string) slog.Handler {
	return &ctxHandler{h.Handler.WithGroup(name)}
}

func init() {
	ConfigureLogger(observability.LogOptions{
		Level: os.Getenv("LOG_LEVEL"),
		JSON:  os.Getenv("APP_ENV") == "production",
	})
}

// ConfigureLogger rebuilds the global logger. JSON output is used in
// production and pretty text elsewhere; a rolling file is added when set.
func ConfigureLogger(opts observability.LogOptions) *slog.Logger {
	Logger = slog.New(&ctxHandler{observability.NewHandler(opts)})
	observability.SetGlobalLogger(Logger)
	slog.SetDefault(Logger)
	return Logger
}

// ContextMiddleware copies the request and trace ids from Fiber locals into
// the request context so the context-aware logger sees them in services and
// repositories. The user id is added later by the auth guard.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			ctx = context.WithValue(ctx, RequestIDKey, rid)
			ctx = observability.WithCorrelationID(ctx, rid)
		}
		if tid, ok := c.Locals("traceID").(string); ok && tid != "" {
			ctx = context.WithValue(ctx, TraceIDKey, tid)
		}

		c.SetUserContext(ctx)
		return c.Next()
	}
}

// quietPaths are health endpoints logged at debug so they do not drown out
// real traffic.
var quietPaths = map[string]bool{
	"/health/live":  true,
	"/health/ready": true,
	"/metrics":      true,
}

// requestLevel picks the log level for a finished request.
func requestLevel(path string, status int, err error) slog.Level {
	switch {
	case err != nil || status >= fiber.StatusInternalServerError:
		return slog.LevelError
	case status >= fiber.StatusBadRequest:
		return slog.LevelWarn
	case quietPaths[path]:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// StructuredLogger logs one line per request with the matched route, status
// and latency. Client errors log at warn and server errors at error.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
			route = r.Path
		}

		fields := []any{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("route", route),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
			slog.Int("bytes", len(c.Response().Body())),
		}
		if ua := c.Get(fiber.HeaderUserAgent); ua != "" {
			fields = append(fields, slog.String("user_agent", ua))
		}
		if err != nil {
			fields = append(fields, slog.String("error", err.Error()))
		}

		// UserContext so the ctxHandler picks up request, user and trace ids.
		Logger.Log(c.UserContext(), requestLevel(c.Path(), status, err), "request", fields...)
		return err
	}
}
