package server

import (
	"context"
	"errors"
	"strings"

	"agora/internal/middleware"
	"agora/internal/models"

	"github.com/gofiber/fiber/v2"
)

// AuthRequired returns the authentication middleware. Tokens come from the
// Authorization header; websocket upgrades may pass ?token= instead since
// browsers cannot set headers on them.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := middleware.BearerToken(c)
		if tokenString == "" && strings.HasPrefix(c.Path(), "/api/ws") {
			tokenString = c.Query("token")
		}

		identity, err := s.verifier.Authenticate(tokenString)
		if err != nil {
			msg := "Invalid or expired token"
			switch {
			case errors.Is(err, middleware.ErrMissingToken):
				msg = "Authorization required"
			case errors.Is(err, middleware.ErrInvalidIssuer):
				msg = "Invalid token issuer"
			case errors.Is(err, middleware.ErrInvalidSubject):
				msg = "Invalid subject claim"
			}
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError(msg))
		}
		userID := identity.UserID

		if err := s.provisionUser(c.UserContext(), identity); err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		}

		c.Locals("userID", userID)
		// Sync to UserContext for logging and downstream services
		ctx := context.WithValue(c.UserContext(), middleware.UserIDKey, userID)
		c.SetUserContext(ctx)

		return c.Next()
	}
}

// provisionUser makes sure the token's user has a row before any handler
// writes posts or replies that reference it.
func (s *Server) provisionUser(ctx context.Context, id middleware.Identity) error {
	if _, ok := s.provisioned.Load(id.UserID); ok {
		return nil
	}
	if err := s.userRepo.EnsureExists(ctx, id.UserID, id.Username); err != nil {
		return err
	}
	s.provisioned.Store(id.UserID, struct{}{})
	return nil
}

// AdminRequired returns middleware that rejects non-admin users with 403.
// Must be placed after AuthRequired so that userID is available in locals.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := currentUserID(c)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		admin, err := s.isAdminByUserID(c.UserContext(), userID)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		}
		if !admin {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewUnauthorizedError("Admin access required"))
		}

		return c.Next()
	}
}

// currentUserID reads the user id set by AuthRequired.
func currentUserID(c *fiber.Ctx) (uint, bool) {
	id, ok := c.Locals("userID").(uint)
	return id, ok && id != 0
}

func (s *Server) isAdminByUserID(ctx context.Context, userID uint) (bool, error) {
	return s.userRepo.IsAdmin(ctx, userID)
}
