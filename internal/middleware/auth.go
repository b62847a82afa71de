// Package middleware provides authentication, logging, rate limiting and
// tracing middleware for the application.
package middleware

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Token verification errors.
var (
	ErrMissingToken   = errors.New("authorization required")
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrInvalidIssuer  = errors.New("invalid token issuer")
	ErrInvalidSubject = errors.New("invalid subject claim")
)

// TokenVerifier validates HS256 tokens issued by the external auth provider
// and yields the user id carried in the "sub" claim.
type TokenVerifier struct {
	Secret   []byte
	Issuer   string
	Audience string
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(c *fiber.Ctx) string {
	parts := strings.Split(c.Get("Authorization"), " ")
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	return ""
}

// Identity is what a verified token says about its bearer. Username is empty
// when the provider sent neither "preferred_username" nor "username".
type Identity struct {
	UserID   uint
	Username string
}

// Verify parses tokenString and returns the authenticated user id.
func (v TokenVerifier) Verify(tokenString string) (uint, error) {
	id, err := v.Authenticate(tokenString)
	return id.UserID, err
}

// Authenticate parses tokenString and returns the bearer's identity.
func (v TokenVerifier) Authenticate(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return v.Secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenInvalidIssuer) || errors.Is(err, jwt.ErrTokenInvalidAudience) {
			return Identity{}, ErrInvalidIssuer
		}
		return Identity{}, ErrInvalidToken
	}
	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, ErrInvalidSubject
	}
	userID, err := strconv.ParseUint(sub, 10, 32)
	if err != nil || userID == 0 {
		return Identity{}, ErrInvalidSubject
	}

	id := Identity{UserID: uint(userID)}
	for _, key := range []string{"preferred_username", "username"} {
		if name, ok := claims[key].(string); ok && strings.TrimSpace(name) != "" {
			id.Username = strings.TrimSpace(name)
			break
		}
	}
	return id, nil
}
