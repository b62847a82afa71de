package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

func signToken(t *testing.T, claims jwt.MapClaims, method jwt.SigningMethod, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestTokenVerifier_Verify(t *testing.T) {
	t.Parallel()

	verifier := TokenVerifier{Secret: []byte(testSecret), Issuer: "agora-auth", Audience: "agora-client"}
	valid := func(sub string, exp time.Duration) jwt.MapClaims {
		return jwt.MapClaims{
			"sub": sub,
			"iss": "agora-auth",
			"aud": "agora-client",
			"exp": time.Now().Add(exp).Unix(),
		}
	}

	tests := []struct {
		name    string
		token   string
		wantID  uint
		wantErr error
	}{
		{
			name:   "Happy Path",
			token:  signToken(t, valid("123", time.Hour), jwt.SigningMethodHS256, testSecret),
			wantID: 123,
		},
		{
			name:    "Missing Token",
			token:   "",
			wantErr: ErrMissingToken,
		},
		{
			name:    "Malformed Token",
			token:   "malformed.token.here",
			wantErr: ErrInvalidToken,
		},
		{
			name:    "Expired Token",
			token:   signToken(t, valid("123", -time.Hour), jwt.SigningMethodHS256, testSecret),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "Wrong Secret",
			token:   signToken(t, valid("123", time.Hour), jwt.SigningMethodHS256, "another-secret-another-secret-another"),
			wantErr: ErrInvalidToken,
		},
		{
			name: "Wrong Issuer",
			token: signToken(t, jwt.MapClaims{
				"sub": "123", "iss": "someone-else", "aud": "agora-client",
				"exp": time.Now().Add(time.Hour).Unix(),
			}, jwt.SigningMethodHS256, testSecret),
			wantErr: ErrInvalidIssuer,
		},
		{
			name:    "Non-numeric Subject",
			token:   signToken(t, valid("alice", time.Hour), jwt.SigningMethodHS256, testSecret),
			wantErr: ErrInvalidSubject,
		},
		{
			name:    "Zero Subject",
			token:   signToken(t, valid("0", time.Hour), jwt.SigningMethodHS256, testSecret),
			wantErr: ErrInvalidSubject,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := verifier.Verify(tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, id)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestBearerToken(t *testing.T) {
	app := fiber.New()
	app.Get("/token", func(c *fiber.Ctx) error {
		return c.SendString(BearerToken(c))
	})

	cases := map[string]string{
		"Bearer abc.def":     "abc.def",
		"Basic dXNlcjpwYXNz": "",
		"Bearer":             "",
		"":                   "",
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/token", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		buf := make([]byte, 64)
		n, _ := resp.Body.Read(buf)
		_ = resp.Body.Close()
		assert.Equal(t, want, string(buf[:n]), "header %q", header)
	}
}

func TestTokenVerifier_NoIssuerConfigured(t *testing.T) {
	t.Parallel()

	verifier := TokenVerifier{Secret: []byte(testSecret)}
	token := signToken(t, jwt.MapClaims{
		"sub": strconv.Itoa(7),
		"exp": time.Now().Add(time.Hour).Unix(),
	}, jwt.SigningMethodHS256, testSecret)

	id, err := verifier.Verify(token)
	assert.NoError(t, err)
	assert.Equal(t, uint(7), id)
}

func TestTokenVerifier_Authenticate_Username(t *testing.T) {
	t.Parallel()

	verifier := TokenVerifier{Secret: []byte(testSecret)}
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   string
	}{
		{"preferred_username wins", jwt.MapClaims{"preferred_username": "maria", "username": "m"}, "maria"},
		{"username fallback", jwt.MapClaims{"username": " joao "}, "joao"},
		{"blank ignored", jwt.MapClaims{"preferred_username": "  "}, ""},
		{"absent", jwt.MapClaims{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.claims["sub"] = "11"
			tt.claims["exp"] = time.Now().Add(time.Hour).Unix()
			token := signToken(t, tt.claims, jwt.SigningMethodHS256, testSecret)

			id, err := verifier.Authenticate(token)
			require.NoError(t, err)
			assert.Equal(t, uint(11), id.UserID)
			assert.Equal(t, tt.want, id.Username)
		})
	}
}
