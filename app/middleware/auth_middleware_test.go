package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amirphl/Yamata-WABA/app/services"
	"github.com/amirphl/Yamata-WABA/config"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthApp(t *testing.T) (*fiber.App, services.TokenService) {
	t.Helper()
	tokens, err := services.NewTokenService(config.JWTConfig{
		SecretKey:      "test-secret-key-for-jwt-signing-32-chars",
		AccessTokenTTL: 15 * time.Minute,
		Issuer:         "test-issuer",
		Audience:       "test-audience",
	})
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/me", NewAuthMiddleware(tokens).Authenticate(), func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"business_id": c.Locals(LocalBusinessID),
			"request_id":  c.Locals(LocalRequestID),
		})
	})
	return app, tokens
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error.Code
}

func TestAuthenticate(t *testing.T) {
	app, tokens := newAuthApp(t)

	t.Run("valid token", func(t *testing.T) {
		token, err := tokens.GenerateToken(42, "ops@example.com")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-Request-ID", "req-1")
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body struct {
			BusinessID uint   `json:"business_id"`
			RequestID  string `json:"request_id"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, uint(42), body.BusinessID)
		assert.Equal(t, "req-1", body.RequestID)
	})

	cases := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", "MISSING_AUTHORIZATION_HEADER"},
		{"wrong scheme", "Basic abc", "INVALID_AUTHORIZATION_FORMAT"},
		{"garbage token", "Bearer not.a.jwt", "TOKEN_INVALID"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, tc.code, errorCode(t, resp))
		})
	}
}
