package services

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/amirphl/Yamata-WABA/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		SecretKey:      "test-secret-key-for-jwt-signing-32-chars",
		AccessTokenTTL: 15 * time.Minute,
		Issuer:         "test-issuer",
		Audience:       "test-audience",
	}
}

func createTestTokenService(t *testing.T) TokenService {
	t.Helper()
	service, err := NewTokenService(testJWTConfig())
	require.NoError(t, err)
	return service
}

func TestNewTokenService(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*config.JWTConfig)
		expectError bool
	}{
		{
			name:        "valid symmetric key configuration",
			mutate:      func(*config.JWTConfig) {},
			expectError: false,
		},
		{
			name:        "missing secret key",
			mutate:      func(c *config.JWTConfig) { c.SecretKey = "" },
			expectError: true,
		},
		{
			name: "empty issuer and audience",
			mutate: func(c *config.JWTConfig) {
				c.Issuer = ""
				c.Audience = ""
			},
			expectError: false,
		},
		{
			name:        "rsa without keys",
			mutate:      func(c *config.JWTConfig) { c.UseRSAKeys = true },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testJWTConfig()
			tt.mutate(&cfg)
			service, err := NewTokenService(cfg)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, service)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, service)
			}
		})
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	service := createTestTokenService(t)

	token, err := service.GenerateToken(42, "operator@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.BusinessID)
	assert.Equal(t, "access", claims.TokenType)
	assert.Equal(t, "operator@example.com", claims.Subject)
	assert.Equal(t, "test-issuer", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

func TestGenerateToken_RequiresBusiness(t *testing.T) {
	service := createTestTokenService(t)

	_, err := service.GenerateToken(0, "nobody")
	assert.Error(t, err)
}

func TestValidateToken_Rejections(t *testing.T) {
	service := createTestTokenService(t)

	other, err := NewTokenService(config.JWTConfig{
		SecretKey:      "a-completely-different-secret-key-value",
		AccessTokenTTL: time.Minute,
		Issuer:         "test-issuer",
		Audience:       "test-audience",
	})
	require.NoError(t, err)
	foreign, err := other.GenerateToken(7, "")
	require.NoError(t, err)

	wrongAudience, err := NewTokenService(config.JWTConfig{
		SecretKey:      "test-secret-key-for-jwt-signing-32-chars",
		AccessTokenTTL: time.Minute,
		Issuer:         "test-issuer",
		Audience:       "someone-else",
	})
	require.NoError(t, err)
	misaddressed, err := wrongAudience.GenerateToken(7, "")
	require.NoError(t, err)

	noBusiness := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"token_type": "access",
		"iss":        "test-issuer",
		"aud":        "test-audience",
		"exp":        time.Now().Add(time.Minute).Unix(),
	})
	noBusinessToken, err := noBusiness.SignedString([]byte("test-secret-key-for-jwt-signing-32-chars"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"garbage", "not.a.jwt"},
		{"foreign signature", foreign},
		{"wrong audience", misaddressed},
		{"missing business id", noBusinessToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.ValidateToken(tt.token)
			assert.ErrorIs(t, err, ErrTokenInvalid)
			assert.Nil(t, claims)
		})
	}
}

func TestValidateToken_Expired(t *testing.T) {
	cfg := testJWTConfig()
	cfg.AccessTokenTTL = -time.Minute
	service, err := NewTokenService(cfg)
	require.NoError(t, err)

	token, err := service.GenerateToken(1, "")
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenService_RSA(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	cfg := testJWTConfig()
	cfg.UseRSAKeys = true
	cfg.PrivateKey = string(privPEM)
	cfg.PublicKey = string(pubPEM)

	service, err := NewTokenService(cfg)
	require.NoError(t, err)

	token, err := service.GenerateToken(9, "")
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(9), claims.BusinessID)

	// an HS256 token must not pass an RS256 verifier
	hs := createTestTokenService(t)
	hsToken, err := hs.GenerateToken(9, "")
	require.NoError(t, err)
	_, err = service.ValidateToken(hsToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
