package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *ProductionConfig {
	cfg := fromEnv()
	cfg.Database.Password = "secret"
	cfg.JWT.SecretKey = "0123456789abcdef0123456789abcdef"
	cfg.Queue.WorkerID = "worker-1"
	return cfg
}

func TestValidateProductionConfig_Defaults(t *testing.T) {
	require.NoError(t, ValidateProductionConfig(validConfig()))
}

func TestValidateProductionConfig_AggregatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Password = ""
	cfg.JWT.SecretKey = "short"
	cfg.Dispatch.MaxPerMinute = 0
	cfg.Queue.BackoffMax = time.Second

	err := ValidateProductionConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PASSWORD is required")
	assert.Contains(t, err.Error(), "JWT_SECRET_KEY must be at least 32 characters long")
	assert.Contains(t, err.Error(), "DISPATCH_MAX_PER_MINUTE must be positive")
	assert.Contains(t, err.Error(), "QUEUE_BACKOFF_BASE")
}

func TestValidateProductionConfig_RealProviderNeedsCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.WhatsApp.ProviderDomain = "graph.facebook.com"

	err := ValidateProductionConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WHATSAPP_PHONE_NUMBER_ID")
	assert.Contains(t, err.Error(), "WHATSAPP_ACCESS_TOKEN")
	assert.Contains(t, err.Error(), "WHATSAPP_APP_SECRET")

	cfg.WhatsApp.PhoneNumberID = "1234567890"
	cfg.WhatsApp.AccessToken = "EAAG-token"
	cfg.WhatsApp.AppSecret = "app-secret"
	assert.NoError(t, ValidateProductionConfig(cfg))
}

func TestFromEnv_ReadsOverrides(t *testing.T) {
	t.Setenv("DISPATCH_MAX_BATCH_SIZE", "25")
	t.Setenv("QUEUE_BACKOFF_BASE", "10s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("AMQP_ENABLED", "true")

	cfg := fromEnv()
	assert.Equal(t, 25, cfg.Dispatch.MaxBatchSize)
	assert.Equal(t, 10*time.Second, cfg.Queue.BackoffBase)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Security.AllowedOrigins)
	assert.True(t, cfg.AMQP.Enabled)
}

func TestLoadEnvFile_DoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("WABA_TEST_FROM_FILE=file\nWABA_TEST_PRESET=file\n"), 0o600))

	t.Setenv("WABA_TEST_PRESET", "env")
	t.Setenv("WABA_TEST_FROM_FILE", "")
	os.Unsetenv("WABA_TEST_FROM_FILE")

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "file", os.Getenv("WABA_TEST_FROM_FILE"))
	assert.Equal(t, "env", os.Getenv("WABA_TEST_PRESET"))

	require.NoError(t, loadEnvFile(filepath.Join(dir, "missing.env")))
}
