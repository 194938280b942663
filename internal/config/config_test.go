package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000/api/v1", cfg.API.BaseURL)
	assert.Equal(t, 3, cfg.API.RetryAttempts)
	assert.Equal(t, time.Second, cfg.API.GetRetryDelay())
	assert.Equal(t, 10*time.Second, cfg.API.GetTimeout())
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 1000, cfg.Cache.MaxEntries)
	assert.Equal(t, time.Minute, cfg.Cache.GetSweepInterval())
	assert.Equal(t, 30*time.Second, cfg.Sync.GetInterval())
	assert.Equal(t, "sqlite", cfg.StateStorage.Type)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api:
  base_url: http://backend.internal/api
  retry_attempts: 5
cache:
  ttl: 90s
  max_entries: 10
state_storage:
  type: memory
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("FINANCE_SYNC_MAX_RETRIES", "7")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://backend.internal/api", cfg.API.BaseURL)
	assert.Equal(t, 5, cfg.API.RetryAttempts)
	assert.Equal(t, 90*time.Second, cfg.Cache.GetTTL())
	assert.Equal(t, 10, cfg.Cache.MaxEntries)
	assert.Equal(t, "memory", cfg.StateStorage.Type)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 7, cfg.Sync.MaxRetries)
}

func TestLoadConfig_PublicAPIURLEnv(t *testing.T) {
	t.Setenv("NEXT_PUBLIC_API_URL", "https://finance.example.com/api")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "https://finance.example.com/api", cfg.API.BaseURL)
}

func TestDurationFallbacks(t *testing.T) {
	assert.Equal(t, 5*time.Minute, CacheConfig{TTL: "nonsense"}.GetTTL())
	assert.Equal(t, 5*time.Second, APIConfig{HealthTimeout: "-1s"}.GetHealthTimeout())
	assert.Equal(t, 2*time.Second, ServerConfig{ReadTimeout: "2s"}.GetReadTimeout())
}
