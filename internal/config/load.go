package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. FINANCE_API_BASE_URL.
const EnvPrefix = "FINANCE"

// LoadConfig reads path (if it exists) and applies defaults and environment
// overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Accept the web app's variable name for the backend URL as well.
	if err := v.BindEnv("api.base_url", EnvPrefix+"_API_BASE_URL", "NEXT_PUBLIC_API_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// SetDefaults registers the default value of every known key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8000/api/v1")
	v.SetDefault("api.secondary_url", "http://localhost:3000/api")
	v.SetDefault("api.auth_token", "")
	v.SetDefault("api.timeout", "10s")
	v.SetDefault("api.health_timeout", "5s")
	v.SetDefault("api.retry_attempts", 3)
	v.SetDefault("api.retry_delay", "1s")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.sweep_interval", "60s")
	v.SetDefault("cache.persist", false)

	v.SetDefault("sync.offline_enabled", true)
	v.SetDefault("sync.interval", "30s")
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.probe_interval", "15s")

	v.SetDefault("state_storage.type", "sqlite")
	v.SetDefault("state_storage.file_path", "finance-datalayer.db")
	v.SetDefault("state_storage.port", 3306)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
