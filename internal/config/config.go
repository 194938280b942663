package config

import (
	"time"
)

type Config struct {
	API          APIConfig     `mapstructure:"api"`
	Cache        CacheConfig   `mapstructure:"cache"`
	Sync         SyncConfig    `mapstructure:"sync"`
	StateStorage StateStorage  `mapstructure:"state_storage"`
	Server       ServerConfig  `mapstructure:"server"`
	Logging      LoggingConfig `mapstructure:"logging"`
}

// APIConfig describes the primary backend and the secondary local API tier.
type APIConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	SecondaryURL  string `mapstructure:"secondary_url"`
	AuthToken     string `mapstructure:"auth_token"`
	Timeout       string `mapstructure:"timeout"`
	HealthTimeout string `mapstructure:"health_timeout"`
	RetryAttempts int    `mapstructure:"retry_attempts"`
	RetryDelay    string `mapstructure:"retry_delay"`
}

func (a APIConfig) GetTimeout() time.Duration {
	return parseDuration(a.Timeout, 10*time.Second)
}

func (a APIConfig) GetHealthTimeout() time.Duration {
	return parseDuration(a.HealthTimeout, 5*time.Second)
}

func (a APIConfig) GetRetryDelay() time.Duration {
	return parseDuration(a.RetryDelay, time.Second)
}

type CacheConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	TTL           string `mapstructure:"ttl"`
	MaxEntries    int    `mapstructure:"max_entries"`
	SweepInterval string `mapstructure:"sweep_interval"`
	Persist       bool   `mapstructure:"persist"`
}

func (c CacheConfig) GetTTL() time.Duration {
	return parseDuration(c.TTL, 5*time.Minute)
}

func (c CacheConfig) GetSweepInterval() time.Duration {
	return parseDuration(c.SweepInterval, time.Minute)
}

type SyncConfig struct {
	OfflineEnabled bool   `mapstructure:"offline_enabled"`
	Interval       string `mapstructure:"interval"`
	MaxRetries     int    `mapstructure:"max_retries"`
	ProbeInterval  string `mapstructure:"probe_interval"`
}

func (s SyncConfig) GetInterval() time.Duration {
	return parseDuration(s.Interval, 30*time.Second)
}

func (s SyncConfig) GetProbeInterval() time.Duration {
	return parseDuration(s.ProbeInterval, 15*time.Second)
}

type StateStorage struct {
	Type     string `mapstructure:"type"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	FilePath string `mapstructure:"file_path"` // For SQLite
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	Host         string   `mapstructure:"host"`
	AuthToken    string   `mapstructure:"auth_token"`
	ReadTimeout  string   `mapstructure:"read_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout"`
	CorsOrigins  []string `mapstructure:"cors_origins"`
}

func (s ServerConfig) GetReadTimeout() time.Duration {
	return parseDuration(s.ReadTimeout, 15*time.Second)
}

func (s ServerConfig) GetWriteTimeout() time.Duration {
	return parseDuration(s.WriteTimeout, 15*time.Second)
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
