package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig          `toml:"credentials"`
	Database    DatabaseConfig             `toml:"database"`
	Server      ServerConfig               `toml:"server"`
	Log         LogConfig                  `toml:"log"`
	Sync        SyncConfig                 `toml:"sync"`
	RateLimits  map[string]RateLimitConfig `toml:"rate_limits"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	YouTube YouTubeConfig `toml:"youtube"`
}

// SpotifyConfig contains Spotify API credentials.
//
// Tokens are obtained out of band; the client only refreshes them.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
	BaseURL      string `toml:"base_url"`
	TokenURL     string `toml:"token_url"`
}

// YouTubeConfig contains YouTube Music proxy settings.
type YouTubeConfig struct {
	ProxyURL    string `toml:"proxy_url"`
	HeadersPath string `toml:"headers_path"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig controls log level and the optional rotating log file.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// SyncConfig holds matching thresholds and executor limits.
type SyncConfig struct {
	MatchThreshold float64     `toml:"match_threshold"`
	AmbiguityBand  float64     `toml:"ambiguity_band"`
	CandidateTopK  int         `toml:"candidate_top_k"`
	SearchQueries  int         `toml:"search_queries"`
	SearchLimit    int         `toml:"search_limit"`
	Workers        int         `toml:"workers"`
	MaxOperations  int         `toml:"max_operations"`
	TailWindow     int         `toml:"tail_window"`
	Retry          RetryConfig `toml:"retry"`
}

// RetryConfig is the TOML form of [RetryPolicy].
type RetryConfig struct {
	BaseDelayMs int     `toml:"base_delay_ms"`
	Factor      float64 `toml:"factor"`
	MaxAttempts int     `toml:"max_attempts"`
}

// Policy converts the configured values to a [RetryPolicy].
func (r RetryConfig) Policy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   time.Duration(r.BaseDelayMs) * time.Millisecond,
		Factor:      r.Factor,
	}
}

// RateLimitConfig is the token bucket and concurrency ceiling for one platform.
type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	MaxInFlight       int     `toml:"max_in_flight"`
}

// LoadConfig reads a TOML configuration file from path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// Validate checks the sync and rate limit sections.
func (c *Config) Validate() error {
	s := c.Sync
	switch {
	case s.MatchThreshold <= 0 || s.MatchThreshold > 1:
		return fmt.Errorf("%w: sync.match_threshold must be in (0, 1], got %v", ErrInvalidConfig, s.MatchThreshold)
	case s.AmbiguityBand < 0 || s.AmbiguityBand >= 1:
		return fmt.Errorf("%w: sync.ambiguity_band must be in [0, 1), got %v", ErrInvalidConfig, s.AmbiguityBand)
	case s.Workers < 1:
		return fmt.Errorf("%w: sync.workers must be at least 1", ErrInvalidConfig)
	case s.MaxOperations < 0:
		return fmt.Errorf("%w: sync.max_operations must not be negative", ErrInvalidConfig)
	case s.Retry.MaxAttempts < 1:
		return fmt.Errorf("%w: sync.retry.max_attempts must be at least 1", ErrInvalidConfig)
	}

	for name, rl := range c.RateLimits {
		if rl.RequestsPerSecond <= 0 || rl.Burst < 1 || rl.MaxInFlight < 1 {
			return fmt.Errorf("%w: rate_limits.%s needs positive requests_per_second, burst and max_in_flight", ErrInvalidConfig, name)
		}
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
