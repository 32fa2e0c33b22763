// Package config provides configuration management for shopcore.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the engine and its dashboard.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	RateLimiter  RateLimiterConfig  `mapstructure:"rate_limiter"`
	Store        StoreConfig        `mapstructure:"store"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Fetch        FetchConfig        `mapstructure:"fetch"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Health       HealthConfig       `mapstructure:"health"`
	Optimization OptimizationConfig `mapstructure:"optimization"`
	ChangeLog    ChangeLogConfig    `mapstructure:"changelog"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig holds dashboard HTTP server configuration.
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// StoreConfig holds record store configuration.
type StoreConfig struct {
	CatalogPath  string        `mapstructure:"catalog_path"`
	ReadCache    bool          `mapstructure:"read_cache"`
	ReadCacheTTL time.Duration `mapstructure:"read_cache_ttl"`
	LatencyMin   time.Duration `mapstructure:"latency_min"`
	LatencyMax   time.Duration `mapstructure:"latency_max"`
	FaultRate    float64       `mapstructure:"fault_rate"`
}

// CacheConfig holds TTL cache configuration.
type CacheConfig struct {
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`
	MaxEntries      int           `mapstructure:"max_entries"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// FetchConfig holds request de-duplication configuration.
type FetchConfig struct {
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	Deduplicate bool          `mapstructure:"deduplicate"`
	BatchLimit  int           `mapstructure:"batch_limit"`
}

// MetricsConfig holds metrics collector configuration.
type MetricsConfig struct {
	Window      time.Duration `mapstructure:"window"`
	Capacity    int           `mapstructure:"capacity"`
	MemoryProbe string        `mapstructure:"memory_probe"`
}

// HealthConfig holds health checker configuration.
type HealthConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// OptimizationConfig holds optimization engine configuration.
type OptimizationConfig struct {
	SettleInterval  time.Duration `mapstructure:"settle_interval"`
	AutoEnabled     bool          `mapstructure:"auto_enabled"`
	AutoInterval    time.Duration `mapstructure:"auto_interval"`
	IndexThreshold  int           `mapstructure:"index_threshold"`
	CacheMaxEntries int           `mapstructure:"cache_max_entries"`
}

// ChangeLogConfig holds change capture configuration.
type ChangeLogConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/shopcore/")
	}

	v.SetEnvPrefix("SHOPCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing file falls back to defaults and env
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration Load produces with no file or env.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("rate_limiter.enabled", true)
	v.SetDefault("rate_limiter.requests_per_second", 100.0)
	v.SetDefault("rate_limiter.burst_size", 20)

	v.SetDefault("store.catalog_path", "")
	v.SetDefault("store.read_cache", false)
	v.SetDefault("store.read_cache_ttl", "30s")
	v.SetDefault("store.latency_min", "0s")
	v.SetDefault("store.latency_max", "0s")
	v.SetDefault("store.fault_rate", 0.0)

	v.SetDefault("cache.default_ttl", "5m")
	v.SetDefault("cache.max_entries", 0)
	v.SetDefault("cache.cleanup_interval", "1m")

	v.SetDefault("fetch.default_ttl", "5m")
	v.SetDefault("fetch.deduplicate", true)
	v.SetDefault("fetch.batch_limit", 4)

	v.SetDefault("metrics.window", "5m")
	v.SetDefault("metrics.capacity", 10000)
	v.SetDefault("metrics.memory_probe", "runtime")

	v.SetDefault("health.interval", "10s")

	v.SetDefault("optimization.settle_interval", "1s")
	v.SetDefault("optimization.auto_enabled", false)
	v.SetDefault("optimization.auto_interval", "5m")
	v.SetDefault("optimization.index_threshold", 10)
	v.SetDefault("optimization.cache_max_entries", 1000)

	v.SetDefault("changelog.capacity", 10000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.RateLimiter.Enabled {
		if c.RateLimiter.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate limiter requests per second must be positive")
		}
		if c.RateLimiter.BurstSize <= 0 {
			return fmt.Errorf("rate limiter burst size must be positive")
		}
	}

	if c.Store.LatencyMin < 0 || c.Store.LatencyMax < c.Store.LatencyMin {
		return fmt.Errorf("invalid simulated latency range: %s..%s", c.Store.LatencyMin, c.Store.LatencyMax)
	}
	if c.Store.FaultRate < 0 || c.Store.FaultRate > 1 {
		return fmt.Errorf("fault rate must be within [0, 1]: %v", c.Store.FaultRate)
	}

	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache max entries must not be negative")
	}
	if c.Fetch.BatchLimit < 0 {
		return fmt.Errorf("fetch batch limit must not be negative")
	}

	if c.Metrics.Window <= 0 {
		return fmt.Errorf("metrics window must be positive")
	}
	if c.Metrics.Capacity <= 0 {
		return fmt.Errorf("metrics capacity must be positive")
	}
	switch c.Metrics.MemoryProbe {
	case "runtime", "system":
	default:
		return fmt.Errorf("unknown memory probe: %q", c.Metrics.MemoryProbe)
	}

	if c.Optimization.AutoEnabled && c.Optimization.AutoInterval <= 0 {
		return fmt.Errorf("auto optimization interval must be positive")
	}
	if c.Optimization.SettleInterval < 0 {
		return fmt.Errorf("settle interval must not be negative")
	}

	if c.ChangeLog.Capacity <= 0 {
		return fmt.Errorf("change log capacity must be positive")
	}

	return nil
}
