// Package config defines all configuration for the estimator server.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via POLYGRAPH_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Graph     GraphConfig     `mapstructure:"graph"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Store     StoreConfig     `mapstructure:"store"`
	Governor  GovernorConfig  `mapstructure:"governor"`
	API       APIConfig       `mapstructure:"api"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// GraphConfig tunes the pricegraph core's dust threshold and hop bound.
// The fee ratio itself is a compile-time constant (§4.2) and is never
// configurable here.
type GraphConfig struct {
	DustThreshold uint64 `mapstructure:"dust_threshold"`
	DefaultMaxHops int   `mapstructure:"default_max_hops"`
}

// FeedConfig controls polling of the external ingester that serves the
// encoded orderbook snapshot (§6.1/§6.4).
type FeedConfig struct {
	URL              string        `mapstructure:"url"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RateLimitPerSec  float64       `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst   int           `mapstructure:"rate_limit_burst"`
}

// StoreConfig sets where the last-known-good orderbook snapshot is cached
// on disk, for cold-start and ingester-outage recovery (§6.4).
type StoreConfig struct {
	CacheFile string `mapstructure:"cache_file"`
	GzipWrite bool   `mapstructure:"gzip_write"`
}

// GovernorConfig bounds how long a single query may run and how the
// rolling query-load tracker reacts to sustained slow queries.
type GovernorConfig struct {
	QueryTimeout      time.Duration `mapstructure:"query_timeout"`
	LoadWindow        time.Duration `mapstructure:"load_window"`
	BackpressureRatio float64       `mapstructure:"backpressure_ratio"`
}

// APIConfig controls the HTTP/WebSocket estimator-server surface (§6.3).
type APIConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Any field may be overridden via a POLYGRAPH_<SECTION>_<FIELD> env var,
// e.g. POLYGRAPH_API_ADDR or POLYGRAPH_FEED_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("POLYGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("graph.dust_threshold", 1)
	v.SetDefault("graph.default_max_hops", 0)
	v.SetDefault("feed.poll_interval", 5*time.Second)
	v.SetDefault("feed.request_timeout", 10*time.Second)
	v.SetDefault("feed.max_retries", 3)
	v.SetDefault("feed.rate_limit_per_sec", 2.0)
	v.SetDefault("feed.rate_limit_burst", 4)
	v.SetDefault("store.cache_file", "data/orderbook.cache")
	v.SetDefault("store.gzip_write", true)
	v.SetDefault("governor.query_timeout", 2*time.Second)
	v.SetDefault("governor.load_window", 30*time.Second)
	v.SetDefault("governor.backpressure_ratio", 0.5)
	v.SetDefault("api.addr", ":8080")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required")
	}
	if c.Feed.PollInterval <= 0 {
		return fmt.Errorf("feed.poll_interval must be > 0")
	}
	if c.Store.CacheFile == "" {
		return fmt.Errorf("store.cache_file is required")
	}
	if c.API.Addr == "" {
		return fmt.Errorf("api.addr is required")
	}
	if c.Governor.QueryTimeout <= 0 {
		return fmt.Errorf("governor.query_timeout must be > 0")
	}
	return nil
}
