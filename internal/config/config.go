// Package config loads and validates collector configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Catalog CatalogConfig `mapstructure:"catalog"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CatalogConfig points the collector at the upstream catalog API.
type CatalogConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Country string `mapstructure:"country"`
}

// CrawlerConfig governs scheduler fan-out and retry behavior.
type CrawlerConfig struct {
	GenreWorkers         int `mapstructure:"genre_workers"`
	DetailConcurrency    int `mapstructure:"detail_concurrency"`
	DetailTimeoutSeconds int `mapstructure:"detail_timeout_seconds"`
	RetryPasses          int `mapstructure:"retry_passes"`
	GenreRetryAttempts   int `mapstructure:"genre_retry_attempts"`
	GenreBackoffBaseMs   int `mapstructure:"genre_backoff_base_ms"`
	GenreBackoffMaxMs    int `mapstructure:"genre_backoff_max_ms"`
}

// HTTPConfig configures the request layer.
type HTTPConfig struct {
	TimeoutSeconds   int      `mapstructure:"timeout_seconds"`
	RetryWaitSeconds int      `mapstructure:"retry_wait_seconds"`
	AdapterHosts     []string `mapstructure:"adapter_hosts"`
}

// FeedConfig configures feed retrieval.
type FeedConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	DataDir        string `mapstructure:"data_dir"`
}

// StorageConfig selects the artifact store backend.
type StorageConfig struct {
	Provider      string `mapstructure:"provider"`
	BaseDir       string `mapstructure:"base_dir"`
	TagsFile      string `mapstructure:"tags_file"`
	ExclusionFile string `mapstructure:"exclusion_file"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
}

// ServerConfig controls the ops HTTP endpoint exposed during a run.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COLLECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("catalog.base_url", "https://itunes.apple.com")
	v.SetDefault("catalog.country", "tw")
	v.SetDefault("crawler.genre_workers", 4)
	v.SetDefault("crawler.detail_concurrency", 10)
	v.SetDefault("crawler.detail_timeout_seconds", 60)
	v.SetDefault("crawler.retry_passes", 3)
	v.SetDefault("crawler.genre_retry_attempts", 5)
	v.SetDefault("crawler.genre_backoff_base_ms", 2000)
	v.SetDefault("crawler.genre_backoff_max_ms", 60000)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.retry_wait_seconds", 30)
	v.SetDefault("http.adapter_hosts", []string{"ic975.com"})
	v.SetDefault("feed.timeout_seconds", 10)
	v.SetDefault("feed.data_dir", "data/feeds")
	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.base_dir", "data/collections")
	v.SetDefault("storage.tags_file", "data/itunes_tags.json")
	v.SetDefault("storage.exclusion_file", "data/excluded.txt")
	v.SetDefault("db.provider", "noop")
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url must be set")
	}
	if c.Crawler.GenreWorkers <= 0 {
		return fmt.Errorf("crawler.genre_workers must be > 0")
	}
	if c.Crawler.DetailConcurrency <= 0 {
		return fmt.Errorf("crawler.detail_concurrency must be > 0")
	}
	if c.Crawler.RetryPasses < 0 {
		return fmt.Errorf("crawler.retry_passes must be >= 0")
	}
	if c.Crawler.GenreRetryAttempts <= 0 {
		return fmt.Errorf("crawler.genre_retry_attempts must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Feed.TimeoutSeconds <= 0 {
		return fmt.Errorf("feed.timeout_seconds must be > 0")
	}
	if c.DB.Provider == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when db.provider is postgres")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// DetailTimeout returns the per-lookup wall clock limit.
func (c Config) DetailTimeout() time.Duration {
	return time.Duration(c.Crawler.DetailTimeoutSeconds) * time.Second
}

// RequestTimeout returns the request layer timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RetryWait returns the fixed wait before the single in-call retry.
func (c Config) RetryWait() time.Duration {
	return time.Duration(c.HTTP.RetryWaitSeconds) * time.Second
}

// FeedTimeout returns the per-feed wall clock limit.
func (c Config) FeedTimeout() time.Duration {
	return time.Duration(c.Feed.TimeoutSeconds) * time.Second
}

// GenreBackoffBase returns the initial genre re-attempt delay.
func (c Config) GenreBackoffBase() time.Duration {
	return time.Duration(c.Crawler.GenreBackoffBaseMs) * time.Millisecond
}

// GenreBackoffMax returns the genre re-attempt delay ceiling.
func (c Config) GenreBackoffMax() time.Duration {
	return time.Duration(c.Crawler.GenreBackoffMaxMs) * time.Millisecond
}
