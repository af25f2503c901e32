package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Crawler.DetailConcurrency != 10 {
		t.Errorf("detail_concurrency = %d, want 10", cfg.Crawler.DetailConcurrency)
	}
	if cfg.Crawler.RetryPasses != 3 {
		t.Errorf("retry_passes = %d, want 3", cfg.Crawler.RetryPasses)
	}
	if cfg.HTTP.RetryWaitSeconds != 30 {
		t.Errorf("retry_wait_seconds = %d, want 30", cfg.HTTP.RetryWaitSeconds)
	}
	if cfg.Catalog.Country != "tw" {
		t.Errorf("country = %q, want tw", cfg.Catalog.Country)
	}
	if got := cfg.FeedTimeout(); got != 10*time.Second {
		t.Errorf("feed timeout = %s, want 10s", got)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
catalog:
  base_url: https://catalog.example.com
  country: us
crawler:
  genre_workers: 8
  detail_concurrency: 4
  retry_passes: 1
  genre_retry_attempts: 2
http:
  timeout_seconds: 5
  retry_wait_seconds: 1
  adapter_hosts: ["stubborn.example.com"]
feed:
  timeout_seconds: 3
  data_dir: /tmp/feeds
db:
  provider: noop
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(strings.TrimSpace(configYAML)), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Catalog.BaseURL != "https://catalog.example.com" {
		t.Errorf("base_url = %q", cfg.Catalog.BaseURL)
	}
	if cfg.Crawler.GenreWorkers != 8 {
		t.Errorf("genre_workers = %d, want 8", cfg.Crawler.GenreWorkers)
	}
	if len(cfg.HTTP.AdapterHosts) != 1 || cfg.HTTP.AdapterHosts[0] != "stubborn.example.com" {
		t.Errorf("adapter_hosts = %v", cfg.HTTP.AdapterHosts)
	}
	if cfg.Logging.Development {
		t.Error("logging.development should be false")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero genre workers", func(c *Config) { c.Crawler.GenreWorkers = 0 }},
		{"zero detail concurrency", func(c *Config) { c.Crawler.DetailConcurrency = 0 }},
		{"negative retry passes", func(c *Config) { c.Crawler.RetryPasses = -1 }},
		{"zero http timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }},
		{"postgres without dsn", func(c *Config) { c.DB.Provider = "postgres"; c.DB.DSN = "" }},
		{"empty base url", func(c *Config) { c.Catalog.BaseURL = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatal(err)
			}
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
