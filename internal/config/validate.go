package config

import (
	"fmt"
	"net/url"

	"github.com/robfig/cron/v3"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Engine.Concurrency < 1 {
		return fmt.Errorf("engine.concurrency must be >= 1, got %d", cfg.Engine.Concurrency)
	}
	if cfg.Engine.Concurrency > 64 {
		return fmt.Errorf("engine.concurrency must be <= 64, got %d", cfg.Engine.Concurrency)
	}

	if cfg.Fetcher.Timeout <= 0 {
		return fmt.Errorf("fetcher.timeout must be > 0")
	}
	if cfg.Fetcher.MaxRetries < 0 {
		return fmt.Errorf("fetcher.max_retries must be >= 0, got %d", cfg.Fetcher.MaxRetries)
	}
	if cfg.Fetcher.RetryDelay < 0 {
		return fmt.Errorf("fetcher.retry_delay must be >= 0")
	}
	if cfg.Fetcher.RequestsPerMinute < 0 {
		return fmt.Errorf("fetcher.requests_per_minute must be >= 0, got %d", cfg.Fetcher.RequestsPerMinute)
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxDownloadSize <= 0 {
		return fmt.Errorf("fetcher.max_download_size must be > 0")
	}

	if cfg.Cache.Enabled {
		if cfg.Cache.Dir == "" {
			return fmt.Errorf("cache.dir is required when the cache is enabled")
		}
		if cfg.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be > 0")
		}
	}

	if cfg.Browser.Enabled && cfg.Browser.MaxPages < 1 {
		return fmt.Errorf("browser.max_pages must be >= 1, got %d", cfg.Browser.MaxPages)
	}

	if cfg.Output.DataDir == "" {
		return fmt.Errorf("output.data_dir is required")
	}

	if cfg.Extract.Enabled && cfg.Extract.Timeout <= 0 {
		return fmt.Errorf("extract.timeout must be > 0")
	}

	if cfg.Index.MongoURI != "" {
		if cfg.Index.MongoDatabase == "" || cfg.Index.MongoCollection == "" {
			return fmt.Errorf("index.mongo_database and index.mongo_collection are required with index.mongo_uri")
		}
	}

	if cfg.Mirror.Enabled && cfg.Mirror.Bucket == "" {
		return fmt.Errorf("mirror.bucket is required when the mirror is enabled")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Notify.MinLevel] {
		return fmt.Errorf("notify.min_level must be debug/info/warn/error, got %q", cfg.Notify.MinLevel)
	}
	if cfg.Notify.Email.Server != "" {
		if len(cfg.Notify.Email.To) == 0 {
			return fmt.Errorf("notify.email.to is required with notify.email.server")
		}
		if cfg.Notify.Email.Port < 1 || cfg.Notify.Email.Port > 65535 {
			return fmt.Errorf("notify.email.port must be 1-65535, got %d", cfg.Notify.Email.Port)
		}
	}
	if cfg.Notify.Slack.WebhookURL != "" {
		if err := ValidateURL(cfg.Notify.Slack.WebhookURL); err != nil {
			return fmt.Errorf("notify.slack.webhook_url: %w", err)
		}
	}
	if cfg.Notify.Dashboard.URL != "" {
		if err := ValidateURL(cfg.Notify.Dashboard.URL); err != nil {
			return fmt.Errorf("notify.dashboard.url: %w", err)
		}
	}

	if cfg.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(cfg.Schedule.Cron); err != nil {
			return fmt.Errorf("schedule.cron %q: %w", cfg.Schedule.Cron, err)
		}
	}

	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "text", "json", "pretty":
	default:
		return fmt.Errorf("logging.format must be 'text', 'json' or 'pretty', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks that a URL is an absolute http(s) URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
