package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and CLI flags.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(AppName)
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath(DefaultConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so env vars can override
// keys that never appear in a config file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("engine.concurrency", cfg.Engine.Concurrency)
	v.SetDefault("engine.status_file", cfg.Engine.StatusFile)
	v.SetDefault("engine.definitions_dir", cfg.Engine.DefinitionsDir)

	v.SetDefault("fetcher.timeout", cfg.Fetcher.Timeout)
	v.SetDefault("fetcher.max_retries", cfg.Fetcher.MaxRetries)
	v.SetDefault("fetcher.retry_delay", cfg.Fetcher.RetryDelay)
	v.SetDefault("fetcher.requests_per_minute", cfg.Fetcher.RequestsPerMinute)
	v.SetDefault("fetcher.user_agent", cfg.Fetcher.UserAgent)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.max_download_size", cfg.Fetcher.MaxDownloadSize)
	v.SetDefault("fetcher.respect_robots_txt", cfg.Fetcher.RespectRobotsTxt)
	v.SetDefault("fetcher.tls_insecure", cfg.Fetcher.TLSInsecure)

	v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	v.SetDefault("cache.dir", cfg.Cache.Dir)
	v.SetDefault("cache.ttl", cfg.Cache.TTL)

	v.SetDefault("browser.enabled", cfg.Browser.Enabled)
	v.SetDefault("browser.stealth", cfg.Browser.Stealth)
	v.SetDefault("browser.max_pages", cfg.Browser.MaxPages)

	v.SetDefault("output.data_dir", cfg.Output.DataDir)
	v.SetDefault("output.jsonl", cfg.Output.JSONL)

	v.SetDefault("extract.enabled", cfg.Extract.Enabled)
	v.SetDefault("extract.pdftotext", cfg.Extract.PDFToText)
	v.SetDefault("extract.pdfinfo", cfg.Extract.PDFInfo)
	v.SetDefault("extract.abiword", cfg.Extract.Abiword)
	v.SetDefault("extract.timeout", cfg.Extract.Timeout)

	v.SetDefault("index.sqlite", cfg.Index.SQLite)
	v.SetDefault("index.mongo_uri", cfg.Index.MongoURI)
	v.SetDefault("index.mongo_database", cfg.Index.MongoDatabase)
	v.SetDefault("index.mongo_collection", cfg.Index.MongoCollection)

	v.SetDefault("mirror.enabled", cfg.Mirror.Enabled)
	v.SetDefault("mirror.bucket", cfg.Mirror.Bucket)
	v.SetDefault("mirror.prefix", cfg.Mirror.Prefix)
	v.SetDefault("mirror.region", cfg.Mirror.Region)
	v.SetDefault("mirror.profile", cfg.Mirror.Profile)
	v.SetDefault("mirror.path_style", cfg.Mirror.PathStyle)

	v.SetDefault("notify.console", cfg.Notify.Console)
	v.SetDefault("notify.min_level", cfg.Notify.MinLevel)
	v.SetDefault("notify.email.server", cfg.Notify.Email.Server)
	v.SetDefault("notify.email.port", cfg.Notify.Email.Port)
	v.SetDefault("notify.email.username", cfg.Notify.Email.Username)
	v.SetDefault("notify.email.password", cfg.Notify.Email.Password)
	v.SetDefault("notify.email.from", cfg.Notify.Email.From)
	v.SetDefault("notify.email.to", cfg.Notify.Email.To)
	v.SetDefault("notify.email.subject", cfg.Notify.Email.Subject)
	v.SetDefault("notify.slack.webhook_url", cfg.Notify.Slack.WebhookURL)
	v.SetDefault("notify.slack.channel", cfg.Notify.Slack.Channel)
	v.SetDefault("notify.slack.username", cfg.Notify.Slack.Username)
	v.SetDefault("notify.dashboard.url", cfg.Notify.Dashboard.URL)
	v.SetDefault("notify.dashboard.token", cfg.Notify.Dashboard.Token)

	v.SetDefault("schedule.cron", cfg.Schedule.Cron)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
