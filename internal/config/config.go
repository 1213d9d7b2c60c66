package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Version is set at build time via ldflags.
var Version = "dev"

// AppName is used for default directories and the env prefix.
const AppName = "igscrape"

// Config is the root configuration for igscrape.
type Config struct {
	Engine   EngineConfig   `mapstructure:"engine"   yaml:"engine"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"  yaml:"fetcher"`
	Cache    CacheConfig    `mapstructure:"cache"    yaml:"cache"`
	Browser  BrowserConfig  `mapstructure:"browser"  yaml:"browser"`
	Output   OutputConfig   `mapstructure:"output"   yaml:"output"`
	Extract  ExtractConfig  `mapstructure:"extract"  yaml:"extract"`
	Index    IndexConfig    `mapstructure:"index"    yaml:"index"`
	Mirror   MirrorConfig   `mapstructure:"mirror"   yaml:"mirror"`
	Notify   NotifyConfig   `mapstructure:"notify"   yaml:"notify"`
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"  yaml:"metrics"`
}

// EngineConfig controls how scrapers are run.
type EngineConfig struct {
	// Concurrency is the number of inspectors scraped in parallel.
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
	StatusFile  string `mapstructure:"status_file" yaml:"status_file"`

	// DefinitionsDir holds extra YAML scraper definitions loaded next to
	// the built-in ones.
	DefinitionsDir string `mapstructure:"definitions_dir" yaml:"definitions_dir"`
}

// FetcherConfig controls the shared HTTP client.
type FetcherConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"             yaml:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"         yaml:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"         yaml:"retry_delay"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	UserAgent         string        `mapstructure:"user_agent"          yaml:"user_agent"`
	MaxBodySize       int64         `mapstructure:"max_body_size"       yaml:"max_body_size"`
	MaxDownloadSize   int64         `mapstructure:"max_download_size"   yaml:"max_download_size"`
	RespectRobotsTxt  bool          `mapstructure:"respect_robots_txt"  yaml:"respect_robots_txt"`
	TLSInsecure       bool          `mapstructure:"tls_insecure"        yaml:"tls_insecure"`
}

// CacheConfig controls the on-disk page cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Dir     string        `mapstructure:"dir"     yaml:"dir"`
	TTL     time.Duration `mapstructure:"ttl"     yaml:"ttl"`
}

// BrowserConfig controls the headless browser used for script-rendered pages.
type BrowserConfig struct {
	Enabled  bool `mapstructure:"enabled"   yaml:"enabled"`
	Stealth  bool `mapstructure:"stealth"   yaml:"stealth"`
	MaxPages int  `mapstructure:"max_pages" yaml:"max_pages"`
}

// OutputConfig controls where reports are written.
type OutputConfig struct {
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
	JSONL   string `mapstructure:"jsonl"    yaml:"jsonl"`
}

// ExtractConfig controls document text extraction.
type ExtractConfig struct {
	Enabled   bool          `mapstructure:"enabled"   yaml:"enabled"`
	PDFToText string        `mapstructure:"pdftotext" yaml:"pdftotext"`
	PDFInfo   string        `mapstructure:"pdfinfo"   yaml:"pdfinfo"`
	Abiword   string        `mapstructure:"abiword"   yaml:"abiword"`
	Timeout   time.Duration `mapstructure:"timeout"   yaml:"timeout"`
}

// IndexConfig controls the cross-run report index.
type IndexConfig struct {
	SQLite          string `mapstructure:"sqlite"           yaml:"sqlite"`
	MongoURI        string `mapstructure:"mongo_uri"        yaml:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"   yaml:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection" yaml:"mongo_collection"`
}

// MirrorConfig controls copying the data tree to S3.
type MirrorConfig struct {
	Enabled   bool   `mapstructure:"enabled"    yaml:"enabled"`
	Bucket    string `mapstructure:"bucket"     yaml:"bucket"`
	Prefix    string `mapstructure:"prefix"     yaml:"prefix"`
	Region    string `mapstructure:"region"     yaml:"region"`
	Profile   string `mapstructure:"profile"    yaml:"profile"`
	PathStyle bool   `mapstructure:"path_style" yaml:"path_style"`
}

// NotifyConfig controls where scraper failures are reported.
type NotifyConfig struct {
	Console   bool            `mapstructure:"console"   yaml:"console"`
	MinLevel  string          `mapstructure:"min_level" yaml:"min_level"`
	Email     EmailConfig     `mapstructure:"email"     yaml:"email"`
	Slack     SlackConfig     `mapstructure:"slack"     yaml:"slack"`
	Dashboard DashboardConfig `mapstructure:"dashboard" yaml:"dashboard"`
}

// EmailConfig configures the SMTP notifier. It is enabled when Server and To are set.
type EmailConfig struct {
	Server   string   `mapstructure:"server"   yaml:"server"`
	Port     int      `mapstructure:"port"     yaml:"port"`
	Username string   `mapstructure:"username" yaml:"username"`
	Password string   `mapstructure:"password" yaml:"password"`
	From     string   `mapstructure:"from"     yaml:"from"`
	To       []string `mapstructure:"to"       yaml:"to"`
	Subject  string   `mapstructure:"subject"  yaml:"subject"`
}

// SlackConfig configures the Slack webhook notifier.
type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url"`
	Channel    string `mapstructure:"channel"     yaml:"channel"`
	Username   string `mapstructure:"username"    yaml:"username"`
}

// DashboardConfig configures the run-summary dashboard endpoint.
type DashboardConfig struct {
	URL   string `mapstructure:"url"   yaml:"url"`
	Token string `mapstructure:"token" yaml:"token"`
}

// ScheduleConfig controls the schedule command.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron" yaml:"cron"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Concurrency: 1,
			StatusFile:  filepath.Join("data", "status.json"),
		},
		Fetcher: FetcherConfig{
			Timeout:           60 * time.Second,
			MaxRetries:        3,
			RetryDelay:        2 * time.Second,
			RequestsPerMinute: 120,
			UserAgent:         "igscrape/" + Version + " (+https://github.com/IshaanNene/igscrape)",
			MaxBodySize:       10 * 1024 * 1024,  // 10MB
			MaxDownloadSize:   200 * 1024 * 1024, // 200MB
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     DefaultCacheDir(),
			TTL:     24 * time.Hour,
		},
		Browser: BrowserConfig{
			Enabled:  false,
			Stealth:  true,
			MaxPages: 2,
		},
		Output: OutputConfig{
			DataDir: "data",
		},
		Extract: ExtractConfig{
			Enabled:   true,
			PDFToText: "pdftotext",
			PDFInfo:   "pdfinfo",
			Abiword:   "abiword",
			Timeout:   2 * time.Minute,
		},
		Index: IndexConfig{
			SQLite:          filepath.Join("data", "index.db"),
			MongoDatabase:   AppName,
			MongoCollection: "reports",
		},
		Notify: NotifyConfig{
			Console:  true,
			MinLevel: "warn",
			Email: EmailConfig{
				Port:    587,
				Subject: "igscrape: scraper errors",
			},
			Slack: SlackConfig{
				Username: AppName,
			},
		},
		Schedule: ScheduleConfig{
			Cron: "0 6 * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// DefaultCacheDir is where fetched pages are cached unless configured otherwise.
func DefaultCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName, "pages")
}

// DefaultConfigDir is searched for igscrape.yaml.
func DefaultConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}
