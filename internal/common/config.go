package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Tor         TorConfig       `toml:"tor"`
	DarkWeb     DarkWebConfig   `toml:"darkweb"`
	Discovery   DiscoveryConfig `toml:"discovery"`
	Crawler     CrawlerConfig   `toml:"crawler"`
	Scanner     ScannerConfig   `toml:"scanner"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Queue       QueueConfig     `toml:"queue"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// TorConfig contains the SOCKS proxy settings used for all onion traffic
type TorConfig struct {
	ProxyHost string        `toml:"proxy_host" validate:"required"`
	ProxyPort int           `toml:"proxy_port" validate:"gt=0,lte=65535"`
	ProxyType string        `toml:"proxy_type"` // only "socks5" is supported
	Timeout   time.Duration `toml:"timeout"`
	Required  bool          `toml:"required"` // fail startup when the Tor health check fails
}

// ProxyAddr returns the host:port dial address for the SOCKS proxy
func (t *TorConfig) ProxyAddr() string {
	return fmt.Sprintf("%s:%d", t.ProxyHost, t.ProxyPort)
}

// DarkWebConfig contains tuning for the dark-web intelligence pipeline
type DarkWebConfig struct {
	BatchSize         int           `toml:"batch_size"`          // URL database batch insert size
	DefaultCrawlLimit int           `toml:"default_crawl_limit"` // max_urls default
	MaxWorkers        int           `toml:"max_workers"`         // crawl worker pool size
	CrawlTimeout      time.Duration `toml:"crawl_timeout"`       // whole-crawl envelope
	DiscoveryTimeout  time.Duration `toml:"discovery_timeout"`   // whole-discovery envelope
	YaraRulesDir      string        `toml:"yara_rules_dir"`      // directory holding categories.yar / keywords.yar
	URLDatabaseFile   string        `toml:"url_database_file"`   // relative to storage path
}

// DiscoveryConfig contains onion search engine settings
type DiscoveryConfig struct {
	Engines  []string      `toml:"engines"`   // subset of: ahmia, tor66, onionland
	Timeout  time.Duration `toml:"timeout"`   // per-engine timeout
	MaxPages int           `toml:"max_pages"` // hard cap on result pages per engine
}

// CrawlerConfig contains per-request crawl settings
type CrawlerConfig struct {
	UserAgent         string        `toml:"user_agent"`          // fixed UA; empty enables rotation
	UserAgentRotation bool          `toml:"user_agent_rotation"` // random UA per request
	RequestTimeout    time.Duration `toml:"request_timeout"`     // per-URL fetch timeout
	PageTimeout       time.Duration `toml:"page_timeout"`        // per-URL crawl + analysis bound
	MaxDepth          int           `toml:"max_depth"`           // outbound link recursion depth
}

// ScannerConfig contains timeouts shared by the surface-web collectors
type ScannerConfig struct {
	DNSTimeout   time.Duration `toml:"dns_timeout"`   // per-lookup DNS timeout
	HTTPTimeout  time.Duration `toml:"http_timeout"`  // subdomain/endpoint probe timeout
	RootTimeout  time.Duration `toml:"root_timeout"`  // infra audit root fetch timeout
	Concurrency  int           `toml:"concurrency"`   // parallel probes per phase
	DKIMSweep    bool          `toml:"dkim_sweep"`    // sweep common DKIM selectors
	DeepEmail    bool          `toml:"deep_email"`    // BIMI/MTA-STS/DANE/PTR/DNSSEC passes
	BypassChecks bool          `toml:"bypass_checks"` // DMARC bypass analyzer
}

// SchedulerConfig controls periodic re-scans of known targets
type SchedulerConfig struct {
	Enabled  bool     `toml:"enabled"`
	Schedule string   `toml:"schedule"` // cron format
	Targets  []string `toml:"targets"`  // capability:target pairs, e.g. "email_security:example.com"
}

// WebSocketConfig contains configuration for the observer stream bridge
type WebSocketConfig struct {
	AllowedEvents     []string          `toml:"allowed_events"`     // whitelist; empty = allow all
	ThrottleIntervals map[string]string `toml:"throttle_intervals"` // event type -> duration string
}

// QueueConfig contains job queue limits
type QueueConfig struct {
	MaxPending int `toml:"max_pending"` // queued job capacity before QUEUE_FULL
	Workers    int `toml:"workers"`     // orchestrator worker pool size
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Tor: TorConfig{
			ProxyHost: "127.0.0.1",
			ProxyPort: 9050,
			ProxyType: "socks5",
			Timeout:   30 * time.Second,
			Required:  false,
		},
		DarkWeb: DarkWebConfig{
			BatchSize:         100,
			DefaultCrawlLimit: 50,
			MaxWorkers:        8,
			CrawlTimeout:      600 * time.Second,
			DiscoveryTimeout:  180 * time.Second,
			YaraRulesDir:      "./data/yara",
			URLDatabaseFile:   "urls",
		},
		Discovery: DiscoveryConfig{
			Engines:  []string{"ahmia", "tor66", "onionland"},
			Timeout:  60 * time.Second,
			MaxPages: 30,
		},
		Crawler: CrawlerConfig{
			UserAgentRotation: true,
			RequestTimeout:    30 * time.Second,
			PageTimeout:       120 * time.Second,
			MaxDepth:          1,
		},
		Scanner: ScannerConfig{
			DNSTimeout:   2 * time.Second,
			HTTPTimeout:  5 * time.Second,
			RootTimeout:  30 * time.Second,
			Concurrency:  10,
			DKIMSweep:    true,
			DeepEmail:    true,
			BypassChecks: false,
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Schedule: "0 0 */6 * * *", // every 6 hours
		},
		Queue: QueueConfig{
			MaxPending: 1000,
			Workers:    4,
		},
	}
}

// LoadConfig loads configuration from a TOML file, applies environment
// overrides, and validates the result. A missing file is not an error -
// defaults plus environment apply.
func LoadConfig(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks structural constraints on the configuration
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Tor.ProxyType != "" && c.Tor.ProxyType != "socks5" {
		return fmt.Errorf("unsupported tor proxy type: %s", c.Tor.ProxyType)
	}
	return nil
}

// applyEnvOverrides layers environment variables over the file configuration.
// Environment always wins so that container deployments can run without a file.
func applyEnvOverrides(c *Config) {
	setString(&c.Tor.ProxyHost, "TOR_PROXY_HOST")
	setInt(&c.Tor.ProxyPort, "TOR_PROXY_PORT")
	setString(&c.Tor.ProxyType, "TOR_PROXY_TYPE")
	setDuration(&c.Tor.Timeout, "TOR_TIMEOUT")
	setBool(&c.Tor.Required, "TOR_REQUIRED")

	setInt(&c.DarkWeb.BatchSize, "DARKWEB_BATCH_SIZE")
	setInt(&c.DarkWeb.DefaultCrawlLimit, "DARKWEB_DEFAULT_CRAWL_LIMIT")
	setInt(&c.DarkWeb.MaxWorkers, "DARKWEB_MAX_WORKERS")
	setDuration(&c.DarkWeb.CrawlTimeout, "DARKWEB_CRAWL_TIMEOUT")
	setDuration(&c.DarkWeb.DiscoveryTimeout, "DARKWEB_DISCOVERY_TIMEOUT")

	setString(&c.Crawler.UserAgent, "CRAWLER_USER_AGENT")
	setDuration(&c.Crawler.RequestTimeout, "CRAWLER_REQUEST_TIMEOUT")
	setInt(&c.Crawler.MaxDepth, "CRAWLER_MAX_DEPTH")

	if v := os.Getenv("ONIONSEARCH_ENGINES"); v != "" {
		engines := strings.Split(v, ",")
		for i := range engines {
			engines[i] = strings.TrimSpace(strings.ToLower(engines[i]))
		}
		c.Discovery.Engines = engines
	}
	setDuration(&c.Discovery.Timeout, "ONIONSEARCH_TIMEOUT")
	setInt(&c.Discovery.MaxPages, "ONIONSEARCH_MAX_PAGES")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// setDuration accepts either a Go duration string ("30s") or bare seconds ("30")
func setDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
	}
}
