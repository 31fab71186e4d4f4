package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppName is used for config file names, env prefixes and XDG directories.
const AppName = "alkoscraper"

const envPrefix = "ALKOSCRAPER_"

// Config holds all configuration options for the crawler
type Config struct {
	// Proxy rotation
	Proxy ProxyConfig `yaml:"proxy" json:"proxy"`

	// Retry behaviour for blocked responses and transport failures
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Request engine settings
	Crawl CrawlConfig `yaml:"crawl" json:"crawl"`

	// Duplicate request filtering
	Dedup DedupConfig `yaml:"dedup" json:"dedup"`

	// Site crawl settings
	Spider SpiderConfig `yaml:"spider" json:"spider"`

	// Output feed
	Feed FeedConfig `yaml:"feed" json:"feed"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Stats   StatsConfig   `yaml:"stats" json:"stats"`
}

// ProxyConfig configures the proxy pool and the shared proxy credentials
type ProxyConfig struct {
	File     string `yaml:"file" json:"file"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	// CredentialsAccount names an account stored with `alkoscraper auth login`
	CredentialsAccount string `yaml:"credentials_account" json:"credentials_account"`
}

// RetryConfig holds both retry layers
type RetryConfig struct {
	HTTPCodes  []int                `yaml:"http_codes" json:"http_codes"`
	MaxRetries int                  `yaml:"max_retries" json:"max_retries"`
	Transport  TransportRetryConfig `yaml:"transport" json:"transport"`
}

// TransportRetryConfig configures re-dispatching on server errors and network failures
type TransportRetryConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	Times        int           `yaml:"times" json:"times"`
	HTTPCodes    []int         `yaml:"http_codes" json:"http_codes"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
}

// CrawlConfig holds request engine configuration
type CrawlConfig struct {
	Concurrency    int                `yaml:"concurrency" json:"concurrency"`
	DownloadDelay  time.Duration      `yaml:"download_delay" json:"download_delay"`
	Timeout        time.Duration      `yaml:"timeout" json:"timeout"`
	UserAgent      string             `yaml:"user_agent" json:"user_agent"`
	MaxBodySize    int64              `yaml:"max_body_size" json:"max_body_size"`
	DefaultHeaders map[string]string  `yaml:"default_headers" json:"default_headers"`
	AutoThrottle   AutoThrottleConfig `yaml:"autothrottle" json:"autothrottle"`
}

// AutoThrottleConfig adapts the download delay to observed latencies
type AutoThrottleConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	StartDelay        time.Duration `yaml:"start_delay" json:"start_delay"`
	MaxDelay          time.Duration `yaml:"max_delay" json:"max_delay"`
	TargetConcurrency float64       `yaml:"target_concurrency" json:"target_concurrency"`
	ErrorCodes        []int         `yaml:"error_codes" json:"error_codes"`
}

// DedupConfig selects the seen-request filter backend
type DedupConfig struct {
	Backend  string `yaml:"backend" json:"backend"`
	RedisURL string `yaml:"redis_url" json:"redis_url"`
	RedisKey string `yaml:"redis_key" json:"redis_key"`
}

// SpiderConfig holds site crawl settings
type SpiderConfig struct {
	InputFile string `yaml:"input_file" json:"input_file"`
	City      string `yaml:"city" json:"city"`
	PerPage   int    `yaml:"per_page" json:"per_page"`
}

// FeedConfig holds output feed configuration
type FeedConfig struct {
	Path      string `yaml:"path" json:"path"`
	Format    string `yaml:"format" json:"format"`
	Indent    int    `yaml:"indent" json:"indent"`
	Overwrite bool   `yaml:"overwrite" json:"overwrite"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	File    string `yaml:"file" json:"file"`
	NoColor bool   `yaml:"no_color" json:"no_color"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set
type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr"`
	Path string `yaml:"path" json:"path"`
}

// StatsConfig controls the end-of-crawl stats report
type StatsConfig struct {
	ReportPath string `yaml:"report_path" json:"report_path"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Proxy: ProxyConfig{
			File: "proxy_http_ip.txt",
		},
		Retry: RetryConfig{
			HTTPCodes:  []int{403, 429},
			MaxRetries: 3,
			Transport: TransportRetryConfig{
				Enabled:      true,
				Times:        3,
				HTTPCodes:    []int{500, 502, 503, 504},
				InitialDelay: 500 * time.Millisecond,
				MaxDelay:     10 * time.Second,
			},
		},
		Crawl: CrawlConfig{
			Concurrency:   10,
			DownloadDelay: 300 * time.Millisecond,
			Timeout:       30 * time.Second,
			UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36",
			MaxBodySize:   32 << 20,
			DefaultHeaders: map[string]string{
				"Accept":             "*/*",
				"Accept-Language":    "ru,ru-RU;q=0.9,en-US;q=0.8,en;q=0.7,th;q=0.6",
				"Priority":           "u=1, i",
				"Sec-Ch-Ua":          `"Google Chrome";v="135", "Not-A.Brand";v="8", "Chromium";v="135"`,
				"Sec-Ch-Ua-Mobile":   "?0",
				"Sec-Ch-Ua-Platform": `"Windows"`,
				"Sec-Fetch-Dest":     "empty",
				"Sec-Fetch-Mode":     "cors",
				"Sec-Fetch-Site":     "same-origin",
			},
			AutoThrottle: AutoThrottleConfig{
				Enabled:           true,
				StartDelay:        300 * time.Millisecond,
				MaxDelay:          10 * time.Second,
				TargetConcurrency: 5.0,
				ErrorCodes:        []int{429, 503, 504},
			},
		},
		Dedup: DedupConfig{
			Backend:  "memory",
			RedisKey: AppName + ":seen",
		},
		Spider: SpiderConfig{
			InputFile: "input_urls.txt",
			City:      "Краснодар",
			PerPage:   10000,
		},
		Feed: FeedConfig{
			Path:      "result.json",
			Format:    "json",
			Indent:    4,
			Overwrite: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

// LoadFromEnv loads configuration from ALKOSCRAPER_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		v := os.Getenv(envPrefix + name)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
			return
		}
		*dst = n
	}
	setDuration := func(name string, dst *time.Duration) {
		v := os.Getenv(envPrefix + name)
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
			return
		}
		*dst = d
	}

	setString("PROXY_FILE", &c.Proxy.File)
	setString("PROXY_USERNAME", &c.Proxy.Username)
	setString("PROXY_PASSWORD", &c.Proxy.Password)
	setString("PROXY_ACCOUNT", &c.Proxy.CredentialsAccount)

	setInt("MAX_RETRIES", &c.Retry.MaxRetries)
	if codes := os.Getenv(envPrefix + "RETRY_HTTP_CODES"); codes != "" {
		parsed, err := ParseStatusCodes(codes)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRETRY_HTTP_CODES: %w", envPrefix, err))
		} else {
			c.Retry.HTTPCodes = parsed
		}
	}

	setInt("CONCURRENCY", &c.Crawl.Concurrency)
	setDuration("DOWNLOAD_DELAY", &c.Crawl.DownloadDelay)
	setDuration("TIMEOUT", &c.Crawl.Timeout)
	setString("USER_AGENT", &c.Crawl.UserAgent)
	if v := os.Getenv(envPrefix + "AUTOTHROTTLE"); v != "" {
		c.Crawl.AutoThrottle.Enabled = strings.EqualFold(v, "true") || v == "1"
	}

	setString("DEDUP_BACKEND", &c.Dedup.Backend)
	setString("REDIS_URL", &c.Dedup.RedisURL)

	setString("INPUT_FILE", &c.Spider.InputFile)
	setString("CITY", &c.Spider.City)

	setString("OUTPUT", &c.Feed.Path)
	setString("FEED_FORMAT", &c.Feed.Format)

	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FILE", &c.Logging.File)

	setString("METRICS_ADDR", &c.Metrics.Addr)
	setString("STATS_REPORT", &c.Stats.ReportPath)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// DefaultConfigPath is where `config init` writes when no path is given.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// FindConfigFile searches for a config file in the working directory and
// then in the XDG config directories. It returns "" when none exists.
func FindConfigFile() string {
	locations := []string{
		AppName + ".yaml",
		AppName + ".yml",
		"." + AppName + ".yaml",
	}
	for _, name := range []string{"config.yaml", "config.yml"} {
		if p, err := xdg.SearchConfigFile(filepath.Join(AppName, name)); err == nil {
			locations = append(locations, p)
		}
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Proxy.File == "" {
		errs = append(errs, errors.New("proxy file path is required"))
	}
	if (c.Proxy.Username == "") != (c.Proxy.Password == "") && c.Proxy.CredentialsAccount == "" {
		errs = append(errs, errors.New("proxy username and password must be set together"))
	}

	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}
	if err := validateStatusCodes("retry http codes", c.Retry.HTTPCodes); err != nil {
		errs = append(errs, err)
	}
	if c.Retry.Transport.Enabled {
		if c.Retry.Transport.Times < 0 {
			errs = append(errs, errors.New("transport retry times cannot be negative"))
		}
		if err := validateStatusCodes("transport retry http codes", c.Retry.Transport.HTTPCodes); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Crawl.Concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}
	if c.Crawl.DownloadDelay < 0 {
		errs = append(errs, errors.New("download delay cannot be negative"))
	}
	if c.Crawl.Timeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if at := c.Crawl.AutoThrottle; at.Enabled {
		if at.TargetConcurrency <= 0 {
			errs = append(errs, errors.New("autothrottle target concurrency must be positive"))
		}
		if at.MaxDelay < at.StartDelay {
			errs = append(errs, errors.New("autothrottle max delay must not be below start delay"))
		}
	}

	switch strings.ToLower(c.Dedup.Backend) {
	case "memory", "none":
	case "redis":
		if c.Dedup.RedisURL == "" {
			errs = append(errs, errors.New("redis dedup backend requires redis_url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown dedup backend %q", c.Dedup.Backend))
	}

	if c.Spider.InputFile == "" {
		errs = append(errs, errors.New("input file is required"))
	}
	if c.Spider.PerPage <= 0 {
		errs = append(errs, errors.New("per page must be positive"))
	}

	if c.Feed.Path == "" {
		errs = append(errs, errors.New("feed path is required"))
	}
	switch strings.ToLower(c.Feed.Format) {
	case "json", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown feed format %q", c.Feed.Format))
	}
	if c.Feed.Indent < 0 {
		errs = append(errs, errors.New("feed indent cannot be negative"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func validateStatusCodes(name string, codes []int) error {
	for _, code := range codes {
		if code < 100 || code > 599 {
			return fmt.Errorf("%s: invalid status code %d", name, code)
		}
	}
	return nil
}

// ParseStatusCodes parses a comma separated list such as "403,429".
func ParseStatusCodes(s string) ([]int, error) {
	var codes []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid status code %q", part)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Keys are cobra flag names; callers pass only the flags the user changed.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["proxy-file"].(string); ok && v != "" {
		c.Proxy.File = v
	}
	if v, ok := flags["proxy-account"].(string); ok && v != "" {
		c.Proxy.CredentialsAccount = v
	}
	if v, ok := flags["max-retries"].(int); ok && v >= 0 {
		c.Retry.MaxRetries = v
	}
	if v, ok := flags["concurrency"].(int); ok && v > 0 {
		c.Crawl.Concurrency = v
	}
	if v, ok := flags["download-delay"].(time.Duration); ok && v > 0 {
		c.Crawl.DownloadDelay = v
	}
	if v, ok := flags["input"].(string); ok && v != "" {
		c.Spider.InputFile = v
	}
	if v, ok := flags["city"].(string); ok && v != "" {
		c.Spider.City = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Feed.Path = v
	}
	if v, ok := flags["format"].(string); ok && v != "" {
		c.Feed.Format = v
	}
	if v, ok := flags["redis-url"].(string); ok && v != "" {
		c.Dedup.Backend = "redis"
		c.Dedup.RedisURL = v
	}
	if v, ok := flags["metrics-addr"].(string); ok && v != "" {
		c.Metrics.Addr = v
	}
	if v, ok := flags["stats-report"].(string); ok && v != "" {
		c.Stats.ReportPath = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(xdg.ConfigHome, AppName, ".env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
