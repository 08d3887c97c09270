package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Configuration validation errors
var (
	ErrMissingBaseURL     = errors.New("scraper.base_url is required")
	ErrInvalidMaxAttempts = errors.New("scraper.max_attempts must be at least 1")
	ErrInvalidRetryDelay  = errors.New("scraper.retry_delay must be non-negative")
	ErrInvalidTimeout     = errors.New("scraper.timeout must be positive")
	ErrInvalidMaxPages    = errors.New("scraper.max_pages must be non-negative")
	ErrMissingOutputDir   = errors.New("output.dir is required")
	ErrInvalidFormat      = errors.New("output.formats must only contain csv, json or sqlite")
	ErrInvalidLogLevel    = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat   = errors.New("logging.format must be 'text' or 'json'")
)

// AppConfig holds the complete application configuration
type AppConfig struct {
	Scraper ScraperConfig `yaml:"scraper"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
	Proxies ProxyConfig   `yaml:"proxies"`
	Browser BrowserConfig `yaml:"browser"`
}

// ScraperConfig holds the fetch and pagination configuration
type ScraperConfig struct {
	BaseURL     string            `yaml:"base_url"`
	RateLimit   time.Duration     `yaml:"rate_limit"`
	MaxAttempts int               `yaml:"max_attempts"`
	RetryDelay  time.Duration     `yaml:"retry_delay"`
	MaxBackoff  time.Duration     `yaml:"max_backoff"`
	Timeout     time.Duration     `yaml:"timeout"`
	MaxPages    int               `yaml:"max_pages"`
	Headers     map[string]string `yaml:"headers"`
}

// RetryDelayFor returns the backoff before the given retry (1-based).
// The delay doubles per retry and is capped at MaxBackoff.
func (c *ScraperConfig) RetryDelayFor(retry int) time.Duration {
	if retry < 1 || c.RetryDelay <= 0 {
		return 0
	}
	delay := c.RetryDelay
	for i := 1; i < retry; i++ {
		delay *= 2
		if c.MaxBackoff > 0 && delay >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	if c.MaxBackoff > 0 && delay > c.MaxBackoff {
		return c.MaxBackoff
	}
	return delay
}

// OutputConfig holds the output sink configuration
type OutputConfig struct {
	Dir        string   `yaml:"dir"`
	Formats    []string `yaml:"formats"`
	SQLitePath string   `yaml:"sqlite_path"`
}

// Wants reports whether the given output format is enabled.
func (c *OutputConfig) Wants(format string) bool {
	return slices.Contains(c.Formats, format)
}

// LoggingConfig holds the logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

// ProxyConfig holds the proxy configuration
type ProxyConfig struct {
	Enabled bool     `yaml:"enabled"`
	Rotate  bool     `yaml:"rotate"`
	List    []string `yaml:"list"`
	Auth    struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"auth"`
}

// BrowserConfig holds the browser configuration for JavaScript rendering
type BrowserConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Headless bool          `yaml:"headless"`
	WaitTime time.Duration `yaml:"wait_time"`
}

// Load reads the configuration from a YAML file on top of the defaults.
// A sibling <name>.local.<ext> file, when present, overrides it.
func Load(filename string) (*AppConfig, error) {
	config := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}

	localFile := localPath(filename)
	local, err := os.ReadFile(localFile)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if len(local) > 0 {
		var override AppConfig
		if err := yaml.Unmarshal(local, &override); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", localFile, err)
		}
		if err := Merge(config, override); err != nil {
			return nil, err
		}
		slog.Info("merging config with local overrides", "local", localFile)
	}

	return config, nil
}

// Merge applies every non-zero field of override onto config.
func Merge(config *AppConfig, override AppConfig) error {
	if err := mergo.Merge(config, override, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func localPath(filename string) string {
	ext := filepath.Ext(filename)
	return strings.TrimSuffix(filename, ext) + ".local" + ext
}

// Validate checks the configuration for values the scraper cannot run with.
func (c *AppConfig) Validate() error {
	if c.Scraper.BaseURL == "" {
		return ErrMissingBaseURL
	}
	if c.Scraper.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}
	if c.Scraper.RetryDelay < 0 || c.Scraper.RateLimit < 0 {
		return ErrInvalidRetryDelay
	}
	if c.Scraper.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Scraper.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.Output.Dir == "" {
		return ErrMissingOutputDir
	}
	for _, f := range c.Output.Formats {
		if !slices.Contains(SupportedFormats, f) {
			return fmt.Errorf("%w: %q", ErrInvalidFormat, f)
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return ErrInvalidLogFormat
	}
	return nil
}
