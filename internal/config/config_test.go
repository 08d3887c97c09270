package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, BaseURL, cfg.Scraper.BaseURL)
	require.Equal(t, 3, cfg.Scraper.MaxAttempts)
	require.Contains(t, cfg.Scraper.Headers, "User-Agent")
	require.True(t, cfg.Output.Wants(FormatCSV))
	require.False(t, cfg.Output.Wants(FormatSQLite))
}

func TestDefaultHeadersAreCopied(t *testing.T) {
	cfg := Default()
	cfg.Scraper.Headers["User-Agent"] = "changed"
	require.NotEqual(t, "changed", DefaultHeaders["User-Agent"])
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scraper.yaml")
	writeFile(t, path, `
scraper:
  rate_limit: 2s
  max_attempts: 5
  headers:
    X-Session: abc
output:
  dir: out
  formats: [csv, sqlite]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.Scraper.RateLimit)
	require.Equal(t, 5, cfg.Scraper.MaxAttempts)
	require.Equal(t, 30*time.Second, cfg.Scraper.Timeout)
	require.Equal(t, "abc", cfg.Scraper.Headers["X-Session"])
	require.Contains(t, cfg.Scraper.Headers, "User-Agent")
	require.Equal(t, "out", cfg.Output.Dir)
	require.True(t, cfg.Output.Wants(FormatSQLite))
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesLocalOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scraper.yaml")
	writeFile(t, path, "logging:\n  level: info\n  format: text\n")
	writeFile(t, filepath.Join(dir, "scraper.local.yaml"), "logging:\n  level: debug\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.True(t, os.IsNotExist(err))
}

func TestMergeKeepsZeroFields(t *testing.T) {
	cfg := Default()
	var override AppConfig
	override.Output.Dir = "elsewhere"
	require.NoError(t, Merge(cfg, override))
	require.Equal(t, "elsewhere", cfg.Output.Dir)
	require.Equal(t, 3, cfg.Scraper.MaxAttempts)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*AppConfig)
		want   error
	}{
		{"base url", func(c *AppConfig) { c.Scraper.BaseURL = "" }, ErrMissingBaseURL},
		{"attempts", func(c *AppConfig) { c.Scraper.MaxAttempts = 0 }, ErrInvalidMaxAttempts},
		{"retry delay", func(c *AppConfig) { c.Scraper.RetryDelay = -time.Second }, ErrInvalidRetryDelay},
		{"timeout", func(c *AppConfig) { c.Scraper.Timeout = 0 }, ErrInvalidTimeout},
		{"max pages", func(c *AppConfig) { c.Scraper.MaxPages = -1 }, ErrInvalidMaxPages},
		{"output dir", func(c *AppConfig) { c.Output.Dir = "" }, ErrMissingOutputDir},
		{"format", func(c *AppConfig) { c.Output.Formats = []string{"xml"} }, ErrInvalidFormat},
		{"log level", func(c *AppConfig) { c.Logging.Level = "loud" }, ErrInvalidLogLevel},
		{"log format", func(c *AppConfig) { c.Logging.Format = "xml" }, ErrInvalidLogFormat},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestRetryDelayFor(t *testing.T) {
	cfg := ScraperConfig{RetryDelay: time.Second, MaxBackoff: 5 * time.Second}
	require.Equal(t, time.Duration(0), cfg.RetryDelayFor(0))
	require.Equal(t, time.Second, cfg.RetryDelayFor(1))
	require.Equal(t, 2*time.Second, cfg.RetryDelayFor(2))
	require.Equal(t, 4*time.Second, cfg.RetryDelayFor(3))
	require.Equal(t, 5*time.Second, cfg.RetryDelayFor(4))
	require.Equal(t, 5*time.Second, cfg.RetryDelayFor(10))

	cfg.RetryDelay = 0
	require.Equal(t, time.Duration(0), cfg.RetryDelayFor(3))
}
