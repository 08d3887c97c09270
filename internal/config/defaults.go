package config

import "time"

// BaseURL is the EU Clinical Trials Register root
const BaseURL = "https://www.clinicaltrialsregister.eu/"

// Output formats understood by the sink
const (
	FormatCSV    = "csv"
	FormatJSON   = "json"
	FormatSQLite = "sqlite"
)

// SupportedFormats lists every output format
var SupportedFormats = []string{FormatCSV, FormatJSON, FormatSQLite}

// DefaultHeaders is the header set sent with every request
var DefaultHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-GB,en;q=0.9",
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/88.0.4324.150 Safari/537.36",
}

// Default creates the default configuration
func Default() *AppConfig {
	headers := make(map[string]string, len(DefaultHeaders))
	for k, v := range DefaultHeaders {
		headers[k] = v
	}

	return &AppConfig{
		Scraper: ScraperConfig{
			BaseURL:     BaseURL,
			RateLimit:   10 * time.Second,
			MaxAttempts: 3,
			RetryDelay:  5 * time.Second,
			MaxBackoff:  5 * time.Minute,
			Timeout:     30 * time.Second,
			Headers:     headers,
		},
		Output: OutputConfig{
			Dir:        "data",
			Formats:    []string{FormatCSV},
			SQLitePath: "trials.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Dir:    "logs",
		},
		Proxies: ProxyConfig{
			Enabled: false,
			Rotate:  true,
			List:    []string{},
		},
		Browser: BrowserConfig{
			Enabled:  false,
			Headless: true,
			WaitTime: 2 * time.Second,
		},
	}
}
