package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/williampepple1/eudract-scraper/internal/config"
	"github.com/williampepple1/eudract-scraper/internal/euscraper"
	"github.com/williampepple1/eudract-scraper/internal/io"
	"github.com/williampepple1/eudract-scraper/internal/listing"
	"github.com/williampepple1/eudract-scraper/internal/logging"
	"github.com/williampepple1/eudract-scraper/internal/scraper"
	"github.com/williampepple1/eudract-scraper/pkg/models"
)

// commonFlags override the loaded configuration when set.
var commonFlags struct {
	configPath string
	outputDir  string
	formats    string
	browser    bool
	logLevel   string
}

var rootFlags struct {
	startDate string
	endDate   string
	daily     bool
}

var rootCmd = &cobra.Command{
	Use:   "scraper",
	Short: "Scrape the EU Clinical Trials Register for a date range",
	Long: "Scrape the EU Clinical Trials Register for every trial registered between two dates\n" +
		"and write trial cards, protocols and results as tables.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	RunE: runScrape,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&rootFlags.startDate, "start-date", "", "First registration date, YYYY-MM-DD (required)")
	f.StringVar(&rootFlags.endDate, "end-date", "", "Last registration date, YYYY-MM-DD (required)")
	f.BoolVar(&rootFlags.daily, "daily", false, "Run one query per day and write one table set per day")
	_ = rootCmd.MarkFlagRequired("start-date")
	_ = rootCmd.MarkFlagRequired("end-date")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&commonFlags.configPath, "config", "", "Path to configuration file (YAML)")
	pf.StringVar(&commonFlags.outputDir, "output-dir", "", "Directory for output files")
	pf.StringVar(&commonFlags.formats, "format", "", "Comma separated output formats: csv, json, sqlite")
	pf.BoolVar(&commonFlags.browser, "browser", false, "Render pages in a headless browser")
	pf.StringVar(&commonFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(retryCmd)
}

func runScrape(cmd *cobra.Command, _ []string) error {
	start, end, err := parseDateRange(rootFlags.startDate, rootFlags.endDate)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	closeLog, err := logging.Setup(cfg.Logging, time.Now())
	if err != nil {
		return err
	}
	defer closeLog()

	fetcher, err := scraper.New(cfg)
	if err != nil {
		return err
	}
	s := euscraper.New(cfg, fetcher)
	writer := io.NewResultWriter(&cfg.Output)

	ranges := [][2]time.Time{{start, end}}
	if rootFlags.daily {
		ranges = days(start, end)
	}

	var results []*models.RunResult
	defer func() {
		if len(results) > 0 {
			io.RenderSummary(cmd.OutOrStdout(), results...)
		}
	}()

	for _, r := range ranges {
		result, runErr := s.Run(cmd.Context(), r[0], r[1])
		if result != nil {
			results = append(results, result)
			if _, err := writer.Write(result); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
		if runErr != nil {
			return runErr
		}
	}
	return nil
}

// parseDateRange parses both dates and checks end is not before start.
func parseDateRange(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := time.Parse(listing.DateLayout, startDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --start-date %q: expected YYYY-MM-DD", startDate)
	}
	end, err := time.Parse(listing.DateLayout, endDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --end-date %q: expected YYYY-MM-DD", endDate)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, &euscraper.InvalidDateRangeError{Start: start, End: end}
	}
	return start, end, nil
}

// days splits [start, end] into single-day ranges.
func days(start, end time.Time) [][2]time.Time {
	var out [][2]time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, [2]time.Time{d, d})
	}
	return out
}

// loadConfig loads the configuration file, if any, and applies flag overrides.
func loadConfig() (*config.AppConfig, error) {
	cfg := config.Default()
	if commonFlags.configPath != "" {
		var err error
		cfg, err = config.Load(commonFlags.configPath)
		if err != nil {
			return nil, fmt.Errorf("error loading configuration: %w", err)
		}
	}

	if commonFlags.outputDir != "" {
		cfg.Output.Dir = commonFlags.outputDir
	}
	if commonFlags.formats != "" {
		cfg.Output.Formats = nil
		for _, f := range strings.Split(commonFlags.formats, ",") {
			if f = strings.TrimSpace(strings.ToLower(f)); f != "" {
				cfg.Output.Formats = append(cfg.Output.Formats, f)
			}
		}
	}
	if commonFlags.browser {
		cfg.Browser.Enabled = true
	}
	if commonFlags.logLevel != "" {
		cfg.Logging.Level = commonFlags.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
