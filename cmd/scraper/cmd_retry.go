package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/williampepple1/eudract-scraper/internal/euscraper"
	"github.com/williampepple1/eudract-scraper/internal/io"
	"github.com/williampepple1/eudract-scraper/internal/logging"
	"github.com/williampepple1/eudract-scraper/internal/scraper"
	"github.com/williampepple1/eudract-scraper/pkg/models"
)

var retryFlags struct {
	idsFile string
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Scrape a list of trials by EudraCT number",
	Long: "Scrape the trials listed in a file, one EudraCT number per line.\n" +
		"The failed_trials_*.txt file written by a run can be passed as is.",
	RunE: runRetry,
}

func init() {
	retryCmd.Flags().StringVar(&retryFlags.idsFile, "ids-file", "", "File of EudraCT numbers (required)")
	_ = retryCmd.MarkFlagRequired("ids-file")
}

func runRetry(cmd *cobra.Command, _ []string) error {
	ids, err := io.ReadIDs(retryFlags.idsFile)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("no EudraCT numbers in %s", retryFlags.idsFile)
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

	refs := make([]models.TrialReference, len(ids))
	for i, id := range ids {
		refs[i] = s.Walker.Reference(id)
	}

	result, runErr := s.RunReferences(cmd.Context(), refs)
	if _, err := io.NewResultWriter(&cfg.Output).Write(result); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	io.RenderSummary(cmd.OutOrStdout(), result)
	return runErr
}
