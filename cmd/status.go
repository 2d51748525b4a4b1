package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/farmmap/internal/config"
	"github.com/sells-group/farmmap/internal/cost"
	"github.com/sells-group/farmmap/internal/pipeline"
	"github.com/sells-group/farmmap/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report persisted and pending stables without geocoding",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("status"); err != nil {
			return err
		}

		input, err := localInput(cmd.Context())
		if err != nil {
			return err
		}

		sum, err := collectStatus(cmd.Context(), input, cfg.Input, cfg.Output.Dir)
		if err != nil {
			return err
		}
		formatSummary(os.Stdout, sum, cost.NewCalculator(cfg.Pricing.Geocode))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// collectStatus dry-runs the pipeline over the input against the artifact
// directory. Invalid rows are counted rather than fatal.
func collectStatus(ctx context.Context, input string, in config.InputConfig, outDir string) (*pipeline.Summary, error) {
	fs, err := store.NewFileStore(outDir)
	if err != nil {
		return nil, err
	}

	driver := pipeline.New(nil, fs, pipeline.Options{DryRun: true})
	return runInput(ctx, driver, input, in)
}
