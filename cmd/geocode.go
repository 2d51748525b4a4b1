package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/farmmap/internal/cost"
	"github.com/sells-group/farmmap/internal/pipeline"
	"github.com/sells-group/farmmap/pkg/geocode"
)

var (
	geocodeInput             string
	geocodeFormat            string
	geocodeKeyFile           string
	geocodeOutDir            string
	geocodeDelay             time.Duration
	geocodeLimit             int
	geocodeDryRun            bool
	geocodeContinueOnInvalid bool
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Geocode every stable that has no persisted record yet",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyGeocodeFlags(cmd)

		sum, err := runGeocode(ctx)
		if sum != nil {
			formatSummary(os.Stdout, sum, cost.NewCalculator(cfg.Pricing.Geocode))
		}
		return err
	},
}

func init() {
	geocodeCmd.Flags().StringVar(&geocodeInput, "input", "", "licensed-stable file (overrides input.path)")
	geocodeCmd.Flags().StringVar(&geocodeFormat, "format", "", "input format: delimited or portal (overrides input.format)")
	geocodeCmd.Flags().StringVar(&geocodeKeyFile, "key-file", "", "API key JSON file (overrides geocode.key_file)")
	geocodeCmd.Flags().StringVar(&geocodeOutDir, "out-dir", "", "record output directory (overrides output.dir)")
	geocodeCmd.Flags().DurationVar(&geocodeDelay, "delay", 5*time.Second, "pause after each geocode request")
	geocodeCmd.Flags().IntVar(&geocodeLimit, "limit", 0, "max geocode requests this run (0 = no limit)")
	geocodeCmd.Flags().BoolVar(&geocodeDryRun, "dry-run", false, "report pending stables without geocoding")
	geocodeCmd.Flags().BoolVar(&geocodeContinueOnInvalid, "continue-on-invalid", false, "skip invalid rows instead of aborting")
	rootCmd.AddCommand(geocodeCmd)
}

// applyGeocodeFlags copies explicitly set flags over the loaded config.
func applyGeocodeFlags(cmd *cobra.Command) {
	if geocodeInput != "" {
		cfg.Input.Path = geocodeInput
	}
	if geocodeFormat != "" {
		cfg.Input.Format = geocodeFormat
	}
	if geocodeKeyFile != "" {
		cfg.Geocode.KeyFile = geocodeKeyFile
	}
	if geocodeOutDir != "" {
		cfg.Output.Dir = geocodeOutDir
	}
	if cmd.Flags().Changed("delay") {
		cfg.Geocode.DelaySecs = geocodeDelay.Seconds()
	}
	if geocodeContinueOnInvalid {
		cfg.Pipeline.AbortOnInvalid = false
	}
}

func runGeocode(ctx context.Context) (*pipeline.Summary, error) {
	if err := cfg.Validate("geocode"); err != nil {
		return nil, err
	}

	var gc geocode.Client
	if !geocodeDryRun {
		key, err := cfg.ResolveAPIKey()
		if err != nil {
			return nil, eris.Wrap(err, "geocode: load api key")
		}
		gc = newGeocoder(key)
	}

	input, err := localInput(ctx)
	if err != nil {
		return nil, err
	}

	st, _, err := initStore(ctx, cfg.Output.Dir)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck

	driver := pipeline.New(gc, st, pipeline.Options{
		Delay:          cfg.Delay(),
		AbortOnInvalid: cfg.Pipeline.AbortOnInvalid,
		Limit:          geocodeLimit,
		DryRun:         geocodeDryRun,
	})
	return runInput(ctx, driver, input, cfg.Input)
}

func newGeocoder(key string) geocode.Client {
	return geocode.NewClient(key,
		geocode.WithBaseURL(cfg.Geocode.BaseURL),
		geocode.WithHTTPClient(&http.Client{Timeout: cfg.Timeout()}),
		geocode.WithRateLimit(cfg.Geocode.RateLimit),
		geocode.WithRetry(cfg.RetryPolicy()),
	)
}

// formatSummary prints run counts. The cost line covers requests made plus
// requests still pending after a dry run.
func formatSummary(out io.Writer, s *pipeline.Summary, calc *cost.Calculator) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "RUN\t%s\n", s.RunID)
	_, _ = fmt.Fprintf(w, "ROWS\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "ALREADY PERSISTED\t%d\n", s.Skipped)
	_, _ = fmt.Fprintf(w, "WRITTEN\t%d\n", s.Written)
	_, _ = fmt.Fprintf(w, "  AMBIGUOUS\t%d\n", s.Ambiguous)
	_, _ = fmt.Fprintf(w, "NO RESULTS\t%d\n", s.Empty)
	_, _ = fmt.Fprintf(w, "FAILED\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "INVALID\t%d\n", s.Invalid)
	if s.Pending > 0 {
		_, _ = fmt.Fprintf(w, "PENDING\t%d\n", s.Pending)
	}
	_, _ = fmt.Fprintf(w, "GEOCODE CALLS\t%d\n", s.GeocodeCalls)
	_, _ = fmt.Fprintf(w, "EST. COST\t$%.2f\n", calc.Geocode(s.GeocodeCalls+s.Pending))
	_, _ = fmt.Fprintf(w, "DURATION\t%s\n", s.Duration.Round(time.Millisecond))
	_ = w.Flush()
}
