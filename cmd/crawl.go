package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/farmmap/internal/fetcher"
	"github.com/sells-group/farmmap/internal/portal"
)

var (
	crawlOutput     string
	crawlWorkers    int
	crawlRefreshIDs bool
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl the licensing portal into a listings file for geocoding",
	Long: "Fetches every stable page linked from the portal directory and writes one JSON listing per line. " +
		"The id list is saved to portal.ids_path and reused until --refresh-ids. Geocode the result with --format portal.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if crawlOutput != "" {
			cfg.Portal.Output = crawlOutput
		}
		if cmd.Flags().Changed("workers") {
			cfg.Portal.Workers = crawlWorkers
		}

		res, err := runCrawl(ctx, crawlRefreshIDs)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "crawled %d stables into %s (%d failed)\n", len(res.Listings), cfg.Portal.Output, len(res.Failed))
		return nil
	},
}

func init() {
	crawlCmd.Flags().StringVar(&crawlOutput, "output", "", "listings file (overrides portal.output)")
	crawlCmd.Flags().IntVar(&crawlWorkers, "workers", 10, "concurrent stable page fetches (overrides portal.workers)")
	crawlCmd.Flags().BoolVar(&crawlRefreshIDs, "refresh-ids", false, "walk the directory even if the id list exists")
	rootCmd.AddCommand(crawlCmd)
}

// runCrawl fetches every listed stable and writes the listings plus the ids
// that failed, so a later run can be pointed at just those.
func runCrawl(ctx context.Context, refresh bool) (*portal.Result, error) {
	if err := cfg.Validate("crawl"); err != nil {
		return nil, err
	}

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout: cfg.PortalTimeout(),
		Retry:   cfg.RetryPolicy(),
	})
	c := portal.New(f, portal.Options{
		BaseURL:   cfg.Portal.BaseURL,
		Workers:   cfg.Portal.Workers,
		RateLimit: cfg.Portal.RateLimit,
		MaxPages:  cfg.Portal.MaxPages,
	})

	ids, err := crawlIDs(ctx, c, cfg.Portal.IDsPath, refresh)
	if err != nil {
		return nil, err
	}

	res, err := c.Crawl(ctx, ids)
	if err != nil {
		return nil, err
	}
	if err := portal.WriteListings(cfg.Portal.Output, res.Listings); err != nil {
		return nil, err
	}
	if cfg.Portal.FailedPath != "" {
		if err := portal.WriteIDs(cfg.Portal.FailedPath, res.Failed); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// crawlIDs reads the id list at path when it exists, otherwise walks the
// directory and saves the result there. An empty path never caches.
func crawlIDs(ctx context.Context, c *portal.Crawler, path string, refresh bool) ([]string, error) {
	if path != "" && !refresh {
		ids, err := portal.ReadIDs(path)
		switch {
		case err == nil:
			zap.L().Info("crawl: using saved id list", zap.String("path", path), zap.Int("ids", len(ids)))
			return ids, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}

	ids, err := c.ListIDs(ctx)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := portal.WriteIDs(path, ids); err != nil {
			return nil, err
		}
	}
	return ids, nil
}
