package main

import (
	"context"

	"github.com/sells-group/farmmap/internal/config"
	"github.com/sells-group/farmmap/internal/fetcher"
	"github.com/sells-group/farmmap/internal/pipeline"
	"github.com/sells-group/farmmap/internal/portal"
	"github.com/sells-group/farmmap/internal/stable"
)

// localInput returns a readable path for the configured input, downloading
// it first when it is a URL.
func localInput(ctx context.Context) (string, error) {
	if !fetcher.IsRemote(cfg.Input.Path) {
		return cfg.Input.Path, nil
	}
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout: cfg.Timeout(),
		Retry:   cfg.RetryPolicy(),
	})
	return fetcher.Localize(ctx, f, cfg.Input.Path, cfg.Input.CachePath)
}

// runInput feeds path to d: crawl output as listings, anything else as the
// delimited licensed-stable file.
func runInput(ctx context.Context, d *pipeline.Driver, path string, in config.InputConfig) (*pipeline.Summary, error) {
	if in.Format == "portal" {
		r, err := portal.OpenListings(path)
		if err != nil {
			return nil, err
		}
		defer r.Close() //nolint:errcheck
		return d.RunStables(ctx, r)
	}

	delim, err := stable.ParseDelimiter(in.Delimiter)
	if err != nil {
		return nil, err
	}
	return d.RunFile(ctx, path, delim)
}
