package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/farmmap/internal/model"
	"github.com/sells-group/farmmap/internal/store"
)

var syncWorkers int

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upsert every persisted JSON record into the table store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("sync"); err != nil {
			return err
		}
		ctx := cmd.Context()

		ts, err := initTableStore(ctx)
		if err != nil {
			return err
		}
		defer ts.Close() //nolint:errcheck

		n, err := runSync(ctx, cfg.Output.Dir, ts, syncWorkers)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "synced %d records into %s (%s)\n", n, cfg.Store.Table, cfg.Store.Driver)
		return nil
	},
}

func init() {
	syncCmd.Flags().IntVar(&syncWorkers, "workers", 8, "concurrent artifact readers")
	rootCmd.AddCommand(syncCmd)
}

func runSync(ctx context.Context, outDir string, dst store.Store, workers int) (int64, error) {
	fs, err := store.NewFileStore(outDir)
	if err != nil {
		return 0, err
	}

	recs, err := loadRecords(ctx, fs, workers)
	if err != nil {
		return 0, err
	}

	n, err := store.PutAll(ctx, dst, recs)
	if err != nil {
		return n, eris.Wrap(err, "sync: upsert records")
	}
	zap.L().Info("sync complete", zap.Int64("records", n))
	return n, nil
}

// loadRecords reads every artifact in fs with up to workers concurrent
// readers. Output order follows the sorted id list.
func loadRecords(ctx context.Context, fs *store.FileStore, workers int) ([]model.EnrichedRecord, error) {
	ids, err := fs.IDs()
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}

	recs := make([]model.EnrichedRecord, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := fs.Get(gctx, id)
			if err != nil {
				return eris.Wrapf(err, "sync: read %s", id)
			}
			recs[i] = *rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return recs, nil
}
