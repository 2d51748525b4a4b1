package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/farmmap/internal/store"
)

// tableStore is a migratable store that accepts batches.
type tableStore interface {
	store.Store
	store.BatchPutter
	Migrate(ctx context.Context) error
}

// initTableStore opens the configured table store, or returns nil for the
// file driver.
func initTableStore(ctx context.Context) (tableStore, error) {
	var (
		ts  tableStore
		err error
	)
	switch cfg.Store.Driver {
	case "file":
		return nil, nil
	case "sqlite":
		dsn := cfg.StoreDSN()
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, eris.Wrap(err, "create sqlite directory")
			}
		}
		ts, err = store.NewSQLite(dsn, cfg.Store.Table)
	case "postgres":
		ts, err = store.NewPostgres(ctx, cfg.StoreDSN(), cfg.Store.Table)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := ts.Migrate(ctx); err != nil {
		ts.Close() //nolint:errcheck
		return nil, err
	}
	return ts, nil
}

// initStore opens the JSON artifact store and, when a table driver is
// configured, mirrors writes into it. The artifact directory stays the
// source of truth for skip decisions.
func initStore(ctx context.Context, outDir string) (store.Store, *store.FileStore, error) {
	fs, err := store.NewFileStore(outDir)
	if err != nil {
		return nil, nil, err
	}

	ts, err := initTableStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if ts == nil {
		return fs, fs, nil
	}

	zap.L().Info("mirroring records to table store",
		zap.String("driver", cfg.Store.Driver),
		zap.String("table", cfg.Store.Table),
	)
	return store.NewFanout(fs, ts), fs, nil
}
