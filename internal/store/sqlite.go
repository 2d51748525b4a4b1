package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/farmmap/internal/model"
)

// SQLiteStore implements Store on a single SQLite table.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLite opens a SQLite database at dsn and configures WAL mode.
func NewSQLite(dsn, table string) (*SQLiteStore, error) {
	if strings.Contains(table, ".") {
		return nil, eris.Errorf("sqlite: schema-qualified table %q not supported", table)
	}
	table, err := checkTable(table)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, table: table}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	lat        REAL NOT NULL,
	lng        REAL NOT NULL,
	address    TEXT NOT NULL,
	phone      TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
)`, s.table))
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) upsertSQL() string {
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	lat = excluded.lat,
	lng = excluded.lng,
	address = excluded.address,
	phone = excluded.phone,
	updated_at = excluded.updated_at`, s.table, strings.Join(tableColumns, ", "))
}

func (s *SQLiteStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = ?)`, s.table), id,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: exists %s", id)
	}
	return exists, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec *model.EnrichedRecord) error {
	_, err := s.db.ExecContext(ctx, s.upsertSQL(), recordRow(rec, time.Now().UTC())...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: put %s", rec.ID)
	}
	return nil
}

// PutBatch upserts recs in one transaction.
func (s *SQLiteStore) PutBatch(ctx context.Context, recs []model.EnrichedRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin batch")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, s.upsertSQL())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare batch")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for i := range recs {
		if _, err := stmt.ExecContext(ctx, recordRow(&recs[i], now)...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: batch put %s", recs[i].ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit batch")
	}
	return int64(len(recs)), nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.EnrichedRecord, error) {
	var rec model.EnrichedRecord
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, title, lat, lng, address, phone FROM %s WHERE id = ?`, s.table), id,
	).Scan(&rec.ID, &rec.Title, &rec.Position.Lat, &rec.Position.Lng, &rec.Address, &rec.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s", id)
	}
	return &rec, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]model.EnrichedRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, title, lat, lng, address, phone FROM %s ORDER BY id`, s.table))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list")
	}
	defer rows.Close() //nolint:errcheck

	var recs []model.EnrichedRecord
	for rows.Next() {
		var rec model.EnrichedRecord
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Position.Lat, &rec.Position.Lng, &rec.Address, &rec.Phone); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list rows")
}

func recordRow(rec *model.EnrichedRecord, now time.Time) []any {
	return []any{rec.ID, rec.Title, rec.Position.Lat, rec.Position.Lng, rec.Address, rec.Phone, now}
}
