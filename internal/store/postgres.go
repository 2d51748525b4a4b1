package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/farmmap/internal/db"
	"github.com/sells-group/farmmap/internal/model"
)

// PostgresStore implements Store on a Postgres table.
type PostgresStore struct {
	pool  db.Pool
	table string
}

// NewPostgres connects a pool to connString and pings it.
func NewPostgres(ctx context.Context, connString, table string) (*PostgresStore, error) {
	table, err := checkTable(table)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, table: table}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool, table string) (*PostgresStore, error) {
	table, err := checkTable(table)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, table: table}, nil
}

func (s *PostgresStore) quotedTable() string {
	return pgx.Identifier(splitTable(s.table)).Sanitize()
}

func (s *PostgresStore) upsertConfig() db.UpsertConfig {
	return db.UpsertConfig{
		Table:        s.table,
		Columns:      tableColumns,
		ConflictKeys: []string{"id"},
	}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	lat        DOUBLE PRECISION NOT NULL,
	lng        DOUBLE PRECISION NOT NULL,
	address    TEXT NOT NULL,
	phone      TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.quotedTable()))
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, s.quotedTable()), id,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: exists %s", id)
	}
	return exists, nil
}

func (s *PostgresStore) Put(ctx context.Context, rec *model.EnrichedRecord) error {
	if err := db.UpsertRow(ctx, s.pool, s.upsertConfig(), recordRow(rec, time.Now().UTC())); err != nil {
		return eris.Wrapf(err, "postgres: put %s", rec.ID)
	}
	return nil
}

// PutBatch upserts recs via COPY into a temp table.
func (s *PostgresStore) PutBatch(ctx context.Context, recs []model.EnrichedRecord) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, len(recs))
	for i := range recs {
		rows[i] = recordRow(&recs[i], now)
	}
	n, err := db.BulkUpsert(ctx, s.pool, s.upsertConfig(), rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: batch put")
	}
	return n, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.EnrichedRecord, error) {
	var rec model.EnrichedRecord
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT id, title, lat, lng, address, phone FROM %s WHERE id = $1`, s.quotedTable()), id,
	).Scan(&rec.ID, &rec.Title, &rec.Position.Lat, &rec.Position.Lng, &rec.Address, &rec.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s", id)
	}
	return &rec, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]model.EnrichedRecord, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, title, lat, lng, address, phone FROM %s ORDER BY id`, s.quotedTable()))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list")
	}
	defer rows.Close()

	var recs []model.EnrichedRecord
	for rows.Next() {
		var rec model.EnrichedRecord
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Position.Lat, &rec.Position.Lng, &rec.Address, &rec.Phone); err != nil {
			return nil, eris.Wrap(err, "postgres: scan")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list rows")
}

func splitTable(table string) []string {
	for i := 0; i < len(table); i++ {
		if table[i] == '.' {
			return []string{table[:i], table[i+1:]}
		}
	}
	return []string{table}
}
