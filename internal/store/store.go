// Package store persists enriched stable records keyed by stable ID.
package store

import (
	"context"
	"errors"

	"github.com/sells-group/farmmap/internal/model"
)

// ErrNotFound is returned by Get when no record exists for an ID.
var ErrNotFound = errors.New("store: record not found")

// Store persists one EnrichedRecord per stable ID. Put for an existing ID
// replaces it; the pipeline never does that because it checks Exists first.
type Store interface {
	Exists(ctx context.Context, id string) (bool, error)
	Put(ctx context.Context, rec *model.EnrichedRecord) error
	Get(ctx context.Context, id string) (*model.EnrichedRecord, error)
	List(ctx context.Context) ([]model.EnrichedRecord, error)
	Close() error
}

// BatchPutter is implemented by stores that can write many records at once.
type BatchPutter interface {
	PutBatch(ctx context.Context, recs []model.EnrichedRecord) (int64, error)
}

// PutAll writes recs through PutBatch when st supports it, otherwise one
// Put per record. It returns the number of records written.
func PutAll(ctx context.Context, st Store, recs []model.EnrichedRecord) (int64, error) {
	if bp, ok := st.(BatchPutter); ok {
		return bp.PutBatch(ctx, recs)
	}
	var n int64
	for i := range recs {
		if err := st.Put(ctx, &recs[i]); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
