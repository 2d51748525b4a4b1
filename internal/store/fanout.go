package store

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/farmmap/internal/model"
)

// Fanout writes to a primary store and mirrors every Put to secondary
// stores. Reads and existence checks use only the primary.
type Fanout struct {
	primary Store
	mirrors []Store
}

// NewFanout returns primary itself when there are no mirrors.
func NewFanout(primary Store, mirrors ...Store) Store {
	if len(mirrors) == 0 {
		return primary
	}
	return &Fanout{primary: primary, mirrors: mirrors}
}

func (f *Fanout) Exists(ctx context.Context, id string) (bool, error) {
	return f.primary.Exists(ctx, id)
}

// Put writes the mirrors first so the primary, which decides whether an
// ID is done, only has the record once every sink does.
func (f *Fanout) Put(ctx context.Context, rec *model.EnrichedRecord) error {
	for _, m := range f.mirrors {
		if err := m.Put(ctx, rec); err != nil {
			return eris.Wrapf(err, "fanout: mirror put %s", rec.ID)
		}
	}
	return f.primary.Put(ctx, rec)
}

func (f *Fanout) Get(ctx context.Context, id string) (*model.EnrichedRecord, error) {
	return f.primary.Get(ctx, id)
}

func (f *Fanout) List(ctx context.Context) ([]model.EnrichedRecord, error) {
	return f.primary.List(ctx)
}

func (f *Fanout) Close() error {
	errs := []error{f.primary.Close()}
	for _, m := range f.mirrors {
		errs = append(errs, m.Close())
	}
	return errors.Join(errs...)
}
