// Package reconcile decides which geocode candidate becomes the persisted
// record for a stable.
//
// Zero candidates write nothing. One candidate is written as-is. Several
// candidates are written using the first one in response order and logged
// as a warning so the location can be reviewed by hand.
package reconcile

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/farmmap/internal/model"
	"github.com/sells-group/farmmap/internal/store"
	"github.com/sells-group/farmmap/pkg/geocode"
)

// Outcome is the result of reconciling one stable.
type Outcome string

const (
	Written                    Outcome = "written"
	SkippedEmpty               Outcome = "skipped_empty"
	SkippedAmbiguousButWritten Outcome = "ambiguous_written"
)

// Build makes the persisted record for st from a geocode candidate. The
// geocoder's formatted address replaces the source address.
func Build(st *model.Stable, c geocode.Candidate) *model.EnrichedRecord {
	return &model.EnrichedRecord{
		ID:       st.ID,
		Title:    st.Name,
		Position: model.Position{Lat: c.Latitude, Lng: c.Longitude},
		Address:  c.FormattedAddress,
		Phone:    st.Phone,
	}
}

// Reconcile applies the candidate policy to res and writes the chosen
// record to sink. A write error is returned as-is for the caller to treat
// as fatal.
func Reconcile(ctx context.Context, st *model.Stable, res *geocode.Result, sink store.Store) (Outcome, error) {
	log := zap.L().With(zap.String("id", st.ID), zap.String("name", st.Name))

	first, ok := res.First()
	if !ok {
		log.Warn("no geocode results",
			zap.Strings("address", st.Address),
			zap.ByteString("payload", rawPayload(res)),
		)
		return SkippedEmpty, nil
	}

	outcome := Written
	if n := len(res.Candidates); n > 1 {
		log.Warn("multiple geocode results, using first",
			zap.Int("candidates", n),
			zap.Strings("address", st.Address),
			zap.ByteString("payload", rawPayload(res)),
		)
		outcome = SkippedAmbiguousButWritten
	}

	rec := Build(st, first)
	if err := sink.Put(ctx, rec); err != nil {
		return "", eris.Wrapf(err, "reconcile: write %s", st.ID)
	}

	log.Info("record written",
		zap.Float64("lat", rec.Position.Lat),
		zap.Float64("lng", rec.Position.Lng),
		zap.String("address", rec.Address),
		zap.String("outcome", string(outcome)),
	)
	return outcome, nil
}

func rawPayload(res *geocode.Result) []byte {
	if res == nil {
		return nil
	}
	return res.Raw
}
