// Package pipeline drives the per-record geocoding run: normalize, skip
// what is already persisted, geocode, reconcile, pause.
package pipeline

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/farmmap/internal/model"
	"github.com/sells-group/farmmap/internal/reconcile"
	"github.com/sells-group/farmmap/internal/stable"
	"github.com/sells-group/farmmap/internal/store"
	"github.com/sells-group/farmmap/pkg/geocode"
)

// DefaultDelay is the pause after each geocode request.
const DefaultDelay = 5 * time.Second

// RowSource yields raw rows with their line numbers and io.EOF at the end.
// *stable.Reader implements it.
type RowSource interface {
	Next() ([]string, int, error)
}

// StableSource yields ready stables and io.EOF at the end. An entry the
// source cannot use is reported as a *stable.InvalidRowError and handled
// like an invalid input row. *portal.ListingReader implements it.
type StableSource interface {
	NextStable() (*model.Stable, error)
}

// rowStables normalizes raw rows as they are read.
type rowStables struct {
	rows RowSource
}

func (r rowStables) NextStable() (*model.Stable, error) {
	row, line, err := r.rows.Next()
	if err != nil {
		return nil, err
	}
	st, err := stable.Normalize(row)
	if err != nil {
		var rowErr *stable.InvalidRowError
		if errors.As(err, &rowErr) {
			rowErr.Line = line
		}
		return nil, err
	}
	return st, nil
}

// Options controls a run.
type Options struct {
	// Delay is waited after every geocode request, successful or not.
	Delay time.Duration
	// AbortOnInvalid stops the run at the first row that fails
	// normalization. When false such rows are counted and skipped.
	AbortOnInvalid bool
	// Limit caps the number of geocode requests; 0 means no cap.
	Limit int
	// DryRun normalizes rows and checks the store but never geocodes.
	DryRun bool
}

// DefaultOptions returns the batch defaults: 5s delay, fail fast.
func DefaultOptions() Options {
	return Options{Delay: DefaultDelay, AbortOnInvalid: true}
}

// Summary counts record outcomes for one run.
type Summary struct {
	RunID        string        `json:"run_id"`
	Total        int           `json:"total"`
	Skipped      int           `json:"skipped"`
	Written      int           `json:"written"`
	Ambiguous    int           `json:"ambiguous"`
	Empty        int           `json:"empty"`
	Failed       int           `json:"failed"`
	Invalid      int           `json:"invalid"`
	Pending      int           `json:"pending"`
	GeocodeCalls int           `json:"geocode_calls"`
	Duration     time.Duration `json:"duration"`
}

// add counts one record by the state it ended in. A record left in a
// non-terminal state, as a dry run leaves it, is pending.
func (s *Summary) add(state model.RecordState) {
	if !state.Terminal() {
		s.Pending++
		return
	}
	switch state {
	case model.RecordSkipped:
		s.Skipped++
	case model.RecordWritten:
		s.Written++
	case model.RecordEmpty:
		s.Empty++
	case model.RecordFailed:
		s.Failed++
	case model.RecordInvalid:
		s.Invalid++
	}
}

// Driver runs the enrichment pipeline sequentially, one record at a time.
type Driver struct {
	geocoder geocode.Client
	store    store.Store
	opts     Options
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates a Driver.
func New(gc geocode.Client, st store.Store, opts Options) *Driver {
	return &Driver{
		geocoder: gc,
		store:    st,
		opts:     opts,
		sleep:    sleepContext,
	}
}

// RunFile streams path through Run.
func (d *Driver) RunFile(ctx context.Context, path string, delim stable.Delimiter) (*Summary, error) {
	r, err := stable.Open(path, delim)
	if err != nil {
		return nil, err
	}
	defer r.Close() //nolint:errcheck
	return d.Run(ctx, r)
}

// Run normalizes and processes every row from rows. See RunStables.
func (d *Driver) Run(ctx context.Context, rows RowSource) (*Summary, error) {
	return d.RunStables(ctx, rowStables{rows: rows})
}

// RunStables processes every stable from src. It returns the summary so
// far along with the error that stopped it: an invalid entry (when
// AbortOnInvalid), a store failure, a read error, or context cancellation.
// Geocode failures are logged and do not stop the run.
func (d *Driver) RunStables(ctx context.Context, src StableSource) (*Summary, error) {
	start := time.Now()
	sum := &Summary{RunID: uuid.New().String()}
	log := zap.L().With(zap.String("run_id", sum.RunID))
	log.Info("pipeline: starting run",
		zap.Duration("delay", d.opts.Delay),
		zap.Bool("abort_on_invalid", d.opts.AbortOnInvalid),
		zap.Bool("dry_run", d.opts.DryRun),
	)

	finish := func(err error) (*Summary, error) {
		sum.Duration = time.Since(start)
		fields := []zap.Field{
			zap.Int("total", sum.Total),
			zap.Int("skipped", sum.Skipped),
			zap.Int("written", sum.Written),
			zap.Int("ambiguous", sum.Ambiguous),
			zap.Int("empty", sum.Empty),
			zap.Int("failed", sum.Failed),
			zap.Int("invalid", sum.Invalid),
			zap.Int("pending", sum.Pending),
			zap.Int("geocode_calls", sum.GeocodeCalls),
			zap.Duration("duration", sum.Duration),
		}
		if err != nil {
			log.Error("pipeline: run stopped", append(fields, zap.Error(err))...)
			return sum, err
		}
		log.Info("pipeline: run complete", fields...)
		return sum, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(eris.Wrap(err, "pipeline: cancelled"))
		}
		if d.opts.Limit > 0 && sum.GeocodeCalls >= d.opts.Limit {
			log.Info("pipeline: geocode limit reached", zap.Int("limit", d.opts.Limit))
			return finish(nil)
		}

		st, err := src.NextStable()
		switch {
		case errors.Is(err, io.EOF):
			return finish(nil)
		case errors.Is(err, stable.ErrInvalidRow):
			sum.Total++
			if d.opts.AbortOnInvalid {
				return finish(err)
			}
			sum.add(model.RecordInvalid)
			continue
		case err != nil:
			return finish(eris.Wrap(err, "pipeline: read input"))
		}
		sum.Total++

		state, err := d.Process(ctx, st, sum)
		if err != nil {
			return finish(err)
		}
		log.Debug("pipeline: record done", zap.String("id", st.ID), zap.String("state", string(state)))
	}
}

// Process takes one normalized stable to a terminal state and updates sum.
// The returned error is fatal for the run; geocode failures are not
// returned, they end in model.RecordFailed.
func (d *Driver) Process(ctx context.Context, st *model.Stable, sum *Summary) (model.RecordState, error) {
	log := zap.L().With(zap.String("id", st.ID), zap.String("name", st.Name))

	exists, err := d.store.Exists(ctx, st.ID)
	if err != nil {
		return model.RecordPending, eris.Wrapf(err, "pipeline: check %s", st.ID)
	}
	if exists {
		log.Debug("already persisted, skipping")
		sum.add(model.RecordSkipped)
		return model.RecordSkipped, nil
	}
	if d.opts.DryRun {
		sum.add(model.RecordPending)
		return model.RecordPending, nil
	}

	log.Info("geocoding", zap.String("county", st.County), zap.Strings("address", st.Address))
	res, gerr := d.geocoder.Geocode(ctx, st.Address)
	sum.GeocodeCalls++

	state := model.RecordGeocoded
	if gerr != nil {
		if ctx.Err() != nil {
			return model.RecordGeocoding, eris.Wrap(ctx.Err(), "pipeline: cancelled")
		}
		log.Error("geocode failed, skipping", zap.Error(gerr))
		state = model.RecordFailed
	} else {
		outcome, err := reconcile.Reconcile(ctx, st, res, d.store)
		if err != nil {
			return model.RecordGeocoded, err
		}
		switch outcome {
		case reconcile.SkippedEmpty:
			state = model.RecordEmpty
		case reconcile.SkippedAmbiguousButWritten:
			sum.Ambiguous++
			state = model.RecordWritten
		default:
			state = model.RecordWritten
		}
	}
	sum.add(state)

	if err := d.sleep(ctx, d.opts.Delay); err != nil {
		return state, eris.Wrap(err, "pipeline: cancelled")
	}
	return state, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
