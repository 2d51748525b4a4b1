package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/farmmap/internal/model"
	"github.com/sells-group/farmmap/internal/portal"
	"github.com/sells-group/farmmap/internal/stable"
	"github.com/sells-group/farmmap/internal/store"
	"github.com/sells-group/farmmap/pkg/geocode"
)

var happyAcresRow = []string{"S001", "Happy Acres", "CR", "123 Main St", "", "Westminster", "MD 21157", "555-1234"}

var windyHillRow = []string{"S002", "Windy Hill", "HW", "9 Route 108", "", "Clarksville", "MD 21029", "555-9876"}

var bartholow = geocode.Candidate{
	Latitude:         39.444818,
	Longitude:        -76.979773,
	FormattedAddress: "4785 Bartholow Rd, Eldersburg, MD 21784, USA",
}

func okResult(c ...geocode.Candidate) *geocode.Result {
	status := geocode.StatusOK
	if len(c) > 1 {
		status = geocode.StatusAmbiguous
	}
	return &geocode.Result{Status: status, Candidates: c, Raw: json.RawMessage(`{"status":"OK"}`)}
}

func zeroResult() *geocode.Result {
	return &geocode.Result{Status: geocode.StatusZeroResults, Raw: json.RawMessage(`{"status":"ZERO_RESULTS","results":[]}`)}
}

type harness struct {
	gc     *mockGeocoder
	store  *store.FileStore
	driver *Driver
	sleeps []time.Duration
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	h := &harness{gc: &mockGeocoder{}, store: fs}
	h.driver = New(h.gc, fs, opts)
	h.driver.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return h
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 5*time.Second, opts.Delay)
	assert.True(t, opts.AbortOnInvalid)
	assert.Zero(t, opts.Limit)
	assert.False(t, opts.DryRun)
}

func TestRun_WritesRecord(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.gc.On("Geocode", mock.Anything, []string{"123 Main St", "", "Westminster", "MD 21157"}).
		Return(okResult(bartholow), nil).Once()

	sum, err := h.driver.Run(context.Background(), rows(happyAcresRow))
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Total)
	assert.Equal(t, 1, sum.Written)
	assert.Equal(t, 1, sum.GeocodeCalls)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, []time.Duration{5 * time.Second}, h.sleeps)

	data, err := os.ReadFile(filepath.Join(h.store.Dir(), "S001.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "S001",
		"title": "Happy Acres",
		"position": {"lat": 39.444818, "lng": -76.979773},
		"address": "4785 Bartholow Rd, Eldersburg, MD 21784, USA",
		"phone": "555-1234"
	}`, string(data))
	h.gc.AssertExpectations(t)
}

func TestRun_ZeroResultsWritesNothing(t *testing.T) {
	logs := observeLogs(t)
	h := newHarness(t, DefaultOptions())
	h.gc.On("Geocode", mock.Anything, mock.Anything).Return(zeroResult(), nil).Once()

	sum, err := h.driver.Run(context.Background(), rows(happyAcresRow))
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Empty)
	assert.Zero(t, sum.Written)
	ok, err := h.store.Exists(context.Background(), "S001")
	require.NoError(t, err)
	assert.False(t, ok)

	warns := logs.FilterLevelExact(zapcore.WarnLevel).FilterMessage("no geocode results")
	assert.Equal(t, 1, warns.Len())
	assert.Len(t, h.sleeps, 1)
}

func TestRun_AmbiguousWritesFirst(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	other := geocode.Candidate{Latitude: 1, Longitude: 2, FormattedAddress: "Elsewhere"}
	h.gc.On("Geocode", mock.Anything, mock.Anything).Return(okResult(bartholow, other), nil).Once()

	sum, err := h.driver.Run(context.Background(), rows(happyAcresRow))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Ambiguous)
	assert.Equal(t, 1, sum.Written)

	rec, err := h.store.Get(context.Background(), "S001")
	require.NoError(t, err)
	assert.Equal(t, bartholow.FormattedAddress, rec.Address)
}

func TestRun_SkipsExistingWithoutGeocoding(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	require.NoError(t, h.store.Put(context.Background(), &model.EnrichedRecord{ID: "S001", Title: "Happy Acres"}))

	sum, err := h.driver.Run(context.Background(), rows(happyAcresRow))
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Skipped)
	assert.Zero(t, sum.GeocodeCalls)
	assert.Empty(t, h.sleeps)
	h.gc.AssertNotCalled(t, "Geocode", mock.Anything, mock.Anything)
}

func TestRun_SecondRunIsNoop(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.gc.On("Geocode", mock.Anything, mock.Anything).Return(okResult(bartholow), nil).Twice()

	first, err := h.driver.Run(context.Background(), rows(happyAcresRow, windyHillRow))
	require.NoError(t, err)
	assert.Equal(t, 2, first.Written)

	second, err := h.driver.Run(context.Background(), rows(happyAcresRow, windyHillRow))
	require.NoError(t, err)
	assert.Equal(t, 2, second.Skipped)
	assert.Zero(t, second.GeocodeCalls)
	assert.NotEqual(t, first.RunID, second.RunID)
	h.gc.AssertNumberOfCalls(t, "Geocode", 2)
}

func TestRun_InvalidRowAborts(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	h.gc.On("Geocode", mock.Anything, mock.Anything).Return(okResult(bartholow), nil).Once()
	bad := []string{"S003", "Nowhere", "ZZ", "1 Road", "", "Town", "MD 20000", "555-0000"}

	sum, err := h.driver.Run(context.Background(), rows(happyAcresRow, bad, windyHillRow))
	require.Error(t, err)
	assert.True(t, errors.Is(err, stable.ErrInvalidRow))

	var rowErr *stable.InvalidRowError
	require.True(t, errors.As(err, &rowErr))
	assert.Equal(t, 3, rowErr.Line)

	assert.Equal(t, 1, sum.Written)
	assert.Equal(t, 2, sum.Total)
	h.gc.AssertNumberOfCalls(t, "Geocode", 1)
}

func TestRun_InvalidRowContinue(t *testing.T) {
	opts := DefaultOptions()
	opts.AbortOnInvalid = false
	h := newHarness(t, opts)
	h.gc.On("Geocode", mock.Anything, mock.Anything).Return(okResult(bartholow), nil).Twice()
	short := []string{"S003", "Short Row"}

	sum, err := h.driver.Run(context.Background(), rows(happyAcresRow, short, windyHillRow))
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.Invalid)
	assert.Equal(t, 2, sum.Written)
}

func TestRun_GeocodeErrorSkipsRecord(t *testing.T) {
	logs := observeLogs(t)
	h := newHarness(t, DefaultOptions())
	h.gc.On("Geocode", mock.Anything, []string{"123 Main St", "", "Westminster", "MD 21157"}).
		Return(&geocode.Result{Status: geocode.StatusError}, errors.New("geocode: status REQUEST_DENIED")).Once()
	h.gc.On("Geocode", mock.Anything, []string{"9 Route 108", "", "Clarksville", "MD 21029"}).
		Return(okResult(bartholow), nil).Once()

	sum, err := h.driver.Run(context.Background(), rows(happyAcresRow, windyHillRow))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Written)
	assert.Len(t, h.sleeps, 2)

	ok, err := h.store.Exists(context.Background(), "S001")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, logs.FilterMessage("geocode failed, skipping").Len())
}

func TestRun_Limit(t *testing.T) {
	opts := DefaultOptions()
	opts.Limit = 1
	h := newHarness(t, opts)
	h.gc.On("Geocode", mock.Anything, mock.Anything).Return(okResult(bartholow), nil).Once()

	sum, err := h.driver.Run(context.Background(), rows(happyAcresRow, windyHillRow))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.GeocodeCalls)
	assert.Equal(t, 1, sum.Total)
	h.gc.AssertExpectations(t)
}

func TestRun_DryRun(t *testing.T) {
	opts := DefaultOptions()
	opts.DryRun = true
	h := newHarness(t, opts)
	require.NoError(t, h.store.Put(context.Background(), &model.EnrichedRecord{ID: "S002"}))

	sum, err := h.driver.Run(context.Background(), rows(happyAcresRow, windyHillRow))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Pending)
	assert.Equal(t, 1, sum.Skipped)
	assert.Zero(t, sum.GeocodeCalls)
	h.gc.AssertNotCalled(t, "Geocode", mock.Anything, mock.Anything)
}

func TestRun_ContextCancelled(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := h.driver.Run(ctx, rows(happyAcresRow))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sum.Total)
}

func TestRun_CancelledDuringDelay(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	h.driver.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	h.gc.On("Geocode", mock.Anything, mock.Anything).Return(okResult(bartholow), nil).Once()

	sum, err := h.driver.Run(ctx, rows(happyAcresRow, windyHillRow))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sum.Written)
	h.gc.AssertNumberOfCalls(t, "Geocode", 1)
}

func TestRunFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LicensedStables.csv")
	content := "License\tName\tCounty\tAddr1\tAddr2\tCity\tStateZip\tPhone\n" +
		"S001\tHappy Acres\tCR\t123 Main St\t\tWestminster\tMD 21157\t555-1234\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	h := newHarness(t, DefaultOptions())
	h.gc.On("Geocode", mock.Anything, []string{"123 Main St", "", "Westminster", "MD 21157"}).
		Return(okResult(bartholow), nil).Once()

	sum, err := h.driver.RunFile(context.Background(), path, stable.DelimiterTab)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Written)
}

func TestRunFile_Missing(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	_, err := h.driver.RunFile(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), stable.DelimiterTab)
	assert.Error(t, err)
}

func TestRunStables_PortalListings(t *testing.T) {
	listings := `{"id":"P100","name":"Bay Ridge Farm","address":"4785 Bartholow Rd Eldersburg, MD 21784","phone":"(410)555-0100"}
{"id":"","name":"No Id","address":"1 Nowhere Rd"}
{"id":"P101","name":"Cedar Lane Stables","address":"12 Cedar Ln Monkton, MD 21111"},
`
	opts := DefaultOptions()
	opts.AbortOnInvalid = false
	h := newHarness(t, opts)
	h.gc.On("Geocode", mock.Anything, []string{"4785 Bartholow Rd Eldersburg, MD 21784"}).
		Return(okResult(bartholow), nil).Once()
	h.gc.On("Geocode", mock.Anything, []string{"12 Cedar Ln Monkton, MD 21111"}).
		Return(zeroResult(), nil).Once()

	sum, err := h.driver.RunStables(context.Background(), portal.NewListingReader(strings.NewReader(listings)))
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.Written)
	assert.Equal(t, 1, sum.Empty)
	assert.Equal(t, 1, sum.Invalid)

	rec, err := h.store.Get(context.Background(), "P100")
	require.NoError(t, err)
	assert.Equal(t, "Bay Ridge Farm", rec.Title)
	assert.Equal(t, "(410)555-0100", rec.Phone)
	h.gc.AssertExpectations(t)
}

func TestRunStables_InvalidListingAborts(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	src := portal.NewListingReader(strings.NewReader("{\"id\":\"P1\",\"name\":\"x\"}\n"))

	sum, err := h.driver.RunStables(context.Background(), src)
	require.Error(t, err)
	var rowErr *stable.InvalidRowError
	require.True(t, errors.As(err, &rowErr))
	assert.Equal(t, 1, rowErr.Line)
	assert.Equal(t, "empty address", rowErr.Reason)
	assert.Equal(t, 1, sum.Total)
	h.gc.AssertNotCalled(t, "Geocode", mock.Anything, mock.Anything)
}

func TestRun_RecordStatesReachLog(t *testing.T) {
	logs := observeLogs(t)
	h := newHarness(t, DefaultOptions())
	require.NoError(t, h.store.Put(context.Background(), &model.EnrichedRecord{ID: "S001"}))
	h.gc.On("Geocode", mock.Anything, mock.Anything).Return(okResult(bartholow), nil).Once()

	_, err := h.driver.Run(context.Background(), rows(happyAcresRow, windyHillRow))
	require.NoError(t, err)

	done := logs.FilterMessage("pipeline: record done").AllUntimed()
	require.Len(t, done, 2)
	assert.Equal(t, string(model.RecordSkipped), done[0].ContextMap()["state"])
	assert.Equal(t, string(model.RecordWritten), done[1].ContextMap()["state"])
}

func TestSummaryAdd(t *testing.T) {
	var sum Summary
	for _, st := range []model.RecordState{
		model.RecordSkipped,
		model.RecordWritten,
		model.RecordWritten,
		model.RecordEmpty,
		model.RecordFailed,
		model.RecordInvalid,
		model.RecordPending,
		model.RecordGeocoding,
	} {
		sum.add(st)
	}
	assert.Equal(t, Summary{Skipped: 1, Written: 2, Empty: 1, Failed: 1, Invalid: 1, Pending: 2}, sum)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
