package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBlobArchiver struct {
	archived int64
	err      error
	cutoffs  []time.Time
}

func (f *fakeBlobArchiver) ArchiveTradeEvents(_ context.Context, before time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, before)
	return f.archived, f.err
}

type fakePruner struct {
	deleted int64
	err     error
	calls   int
}

func (f *fakePruner) DeleteBefore(context.Context, time.Time) (int64, error) {
	f.calls++
	return f.deleted, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestArchiverRunPrunesAfterUpload(t *testing.T) {
	blob := &fakeBlobArchiver{archived: 5}
	pruner := &fakePruner{deleted: 5}

	a := NewArchiver(blob, pruner, 90, discardLogger())
	require.NoError(t, a.Run(context.Background()))

	require.Len(t, blob.cutoffs, 1)
	assert.Equal(t, 1, pruner.calls)

	// Cutoff is retention days back from now.
	want := time.Now().UTC().Add(-90 * 24 * time.Hour)
	assert.WithinDuration(t, want, blob.cutoffs[0], time.Minute)
}

func TestArchiverRunSkipsPruneWhenNothingArchived(t *testing.T) {
	blob := &fakeBlobArchiver{archived: 0}
	pruner := &fakePruner{}

	a := NewArchiver(blob, pruner, 90, discardLogger())
	require.NoError(t, a.Run(context.Background()))
	assert.Zero(t, pruner.calls)
}

func TestArchiverRunKeepsRowsOnUploadFailure(t *testing.T) {
	blob := &fakeBlobArchiver{archived: 3, err: errors.New("bucket unavailable")}
	pruner := &fakePruner{}

	a := NewArchiver(blob, pruner, 90, discardLogger())
	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unavailable")

	// Rows must survive a failed upload.
	assert.Zero(t, pruner.calls)
}

func TestArchiverRunNilPruner(t *testing.T) {
	blob := &fakeBlobArchiver{archived: 7}

	a := NewArchiver(blob, nil, 30, discardLogger())
	require.NoError(t, a.Run(context.Background()))
}

func TestParseCron(t *testing.T) {
	c, err := parseCron("0 3 * * *")
	require.NoError(t, err)
	assert.True(t, c.matchesTime(time.Date(2026, 8, 28, 3, 0, 0, 0, time.UTC)))
	assert.False(t, c.matchesTime(time.Date(2026, 8, 28, 3, 1, 0, 0, time.UTC)))
	assert.False(t, c.matchesTime(time.Date(2026, 8, 28, 4, 0, 0, 0, time.UTC)))

	c, err = parseCron("0,30 * 1,15 * *")
	require.NoError(t, err)
	assert.True(t, c.matchesTime(time.Date(2026, 9, 1, 12, 30, 0, 0, time.UTC)))
	assert.False(t, c.matchesTime(time.Date(2026, 9, 2, 12, 30, 0, 0, time.UTC)))
}

func TestParseCronErrors(t *testing.T) {
	_, err := parseCron("0 3 * *")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must have 5 fields")

	_, err = parseCron("x 3 * * *")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing minute field")
}

func TestNextCronTime(t *testing.T) {
	after := time.Date(2026, 8, 28, 14, 25, 30, 0, time.UTC)

	// Daily at 03:00: next run is tomorrow.
	next, err := nextCronTime("0 3 * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 29, 3, 0, 0, 0, time.UTC), next)

	// Every half hour: next boundary after 14:25.
	next, err = nextCronTime("0,30 * * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC), next)

	// An exact match of 'after' itself is skipped; the search starts at the
	// next minute.
	exact := time.Date(2026, 8, 28, 3, 0, 0, 0, time.UTC)
	next, err = nextCronTime("0 3 * * *", exact)
	require.NoError(t, err)
	assert.Equal(t, exact.Add(24*time.Hour), next)
}

func TestNextCronTimeWeekday(t *testing.T) {
	// 2026-08-28 is a Friday (weekday 5); next Sunday run is the 30th.
	after := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	next, err := nextCronTime("0 0 * * 0", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), next)
}

func TestNextCronTimeUnsatisfiable(t *testing.T) {
	// February 30th never exists.
	_, err := nextCronTime("0 0 30 2 *", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no matching cron time")
}
