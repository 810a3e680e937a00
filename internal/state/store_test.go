package state_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chemview-archive/harvester/internal/state"
)

// fakeClock returns a fixed, settable time.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func newTestStore(t *testing.T) (*state.Store, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store, err := state.Open(filepath.Join(t.TempDir(), "harvest.db"), clk)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, clk
}

func TestGetStatusMissingPair(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	_, err := store.GetStatus(context.Background(), "71-43-2", "section5_html")
	require.ErrorIs(t, err, state.ErrNotFound)
}

func TestRecordSuccessThenNeedsFetchIsFalse(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordSuccess(ctx, "71-43-2", "section5_html", "/archive/CAS-71-43-2/report.html", "https://example.org/report?ch=71-43-2"))

	rec, err := store.GetStatus(ctx, "71-43-2", "section5_html")
	require.NoError(t, err)
	assert.True(t, rec.Succeeded())
	assert.Equal(t, "/archive/CAS-71-43-2/report.html", rec.LocalPath)
	assert.Equal(t, "https://example.org/report?ch=71-43-2", rec.NavigateVia)
	assert.True(t, rec.LastFailure.IsZero())

	for _, interval := range []time.Duration{0, time.Hour, 240 * time.Hour} {
		need, err := store.NeedsFetch(ctx, "71-43-2", "section5_html", interval)
		require.NoError(t, err)
		assert.False(t, need, "success must never be retried (interval %s)", interval)
	}
}

func TestRecordSuccessHealsFailure(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordFailure(ctx, "50-00-0", "section5_pdf", "https://example.org/pdf"))
	require.NoError(t, store.RecordSuccess(ctx, "50-00-0", "section5_pdf", "/archive/CAS-50-00-0/notice.pdf", "https://example.org/pdf"))

	rec, err := store.GetStatus(ctx, "50-00-0", "section5_pdf")
	require.NoError(t, err)
	assert.True(t, rec.Succeeded())
	assert.True(t, rec.LastFailure.IsZero(), "success must clear the failure time")
}

func TestRecordFailurePreservesSuccess(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordSuccess(ctx, "67-56-1", "section5_html", "/archive/CAS-67-56-1/report.html", "https://example.org/a"))
	require.NoError(t, store.RecordFailure(ctx, "67-56-1", "section5_html", "https://example.org/b"))

	rec, err := store.GetStatus(ctx, "67-56-1", "section5_html")
	require.NoError(t, err)
	assert.True(t, rec.Succeeded(), "failure must not clear an earlier success")
	assert.Equal(t, "/archive/CAS-67-56-1/report.html", rec.LocalPath)
	assert.False(t, rec.LastFailure.IsZero())

	need, err := store.NeedsFetch(ctx, "67-56-1", "section5_html", time.Hour)
	require.NoError(t, err)
	assert.False(t, need, "a flaky artifact that once succeeded is done")
}

func TestNeedsFetchUnknownPair(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	need, err := store.NeedsFetch(context.Background(), "108-88-3", "section5_html", 9999*time.Hour)
	require.NoError(t, err)
	assert.True(t, need)
}

func TestNeedsFetchCooldownWindow(t *testing.T) {
	t.Parallel()

	store, clk := newTestStore(t)
	ctx := context.Background()
	const interval = 12 * time.Hour

	require.NoError(t, store.RecordFailure(ctx, "7664-93-9", "section5_pdf", "https://example.org/pdf"))

	clk.now = clk.now.Add(interval - time.Minute)
	need, err := store.NeedsFetch(ctx, "7664-93-9", "section5_pdf", interval)
	require.NoError(t, err)
	assert.False(t, need, "still inside the cool-down window")

	clk.now = clk.now.Add(2 * time.Minute)
	need, err = store.NeedsFetch(ctx, "7664-93-9", "section5_pdf", interval)
	require.NoError(t, err)
	assert.True(t, need, "cool-down elapsed, retry permitted")
}

func TestNeedsFetchIncompleteRecord(t *testing.T) {
	t.Parallel()

	store, clk := newTestStore(t)
	ctx := context.Background()

	// A failure healed by nothing yet, then cleared failure via success on a
	// different type must not leak across types.
	require.NoError(t, store.RecordFailure(ctx, "64-17-5", "section5_pdf", ""))
	clk.now = clk.now.Add(48 * time.Hour)
	need, err := store.NeedsFetch(ctx, "64-17-5", "section5_pdf", 12*time.Hour)
	require.NoError(t, err)
	assert.True(t, need)

	need, err = store.NeedsFetch(ctx, "64-17-5", "section5_html", 12*time.Hour)
	require.NoError(t, err)
	assert.True(t, need, "sibling artifact type has no record")
}

func TestNeedsFetchStoreErrorIsNotADecision(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Now().UTC()}
	store, err := state.Open(filepath.Join(t.TempDir(), "harvest.db"), clk)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.NeedsFetch(context.Background(), "71-43-2", "section5_html", time.Hour)
	require.Error(t, err)
	assert.False(t, errors.Is(err, state.ErrNotFound))
}

func TestSummaryAndFailures(t *testing.T) {
	t.Parallel()

	store, clk := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordSuccess(ctx, "71-43-2", "section5_html", "/a", ""))
	require.NoError(t, store.RecordFailure(ctx, "50-00-0", "section5_html", "https://example.org/x"))
	require.NoError(t, store.RecordFailure(ctx, "64-17-5", "section5_pdf", ""))

	summaries, err := store.Summary(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "section5_html", summaries[0].ArtifactType)
	assert.Equal(t, 1, summaries[0].Succeeded)
	assert.Equal(t, 1, summaries[0].Failed)
	assert.Equal(t, "section5_pdf", summaries[1].ArtifactType)
	assert.Equal(t, 1, summaries[1].Failed)

	failures, err := store.Failures(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, failures, 2)

	// Only failures after the cutoff.
	failures, err = store.Failures(ctx, clk.now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestClear(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordSuccess(ctx, "71-43-2", "section5_html", "/a", ""))
	require.NoError(t, store.RecordFailure(ctx, "50-00-0", "section5_pdf", ""))

	n, err := store.Clear(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	_, err = store.GetStatus(ctx, "71-43-2", "section5_html")
	require.ErrorIs(t, err, state.ErrNotFound)
}
