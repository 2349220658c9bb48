package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedPool int

func (p fixedPool) Size() int { return int(p) }

func TestTrackerAccumulates(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(nil, nil)
	_, ok := tracker.Snapshot()
	require.False(t, ok)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tracker.Emit(Event{RunID: "r1", TS: start, Stage: StageRunStart, Query: "go", CurrentPage: 0, TotalPages: 4})
	tracker.Emit(Event{RunID: "r1", TS: start.Add(time.Second), Stage: StageBatchDone, Query: "go",
		CurrentPage: 2, TotalPages: 4, PagesFetched: 2, ResultsAppended: 5, ResultsTotal: 5})
	tracker.Emit(Event{RunID: "r1", TS: start.Add(2 * time.Second), Stage: StageBatchDone, Query: "go",
		CurrentPage: 4, TotalPages: 4, PagesFetched: 1, PagesAbandoned: 1, ResultsAppended: 3, ResultsTotal: 8})

	snap, ok := tracker.Snapshot()
	require.True(t, ok)
	assert.Equal(t, "r1", snap.RunID)
	assert.Equal(t, StageBatchDone, snap.Stage)
	assert.Equal(t, 4, snap.CurrentPage)
	assert.Equal(t, 3, snap.PagesFetched)
	assert.Equal(t, 1, snap.PagesAbandoned)
	assert.Equal(t, 8, snap.ResultsAppended)
	assert.Equal(t, 8, snap.ResultsTotal)
	assert.Equal(t, start, snap.StartedAt)
}

func TestTrackerDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(fixedPool(3), nil)
	tracker.Emit(Event{Stage: StageRunStart, TS: time.Now()})
	tracker.Emit(Event{RunID: "r1", Stage: StageRunError, TS: time.Now()})
	_, ok := tracker.Snapshot()
	assert.False(t, ok)

	tracker.Emit(Event{RunID: "r1", Stage: StageRunError, TS: time.Now(), Err: "no proxies available"})
	snap, ok := tracker.Snapshot()
	require.True(t, ok)
	assert.Equal(t, 3, snap.ProxyPoolSize)
	assert.Equal(t, "no proxies available", snap.Err)
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	assert.NoError(t, Event{RunID: "r", TS: now, Stage: StageRunDone}.Validate())
	assert.Error(t, Event{RunID: "r", TS: now, Stage: "BOGUS"}.Validate())
	assert.Error(t, Event{RunID: "r", Stage: StageRunDone}.Validate())
	assert.Error(t, Event{RunID: "r", TS: now, Stage: StageBatchDone, CurrentPage: 5, TotalPages: 4}.Validate())
}
