package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadvalidator/leadvalidator/internal/domain/model"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRegisterAndSnapshot(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	reg := New(fixedClock(start))

	require.NoError(t, reg.Register("job-1", 100, nil))

	view, ok := reg.Snapshot("job-1")
	require.True(t, ok)
	assert.Equal(t, model.JobStatusQueued, view.Status)
	assert.Equal(t, 100, view.TotalRows)
	assert.Equal(t, 0, view.ProcessedRows)
	assert.Equal(t, start, view.LastHeartbeat)

	assert.Error(t, reg.Register("job-1", 50, nil), "duplicate registration rejected")

	_, ok = reg.Snapshot("missing")
	assert.False(t, ok)
}

func TestProgressAndHeartbeat(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	reg := New(fixedClock(start))
	require.NoError(t, reg.Register("job-1", 100, nil))
	require.True(t, reg.MarkRunning("job-1"))

	later := start.Add(time.Minute)
	reg.UpdateProgress("job-1", 40, later)

	view, _ := reg.Snapshot("job-1")
	assert.Equal(t, 40, view.ProcessedRows)
	assert.Equal(t, later, view.LastHeartbeat)

	// Stale updates never move progress or heartbeat backwards.
	reg.UpdateProgress("job-1", 10, start)
	view, _ = reg.Snapshot("job-1")
	assert.Equal(t, 40, view.ProcessedRows)
	assert.Equal(t, later, view.LastHeartbeat)
}

func TestTerminalTransitionsAreMonotone(t *testing.T) {
	reg := New(nil)
	require.NoError(t, reg.Register("job-1", 10, nil))
	require.True(t, reg.MarkRunning("job-1"))

	assert.False(t, reg.MarkTerminal("job-1", model.JobStatusRunning), "non-terminal status rejected")
	assert.True(t, reg.MarkTerminal("job-1", model.JobStatusCompleted))
	assert.False(t, reg.MarkTerminal("job-1", model.JobStatusFailed), "second finalizer loses")

	reg.UpdateProgress("job-1", 99, time.Now())
	view, _ := reg.Snapshot("job-1")
	assert.Equal(t, 0, view.ProcessedRows, "progress after terminal is dropped")
}

func TestCancelRequest(t *testing.T) {
	reg := New(nil)
	require.NoError(t, reg.Register("job-1", 10, nil))

	assert.False(t, reg.CancelRequested("job-1"))
	assert.True(t, reg.RequestCancel("job-1"))
	assert.True(t, reg.CancelRequested("job-1"))

	require.True(t, reg.MarkRunning("job-1"))
	require.True(t, reg.MarkTerminal("job-1", model.JobStatusCanceled))
	assert.False(t, reg.RequestCancel("job-1"), "terminal job cannot be canceled again")

	assert.False(t, reg.RequestCancel("missing"))
}

func TestReleaseSlotFiresOnce(t *testing.T) {
	var mu sync.Mutex
	released := 0
	release := func() {
		mu.Lock()
		released++
		mu.Unlock()
	}

	reg := New(nil)
	require.NoError(t, reg.Register("job-1", 10, release))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.ReleaseSlot("job-1")
		}()
	}
	wg.Wait()
	reg.Remove("job-1")

	assert.Equal(t, 1, released)
}

func TestRunningListsOnlyRunningJobs(t *testing.T) {
	reg := New(nil)
	require.NoError(t, reg.Register("queued", 1, nil))
	require.NoError(t, reg.Register("running", 1, nil))
	require.NoError(t, reg.Register("done", 1, nil))
	require.True(t, reg.MarkRunning("running"))
	require.True(t, reg.MarkRunning("done"))
	require.True(t, reg.MarkTerminal("done", model.JobStatusCompleted))

	running := reg.Running()
	require.Len(t, running, 1)
	assert.Equal(t, "running", running[0].ID)
}

func TestRemoveReleasesSlot(t *testing.T) {
	released := false
	reg := New(nil)
	require.NoError(t, reg.Register("job-1", 1, func() { released = true }))

	reg.Remove("job-1")
	assert.True(t, released)

	_, ok := reg.Snapshot("job-1")
	assert.False(t, ok)
}
