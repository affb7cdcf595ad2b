// Package registry tracks in-flight verification jobs in process memory.
// It is the source of truth for live progress between database flushes and
// the coordination point for cancellation and slot release.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/leadvalidator/leadvalidator/internal/domain/model"
)

// JobView is a point-in-time snapshot of a tracked job.
type JobView struct {
	ID              string
	Status          model.JobStatus
	TotalRows       int
	ProcessedRows   int
	LastHeartbeat   time.Time
	CancelRequested bool
}

type entry struct {
	id              string
	status          model.JobStatus
	totalRows       int
	processedRows   int
	lastHeartbeat   time.Time
	cancelRequested bool

	releaseOnce sync.Once
	release     func()
}

// Registry is a thread-safe map of live jobs.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

// New creates an empty registry. A nil now function defaults to time.Now.
func New(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		entries: make(map[string]*entry),
		now:     now,
	}
}

// Register adds a queued job to the registry. The release callback returns
// the job's concurrency slot and fires at most once regardless of how many
// paths try to release it.
func (r *Registry) Register(id string, totalRows int, release func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return fmt.Errorf("job %s already registered", id)
	}
	r.entries[id] = &entry{
		id:            id,
		status:        model.JobStatusQueued,
		totalRows:     totalRows,
		lastHeartbeat: r.now(),
		release:       release,
	}
	return nil
}

// MarkRunning transitions a registered job to running.
func (r *Registry) MarkRunning(id string) bool {
	return r.transition(id, model.JobStatusRunning)
}

// MarkTerminal transitions a registered job to a terminal status. Returns
// false when the job is unknown or already terminal, making competing
// finalizers (runner vs stall monitor) idempotent.
func (r *Registry) MarkTerminal(id string, status model.JobStatus) bool {
	if !status.Terminal() {
		return false
	}
	return r.transition(id, status)
}

func (r *Registry) transition(id string, next model.JobStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || !e.status.CanTransitionTo(next) {
		return false
	}
	e.status = next
	return true
}

// UpdateProgress records the processed-row count and heartbeat for a running
// job. Progress on an unknown or terminal job is dropped.
func (r *Registry) UpdateProgress(id string, processedRows int, heartbeat time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.status.Terminal() {
		return
	}
	if processedRows > e.processedRows {
		e.processedRows = processedRows
	}
	if heartbeat.After(e.lastHeartbeat) {
		e.lastHeartbeat = heartbeat
	}
}

// RequestCancel flags a job for cooperative cancellation. Returns false when
// the job is unknown or already terminal.
func (r *Registry) RequestCancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.status.Terminal() {
		return false
	}
	e.cancelRequested = true
	return true
}

// CancelRequested reports whether cancellation has been requested for a job.
func (r *Registry) CancelRequested(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	return ok && e.cancelRequested
}

// ReleaseSlot returns the job's concurrency slot. Safe to call from multiple
// finalizers; only the first call releases.
func (r *Registry) ReleaseSlot(id string) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()

	if !ok || e.release == nil {
		return
	}
	e.releaseOnce.Do(e.release)
}

// Snapshot returns the live view of a job, if tracked.
func (r *Registry) Snapshot(id string) (JobView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return JobView{}, false
	}
	return viewOf(e), true
}

// Running returns snapshots of every job currently in running state.
func (r *Registry) Running() []JobView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var views []JobView
	for _, e := range r.entries {
		if e.status == model.JobStatusRunning {
			views = append(views, viewOf(e))
		}
	}
	return views
}

// Remove drops a job from the registry after its terminal state has been
// persisted, releasing its slot if still held.
func (r *Registry) Remove(id string) {
	r.ReleaseSlot(id)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

func viewOf(e *entry) JobView {
	return JobView{
		ID:              e.id,
		Status:          e.status,
		TotalRows:       e.totalRows,
		ProcessedRows:   e.processedRows,
		LastHeartbeat:   e.lastHeartbeat,
		CancelRequested: e.cancelRequested,
	}
}
