package service

import (
	"context"
	"sync"
	"time"

	"github.com/leadvalidator/leadvalidator/internal/core"
	"github.com/leadvalidator/leadvalidator/internal/domain/model"
	"github.com/leadvalidator/leadvalidator/internal/verify"
)

// mockJobRepo is an in-memory JobRepository with the same monotone
// transition semantics as the Postgres implementation.
type mockJobRepo struct {
	mu      sync.Mutex
	jobs    map[string]*model.Job
	results map[string][]*model.ResultRow

	flushErr   error
	flushCalls int
}

func newMockJobRepo() *mockJobRepo {
	return &mockJobRepo{
		jobs:    make(map[string]*model.Job),
		results: make(map[string][]*model.ResultRow),
	}
}

func (m *mockJobRepo) Create(_ context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *mockJobRepo) GetByID(_ context.Context, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *mockJobRepo) List(_ context.Context, _ model.JobListOptions) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, job := range m.jobs {
		cp := *job
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockJobRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return model.ErrJobNotFound
	}
	delete(m.jobs, id)
	delete(m.results, id)
	return nil
}

func (m *mockJobRepo) MarkRunning(_ context.Context, id string, heartbeat time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status != model.JobStatusQueued {
		return false, nil
	}
	job.Status = model.JobStatusRunning
	job.LastHeartbeat = &heartbeat
	return true, nil
}

func (m *mockJobRepo) FlushProgress(_ context.Context, params core.FlushProgressParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushCalls++
	if m.flushErr != nil {
		return m.flushErr
	}
	job, ok := m.jobs[params.JobID]
	if !ok || job.Status != model.JobStatusRunning {
		return nil
	}
	m.results[params.JobID] = append(m.results[params.JobID], params.Rows...)
	if params.ProcessedRows > job.ProcessedRows {
		job.ProcessedRows = params.ProcessedRows
	}
	hb := params.Heartbeat
	job.LastHeartbeat = &hb
	job.Summary = params.Summary
	return nil
}

func (m *mockJobRepo) Complete(_ context.Context, params core.CompleteJobParams) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[params.JobID]
	if !ok || job.Status != model.JobStatusRunning {
		return false, nil
	}
	job.Status = model.JobStatusCompleted
	job.Summary = params.Summary
	at := params.CompletedAt
	job.CompletedAt = &at
	return true, nil
}

func (m *mockJobRepo) Fail(_ context.Context, id, errMsg string, completedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status.Terminal() {
		return false, nil
	}
	job.Status = model.JobStatusFailed
	job.ErrorMessage = &errMsg
	job.CompletedAt = &completedAt
	return true, nil
}

func (m *mockJobRepo) Cancel(_ context.Context, id string, completedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status.Terminal() {
		return false, nil
	}
	job.Status = model.JobStatusCanceled
	job.CompletedAt = &completedAt
	return true, nil
}

func (m *mockJobRepo) FailOrphaned(_ context.Context, errMsg string, completedAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, job := range m.jobs {
		if job.Status.Terminal() {
			continue
		}
		job.Status = model.JobStatusFailed
		msg := errMsg
		job.ErrorMessage = &msg
		at := completedAt
		job.CompletedAt = &at
		count++
	}
	return count, nil
}

func (m *mockJobRepo) storedJob(id string) *model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	cp := *job
	return &cp
}

func (m *mockJobRepo) storedResults(id string) []*model.ResultRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.ResultRow(nil), m.results[id]...)
}

func (m *mockJobRepo) setFlushErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushErr = err
}

// mockResultRepo serves results straight out of the mockJobRepo.
type mockResultRepo struct {
	repo *mockJobRepo
}

func (m *mockResultRepo) ListByJob(_ context.Context, jobID string, filter model.ResultFilter) ([]*model.ResultRow, error) {
	var out []*model.ResultRow
	for _, row := range m.repo.storedResults(jobID) {
		if filter.Matches(row.Status) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *mockResultRepo) CountByJob(_ context.Context, jobID string) (int, error) {
	return len(m.repo.storedResults(jobID)), nil
}

// mockRetentionRepo scripts per-call delete counts.
type mockRetentionRepo struct {
	mu          sync.Mutex
	deleteBatch []int64
	trimBatch   []int64
	deleteCalls int
	trimCalls   int
}

func (m *mockRetentionRepo) DeleteOldJobs(_ context.Context, _ core.DeleteOldJobsParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	if len(m.deleteBatch) == 0 {
		return 0, nil
	}
	count := m.deleteBatch[0]
	m.deleteBatch = m.deleteBatch[1:]
	return count, nil
}

func (m *mockRetentionRepo) TrimJobsOverLimit(_ context.Context, _, _ int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trimCalls++
	if len(m.trimBatch) == 0 {
		return 0, nil
	}
	count := m.trimBatch[0]
	m.trimBatch = m.trimBatch[1:]
	return count, nil
}

// gatedVerifier blocks each Verify call until released, so tests can hold a
// job mid-run deterministically. Each call announces itself on entered
// before blocking.
type gatedVerifier struct {
	entered chan struct{}
	gate    chan struct{}
	outcome verify.Outcome
}

func newGatedVerifier(outcome verify.Outcome) *gatedVerifier {
	return &gatedVerifier{
		entered: make(chan struct{}, 128),
		gate:    make(chan struct{}),
		outcome: outcome,
	}
}

func (v *gatedVerifier) Verify(ctx context.Context, _ string) verify.Outcome {
	v.entered <- struct{}{}
	select {
	case <-v.gate:
	case <-ctx.Done():
	}
	return v.outcome
}

// awaitCall blocks until a Verify call has started.
func (v *gatedVerifier) awaitCall() {
	<-v.entered
}

// releaseOne lets exactly one pending Verify call through.
func (v *gatedVerifier) releaseOne() {
	v.gate <- struct{}{}
}

// releaseAll lets every current and future call through.
func (v *gatedVerifier) releaseAll() {
	close(v.gate)
}

// instantVerifier returns a fixed outcome without blocking.
type instantVerifier struct {
	outcome verify.Outcome
}

func (v *instantVerifier) Verify(_ context.Context, _ string) verify.Outcome {
	return v.outcome
}

// funcVerifier maps each address to an outcome.
type funcVerifier func(email string) verify.Outcome

func (f funcVerifier) Verify(_ context.Context, email string) verify.Outcome {
	return f(email)
}
