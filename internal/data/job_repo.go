// Package data provides the Postgres and Redis implementations of the core
// repository ports. All SQL lives here; services never see a *sql.DB.
package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leadvalidator/leadvalidator/internal/core"
	"github.com/leadvalidator/leadvalidator/internal/domain/model"
)

// JobRepo provides database operations for job records.
type JobRepo struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection.
func NewJobRepo(db *sql.DB, logger *slog.Logger) *JobRepo {
	return &JobRepo{db: db, logger: logger}
}

var _ core.JobRepository = (*JobRepo)(nil)

const jobColumns = `
  id,
  name,
  filename,
  status,
  total_rows,
  processed_rows,
  summary,
  error_message,
  last_heartbeat,
  created_at,
  completed_at
`

// Create inserts a new job record.
func (r *JobRepo) Create(ctx context.Context, job *model.Job) error {
	summary, err := marshalSummary(job.Summary)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, name, filename, status, total_rows, processed_rows, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.Name, job.Filename, job.Status, job.TotalRows, job.ProcessedRows, summary, job.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateJob
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID returns a job by ID, or model.ErrJobNotFound.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// List returns jobs ordered by creation time descending.
func (r *JobRepo) List(ctx context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Delete removes a job and, via cascade, its result rows.
func (r *JobRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if affected == 0 {
		return model.ErrJobNotFound
	}
	return nil
}

// MarkRunning transitions queued -> running and stamps the first heartbeat.
// Returns false when the job is not in queued state (already terminal or
// already running), which callers treat as losing the race.
func (r *JobRepo) MarkRunning(ctx context.Context, id string, heartbeat time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $2, last_heartbeat = $3
		WHERE id = $1 AND status = $4`,
		id, model.JobStatusRunning, heartbeat, model.JobStatusQueued)
	if err != nil {
		return false, fmt.Errorf("mark job %s running: %w", id, err)
	}
	return oneRowAffected(res)
}

// FlushProgress persists a result batch, progress counters, heartbeat and the
// incremental summary in one transaction.
func (r *JobRepo) FlushProgress(ctx context.Context, params core.FlushProgressParams) error {
	summary, err := marshalSummary(params.Summary)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin flush tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, row := range params.Rows {
		if err := insertResultRow(ctx, tx, row); err != nil {
			return err
		}
	}

	// processed_rows never decreases: GREATEST guards against an out-of-order
	// flush racing a terminal write.
	_, err = tx.ExecContext(ctx, `
		UPDATE jobs
		SET processed_rows = GREATEST(processed_rows, $2),
		    last_heartbeat = $3,
		    summary = $4
		WHERE id = $1 AND status = $5`,
		params.JobID, params.ProcessedRows, params.Heartbeat, summary, model.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("flush progress for job %s: %w", params.JobID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit flush tx: %w", err)
	}
	return nil
}

// Complete transitions running -> completed.
func (r *JobRepo) Complete(ctx context.Context, params core.CompleteJobParams) (bool, error) {
	summary, err := marshalSummary(params.Summary)
	if err != nil {
		return false, err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $2, summary = $3, completed_at = $4
		WHERE id = $1 AND status = $5`,
		params.JobID, model.JobStatusCompleted, summary, params.CompletedAt, model.JobStatusRunning)
	if err != nil {
		return false, fmt.Errorf("complete job %s: %w", params.JobID, err)
	}
	return oneRowAffected(res)
}

// Fail transitions a non-terminal job to failed with an error message.
func (r *JobRepo) Fail(ctx context.Context, id, errMsg string, completedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $2, error_message = $3, completed_at = $4
		WHERE id = $1 AND status IN ($5, $6)`,
		id, model.JobStatusFailed, errMsg, completedAt, model.JobStatusQueued, model.JobStatusRunning)
	if err != nil {
		return false, fmt.Errorf("fail job %s: %w", id, err)
	}
	return oneRowAffected(res)
}

// Cancel transitions a non-terminal job to canceled.
func (r *JobRepo) Cancel(ctx context.Context, id string, completedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $2, completed_at = $3
		WHERE id = $1 AND status IN ($4, $5)`,
		id, model.JobStatusCanceled, completedAt, model.JobStatusQueued, model.JobStatusRunning)
	if err != nil {
		return false, fmt.Errorf("cancel job %s: %w", id, err)
	}
	return oneRowAffected(res)
}

// FailOrphaned fails every job still queued or running in the store.
func (r *JobRepo) FailOrphaned(ctx context.Context, errMsg string, completedAt time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, error_message = $2, completed_at = $3
		WHERE status IN ($4, $5)`,
		model.JobStatusFailed, errMsg, completedAt, model.JobStatusQueued, model.JobStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("fail orphaned jobs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("fail orphaned jobs: %w", err)
	}
	return affected, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanJob.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(s rowScanner) (*model.Job, error) {
	var (
		job       model.Job
		summary   []byte
		errMsg    sql.NullString
		heartbeat sql.NullTime
		completed sql.NullTime
	)

	err := s.Scan(
		&job.ID,
		&job.Name,
		&job.Filename,
		&job.Status,
		&job.TotalRows,
		&job.ProcessedRows,
		&summary,
		&errMsg,
		&heartbeat,
		&job.CreatedAt,
		&completed,
	)
	if err != nil {
		return nil, err
	}

	if len(summary) > 0 {
		var sum model.Summary
		if err := json.Unmarshal(summary, &sum); err != nil {
			return nil, fmt.Errorf("decode job summary: %w", err)
		}
		job.Summary = &sum
	}
	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}
	if heartbeat.Valid {
		t := heartbeat.Time
		job.LastHeartbeat = &t
	}
	if completed.Valid {
		t := completed.Time
		job.CompletedAt = &t
	}

	return &job, nil
}

func marshalSummary(s *model.Summary) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode job summary: %w", err)
	}
	return raw, nil
}

func oneRowAffected(res sql.Result) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
