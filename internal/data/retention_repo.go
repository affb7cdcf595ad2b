package data

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leadvalidator/leadvalidator/internal/core"
)

// RetentionRepo deletes expired job records in bounded batches. Result rows
// go with them through the foreign-key cascade.
type RetentionRepo struct {
	db           *sql.DB
	logger       *slog.Logger
	timeProvider TimeProvider
}

// NewRetentionRepo creates a new RetentionRepo instance.
func NewRetentionRepo(db *sql.DB, logger *slog.Logger, tp TimeProvider) *RetentionRepo {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &RetentionRepo{db: db, logger: logger, timeProvider: tp}
}

var _ core.RetentionRepository = (*RetentionRepo)(nil)

// DeleteOldJobs removes up to BatchSize terminal jobs whose completion is
// older than MaxAge. Callers loop until it returns zero.
func (r *RetentionRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldJobsParams) (int64, error) {
	if len(params.Statuses) == 0 {
		return 0, nil
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	cutoff := r.timeProvider.Now().Add(-params.MaxAge)

	statuses := make([]string, len(params.Statuses))
	for i, s := range params.Statuses {
		statuses[i] = string(s)
	}

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status = ANY($1)
			  AND completed_at IS NOT NULL
			  AND completed_at < $2
			ORDER BY completed_at ASC
			LIMIT $3
		)`, statuses, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete old jobs: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old jobs: %w", err)
	}
	return affected, nil
}

// TrimJobsOverLimit removes up to batchSize of the oldest terminal jobs
// beyond maxJobs, keeping the most recent records. In-flight jobs never
// count against the cap. Callers loop until it returns zero.
func (r *RetentionRepo) TrimJobsOverLimit(ctx context.Context, maxJobs, batchSize int) (int64, error) {
	if maxJobs <= 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status IN ('completed', 'failed', 'canceled')
			ORDER BY created_at DESC, id DESC
			OFFSET $1
			LIMIT $2
		)`, maxJobs, batchSize)
	if err != nil {
		return 0, fmt.Errorf("trim jobs over limit: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("trim jobs over limit: %w", err)
	}
	return affected, nil
}
