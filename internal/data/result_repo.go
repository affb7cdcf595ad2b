package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leadvalidator/leadvalidator/internal/core"
	"github.com/leadvalidator/leadvalidator/internal/domain/model"
)

// ResultRepo provides read access to per-row verification results.
type ResultRepo struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewResultRepo creates a new ResultRepo instance with the given database connection.
func NewResultRepo(db *sql.DB, logger *slog.Logger) *ResultRepo {
	return &ResultRepo{db: db, logger: logger}
}

var _ core.ResultRepository = (*ResultRepo)(nil)

const resultColumns = `
  job_id,
  row_index,
  email,
  status,
  reason,
  score,
  risk_factors,
  payload,
  created_at
`

// ListByJob returns the result rows for a job matching the filter, ordered by
// row index. The scores filter returns every row; the caller presents the
// score column.
func (r *ResultRepo) ListByJob(ctx context.Context, jobID string, filter model.ResultFilter) ([]*model.ResultRow, error) {
	query := `SELECT ` + resultColumns + ` FROM job_results WHERE job_id = $1`
	args := []any{jobID}

	if statuses := filter.Statuses(); len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, s := range statuses {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, s)
		}
		query += ` AND status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY row_index ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results for job %s: %w", jobID, err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var results []*model.ResultRow
	for rows.Next() {
		row, err := scanResultRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list results for job %s: %w", jobID, err)
	}
	return results, nil
}

// CountByJob returns the number of persisted result rows for a job.
func (r *ResultRepo) CountByJob(ctx context.Context, jobID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM job_results WHERE job_id = $1`, jobID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count results for job %s: %w", jobID, err)
	}
	return count, nil
}

// insertResultRow writes one result row inside an existing transaction.
// Shared with JobRepo.FlushProgress so batch inserts and progress updates
// commit together.
func insertResultRow(ctx context.Context, tx *sql.Tx, row *model.ResultRow) error {
	factors, err := json.Marshal(row.RiskFactors)
	if err != nil {
		return fmt.Errorf("encode risk factors: %w", err)
	}

	var payload []byte
	if len(row.Payload) > 0 {
		payload, err = json.Marshal(row.Payload)
		if err != nil {
			return fmt.Errorf("encode row payload: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO job_results (job_id, row_index, email, status, reason, score, risk_factors, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (job_id, row_index) DO NOTHING`,
		row.JobID, row.RowIndex, row.Email, row.Status, row.Reason, row.Score, factors, payload, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert result row %d for job %s: %w", row.RowIndex, row.JobID, err)
	}
	return nil
}

func scanResultRow(s rowScanner) (*model.ResultRow, error) {
	var (
		row     model.ResultRow
		factors []byte
		payload []byte
	)

	err := s.Scan(
		&row.JobID,
		&row.RowIndex,
		&row.Email,
		&row.Status,
		&row.Reason,
		&row.Score,
		&factors,
		&payload,
		&row.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(factors) > 0 {
		if err := json.Unmarshal(factors, &row.RiskFactors); err != nil {
			return nil, fmt.Errorf("decode risk factors: %w", err)
		}
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &row.Payload); err != nil {
			return nil, fmt.Errorf("decode row payload: %w", err)
		}
	}

	return &row, nil
}
