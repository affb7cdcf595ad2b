package data

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateJob is returned when creating a job whose ID already exists.
var ErrDuplicateJob = errors.New("job already exists")

// IsRetryable reports whether a database error is worth retrying: connection
// failures, serialization conflicts and deadlocks. Constraint violations and
// other data errors are permanent.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		// Non-Postgres errors from database/sql (driver-level connection
		// drops) are treated as retryable; the attempt cap bounds the damage.
		return true
	}
	switch {
	case pgerrcode.IsConnectionException(pgErr.Code):
		return true
	case pgErr.Code == pgerrcode.SerializationFailure,
		pgErr.Code == pgerrcode.DeadlockDetected,
		pgErr.Code == pgerrcode.LockNotAvailable:
		return true
	}
	return false
}

// isUniqueViolation reports whether err is a unique-constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
