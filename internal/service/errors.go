// Package service contains the application services: job lifecycle, the
// per-job runner, the stall monitor and the retention sweeper.
package service

import (
	"context"
	"errors"
)

// isContextCancellation reports whether err is (or wraps) a context
// cancellation or deadline expiry.
func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// suppressContextCancellation maps cancellation errors to nil so shutdown
// noise never reaches error logs or metrics.
func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
