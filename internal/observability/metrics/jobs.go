// Package metrics provides shared helpers for emitting job and verification
// metrics with consistent names and tags.
package metrics

import (
	"time"

	"github.com/leadvalidator/leadvalidator/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric captures a job lifecycle event for metric emission.
type JobMetric struct {
	Transition string
	Result     string
	Duration   time.Duration
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}

	sink.Count("job.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, tags)
	}
}

// EmitVerification counts a single verification outcome.
func EmitVerification(sink statsd.Sink, status, reason string) {
	if sink == nil {
		return
	}
	sink.Count("verify.outcome", 1, map[string]string{
		"status": status,
		"reason": reason,
	})
}
