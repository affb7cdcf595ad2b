package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available background service modes.
type ServiceMode string

const (
	// ServiceModeMonitor runs the stall monitor.
	ServiceModeMonitor ServiceMode = "monitor"
	// ServiceModeRetention runs the retention sweeper.
	ServiceModeRetention ServiceMode = "retention"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeMonitor, ServiceModeRetention}
}

// ParseServices parses a comma-delimited string of service names and returns
// the enabled services. Unknown names are an error.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		mode := ServiceMode(name)
		switch mode {
		case ServiceModeMonitor, ServiceModeRetention:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: monitor, retention)", name)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// JobsConfig contains job execution configuration.
type JobsConfig struct {
	// MaxConcurrent bounds how many jobs run simultaneously. StartJob is
	// rejected synchronously when the limit is reached.
	MaxConcurrent int `env:"JOBS_MAX_CONCURRENT" envDefault:"3"`

	// HeartbeatRows is the row-count interval between progress flushes.
	HeartbeatRows int `env:"JOBS_HEARTBEAT_ROWS" envDefault:"10"`

	// HeartbeatInterval is the wall-clock interval between progress flushes.
	// A flush happens when either threshold is crossed, whichever first.
	HeartbeatInterval time.Duration `env:"JOBS_HEARTBEAT_INTERVAL" envDefault:"15s"`

	// FlushMaxAttempts bounds retries for a failed progress flush before the
	// job is demoted to failed.
	FlushMaxAttempts int `env:"JOBS_FLUSH_MAX_ATTEMPTS" envDefault:"3"`

	// FlushRetryBackoff is the base backoff between flush retry attempts.
	FlushRetryBackoff time.Duration `env:"JOBS_FLUSH_RETRY_BACKOFF" envDefault:"500ms"`
}

// Sanitize applies guardrails to job configuration values.
func (c *JobsConfig) Sanitize() {
	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = 1
	}
	if c.MaxConcurrent > 20 {
		c.MaxConcurrent = 20
	}
	if c.HeartbeatRows < 1 {
		c.HeartbeatRows = 1
	}
	if c.HeartbeatInterval < time.Second {
		c.HeartbeatInterval = time.Second
	}
	if c.FlushMaxAttempts < 1 {
		c.FlushMaxAttempts = 1
	}
	if c.FlushRetryBackoff <= 0 {
		c.FlushRetryBackoff = 500 * time.Millisecond
	}
}

// MonitorConfig contains stall monitor configuration.
type MonitorConfig struct {
	// Interval is the monitor poll interval.
	Interval time.Duration `env:"MONITOR_INTERVAL" envDefault:"30s"`

	// StallTimeout is how long a running job's heartbeat may lag before the
	// job is declared stalled. Deliberately generous: SMTP probes are slow.
	StallTimeout time.Duration `env:"MONITOR_STALL_TIMEOUT" envDefault:"10m"`
}

// Sanitize applies guardrails to monitor configuration values.
func (c *MonitorConfig) Sanitize() {
	if c.Interval < time.Second {
		c.Interval = time.Second
	}
	if c.StallTimeout < time.Minute {
		c.StallTimeout = time.Minute
	}
	if c.StallTimeout > time.Hour {
		c.StallTimeout = time.Hour
	}
}

// RetentionConfig contains retention sweeper configuration.
type RetentionConfig struct {
	// Interval is the sweep interval.
	Interval time.Duration `env:"RETENTION_INTERVAL" envDefault:"1h"`

	// MaxAge is how long terminal jobs are kept before deletion.
	MaxAge time.Duration `env:"RETENTION_MAX_AGE" envDefault:"336h"`

	// MaxJobs caps the number of retained jobs; the oldest terminal jobs
	// beyond the cap are trimmed.
	MaxJobs int `env:"RETENTION_MAX_JOBS" envDefault:"200"`

	// BatchSize bounds deletions per repository call to prevent long locks.
	BatchSize int `env:"RETENTION_BATCH_SIZE" envDefault:"100"`
}

// Sanitize applies guardrails to retention configuration values.
func (c *RetentionConfig) Sanitize() {
	if c.Interval < time.Minute {
		c.Interval = time.Minute
	}
	if c.MaxAge < 24*time.Hour {
		c.MaxAge = 24 * time.Hour
	}
	if c.MaxJobs < 1 {
		c.MaxJobs = 1
	}
	if c.BatchSize < 1 {
		c.BatchSize = 1
	}
}
