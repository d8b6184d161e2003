package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModePipelineRunner runs the distribution pipeline workers.
	ServiceModePipelineRunner ServiceMode = "pipeline-runner"
	// ServiceModeReaper runs the job reaper for cleanup.
	ServiceModeReaper ServiceMode = "reaper"
	// ServiceModeOpsHTTP serves health probes and Prometheus metrics.
	ServiceModeOpsHTTP ServiceMode = "ops-http"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModePipelineRunner, ServiceModeReaper, ServiceModeOpsHTTP}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModePipelineRunner, ServiceModeReaper, ServiceModeOpsHTTP:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: pipeline-runner, reaper, ops-http)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// PipelineRunnerConfig contains pipeline runner service configuration.
type PipelineRunnerConfig struct {
	// Concurrency is the number of worker goroutines per pipeline kind.
	Concurrency int `env:"CONCURRENCY" envDefault:"2"`

	// JobLease is the duration to lease a step job. A step that polls the
	// remote platform heartbeats to keep its lease.
	JobLease time.Duration `env:"JOB_LEASE" envDefault:"2m"`
}

// Sanitize applies guardrails to pipeline runner configuration values.
func (p *PipelineRunnerConfig) Sanitize() {
	if p.Concurrency < 1 {
		p.Concurrency = 1
	}
	if p.JobLease < 5*time.Second {
		p.JobLease = 5 * time.Second
	}
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"INTERVAL" envDefault:"5m"`

	// PendingMaxAge is how long past its run time a pending step may wait
	// before it is marked as failed.
	PendingMaxAge time.Duration `env:"PENDING_MAX_AGE" envDefault:"1h"`

	// CompletedMaxAge is the maximum age for completed jobs before deletion.
	CompletedMaxAge time.Duration `env:"COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedMaxAge is the maximum age for failed jobs before deletion. Failed
	// steps are kept longer since they are how a pipeline is inspected.
	FailedMaxAge time.Duration `env:"FAILED_MAX_AGE" envDefault:"720h"` // 30 days

	// BatchSize is the maximum number of rows to process per operation.
	BatchSize int `env:"BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.PendingMaxAge < 5*time.Minute {
		r.PendingMaxAge = 5 * time.Minute
	}
	if r.CompletedMaxAge < 1*time.Hour {
		r.CompletedMaxAge = 1 * time.Hour
	}
	if r.FailedMaxAge < 1*time.Hour {
		r.FailedMaxAge = 1 * time.Hour
	}
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}

// OpsHTTPConfig contains the ops endpoint configuration.
type OpsHTTPConfig struct {
	Addr              string        `env:"ADDR"                envDefault:":9090"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
}

// Sanitize applies guardrails to ops HTTP configuration values.
func (o *OpsHTTPConfig) Sanitize() {
	o.Addr = strings.TrimSpace(o.Addr)
	if o.Addr == "" {
		o.Addr = ":9090"
	}
	if o.ReadHeaderTimeout <= 0 {
		o.ReadHeaderTimeout = 5 * time.Second
	}
}
