// Package job holds the queue policies shared by the step runner and the job service.
package job

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidDefaultLease indicates the configured default lease duration is not positive.
var ErrInvalidDefaultLease = errors.New("default lease must be positive")

// LeaseSource identifies how a lease duration was resolved.
type LeaseSource string

const (
	LeaseSourceExplicit LeaseSource = "explicit"
	LeaseSourceDefault  LeaseSource = "default"
	// LeaseSourceClamped means the request fell outside [1s, MaxInt seconds].
	LeaseSourceClamped LeaseSource = "clamped"
)

// LeasePolicy turns requested lease durations into the whole seconds the
// queue stores, and tells a worker how often to heartbeat a step.
type LeasePolicy struct {
	lease time.Duration
}

// NewLeasePolicy constructs a LeasePolicy around a default lease.
func NewLeasePolicy(defaultLease time.Duration) (*LeasePolicy, error) {
	if defaultLease <= 0 {
		return nil, ErrInvalidDefaultLease
	}
	return &LeasePolicy{lease: defaultLease}, nil
}

// Default returns the configured default lease duration.
func (p *LeasePolicy) Default() time.Duration {
	if p == nil {
		return 0
	}
	return p.lease
}

// HeartbeatInterval is how often a running step renews its lease: three
// renewals fit in one lease, so a single slow round trip never loses it.
func (p *LeasePolicy) HeartbeatInterval() time.Duration {
	if p == nil {
		return 0
	}
	interval := p.lease / 3
	if interval < time.Second {
		return time.Second
	}
	return interval
}

// LeaseDecision captures the outcome of resolving a lease request.
type LeaseDecision struct {
	Seconds   int
	Source    LeaseSource
	Requested time.Duration
}

func (d LeaseDecision) UsedDefault() bool { return d.Source == LeaseSourceDefault }

func (d LeaseDecision) Clamped() bool { return d.Source == LeaseSourceClamped }

// Resolve maps a request to whole seconds. Zero selects the default lease.
func (p *LeasePolicy) Resolve(request time.Duration) LeaseDecision {
	decision := LeaseDecision{Requested: request, Source: LeaseSourceExplicit}
	if p == nil {
		decision.Source = LeaseSourceDefault
		return decision
	}

	d := request
	if request == 0 {
		d = p.lease
		decision.Source = LeaseSourceDefault
	}

	seconds := int64(d / time.Second)
	switch {
	case seconds < 1:
		seconds = 1
		decision.Source = LeaseSourceClamped
	case seconds > math.MaxInt:
		seconds = math.MaxInt
		decision.Source = LeaseSourceClamped
	}
	decision.Seconds = int(seconds)
	return decision
}
