// Package notify defines the failure payload fanned out to operator sinks.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// StepFailurePayload captures what we emit when a pipeline step fails for good.
type StepFailurePayload struct {
	JobID string
	// Kind is the pipeline kind, such as link_distribution.
	Kind           string
	DistributionID int64
	// Description is the operator-facing label of the distribution, when known.
	Description string
	Step        string
	Attempts    int
	Error       string
	ErrorClass  string
	Severity    string
	OccurredAt  time.Time
	Metadata    map[string]string
}

// Sink describes a destination capable of consuming step failure notifications.
type Sink interface {
	SendStepFailure(ctx context.Context, payload StepFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload StepFailurePayload) error

// SendStepFailure implements the Sink interface.
func (f SinkFunc) SendStepFailure(ctx context.Context, payload StepFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
