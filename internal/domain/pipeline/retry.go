package pipeline

import (
	"errors"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/qualtrics"
)

// ErrImportInProgress is returned by the wait step while the platform is
// still processing a contact import. It is retried and never reported.
var ErrImportInProgress = errors.New("contact import in progress")

// ErrMissingRef is returned when a step runs before the remote reference it
// depends on was recorded.
var ErrMissingRef = errors.New("missing remote reference")

const (
	defaultMaxRetries  = 10
	defaultBackoffBase = 8 * time.Second
	defaultBackoffMax  = 10 * time.Minute
)

// RetryPolicy decides whether and when a failed step runs again.
type RetryPolicy struct {
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// Jitter is always false for pipeline steps; Backoff ignores it.
	Jitter    bool
	Retryable func(error) bool
}

// DefaultRetryPolicy retries server-side and transport failures.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  defaultMaxRetries,
		BackoffBase: defaultBackoffBase,
		BackoffMax:  defaultBackoffMax,
		Retryable:   qualtrics.IsServerError,
	}
}

// WithImportInProgress extends the retryable set with ErrImportInProgress.
func (p RetryPolicy) WithImportInProgress() RetryPolicy {
	base := p.Retryable
	p.Retryable = func(err error) bool {
		if errors.Is(err, ErrImportInProgress) {
			return true
		}
		return base != nil && base(err)
	}
	return p
}

// Backoff is base·2^retryCount capped at BackoffMax.
func (p RetryPolicy) Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	d := p.BackoffBase
	for i := 0; i < retryCount; i++ {
		d *= 2
		if p.BackoffMax > 0 && d >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if p.BackoffMax > 0 && d > p.BackoffMax {
		return p.BackoffMax
	}
	return d
}

// ShouldRetry reports whether err is retryable and the budget allows another attempt.
func (p RetryPolicy) ShouldRetry(err error, retryCount int) bool {
	if err == nil || p.Retryable == nil || !p.Retryable(err) {
		return false
	}
	return retryCount < p.MaxRetries
}
