// Package poll repeats a probe with doubling pauses until a predicate holds.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrTimeout is returned when the attempt budget is spent without success.
	ErrTimeout = errors.New("poll: giving up")
	// ErrInvalidMaxAttempts is returned before any attempt when the budget is below one.
	ErrInvalidMaxAttempts = errors.New("poll: max attempts must be at least 1")
)

// DefaultInterval is the pause after the first failed attempt.
const DefaultInterval = time.Second

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option customises Until.
type Option func(*options)

type options struct {
	interval    time.Duration
	maxAttempts *int
	sleep       Sleeper
	logger      *slog.Logger
}

// WithInterval sets the initial pause. It doubles after every failed attempt.
func WithInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

// WithMaxAttempts bounds the number of calls to the target.
func WithMaxAttempts(n int) Option {
	return func(o *options) { o.maxAttempts = &n }
}

// WithSleeper replaces the real-time pause, mostly for tests.
func WithSleeper(s Sleeper) Option {
	return func(o *options) { o.sleep = s }
}

// WithLogger sets the logger used for per-attempt traces.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Until calls target until isSuccess accepts its value. Errors from target
// are returned as is. No jitter is applied.
func Until[T any](
	ctx context.Context,
	target func(context.Context) (T, error),
	isSuccess func(T) bool,
	opts ...Option,
) (T, error) {
	o := options{interval: DefaultInterval, sleep: SleepContext}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	var zero T
	if o.maxAttempts != nil && *o.maxAttempts < 1 {
		return zero, fmt.Errorf("%w: got %d", ErrInvalidMaxAttempts, *o.maxAttempts)
	}

	interval := o.interval
	attempts := 0
	for {
		val, err := target(ctx)
		if err != nil {
			return zero, err
		}
		o.logger.DebugContext(ctx, "poll attempt", "attempt", attempts+1)
		if isSuccess(val) {
			return val, nil
		}
		attempts++
		if o.maxAttempts != nil && attempts >= *o.maxAttempts {
			return zero, fmt.Errorf("%w after %d attempts", ErrTimeout, attempts)
		}
		if err := o.sleep(ctx, interval); err != nil {
			return zero, err
		}
		interval *= 2
	}
}

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		if !timer.Stop() {
			<-timer.C
		}
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
