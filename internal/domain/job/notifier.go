package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/CDSP-SCPO/WPSS-for-ESS-webpanel/internal/domain/model"
)

// ErrWaiterRequired indicates a notifier cannot be constructed without a waiter.
var ErrWaiterRequired = errors.New("notifier waiter is required")

// Waiter blocks until the queue signals new work for a job type.
type Waiter interface {
	WaitForNotification(ctx context.Context, jobType model.JobType) error
}

// Notifier wakes idle pipeline workers when a step is enqueued.
type Notifier interface {
	Subscribe(jobType model.JobType) (func(), <-chan struct{})
	StopAll()
}

// NotifierOptions configure DefaultNotifier.
type NotifierOptions struct {
	Waiter Waiter
	// WaitWindow bounds one wait so a lost notification only delays a step
	// by this much. Defaults to one minute.
	WaitWindow time.Duration
	// Backoff is the pause after a failed wait. Defaults to 250ms.
	Backoff time.Duration
}

// wakeups is the subscriber set of one job type with the listener feeding it.
type wakeups struct {
	stop func()
	subs map[chan struct{}]struct{}
}

// DefaultNotifier runs one listener per subscribed job type and fans every
// wakeup out to that type's subscribers. Signals coalesce: a subscriber that
// has not consumed the previous wakeup does not queue another.
type DefaultNotifier struct {
	waiter     Waiter
	waitWindow time.Duration
	backoff    time.Duration

	mu     sync.Mutex
	byType map[model.JobType]*wakeups
}

// NewNotifier constructs the default notifier implementation.
func NewNotifier(opts NotifierOptions) (*DefaultNotifier, error) {
	if opts.Waiter == nil {
		return nil, ErrWaiterRequired
	}
	n := &DefaultNotifier{
		waiter:     opts.Waiter,
		waitWindow: opts.WaitWindow,
		backoff:    opts.Backoff,
		byType:     make(map[model.JobType]*wakeups),
	}
	if n.waitWindow <= 0 {
		n.waitWindow = time.Minute
	}
	if n.backoff <= 0 {
		n.backoff = 250 * time.Millisecond
	}
	return n, nil
}

// Subscribe registers a wakeup channel for jobType, starting its listener on
// first use. The returned func unsubscribes and closes the channel.
func (n *DefaultNotifier) Subscribe(jobType model.JobType) (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	group, ok := n.byType[jobType]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		group = &wakeups{stop: cancel, subs: make(map[chan struct{}]struct{})}
		n.byType[jobType] = group
		go n.listen(ctx, jobType)
	}

	ch := make(chan struct{}, 1)
	group.subs[ch] = struct{}{}

	var once sync.Once
	return func() { once.Do(func() { n.unsubscribe(jobType, ch) }) }, ch
}

func (n *DefaultNotifier) unsubscribe(jobType model.JobType, ch chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	group, ok := n.byType[jobType]
	if !ok {
		return
	}
	if _, ok := group.subs[ch]; !ok {
		return
	}
	delete(group.subs, ch)
	closeDrained(ch)
	if len(group.subs) == 0 {
		group.stop()
		delete(n.byType, jobType)
	}
}

// StopAll cancels every listener and closes every subscriber channel.
func (n *DefaultNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for jobType, group := range n.byType {
		group.stop()
		for ch := range group.subs {
			closeDrained(ch)
		}
		delete(n.byType, jobType)
	}
}

func (n *DefaultNotifier) listen(ctx context.Context, jobType model.JobType) {
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, n.waitWindow)
		err := n.waiter.WaitForNotification(waitCtx, jobType)
		cancel()

		// A timed-out window also wakes workers: delayed steps become due
		// without any notification.
		n.signal(jobType)

		if err == nil || ctx.Err() != nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(n.backoff):
		}
	}
}

func (n *DefaultNotifier) signal(jobType model.JobType) {
	n.mu.Lock()
	defer n.mu.Unlock()

	group, ok := n.byType[jobType]
	if !ok {
		return
	}
	for ch := range group.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// closeDrained empties ch before closing it so receivers see the close at once.
func closeDrained(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
	close(ch)
}

var _ Notifier = (*DefaultNotifier)(nil)
