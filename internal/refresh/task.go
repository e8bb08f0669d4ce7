// Package refresh runs cancellable repeating tasks, such as the dashboard's
// polling of running models and storage totals.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Func is one refresh iteration.
type Func func(ctx context.Context) error

// Task runs a Func immediately on Start and then every interval until
// stopped. Iterations never overlap: the next wait starts after the previous
// run returned.
type Task struct {
	name     string
	interval time.Duration
	fn       Func
	logger   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Task.
type Option func(*Task)

// WithLogger installs a logger for failed iterations.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Task) { t.logger = l }
}

// New creates a stopped task. If interval is <= 0, it defaults to one second.
func New(name string, interval time.Duration, fn Func, opts ...Option) *Task {
	if interval <= 0 {
		interval = time.Second
	}
	t := &Task{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the task's name.
func (t *Task) Name() string { return t.name }

// Interval returns the wait between iterations.
func (t *Task) Interval() time.Duration { return t.interval }

// Start launches the loop. It is a no-op while the task is already running.
// The loop ends when ctx is done or Stop is called.
func (t *Task) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done

	go func() {
		defer close(done)
		t.run(ctx)
	}()
}

// Stop cancels the loop and waits for an in-flight iteration to return.
// Stopping a stopped task does nothing. A stopped task can be started again.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done == nil {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// RunOnce performs a single iteration outside the loop.
func (t *Task) RunOnce(ctx context.Context) error {
	return t.fn(ctx)
}

func (t *Task) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if err := t.fn(ctx); err != nil && ctx.Err() == nil {
			t.logger.Warn().Err(err).Str("task", t.name).Msg("refresh failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(t.interval):
		}
	}
}
