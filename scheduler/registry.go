// Package scheduler runs named background tasks with at most one run in
// flight per name.
//
// A task reports a core.Outcome. OutcomeRetry re-runs it after an
// exponential backoff delay until the backoff gives up; OutcomeSuccess and
// OutcomeFailure end the run. Enqueueing a name that already has a run
// either keeps the existing run (PolicyKeep) or cancels and supersedes it
// (PolicyReplace). A superseding run starts only after the old run returned.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/lorekeeper/core"
)

// ErrInvalidInterval is returned by Every for a non-positive interval.
var ErrInvalidInterval = errors.New("interval must be positive")

// Policy decides what Enqueue does when a run for the name already exists.
type Policy int

const (
	// PolicyKeep leaves a pending or running run alone; the enqueue is dropped.
	PolicyKeep Policy = iota
	// PolicyReplace cancels the existing run and starts a new one after it exits.
	PolicyReplace
)

func (p Policy) String() string {
	switch p {
	case PolicyKeep:
		return "keep"
	case PolicyReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Task is one unit of background work.
type Task func(ctx context.Context) core.Outcome

type run struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry dispatches tasks onto a worker pool.
type Registry struct {
	mu     sync.Mutex
	runs   map[string]*run
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	pool       *ants.Pool
	poolSize   int
	newBackoff func() backoff.BackOff
	logger     *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry) error

// WithPoolSize sets how many runs may execute at once.
// Default is runtime.NumCPU(), with a minimum of 2.
func WithPoolSize(size int) Option {
	return func(r *Registry) error {
		if size < 1 {
			size = 1
		}
		r.poolSize = size
		return nil
	}
}

// WithBackoff sets the retry policy. newBackoff is called once per run.
func WithBackoff(newBackoff func() backoff.BackOff) Option {
	return func(r *Registry) error {
		r.newBackoff = newBackoff
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// DefaultBackoff retries from one second up to one minute apart and gives
// up after ten minutes.
func DefaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 10 * time.Minute
	return b
}

// New creates a registry. Call Close to stop it.
func New(opts ...Option) (*Registry, error) {
	poolSize := runtime.NumCPU()
	if poolSize < 2 {
		poolSize = 2
	}
	r := &Registry{
		runs:       make(map[string]*run),
		poolSize:   poolSize,
		newBackoff: DefaultBackoff,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(r.poolSize)
	if err != nil {
		return nil, err
	}
	r.pool = pool
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.logger = r.logger.With("component", "scheduler")
	return r, nil
}

// Enqueue schedules task under name. It returns false when the task was not
// scheduled: the registry is closed, or policy is PolicyKeep and a run for
// name is pending or running.
func (r *Registry) Enqueue(name string, policy Policy, task Task) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	prev := r.runs[name]
	if prev != nil && policy == PolicyKeep {
		r.mu.Unlock()
		r.logger.Debug("run already in flight, keeping it", "task", name, "run", prev.id)
		return false
	}

	ctx, cancel := context.WithCancel(r.ctx)
	cur := &run{id: uuid.NewString(), cancel: cancel, done: make(chan struct{})}
	r.runs[name] = cur
	if prev != nil {
		r.logger.Debug("superseding run", "task", name, "old", prev.id, "new", cur.id)
		prev.cancel()
	}
	r.wg.Add(1)
	r.mu.Unlock()

	err := r.pool.Submit(func() {
		defer r.finish(name, cur)
		if prev != nil {
			<-prev.done
		}
		r.execute(ctx, name, cur.id, task)
	})
	if err != nil {
		r.logger.Error("failed to submit run", "task", name, "err", err)
		r.finish(name, cur)
		return false
	}
	return true
}

// finish releases a run's bookkeeping.
func (r *Registry) finish(name string, cur *run) {
	cur.cancel()
	close(cur.done)
	r.mu.Lock()
	if r.runs[name] == cur {
		delete(r.runs, name)
	}
	r.mu.Unlock()
	r.wg.Done()
}

func (r *Registry) execute(ctx context.Context, name, id string, task Task) {
	logger := r.logger.With("task", name, "run", id)
	b := backoff.WithContext(r.newBackoff(), ctx)
	b.Reset()

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			logger.Debug("run cancelled before attempt", "attempt", attempt)
			return
		}
		start := time.Now()
		outcome := safeRun(ctx, task, logger)
		logger.Debug("attempt finished", "attempt", attempt, "outcome", outcome.String(), "elapsed", time.Since(start))

		switch outcome {
		case core.OutcomeSuccess:
			return
		case core.OutcomeFailure:
			logger.Error("run failed permanently", "attempt", attempt)
			return
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			logger.Warn("giving up after retries", "attempts", attempt)
			return
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// safeRun converts a panicking task into a permanent failure.
func safeRun(ctx context.Context, task Task, logger *slog.Logger) (outcome core.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("task panicked", "panic", p)
			outcome = core.OutcomeFailure
		}
	}()
	return task(ctx)
}

// Every enqueues task under name with PolicyKeep immediately and then once
// per interval, until ctx is done.
func (r *Registry) Every(ctx context.Context, name string, interval time.Duration, task Task) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.Enqueue(name, PolicyKeep, task)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Enqueue(name, PolicyKeep, task)
		}
	}
}

// Active reports whether a run for name is pending or running.
func (r *Registry) Active(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[name] != nil
}

// Cancel stops the run for name, if any.
func (r *Registry) Cancel(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur := r.runs[name]; cur != nil {
		cur.cancel()
	}
}

// Wait blocks until every enqueued run has returned.
func (r *Registry) Wait() {
	r.wg.Wait()
}

// Close cancels all runs, waits for them and releases the pool.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	r.pool.Release()
	return nil
}
