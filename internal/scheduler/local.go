package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Local is an in-process Scheduler backed by a worker pool and time.AfterFunc
// timers. It is the default for single-instance deployments that don't
// configure a Redis URL; state does not survive a process restart.
type Local struct {
	pool   *exclusivePool
	logger *slog.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	started bool
	ctx     context.Context
}

// NewLocal creates a Local scheduler with the given worker concurrency. Start
// must be called before Enqueue/EnqueueAfter take effect.
func NewLocal(numWorkers int, handler Handler, logger *slog.Logger) *Local {
	return &Local{
		pool:   newExclusivePool(numWorkers, handler, logger),
		logger: logger,
		timers: make(map[string]*time.Timer),
	}
}

// Start launches the worker pool. It runs until ctx is cancelled or Stop is
// called.
func (l *Local) Start(ctx context.Context) {
	l.mu.Lock()
	l.ctx = ctx
	l.started = true
	l.mu.Unlock()

	l.pool.start(ctx)
}

// Stop cancels any pending delayed timers and waits for in-flight attempts
// to finish.
func (l *Local) Stop() {
	l.mu.Lock()
	for id, t := range l.timers {
		t.Stop()
		delete(l.timers, id)
	}
	l.mu.Unlock()

	l.pool.stop()
}

func (l *Local) Enqueue(ctx context.Context, deliveryID string) error {
	l.pool.submit(ctx, deliveryID)
	return nil
}

func (l *Local) EnqueueAfter(ctx context.Context, deliveryID string, delay time.Duration) error {
	if delay <= 0 {
		return l.Enqueue(ctx, deliveryID)
	}

	l.mu.Lock()
	runCtx := l.ctx
	if runCtx == nil {
		runCtx = ctx
	}
	l.mu.Unlock()

	timer := time.AfterFunc(delay, func() {
		l.mu.Lock()
		delete(l.timers, deliveryID)
		l.mu.Unlock()
		l.pool.submit(runCtx, deliveryID)
	})

	l.mu.Lock()
	l.timers[deliveryID] = timer
	l.mu.Unlock()
	return nil
}

// QueueDepth reports the number of delayed timers still pending plus jobs
// sitting in the worker channel. It is an approximation, not an exact
// count, since in-flight jobs are not included.
func (l *Local) QueueDepth(ctx context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(len(l.timers) + len(l.pool.jobs)), nil
}

var (
	_ Scheduler = (*Local)(nil)
	_ Depther   = (*Local)(nil)
)
