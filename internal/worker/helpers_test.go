package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeScheduler stands in for scheduler.Scheduler so Worker tests observe
// exactly what got (re)queued without involving a real timer or Redis.
type fakeScheduler struct {
	mu         sync.Mutex
	enqueued   []string
	afterCalls []string
}

func (f *fakeScheduler) Enqueue(ctx context.Context, deliveryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, deliveryID)
	return nil
}

func (f *fakeScheduler) EnqueueAfter(ctx context.Context, deliveryID string, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afterCalls = append(f.afterCalls, deliveryID)
	return nil
}
