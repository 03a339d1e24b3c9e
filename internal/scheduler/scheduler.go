// Package scheduler decides when a queued delivery attempt is handed to a
// Handler for execution. It intentionally exposes the minimal surface the
// rest of the engine depends on — enqueue now, enqueue after a delay — so
// the Dispatcher and Worker never need to know whether attempts are timed
// by an in-process timer wheel or a durable Redis sorted set.
package scheduler

import (
	"context"
	"time"
)

// Handler executes one delivery attempt. The Scheduler guarantees that, for
// a given deliveryID, no two Handler calls run concurrently.
type Handler func(ctx context.Context, deliveryID string) error

// Scheduler queues delivery attempts for execution, immediately or after a
// delay. Implementations must guarantee at-most-one in-flight Handler call
// per delivery id at any time.
type Scheduler interface {
	Enqueue(ctx context.Context, deliveryID string) error
	EnqueueAfter(ctx context.Context, deliveryID string, delay time.Duration) error
}

// Depther is an optional capability: schedulers backed by a real queue can
// report how many attempts are waiting, which the Dispatcher uses for
// backpressure. Schedulers that cannot cheaply answer this simply don't
// implement it; callers type-assert for it.
type Depther interface {
	QueueDepth(ctx context.Context) (int64, error)
}
