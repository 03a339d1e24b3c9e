package scheduler

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// queueKey is the Redis sorted set holding delivery ids due for an attempt,
// scored by ready-time in microseconds since the epoch.
const queueKey = "hookrelay:delivery_queue"

// Redis is a durable Scheduler backed by a Redis sorted set. Multiple
// engine instances can poll the same set concurrently: a member is claimed
// by whichever poller's ZRem succeeds first, so at most one of them hands
// it to a Handler.
type Redis struct {
	client       *redis.Client
	pool         *exclusivePool
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int64
}

// NewRedis creates a Redis-backed scheduler. Start must be called before
// queued deliveries begin executing.
func NewRedis(client *redis.Client, numWorkers int, handler Handler, logger *slog.Logger) *Redis {
	return &Redis{
		client:       client,
		pool:         newExclusivePool(numWorkers, handler, logger),
		logger:       logger,
		pollInterval: 100 * time.Millisecond,
		batchSize:    50,
	}
}

// Start launches the worker pool and the polling loop. It runs until ctx is
// cancelled.
func (r *Redis) Start(ctx context.Context) {
	r.pool.start(ctx)
	go r.pollLoop(ctx)
}

// Stop waits for in-flight attempts to finish. The polling loop stops on
// its own once ctx is cancelled.
func (r *Redis) Stop() {
	r.pool.stop()
}

func (r *Redis) Enqueue(ctx context.Context, deliveryID string) error {
	return r.client.ZAdd(ctx, queueKey, redis.Z{
		Score:  float64(time.Now().UnixMicro()),
		Member: deliveryID,
	}).Err()
}

func (r *Redis) EnqueueAfter(ctx context.Context, deliveryID string, delay time.Duration) error {
	return r.client.ZAdd(ctx, queueKey, redis.Z{
		Score:  float64(time.Now().Add(delay).UnixMicro()),
		Member: deliveryID,
	}).Err()
}

func (r *Redis) QueueDepth(ctx context.Context) (int64, error) {
	return r.client.ZCard(ctx, queueKey).Result()
}

func (r *Redis) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

func (r *Redis) poll(ctx context.Context) {
	now := float64(time.Now().UnixMicro())

	results, err := r.client.ZRangeByScoreWithScores(ctx, queueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatFloat(now, 'f', -1, 64),
		Count: r.batchSize,
	}).Result()
	if err != nil {
		if r.logger != nil {
			r.logger.Error("polling delivery queue failed", "error", err)
		}
		return
	}

	for _, z := range results {
		deliveryID, ok := z.Member.(string)
		if !ok {
			continue
		}

		removed, err := r.client.ZRem(ctx, queueKey, z.Member).Result()
		if err != nil {
			if r.logger != nil {
				r.logger.Error("removing claimed delivery from queue failed", "error", err)
			}
			continue
		}
		if removed == 0 {
			// another poller already claimed this delivery
			continue
		}

		r.pool.submit(ctx, deliveryID)
	}
}

var (
	_ Scheduler = (*Redis)(nil)
	_ Depther   = (*Redis)(nil)
)
