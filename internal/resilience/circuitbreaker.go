// Package resilience holds per-endpoint protective mechanisms layered on
// top of the core delivery path: a circuit breaker that stops hammering an
// endpoint that is clearly down, and a rate limiter that caps how fast any
// one endpoint is sent requests. Both are optional; a Worker with neither
// configured behaves exactly as the bare state machine describes.
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Circuit breaker states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half-open"
)

// CircuitBreaker implements a per-endpoint circuit breaker using Redis.
// State transitions: closed -> open -> half-open -> closed.
//
//   - Closed: normal operation, failures are counted.
//   - Open: all deliveries are rejected until the cooldown elapses.
//   - Half-Open: deliveries are allowed through; a recorded success closes
//     the circuit, a recorded failure re-opens it. The number of deliveries
//     let through while half-open is not limited to one.
type CircuitBreaker struct {
	redisClient      *redis.Client
	logger           *slog.Logger
	failureThreshold int
	cooldownPeriod   time.Duration
}

// CircuitBreakerState is the externally observable state of one endpoint's
// circuit.
type CircuitBreakerState struct {
	State        string `json:"state"`
	Failures     int    `json:"failures"`
	LastFailedAt string `json:"last_failed_at,omitempty"`
}

// NewCircuitBreaker creates a circuit breaker with the default threshold (5
// consecutive failures) and cooldown (30s).
func NewCircuitBreaker(redisClient *redis.Client, logger *slog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		redisClient:      redisClient,
		logger:           logger,
		failureThreshold: 5,
		cooldownPeriod:   30 * time.Second,
	}
}

func cbKey(endpointID string) string {
	return fmt.Sprintf("hookrelay:cb:%s", endpointID)
}

// AllowRequest reports the endpoint's current circuit state and whether an
// attempt should proceed.
func (cb *CircuitBreaker) AllowRequest(ctx context.Context, endpointID string) (string, bool) {
	key := cbKey(endpointID)

	data, err := cb.redisClient.HGetAll(ctx, key).Result()
	if err != nil || len(data) == 0 {
		return StateClosed, true
	}

	state := data["state"]
	lastFailedAt, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)

	switch state {
	case StateOpen:
		if time.Now().Unix()-lastFailedAt >= int64(cb.cooldownPeriod.Seconds()) {
			cb.redisClient.HSet(ctx, key, "state", StateHalfOpen)
			cb.logger.Info("circuit breaker half-open", "endpoint_id", endpointID)
			return StateHalfOpen, true
		}
		return StateOpen, false

	case StateHalfOpen:
		return StateHalfOpen, true

	default: // StateClosed
		return StateClosed, true
	}
}

// RecordSuccess resets the circuit to closed.
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context, endpointID string) {
	key := cbKey(endpointID)

	state, _ := cb.redisClient.HGet(ctx, key, "state").Result()

	cb.redisClient.HSet(ctx, key, "state", StateClosed, "failures", 0)

	if state == StateHalfOpen {
		cb.logger.Info("circuit breaker closed (recovered)", "endpoint_id", endpointID)
	}
}

// RecordFailure increments the failure count and opens the circuit once the
// threshold is reached, or immediately re-opens it if the failing attempt
// was the half-open probe.
func (cb *CircuitBreaker) RecordFailure(ctx context.Context, endpointID string) {
	key := cbKey(endpointID)

	failures, err := cb.redisClient.HIncrBy(ctx, key, "failures", 1).Result()
	if err != nil {
		cb.logger.Error("failed to record circuit breaker failure", "error", err, "endpoint_id", endpointID)
		return
	}

	cb.redisClient.HSet(ctx, key, "last_failed_at", time.Now().Unix())

	state, _ := cb.redisClient.HGet(ctx, key, "state").Result()

	switch {
	case state == StateHalfOpen:
		cb.redisClient.HSet(ctx, key, "state", StateOpen)
		cb.logger.Warn("circuit breaker re-opened (half-open probe failed)", "endpoint_id", endpointID)
	case failures >= int64(cb.failureThreshold):
		cb.redisClient.HSet(ctx, key, "state", StateOpen)
		cb.logger.Warn("circuit breaker opened", "endpoint_id", endpointID, "failures", failures, "threshold", cb.failureThreshold)
	case state == "":
		cb.redisClient.HSet(ctx, key, "state", StateClosed)
	}
}

// GetState returns the current circuit state for an endpoint, transitioning
// an expired Open state to Half-Open for reporting purposes.
func (cb *CircuitBreaker) GetState(ctx context.Context, endpointID string) CircuitBreakerState {
	key := cbKey(endpointID)

	data, err := cb.redisClient.HGetAll(ctx, key).Result()
	if err != nil || len(data) == 0 {
		return CircuitBreakerState{State: StateClosed}
	}

	failures, _ := strconv.Atoi(data["failures"])
	state := data["state"]
	if state == "" {
		state = StateClosed
	}

	if state == StateOpen {
		lastFailedAt, _ := strconv.ParseInt(data["last_failed_at"], 10, 64)
		if time.Now().Unix()-lastFailedAt >= int64(cb.cooldownPeriod.Seconds()) {
			state = StateHalfOpen
		}
	}

	result := CircuitBreakerState{State: state, Failures: failures}

	if ts, ok := data["last_failed_at"]; ok && ts != "" {
		if lastFailed, _ := strconv.ParseInt(ts, 10, 64); lastFailed > 0 {
			result.LastFailedAt = time.Unix(lastFailed, 0).Format(time.RFC3339)
		}
	}

	return result
}
