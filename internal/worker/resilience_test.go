package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hookrelay/engine/internal/domain"
	"github.com/hookrelay/engine/internal/resilience"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestWorker_OpenCircuitSkipsRequestAndReschedules(t *testing.T) {
	var received atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Store(true)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	w, st, sched := newTestWorker(t, DefaultConfig())
	d := seedEndpointAndDelivery(t, st, server.URL, nil)

	cb := resilience.NewCircuitBreaker(newTestRedisClient(t), discardLogger())
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		cb.RecordFailure(ctx, d.EndpointID)
	}
	w.SetCircuitBreaker(cb)

	if err := w.Attempt(ctx, d.ID); err != nil {
		t.Fatalf("Attempt: %v", err)
	}

	if received.Load() {
		t.Fatal("expected the request to never reach the endpoint while the circuit is open")
	}

	got, _ := st.GetDelivery(ctx, d.ID)
	if got.Status != domain.StatusRetrying {
		t.Fatalf("expected a reschedule while the circuit is open, got %s", got.Status)
	}

	sched.mu.Lock()
	defer sched.mu.Unlock()
	if len(sched.afterCalls) != 1 {
		t.Fatalf("expected exactly one EnqueueAfter call, got %v", sched.afterCalls)
	}
}

func TestWorker_ClosedCircuitAllowsRequestAndRecordsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	w, st, _ := newTestWorker(t, DefaultConfig())
	d := seedEndpointAndDelivery(t, st, server.URL, nil)

	client := newTestRedisClient(t)
	cb := resilience.NewCircuitBreaker(client, discardLogger())
	w.SetCircuitBreaker(cb)

	ctx := context.Background()
	if err := w.Attempt(ctx, d.ID); err != nil {
		t.Fatalf("Attempt: %v", err)
	}

	got, _ := st.GetDelivery(ctx, d.ID)
	if got.Status != domain.StatusDelivered {
		t.Fatalf("expected StatusDelivered, got %s", got.Status)
	}

	state := cb.GetState(ctx, d.EndpointID)
	if state.Failures != 0 {
		t.Fatalf("expected a successful delivery to keep failures at 0, got %d", state.Failures)
	}
}

func TestWorker_RateLimiterBlocksAndReschedules(t *testing.T) {
	var callCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	w, st, sched := newTestWorker(t, DefaultConfig())
	d := seedEndpointAndDelivery(t, st, server.URL, nil)

	rl := resilience.NewRateLimiter(newTestRedisClient(t), discardLogger())
	ctx := context.Background()
	// exhaust the limit of 1 before the worker ever attempts
	rl.Allow(ctx, d.EndpointID, 1)
	w.SetRateLimiter(rl, 1)

	if err := w.Attempt(ctx, d.ID); err != nil {
		t.Fatalf("Attempt: %v", err)
	}

	if callCount.Load() != 0 {
		t.Fatalf("expected the endpoint to never be called while rate limited, got %d calls", callCount.Load())
	}

	got, _ := st.GetDelivery(ctx, d.ID)
	if got.Status != domain.StatusRetrying {
		t.Fatalf("expected a reschedule while rate limited, got %s", got.Status)
	}

	sched.mu.Lock()
	defer sched.mu.Unlock()
	if len(sched.afterCalls) != 1 {
		t.Fatalf("expected exactly one EnqueueAfter call, got %v", sched.afterCalls)
	}
}

func TestWorker_ZeroRateLimitDisablesLimiter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	w, st, _ := newTestWorker(t, DefaultConfig())
	d := seedEndpointAndDelivery(t, st, server.URL, nil)

	rl := resilience.NewRateLimiter(newTestRedisClient(t), discardLogger())
	w.SetRateLimiter(rl, 0)

	if err := w.Attempt(context.Background(), d.ID); err != nil {
		t.Fatalf("Attempt: %v", err)
	}

	got, _ := st.GetDelivery(context.Background(), d.ID)
	if got.Status != domain.StatusDelivered {
		t.Fatalf("expected a rate limit of 0 to disable limiting, got %s", got.Status)
	}
}
