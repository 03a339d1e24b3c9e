package stats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hookrelay/engine/internal/domain"
	"github.com/hookrelay/engine/internal/store"
)

func seedDelivery(t *testing.T, st store.Store, id string, status domain.Status, durationMs int64) {
	t.Helper()
	err := st.CreateDelivery(context.Background(), &domain.Delivery{
		ID:         id,
		EndpointID: "ep_1",
		EventID:    "evt_" + id,
		Event: domain.Event{
			ID:        "evt_" + id,
			Type:      "order.created",
			Data:      json.RawMessage(`{}`),
			Timestamp: time.Now().UTC(),
		},
		Status:     status,
		DurationMs: durationMs,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seedDelivery(%s): %v", id, err)
	}
}

func TestForEndpoint_EmptyHasZeroStats(t *testing.T) {
	st := store.New()
	got, err := ForEndpoint(context.Background(), st, "ep_1")
	if err != nil {
		t.Fatalf("ForEndpoint: %v", err)
	}
	if got.Total != 0 || got.SuccessRate != 0 || got.AverageDurationMs != 0 {
		t.Fatalf("expected all-zero stats for no deliveries, got %+v", got)
	}
}

func TestForEndpoint_AggregatesCountsAndRates(t *testing.T) {
	st := store.New()
	seedDelivery(t, st, "d1", domain.StatusDelivered, 100)
	seedDelivery(t, st, "d2", domain.StatusDelivered, 300)
	seedDelivery(t, st, "d3", domain.StatusFailed, 0)
	seedDelivery(t, st, "d4", domain.StatusRetrying, 0)

	got, err := ForEndpoint(context.Background(), st, "ep_1")
	if err != nil {
		t.Fatalf("ForEndpoint: %v", err)
	}

	if got.Total != 4 {
		t.Errorf("Total = %d, want 4", got.Total)
	}
	if got.Delivered != 2 {
		t.Errorf("Delivered = %d, want 2", got.Delivered)
	}
	if got.Failed != 1 {
		t.Errorf("Failed = %d, want 1", got.Failed)
	}
	if got.PendingOrRetrying != 1 {
		t.Errorf("PendingOrRetrying = %d, want 1", got.PendingOrRetrying)
	}
	if got.SuccessRate != 50 {
		t.Errorf("SuccessRate = %v, want 50", got.SuccessRate)
	}
	if got.AverageDurationMs != 200 {
		t.Errorf("AverageDurationMs = %v, want 200 (average over the 2 deliveries with recorded duration)", got.AverageDurationMs)
	}
}

func TestForEndpoint_IgnoresOtherEndpoints(t *testing.T) {
	st := store.New()
	seedDelivery(t, st, "d1", domain.StatusDelivered, 50)
	err := st.CreateDelivery(context.Background(), &domain.Delivery{
		ID:         "other",
		EndpointID: "ep_2",
		EventID:    "evt_other",
		Event:      domain.Event{ID: "evt_other", Type: "x", Data: json.RawMessage(`{}`), Timestamp: time.Now()},
		Status:     domain.StatusDelivered,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		t.Fatalf("seed other endpoint delivery: %v", err)
	}

	got, err := ForEndpoint(context.Background(), st, "ep_1")
	if err != nil {
		t.Fatalf("ForEndpoint: %v", err)
	}
	if got.Total != 1 {
		t.Fatalf("expected stats scoped to ep_1 only, got total=%d", got.Total)
	}
}
