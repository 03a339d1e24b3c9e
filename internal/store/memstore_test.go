package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hookrelay/engine/internal/domain"
)

func newTestEndpoint(id string) *domain.Endpoint {
	return &domain.Endpoint{
		ID:        id,
		URL:       "https://example.com/hook",
		Secret:    "whsec_abc",
		Events:    domain.EventSet([]string{"order.created"}),
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
}

func newTestDelivery(id, endpointID string, createdAt time.Time) *domain.Delivery {
	return &domain.Delivery{
		ID:         id,
		EndpointID: endpointID,
		EventID:    "evt_" + id,
		Event: domain.Event{
			ID:        "evt_" + id,
			Type:      "order.created",
			Data:      json.RawMessage(`{}`),
			Timestamp: createdAt,
		},
		Status:    domain.StatusPending,
		CreatedAt: createdAt,
	}
}

func TestMemStore_EndpointCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	ep := newTestEndpoint("ep_1")
	if err := s.CreateEndpoint(ctx, ep); err != nil {
		t.Fatalf("CreateEndpoint: %v", err)
	}

	got, err := s.GetEndpoint(ctx, "ep_1")
	if err != nil || got == nil {
		t.Fatalf("GetEndpoint: %v, %v", got, err)
	}
	if got == ep {
		t.Fatal("GetEndpoint must return a defensive copy, not the stored pointer")
	}

	got.URL = "https://mutated.example.com"
	reread, _ := s.GetEndpoint(ctx, "ep_1")
	if reread.URL != "https://example.com/hook" {
		t.Fatal("mutating a returned snapshot must not affect stored state")
	}

	got.URL = "https://updated.example.com"
	if err := s.UpdateEndpoint(ctx, got); err != nil {
		t.Fatalf("UpdateEndpoint: %v", err)
	}
	reread, _ = s.GetEndpoint(ctx, "ep_1")
	if reread.URL != "https://updated.example.com" {
		t.Fatal("update did not persist")
	}

	if err := s.DeleteEndpoint(ctx, "ep_1"); err != nil {
		t.Fatalf("DeleteEndpoint: %v", err)
	}
	if err := s.DeleteEndpoint(ctx, "ep_1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
	missing, _ := s.GetEndpoint(ctx, "ep_1")
	if missing != nil {
		t.Fatal("expected nil after delete")
	}
}

func TestMemStore_UpdateMissingEndpoint(t *testing.T) {
	s := New()
	err := s.UpdateEndpoint(context.Background(), newTestEndpoint("ghost"))
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStore_ListEndpoints(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.CreateEndpoint(ctx, newTestEndpoint("a"))
	s.CreateEndpoint(ctx, newTestEndpoint("b"))

	list, err := s.ListEndpoints(ctx)
	if err != nil {
		t.Fatalf("ListEndpoints: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(list))
	}
}

func TestMemStore_DeliveryCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	d := newTestDelivery("d1", "ep_1", time.Now())
	if err := s.CreateDelivery(ctx, d); err != nil {
		t.Fatalf("CreateDelivery: %v", err)
	}

	got, err := s.GetDelivery(ctx, "d1")
	if err != nil || got == nil {
		t.Fatalf("GetDelivery: %v, %v", got, err)
	}

	got.Status = domain.StatusDelivered
	if err := s.UpdateDelivery(ctx, got); err != nil {
		t.Fatalf("UpdateDelivery: %v", err)
	}

	reread, _ := s.GetDelivery(ctx, "d1")
	if reread.Status != domain.StatusDelivered {
		t.Fatal("update did not persist")
	}

	if err := s.DeleteDelivery(ctx, "d1"); err != nil {
		t.Fatalf("DeleteDelivery: %v", err)
	}
	missing, _ := s.GetDelivery(ctx, "d1")
	if missing != nil {
		t.Fatal("expected nil after delete")
	}
}

func TestMemStore_ListDeliveries_OrderingFilterOffsetLimit(t *testing.T) {
	ctx := context.Background()
	s := New()

	base := time.Now()
	for i, id := range []string{"d1", "d2", "d3", "d4", "d5"} {
		d := newTestDelivery(id, "ep_1", base.Add(time.Duration(i)*time.Minute))
		if id == "d3" || id == "d5" {
			d.Status = domain.StatusDelivered
		}
		if err := s.CreateDelivery(ctx, d); err != nil {
			t.Fatalf("CreateDelivery(%s): %v", id, err)
		}
	}
	// delivery for a different endpoint must never leak into ep_1's listing
	other := newTestDelivery("other", "ep_2", base.Add(10*time.Minute))
	s.CreateDelivery(ctx, other)

	all, err := s.ListDeliveries(ctx, "ep_1", ListFilter{})
	if err != nil {
		t.Fatalf("ListDeliveries: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 deliveries for ep_1, got %d", len(all))
	}
	// newest (d5) first
	wantOrder := []string{"d5", "d4", "d3", "d2", "d1"}
	for i, d := range all {
		if d.ID != wantOrder[i] {
			t.Fatalf("position %d: got %s, want %s (descending CreatedAt)", i, d.ID, wantOrder[i])
		}
	}

	delivered, err := s.ListDeliveries(ctx, "ep_1", ListFilter{Status: domain.StatusDelivered})
	if err != nil {
		t.Fatalf("ListDeliveries filtered: %v", err)
	}
	if len(delivered) != 2 {
		t.Fatalf("expected 2 delivered, got %d", len(delivered))
	}

	page, err := s.ListDeliveries(ctx, "ep_1", ListFilter{Offset: 1, Limit: 2})
	if err != nil {
		t.Fatalf("ListDeliveries paged: %v", err)
	}
	if len(page) != 2 || page[0].ID != "d4" || page[1].ID != "d3" {
		t.Fatalf("expected page [d4, d3] after offset 1 limit 2, got %v", idsOf(page))
	}

	beyond, err := s.ListDeliveries(ctx, "ep_1", ListFilter{Offset: 100})
	if err != nil {
		t.Fatalf("ListDeliveries offset beyond range: %v", err)
	}
	if len(beyond) != 0 {
		t.Fatalf("expected empty result for offset beyond range, got %d", len(beyond))
	}
}

func TestMemStore_AllDeliveriesForEndpoint(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.CreateDelivery(ctx, newTestDelivery("d1", "ep_1", time.Now()))
	s.CreateDelivery(ctx, newTestDelivery("d2", "ep_2", time.Now()))

	all, err := s.AllDeliveriesForEndpoint(ctx, "ep_1")
	if err != nil {
		t.Fatalf("AllDeliveriesForEndpoint: %v", err)
	}
	if len(all) != 1 || all[0].ID != "d1" {
		t.Fatalf("expected only d1, got %v", idsOf(all))
	}
}

func idsOf(ds []*domain.Delivery) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.ID
	}
	return out
}
