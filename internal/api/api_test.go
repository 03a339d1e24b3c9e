package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hookrelay/engine/internal/dispatch"
	"github.com/hookrelay/engine/internal/scheduler"
	"github.com/hookrelay/engine/internal/store"
	"github.com/hookrelay/engine/internal/worker"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRouter wires an in-memory store, a local in-process scheduler, the
// Dispatcher, and the attempt Worker together exactly as cmd/server does for
// the in-memory deployment mode, so these tests exercise the full request
// path end to end.
func newTestRouter(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	st := store.New()

	var w *worker.Worker
	sched := scheduler.NewLocal(4, func(ctx context.Context, id string) error {
		return w.Attempt(ctx, id)
	}, discardLogger())
	w = worker.New(st, sched, worker.DefaultConfig(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	sched.Start(ctx)
	t.Cleanup(sched.Stop)

	d := dispatch.New(st, sched, discardLogger())

	router := NewRouter(Deps{
		Store:      st,
		Dispatcher: d,
		Worker:     w,
		Depth:      sched,
	})
	return router, st
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestEndpointCRUD_ThroughHTTP(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/endpoints/", createEndpointRequest{
		URL:    "https://sink.example/hook",
		Events: []string{"order.created"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatal("expected a generated endpoint id")
	}
	if created["secret"] == nil || created["secret"] == "" {
		t.Fatal("expected the secret to be present on create")
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/endpoints/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}
	var fetched map[string]any
	json.Unmarshal(rec.Body.Bytes(), &fetched)
	if _, hasSecret := fetched["secret"]; hasSecret {
		t.Fatal("expected secret to be omitted on a subsequent read")
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/endpoints/"+id+"/toggle-active", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle-active: status = %d", rec.Code)
	}
	var toggled map[string]any
	json.Unmarshal(rec.Body.Bytes(), &toggled)
	if toggled["active"] != false {
		t.Fatalf("expected active=false after toggling a newly-created (active) endpoint, got %v", toggled["active"])
	}

	rec = doRequest(t, router, http.MethodDelete, "/api/v1/endpoints/"+id, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/endpoints/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestEventDispatch_DeliversEndToEnd(t *testing.T) {
	var received atomic.Bool
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Store(true)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer sink.Close()

	router, st := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/endpoints/", createEndpointRequest{
		URL:    sink.URL,
		Events: []string{"order.created"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create endpoint: status = %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/events/", createEventRequest{
		Type: "order.created",
		Data: json.RawMessage(`{"order_id":"abc"}`),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("dispatch event: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var dispatched createEventResponse
	json.Unmarshal(rec.Body.Bytes(), &dispatched)
	if dispatched.DeliveriesQueued != 1 {
		t.Fatalf("expected exactly 1 delivery queued, got %d", dispatched.DeliveriesQueued)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if received.Load() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !received.Load() {
		t.Fatal("expected the sink to have received the delivery")
	}

	deliveries, err := st.AllDeliveriesForEndpoint(context.Background(), mustOnlyEndpointID(t, st))
	if err != nil {
		t.Fatalf("AllDeliveriesForEndpoint: %v", err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliveries))
	}
}

func mustOnlyEndpointID(t *testing.T, st store.Store) string {
	t.Helper()
	endpoints, err := st.ListEndpoints(context.Background())
	if err != nil {
		t.Fatalf("ListEndpoints: %v", err)
	}
	if len(endpoints) != 1 {
		t.Fatalf("expected exactly one endpoint, got %d", len(endpoints))
	}
	return endpoints[0].ID
}
