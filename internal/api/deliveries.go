package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hookrelay/engine/internal/domain"
	"github.com/hookrelay/engine/internal/store"
)

// deliveryRetrier matches worker.Worker.RetryDelivery, declared locally so
// this package depends on the method it needs rather than the whole
// worker package.
type deliveryRetrier interface {
	RetryDelivery(ctx context.Context, deliveryID string) (bool, error)
}

// DeliveryHandler serves delivery introspection and manual retries.
type DeliveryHandler struct {
	store store.Store
	work  deliveryRetrier
}

func NewDeliveryHandler(st store.Store, w deliveryRetrier) *DeliveryHandler {
	return &DeliveryHandler{store: st, work: w}
}

func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	endpointID := r.URL.Query().Get("endpoint_id")
	if endpointID == "" {
		respondError(w, http.StatusBadRequest, "endpoint_id is required")
		return
	}

	status := domain.Status(r.URL.Query().Get("status"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	deliveries, err := h.store.ListDeliveries(r.Context(), endpointID, store.ListFilter{
		Status: status,
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}

	respondJSON(w, http.StatusOK, deliveries)
}

func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := h.store.GetDelivery(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get delivery")
		return
	}
	if d == nil {
		respondError(w, http.StatusNotFound, "delivery not found")
		return
	}

	respondJSON(w, http.StatusOK, d)
}

func (h *DeliveryHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	queued, err := h.work.RetryDelivery(r.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			respondError(w, http.StatusNotFound, "delivery not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to retry delivery")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
}
