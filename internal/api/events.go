package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hookrelay/engine/internal/dispatch"
	"github.com/hookrelay/engine/internal/store"
	"github.com/hookrelay/engine/internal/webhookerr"
)

// EventHandler accepts inbound events and fans them out to subscribed
// endpoints via the Dispatcher.
type EventHandler struct {
	store      store.Store
	dispatcher *dispatch.Dispatcher
}

func NewEventHandler(st store.Store, d *dispatch.Dispatcher) *EventHandler {
	return &EventHandler{store: st, dispatcher: d}
}

type createEventRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type createEventResponse struct {
	EventID          string `json:"event_id"`
	Type             string `json:"type"`
	DeliveriesQueued int    `json:"deliveries_queued"`
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" {
		respondError(w, http.StatusBadRequest, "type is required")
		return
	}
	if len(req.Data) == 0 || !json.Valid(req.Data) {
		respondError(w, http.StatusBadRequest, "data must be non-empty, valid JSON")
		return
	}

	deliveries, err := h.dispatcher.Dispatch(r.Context(), req.Type, req.Data)
	if err != nil {
		if webhookerr.Is(err, webhookerr.Overloaded) {
			respondError(w, http.StatusServiceUnavailable, "delivery queue is overloaded, try again later")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to dispatch event")
		return
	}

	var eventID, eventType string
	if len(deliveries) > 0 {
		eventID = deliveries[0].EventID
		eventType = deliveries[0].Event.Type
	} else {
		eventType = req.Type
	}

	respondJSON(w, http.StatusCreated, createEventResponse{
		EventID:          eventID,
		Type:             eventType,
		DeliveriesQueued: len(deliveries),
	})
}

// Get returns every delivery generated for one event id, scanning across
// all endpoints — an event has no independent storage of its own, it lives
// solely as the embedded payload of the deliveries it produced.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	endpoints, err := h.store.ListEndpoints(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list endpoints")
		return
	}

	var matches []any
	for _, ep := range endpoints {
		deliveries, err := h.store.AllDeliveriesForEndpoint(r.Context(), ep.ID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load deliveries")
			return
		}
		for _, d := range deliveries {
			if d.EventID == id {
				matches = append(matches, d)
			}
		}
	}

	if len(matches) == 0 {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}

	respondJSON(w, http.StatusOK, matches)
}
