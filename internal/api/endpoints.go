package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hookrelay/engine/internal/domain"
	"github.com/hookrelay/engine/internal/idgen"
	"github.com/hookrelay/engine/internal/resilience"
	"github.com/hookrelay/engine/internal/stats"
	"github.com/hookrelay/engine/internal/store"
)

// EndpointHandler serves the admin surface for registering and managing
// webhook endpoints.
type EndpointHandler struct {
	store   store.Store
	breaker *resilience.CircuitBreaker
}

func NewEndpointHandler(st store.Store, cb *resilience.CircuitBreaker) *EndpointHandler {
	return &EndpointHandler{store: st, breaker: cb}
}

type createEndpointRequest struct {
	URL         string              `json:"url"`
	Events      []string            `json:"events"`
	Headers     map[string]string   `json:"headers,omitempty"`
	RetryConfig *domain.RetryConfig `json:"retry_config,omitempty"`
	Description string              `json:"description,omitempty"`
}

type updateEndpointRequest struct {
	URL         *string             `json:"url,omitempty"`
	Events      []string            `json:"events,omitempty"`
	Headers     map[string]string   `json:"headers,omitempty"`
	RetryConfig *domain.RetryConfig `json:"retry_config,omitempty"`
	Description *string             `json:"description,omitempty"`
	Active      *bool               `json:"active,omitempty"`
}

// withoutSecret strips the shared secret from a snapshot before it leaves
// the process, so it can only ever be read at mint time (create or
// rotate-secret).
func withoutSecret(ep *domain.Endpoint) *domain.Endpoint {
	cp := ep.Clone()
	cp.Secret = ""
	return cp
}

func (h *EndpointHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}
	if len(req.Events) == 0 {
		respondError(w, http.StatusBadRequest, "at least one event type is required")
		return
	}

	ep := &domain.Endpoint{
		ID:          idgen.New("ep"),
		URL:         req.URL,
		Secret:      idgen.Secret(),
		Events:      domain.EventSet(req.Events),
		Active:      true,
		Headers:     req.Headers,
		RetryConfig: req.RetryConfig,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	}

	if err := h.store.CreateEndpoint(r.Context(), ep); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create endpoint")
		return
	}

	respondJSON(w, http.StatusCreated, ep)
}

func (h *EndpointHandler) List(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.store.ListEndpoints(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list endpoints")
		return
	}

	out := make([]*domain.Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		out = append(out, withoutSecret(ep))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *EndpointHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ep, err := h.store.GetEndpoint(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get endpoint")
		return
	}
	if ep == nil {
		respondError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	respondJSON(w, http.StatusOK, withoutSecret(ep))
}

func (h *EndpointHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ep, err := h.store.GetEndpoint(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get endpoint")
		return
	}
	if ep == nil {
		respondError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	if req.URL != nil {
		ep.URL = *req.URL
	}
	if req.Events != nil {
		ep.Events = domain.EventSet(req.Events)
	}
	if req.Headers != nil {
		ep.Headers = req.Headers
	}
	if req.RetryConfig != nil {
		ep.RetryConfig = req.RetryConfig
	}
	if req.Description != nil {
		ep.Description = *req.Description
	}
	if req.Active != nil {
		ep.Active = *req.Active
	}

	if err := h.store.UpdateEndpoint(r.Context(), ep); err != nil {
		if err == store.ErrNotFound {
			respondError(w, http.StatusNotFound, "endpoint not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to update endpoint")
		return
	}

	respondJSON(w, http.StatusOK, withoutSecret(ep))
}

func (h *EndpointHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.store.DeleteEndpoint(r.Context(), id); err != nil {
		if err == store.ErrNotFound {
			respondError(w, http.StatusNotFound, "endpoint not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete endpoint")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *EndpointHandler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ep, err := h.store.GetEndpoint(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get endpoint")
		return
	}
	if ep == nil {
		respondError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	ep.Secret = idgen.Secret()
	if err := h.store.UpdateEndpoint(r.Context(), ep); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to rotate secret")
		return
	}

	respondJSON(w, http.StatusOK, ep)
}

func (h *EndpointHandler) ToggleActive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ep, err := h.store.GetEndpoint(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get endpoint")
		return
	}
	if ep == nil {
		respondError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	ep.Active = !ep.Active
	if err := h.store.UpdateEndpoint(r.Context(), ep); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update endpoint")
		return
	}

	respondJSON(w, http.StatusOK, withoutSecret(ep))
}

type endpointStatsResponse struct {
	*stats.EndpointStats
	CircuitBreaker *resilience.CircuitBreakerState `json:"circuit_breaker,omitempty"`
}

func (h *EndpointHandler) Stats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ep, err := h.store.GetEndpoint(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get endpoint")
		return
	}
	if ep == nil {
		respondError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	s, err := stats.ForEndpoint(r.Context(), h.store, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}

	resp := endpointStatsResponse{EndpointStats: s}
	if h.breaker != nil {
		state := h.breaker.GetState(r.Context(), id)
		resp.CircuitBreaker = &state
	}

	respondJSON(w, http.StatusOK, resp)
}
