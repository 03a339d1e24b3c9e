package api

import (
	"context"
	"net/http"

	"github.com/hookrelay/engine/internal/live"
)

// depther matches scheduler.Depther, declared locally to avoid importing
// the scheduler package just for this one capability check.
type depther interface {
	QueueDepth(ctx context.Context) (int64, error)
}

// MetricsHandler reports system-wide operational metrics for the
// dashboard: queue depth (when the wired Scheduler supports reporting it)
// and the number of connected live-feed clients.
type MetricsHandler struct {
	sched depther
	hub   *live.Hub
}

func NewMetricsHandler(sched depther, hub *live.Hub) *MetricsHandler {
	return &MetricsHandler{sched: sched, hub: hub}
}

type metricsResponse struct {
	QueueDepth  int64 `json:"queue_depth"`
	LiveClients int   `json:"live_clients"`
}

func (h *MetricsHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := metricsResponse{}

	if h.sched != nil {
		depth, err := h.sched.QueueDepth(r.Context())
		if err == nil {
			resp.QueueDepth = depth
		}
	}
	if h.hub != nil {
		resp.LiveClients = h.hub.ClientCount()
	}

	respondJSON(w, http.StatusOK, resp)
}
