// Package stats aggregates delivery outcomes for a single endpoint. It is
// pure: a single read-only pass over a store snapshot, with no side effects.
package stats

import (
	"context"
	"fmt"

	"github.com/hookrelay/engine/internal/domain"
	"github.com/hookrelay/engine/internal/store"
)

// EndpointStats summarizes every delivery recorded for one endpoint.
type EndpointStats struct {
	EndpointID        string  `json:"endpoint_id"`
	Total             int     `json:"total"`
	Delivered         int     `json:"delivered"`
	Failed            int     `json:"failed"`
	PendingOrRetrying int     `json:"pending_or_retrying"`
	SuccessRate       float64 `json:"success_rate"`
	AverageDurationMs float64 `json:"average_duration_ms"`
}

// ForEndpoint computes EndpointStats from a single snapshot of the
// endpoint's deliveries.
func ForEndpoint(ctx context.Context, st store.Store, endpointID string) (*EndpointStats, error) {
	deliveries, err := st.AllDeliveriesForEndpoint(ctx, endpointID)
	if err != nil {
		return nil, fmt.Errorf("loading deliveries for endpoint %s: %w", endpointID, err)
	}

	out := &EndpointStats{EndpointID: endpointID, Total: len(deliveries)}

	var durationSum int64
	var durationCount int

	for _, d := range deliveries {
		switch d.Status {
		case domain.StatusDelivered:
			out.Delivered++
		case domain.StatusFailed:
			out.Failed++
		default:
			out.PendingOrRetrying++
		}
		if d.DurationMs > 0 {
			durationSum += d.DurationMs
			durationCount++
		}
	}

	if out.Total > 0 {
		out.SuccessRate = float64(out.Delivered) / float64(out.Total) * 100
	}
	if durationCount > 0 {
		out.AverageDurationMs = float64(durationSum) / float64(durationCount)
	}

	return out, nil
}
