// Package dispatch turns an incoming event into queued delivery attempts:
// one Delivery row per active, subscribed Endpoint, each handed to the
// Scheduler before Dispatch returns.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hookrelay/engine/internal/domain"
	"github.com/hookrelay/engine/internal/idgen"
	"github.com/hookrelay/engine/internal/scheduler"
	"github.com/hookrelay/engine/internal/store"
	"github.com/hookrelay/engine/internal/webhookerr"
)

// Dispatcher fans an event out to every matching endpoint.
type Dispatcher struct {
	store     store.Store
	scheduler scheduler.Scheduler
	logger    *slog.Logger

	// BackpressureThreshold is the maximum queue depth the Scheduler may
	// report before Dispatch refuses new work with an Overloaded error. A
	// zero value disables the check (the default Scheduler.Depther is only
	// consulted when this is positive).
	BackpressureThreshold int64
}

// New creates a Dispatcher over the given Store and Scheduler.
func New(st store.Store, sch scheduler.Scheduler, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{store: st, scheduler: sch, logger: logger}
}

// Dispatch records a new Event and creates+enqueues one Delivery per active
// endpoint subscribed to eventType. It returns every Delivery it
// successfully created and enqueued; a partial failure on one endpoint does
// not abort processing of the others, but is reflected in the returned
// error.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, data json.RawMessage) ([]*domain.Delivery, error) {
	if d.BackpressureThreshold > 0 {
		if depther, ok := d.scheduler.(scheduler.Depther); ok {
			depth, err := depther.QueueDepth(ctx)
			if err == nil && depth > d.BackpressureThreshold {
				return nil, webhookerr.New(webhookerr.Overloaded, fmt.Sprintf("queue depth %d above threshold %d", depth, d.BackpressureThreshold))
			}
		}
	}

	event := domain.Event{
		ID:        idgen.New("evt"),
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	endpoints, err := d.store.ListEndpoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing endpoints: %w", err)
	}

	deliveries := make([]*domain.Delivery, 0)
	var dispatchErr error

	for _, ep := range endpoints {
		if !ep.Active || !ep.MatchesEvent(eventType) {
			continue
		}

		delivery := &domain.Delivery{
			ID:         idgen.New("dlv"),
			EndpointID: ep.ID,
			EventID:    event.ID,
			Event:      event,
			Status:     domain.StatusPending,
			CreatedAt:  time.Now().UTC(),
		}

		if err := d.store.CreateDelivery(ctx, delivery); err != nil {
			dispatchErr = combine(dispatchErr, fmt.Errorf("creating delivery for endpoint %s: %w", ep.ID, err))
			continue
		}

		if err := d.scheduler.Enqueue(ctx, delivery.ID); err != nil {
			// Compensate: a Delivery must never exist without a queued
			// attempt. Best-effort cleanup — if this also fails we log it
			// but still report the original enqueue error to the caller.
			if delErr := d.store.DeleteDelivery(ctx, delivery.ID); delErr != nil && d.logger != nil {
				d.logger.Error("failed to compensate delivery after enqueue failure",
					"delivery_id", delivery.ID, "endpoint_id", ep.ID, "error", delErr)
			}
			dispatchErr = combine(dispatchErr, fmt.Errorf("enqueueing delivery for endpoint %s: %w", ep.ID, err))
			continue
		}

		deliveries = append(deliveries, delivery)
	}

	if d.logger != nil {
		d.logger.Info("event dispatched", "event_id", event.ID, "event_type", eventType, "deliveries_queued", len(deliveries))
	}

	return deliveries, dispatchErr
}

func combine(existing, next error) error {
	if existing == nil {
		return next
	}
	return fmt.Errorf("%w; %v", existing, next)
}
