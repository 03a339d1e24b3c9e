// Package store defines the persistence contract the delivery engine
// depends on, plus an in-memory implementation (memstore-equivalent, the
// default the core runs against) and a Postgres-backed one for durable
// deployments.
package store

import (
	"context"

	"github.com/hookrelay/engine/internal/domain"
)

// ListFilter narrows a delivery listing: optional status, then
// offset/limit applied in that order over results sorted by CreatedAt
// descending.
type ListFilter struct {
	Status domain.Status // zero value means "any status"
	Offset int
	Limit  int // zero or negative means "no limit"
}

// Store is the persistence contract for endpoints and deliveries. All
// operations are atomic with respect to each other; implementations may use
// a single guard or fine-grained per-entity locks. Snapshots returned to
// callers are defensive copies — mutating a returned value never affects
// stored state.
type Store interface {
	CreateEndpoint(ctx context.Context, ep *domain.Endpoint) error
	GetEndpoint(ctx context.Context, id string) (*domain.Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep *domain.Endpoint) error
	DeleteEndpoint(ctx context.Context, id string) error
	ListEndpoints(ctx context.Context) ([]*domain.Endpoint, error)

	CreateDelivery(ctx context.Context, d *domain.Delivery) error
	GetDelivery(ctx context.Context, id string) (*domain.Delivery, error)
	UpdateDelivery(ctx context.Context, d *domain.Delivery) error
	// DeleteDelivery removes a delivery record. It exists only to let the
	// Dispatcher compensate when a Delivery is created but the matching
	// Scheduler.Enqueue fails, preserving the invariant that no Delivery
	// exists without a queued attempt.
	DeleteDelivery(ctx context.Context, id string) error
	ListDeliveries(ctx context.Context, endpointID string, filter ListFilter) ([]*domain.Delivery, error)
	AllDeliveriesForEndpoint(ctx context.Context, endpointID string) ([]*domain.Delivery, error)
}

// ErrNotFound is returned by Update/Delete operations when the target id
// does not exist. Get operations instead return (nil, nil) on a miss,
// following the teacher codebase's convention for read paths.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "store: not found" }
