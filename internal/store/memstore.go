package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hookrelay/engine/internal/domain"
)

// MemStore is the in-memory Store implementation the core engine runs
// against by default: two keyed maps guarded by a single RWMutex, exactly
// as the data model calls for. Reads return defensive copies; writes go
// through the mutex for the minimum span required.
type MemStore struct {
	mu         sync.RWMutex
	endpoints  map[string]*domain.Endpoint
	deliveries map[string]*domain.Delivery
}

// New returns an empty MemStore.
func New() *MemStore {
	return &MemStore{
		endpoints:  make(map[string]*domain.Endpoint),
		deliveries: make(map[string]*domain.Delivery),
	}
}

func (s *MemStore) CreateEndpoint(ctx context.Context, ep *domain.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.endpoints[ep.ID]; exists {
		return fmt.Errorf("memstore: endpoint %s already exists", ep.ID)
	}
	s.endpoints[ep.ID] = ep.Clone()
	return nil
}

func (s *MemStore) GetEndpoint(ctx context.Context, id string) (*domain.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ep, ok := s.endpoints[id]
	if !ok {
		return nil, nil
	}
	return ep.Clone(), nil
}

func (s *MemStore) UpdateEndpoint(ctx context.Context, ep *domain.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.endpoints[ep.ID]; !exists {
		return ErrNotFound
	}
	s.endpoints[ep.ID] = ep.Clone()
	return nil
}

func (s *MemStore) DeleteEndpoint(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.endpoints[id]; !exists {
		return ErrNotFound
	}
	delete(s.endpoints, id)
	return nil
}

func (s *MemStore) ListEndpoints(ctx context.Context) ([]*domain.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Endpoint, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		out = append(out, ep.Clone())
	}
	return out, nil
}

func (s *MemStore) CreateDelivery(ctx context.Context, d *domain.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.deliveries[d.ID]; exists {
		return fmt.Errorf("memstore: delivery %s already exists", d.ID)
	}
	s.deliveries[d.ID] = d.Clone()
	return nil
}

func (s *MemStore) GetDelivery(ctx context.Context, id string) (*domain.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deliveries[id]
	if !ok {
		return nil, nil
	}
	return d.Clone(), nil
}

func (s *MemStore) UpdateDelivery(ctx context.Context, d *domain.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.deliveries[d.ID]; !exists {
		return ErrNotFound
	}
	s.deliveries[d.ID] = d.Clone()
	return nil
}

func (s *MemStore) DeleteDelivery(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.deliveries[id]; !exists {
		return ErrNotFound
	}
	delete(s.deliveries, id)
	return nil
}

func (s *MemStore) ListDeliveries(ctx context.Context, endpointID string, filter ListFilter) ([]*domain.Delivery, error) {
	s.mu.RLock()
	matches := make([]*domain.Delivery, 0)
	for _, d := range s.deliveries {
		if d.EndpointID != endpointID {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		matches = append(matches, d.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matches) {
			return []*domain.Delivery{}, nil
		}
		matches = matches[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matches) {
		matches = matches[:filter.Limit]
	}
	return matches, nil
}

func (s *MemStore) AllDeliveriesForEndpoint(ctx context.Context, endpointID string) ([]*domain.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Delivery, 0)
	for _, d := range s.deliveries {
		if d.EndpointID == endpointID {
			out = append(out, d.Clone())
		}
	}
	return out, nil
}

var _ Store = (*MemStore)(nil)
