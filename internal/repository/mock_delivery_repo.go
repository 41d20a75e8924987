package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/notifyhub/syften-relay/internal/domain"
)

// MockDeliveryRepository is a hand-written, in-memory implementation of
// DeliveryRepository used in unit tests.
type MockDeliveryRepository struct {
	mu         sync.RWMutex
	deliveries []*domain.Delivery

	// Optional error overrides, set in tests to simulate failure paths.
	RecordErr error
	ListErr   error
	PruneErr  error
}

func NewMockDeliveryRepository() *MockDeliveryRepository {
	return &MockDeliveryRepository{}
}

func (m *MockDeliveryRepository) Record(_ context.Context, d *domain.Delivery) error {
	if m.RecordErr != nil {
		return m.RecordErr
	}
	prepareRecord(d)
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *d
	m.deliveries = append(m.deliveries, &clone)
	return nil
}

func (m *MockDeliveryRepository) List(_ context.Context, f domain.DeliveryFilter) ([]*domain.Delivery, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []*domain.Delivery{}
	for _, d := range m.deliveries {
		if f.Outcome != nil && d.Outcome != *f.Outcome {
			continue
		}
		if f.Filter != "" && d.Filter != f.Filter {
			continue
		}
		clone := *d
		result = append(result, &clone)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].AttemptedAt.After(result[j].AttemptedAt)
	})
	if limit := normalizeLimit(f.Limit); len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockDeliveryRepository) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	if m.PruneErr != nil {
		return 0, m.PruneErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.deliveries[:0]
	var removed int64
	for _, d := range m.deliveries {
		if d.AttemptedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	m.deliveries = kept
	return removed, nil
}

// All returns every stored record in insertion order.
func (m *MockDeliveryRepository) All() []domain.Delivery {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Delivery, len(m.deliveries))
	for i, d := range m.deliveries {
		out[i] = *d
	}
	return out
}
