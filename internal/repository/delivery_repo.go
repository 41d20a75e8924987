package repository

import (
	"context"
	"time"

	"github.com/notifyhub/syften-relay/internal/domain"
)

// Default and maximum page sizes for List.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// DeliveryRepository persists the dispatcher's delivery log.
// The pgx implementation is in pg_delivery_repo.go.
// Tests use a hand-written mock (mock_delivery_repo.go).
type DeliveryRepository interface {
	// Record stores d, assigning ID and AttemptedAt when they are empty.
	Record(ctx context.Context, d *domain.Delivery) error
	// List returns the most recent records first.
	List(ctx context.Context, filter domain.DeliveryFilter) ([]*domain.Delivery, error)
	// Prune deletes records attempted before cutoff and returns how many.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// normalizeLimit clamps a requested page size to (0, MaxListLimit].
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
