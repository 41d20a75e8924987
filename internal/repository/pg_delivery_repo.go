package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notifyhub/syften-relay/internal/domain"
)

type pgDeliveryRepository struct {
	pool *pgxpool.Pool
}

// NewPgDeliveryRepository returns a DeliveryRepository backed by PostgreSQL.
func NewPgDeliveryRepository(pool *pgxpool.Pool) DeliveryRepository {
	return &pgDeliveryRepository{pool: pool}
}

func (r *pgDeliveryRepository) Record(ctx context.Context, d *domain.Delivery) error {
	prepareRecord(d)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO deliveries
			(id, message_id, filter, backend, item_url, outcome, error_message, attempted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		d.ID, d.MessageID, d.Filter, d.Backend, d.ItemURL, d.Outcome, d.ErrorMessage, d.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

func (r *pgDeliveryRepository) List(ctx context.Context, f domain.DeliveryFilter) ([]*domain.Delivery, error) {
	where, args := buildListWhere(f)
	args = append(args, normalizeLimit(f.Limit))

	query := fmt.Sprintf(`
		SELECT id, message_id, filter, backend, item_url, outcome, error_message, attempted_at
		FROM deliveries%s
		ORDER BY attempted_at DESC
		LIMIT $%d`, where, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()
	return scanDeliveries(rows)
}

func (r *pgDeliveryRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM deliveries WHERE attempted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ---- helpers ----

// prepareRecord fills in the generated fields of a new record.
func prepareRecord(d *domain.Delivery) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.AttemptedAt.IsZero() {
		d.AttemptedAt = time.Now().UTC()
	}
}

func scanDeliveries(rows pgx.Rows) ([]*domain.Delivery, error) {
	result := []*domain.Delivery{}
	for rows.Next() {
		var d domain.Delivery
		if err := rows.Scan(
			&d.ID, &d.MessageID, &d.Filter, &d.Backend, &d.ItemURL,
			&d.Outcome, &d.ErrorMessage, &d.AttemptedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, &d)
	}
	return result, rows.Err()
}

// buildListWhere builds a parameterised WHERE clause from a DeliveryFilter.
func buildListWhere(f domain.DeliveryFilter) (string, []any) {
	var conditions []string
	var args []any

	add := func(condition string, val any) {
		args = append(args, val)
		conditions = append(conditions, fmt.Sprintf(condition, len(args)))
	}

	if f.Outcome != nil {
		add("outcome = $%d", string(*f.Outcome))
	}
	if f.Filter != "" {
		add("filter = $%d", f.Filter)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}
