package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hookrelay/engine/internal/domain"
)

func (s *PostgresStore) CreateDelivery(ctx context.Context, d *domain.Delivery) error {
	eventRaw, responseRaw, err := marshalDeliveryColumns(d)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO deliveries (id, endpoint_id, event_id, event, status, attempts, last_attempt_at,
		                        next_retry_at, response, error, duration_ms, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9::jsonb, $10, $11, $12)
	`, d.ID, d.EndpointID, d.EventID, eventRaw, string(d.Status), d.Attempts, d.LastAttemptAt,
		d.NextRetryAt, responseRaw, d.Error, d.DurationMs, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting delivery: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDelivery(ctx context.Context, id string) (*domain.Delivery, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, endpoint_id, event_id, event, status, attempts, last_attempt_at,
		       next_retry_at, response, error, duration_ms, created_at
		FROM deliveries WHERE id = $1
	`, id)
	d, err := scanDelivery(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying delivery: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) UpdateDelivery(ctx context.Context, d *domain.Delivery) error {
	eventRaw, responseRaw, err := marshalDeliveryColumns(d)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE deliveries
		SET event = $2::jsonb, status = $3, attempts = $4, last_attempt_at = $5,
		    next_retry_at = $6, response = $7::jsonb, error = $8, duration_ms = $9
		WHERE id = $1
	`, d.ID, eventRaw, string(d.Status), d.Attempts, d.LastAttemptAt, d.NextRetryAt, responseRaw, d.Error, d.DurationMs)
	if err != nil {
		return fmt.Errorf("updating delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteDelivery(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM deliveries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListDeliveries(ctx context.Context, endpointID string, filter ListFilter) ([]*domain.Delivery, error) {
	query := `
		SELECT id, endpoint_id, event_id, event, status, attempts, last_attempt_at,
		       next_retry_at, response, error, duration_ms, created_at
		FROM deliveries WHERE endpoint_id = $1`
	args := []any{endpointID}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Delivery, 0)
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AllDeliveriesForEndpoint(ctx context.Context, endpointID string) ([]*domain.Delivery, error) {
	return s.ListDeliveries(ctx, endpointID, ListFilter{})
}

func scanDelivery(row rowScanner) (*domain.Delivery, error) {
	var d domain.Delivery
	var status string
	var eventRaw, responseRaw []byte

	err := row.Scan(&d.ID, &d.EndpointID, &d.EventID, &eventRaw, &status, &d.Attempts, &d.LastAttemptAt,
		&d.NextRetryAt, &responseRaw, &d.Error, &d.DurationMs, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.Status = domain.Status(status)

	if len(eventRaw) > 0 {
		if err := json.Unmarshal(eventRaw, &d.Event); err != nil {
			return nil, fmt.Errorf("decoding event: %w", err)
		}
	}
	if len(responseRaw) > 0 {
		var resp domain.Response
		if err := json.Unmarshal(responseRaw, &resp); err != nil {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
		d.Response = &resp
	}
	return &d, nil
}

func marshalDeliveryColumns(d *domain.Delivery) (event, response []byte, err error) {
	event, err = json.Marshal(d.Event)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding event: %w", err)
	}
	if d.Response != nil {
		response, err = json.Marshal(d.Response)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding response: %w", err)
		}
	}
	return event, response, nil
}

var _ Store = (*PostgresStore)(nil)
