package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hookrelay/engine/internal/domain"
)

func (s *PostgresStore) CreateEndpoint(ctx context.Context, ep *domain.Endpoint) error {
	events, headers, retryConfig, err := marshalEndpointColumns(ep)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO endpoints (id, url, secret, events, active, headers, retry_config, description, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6::jsonb, $7::jsonb, $8, $9)
	`, ep.ID, ep.URL, ep.Secret, events, ep.Active, headers, retryConfig, ep.Description, ep.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting endpoint: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEndpoint(ctx context.Context, id string) (*domain.Endpoint, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, url, secret, events, active, headers, retry_config, description, created_at
		FROM endpoints WHERE id = $1
	`, id)
	ep, err := scanEndpoint(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying endpoint: %w", err)
	}
	return ep, nil
}

func (s *PostgresStore) UpdateEndpoint(ctx context.Context, ep *domain.Endpoint) error {
	events, headers, retryConfig, err := marshalEndpointColumns(ep)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE endpoints
		SET url = $2, secret = $3, events = $4::jsonb, active = $5, headers = $6::jsonb,
		    retry_config = $7::jsonb, description = $8
		WHERE id = $1
	`, ep.ID, ep.URL, ep.Secret, events, ep.Active, headers, retryConfig, ep.Description)
	if err != nil {
		return fmt.Errorf("updating endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteEndpoint(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM endpoints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListEndpoints(ctx context.Context) ([]*domain.Endpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, url, secret, events, active, headers, retry_config, description, created_at
		FROM endpoints ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying endpoints: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Endpoint, 0)
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning endpoint: %w", err)
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEndpoint(row rowScanner) (*domain.Endpoint, error) {
	var ep domain.Endpoint
	var eventsRaw, headersRaw, retryRaw []byte

	err := row.Scan(&ep.ID, &ep.URL, &ep.Secret, &eventsRaw, &ep.Active, &headersRaw, &retryRaw, &ep.Description, &ep.CreatedAt)
	if err != nil {
		return nil, err
	}

	if len(eventsRaw) > 0 {
		if err := json.Unmarshal(eventsRaw, &ep.Events); err != nil {
			return nil, fmt.Errorf("decoding events: %w", err)
		}
	}
	if len(headersRaw) > 0 {
		if err := json.Unmarshal(headersRaw, &ep.Headers); err != nil {
			return nil, fmt.Errorf("decoding headers: %w", err)
		}
	}
	if len(retryRaw) > 0 {
		var rc domain.RetryConfig
		if err := json.Unmarshal(retryRaw, &rc); err != nil {
			return nil, fmt.Errorf("decoding retry_config: %w", err)
		}
		ep.RetryConfig = &rc
	}
	return &ep, nil
}

func marshalEndpointColumns(ep *domain.Endpoint) (events, headers, retryConfig []byte, err error) {
	events, err = json.Marshal(ep.Events)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encoding events: %w", err)
	}
	headers, err = json.Marshal(ep.Headers)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encoding headers: %w", err)
	}
	if ep.RetryConfig != nil {
		retryConfig, err = json.Marshal(ep.RetryConfig)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("encoding retry_config: %w", err)
		}
	}
	return events, headers, retryConfig, nil
}
