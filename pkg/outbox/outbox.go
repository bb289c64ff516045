// Package outbox durably stages outgoing events in the database before
// they are published. The engines record an event as part of their
// logical unit of work; the dispatcher delivers staged events to the
// broker at least once, surviving broker outages and process restarts.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Event is one staged outgoing event.
type Event struct {
	ID            int64
	AggregateType string
	RoutingKey    string
	Payload       json.RawMessage
	Status        string
	RetryCount    int
	NextRetryAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Repository persists staged events.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Insert stages one event as pending. A single INSERT is atomic, so
// the event is durable the moment this returns.
func (r *Repository) Insert(ctx context.Context, e *Event) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO outbox_events (aggregate_type, routing_key, payload, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		e.AggregateType,
		e.RoutingKey,
		e.Payload,
		StatusPending,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to stage outbox event: %w", err)
	}
	e.Status = StatusPending
	return nil
}

const selectEventColumns = `
        SELECT id, aggregate_type, routing_key, payload, status,
               retry_count, next_retry_at, created_at, updated_at
        FROM outbox_events
    `

// ListPending returns events due for delivery, oldest first.
func (r *Repository) ListPending(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := r.db.Query(ctx, selectEventColumns+`
		WHERE status = 'pending'
		AND (next_retry_at IS NULL OR next_retry_at <= now())
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListFailed returns events that exhausted their retries, newest first.
func (r *Repository) ListFailed(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := r.db.Query(ctx, selectEventColumns+`
		WHERE status = 'failed'
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// GetByID loads one event.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Event, error) {
	var e Event
	err := r.db.QueryRow(ctx, selectEventColumns+` WHERE id = $1`, id).Scan(
		&e.ID,
		&e.AggregateType,
		&e.RoutingKey,
		&e.Payload,
		&e.Status,
		&e.RetryCount,
		&e.NextRetryAt,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("outbox event %d not found", id)
		}
		return nil, fmt.Errorf("failed to load outbox event %d: %w", id, err)
	}
	return &e, nil
}

// MarkSent records a successful delivery.
func (r *Repository) MarkSent(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'sent', updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event %d sent: %w", id, err)
	}
	return nil
}

// MarkFailed bumps the retry count and schedules the next attempt with
// a linear backoff; the event moves to failed once maxRetries is hit.
func (r *Repository) MarkFailed(ctx context.Context, id int64, maxRetries int) error {
	var retryCount int
	if err := r.db.QueryRow(ctx,
		`SELECT retry_count FROM outbox_events WHERE id = $1`, id,
	).Scan(&retryCount); err != nil {
		return fmt.Errorf("failed to load retry count of outbox event %d: %w", id, err)
	}

	retryCount++
	status := StatusPending
	var nextRetryAt *time.Time
	if retryCount >= maxRetries {
		status = StatusFailed
	} else {
		next := time.Now().Add(time.Duration(retryCount) * 5 * time.Second)
		nextRetryAt = &next
	}

	_, err := r.db.Exec(ctx, `
		UPDATE outbox_events
		SET status = $1, retry_count = $2, next_retry_at = $3, updated_at = now()
		WHERE id = $4`,
		status, retryCount, nextRetryAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event %d failed: %w", id, err)
	}
	return nil
}

// Reset moves a failed event back to pending with a clean retry slate.
func (r *Repository) Reset(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'pending', retry_count = 0, next_retry_at = NULL, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to reset outbox event %d: %w", id, err)
	}
	return nil
}

func scanEvents(rows pgx.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.ID,
			&e.AggregateType,
			&e.RoutingKey,
			&e.Payload,
			&e.Status,
			&e.RetryCount,
			&e.NextRetryAt,
			&e.CreatedAt,
			&e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
