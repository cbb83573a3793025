package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/testgenai/testgen/pkg/models"
)

// EventRepository persists progress-stream events for SSE catchup (spec §6).
// Rows back a subscriber that reconnects after missing Postgres NOTIFY
// traffic. Nothing in this repository prunes them on a schedule.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append inserts an event row and returns its assigned id, used as the
// client's catchup cursor (Last-Event-ID).
func (repo *EventRepository) Append(ctx context.Context, requestID, channel string, payload []byte) (int64, error) {
	var id int64
	err := repo.db.GetContext(ctx, &id, `
		INSERT INTO events (request_id, channel, payload) VALUES ($1, $2, $3) RETURNING id`,
		requestID, channel, payload,
	)
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	return id, nil
}

// ListSince returns events for requestID with id > afterID, in id order —
// used to replay missed traffic on SSE reconnect.
func (repo *EventRepository) ListSince(ctx context.Context, requestID string, afterID int64) ([]*models.Event, error) {
	var rows []*models.Event
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT id, request_id, channel, payload, created_at FROM events
		WHERE request_id = $1 AND id > $2 ORDER BY id ASC`, requestID, afterID)
	if err != nil {
		return nil, fmt.Errorf("list events since: %w", err)
	}
	return rows, nil
}

// PruneOlderThanSeconds deletes events older than the given retention window.
// No periodic caller is wired in this repository.
func (repo *EventRepository) PruneOlderThanSeconds(ctx context.Context, seconds int) (int64, error) {
	res, err := repo.db.ExecContext(ctx, `
		DELETE FROM events WHERE created_at < now() - ($1 || ' seconds')::interval`, seconds)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune events rows affected: %w", err)
	}
	return n, nil
}
