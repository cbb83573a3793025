package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Publisher publishes progress events for SSE delivery. Persistent events are
// stored in the events table then broadcast via pg_notify in the same
// transaction, so a reconnecting subscriber's catchup query and the NOTIFY
// stream never disagree about what was published.
type Publisher struct {
	db *sql.DB
}

// NewPublisher creates a Publisher over the raw *sql.DB (not sqlx — pg_notify
// and the events insert are plain SQL with no JSONB struct scanning).
func NewPublisher(db *sql.DB) *Publisher {
	return &Publisher{db: db}
}

// PublishStageStatus persists and broadcasts a stage.status event.
func (p *Publisher) PublishStageStatus(ctx context.Context, payload StageStatusPayload) error {
	payload.Type = EventTypeStageStatus
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal stage status payload: %w", err)
	}
	return p.persistAndNotify(ctx, payload.RequestID, body)
}

// PublishMetric persists and broadcasts a metric.recorded event.
func (p *Publisher) PublishMetric(ctx context.Context, payload MetricPayload) error {
	payload.Type = EventTypeMetric
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal metric payload: %w", err)
	}
	return p.persistAndNotify(ctx, payload.RequestID, body)
}

// PublishTerminal persists and broadcasts the request's terminal state.
func (p *Publisher) PublishTerminal(ctx context.Context, payload TerminalPayload) error {
	if payload.Type == "" {
		payload.Type = EventTypeCompleted
		if payload.ErrorCode != "" {
			payload.Type = EventTypeFailed
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal terminal payload: %w", err)
	}
	return p.persistAndNotify(ctx, payload.RequestID, body)
}

// persistAndNotify inserts the event row and fires pg_notify within the same
// transaction — pg_notify is transactional in Postgres, held until COMMIT, so
// a subscriber can never observe the NOTIFY before the row is visible to its
// own catchup query.
func (p *Publisher) persistAndNotify(ctx context.Context, requestID string, body []byte) error {
	channel := RequestChannel(requestID)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var eventID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO events (request_id, channel, payload, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		requestID, channel, body, time.Now(),
	).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("persist event: %w", err)
	}

	notifyBody, err := injectEventIDAndTruncate(body, eventID)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyBody); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event tx: %w", err)
	}
	return nil
}

// notifyMaxBytes is below PostgreSQL's 8000-byte NOTIFY payload limit, leaving
// headroom for the routing fields injected by buildTruncatedPayload.
const notifyMaxBytes = 7900

// injectEventIDAndTruncate adds the assigned event id to the payload (used by
// subscribers as their catchup cursor) and truncates to a routing-only
// envelope if the enriched payload would exceed PostgreSQL's NOTIFY limit.
func injectEventIDAndTruncate(body []byte, eventID int64) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return "", fmt.Errorf("unmarshal payload for event id injection: %w", err)
	}
	m["event_id"] = eventID

	enriched, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal enriched notify payload: %w", err)
	}
	if len(enriched) <= notifyMaxBytes {
		return string(enriched), nil
	}
	return buildTruncatedPayload(m, eventID)
}

// buildTruncatedPayload returns a minimal envelope carrying only the routing
// fields a subscriber needs to fetch the full row via catchup.
func buildTruncatedPayload(m map[string]any, eventID int64) (string, error) {
	truncated := map[string]any{
		"type":       m["type"],
		"request_id": m["request_id"],
		"event_id":   eventID,
		"truncated":  true,
	}
	out, err := json.Marshal(truncated)
	if err != nil {
		return "", fmt.Errorf("marshal truncated payload: %w", err)
	}
	return string(out), nil
}
