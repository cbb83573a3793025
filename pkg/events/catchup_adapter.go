package events

import (
	"context"

	"github.com/testgenai/testgen/pkg/models"
)

// eventQuerier abstracts the event query method needed by RepositoryCatchupAdapter.
// Implemented by *repository.EventRepository.
type eventQuerier interface {
	ListSince(ctx context.Context, requestID string, afterID int64) ([]*models.Event, error)
}

// RepositoryCatchupAdapter adapts an eventQuerier (the repository layer, which
// is keyed by request id) to CatchupQuerier (keyed by NOTIFY channel name).
type RepositoryCatchupAdapter struct {
	querier eventQuerier
}

// NewRepositoryCatchupAdapter wraps a repository.EventRepository for use as a
// Broker's CatchupQuerier.
func NewRepositoryCatchupAdapter(q eventQuerier) *RepositoryCatchupAdapter {
	return &RepositoryCatchupAdapter{querier: q}
}

// GetCatchupEvents implements CatchupQuerier by parsing the request id out of
// channel and delegating to the repository's per-request query.
func (a *RepositoryCatchupAdapter) GetCatchupEvents(ctx context.Context, channel string, sinceID int64, limit int) ([]CatchupEvent, error) {
	requestID, err := eventsByRequest(channel)
	if err != nil {
		return nil, err
	}
	rows, err := a.querier.ListSince(ctx, requestID, sinceID)
	if err != nil {
		return nil, err
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]CatchupEvent, len(rows))
	for i, r := range rows {
		out[i] = CatchupEvent{ID: r.ID, Payload: r.Payload}
	}
	return out, nil
}
