package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/testgenai/testgen/pkg/apperrors"
	"github.com/testgenai/testgen/pkg/models"
)

// CheckpointRepository persists workflow resume state. One row per request
// (enforced by the checkpoints_request_id_idx unique index); Upsert replaces
// it atomically on every stage transition.
type CheckpointRepository struct {
	db *sqlx.DB
}

// NewCheckpointRepository constructs a CheckpointRepository.
func NewCheckpointRepository(db *sqlx.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// Upsert writes or replaces the checkpoint for cp.RequestID.
func (repo *CheckpointRepository) Upsert(ctx context.Context, cp *models.Checkpoint) error {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO checkpoints (id, request_id, version, last_stage, payload, retry_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (request_id) DO UPDATE SET
			version = EXCLUDED.version,
			last_stage = EXCLUDED.last_stage,
			payload = EXCLUDED.payload,
			retry_count = EXCLUDED.retry_count,
			updated_at = now()`,
		cp.ID, cp.RequestID, cp.Version, cp.LastStage, cp.Payload, cp.RetryCount,
	)
	if err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

// GetByRequest loads the checkpoint for a request, if any.
func (repo *CheckpointRepository) GetByRequest(ctx context.Context, requestID string) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	err := repo.db.GetContext(ctx, &cp, `SELECT * FROM checkpoints WHERE request_id = $1`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return &cp, nil
}

// Delete removes the checkpoint for a request (called once it completes or
// is permanently abandoned).
func (repo *CheckpointRepository) Delete(ctx context.Context, requestID string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE request_id = $1`, requestID)
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}
