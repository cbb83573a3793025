// Package repository implements the persistence adapter: CRUD access to the
// five entities of spec §3 plus the checkpoint and event tables, using
// database/sql + sqlx directly (no ORM/codegen — see DESIGN.md).
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/testgenai/testgen/pkg/apperrors"
	"github.com/testgenai/testgen/pkg/models"
)

// RequestRepository persists Request rows.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs a RequestRepository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// requestRow is the wire shape scanned from/written to the requests table;
// JSON-typed columns use JSONColumn so sqlx can (un)marshal them directly.
type requestRow struct {
	ID                   string                     `db:"id"`
	Owner                sql.NullString             `db:"owner"`
	URL                  string                     `db:"url"`
	Requirements         JSONColumn[[]string]       `db:"requirements"`
	TestType             string                     `db:"test_type"`
	Status               string                     `db:"status"`
	ResultSummary        JSONColumn[map[string]any] `db:"result_summary"`
	ErrorCode            sql.NullString             `db:"error_code"`
	ErrorMessage         sql.NullString             `db:"error_message"`
	RetryCount           int                        `db:"retry_count"`
	MaxRetries           int                        `db:"max_retries"`
	StartedAt            sql.NullTime               `db:"started_at"`
	CompletedAt          sql.NullTime               `db:"completed_at"`
	DurationSeconds      sql.NullFloat64            `db:"duration_seconds"`
	WorkflowCheckpointID sql.NullString             `db:"workflow_checkpoint_id"`
	CreatedAt            time.Time                  `db:"created_at"`
}

func (r requestRow) toModel() *models.Request {
	m := &models.Request{
		ID:           r.ID,
		URL:          r.URL,
		Requirements: r.Requirements.V,
		TestType:     models.TestType(r.TestType),
		Status:       models.RequestStatus(r.Status),
		RetryCount:   r.RetryCount,
		MaxRetries:   r.MaxRetries,
		CreatedAt:    r.CreatedAt,
	}
	if r.Owner.Valid {
		m.Owner = &r.Owner.String
	}
	if len(r.ResultSummary.V) > 0 {
		m.ResultSummary = r.ResultSummary.V
	}
	if r.ErrorCode.Valid {
		m.ErrorCode = &r.ErrorCode.String
	}
	if r.ErrorMessage.Valid {
		m.ErrorMessage = &r.ErrorMessage.String
	}
	if r.StartedAt.Valid {
		m.StartedAt = &r.StartedAt.Time
	}
	if r.CompletedAt.Valid {
		m.CompletedAt = &r.CompletedAt.Time
	}
	if r.DurationSeconds.Valid {
		m.DurationSeconds = &r.DurationSeconds.Float64
	}
	if r.WorkflowCheckpointID.Valid {
		m.WorkflowCheckpointID = &r.WorkflowCheckpointID.String
	}
	return m
}

// Create inserts a new Request in status pending.
func (repo *RequestRepository) Create(ctx context.Context, req *models.Request) error {
	if req.MaxRetries == 0 {
		req.MaxRetries = models.DefaultMaxRetries
	}
	if req.Status == "" {
		req.Status = models.StatusPending
	}
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO requests (id, owner, url, requirements, test_type, status, retry_count, max_retries, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		req.ID, req.Owner, req.URL, mustJSON(req.Requirements), string(req.TestType),
		string(req.Status), req.RetryCount, req.MaxRetries, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// Get loads a Request by id.
func (repo *RequestRepository) Get(ctx context.Context, id string) (*models.Request, error) {
	var row requestRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM requests WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return row.toModel(), nil
}

// List returns requests ordered newest-first, optionally filtered by owner.
func (repo *RequestRepository) List(ctx context.Context, owner string, limit, offset int) ([]*models.Request, error) {
	var rows []requestRow
	var err error
	if owner != "" {
		err = repo.db.SelectContext(ctx, &rows, `
			SELECT * FROM requests WHERE owner = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			owner, limit, offset)
	} else {
		err = repo.db.SelectContext(ctx, &rows, `
			SELECT * FROM requests ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	out := make([]*models.Request, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// statusUpdate accumulates a dynamic SET clause for UpdateStatus.
type statusUpdate struct {
	clauses []string
	args    []any
}

func (u *statusUpdate) set(clause string, value any) {
	u.args = append(u.args, value)
	u.clauses = append(u.clauses, fmt.Sprintf("%s = $%d", clause, len(u.args)))
}

// UpdateStatus performs the monotone status transition plus any terminal
// bookkeeping (completed_at, duration, error code/message). Enforces the
// forward-transition invariant (spec §8) before writing.
func (repo *RequestRepository) UpdateStatus(ctx context.Context, id string, newStatus models.RequestStatus, errCode, errMsg *string) error {
	current, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !models.IsForwardTransition(current.Status, newStatus) {
		return fmt.Errorf("%w: cannot move request %s from %s to %s", apperrors.ErrInvalidInput, id, current.Status, newStatus)
	}

	now := time.Now()
	u := &statusUpdate{}
	u.set("status", string(newStatus))

	if newStatus == models.StatusReconnaissance && current.StartedAt == nil {
		u.set("started_at", now)
	}
	if newStatus.IsTerminal() {
		startedAt := current.StartedAt
		if startedAt == nil {
			startedAt = &now
		}
		u.set("completed_at", now)
		u.set("duration_seconds", now.Sub(*startedAt).Seconds())
	}
	if errCode != nil {
		u.set("error_code", *errCode)
	}
	if errMsg != nil {
		u.set("error_message", *errMsg)
	}

	u.args = append(u.args, id)
	query := fmt.Sprintf(`UPDATE requests SET %s WHERE id = $%d`, strings.Join(u.clauses, ", "), len(u.args))
	if _, err := repo.db.ExecContext(ctx, query, u.args...); err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	return nil
}

// IncrementRetry bumps retry_count by one, returning the new count.
func (repo *RequestRepository) IncrementRetry(ctx context.Context, id string) (int, error) {
	var count int
	err := repo.db.GetContext(ctx, &count, `
		UPDATE requests SET retry_count = retry_count + 1 WHERE id = $1 RETURNING retry_count`, id)
	if err != nil {
		return 0, fmt.Errorf("increment retry: %w", err)
	}
	return count, nil
}

// SetCheckpointID records which checkpoint row backs this request's resume state.
func (repo *RequestRepository) SetCheckpointID(ctx context.Context, id, checkpointID string) error {
	_, err := repo.db.ExecContext(ctx, `UPDATE requests SET workflow_checkpoint_id = $1 WHERE id = $2`, checkpointID, id)
	if err != nil {
		return fmt.Errorf("set checkpoint id: %w", err)
	}
	return nil
}

// SetResultSummary writes the final result_summary blob (spec §3).
func (repo *RequestRepository) SetResultSummary(ctx context.Context, id string, summary map[string]any) error {
	_, err := repo.db.ExecContext(ctx, `UPDATE requests SET result_summary = $1 WHERE id = $2`, mustJSON(summary), id)
	if err != nil {
		return fmt.Errorf("set result summary: %w", err)
	}
	return nil
}

// ClaimNextPending atomically claims the oldest pending request using
// SELECT ... FOR UPDATE SKIP LOCKED (teacher: pkg/queue/worker.go's
// claimNextSession), transitioning it to reconnaissance.
func (repo *RequestRepository) ClaimNextPending(ctx context.Context) (*models.Request, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var row requestRow
	err = tx.GetContext(ctx, &row, `
		SELECT * FROM requests
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim next pending: %w", err)
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx, `UPDATE requests SET status = 'reconnaissance', started_at = $1 WHERE id = $2`, now, row.ID)
	if err != nil {
		return nil, fmt.Errorf("claim: transition to reconnaissance: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	req := row.toModel()
	req.Status = models.StatusReconnaissance
	req.StartedAt = &now
	return req, nil
}

// ListStaleProcessing returns non-terminal, non-pending requests whose most
// recent heartbeat (its checkpoint's updated_at, or started_at if it has no
// checkpoint yet) is older than threshold — candidates for orphan recovery
// (teacher: pkg/queue/orphan.go's last_interaction_at staleness query,
// adapted since this schema has no dedicated heartbeat column; the
// checkpoint written at every stage transition serves the same purpose).
func (repo *RequestRepository) ListStaleProcessing(ctx context.Context, threshold time.Duration) ([]*models.Request, error) {
	var rows []requestRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT r.* FROM requests r
		LEFT JOIN checkpoints c ON c.request_id = r.id
		WHERE r.status NOT IN ('pending', 'completed', 'failed', 'cancelled')
		  AND COALESCE(c.updated_at, r.started_at) < $1`,
		time.Now().Add(-threshold))
	if err != nil {
		return nil, fmt.Errorf("list stale processing requests: %w", err)
	}
	out := make([]*models.Request, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Requirements/result summaries are always plain marshalable data; a
		// failure here indicates a programming error, not a runtime condition.
		panic(fmt.Sprintf("repository: marshal json: %v", err))
	}
	return b
}
