package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/testgenai/testgen/pkg/models"
)

// MetricRepository persists GenerationMetric rows (append-only, spec §3).
type MetricRepository struct {
	db *sqlx.DB
}

// NewMetricRepository constructs a MetricRepository.
func NewMetricRepository(db *sqlx.DB) *MetricRepository {
	return &MetricRepository{db: db}
}

type metricRow struct {
	ID           string                     `db:"id"`
	RequestID    string                     `db:"request_id"`
	AgentName    string                     `db:"agent_name"`
	StepNumber   int                        `db:"step_number"`
	StartedAt    sql.NullTime               `db:"started_at"`
	CompletedAt  sql.NullTime               `db:"completed_at"`
	DurationMs   int64                      `db:"duration_ms"`
	Model        sql.NullString             `db:"model"`
	TokensInput  sql.NullInt32              `db:"tokens_input"`
	TokensOutput sql.NullInt32              `db:"tokens_output"`
	TokensTotal  sql.NullInt32              `db:"tokens_total"`
	CostUSD      sql.NullFloat64            `db:"cost_usd"`
	Status       string                     `db:"status"`
	ErrorMessage sql.NullString             `db:"error_message"`
	AgentMetrics JSONColumn[map[string]any] `db:"agent_metrics"`
}

func (r metricRow) toModel() *models.GenerationMetric {
	m := &models.GenerationMetric{
		ID:           r.ID,
		RequestID:    r.RequestID,
		AgentName:    models.AgentName(r.AgentName),
		StepNumber:   r.StepNumber,
		DurationMs:   r.DurationMs,
		Status:       models.MetricStatus(r.Status),
		AgentMetrics: r.AgentMetrics.V,
	}
	if r.StartedAt.Valid {
		m.StartedAt = r.StartedAt.Time
	}
	if r.CompletedAt.Valid {
		m.CompletedAt = r.CompletedAt.Time
	}
	if r.ErrorMessage.Valid {
		m.ErrorMessage = &r.ErrorMessage.String
	}
	if r.Model.Valid {
		m.Usage = &models.LLMUsage{
			Model:        r.Model.String,
			TokensInput:  int(r.TokensInput.Int32),
			TokensOutput: int(r.TokensOutput.Int32),
			TokensTotal:  int(r.TokensTotal.Int32),
			CostUSD:      r.CostUSD.Float64,
		}
	}
	return m
}

// Create inserts a single GenerationMetric row; rows are never updated.
func (repo *MetricRepository) Create(ctx context.Context, m *models.GenerationMetric) error {
	var model, errMsg sql.NullString
	var tIn, tOut, tTotal sql.NullInt32
	var cost sql.NullFloat64
	if m.Usage != nil {
		model = sql.NullString{String: m.Usage.Model, Valid: m.Usage.Model != ""}
		tIn = sql.NullInt32{Int32: int32(m.Usage.TokensInput), Valid: true}
		tOut = sql.NullInt32{Int32: int32(m.Usage.TokensOutput), Valid: true}
		tTotal = sql.NullInt32{Int32: int32(m.Usage.TokensTotal), Valid: true}
		cost = sql.NullFloat64{Float64: m.Usage.CostUSD, Valid: true}
	}
	if m.ErrorMessage != nil {
		errMsg = sql.NullString{String: *m.ErrorMessage, Valid: true}
	}
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO generation_metrics (
			id, request_id, agent_name, step_number, started_at, completed_at, duration_ms,
			model, tokens_input, tokens_output, tokens_total, cost_usd, status, error_message, agent_metrics
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		m.ID, m.RequestID, string(m.AgentName), m.StepNumber, m.StartedAt, m.CompletedAt, m.DurationMs,
		model, tIn, tOut, tTotal, cost, string(m.Status), errMsg, mustJSON(m.AgentMetrics),
	)
	if err != nil {
		return fmt.Errorf("insert metric: %w", err)
	}
	return nil
}

// ListByRequest returns a request's metrics in execution order.
func (repo *MetricRepository) ListByRequest(ctx context.Context, requestID string) ([]*models.GenerationMetric, error) {
	var rows []metricRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT * FROM generation_metrics WHERE request_id = $1 ORDER BY started_at ASC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	out := make([]*models.GenerationMetric, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// CoverageRepository persists CoverageAnalysis rows.
type CoverageRepository struct {
	db *sqlx.DB
}

// NewCoverageRepository constructs a CoverageRepository.
func NewCoverageRepository(db *sqlx.DB) *CoverageRepository {
	return &CoverageRepository{db: db}
}

type coverageRow struct {
	ID               string                 `db:"id"`
	RequestID        string                 `db:"request_id"`
	RequirementText  string                 `db:"requirement_text"`
	RequirementIndex int                    `db:"requirement_index"`
	IsCovered        bool                   `db:"is_covered"`
	CoveringTests    JSONColumn[[]string]   `db:"covering_tests"`
	CoverageCount    int                    `db:"coverage_count"`
	CoverageScore    float64                `db:"coverage_score"`
	HasGap           bool                   `db:"has_gap"`
	GapDescription   sql.NullString         `db:"gap_description"`
}

func (r coverageRow) toModel() *models.CoverageAnalysis {
	m := &models.CoverageAnalysis{
		ID:               r.ID,
		RequestID:        r.RequestID,
		RequirementText:  r.RequirementText,
		RequirementIndex: r.RequirementIndex,
		IsCovered:        r.IsCovered,
		CoveringTests:    r.CoveringTests.V,
		CoverageCount:    r.CoverageCount,
		CoverageScore:    r.CoverageScore,
		HasGap:           r.HasGap,
	}
	if r.GapDescription.Valid {
		m.GapDescription = &r.GapDescription.String
	}
	return m
}

// ReplaceForRequest deletes any prior coverage analysis for requestID and
// inserts a fresh set. The optimizer re-derives the full set each run rather
// than patching individual rows.
func (repo *CoverageRepository) ReplaceForRequest(ctx context.Context, requestID string, rows []*models.CoverageAnalysis) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace coverage tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM coverage_analyses WHERE request_id = $1`, requestID); err != nil {
		return fmt.Errorf("clear coverage: %w", err)
	}
	for _, c := range rows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO coverage_analyses (
				id, request_id, requirement_text, requirement_index, is_covered,
				covering_tests, coverage_count, coverage_score, has_gap, gap_description
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			c.ID, c.RequestID, c.RequirementText, c.RequirementIndex, c.IsCovered,
			mustJSON(c.CoveringTests), c.CoverageCount, c.CoverageScore, c.HasGap, c.GapDescription,
		)
		if err != nil {
			return fmt.Errorf("insert coverage row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace coverage: %w", err)
	}
	return nil
}

// ListByRequest returns a request's coverage rows ordered by requirement index.
func (repo *CoverageRepository) ListByRequest(ctx context.Context, requestID string) ([]*models.CoverageAnalysis, error) {
	var rows []coverageRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT * FROM coverage_analyses WHERE request_id = $1 ORDER BY requirement_index ASC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list coverage: %w", err)
	}
	out := make([]*models.CoverageAnalysis, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// AuditRepository persists SecurityAuditLog rows (append-only).
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts a single audit row.
func (repo *AuditRepository) Create(ctx context.Context, a *models.SecurityAuditLog) error {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO security_audit_logs (
			id, request_id, test_id, security_layer, risk_level, issues,
			blocked_patterns, action_taken, details, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.RequestID, a.TestID, string(a.SecurityLayer), string(a.RiskLevel),
		mustJSON(a.Issues), mustJSON(a.BlockedPatterns), string(a.ActionTaken),
		mustJSON(a.Details), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListByRequest returns a request's audit trail in chronological order.
func (repo *AuditRepository) ListByRequest(ctx context.Context, requestID string) ([]*models.SecurityAuditLog, error) {
	var out []*models.SecurityAuditLog
	rows, err := repo.db.QueryxContext(ctx, `
		SELECT id, request_id, test_id, security_layer, risk_level, issues,
		       blocked_patterns, action_taken, details, created_at
		FROM security_audit_logs WHERE request_id = $1 ORDER BY created_at ASC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, reqID, layer, risk, action string
			testID                         sql.NullString
			issues, blocked                JSONColumn[[]string]
			details                        JSONColumn[map[string]any]
			createdAt                      sql.NullTime
		)
		if err := rows.Scan(&id, &reqID, &testID, &layer, &risk, &issues, &blocked, &action, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		a := &models.SecurityAuditLog{
			ID:              id,
			RequestID:       reqID,
			SecurityLayer:   models.SecurityLayer(layer),
			RiskLevel:       models.SafetyRiskLevel(risk),
			Issues:          issues.V,
			BlockedPatterns: blocked.V,
			ActionTaken:     models.ActionTaken(action),
			Details:         details.V,
		}
		if testID.Valid {
			a.TestID = &testID.String
		}
		if createdAt.Valid {
			a.CreatedAt = createdAt.Time
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
