package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/testgenai/testgen/pkg/apperrors"
	"github.com/testgenai/testgen/pkg/models"
)

// TestCaseRepository persists TestCase rows.
type TestCaseRepository struct {
	db *sqlx.DB
}

// NewTestCaseRepository constructs a TestCaseRepository.
func NewTestCaseRepository(db *sqlx.DB) *TestCaseRepository {
	return &TestCaseRepository{db: db}
}

type testCaseRow struct {
	ID                  string                    `db:"id"`
	RequestID           string                    `db:"request_id"`
	Name                string                    `db:"name"`
	Code                string                    `db:"code"`
	TestType            string                    `db:"test_type"`
	Feature             sql.NullString            `db:"feature"`
	Story               sql.NullString            `db:"story"`
	Title               sql.NullString            `db:"title"`
	Severity            sql.NullString            `db:"severity"`
	Tags                JSONColumn[[]string]      `db:"tags"`
	CodeHash            string                    `db:"code_hash"`
	ASTHash             sql.NullString            `db:"ast_hash"`
	SemanticEmbedding   JSONColumn[[]float32]      `db:"semantic_embedding"`
	CoveredRequirements JSONColumn[[]int]         `db:"covered_requirements"`
	Priority            int                       `db:"priority"`
	ValidationStatus    string                    `db:"validation_status"`
	ValidationIssues    JSONColumn[[]string]      `db:"validation_issues"`
	SafetyRiskLevel     string                    `db:"safety_risk_level"`
	IsDuplicate         bool                      `db:"is_duplicate"`
	DuplicateOf         sql.NullString            `db:"duplicate_of"`
	SimilarityScore     sql.NullFloat64           `db:"similarity_score"`
}

func (r testCaseRow) toModel() *models.TestCase {
	m := &models.TestCase{
		ID:                  r.ID,
		RequestID:           r.RequestID,
		Name:                r.Name,
		Code:                r.Code,
		TestType:            models.TestCaseType(r.TestType),
		Metadata:            models.TestCaseMetadata{Tags: r.Tags.V},
		CodeHash:            r.CodeHash,
		SemanticEmbedding:   r.SemanticEmbedding.V,
		CoveredRequirements: r.CoveredRequirements.V,
		Priority:            r.Priority,
		ValidationStatus:    models.ValidationStatus(r.ValidationStatus),
		ValidationIssues:    r.ValidationIssues.V,
		SafetyRiskLevel:     models.SafetyRiskLevel(r.SafetyRiskLevel),
		IsDuplicate:         r.IsDuplicate,
	}
	if r.Feature.Valid {
		m.Metadata.Feature = r.Feature.String
	}
	if r.Story.Valid {
		m.Metadata.Story = r.Story.String
	}
	if r.Title.Valid {
		m.Metadata.Title = r.Title.String
	}
	if r.Severity.Valid {
		m.Metadata.Severity = r.Severity.String
	}
	if r.ASTHash.Valid {
		m.ASTHash = &r.ASTHash.String
	}
	if r.DuplicateOf.Valid {
		m.DuplicateOf = &r.DuplicateOf.String
	}
	if r.SimilarityScore.Valid {
		m.SimilarityScore = &r.SimilarityScore.Float64
	}
	return m
}

// CreateBatch inserts many test cases for a request in a single transaction.
// Used by the generator/validator/optimizer stages, which each produce a full
// batch rather than one row at a time.
func (repo *TestCaseRepository) CreateBatch(ctx context.Context, cases []*models.TestCase) error {
	if len(cases) == 0 {
		return nil
	}
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create batch tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, tc := range cases {
		if tc.Priority == 0 {
			tc.Priority = models.DefaultPriority
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO test_cases (
				id, request_id, name, code, test_type, feature, story, title, severity, tags,
				code_hash, ast_hash, semantic_embedding, covered_requirements, priority,
				validation_status, validation_issues, safety_risk_level, is_duplicate, duplicate_of, similarity_score
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
			tc.ID, tc.RequestID, tc.Name, tc.Code, string(tc.TestType),
			nullableString(tc.Metadata.Feature), nullableString(tc.Metadata.Story),
			nullableString(tc.Metadata.Title), nullableString(tc.Metadata.Severity),
			mustJSON(tc.Metadata.Tags), tc.CodeHash, tc.ASTHash, mustJSON(tc.SemanticEmbedding),
			mustJSON(tc.CoveredRequirements), tc.Priority, string(tc.ValidationStatus),
			mustJSON(tc.ValidationIssues), string(tc.SafetyRiskLevel), tc.IsDuplicate,
			tc.DuplicateOf, tc.SimilarityScore,
		)
		if err != nil {
			return fmt.Errorf("insert test case %s: %w", tc.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create batch: %w", err)
	}
	return nil
}

// ListByRequest returns all test cases for a request, oldest first.
func (repo *TestCaseRepository) ListByRequest(ctx context.Context, requestID string) ([]*models.TestCase, error) {
	var rows []testCaseRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT * FROM test_cases WHERE request_id = $1 ORDER BY created_at ASC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list test cases: %w", err)
	}
	out := make([]*models.TestCase, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// Get loads a single test case by id.
func (repo *TestCaseRepository) Get(ctx context.Context, id string) (*models.TestCase, error) {
	var row testCaseRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM test_cases WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get test case: %w", err)
	}
	return row.toModel(), nil
}

// UpdateValidation writes the Validator's verdict for a single test case.
func (repo *TestCaseRepository) UpdateValidation(ctx context.Context, id string, status models.ValidationStatus, issues []string, risk models.SafetyRiskLevel) error {
	_, err := repo.db.ExecContext(ctx, `
		UPDATE test_cases SET validation_status = $1, validation_issues = $2, safety_risk_level = $3
		WHERE id = $4`,
		string(status), mustJSON(issues), string(risk), id,
	)
	if err != nil {
		return fmt.Errorf("update validation: %w", err)
	}
	return nil
}

// MarkDuplicate flags tc as a duplicate of canonicalID with the given
// similarity score (1.0 for exact dedup). canonicalID must reference a
// non-duplicate row in the same request (spec §3 invariant); enforced by the
// optimizer, not here.
func (repo *TestCaseRepository) MarkDuplicate(ctx context.Context, id, canonicalID string, score float64) error {
	_, err := repo.db.ExecContext(ctx, `
		UPDATE test_cases SET is_duplicate = true, duplicate_of = $1, similarity_score = $2 WHERE id = $3`,
		canonicalID, score, id,
	)
	if err != nil {
		return fmt.Errorf("mark duplicate: %w", err)
	}
	return nil
}

// UpdateEmbedding stores the semantic embedding computed for a test case.
func (repo *TestCaseRepository) UpdateEmbedding(ctx context.Context, id string, astHash string, embedding []float32) error {
	_, err := repo.db.ExecContext(ctx, `
		UPDATE test_cases SET ast_hash = $1, semantic_embedding = $2 WHERE id = $3`,
		astHash, mustJSON(embedding), id,
	)
	if err != nil {
		return fmt.Errorf("update embedding: %w", err)
	}
	return nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// SearchParams narrows GET /tests (spec §6: search=&test_type=&page=).
type SearchParams struct {
	Search    string
	TestType  string
	RequestID string
	Page      int
	PageSize  int
}

// Search returns a page of test cases matching params plus the total match
// count, for the paged listing endpoint. Search matches name or code
// case-insensitively (teacher: handler_session.go's listSessionsHandler
// dynamic filter-building, generalized from session fields to test-case
// fields).
func (repo *TestCaseRepository) Search(ctx context.Context, params SearchParams) ([]*models.TestCase, int, error) {
	var clauses []string
	var args []any

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if params.Search != "" {
		like := "%" + params.Search + "%"
		args = append(args, like, like)
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", len(args)-1, len(args)))
	}
	if params.TestType != "" {
		add("test_type = $%d", params.TestType)
	}
	if params.RequestID != "" {
		add("request_id = $%d", params.RequestID)
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM test_cases %s", where)
	if err := repo.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count test cases: %w", err)
	}

	page, pageSize := params.Page, params.PageSize
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 25
	}
	offset := (page - 1) * pageSize

	listArgs := append(append([]any{}, args...), pageSize, offset)
	listQuery := fmt.Sprintf(
		"SELECT * FROM test_cases %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		where, len(args)+1, len(args)+2)

	var rows []testCaseRow
	if err := repo.db.SelectContext(ctx, &rows, listQuery, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("search test cases: %w", err)
	}
	out := make([]*models.TestCase, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, total, nil
}
