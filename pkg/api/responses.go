package api

import (
	"github.com/testgenai/testgen/pkg/models"
	"github.com/testgenai/testgen/pkg/optimizer"
)

// TaskAcceptedResponse is returned by the generation and resume endpoints
// (spec §6: `{request_id, task_id, status, stream_url}`). task_id and
// request_id are the same value — there is no separate task entity.
type TaskAcceptedResponse struct {
	RequestID string `json:"request_id"`
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	StreamURL string `json:"stream_url"`
}

// CancelResponse is returned by POST /tasks/:id/cancel.
type CancelResponse struct {
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
}

// MetricSummary is one stage's metric rollup within a TaskResponse.
type MetricSummary struct {
	AgentName    string `json:"agent_name"`
	StepNumber   int    `json:"step_number"`
	Status       string `json:"status"`
	DurationMs   int64  `json:"duration_ms"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// TaskResponse is returned by GET /tasks/:id.
type TaskResponse struct {
	RequestID     string              `json:"request_id"`
	URL           string              `json:"url"`
	Status        string              `json:"status"`
	ErrorCode     string              `json:"error_code,omitempty"`
	ErrorMessage  string              `json:"error_message,omitempty"`
	ResultSummary map[string]any      `json:"result_summary,omitempty"`
	Metrics       []MetricSummary     `json:"metrics"`
	Tests         []*models.TestCase `json:"tests,omitempty"`
}

// ValidateTestsResponse is returned by POST /validate/tests.
type ValidateTestsResponse struct {
	Status    string   `json:"status"`
	Score     int      `json:"score"`
	RiskLevel string   `json:"risk_level"`
	Issues    []string `json:"issues,omitempty"`
}

// OptimizeTestsResponse is returned by POST /optimize/tests.
type OptimizeTestsResponse struct {
	UniqueCount   int                        `json:"unique_count"`
	DuplicateOf   map[string]string          `json:"duplicate_of,omitempty"`
	Coverage      []*models.CoverageAnalysis `json:"coverage"`
	CoverageScore float64                    `json:"coverage_score"`
	Gaps          []optimizer.GapInfo        `json:"gaps,omitempty"`
}

// TestListResponse is returned by GET /tests.
type TestListResponse struct {
	Tests    []*models.TestCase `json:"tests"`
	Total    int                `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
