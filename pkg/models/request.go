// Package models defines the persisted entities of the generation pipeline:
// Request, TestCase, GenerationMetric, CoverageAnalysis, SecurityAuditLog, and
// the transient Event row used for progress-stream catchup.
package models

import "time"

// TestType is the kind of test a Request asks the pipeline to generate.
type TestType string

// Recognized test types.
const (
	TestTypeUI        TestType = "ui"
	TestTypeAPI       TestType = "api"
	TestTypeManual    TestType = "manual"
	TestTypeAutomated TestType = "automated"
	TestTypeBoth      TestType = "both"
)

// RequestStatus is a Request's position in the stage state machine.
type RequestStatus string

// Recognized request statuses, in their forward order.
const (
	StatusPending        RequestStatus = "pending"
	StatusReconnaissance  RequestStatus = "reconnaissance"
	StatusGeneration      RequestStatus = "generation"
	StatusValidation      RequestStatus = "validation"
	StatusOptimization    RequestStatus = "optimization"
	StatusCompleted       RequestStatus = "completed"
	StatusFailed          RequestStatus = "failed"
	StatusCancelled       RequestStatus = "cancelled"
)

// statusOrder is the forward order non-terminal statuses must move through.
// Index in this slice determines monotonicity; see IsForwardTransition.
var statusOrder = []RequestStatus{
	StatusPending,
	StatusReconnaissance,
	StatusGeneration,
	StatusValidation,
	StatusOptimization,
	StatusCompleted,
}

// IsTerminal reports whether s is a terminal status (completed/failed/cancelled).
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsForwardTransition reports whether moving from `from` to `to` respects the
// monotone stage order (spec §8 invariant): forward progression through
// statusOrder, or a jump from any non-terminal status to failed/cancelled.
func IsForwardTransition(from, to RequestStatus) bool {
	if to == StatusFailed || to == StatusCancelled {
		return !from.IsTerminal()
	}
	fromIdx, fromOK := indexOf(from)
	toIdx, toOK := indexOf(to)
	if !fromOK || !toOK {
		return false
	}
	return toIdx == fromIdx+1
}

func indexOf(s RequestStatus) (int, bool) {
	for i, v := range statusOrder {
		if v == s {
			return i, true
		}
	}
	return 0, false
}

// Request is one generation job submitted by a client.
type Request struct {
	ID                   string         `db:"id" json:"id"`
	Owner                *string        `db:"owner" json:"owner,omitempty"`
	URL                  string         `db:"url" json:"url"`
	Requirements         []string       `db:"requirements" json:"requirements"`
	TestType             TestType       `db:"test_type" json:"test_type"`
	Status               RequestStatus  `db:"status" json:"status"`
	ResultSummary        map[string]any `db:"result_summary" json:"result_summary,omitempty"`
	ErrorCode            *string        `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage         *string        `db:"error_message" json:"error_message,omitempty"`
	RetryCount           int            `db:"retry_count" json:"retry_count"`
	MaxRetries           int            `db:"max_retries" json:"max_retries"`
	StartedAt            *time.Time     `db:"started_at" json:"started_at,omitempty"`
	CompletedAt          *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	DurationSeconds      *float64       `db:"duration_seconds" json:"duration_seconds,omitempty"`
	WorkflowCheckpointID *string        `db:"workflow_checkpoint_id" json:"workflow_checkpoint_id,omitempty"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
}

// DefaultMaxRetries is applied to new Requests when not otherwise specified.
const DefaultMaxRetries = 3
