package models

import "time"

// AgentName identifies which stage produced a GenerationMetric row.
type AgentName string

// Recognized agent/stage names.
const (
	AgentReconnaissance AgentName = "reconnaissance"
	AgentGenerator      AgentName = "generator"
	AgentValidator      AgentName = "validator"
	AgentOptimizer      AgentName = "optimizer"
)

// MetricStatus is the outcome of one stage execution attempt.
type MetricStatus string

// Recognized metric statuses.
const (
	MetricSuccess MetricStatus = "success"
	MetricFailed  MetricStatus = "failed"
	MetricRetry   MetricStatus = "retry"
)

// LLMUsage captures optional token/cost accounting for a stage execution that
// called the LLM.
type LLMUsage struct {
	Model         string  `db:"model" json:"model,omitempty"`
	TokensInput   int     `db:"tokens_input" json:"tokens_input,omitempty"`
	TokensOutput  int     `db:"tokens_output" json:"tokens_output,omitempty"`
	TokensTotal   int     `db:"tokens_total" json:"tokens_total,omitempty"`
	CostUSD       float64 `db:"cost_usd" json:"cost_usd,omitempty"`
}

// GenerationMetric is one append-only stage execution record.
type GenerationMetric struct {
	ID           string         `db:"id" json:"id"`
	RequestID    string         `db:"request_id" json:"request_id"`
	AgentName    AgentName      `db:"agent_name" json:"agent_name"`
	StepNumber   int            `db:"step_number" json:"step_number"`
	StartedAt    time.Time      `db:"started_at" json:"started_at"`
	CompletedAt  time.Time      `db:"completed_at" json:"completed_at"`
	DurationMs   int64          `db:"duration_ms" json:"duration_ms"`
	Usage        *LLMUsage      `db:"-" json:"usage,omitempty"`
	Status       MetricStatus   `db:"status" json:"status"`
	ErrorMessage *string        `db:"error_message" json:"error_message,omitempty"`
	AgentMetrics map[string]any `db:"agent_metrics" json:"agent_metrics,omitempty"`
}

// CoverageAnalysis is one (request, requirement) row produced during
// optimization.
type CoverageAnalysis struct {
	ID                string  `db:"id" json:"id"`
	RequestID         string  `db:"request_id" json:"request_id"`
	RequirementText   string  `db:"requirement_text" json:"requirement_text"`
	RequirementIndex  int     `db:"requirement_index" json:"requirement_index"`
	IsCovered         bool    `db:"is_covered" json:"is_covered"`
	CoveringTests     []string `db:"covering_tests" json:"covering_tests"`
	CoverageCount     int     `db:"coverage_count" json:"coverage_count"`
	CoverageScore     float64 `db:"coverage_score" json:"coverage_score"`
	HasGap            bool    `db:"has_gap" json:"has_gap"`
	GapDescription    *string `db:"gap_description" json:"gap_description,omitempty"`
}

// SecurityLayer identifies which Safety Guard sub-layer produced an audit row.
type SecurityLayer string

// Recognized security layers.
const (
	LayerStatic     SecurityLayer = "static"
	LayerAST        SecurityLayer = "ast"
	LayerBehavioral SecurityLayer = "behavioral"
	LayerSandbox    SecurityLayer = "sandbox"
)

// ActionTaken is the Safety Guard's disposition for a test following a
// sub-layer finding.
type ActionTaken string

// Recognized safety-guard actions.
const (
	ActionAllowed    ActionTaken = "allowed"
	ActionBlocked    ActionTaken = "blocked"
	ActionWarning    ActionTaken = "warning"
	ActionRegenerate ActionTaken = "regenerate"
)

// SecurityAuditLog is one append-only Safety Guard decision.
type SecurityAuditLog struct {
	ID             string          `db:"id" json:"id"`
	RequestID      string          `db:"request_id" json:"request_id"`
	TestID         *string         `db:"test_id" json:"test_id,omitempty"`
	SecurityLayer  SecurityLayer   `db:"security_layer" json:"security_layer"`
	RiskLevel      SafetyRiskLevel `db:"risk_level" json:"risk_level"`
	Issues         []string        `db:"issues" json:"issues,omitempty"`
	BlockedPatterns []string       `db:"blocked_patterns" json:"blocked_patterns,omitempty"`
	ActionTaken    ActionTaken     `db:"action_taken" json:"action_taken"`
	Details        map[string]any  `db:"details" json:"details,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// Event is a persisted progress-stream row used for SSE catchup after a
// subscriber misses NOTIFY traffic (e.g. reconnect).
type Event struct {
	ID        int64     `db:"id" json:"id"`
	RequestID string    `db:"request_id" json:"request_id"`
	Channel   string    `db:"channel" json:"channel"`
	Payload   []byte    `db:"payload" json:"payload"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
