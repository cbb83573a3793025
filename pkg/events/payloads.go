package events

import "time"

// StageStatusPayload reports a stage-lifecycle transition for a request
// (spec §6's progress-event shape: request_id, stage, status, step_number,
// timestamp, optional metric).
type StageStatusPayload struct {
	Type        string    `json:"type"`
	RequestID   string    `json:"request_id"`
	Stage       string    `json:"stage"`
	Status      string    `json:"status"`
	StepNumber  int       `json:"step_number"`
	Timestamp   time.Time `json:"timestamp"`
	Message     string    `json:"message,omitempty"`
}

// MetricPayload accompanies a StageStatusPayload with the stage's recorded
// GenerationMetric summary once it completes.
type MetricPayload struct {
	Type        string    `json:"type"`
	RequestID   string    `json:"request_id"`
	Stage       string    `json:"stage"`
	DurationMs  int64     `json:"duration_ms"`
	TokensTotal int       `json:"tokens_total,omitempty"`
	CostUSD     float64   `json:"cost_usd,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// TerminalPayload reports the request reaching a terminal state.
type TerminalPayload struct {
	Type      string    `json:"type"`
	RequestID string    `json:"request_id"`
	Status    string    `json:"status"`
	ErrorCode string    `json:"error_code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
