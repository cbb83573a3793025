package models

import "time"

// Checkpoint is the durable resume state for one Request's workflow run
// (spec §4.1). Payload is opaque to the repository layer: the workflow
// package owns its schema and versioning.
type Checkpoint struct {
	ID         string    `db:"id" json:"id"`
	RequestID  string    `db:"request_id" json:"request_id"`
	Version    int       `db:"version" json:"version"`
	LastStage  string    `db:"last_stage" json:"last_stage"`
	Payload    []byte    `db:"payload" json:"payload"`
	RetryCount int       `db:"retry_count" json:"retry_count"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// CurrentCheckpointVersion is the schema version written by this build.
// Readers must accept this version and the one preceding it (spec §4.1).
const CurrentCheckpointVersion = 2
