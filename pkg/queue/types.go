// Package queue implements the DB-polled worker pool that drives pending
// requests through the workflow orchestrator (teacher: pkg/queue).
package queue

import (
	"errors"
	"time"
)

// Sentinel errors for queue polling.
var (
	// ErrNoRequestsAvailable indicates no pending requests are in the queue.
	ErrNoRequestsAvailable = errors.New("no requests available")

	// ErrAtCapacity indicates the pool's concurrent-request limit is reached.
	ErrAtCapacity = errors.New("at capacity")
)

// WorkerStatus is a worker's current activity.
type WorkerStatus string

// Recognized worker statuses.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth reports one worker's current state.
type WorkerHealth struct {
	ID                string       `json:"id"`
	Status            WorkerStatus `json:"status"`
	CurrentRequestID  string       `json:"current_request_id,omitempty"`
	RequestsProcessed int          `json:"requests_processed"`
	LastActivity      time.Time    `json:"last_activity"`
}

// PoolHealth reports the worker pool's aggregate state.
type PoolHealth struct {
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	ActiveRequests   int            `json:"active_requests"`
	MaxConcurrent    int            `json:"max_concurrent"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastOrphanScan   time.Time      `json:"last_orphan_scan"`
	OrphansRecovered int            `json:"orphans_recovered"`
}
