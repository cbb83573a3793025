// Package config loads and validates the umbrella Config object: database
// connection, job queue tuning, LLM provider credentials, and the stage
// timeouts/retry policy the orchestrator enforces. Layering follows the
// teacher's pattern: built-in defaults overridden by environment variables,
// validated once at startup.
package config

import "time"

// Config is the umbrella configuration object threaded through the service.
type Config struct {
	DBURL    string
	QueueURL string // read from QUEUE_URL but not used; the DB-backed queue is always used

	LLM LLMConfig
	Queue QueueConfig
	Stage StageConfig

	CacheTTL             time.Duration
	EmbeddingDim         int
	SimilarityThreshold  float64
	ValidatorFanout      int
}

// LLMConfig holds the credentials and model selection for the LLM cache
// wrapper's upstream call.
type LLMConfig struct {
	Model    string
	KeyID    string
	KeySecret string
}

// QueueConfig tunes the worker pool (teacher: pkg/config/queue.go).
type QueueConfig struct {
	WorkerCount             int
	MaxConcurrentRequests   int
	PollInterval            time.Duration
	PollIntervalJitter      time.Duration
	RequestTimeout          time.Duration
	GracefulShutdownTimeout time.Duration
	OrphanDetectionInterval time.Duration
	OrphanThreshold         time.Duration
	HeartbeatInterval       time.Duration
}

// StageConfig holds per-stage deadlines and retry limits (spec §4.1, §6).
type StageConfig struct {
	ReconTimeout time.Duration
	GenTimeout   time.Duration
	ValTimeout   time.Duration
	OptTimeout   time.Duration

	ReconMaxRetries int
	GenMaxRetries   int
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		CacheTTL:            1 * time.Hour,
		EmbeddingDim:        384,
		SimilarityThreshold: 0.85,
		ValidatorFanout:     8,
		LLM: LLMConfig{
			Model: "gemini-2.0-flash",
		},
		Queue: QueueConfig{
			WorkerCount:             5,
			MaxConcurrentRequests:   5,
			PollInterval:            1 * time.Second,
			PollIntervalJitter:      500 * time.Millisecond,
			RequestTimeout:          15 * time.Minute,
			GracefulShutdownTimeout: 2 * time.Minute,
			OrphanDetectionInterval: 1 * time.Minute,
			OrphanThreshold:         3 * time.Minute,
			HeartbeatInterval:       20 * time.Second,
		},
		Stage: StageConfig{
			ReconTimeout:    60 * time.Second,
			GenTimeout:      120 * time.Second,
			ValTimeout:      30 * time.Second,
			OptTimeout:      60 * time.Second,
			ReconMaxRetries: 2,
			GenMaxRetries:   3,
		},
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.DBURL == "" {
		return errRequired("db_url")
	}
	if c.EmbeddingDim <= 0 {
		return errInvalid("embedding_dim", "must be positive")
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return errInvalid("similarity_threshold", "must be in [0,1]")
	}
	if c.ValidatorFanout <= 0 {
		return errInvalid("validator_fanout", "must be positive")
	}
	if c.Queue.WorkerCount <= 0 {
		return errInvalid("queue.worker_count", "must be positive")
	}
	if c.Queue.MaxConcurrentRequests <= 0 {
		return errInvalid("queue.max_concurrent_requests", "must be positive")
	}
	return nil
}
