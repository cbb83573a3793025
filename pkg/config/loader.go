package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Load builds a Config from built-in defaults overridden by environment
// variables (teacher: pkg/database/config.go's LoadConfigFromEnv pattern).
// Recognized keys follow spec §6's Configuration list.
func Load() (*Config, error) {
	cfg := Default()

	cfg.DBURL = getEnv("DB_URL", cfg.DBURL)
	cfg.QueueURL = getEnv("QUEUE_URL", cfg.QueueURL)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.KeyID = getEnv("LLM_KEY_ID", cfg.LLM.KeyID)
	cfg.LLM.KeySecret = getEnv("LLM_KEY_SECRET", cfg.LLM.KeySecret)

	var err error
	if cfg.CacheTTL, err = getDuration("CACHE_TTL_S", cfg.CacheTTL); err != nil {
		return nil, err
	}
	if cfg.EmbeddingDim, err = getInt("EMBEDDING_DIM", cfg.EmbeddingDim); err != nil {
		return nil, err
	}
	if cfg.SimilarityThreshold, err = getFloat("SIMILARITY_THRESHOLD", cfg.SimilarityThreshold); err != nil {
		return nil, err
	}
	if cfg.ValidatorFanout, err = getInt("VALIDATOR_FANOUT", cfg.ValidatorFanout); err != nil {
		return nil, err
	}

	if cfg.Queue.WorkerCount, err = getInt("QUEUE_WORKER_COUNT", cfg.Queue.WorkerCount); err != nil {
		return nil, err
	}
	if cfg.Queue.MaxConcurrentRequests, err = getInt("QUEUE_MAX_CONCURRENT", cfg.Queue.MaxConcurrentRequests); err != nil {
		return nil, err
	}

	if cfg.Stage.ReconTimeout, err = getDuration("STAGE_TIMEOUT_RECON_S", cfg.Stage.ReconTimeout); err != nil {
		return nil, err
	}
	if cfg.Stage.GenTimeout, err = getDuration("STAGE_TIMEOUT_GEN_S", cfg.Stage.GenTimeout); err != nil {
		return nil, err
	}
	if cfg.Stage.ValTimeout, err = getDuration("STAGE_TIMEOUT_VAL_S", cfg.Stage.ValTimeout); err != nil {
		return nil, err
	}
	if cfg.Stage.OptTimeout, err = getDuration("STAGE_TIMEOUT_OPT_S", cfg.Stage.OptTimeout); err != nil {
		return nil, err
	}
	if cfg.Stage.ReconMaxRetries, err = getInt("MAX_RETRIES_RECON", cfg.Stage.ReconMaxRetries); err != nil {
		return nil, err
	}
	if cfg.Stage.GenMaxRetries, err = getInt("MAX_RETRIES_GEN", cfg.Stage.GenMaxRetries); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

// getDuration reads an integer number of seconds from the environment,
// matching spec §6's `*_s` suffixed option names.
func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(secs) * time.Second, nil
}
