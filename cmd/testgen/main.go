// testgen runs the AI-assisted test-case generation pipeline: an HTTP API,
// a Postgres-backed job queue, and the stage orchestrator that drives each
// request through reconnaissance, generation, validation, and optimization.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/testgenai/testgen/pkg/api"
	"github.com/testgenai/testgen/pkg/config"
	"github.com/testgenai/testgen/pkg/database"
	"github.com/testgenai/testgen/pkg/events"
	"github.com/testgenai/testgen/pkg/export"
	"github.com/testgenai/testgen/pkg/generator"
	"github.com/testgenai/testgen/pkg/llm"
	"github.com/testgenai/testgen/pkg/optimizer"
	"github.com/testgenai/testgen/pkg/queue"
	"github.com/testgenai/testgen/pkg/recon"
	"github.com/testgenai/testgen/pkg/repository"
	"github.com/testgenai/testgen/pkg/validator"
	"github.com/testgenai/testgen/pkg/workflow"
)

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	configDir := getEnv("CONFIG_DIR", "./deploy/config")
	envPath := filepath.Join(configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("no .env file at %s, using existing environment", envPath)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := database.NewClient(ctx, database.DefaultConfig(cfg.DBURL))
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.Printf("error closing database client: %v", err)
		}
	}()
	log.Println("connected to PostgreSQL database")

	requests := repository.NewRequestRepository(dbClient.SQLX)
	testCases := repository.NewTestCaseRepository(dbClient.SQLX)
	metrics := repository.NewMetricRepository(dbClient.SQLX)
	coverage := repository.NewCoverageRepository(dbClient.SQLX)
	audits := repository.NewAuditRepository(dbClient.SQLX)
	checkpoints := repository.NewCheckpointRepository(dbClient.SQLX)
	eventsRepo := repository.NewEventRepository(dbClient.SQLX)

	broker := events.NewBroker(events.NewRepositoryCatchupAdapter(eventsRepo))
	listener := events.NewNotifyListener(cfg.DBURL, broker)
	broker.SetListener(listener)
	if err := listener.Start(ctx); err != nil {
		log.Fatalf("failed to start notify listener: %v", err)
	}
	publisher := events.NewPublisher(dbClient.Raw)

	llmClient, err := newLLMClient(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to build LLM client: %v", err)
	}

	reconnaissance := recon.NewOpenAPIReconnaissance()
	gen := generator.NewLLMGenerator(llmClient)
	val := validator.NewValidator(cfg.ValidatorFanout)
	opt := optimizer.NewOptimizer(llmClient, cfg.SimilarityThreshold)

	orch := workflow.NewOrchestrator(
		requests, checkpoints, metrics, coverage, audits, testCases,
		publisher, reconnaissance, gen, val, opt, cfg.Stage,
	)

	pool := queue.NewWorkerPool(requests, orch, &cfg.Queue)
	if err := pool.Start(ctx); err != nil {
		log.Fatalf("failed to start worker pool: %v", err)
	}
	defer pool.Stop()
	log.Println("worker pool started")

	bundler := export.NewBundler(testCases)

	server := api.NewServer(cfg, requests, testCases, metrics, val, opt)
	server.SetOrchestrator(orch)
	server.SetBroker(broker)
	server.SetBundler(bundler)
	if err := server.ValidateWiring(); err != nil {
		log.Fatalf("server wiring incomplete: %v", err)
	}

	addr := ":" + getEnv("HTTP_PORT", "8080")
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Printf("HTTP server listening on %s", addr)

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received")
	case err := <-errCh:
		log.Printf("server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.GracefulShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("error during server shutdown: %v", err)
	}
}

// newLLMClient wires the genai Provider behind the caching/resilience
// wrapper. The configured key pair authenticates the token holder; the genai
// provider itself ignores the resulting bearer token and authenticates with
// its own embedded API key, so the exchange here simply treats the secret as
// a long-lived credential rather than calling a separate token endpoint.
func newLLMClient(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	if cfg.LLM.KeySecret == "" {
		return nil, fmt.Errorf("LLM_KEY_SECRET is required")
	}

	provider, err := llm.NewGenaiProvider(ctx, cfg.LLM.KeySecret)
	if err != nil {
		return nil, fmt.Errorf("genai provider: %w", err)
	}

	tokens := llm.NewTokenHolder(func(_ context.Context) (string, time.Time, error) {
		return cfg.LLM.KeySecret, time.Now().Add(24 * time.Hour), nil
	})

	return llm.NewCachedClient(provider, tokens, cfg.CacheTTL, cfg.EmbeddingDim, slog.Default()), nil
}
