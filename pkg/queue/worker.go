package queue

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/testgenai/testgen/pkg/apperrors"
	"github.com/testgenai/testgen/pkg/config"
	"github.com/testgenai/testgen/pkg/models"
	"github.com/testgenai/testgen/pkg/repository"
	"github.com/testgenai/testgen/pkg/workflow"
)

// requestClaimer is the subset of RequestRepository a Worker needs (teacher
// idiom: narrow per-consumer interfaces, e.g. pkg/workflow's requestStore).
type requestClaimer interface {
	ClaimNextPending(ctx context.Context) (*models.Request, error)
}

// starter is the subset of workflow.Orchestrator a Worker needs.
type starter interface {
	Start(ctx context.Context, requestID string) error
}

var (
	_ requestClaimer = (*repository.RequestRepository)(nil)
	_ starter        = (*workflow.Orchestrator)(nil)
)

// Worker repeatedly claims and runs one pending request at a time to
// completion (teacher: pkg/queue/worker.go's Worker/run/pollAndProcess).
type Worker struct {
	id           string
	requests     requestClaimer
	orchestrator starter
	pool         *WorkerPool
	config       *config.QueueConfig

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu                sync.Mutex
	status            WorkerStatus
	currentRequestID  string
	requestsProcessed int
	lastActivity      time.Time
}

// NewWorker constructs a Worker. pool is used for the pool-wide capacity
// check and active-request bookkeeping.
func NewWorker(id string, requests requestClaimer, orchestrator starter, pool *WorkerPool, cfg *config.QueueConfig) *Worker {
	return &Worker{
		id: id, requests: requests, orchestrator: orchestrator, pool: pool, config: cfg,
		stopCh: make(chan struct{}), status: WorkerStatusIdle, lastActivity: time.Now(),
	}
}

// Start runs the worker's poll loop in a background goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Stop signals the worker to exit its loop after its current request
// finishes, and waits for it to do so.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health reports the worker's current state.
func (w *Worker) Health() WorkerHealth {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WorkerHealth{
		ID: w.id, Status: w.status, CurrentRequestID: w.currentRequestID,
		RequestsProcessed: w.requestsProcessed, LastActivity: w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		err := w.pollAndProcess(ctx)
		switch {
		case err == nil:
			continue
		case errors.Is(err, ErrNoRequestsAvailable), errors.Is(err, ErrAtCapacity):
			select {
			case <-time.After(w.pollInterval()):
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			}
		default:
			slog.Error("worker: poll cycle failed", "worker_id", w.id, "error", err)
		}
	}
}

// pollAndProcess claims the next pending request (if the pool has capacity)
// and runs it through the orchestrator to completion or its next blocking
// point.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	if w.pool.ActiveCount() >= w.config.MaxConcurrentRequests {
		return ErrAtCapacity
	}

	req, err := w.requests.ClaimNextPending(ctx)
	if errors.Is(err, apperrors.ErrNotFound) {
		return ErrNoRequestsAvailable
	}
	if err != nil {
		return err
	}

	w.pool.incrementActive()
	defer w.pool.decrementActive()

	w.setStatus(WorkerStatusWorking, req.ID)
	defer w.setStatus(WorkerStatusIdle, "")

	reqCtx, cancel := context.WithTimeout(ctx, w.config.RequestTimeout)
	defer cancel()

	if err := w.orchestrator.Start(reqCtx, req.ID); err != nil && !errors.Is(err, apperrors.ErrCancelled) {
		var coded *apperrors.CodedError
		if !errors.As(err, &coded) {
			slog.Error("worker: request processing failed", "worker_id", w.id, "request_id", req.ID, "error", err)
		}
	}

	w.mu.Lock()
	w.requestsProcessed++
	w.lastActivity = time.Now()
	w.mu.Unlock()

	return nil
}

func (w *Worker) setStatus(status WorkerStatus, requestID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentRequestID = requestID
	w.lastActivity = time.Now()
}

// pollInterval adds jitter to the configured poll interval so concurrent
// workers don't thunder against the claim query in lockstep (teacher:
// pkg/queue/worker.go's pollInterval).
func (w *Worker) pollInterval() time.Duration {
	if w.config.PollIntervalJitter <= 0 {
		return w.config.PollInterval
	}
	jitter := time.Duration(rand.Int64N(int64(w.config.PollIntervalJitter)))
	return w.config.PollInterval + jitter
}
