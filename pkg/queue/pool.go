package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/testgenai/testgen/pkg/config"
	"github.com/testgenai/testgen/pkg/models"
	"github.com/testgenai/testgen/pkg/repository"
)

// staleRequestLister is the subset of RequestRepository the orphan scanner
// needs, beyond requestClaimer.
type staleRequestLister interface {
	requestClaimer
	ListStaleProcessing(ctx context.Context, threshold time.Duration) ([]*models.Request, error)
	UpdateStatus(ctx context.Context, id string, status models.RequestStatus, errCode, errMsg *string) error
}

var _ staleRequestLister = (*repository.RequestRepository)(nil)

// WorkerPool owns a fixed set of Workers plus the background orphan scanner.
type WorkerPool struct {
	requests     staleRequestLister
	orchestrator starter
	config       *config.QueueConfig

	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	activeMu sync.RWMutex
	active   int
	started  bool

	orphans orphanState
}

// NewWorkerPool constructs a WorkerPool. cfg.WorkerCount workers are created
// (not yet started) by Start.
func NewWorkerPool(requests staleRequestLister, orchestrator starter, cfg *config.QueueConfig) *WorkerPool {
	return &WorkerPool{
		requests: requests, orchestrator: orchestrator, config: cfg,
		workers: make([]*Worker, 0, cfg.WorkerCount),
		stopCh:  make(chan struct{}),
	}
}

// Start spawns the configured number of workers and the orphan-detection
// background task. Safe to call once; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("worker pool already started, ignoring duplicate Start call")
		return nil
	}
	p.started = true

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		worker := NewWorker(workerID, p.requests, p.orchestrator, p, p.config)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanDetection(ctx)
	}()

	slog.Info("worker pool started", "worker_count", p.config.WorkerCount)
	return nil
}

// Stop signals all workers and the orphan scanner to stop, and waits for
// in-flight requests to finish (bounded by the caller's shutdown deadline).
func (p *WorkerPool) Stop() {
	for _, worker := range p.workers {
		worker.Stop()
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

// ActiveCount returns the number of requests currently being processed
// across all workers in this pool.
func (p *WorkerPool) ActiveCount() int {
	p.activeMu.RLock()
	defer p.activeMu.RUnlock()
	return p.active
}

func (p *WorkerPool) incrementActive() {
	p.activeMu.Lock()
	p.active++
	p.activeMu.Unlock()
}

func (p *WorkerPool) decrementActive() {
	p.activeMu.Lock()
	p.active--
	p.activeMu.Unlock()
}

// Health reports the pool's current state.
func (p *WorkerPool) Health() *PoolHealth {
	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == WorkerStatusWorking {
			activeWorkers++
		}
	}

	p.orphans.mu.Lock()
	lastScan := p.orphans.lastOrphanScan
	recovered := p.orphans.orphansRecovered
	p.orphans.mu.Unlock()

	return &PoolHealth{
		ActiveWorkers:    activeWorkers,
		TotalWorkers:     len(p.workers),
		ActiveRequests:   p.ActiveCount(),
		MaxConcurrent:    p.config.MaxConcurrentRequests,
		WorkerStats:      workerStats,
		LastOrphanScan:   lastScan,
		OrphansRecovered: recovered,
	}
}
