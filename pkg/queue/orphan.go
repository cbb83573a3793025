package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/testgenai/testgen/pkg/apperrors"
	"github.com/testgenai/testgen/pkg/models"
)

// orphanState tracks orphan-detection metrics (thread-safe).
type orphanState struct {
	mu               sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// runOrphanDetection periodically scans for requests stuck in a non-terminal
// stage with no recent heartbeat and recovers them (teacher:
// pkg/queue/orphan.go's runOrphanDetection).
func (p *WorkerPool) runOrphanDetection(ctx context.Context) {
	ticker := time.NewTicker(p.config.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.detectAndRecoverOrphans(ctx); err != nil {
				slog.Error("orphan detection failed", "error", err)
			}
		}
	}
}

// detectAndRecoverOrphans finds stale processing requests and marks each as
// failed(internal), since no worker is still advancing them.
func (p *WorkerPool) detectAndRecoverOrphans(ctx context.Context) error {
	orphans, err := p.requests.ListStaleProcessing(ctx, p.config.OrphanThreshold)
	if err != nil {
		return fmt.Errorf("list stale processing requests: %w", err)
	}

	if len(orphans) == 0 {
		p.orphans.mu.Lock()
		p.orphans.lastOrphanScan = time.Now()
		p.orphans.mu.Unlock()
		return nil
	}

	slog.Warn("detected orphaned requests", "count", len(orphans))

	recovered := 0
	errCode := string(apperrors.ErrorCodeInternal)
	for _, req := range orphans {
		msg := fmt.Sprintf("orphaned: no heartbeat since %s", req.StartedAt)
		if err := p.requests.UpdateStatus(ctx, req.ID, models.StatusFailed, &errCode, &msg); err != nil {
			slog.Error("failed to recover orphaned request", "request_id", req.ID, "error", err)
			continue
		}
		recovered++
	}

	p.orphans.mu.Lock()
	p.orphans.lastOrphanScan = time.Now()
	p.orphans.orphansRecovered += recovered
	p.orphans.mu.Unlock()

	return nil
}
