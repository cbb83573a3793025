package queue

import (
	"context"
	"sync"
	"time"

	"github.com/testgenai/testgen/pkg/apperrors"
	"github.com/testgenai/testgen/pkg/models"
)

// fakeRequestStore is an in-memory staleRequestLister: ClaimNextPending pops
// requests in insertion order, mirroring ClaimNextPending's FIFO claim order.
type fakeRequestStore struct {
	mu      sync.Mutex
	pending []*models.Request
	stale   []*models.Request
	updated []string
}

func newFakeRequestStore(pending ...*models.Request) *fakeRequestStore {
	return &fakeRequestStore{pending: pending}
}

func (s *fakeRequestStore) ClaimNextPending(_ context.Context) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, apperrors.ErrNotFound
	}
	req := s.pending[0]
	s.pending = s.pending[1:]
	return req, nil
}

func (s *fakeRequestStore) ListStaleProcessing(_ context.Context, _ time.Duration) ([]*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stale
	s.stale = nil
	return out, nil
}

func (s *fakeRequestStore) UpdateStatus(_ context.Context, id string, _ models.RequestStatus, _, _ *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, id)
	return nil
}

// fakeStarter is a canned starter: returns err for every call, recording the
// request IDs it was asked to start.
type fakeStarter struct {
	mu       sync.Mutex
	err      error
	started  []string
	blockCh  chan struct{}
	delay    time.Duration
}

func (f *fakeStarter) Start(ctx context.Context, requestID string) error {
	f.mu.Lock()
	f.started = append(f.started, requestID)
	f.mu.Unlock()

	if f.blockCh != nil {
		select {
		case <-f.blockCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func (f *fakeStarter) startedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.started))
	copy(out, f.started)
	return out
}
