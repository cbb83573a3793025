package api

import (
	"context"
	"sync"

	"github.com/testgenai/testgen/pkg/apperrors"
	"github.com/testgenai/testgen/pkg/export"
	"github.com/testgenai/testgen/pkg/models"
	"github.com/testgenai/testgen/pkg/repository"
)

type fakeRequestStore struct {
	mu       sync.Mutex
	byID     map[string]*models.Request
	created  []*models.Request
	getErr   error
}

func newFakeRequestStore(reqs ...*models.Request) *fakeRequestStore {
	s := &fakeRequestStore{byID: make(map[string]*models.Request)}
	for _, r := range reqs {
		s.byID[r.ID] = r
	}
	return s
}

func (s *fakeRequestStore) Create(_ context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[req.ID] = req
	s.created = append(s.created, req)
	return nil
}

func (s *fakeRequestStore) Get(_ context.Context, id string) (*models.Request, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.byID[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return req, nil
}

type fakeTestCaseStore struct {
	tests     []*models.TestCase
	total     int
	searchErr error
	listErr   error
}

func (s *fakeTestCaseStore) ListByRequest(_ context.Context, _ string) ([]*models.TestCase, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.tests, nil
}

func (s *fakeTestCaseStore) Search(_ context.Context, _ repository.SearchParams) ([]*models.TestCase, int, error) {
	if s.searchErr != nil {
		return nil, 0, s.searchErr
	}
	return s.tests, s.total, nil
}

type fakeMetricStore struct {
	metrics []*models.GenerationMetric
	err     error
}

func (s *fakeMetricStore) ListByRequest(_ context.Context, _ string) ([]*models.GenerationMetric, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.metrics, nil
}

type fakeOrchestrator struct {
	mu          sync.Mutex
	resumed     []string
	cancelled   []string
	resumeErr   error
	cancelErr   error
	resumeCalled chan struct{}
}

func (o *fakeOrchestrator) Resume(_ context.Context, requestID string) error {
	o.mu.Lock()
	o.resumed = append(o.resumed, requestID)
	o.mu.Unlock()
	if o.resumeCalled != nil {
		o.resumeCalled <- struct{}{}
	}
	return o.resumeErr
}

func (o *fakeOrchestrator) Cancel(requestID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancelled = append(o.cancelled, requestID)
	return o.cancelErr
}

type fakeBroker struct {
	ch  chan []byte
	err error
}

func (b *fakeBroker) Subscribe(_ context.Context, _ string, _ int64) (<-chan []byte, func(), error) {
	if b.err != nil {
		return nil, nil, b.err
	}
	return b.ch, func() {}, nil
}

type fakeBundler struct {
	bundle *export.Bundle
	err    error
}

func (b *fakeBundler) Build(_ context.Context, _ string, _ export.Format) (*export.Bundle, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.bundle, nil
}

// fakeEmbedder satisfies optimizer.Embedder with a canned vector, avoiding a
// real LLM call in handler tests that exercise optimizeTestsHandler.
type fakeEmbedder struct{}

func (fakeEmbedder) GetEmbedding(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}
