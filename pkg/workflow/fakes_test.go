package workflow

import (
	"context"
	"sync"

	"github.com/testgenai/testgen/pkg/apperrors"
	"github.com/testgenai/testgen/pkg/events"
	"github.com/testgenai/testgen/pkg/generator"
	"github.com/testgenai/testgen/pkg/models"
	"github.com/testgenai/testgen/pkg/recon"
)

// fakeRequestStore is an in-memory requestStore enforcing the same
// forward-transition invariant as repository.RequestRepository.UpdateStatus,
// so a test failure here means the orchestrator attempted an illegal jump.
type fakeRequestStore struct {
	mu       sync.Mutex
	requests map[string]*models.Request
}

func newFakeRequestStore(reqs ...*models.Request) *fakeRequestStore {
	s := &fakeRequestStore{requests: make(map[string]*models.Request)}
	for _, r := range reqs {
		s.requests[r.ID] = r
	}
	return s
}

func (s *fakeRequestStore) Get(_ context.Context, id string) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeRequestStore) UpdateStatus(_ context.Context, id string, status models.RequestStatus, errCode, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if !models.IsForwardTransition(r.Status, status) {
		return apperrors.ErrInvalidInput
	}
	r.Status = status
	r.ErrorCode = errCode
	r.ErrorMessage = errMsg
	return nil
}

func (s *fakeRequestStore) SetCheckpointID(_ context.Context, id, checkpointID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	r.WorkflowCheckpointID = &checkpointID
	return nil
}

func (s *fakeRequestStore) SetResultSummary(_ context.Context, id string, summary map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	r.ResultSummary = summary
	return nil
}

type fakeCheckpointStore struct {
	mu    sync.Mutex
	byReq map[string]*models.Checkpoint
}

func newFakeCheckpointStore() *fakeCheckpointStore {
	return &fakeCheckpointStore{byReq: make(map[string]*models.Checkpoint)}
}

func (s *fakeCheckpointStore) Upsert(_ context.Context, cp *models.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byReq[cp.RequestID] = cp
	return nil
}

func (s *fakeCheckpointStore) GetByRequest(_ context.Context, requestID string) (*models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.byReq[requestID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cp, nil
}

func (s *fakeCheckpointStore) Delete(_ context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byReq, requestID)
	return nil
}

type fakeMetricStore struct {
	mu      sync.Mutex
	metrics []*models.GenerationMetric
}

func newFakeMetricStore() *fakeMetricStore { return &fakeMetricStore{} }

func (s *fakeMetricStore) Create(_ context.Context, m *models.GenerationMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
	return nil
}

func (s *fakeMetricStore) ListByRequest(_ context.Context, requestID string) ([]*models.GenerationMetric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.GenerationMetric
	for _, m := range s.metrics {
		if m.RequestID == requestID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeCoverageStore struct {
	mu    sync.Mutex
	byReq map[string][]*models.CoverageAnalysis
}

func newFakeCoverageStore() *fakeCoverageStore {
	return &fakeCoverageStore{byReq: make(map[string][]*models.CoverageAnalysis)}
}

func (s *fakeCoverageStore) ReplaceForRequest(_ context.Context, requestID string, rows []*models.CoverageAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byReq[requestID] = rows
	return nil
}

type fakeAuditStore struct {
	mu   sync.Mutex
	rows []*models.SecurityAuditLog
}

func newFakeAuditStore() *fakeAuditStore { return &fakeAuditStore{} }

func (s *fakeAuditStore) Create(_ context.Context, a *models.SecurityAuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, a)
	return nil
}

type fakeTestCaseStore struct {
	mu    sync.Mutex
	cases map[string]*models.TestCase
}

func newFakeTestCaseStore() *fakeTestCaseStore {
	return &fakeTestCaseStore{cases: make(map[string]*models.TestCase)}
}

func (s *fakeTestCaseStore) CreateBatch(_ context.Context, cases []*models.TestCase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tc := range cases {
		s.cases[tc.ID] = tc
	}
	return nil
}

func (s *fakeTestCaseStore) MarkDuplicate(_ context.Context, id, canonicalID string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tc, ok := s.cases[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	tc.IsDuplicate = true
	tc.DuplicateOf = &canonicalID
	tc.SimilarityScore = &score
	return nil
}

func (s *fakeTestCaseStore) UpdateEmbedding(_ context.Context, id, astHash string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tc, ok := s.cases[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	tc.SemanticEmbedding = embedding
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	stages    []events.StageStatusPayload
	metrics   []events.MetricPayload
	terminals []events.TerminalPayload
}

func newFakePublisher() *fakePublisher { return &fakePublisher{} }

func (p *fakePublisher) PublishStageStatus(_ context.Context, payload events.StageStatusPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stages = append(p.stages, payload)
	return nil
}

func (p *fakePublisher) PublishMetric(_ context.Context, payload events.MetricPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics = append(p.metrics, payload)
	return nil
}

func (p *fakePublisher) PublishTerminal(_ context.Context, payload events.TerminalPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminals = append(p.terminals, payload)
	return nil
}

// fakeRecon returns a canned result/error sequence, one per call (the last
// entry repeats once exhausted).
type fakeRecon struct {
	mu      sync.Mutex
	results []*recon.Result
	errs    []error
	calls   int
}

func (f *fakeRecon) Inspect(_ context.Context, _ recon.Target) (*recon.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return f.results[i], err
}

// fakeGenerator returns a canned []string/error sequence, one per call.
type fakeGenerator struct {
	mu      sync.Mutex
	outputs [][]string
	errs    []error
	calls   int
}

func (f *fakeGenerator) Generate(_ context.Context, _ generator.Input) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.outputs) {
		i = len(f.outputs) - 1
	}
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var out []string
	if i < len(f.outputs) {
		out = f.outputs[i]
	}
	return out, err
}
