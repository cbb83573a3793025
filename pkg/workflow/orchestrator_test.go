package workflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testgenai/testgen/pkg/apperrors"
	"github.com/testgenai/testgen/pkg/config"
	"github.com/testgenai/testgen/pkg/models"
	"github.com/testgenai/testgen/pkg/optimizer"
	"github.com/testgenai/testgen/pkg/recon"
	"github.com/testgenai/testgen/pkg/validator"
)

const sampleOpenAPI = `
openapi: 3.0.0
info:
  title: Sample
  version: "1.0"
paths:
  /widgets:
    get:
      summary: List widgets
      responses:
        "200":
          description: ok
`

type fakeEmbedder struct{}

func (fakeEmbedder) GetEmbedding(_ context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func testStage() config.StageConfig {
	return config.StageConfig{
		ReconTimeout: time.Second, GenTimeout: time.Second, ValTimeout: time.Second, OptTimeout: time.Second,
		ReconMaxRetries: 2, GenMaxRetries: 3,
	}
}

func newTestOrchestrator(t *testing.T, req *models.Request, r recon.Reconnaissance, gen *fakeGenerator) (*Orchestrator, *fakeRequestStore, *fakePublisher) {
	t.Helper()
	o, requests, pub, _ := newTestOrchestratorWithMetrics(t, req, r, gen)
	return o, requests, pub
}

func newTestOrchestratorWithMetrics(t *testing.T, req *models.Request, r recon.Reconnaissance, gen *fakeGenerator) (*Orchestrator, *fakeRequestStore, *fakePublisher, *fakeMetricStore) {
	t.Helper()
	requests := newFakeRequestStore(req)
	pub := newFakePublisher()
	metrics := newFakeMetricStore()
	o := NewOrchestrator(
		requests, newFakeCheckpointStore(), metrics, newFakeCoverageStore(),
		newFakeAuditStore(), newFakeTestCaseStore(), pub,
		r, gen, validator.NewValidator(2), optimizer.NewOptimizer(fakeEmbedder{}, 0.85),
		testStage(),
	)
	return o, requests, pub, metrics
}

func openAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(sampleOpenAPI))
	}))
	t.Cleanup(server.Close)
	return server
}

func cleanTestCode(n int) string {
	return `
// @feature: widgets
// @story: list widgets
// @title: test case
// @severity: high
func Test` + string(rune('A'+n)) + `(t *testing.T) {
	assert.True(t, true)
}
`
}

func TestOrchestrator_Start_HappyPathReachesCompleted(t *testing.T) {
	server := openAPIServer(t)
	req := &models.Request{ID: "r1", URL: server.URL, Requirements: []string{"widgets"}, TestType: models.TestTypeAPI, Status: models.StatusPending}

	gen := &fakeGenerator{outputs: [][]string{{cleanTestCode(0), cleanTestCode(1)}}}
	o, requests, pub := newTestOrchestrator(t, req, recon.NewOpenAPIReconnaissance(), gen)

	err := o.Start(context.Background(), "r1")
	require.NoError(t, err)

	got, _ := requests.Get(context.Background(), "r1")
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.Len(t, pub.terminals, 1)
	assert.Equal(t, string(models.StatusCompleted), pub.terminals[0].Status)
}

func TestOrchestrator_Start_NoOpOnTerminalRequest(t *testing.T) {
	req := &models.Request{ID: "r1", Status: models.StatusCompleted}
	o, _, pub := newTestOrchestrator(t, req, &fakeRecon{}, &fakeGenerator{})

	err := o.Start(context.Background(), "r1")
	require.NoError(t, err)
	assert.Empty(t, pub.terminals)
}

func TestOrchestrator_Start_NotFound(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &models.Request{ID: "other", Status: models.StatusPending}, &fakeRecon{}, &fakeGenerator{})
	err := o.Start(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOrchestrator_Start_ReconExhaustsRetriesFailsRequest(t *testing.T) {
	req := &models.Request{ID: "r1", URL: "http://127.0.0.1:0/nonexistent", Status: models.StatusPending, TestType: models.TestTypeAPI}
	o, requests, pub := newTestOrchestrator(t, req, &fakeRecon{}, &fakeGenerator{})
	o.Stage.ReconMaxRetries = 0

	err := o.Start(context.Background(), "r1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorCodeReconTimeout, apperrors.CodeOf(err))

	got, _ := requests.Get(context.Background(), "r1")
	assert.Equal(t, models.StatusFailed, got.Status)
	require.Len(t, pub.terminals, 1)
	assert.Equal(t, string(apperrors.ErrorCodeReconTimeout), pub.terminals[0].ErrorCode)
}

func TestOrchestrator_Generation_RegeneratesOnceOnEmptyOutput(t *testing.T) {
	server := openAPIServer(t)
	req := &models.Request{ID: "r1", URL: server.URL, Requirements: []string{"widgets"}, TestType: models.TestTypeAPI, Status: models.StatusPending}

	emptyOutputErr := apperrors.NewCodedError(apperrors.ErrorCodeEmptyOutput, errors.New("no boundary"))
	gen := &fakeGenerator{
		outputs: [][]string{nil, {cleanTestCode(0)}},
		errs:    []error{emptyOutputErr, nil},
	}
	o, requests, _, metrics := newTestOrchestratorWithMetrics(t, req, recon.NewOpenAPIReconnaissance(), gen)

	err := o.Start(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, gen.calls)

	got, _ := requests.Get(context.Background(), "r1")
	assert.Equal(t, models.StatusCompleted, got.Status)

	// spec §8 scenario 4: one generation metric row with status=success and
	// at least one prior status=retry row for the same stage.
	genMetrics, _ := metrics.ListByRequest(context.Background(), "r1")
	var sawRetry, sawSuccess bool
	for _, m := range genMetrics {
		if m.AgentName != models.AgentGenerator {
			continue
		}
		switch m.Status {
		case models.MetricRetry:
			sawRetry = true
		case models.MetricSuccess:
			sawSuccess = true
		}
	}
	assert.True(t, sawRetry, "expected a generation metric row with status=retry")
	assert.True(t, sawSuccess, "expected a generation metric row with status=success")
}

func TestOrchestrator_Generation_FailsAfterSecondEmptyOutput(t *testing.T) {
	server := openAPIServer(t)
	req := &models.Request{ID: "r1", URL: server.URL, Requirements: []string{"widgets"}, TestType: models.TestTypeAPI, Status: models.StatusPending}

	emptyOutputErr := apperrors.NewCodedError(apperrors.ErrorCodeEmptyOutput, errors.New("no boundary"))
	gen := &fakeGenerator{outputs: [][]string{nil, nil}, errs: []error{emptyOutputErr, emptyOutputErr}}
	o, requests, _ := newTestOrchestrator(t, req, recon.NewOpenAPIReconnaissance(), gen)

	err := o.Start(context.Background(), "r1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorCodeEmptyOutput, apperrors.CodeOf(err))

	got, _ := requests.Get(context.Background(), "r1")
	assert.Equal(t, models.StatusFailed, got.Status)
}

func TestOrchestrator_Optimization_NoPassingTestsFails(t *testing.T) {
	server := openAPIServer(t)
	req := &models.Request{ID: "r1", URL: server.URL, Requirements: []string{"widgets"}, TestType: models.TestTypeAPI, Status: models.StatusPending}

	// Dangerous code trips the Safety Guard's static blacklist -> risk HIGH/CRITICAL -> status failed.
	gen := &fakeGenerator{outputs: [][]string{{"os.system(\"rm -rf /\")"}}}
	o, requests, _ := newTestOrchestrator(t, req, recon.NewOpenAPIReconnaissance(), gen)

	err := o.Start(context.Background(), "r1")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorCodeNoTests, apperrors.CodeOf(err))

	got, _ := requests.Get(context.Background(), "r1")
	assert.Equal(t, models.StatusFailed, got.Status)
}

func TestOrchestrator_Resume_ContinuesFromCheckpoint(t *testing.T) {
	server := openAPIServer(t)
	req := &models.Request{ID: "r1", URL: server.URL, Requirements: []string{"widgets"}, TestType: models.TestTypeAPI, Status: models.StatusGeneration}

	gen := &fakeGenerator{outputs: [][]string{{cleanTestCode(0)}}}
	o, requests, _ := newTestOrchestrator(t, req, recon.NewOpenAPIReconnaissance(), gen)

	cp := &models.Checkpoint{ID: "cp1", RequestID: "r1", Version: models.CurrentCheckpointVersion, LastStage: "reconnaissance", Payload: []byte(`{"recon":{"endpoints":[{"method":"GET","path":"/widgets"}]}}`)}
	require.NoError(t, o.Checkpoints.Upsert(context.Background(), cp))

	err := o.Resume(context.Background(), "r1")
	require.NoError(t, err)

	got, _ := requests.Get(context.Background(), "r1")
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestOrchestrator_Resume_CorruptCheckpointErrors(t *testing.T) {
	req := &models.Request{ID: "r1", Status: models.StatusGeneration}
	o, _, _ := newTestOrchestrator(t, req, &fakeRecon{}, &fakeGenerator{})

	cp := &models.Checkpoint{ID: "cp1", RequestID: "r1", Version: models.CurrentCheckpointVersion, Payload: []byte("not json")}
	require.NoError(t, o.Checkpoints.Upsert(context.Background(), cp))

	err := o.Resume(context.Background(), "r1")
	assert.ErrorIs(t, err, apperrors.ErrCheckpointCorrupt)
}

func TestOrchestrator_Cancel_NotRegisteredReturnsNotCancellable(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, &models.Request{ID: "r1", Status: models.StatusPending}, &fakeRecon{}, &fakeGenerator{})
	err := o.Cancel("unknown")
	assert.ErrorIs(t, err, apperrors.ErrNotCancellable)
}
