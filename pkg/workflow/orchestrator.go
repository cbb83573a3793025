package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/testgenai/testgen/pkg/apperrors"
	"github.com/testgenai/testgen/pkg/config"
	"github.com/testgenai/testgen/pkg/events"
	"github.com/testgenai/testgen/pkg/generator"
	"github.com/testgenai/testgen/pkg/models"
	"github.com/testgenai/testgen/pkg/optimizer"
	"github.com/testgenai/testgen/pkg/recon"
	"github.com/testgenai/testgen/pkg/repository"
	"github.com/testgenai/testgen/pkg/validator"
)

var (
	_ requestStore    = (*repository.RequestRepository)(nil)
	_ checkpointStore = (*repository.CheckpointRepository)(nil)
	_ metricStore     = (*repository.MetricRepository)(nil)
	_ coverageStore   = (*repository.CoverageRepository)(nil)
	_ auditStore      = (*repository.AuditRepository)(nil)
	_ testCaseStore   = (*repository.TestCaseRepository)(nil)
	_ publisher       = (*events.Publisher)(nil)
)

// reconBackoff is the fixed inter-retry delay for failed reconnaissance attempts
// (spec §4.1: "retry up to 2x with 2s backoff").
const reconBackoff = 2 * time.Second

// The following interfaces narrow each repository to the methods the
// orchestrator actually calls (teacher idiom: pkg/queue's SessionExecutor /
// this module's optimizer.Embedder) — the *repository.XRepository types
// already satisfy these, but tests can supply lightweight fakes instead of
// sqlmock-backed repositories.
type requestStore interface {
	Get(ctx context.Context, id string) (*models.Request, error)
	UpdateStatus(ctx context.Context, id string, status models.RequestStatus, errCode, errMsg *string) error
	SetCheckpointID(ctx context.Context, id, checkpointID string) error
	SetResultSummary(ctx context.Context, id string, summary map[string]any) error
}

type checkpointStore interface {
	Upsert(ctx context.Context, cp *models.Checkpoint) error
	GetByRequest(ctx context.Context, requestID string) (*models.Checkpoint, error)
	Delete(ctx context.Context, requestID string) error
}

type metricStore interface {
	Create(ctx context.Context, m *models.GenerationMetric) error
	ListByRequest(ctx context.Context, requestID string) ([]*models.GenerationMetric, error)
}

type coverageStore interface {
	ReplaceForRequest(ctx context.Context, requestID string, rows []*models.CoverageAnalysis) error
}

type auditStore interface {
	Create(ctx context.Context, a *models.SecurityAuditLog) error
}

type testCaseStore interface {
	CreateBatch(ctx context.Context, cases []*models.TestCase) error
	MarkDuplicate(ctx context.Context, id, canonicalID string, score float64) error
	UpdateEmbedding(ctx context.Context, id, astHash string, embedding []float32) error
}

type publisher interface {
	PublishStageStatus(ctx context.Context, payload events.StageStatusPayload) error
	PublishMetric(ctx context.Context, payload events.MetricPayload) error
	PublishTerminal(ctx context.Context, payload events.TerminalPayload) error
}

// Orchestrator drives one Request through the stage loop, persisting a
// checkpoint and publishing a progress event at every transition (teacher:
// pkg/queue/worker.go's pollAndProcess, generalized from a single
// SessionExecutor.Execute call to four composed stages).
type Orchestrator struct {
	Requests    requestStore
	Checkpoints checkpointStore
	Metrics     metricStore
	Coverage    coverageStore
	Audits      auditStore
	TestCases   testCaseStore

	Publisher publisher

	Recon     recon.Reconnaissance
	Generator generator.Generator
	Validator *validator.Validator
	Optimizer *optimizer.Optimizer

	HTTPClient *http.Client
	Stage      config.StageConfig

	Registry *RequestRegistry
}

// NewOrchestrator wires the stage implementations together. HTTPClient
// defaults to a 30s-timeout client (teacher: pkg/runbook/github.go's
// NewGitHubClient) if nil.
func NewOrchestrator(
	requests requestStore,
	checkpoints checkpointStore,
	metrics metricStore,
	coverage coverageStore,
	audits auditStore,
	testCases testCaseStore,
	pub publisher,
	r recon.Reconnaissance,
	g generator.Generator,
	v *validator.Validator,
	o *optimizer.Optimizer,
	stage config.StageConfig,
) *Orchestrator {
	return &Orchestrator{
		Requests: requests, Checkpoints: checkpoints, Metrics: metrics,
		Coverage: coverage, Audits: audits, TestCases: testCases,
		Publisher: pub, Recon: r, Generator: g, Validator: v, Optimizer: o,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Stage:      stage,
		Registry:   NewRequestRegistry(),
	}
}

// Start is idempotent: a request already in a terminal state is a no-op.
// Otherwise it claims the request for this pod's stage loop and runs it to
// completion (or to its next blocking point).
func (o *Orchestrator) Start(ctx context.Context, requestID string) error {
	req, err := o.Requests.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status.IsTerminal() {
		return nil
	}
	if req.Status == models.StatusPending {
		if err := o.Requests.UpdateStatus(ctx, requestID, models.StatusReconnaissance, nil, nil); err != nil {
			return fmt.Errorf("workflow: start transition to reconnaissance: %w", err)
		}
		req.Status = models.StatusReconnaissance
	}
	return o.runLoop(ctx, req, &state{})
}

// Resume reloads the last checkpoint and continues from the stage after the
// one it recorded.
func (o *Orchestrator) Resume(ctx context.Context, requestID string) error {
	req, err := o.Requests.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status.IsTerminal() {
		return nil
	}
	cp, err := o.Checkpoints.GetByRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return o.runLoop(ctx, req, &state{})
		}
		return err
	}
	st, err := decodeState(cp)
	if err != nil {
		return err
	}
	return o.runLoop(ctx, req, st)
}

// Cancel triggers cooperative cancellation for a request being processed on
// this pod. Returns apperrors.ErrNotCancellable if the request is not
// registered here (it may be terminal, or owned by another pod).
func (o *Orchestrator) Cancel(requestID string) error {
	if o.Registry.Cancel(requestID) {
		return nil
	}
	return apperrors.ErrNotCancellable
}

// runLoop executes stages in order starting from req.Status, persisting a
// checkpoint and publishing an event after each one, until a terminal status
// is reached.
func (o *Orchestrator) runLoop(ctx context.Context, req *models.Request, st *state) error {
	stageCtx, cancel := context.WithCancel(ctx)
	o.Registry.Register(req.ID, cancel)
	defer o.Registry.Unregister(req.ID)
	defer cancel()

	current := req.Status
	step := 0
	if priorMetrics, err := o.Metrics.ListByRequest(ctx, req.ID); err == nil {
		step = len(priorMetrics)
	}
	for {
		if err := stageCtx.Err(); err != nil {
			return o.finishCancelled(ctx, req.ID)
		}

		switch current {
		case models.StatusReconnaissance:
			result, err := o.runStage(ctx, req, models.AgentReconnaissance, step, func(sctx context.Context) (any, error) {
				return o.doReconnaissance(sctx, req)
			})
			if err != nil {
				return o.finishFailed(ctx, req.ID, apperrors.ErrorCodeReconTimeout, err)
			}
			st.Recon = result.(*recon.Result)
			if err := o.advance(ctx, req.ID, models.StatusGeneration, "reconnaissance", st); err != nil {
				return err
			}
			current = models.StatusGeneration

		case models.StatusGeneration:
			step++
			result, err := o.runStage(ctx, req, models.AgentGenerator, step, func(sctx context.Context) (any, error) {
				return o.doGeneration(sctx, req, st.Recon, step)
			})
			if err != nil {
				return o.finishFailed(ctx, req.ID, apperrors.ErrorCodeEmptyOutput, err)
			}
			st.RawTests = result.([]string)
			if err := o.advance(ctx, req.ID, models.StatusValidation, "generation", st); err != nil {
				return err
			}
			current = models.StatusValidation

		case models.StatusValidation:
			step++
			result, err := o.runStage(ctx, req, models.AgentValidator, step, func(sctx context.Context) (any, error) {
				return o.doValidation(sctx, req, st.RawTests)
			})
			if err != nil {
				// validation never fails the whole request (spec §4.1); any
				// error here is a programming/persistence fault, not a
				// per-test outcome.
				return o.finishFailed(ctx, req.ID, apperrors.ErrorCodeInternal, err)
			}
			st.ValidatedTests = result.([]*models.TestCase)
			if err := o.advance(ctx, req.ID, models.StatusOptimization, "validation", st); err != nil {
				return err
			}
			current = models.StatusOptimization

		case models.StatusOptimization:
			step++
			result, err := o.runStage(ctx, req, models.AgentOptimizer, step, func(sctx context.Context) (any, error) {
				return o.doOptimization(sctx, req, st.ValidatedTests)
			})
			if err != nil {
				if errors.Is(err, errNoPassingTests) {
					return o.finishFailed(ctx, req.ID, apperrors.ErrorCodeNoTests, err)
				}
				return o.finishFailed(ctx, req.ID, apperrors.ErrorCodeInternal, err)
			}
			opt := result.(*optimizer.Result)
			st.OptResult = &optimizationSnapshot{CoverageScore: opt.CoverageScore}
			for _, tc := range opt.Unique {
				st.OptResult.UniqueIDs = append(st.OptResult.UniqueIDs, tc.ID)
			}
			return o.finishCompleted(ctx, req.ID, opt)

		default:
			return fmt.Errorf("workflow: cannot resume request %s from status %s", req.ID, current)
		}
	}
}

// runStage records started/completed timestamps around fn and writes a
// GenerationMetric for the attempt, success or failure.
func (o *Orchestrator) runStage(ctx context.Context, req *models.Request, agent models.AgentName, step int, fn func(context.Context) (any, error)) (any, error) {
	started := time.Now()
	result, err := fn(ctx)
	completed := time.Now()

	metric := &models.GenerationMetric{
		ID:          uuid.NewString(),
		RequestID:   req.ID,
		AgentName:   agent,
		StepNumber:  step,
		StartedAt:   started,
		CompletedAt: completed,
		DurationMs:  completed.Sub(started).Milliseconds(),
		Status:      models.MetricSuccess,
	}
	if err != nil {
		metric.Status = models.MetricFailed
		msg := err.Error()
		metric.ErrorMessage = &msg
	}
	if mErr := o.Metrics.Create(ctx, metric); mErr != nil {
		return result, fmt.Errorf("workflow: record metric for %s: %w (stage error: %v)", agent, mErr, err)
	}
	if pErr := o.Publisher.PublishMetric(ctx, events.MetricPayload{
		RequestID: req.ID, Stage: string(agent), DurationMs: metric.DurationMs, Timestamp: completed,
	}); pErr != nil {
		return result, fmt.Errorf("workflow: publish metric for %s: %w", agent, pErr)
	}
	return result, err
}

// advance persists the checkpoint for the just-completed stage, updates the
// request's status, and publishes the transition — all ascribed to one
// logical transition even though the checkpoint and status live in separate
// tables (teacher's ent transaction boundary collapses to two sequential
// writes here since pkg/database uses plain database/sql, not a single
// cross-repository transaction type; see DESIGN.md).
func (o *Orchestrator) advance(ctx context.Context, requestID string, next models.RequestStatus, lastStage string, st *state) error {
	payload, err := encodeState(st)
	if err != nil {
		return err
	}
	cp := &models.Checkpoint{
		ID: uuid.NewString(), RequestID: requestID, Version: models.CurrentCheckpointVersion,
		LastStage: lastStage, Payload: payload,
	}
	if err := o.Checkpoints.Upsert(ctx, cp); err != nil {
		return fmt.Errorf("workflow: upsert checkpoint: %w", err)
	}
	if err := o.Requests.SetCheckpointID(ctx, requestID, cp.ID); err != nil {
		return fmt.Errorf("workflow: set checkpoint id: %w", err)
	}
	if err := o.Requests.UpdateStatus(ctx, requestID, next, nil, nil); err != nil {
		return fmt.Errorf("workflow: advance status to %s: %w", next, err)
	}
	return o.Publisher.PublishStageStatus(ctx, events.StageStatusPayload{
		RequestID: requestID, Stage: lastStage, Status: string(next), Timestamp: time.Now(),
	})
}

func (o *Orchestrator) finishFailed(ctx context.Context, requestID string, code apperrors.ErrorCode, cause error) error {
	msg := cause.Error()
	codeStr := string(code)
	if err := o.Requests.UpdateStatus(ctx, requestID, models.StatusFailed, &codeStr, &msg); err != nil {
		return fmt.Errorf("workflow: mark failed: %w (cause: %v)", err, cause)
	}
	_ = o.Publisher.PublishTerminal(ctx, events.TerminalPayload{
		RequestID: requestID, Status: string(models.StatusFailed), ErrorCode: codeStr, Timestamp: time.Now(),
	})
	return apperrors.NewCodedError(code, cause)
}

func (o *Orchestrator) finishCancelled(ctx context.Context, requestID string) error {
	if err := o.Requests.UpdateStatus(ctx, requestID, models.StatusCancelled, nil, nil); err != nil {
		return fmt.Errorf("workflow: mark cancelled: %w", err)
	}
	_ = o.Publisher.PublishTerminal(ctx, events.TerminalPayload{
		RequestID: requestID, Status: string(models.StatusCancelled), Timestamp: time.Now(),
	})
	return apperrors.ErrCancelled
}

func (o *Orchestrator) finishCompleted(ctx context.Context, requestID string, opt *optimizer.Result) error {
	if err := o.Coverage.ReplaceForRequest(ctx, requestID, opt.Coverage); err != nil {
		return fmt.Errorf("workflow: persist coverage: %w", err)
	}
	summary := map[string]any{
		"unique_count":     len(opt.Unique),
		"duplicate_count":  len(opt.Duplicates),
		"coverage_score":   opt.CoverageScore,
		"gap_count":        len(opt.Gaps),
	}
	if err := o.Requests.SetResultSummary(ctx, requestID, summary); err != nil {
		return fmt.Errorf("workflow: set result summary: %w", err)
	}
	if err := o.Requests.UpdateStatus(ctx, requestID, models.StatusCompleted, nil, nil); err != nil {
		return fmt.Errorf("workflow: mark completed: %w", err)
	}
	if err := o.Checkpoints.Delete(ctx, requestID); err != nil {
		return fmt.Errorf("workflow: delete checkpoint on completion: %w", err)
	}
	return o.Publisher.PublishTerminal(ctx, events.TerminalPayload{
		RequestID: requestID, Status: string(models.StatusCompleted), Timestamp: time.Now(),
	})
}

// doReconnaissance fetches the request URL as an OpenAPI document and
// inspects it, whatever the request's test type, retrying up to
// Stage.ReconMaxRetries times with a fixed 2s backoff after any failed attempt.
func (o *Orchestrator) doReconnaissance(ctx context.Context, req *models.Request) (*recon.Result, error) {
	var lastErr error
	for attempt := 0; attempt <= o.Stage.ReconMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(reconBackoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		reconCtx, cancel := context.WithTimeout(ctx, o.Stage.ReconTimeout)
		result, err := o.inspectOnce(reconCtx, req)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("reconnaissance: exhausted %d retries: %w", o.Stage.ReconMaxRetries, lastErr)
}

func (o *Orchestrator) inspectOnce(ctx context.Context, req *models.Request) (*recon.Result, error) {
	spec, err := o.fetchOpenAPISpec(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	return o.Recon.Inspect(ctx, recon.Target{URL: req.URL, OpenAPISpec: spec})
}

// fetchOpenAPISpec downloads the raw OpenAPI document from url (teacher:
// pkg/runbook/github.go's DownloadContent shape).
func (o *Orchestrator) fetchOpenAPISpec(ctx context.Context, url string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("recon: build request: %w", err)
	}
	resp, err := o.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("recon: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recon: %s returned HTTP %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("recon: read response body: %w", err)
	}
	return body, nil
}

// doGeneration calls the Generator once; a parse failure (empty output) gets
// exactly one regeneration attempt before failing (spec §4.1), recorded as a
// MetricRetry row so the request's metric history shows the retry ahead of
// the attempt's eventual success/failure row written by runStage. Transient
// upstream errors are retried inside pkg/llm's CachedClient, not here.
func (o *Orchestrator) doGeneration(ctx context.Context, req *models.Request, result *recon.Result, step int) ([]string, error) {
	genCtx, cancel := context.WithTimeout(ctx, o.Stage.GenTimeout)
	defer cancel()

	input := generator.Input{Recon: result, Requirements: req.Requirements, TestType: req.TestType}

	tests, err := o.Generator.Generate(genCtx, input)
	if err == nil {
		return tests, nil
	}
	if apperrors.CodeOf(err) != apperrors.ErrorCodeEmptyOutput {
		return nil, apperrors.NewCodedError(apperrors.ErrorCodeLLMUnavail, err)
	}

	o.recordRetryMetric(ctx, req.ID, models.AgentGenerator, step, err)

	tests, err = o.Generator.Generate(genCtx, input)
	if err != nil {
		return nil, apperrors.NewCodedError(apperrors.ErrorCodeEmptyOutput, err)
	}
	return tests, nil
}

// recordRetryMetric writes a MetricRetry row ahead of a stage's regeneration
// attempt. Best-effort: a metric-persistence failure here must not mask the
// retry itself, so the error is swallowed the same way PublishTerminal's
// result is elsewhere in this file.
func (o *Orchestrator) recordRetryMetric(ctx context.Context, requestID string, agent models.AgentName, step int, cause error) {
	msg := cause.Error()
	now := time.Now()
	_ = o.Metrics.Create(ctx, &models.GenerationMetric{
		ID:           uuid.NewString(),
		RequestID:    requestID,
		AgentName:    agent,
		StepNumber:   step,
		StartedAt:    now,
		CompletedAt:  now,
		Status:       models.MetricRetry,
		ErrorMessage: &msg,
	})
}

// doValidation turns raw generator output into persisted TestCase rows,
// classifies each one, and writes its audit trail. It never returns an error
// for a per-test outcome — only for a repository/programming fault.
func (o *Orchestrator) doValidation(ctx context.Context, req *models.Request, rawTests []string) ([]*models.TestCase, error) {
	tests := buildTestCases(req, rawTests)

	valCtx, cancel := context.WithTimeout(ctx, validationDeadline(o.Stage, len(tests)))
	defer cancel()

	outcomes, err := o.Validator.ValidateBatch(valCtx, tests)
	if err != nil {
		return nil, fmt.Errorf("validation: %w", err)
	}

	for i, tc := range tests {
		oc := outcomes[i]
		tc.ValidationStatus = oc.Status
		tc.ValidationIssues = oc.Issues
		tc.SafetyRiskLevel = oc.RiskLevel
		for _, row := range oc.AuditRows {
			row.ID = uuid.NewString()
			row.CreatedAt = time.Now()
			if err := o.Audits.Create(ctx, row); err != nil {
				return nil, fmt.Errorf("validation: persist audit row: %w", err)
			}
		}
	}

	if err := o.TestCases.CreateBatch(ctx, tests); err != nil {
		return nil, err
	}
	return tests, nil
}

// validationDeadline is 30s per test capped at 300s (spec §4.1).
func validationDeadline(stage config.StageConfig, n int) time.Duration {
	if n <= 0 {
		return stage.ValTimeout
	}
	d := time.Duration(n) * stage.ValTimeout
	ceiling := 10 * stage.ValTimeout
	if d > ceiling {
		return ceiling
	}
	return d
}

// errNoPassingTests signals the "zero non-duplicate passing tests" failure
// condition from spec §4.1.
var errNoPassingTests = errors.New("no non-duplicate passing tests remain")

// doOptimization runs the Optimizer over tests that survived validation
// (status ∈ {passed, warning}); failed tests stay audit-only.
func (o *Orchestrator) doOptimization(ctx context.Context, req *models.Request, tests []*models.TestCase) (*optimizer.Result, error) {
	optCtx, cancel := context.WithTimeout(ctx, o.Stage.OptTimeout)
	defer cancel()

	survivors := make([]*models.TestCase, 0, len(tests))
	for _, tc := range tests {
		if tc.ValidationStatus == models.ValidationPassed || tc.ValidationStatus == models.ValidationWarning {
			survivors = append(survivors, tc)
		}
	}

	result, err := o.Optimizer.Run(optCtx, req.ID, req.Requirements, survivors)
	if err != nil {
		return nil, fmt.Errorf("optimization: %w", err)
	}

	for _, dup := range result.Duplicates {
		if err := o.TestCases.MarkDuplicate(ctx, dup.TestID, dup.CanonicalID, dup.SimilarityScore); err != nil {
			return nil, fmt.Errorf("optimization: mark duplicate: %w", err)
		}
	}
	for _, tc := range result.Unique {
		if len(tc.SemanticEmbedding) > 0 {
			astHash := ""
			if tc.ASTHash != nil {
				astHash = *tc.ASTHash
			}
			if err := o.TestCases.UpdateEmbedding(ctx, tc.ID, astHash, tc.SemanticEmbedding); err != nil {
				return nil, fmt.Errorf("optimization: persist embedding: %w", err)
			}
		}
	}

	hasPassing := false
	for _, tc := range result.Unique {
		if tc.ValidationStatus == models.ValidationPassed {
			hasPassing = true
			break
		}
	}
	if !hasPassing {
		return nil, errNoPassingTests
	}
	return result, nil
}

// buildTestCases assigns IDs and a test-case type to each raw generated
// source, producing the rows persisted and then validated.
func buildTestCases(req *models.Request, rawTests []string) []*models.TestCase {
	caseType := models.TestCaseTypeAutomated
	if req.TestType == models.TestTypeManual {
		caseType = models.TestCaseTypeManual
	}
	out := make([]*models.TestCase, 0, len(rawTests))
	for i, code := range rawTests {
		out = append(out, &models.TestCase{
			ID:               uuid.NewString(),
			RequestID:        req.ID,
			Name:             fmt.Sprintf("test_%d", i+1),
			Code:             code,
			TestType:         caseType,
			Priority:         models.DefaultPriority,
			ValidationStatus: models.ValidationWarning,
			SafetyRiskLevel:  models.RiskSafe,
		})
	}
	return out
}
