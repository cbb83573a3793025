// Package api provides the HTTP surface of the generation pipeline (spec §6).
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/testgenai/testgen/pkg/config"
	"github.com/testgenai/testgen/pkg/events"
	"github.com/testgenai/testgen/pkg/export"
	"github.com/testgenai/testgen/pkg/models"
	"github.com/testgenai/testgen/pkg/optimizer"
	"github.com/testgenai/testgen/pkg/repository"
	"github.com/testgenai/testgen/pkg/validator"
	"github.com/testgenai/testgen/pkg/version"
	"github.com/testgenai/testgen/pkg/workflow"
)

// The following interfaces narrow each dependency to the methods the Server
// actually calls (teacher idiom: pkg/queue's SessionExecutor / this module's
// pkg/workflow and pkg/queue narrowings) so handlers can be tested against
// lightweight fakes instead of sqlmock-backed repositories.
type requestStore interface {
	Create(ctx context.Context, req *models.Request) error
	Get(ctx context.Context, id string) (*models.Request, error)
}

type testCaseStore interface {
	ListByRequest(ctx context.Context, requestID string) ([]*models.TestCase, error)
	Search(ctx context.Context, params repository.SearchParams) ([]*models.TestCase, int, error)
}

type metricStore interface {
	ListByRequest(ctx context.Context, requestID string) ([]*models.GenerationMetric, error)
}

// orchestrator is the subset of workflow.Orchestrator the API triggers
// directly; Start is invoked by pkg/queue's worker pool, not by HTTP.
type orchestrator interface {
	Resume(ctx context.Context, requestID string) error
	Cancel(requestID string) error
}

// streamSubscriber is the subset of events.Broker the SSE handler needs.
type streamSubscriber interface {
	Subscribe(ctx context.Context, channel string, lastEventID int64) (<-chan []byte, func(), error)
}

// bundleBuilder is the subset of export.Bundler the export handler needs.
type bundleBuilder interface {
	Build(ctx context.Context, requestID string, format export.Format) (*export.Bundle, error)
}

var (
	_ requestStore  = (*repository.RequestRepository)(nil)
	_ testCaseStore = (*repository.TestCaseRepository)(nil)
	_ metricStore   = (*repository.MetricRepository)(nil)
	_ orchestrator  = (*workflow.Orchestrator)(nil)
	_ streamSubscriber = (*events.Broker)(nil)
	_ bundleBuilder    = (*export.Bundler)(nil)
)

// Server is the HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	cfg        *config.Config

	requests  requestStore
	testCases testCaseStore
	metrics   metricStore
	validator *validator.Validator
	optimizer *optimizer.Optimizer

	orch    orchestrator // nil until SetOrchestrator
	broker  streamSubscriber // nil until SetBroker
	bundler bundleBuilder    // nil until SetBundler
}

// NewServer creates a new API server with Echo v5, wiring the core,
// always-required dependencies. The remaining dependencies are late-bound
// via Set* because cmd/testgen constructs the orchestrator, broker, and
// exporter after the repositories they in turn depend on.
func NewServer(
	cfg *config.Config,
	requests requestStore,
	testCases testCaseStore,
	metrics metricStore,
	v *validator.Validator,
	o *optimizer.Optimizer,
) *Server {
	e := echo.New()

	s := &Server{
		echo:      e,
		cfg:       cfg,
		requests:  requests,
		testCases: testCases,
		metrics:   metrics,
		validator: v,
		optimizer: o,
	}

	s.setupRoutes()
	return s
}

// SetOrchestrator wires the workflow orchestrator for resume/cancel.
func (s *Server) SetOrchestrator(o orchestrator) {
	s.orch = o
}

// SetBroker wires the SSE progress-stream broker.
func (s *Server) SetBroker(b streamSubscriber) {
	s.broker = b
}

// SetBundler wires the export bundle builder.
func (s *Server) SetBundler(b bundleBuilder) {
	s.bundler = b
}

// ValidateWiring checks that every Set*-wired dependency has been supplied.
// Call this after all Set* calls and before Start/StartWithListener, so that
// wiring gaps are caught at startup rather than surfacing as 500s at request
// time (teacher: pkg/api/server.go's ValidateWiring).
func (s *Server) ValidateWiring() error {
	var errs []error
	if s.orch == nil {
		errs = append(errs, fmt.Errorf("orchestrator not set (call SetOrchestrator)"))
	}
	if s.broker == nil {
		errs = append(errs, fmt.Errorf("broker not set (call SetBroker)"))
	}
	if s.bundler == nil {
		errs = append(errs, fmt.Errorf("bundler not set (call SetBundler)"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("server wiring incomplete: %w", errors.Join(errs...))
	}
	return nil
}

// setupRoutes registers all API routes.
func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)

	s.echo.POST("/generate/test-cases", s.generateTestCasesHandler)
	s.echo.POST("/generate/api-tests", s.generateAPITestsHandler)

	s.echo.GET("/tasks/:id", s.getTaskHandler)
	s.echo.GET("/tasks/:id/stream", s.streamTaskHandler)
	s.echo.POST("/tasks/:id/resume", s.resumeTaskHandler)
	s.echo.POST("/tasks/:id/cancel", s.cancelTaskHandler)

	s.echo.POST("/validate/tests", s.validateTestsHandler)
	s.echo.POST("/optimize/tests", s.optimizeTestsHandler)

	// Static path before the export query-string variant so routing is
	// unambiguous (teacher: handler_session.go registers /sessions/active
	// before /sessions/:id for the same reason).
	s.echo.GET("/tests/export", s.exportTestsHandler)
	s.echo.GET("/tests", s.listTestsHandler)
}

// Start starts the HTTP server on the given address (non-blocking from the
// caller's perspective only in that ListenAndServe blocks this goroutine;
// callers typically run it in its own goroutine).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener. Used
// by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &HealthResponse{
		Status:  "healthy",
		Version: version.Full(),
	})
}

// streamURL builds the SSE URL for a request (spec §6 TaskAcceptedResponse).
func streamURL(requestID string) string {
	return fmt.Sprintf("/tasks/%s/stream", requestID)
}

// requestTimeout bounds ad-hoc calls the API makes directly into the
// validator/optimizer packages (not the full stage timeouts, which only
// apply to the orchestrator's own pipeline run).
const requestTimeout = 30 * time.Second
