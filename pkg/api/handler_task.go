package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/testgenai/testgen/pkg/models"
)

// getTaskHandler handles GET /tasks/:id?include_tests=bool.
func (s *Server) getTaskHandler(c *echo.Context) error {
	id := c.Param("id")
	req, err := s.requests.Get(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}

	metrics, err := s.metrics.ListByRequest(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}

	resp := &TaskResponse{
		RequestID:     req.ID,
		URL:           req.URL,
		Status:        string(req.Status),
		ResultSummary: req.ResultSummary,
		Metrics:       metricSummaries(metrics),
	}
	if req.ErrorCode != nil {
		resp.ErrorCode = *req.ErrorCode
	}
	if req.ErrorMessage != nil {
		resp.ErrorMessage = *req.ErrorMessage
	}

	if c.QueryParam("include_tests") == "true" {
		tests, err := s.testCases.ListByRequest(c.Request().Context(), id)
		if err != nil {
			return mapServiceError(err)
		}
		resp.Tests = tests
	}

	return c.JSON(http.StatusOK, resp)
}

func metricSummaries(metrics []*models.GenerationMetric) []MetricSummary {
	out := make([]MetricSummary, 0, len(metrics))
	for _, m := range metrics {
		sum := MetricSummary{
			AgentName:  string(m.AgentName),
			StepNumber: m.StepNumber,
			Status:     string(m.Status),
			DurationMs: m.DurationMs,
		}
		if m.ErrorMessage != nil {
			sum.ErrorMessage = *m.ErrorMessage
		}
		out = append(out, sum)
	}
	return out
}

// resumeTaskHandler handles POST /tasks/:id/resume. Resume runs the full
// remaining stage pipeline, which can take minutes (spec §4.1's stage
// timeouts), so it is kicked off in the background the same way
// pkg/queue's worker pool drives Start; the client observes progress over
// the SSE stream rather than blocking on this request.
func (s *Server) resumeTaskHandler(c *echo.Context) error {
	id := c.Param("id")
	if _, err := s.requests.Get(c.Request().Context(), id); err != nil {
		return mapServiceError(err)
	}

	go func() {
		_ = s.orch.Resume(context.Background(), id)
	}()

	return c.JSON(http.StatusAccepted, &TaskAcceptedResponse{
		RequestID: id,
		TaskID:    id,
		Status:    "resuming",
		StreamURL: streamURL(id),
	})
}

// cancelTaskHandler handles POST /tasks/:id/cancel.
func (s *Server) cancelTaskHandler(c *echo.Context) error {
	id := c.Param("id")
	if err := s.orch.Cancel(id); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &CancelResponse{
		RequestID: id,
		Message:   "cancellation requested",
	})
}
