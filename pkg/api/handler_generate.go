package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/google/uuid"

	"github.com/testgenai/testgen/pkg/models"
)

// generateTestCasesHandler handles POST /generate/test-cases. Creates a
// Request in status pending and returns immediately; pkg/queue's worker pool
// picks it up and drives it through the orchestrator asynchronously (teacher:
// pkg/api/handler_alert.go's submitAlertHandler "create then return 202" shape).
func (s *Server) generateTestCasesHandler(c *echo.Context) error {
	var req GenerateTestCasesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url is required")
	}

	testType := models.TestType(req.TestType)
	if testType == "" {
		testType = models.TestTypeBoth
	}

	return s.createAndAccept(c, testType, req.URL, req.Requirements)
}

// generateAPITestsHandler handles POST /generate/api-tests. The data model
// has no dedicated endpoints column (spec §3 unchanged), so the explicit
// endpoint selectors are folded into Requirements, exactly as free-text
// requirements the Generator's OpenAPI adapter also consumes.
func (s *Server) generateAPITestsHandler(c *echo.Context) error {
	var req GenerateAPITestsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.OpenAPIURL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "openapi_url is required")
	}

	return s.createAndAccept(c, models.TestTypeAPI, req.OpenAPIURL, req.Endpoints)
}

func (s *Server) createAndAccept(c *echo.Context, testType models.TestType, url string, requirements []string) error {
	reqModel := &models.Request{
		ID:           uuid.NewString(),
		URL:          url,
		Requirements: requirements,
		TestType:     testType,
		Status:       models.StatusPending,
		CreatedAt:    time.Now(),
	}
	if err := s.requests.Create(c.Request().Context(), reqModel); err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusAccepted, &TaskAcceptedResponse{
		RequestID: reqModel.ID,
		TaskID:    reqModel.ID,
		Status:    string(reqModel.Status),
		StreamURL: streamURL(reqModel.ID),
	})
}
