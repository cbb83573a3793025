package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/google/uuid"

	"github.com/testgenai/testgen/pkg/models"
)

// optimizeTestsHandler handles POST /optimize/tests: a stateless run of the
// dedup + coverage pipeline over caller-supplied test source, with no
// persistence (the tests are not owned by any Request).
func (s *Server) optimizeTestsHandler(c *echo.Context) error {
	var req OptimizeTestsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Tests) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "tests must be non-empty")
	}

	cases := make([]*models.TestCase, 0, len(req.Tests))
	for _, code := range req.Tests {
		cases = append(cases, &models.TestCase{
			ID:               uuid.NewString(),
			Code:             code,
			ValidationStatus: models.ValidationPassed,
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	result, err := s.optimizer.Run(ctx, "", req.Requirements, cases)
	if err != nil {
		return mapServiceError(err)
	}

	duplicateOf := make(map[string]string, len(result.Duplicates))
	for _, dup := range result.Duplicates {
		duplicateOf[dup.TestID] = dup.CanonicalID
	}

	return c.JSON(http.StatusOK, &OptimizeTestsResponse{
		UniqueCount:   len(result.Unique),
		DuplicateOf:   duplicateOf,
		Coverage:      result.Coverage,
		CoverageScore: result.CoverageScore,
		Gaps:          result.Gaps,
	})
}
