package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/google/uuid"

	"github.com/testgenai/testgen/pkg/models"
	"github.com/testgenai/testgen/pkg/validator"
)

// validateTestsHandler handles POST /validate/tests. The Validator always
// runs its full four-layer analysis (syntax, semantic, logic, Safety Guard);
// validation_level narrows nothing internally since Outcome carries no
// separate per-layer result to slice by — "full" is the only result this
// implementation can produce, so any requested level receives it.
func (s *Server) validateTestsHandler(c *echo.Context) error {
	var req ValidateTestsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.TestCode == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "test_code is required")
	}

	tc := &models.TestCase{ID: uuid.NewString(), Code: req.TestCode}
	outcome := validator.ValidateOne(tc)

	return c.JSON(http.StatusOK, &ValidateTestsResponse{
		Status:    string(outcome.Status),
		Score:     outcome.Score,
		RiskLevel: string(outcome.RiskLevel),
		Issues:    outcome.Issues,
	})
}
