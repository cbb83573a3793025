package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/testgenai/testgen/pkg/export"
	"github.com/testgenai/testgen/pkg/repository"
)

// listTestsHandler handles GET /tests?search=&test_type=&page=.
func (s *Server) listTestsHandler(c *echo.Context) error {
	params := repository.SearchParams{
		Search:    c.QueryParam("search"),
		TestType:  c.QueryParam("test_type"),
		RequestID: c.QueryParam("request_id"),
		Page:      1,
		PageSize:  25,
	}
	if v := c.QueryParam("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			params.Page = p
		}
	}
	if v := c.QueryParam("page_size"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil && ps > 0 {
			params.PageSize = ps
		}
	}

	tests, total, err := s.testCases.Search(c.Request().Context(), params)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &TestListResponse{
		Tests:    tests,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}

// exportTestsHandler handles GET /tests/export?format=&request_id=.
func (s *Server) exportTestsHandler(c *echo.Context) error {
	requestID := c.QueryParam("request_id")
	if requestID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "request_id is required")
	}
	format := export.Format(c.QueryParam("format"))
	if format == "" {
		format = export.FormatZip
	}

	bundle, err := s.bundler.Build(c.Request().Context(), requestID, format)
	if err != nil {
		return mapServiceError(err)
	}

	c.Response().Header().Set("Content-Disposition", `attachment; filename="`+bundle.Filename+`"`)
	return c.Blob(http.StatusOK, bundle.ContentType, bundle.Data)
}
