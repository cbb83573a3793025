package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/testgenai/testgen/pkg/apperrors"
)

// mapServiceError maps pipeline error kinds to HTTP error responses (teacher:
// pkg/api/errors.go's mapServiceError, generalized from services.* to
// pkg/apperrors's sentinel kinds).
func mapServiceError(err error) *echo.HTTPError {
	var validErr *apperrors.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, apperrors.ErrInvalidInput) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if errors.Is(err, apperrors.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if errors.Is(err, apperrors.ErrNotCancellable) {
		return echo.NewHTTPError(http.StatusConflict, "request is not in a cancellable state")
	}
	if errors.Is(err, apperrors.ErrAlreadyExists) {
		return echo.NewHTTPError(http.StatusConflict, "resource already exists")
	}
	if errors.Is(err, apperrors.ErrSafetyBlocked) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "rejected by safety guard")
	}
	if errors.Is(err, apperrors.ErrCheckpointCorrupt) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "checkpoint corrupt, cannot resume")
	}

	slog.Error("unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
