package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/merchlens-io/merchlens-engine/pkg/apperrors"
	"github.com/merchlens-io/merchlens-engine/pkg/services"
)

// serviceError maps a service-layer failure onto an HTTP error response.
// Errors that carry no sentinel fall through to a 500 with the caller's
// error code.
func serviceError(w http.ResponseWriter, logger *zap.Logger, err error, fallbackCode string) {
	status := http.StatusInternalServerError
	code := fallbackCode

	switch {
	case errors.Is(err, apperrors.ErrValidation):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperrors.ErrParseFailed):
		status, code = http.StatusBadRequest, "parse_failed"
	case errors.Is(err, apperrors.ErrTypeLocked):
		status, code = http.StatusConflict, "field_type_locked"
	case errors.Is(err, apperrors.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, apperrors.ErrSchemaNotFound):
		status, code = http.StatusNotFound, "schema_not_found"
	case errors.Is(err, apperrors.ErrSourceNotFound):
		status, code = http.StatusNotFound, "source_not_found"
	case errors.Is(err, apperrors.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrPredictorDisabled):
		status, code = http.StatusServiceUnavailable, "predictor_unavailable"
	}

	if err := ErrorResponse(w, status, code, err.Error()); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
