package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/alexwday/report-designer/internal/binding"
	"github.com/alexwday/report-designer/internal/db"
	"github.com/alexwday/report-designer/internal/dependency"
	"github.com/alexwday/report-designer/internal/generation"
	"github.com/alexwday/report-designer/internal/precheck"
	"github.com/alexwday/report-designer/internal/resolve"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validation   *ErrValidation
		bindingErr   *binding.ValidationError
		fieldErrs    binding.FieldErrors
		structErrs   validator.ValidationErrors
		missing      *precheck.MissingInputsError
		unresolved   *resolve.UnresolvedVariableError
		blocking     precheck.BlockingErrors
		notReady     *generation.ReadinessError
		resolveError *resolve.Error
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &bindingErr), errors.As(err, &fieldErrs),
		errors.As(err, &structErrs), errors.Is(err, dependency.ErrSelfReference):
		return http.StatusBadRequest
	case errors.Is(err, generation.ErrTemplateNotFound), errors.Is(err, generation.ErrSubsectionNotFound),
		errors.Is(err, generation.ErrJobNotFound), errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &missing), errors.As(err, &unresolved):
		return http.StatusUnprocessableEntity
	case errors.As(err, &blocking), errors.As(err, &notReady), errors.As(err, &resolveError),
		errors.Is(err, generation.ErrRunInProgress), errors.Is(err, generation.ErrJobActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err with its mapped status and any structured details
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	body := map[string]any{"error": err.Error()}

	var (
		fieldErrs binding.FieldErrors
		missing   *precheck.MissingInputsError
		blocking  precheck.BlockingErrors
		notReady  *generation.ReadinessError
	)
	switch {
	case errors.As(err, &fieldErrs):
		body["fields"] = fieldErrs.Messages()
	case errors.As(err, &missing):
		body["missing_inputs"] = missing.Names
		if len(missing.Blocking) > 0 {
			body["blocking_errors"] = missing.Blocking
		}
	case errors.As(err, &blocking):
		body["blocking_errors"] = blocking
	case errors.As(err, &notReady):
		body["issues"] = notReady.Issues
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	s.jsonResponse(w, status, body)
}
