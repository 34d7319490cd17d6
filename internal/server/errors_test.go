package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/alexwday/report-designer/internal/binding"
	"github.com/alexwday/report-designer/internal/db"
	"github.com/alexwday/report-designer/internal/dependency"
	"github.com/alexwday/report-designer/internal/generation"
	"github.com/alexwday/report-designer/internal/precheck"
	"github.com/alexwday/report-designer/internal/resolve"
)

func TestErrValidation_Error(t *testing.T) {
	assert.Equal(t, "validation error: body invalid", (&ErrValidation{Message: "body invalid"}).Error())
	assert.Equal(t, "validation error: job_id - must be a UUID", (&ErrValidation{Field: "job_id", Message: "must be a UUID"}).Error())
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &ErrValidation{Message: "bad"}, http.StatusBadRequest},
		{"binding", &binding.ValidationError{Key: "k", Message: "bad"}, http.StatusBadRequest},
		{"field errors", binding.FieldErrors{"k": {Key: "k", Message: "bad"}}, http.StatusBadRequest},
		{"self reference", fmt.Errorf("wrapped: %w", dependency.ErrSelfReference), http.StatusBadRequest},
		{"template not found", generation.ErrTemplateNotFound, http.StatusNotFound},
		{"subsection not found", fmt.Errorf("subsection x: %w", generation.ErrSubsectionNotFound), http.StatusNotFound},
		{"job not found", generation.ErrJobNotFound, http.StatusNotFound},
		{"row not found", db.ErrNotFound, http.StatusNotFound},
		{"missing inputs", &precheck.MissingInputsError{Names: []string{"bank"}}, http.StatusUnprocessableEntity},
		{"unresolved", &resolve.UnresolvedVariableError{Name: "bank", Key: "bank"}, http.StatusUnprocessableEntity},
		{"blocking", precheck.BlockingErrors{{SubsectionTitle: "Summary"}}, http.StatusConflict},
		{"not ready", &generation.ReadinessError{Issues: []string{"no data inputs are configured"}}, http.StatusConflict},
		{"resolution", &resolve.Error{Key: "fiscal_year", Message: "bad"}, http.StatusConflict},
		{"in progress", generation.ErrRunInProgress, http.StatusConflict},
		{"job active", generation.ErrJobActive, http.StatusConflict},
		{"other", errors.New("upstream unavailable"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestWriteError_Details(t *testing.T) {
	s := &Server{logger: zap.NewNop()}

	rec := httptest.NewRecorder()
	s.writeError(rec, binding.FieldErrors{"fiscal_year": {Key: "fiscal_year", Message: "expected an integer"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"parameter fiscal_year: expected an integer","fields":{"fiscal_year":"expected an integer"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.writeError(rec, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"boom"}`, rec.Body.String())
}
