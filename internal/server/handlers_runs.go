package server

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/alexwday/report-designer/internal/generation"
	"github.com/alexwday/report-designer/internal/period"
)

// RunRequest is the body for starting a document run or a single generation
type RunRequest struct {
	RunInputs map[string]any `json:"run_inputs"`
	// Period overrides the fiscal period; otherwise run inputs or the calendar decide
	Period *period.Period `json:"period"`
}

func (r RunRequest) start() generation.StartRequest {
	return generation.StartRequest{RunInputs: r.RunInputs, Period: r.Period}
}

// handleRequirements reports what a document run needs. Query parameters are
// treated as candidate run inputs.
func (s *Server) handleRequirements(w http.ResponseWriter, r *http.Request) {
	templateID, err := pathUUID(r, "template_id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	reqs, err := s.runs.CheckRequirements(r.Context(), templateID, queryInputs(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, reqs)
}

// handleStartRun begins a document run in the background
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	templateID, err := pathUUID(r, "template_id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req RunRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	view, err := s.runs.Start(r.Context(), templateID, req.start())
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("generation run started",
		zap.String("template_id", templateID.String()),
		zap.String("job_id", view.ID.String()),
		zap.Int("total", view.Total),
	)
	s.jsonResponse(w, http.StatusAccepted, map[string]any{
		"job_id": view.ID,
		"job":    view,
	})
}

// handleRunStatus returns the current job snapshot
func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	templateID, err := pathUUID(r, "template_id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	jobID, err := pathUUID(r, "job_id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	view, err := s.runs.Status(r.Context(), templateID, jobID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, view)
}

// handleRunStream streams job snapshots until the job is terminal
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	templateID, err := pathUUID(r, "template_id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	jobID, err := pathUUID(r, "job_id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Resolve the job before switching to an event stream so a 404 stays a 404
	view, err := s.runs.Status(r.Context(), templateID, jobID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var lastUpdate time.Time
	for sent := false; ; sent = true {
		if !sent || !view.UpdatedAt.Equal(lastUpdate) {
			if err := sse.WriteStatus(view); err != nil {
				return
			}
			lastUpdate = view.UpdatedAt
		}
		if view.Status.Terminal() {
			sse.WriteComplete(view)
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		view, err = s.runs.Status(r.Context(), templateID, jobID)
		if err != nil {
			sse.WriteError(err.Error())
			return
		}
	}
}

// handleDismissRun hides a finished job from status queries
func (s *Server) handleDismissRun(w http.ResponseWriter, r *http.Request) {
	templateID, err := pathUUID(r, "template_id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	jobID, err := pathUUID(r, "job_id")
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.runs.Dismiss(r.Context(), templateID, jobID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
