package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nathan/competitor-lens/internal/evidence"
	"github.com/nathan/competitor-lens/internal/pipeline"
)

// runStatusResponse is the wire shape for run status endpoints.
type runStatusResponse struct {
	RunID        string           `json:"runId"`
	Status       pipeline.Status  `json:"status"`
	Progress     string           `json:"progress"`
	UpdatedAt    time.Time        `json:"updatedAt"`
	ErrorCode    string           `json:"errorCode,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	Output       *pipeline.Output `json:"output,omitempty"`
}

func runStatus(run *pipeline.Run) runStatusResponse {
	return runStatusResponse{
		RunID:        run.ID.String(),
		Status:       run.Status,
		Progress:     run.Progress(),
		UpdatedAt:    run.UpdatedAt,
		ErrorCode:    run.ErrorCode,
		ErrorMessage: run.ErrorMessage,
		Output:       run.Output,
	}
}

// handleStartAnalysis creates or reuses an analysis run for a project and,
// when the run has work to do, executes it in the background. The response is
// always the run snapshot taken before execution starts.
func (s *Server) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")

	run, execute, err := s.coord.CreateOrReuseRun(r.Context(), projectID)
	if err != nil {
		s.pipelineErrorResponse(w, err)
		return
	}

	// Snapshot before handing the run to the executor goroutine.
	resp := runStatus(run)

	if execute {
		go func() {
			// The run outlives the request.
			if err := s.exec.Execute(context.Background(), run); err != nil {
				s.logger.Error("analysis run failed", "run_id", run.ID, "project_id", projectID, "error", err)
			}
		}()
		s.jsonResponse(w, http.StatusAccepted, resp)
		return
	}

	s.jsonResponse(w, http.StatusOK, resp)
}

// handleRunStatus returns the current state of a single run.
func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(r.PathValue("run_id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "INVALID_RUN_ID", "run id must be a UUID")
		return
	}

	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "STORAGE_ERROR", err.Error())
		return
	}
	if run == nil {
		s.errorResponse(w, http.StatusNotFound, "RUN_NOT_FOUND", "no run with that id")
		return
	}

	s.jsonResponse(w, http.StatusOK, runStatus(run))
}

// handleLatestRun returns the most recently created run for a project.
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")

	run, err := s.runs.GetLatestRunForProject(r.Context(), projectID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "STORAGE_ERROR", err.Error())
		return
	}
	if run == nil {
		s.errorResponse(w, http.StatusNotFound, "RUN_NOT_FOUND", "project has no runs")
		return
	}

	s.jsonResponse(w, http.StatusOK, runStatus(run))
}

// handleDecisionModel assembles and returns the decision model for a project.
// An optional run_id query parameter restricts assembly to artifacts stamped
// with that run.
func (s *Server) handleDecisionModel(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	runID := r.URL.Query().Get("run_id")

	model, err := s.assembler.Assemble(r.Context(), projectID, runID)
	if err != nil {
		s.decisionErrorResponse(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, model)
}

// handleEvidenceCoverage reports evidence coverage and the readiness verdict
// for a project without starting a run.
func (s *Server) handleEvidenceCoverage(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")

	rows, err := s.evidence.ListEvidence(r.Context(), projectID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "STORAGE_ERROR", err.Error())
		return
	}

	cov := evidence.ComputeCoverage(rows, time.Now().UTC())
	ready := evidence.EvaluateReadiness(cov)

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"coverage":  cov,
		"readiness": ready,
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
