package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nathan/competitor-lens/internal/decision"
	"github.com/nathan/competitor-lens/internal/pipeline"
)

// errorBody is the JSON shape of all error responses.
type errorBody struct {
	OK    bool        `json:"ok"`
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encoding JSON response", "error", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, code, message string) {
	s.jsonResponse(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// pipelineErrorResponse maps a coordinator/executor error to an HTTP status.
func (s *Server) pipelineErrorResponse(w http.ResponseWriter, err error) {
	perr := pipeline.AsError(err)

	status := http.StatusInternalServerError
	switch perr.Code {
	case pipeline.CodeNoInputs:
		status = http.StatusNotFound
	case pipeline.CodeInsufficientCompetitors,
		pipeline.CodeInsufficientEvidence,
		pipeline.CodeInsufficientEvidenceCoverage:
		status = http.StatusUnprocessableEntity
	case pipeline.CodeStatusTransition:
		status = http.StatusConflict
	}

	s.errorResponse(w, status, string(perr.Code), perr.Message)
}

// decisionErrorResponse maps an assembler error to an HTTP status.
func (s *Server) decisionErrorResponse(w http.ResponseWriter, err error) {
	var notFound *decision.NotFoundError
	if errors.As(err, &notFound) {
		s.errorResponse(w, http.StatusNotFound, "DECISION_MODEL_NOT_FOUND", notFound.Error())
		return
	}
	s.errorResponse(w, http.StatusInternalServerError, "DECISION_ASSEMBLY_ERROR", err.Error())
}
