// Package pipeline owns analysis run identity, idempotency, status
// transitions, and the ordered step execution that produces opportunity
// artifacts.
package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nathan/competitor-lens/internal/llm"
)

// Version is the current pipeline version. It participates in the idempotency
// key, so bumping it allows new runs for inputs that already succeeded under
// older generation logic.
const Version = "2025.3"

// Status is the lifecycle state of a run.
type Status string

// Run statuses.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// StepName identifies one pipeline step.
type StepName string

// Pipeline steps, in execution order.
const (
	StepValidateInputs        StepName = "validate_inputs"
	StepCollectEvidence       StepName = "collect_evidence"
	StepCompetitorProfiles    StepName = "competitor_profiles"
	StepGenerateOpportunities StepName = "generate_opportunities"
	StepSaveArtifacts         StepName = "save_artifacts"
)

// StepOrder is the strict execution order of pipeline steps.
var StepOrder = []StepName{
	StepValidateInputs,
	StepCollectEvidence,
	StepCompetitorProfiles,
	StepGenerateOpportunities,
	StepSaveArtifacts,
}

// StepStatus is the state of one step log entry.
type StepStatus string

// Step statuses.
const (
	StepStarted StepStatus = "started"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
)

// StepEntry is one append-only entry in a run's step log.
type StepEntry struct {
	Name       StepName   `json:"name"`
	Status     StepStatus `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// Metrics carries the step log and generation accounting for a run.
type Metrics struct {
	Steps    []StepEntry `json:"steps"`
	Tokens   llm.Usage   `json:"tokens"`
	Provider string      `json:"provider,omitempty"`
	Model    string      `json:"model,omitempty"`
}

// Output is the structured result recorded on a succeeded run.
type Output struct {
	ArtifactID       string `json:"artifact_id"`
	ArtifactType     string `json:"artifact_type"`
	OpportunityCount int    `json:"opportunity_count"`
	Summary          string `json:"summary,omitempty"`
}

// Run is one execution attempt of the analysis pipeline for a specific input
// snapshot. Rows are created once per idempotency key and never deleted.
type Run struct {
	ID              uuid.UUID  `json:"id"`
	ProjectID       string     `json:"project_id"`
	InputVersion    int        `json:"input_version"`
	PipelineVersion string     `json:"pipeline_version"`
	IdempotencyKey  string     `json:"idempotency_key"`
	Status          Status     `json:"status"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	ErrorCode       string     `json:"error_code,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ErrorDetail     string     `json:"error_detail,omitempty"`
	Output          *Output    `json:"output,omitempty"`
	Metrics         Metrics    `json:"metrics"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IdempotencyKey derives the deterministic run identity for one input
// snapshot under one pipeline version.
func IdempotencyKey(projectID string, inputVersion int, pipelineVersion string) string {
	return fmt.Sprintf("%s:in%d:%s", projectID, inputVersion, pipelineVersion)
}

// Progress summarizes step completion for polling clients.
func (r *Run) Progress() string {
	done := 0
	for _, entry := range r.Metrics.Steps {
		if entry.Status == StepDone {
			done++
		}
	}
	return fmt.Sprintf("%d/%d", done, len(StepOrder))
}

// Terminal reports whether the run has reached a final status.
func (r *Run) Terminal() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}
