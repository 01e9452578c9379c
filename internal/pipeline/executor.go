package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nathan/competitor-lens/internal/artifacts"
	"github.com/nathan/competitor-lens/internal/evidence"
	"github.com/nathan/competitor-lens/internal/generation"
	"github.com/nathan/competitor-lens/internal/llm"
	"github.com/nathan/competitor-lens/internal/schemas"
	"github.com/nathan/competitor-lens/internal/types"
)

// Executor runs the five pipeline steps for a single run. It persists the
// step log after every mutation so a poller always sees accurate progress,
// and it converts every failure into a classified pipeline error before
// handing the run back to the coordinator.
type Executor struct {
	coord     *Coordinator
	artifacts ArtifactStore
	evidence  EvidenceStore
	projects  ProjectStore
	client    llm.Client
	logger    *slog.Logger
	now       func() time.Time
}

// NewExecutor wires an Executor.
func NewExecutor(coord *Coordinator, arts ArtifactStore, ev EvidenceStore, projects ProjectStore, client llm.Client, logger *slog.Logger) *Executor {
	return &Executor{
		coord:     coord,
		artifacts: arts,
		evidence:  ev,
		projects:  projects,
		client:    client,
		logger:    logger,
		now:       time.Now,
	}
}

// Execute drives a run from queued (or failed, on restart) to a terminal
// status. The returned error is nil on success; on failure the run row has
// already been marked failed with the classified code.
func (e *Executor) Execute(ctx context.Context, run *Run) (err error) {
	defer func() {
		if r := recover(); r != nil {
			perr := NewError(CodeUnhandled, "pipeline panic: %v", r)
			e.logger.Error("pipeline panic", "run_id", run.ID, "panic", r)
			if run.Status == StatusRunning {
				if failErr := e.coord.Fail(ctx, run, perr); failErr != nil {
					e.logger.Error("failed to record panic", "run_id", run.ID, "error", failErr)
				}
			}
			err = perr
		}
	}()

	if err := e.coord.Start(ctx, run); err != nil {
		return err
	}
	run.Metrics.Provider = e.client.Provider()
	run.Metrics.Model = e.client.GetModel(llm.TierAdvanced)

	var (
		inputs   *types.ProjectInputs
		rows     []types.EvidenceSource
		profiles *artifacts.ProfilesPayload
		result   *artifacts.OpportunitiesV3Payload
		output   *Output
	)

	steps := []struct {
		name StepName
		fn   func(context.Context) *Error
	}{
		{StepValidateInputs, func(ctx context.Context) *Error {
			loaded, perr := e.loadInputs(ctx, run.ProjectID)
			if perr != nil {
				return perr
			}
			inputs = loaded
			return nil
		}},
		{StepCollectEvidence, func(ctx context.Context) *Error {
			loaded, perr := e.collectEvidence(ctx, run.ProjectID)
			if perr != nil {
				return perr
			}
			rows = loaded
			return nil
		}},
		{StepCompetitorProfiles, func(ctx context.Context) *Error {
			payload, perr := e.resolveProfiles(ctx, run, inputs, rows)
			if perr != nil {
				return perr
			}
			profiles = payload
			return nil
		}},
		{StepGenerateOpportunities, func(ctx context.Context) *Error {
			payload, perr := e.generateOpportunities(ctx, run, inputs, profiles, rows)
			if perr != nil {
				return perr
			}
			result = payload
			return nil
		}},
		{StepSaveArtifacts, func(ctx context.Context) *Error {
			saved, perr := e.saveArtifacts(ctx, run, result)
			if perr != nil {
				return perr
			}
			output = saved
			return nil
		}},
	}

	for _, step := range steps {
		entry := e.beginStep(ctx, run, step.name)
		if perr := step.fn(ctx); perr != nil {
			e.endStep(ctx, run, entry, perr)
			if failErr := e.coord.Fail(ctx, run, perr); failErr != nil {
				return failErr
			}
			return perr
		}
		e.endStep(ctx, run, entry, nil)
	}

	return e.coord.Succeed(ctx, run, output)
}

// beginStep appends a started entry to the run's step log and persists it.
func (e *Executor) beginStep(ctx context.Context, run *Run, name StepName) *StepEntry {
	run.Metrics.Steps = append(run.Metrics.Steps, StepEntry{
		Name:      name,
		Status:    StepStarted,
		StartedAt: e.now().UTC(),
	})
	entry := &run.Metrics.Steps[len(run.Metrics.Steps)-1]
	if err := e.coord.Persist(ctx, run); err != nil {
		e.logger.Warn("step log persist failed", "run_id", run.ID, "step", name, "error", err)
	}
	e.logger.Info("step started", "run_id", run.ID, "step", name)
	return entry
}

// endStep closes a step entry as done or failed and persists the log.
func (e *Executor) endStep(ctx context.Context, run *Run, entry *StepEntry, perr *Error) {
	now := e.now().UTC()
	entry.FinishedAt = &now
	if perr != nil {
		entry.Status = StepFailed
		entry.Error = perr.Error()
	} else {
		entry.Status = StepDone
	}
	if err := e.coord.Persist(ctx, run); err != nil {
		e.logger.Warn("step log persist failed", "run_id", run.ID, "step", entry.Name, "error", err)
	}
	e.logger.Info("step finished", "run_id", run.ID, "step", entry.Name, "status", entry.Status)
}

func (e *Executor) loadInputs(ctx context.Context, projectID string) (*types.ProjectInputs, *Error) {
	inputs, err := e.projects.GetProjectInputs(ctx, projectID)
	if err != nil {
		return nil, AsError(err)
	}
	if inputs == nil {
		return nil, NewError(CodeNoInputs, "project %s has no saved inputs", projectID)
	}
	if err := ValidateInputs(inputs); err != nil {
		return nil, AsError(err)
	}
	return inputs, nil
}

// collectEvidence loads persisted evidence rows and applies the readiness
// gate. Evidence collection itself happens out of band; this step only
// verifies enough of it exists to ground generation.
func (e *Executor) collectEvidence(ctx context.Context, projectID string) ([]types.EvidenceSource, *Error) {
	rows, err := e.evidence.ListEvidence(ctx, projectID)
	if err != nil {
		return nil, AsError(err)
	}
	cov := evidence.ComputeCoverage(rows, e.now())
	ready := evidence.EvaluateReadiness(cov)
	if !ready.IsReady {
		// No rows at all is an existence failure; rows that miss the
		// thresholds are a coverage failure.
		code := CodeInsufficientEvidenceCoverage
		if cov.TotalCitations == 0 {
			code = CodeInsufficientEvidence
		}
		return nil, NewError(code, "evidence gate rejected project %s", projectID).
			WithDetail(strings.Join(ready.Reasons, "; "))
	}
	e.logger.Info("evidence gate passed",
		"project_id", projectID,
		"rows", cov.TotalCitations,
		"types", len(cov.SourceTypes),
		"recency", cov.RecencyLabel)
	return rows, nil
}

// resolveProfiles reuses the newest stored profiles artifact when every
// snapshot in it still validates, and regenerates otherwise.
func (e *Executor) resolveProfiles(ctx context.Context, run *Run, inputs *types.ProjectInputs, rows []types.EvidenceSource) (*artifacts.ProfilesPayload, *Error) {
	if reused := e.reusableProfiles(ctx, run, inputs); reused != nil {
		e.logger.Info("profiles reused", "run_id", run.ID, "profiles", len(reused.Profiles))
		return reused, nil
	}

	payload, usage, err := generation.GenerateCompetitorProfiles(ctx, e.client, e.logger, *inputs, rows, e.now())
	run.Metrics.Tokens.Add(usage)
	if err != nil {
		var vfe *generation.ValidationFailedError
		if errors.As(err, &vfe) {
			return nil, NewError(CodeSnapshotValidationFailed,
				"competitor profile output failed validation after repair").
				WithDetail(vfe.Error()).WithCause(err)
		}
		return nil, NewError(CodeUnhandled, "competitor profile generation failed").
			WithDetail(err.Error()).WithCause(err)
	}

	payload.RunID = run.ID.String()
	payload.GeneratedAt = e.now().UTC().Format(time.RFC3339)
	if perr := e.persistArtifact(ctx, run, artifacts.TypeProfiles, payload); perr != nil {
		return nil, perr
	}
	return payload, nil
}

// reusableProfiles returns the newest stored profiles payload when it covers
// every competitor and each snapshot validates, or nil when regeneration is
// needed. Store and decode errors just disable reuse.
func (e *Executor) reusableProfiles(ctx context.Context, run *Run, inputs *types.ProjectInputs) *artifacts.ProfilesPayload {
	records, err := e.artifacts.ListArtifacts(ctx, run.ProjectID, artifacts.TypeProfiles)
	if err != nil || len(records) == 0 {
		return nil
	}
	payload, err := artifacts.DecodeProfiles(records[0])
	if err != nil {
		e.logger.Warn("stored profiles undecodable, regenerating", "run_id", run.ID, "error", err)
		return nil
	}
	if len(payload.Profiles) < len(inputs.Competitors) {
		return nil
	}
	for _, snap := range payload.Profiles {
		doc, err := json.Marshal(snap)
		if err != nil {
			return nil
		}
		if err := schemas.Validate(schemas.ProfileSnapshot, doc); err != nil {
			e.logger.Info("stored profiles invalid, regenerating",
				"run_id", run.ID, "competitor", snap.Name)
			return nil
		}
	}
	return payload
}

func (e *Executor) generateOpportunities(ctx context.Context, run *Run, inputs *types.ProjectInputs, profiles *artifacts.ProfilesPayload, rows []types.EvidenceSource) (*artifacts.OpportunitiesV3Payload, *Error) {
	payload, usage, err := generation.SynthesizeOpportunities(ctx, e.client, e.logger, *inputs, profiles, rows, e.now())
	run.Metrics.Tokens.Add(usage)
	if err != nil {
		var vfe *generation.ValidationFailedError
		if errors.As(err, &vfe) {
			return nil, NewError(CodeValidationFailed,
				"opportunity output failed validation after repair").
				WithDetail(vfe.Error()).WithCause(err)
		}
		return nil, NewError(CodeOpportunityGenerationFailure, "opportunity synthesis failed").
			WithDetail(err.Error()).WithCause(err)
	}
	return payload, nil
}

// saveArtifacts persists the final opportunities artifact and builds the run
// output. A persistence failure here is a completion error: generation
// succeeded but the run cannot honor its contract.
func (e *Executor) saveArtifacts(ctx context.Context, run *Run, payload *artifacts.OpportunitiesV3Payload) (*Output, *Error) {
	payload.RunID = run.ID.String()
	rec, perr := e.insertArtifact(ctx, run, artifacts.TypeOpportunitiesV3, payload, CodeCompletion)
	if perr != nil {
		return nil, perr
	}
	return &Output{
		ArtifactID:       rec.ID.String(),
		ArtifactType:     string(artifacts.TypeOpportunitiesV3),
		OpportunityCount: len(payload.Opportunities),
		Summary:          payload.Summary,
	}, nil
}

func (e *Executor) persistArtifact(ctx context.Context, run *Run, typ artifacts.Type, payload any) *Error {
	_, perr := e.insertArtifact(ctx, run, typ, payload, CodeUnhandled)
	return perr
}

func (e *Executor) insertArtifact(ctx context.Context, run *Run, typ artifacts.Type, payload any, failCode Code) (*artifacts.Record, *Error) {
	content, err := json.Marshal(payload)
	if err != nil {
		return nil, NewError(failCode, "failed to encode %s artifact", typ).WithCause(err)
	}
	rec := &artifacts.Record{
		ID:        uuid.New(),
		ProjectID: run.ProjectID,
		Type:      typ,
		Content:   content,
		CreatedAt: e.now().UTC(),
	}
	if err := e.artifacts.InsertArtifact(ctx, rec); err != nil {
		return nil, NewError(failCode, "failed to persist %s artifact", typ).WithCause(err)
	}
	e.logger.Info("artifact saved", "run_id", run.ID, "artifact_id", rec.ID, "type", typ)
	return rec, nil
}
