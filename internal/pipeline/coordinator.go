package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nathan/competitor-lens/internal/types"
)

// DefaultStaleThreshold is how long a running run may go without an update
// before another caller is allowed to reclaim it.
const DefaultStaleThreshold = 30 * time.Minute

// Coordinator owns run creation, idempotent reuse, and the status state
// machine. It never executes steps itself; the Executor does that.
type Coordinator struct {
	runs           RunStore
	projects       ProjectStore
	logger         *slog.Logger
	staleThreshold time.Duration
	now            func() time.Time
}

// NewCoordinator builds a Coordinator. A zero staleThreshold selects
// DefaultStaleThreshold.
func NewCoordinator(runs RunStore, projects ProjectStore, logger *slog.Logger, staleThreshold time.Duration) *Coordinator {
	if staleThreshold <= 0 {
		staleThreshold = DefaultStaleThreshold
	}
	return &Coordinator{
		runs:           runs,
		projects:       projects,
		logger:         logger,
		staleThreshold: staleThreshold,
		now:            time.Now,
	}
}

// CreateOrReuseRun resolves the run for a project's current input snapshot.
// It returns the run and whether the caller should execute it: a succeeded
// run and a live running run are reused as-is, while queued, failed, and
// stale-running runs are handed back for (re-)execution.
func (c *Coordinator) CreateOrReuseRun(ctx context.Context, projectID string) (*Run, bool, error) {
	inputs, err := c.projects.GetProjectInputs(ctx, projectID)
	if err != nil {
		return nil, false, AsError(err)
	}
	if inputs == nil {
		return nil, false, NewError(CodeNoInputs, "project %s has no saved inputs", projectID)
	}
	if err := ValidateInputs(inputs); err != nil {
		return nil, false, err
	}

	key := IdempotencyKey(projectID, inputs.InputVersion, Version)
	now := c.now().UTC()
	run := &Run{
		ID:              uuid.New(),
		ProjectID:       projectID,
		InputVersion:    inputs.InputVersion,
		PipelineVersion: Version,
		IdempotencyKey:  key,
		Status:          StatusQueued,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	inserted, err := c.runs.InsertRun(ctx, run)
	if err != nil {
		return nil, false, AsError(err)
	}
	if inserted {
		c.logger.Info("run created",
			"run_id", run.ID,
			"project_id", projectID,
			"input_version", inputs.InputVersion,
			"idempotency_key", key)
		return run, true, nil
	}

	existing, err := c.runs.GetRunByKey(ctx, key)
	if err != nil {
		return nil, false, AsError(err)
	}
	if existing == nil {
		return nil, false, NewError(CodeUnhandled, "run insert lost race but key %s not found", key)
	}

	switch existing.Status {
	case StatusSucceeded:
		c.logger.Info("run reused", "run_id", existing.ID, "status", existing.Status)
		return existing, false, nil
	case StatusFailed:
		return existing, true, nil
	case StatusQueued, StatusRunning:
		// The run is in flight with whoever created or started it.
		// Adopting it for execution here would drive the pipeline twice
		// for one key, so only a stale row may change hands, via the
		// single-winner reclaim.
		cutoff := c.now().UTC().Add(-c.staleThreshold)
		reclaimed, err := c.runs.ReclaimStaleRun(ctx, existing.ID, cutoff)
		if err != nil {
			return nil, false, AsError(err)
		}
		if !reclaimed {
			c.logger.Info("run reused", "run_id", existing.ID, "status", existing.Status)
			return existing, false, nil
		}
		c.logger.Warn("stale run reclaimed", "run_id", existing.ID, "cutoff", cutoff)
		existing.Status = StatusQueued
		return existing, true, nil
	default:
		return nil, false, NewError(CodeStatusTransition, "run %s has unknown status %q", existing.ID, existing.Status)
	}
}

// ValidateInputs enforces the minimum project shape a run needs before any
// step executes.
func ValidateInputs(inputs *types.ProjectInputs) error {
	if inputs.Name == "" || inputs.Positioning == "" {
		return NewError(CodeNoInputs, "project %s inputs are incomplete", inputs.ID)
	}
	if len(inputs.Competitors) < 1 {
		return NewError(CodeInsufficientCompetitors, "project %s has no competitors", inputs.ID)
	}
	for _, comp := range inputs.Competitors {
		if comp.Name == "" {
			return NewError(CodeInsufficientCompetitors, "project %s has a competitor with no name", inputs.ID)
		}
	}
	return nil
}

// Start moves a run into running and clears any prior attempt's error,
// output, and step log. Valid from queued or failed only.
func (c *Coordinator) Start(ctx context.Context, run *Run) error {
	if run.Status != StatusQueued && run.Status != StatusFailed {
		return transitionError(run, StatusRunning)
	}
	now := c.now().UTC()
	run.Status = StatusRunning
	run.StartedAt = &now
	run.FinishedAt = nil
	run.ErrorCode = ""
	run.ErrorMessage = ""
	run.ErrorDetail = ""
	run.Output = nil
	run.Metrics = Metrics{}
	run.UpdatedAt = now
	if err := c.runs.UpdateRun(ctx, run); err != nil {
		return AsError(err)
	}
	c.logger.Info("run started", "run_id", run.ID, "project_id", run.ProjectID)
	return nil
}

// Succeed moves a running run to succeeded with its final output.
func (c *Coordinator) Succeed(ctx context.Context, run *Run, output *Output) error {
	if run.Status != StatusRunning {
		return transitionError(run, StatusSucceeded)
	}
	now := c.now().UTC()
	run.Status = StatusSucceeded
	run.FinishedAt = &now
	run.Output = output
	run.UpdatedAt = now
	if err := c.runs.UpdateRun(ctx, run); err != nil {
		return AsError(err)
	}
	c.logger.Info("run succeeded",
		"run_id", run.ID,
		"opportunities", output.OpportunityCount,
		"tokens", run.Metrics.Tokens.TotalTokens)
	return nil
}

// Fail moves a run to failed, recording the structured cause. Unlike Start
// and Succeed it is valid from any status: a failure observed late must still
// land on the row.
func (c *Coordinator) Fail(ctx context.Context, run *Run, cause *Error) error {
	now := c.now().UTC()
	run.Status = StatusFailed
	run.FinishedAt = &now
	run.ErrorCode = string(cause.Code)
	run.ErrorMessage = cause.Message
	run.ErrorDetail = cause.Detail
	run.UpdatedAt = now
	if err := c.runs.UpdateRun(ctx, run); err != nil {
		return AsError(err)
	}
	c.logger.Error("run failed",
		"run_id", run.ID,
		"code", cause.Code,
		"message", cause.Message)
	return nil
}

// Persist writes the run's current state without changing its status. The
// executor calls this after every step mutation so a crash leaves an
// accurate step log behind.
func (c *Coordinator) Persist(ctx context.Context, run *Run) error {
	run.UpdatedAt = c.now().UTC()
	if err := c.runs.UpdateRun(ctx, run); err != nil {
		return AsError(err)
	}
	return nil
}

func transitionError(run *Run, target Status) *Error {
	return NewError(CodeStatusTransition,
		"run %s cannot move from %s to %s", run.ID, run.Status, target)
}
