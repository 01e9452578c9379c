package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nathan/competitor-lens/internal/artifacts"
	"github.com/nathan/competitor-lens/internal/types"
)

// RunStore persists analysis runs. Implementations must treat the
// idempotency key as a hard uniqueness boundary: InsertRun is a
// compare-and-create, never an upsert.
type RunStore interface {
	// InsertRun attempts to create the run. It returns false when a run
	// with the same idempotency key already exists, in which case the
	// caller should load the existing row instead.
	InsertRun(ctx context.Context, run *Run) (inserted bool, err error)

	// UpdateRun persists the run's current status, error fields, output,
	// and metrics.
	UpdateRun(ctx context.Context, run *Run) error

	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)

	// GetRunByKey returns the run for an idempotency key, or (nil, nil)
	// when none exists.
	GetRunByKey(ctx context.Context, key string) (*Run, error)

	// GetLatestRunForProject returns the most recently created run for a
	// project, or (nil, nil) when the project has no runs.
	GetLatestRunForProject(ctx context.Context, projectID string) (*Run, error)

	// ReclaimStaleRun conditionally takes over a queued or running run
	// that has not been updated since the cutoff, leaving it queued with
	// a fresh updated_at. It returns true only when this caller won the
	// reclaim.
	ReclaimStaleRun(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error)
}

// ArtifactStore persists generated artifacts append-only.
type ArtifactStore interface {
	InsertArtifact(ctx context.Context, rec *artifacts.Record) error

	// ListArtifacts returns artifacts of the given type for a project,
	// newest first.
	ListArtifacts(ctx context.Context, projectID string, typ artifacts.Type) ([]artifacts.Record, error)
}

// EvidenceStore reads collected evidence rows for a project.
type EvidenceStore interface {
	ListEvidence(ctx context.Context, projectID string) ([]types.EvidenceSource, error)
}

// ProjectStore reads project inputs.
type ProjectStore interface {
	// GetProjectInputs returns (nil, nil) when the project does not exist.
	GetProjectInputs(ctx context.Context, projectID string) (*types.ProjectInputs, error)
}
