package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nathan/competitor-lens/internal/pipeline"
)

const runColumns = `id, project_id, input_version, pipeline_version, idempotency_key,
	status, started_at, finished_at, error_code, error_message, error_detail,
	output, metrics, created_at, updated_at`

// InsertRun creates the run row unless one with the same idempotency key
// already exists. The insert races safely: ON CONFLICT DO NOTHING means the
// loser simply observes inserted=false.
func (db *DB) InsertRun(ctx context.Context, run *pipeline.Run) (bool, error) {
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return false, fmt.Errorf("failed to marshal run metrics: %w", err)
	}

	tag, err := db.pool.Exec(ctx,
		`INSERT INTO analysis_runs
		   (id, project_id, input_version, pipeline_version, idempotency_key, status, metrics, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		run.ID, run.ProjectID, run.InputVersion, run.PipelineVersion,
		run.IdempotencyKey, run.Status, metrics, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert run: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateRun persists the run's mutable state.
func (db *DB) UpdateRun(ctx context.Context, run *pipeline.Run) error {
	metrics, err := json.Marshal(run.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal run metrics: %w", err)
	}
	var output []byte
	if run.Output != nil {
		output, err = json.Marshal(run.Output)
		if err != nil {
			return fmt.Errorf("failed to marshal run output: %w", err)
		}
	}

	_, err = db.pool.Exec(ctx,
		`UPDATE analysis_runs
		 SET status = $1, started_at = $2, finished_at = $3,
		     error_code = $4, error_message = $5, error_detail = $6,
		     output = $7, metrics = $8, updated_at = $9
		 WHERE id = $10`,
		run.Status, run.StartedAt, run.FinishedAt,
		run.ErrorCode, run.ErrorMessage, run.ErrorDetail,
		output, metrics, run.UpdatedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by id, or (nil, nil) when it does not exist.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (*pipeline.Run, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM analysis_runs WHERE id = $1`, id)
	return scanRun(row)
}

// GetRunByKey retrieves a run by idempotency key, or (nil, nil) when none
// exists.
func (db *DB) GetRunByKey(ctx context.Context, key string) (*pipeline.Run, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM analysis_runs WHERE idempotency_key = $1`, key)
	return scanRun(row)
}

// GetLatestRunForProject retrieves the most recently created run for a
// project, or (nil, nil) when the project has no runs.
func (db *DB) GetLatestRunForProject(ctx context.Context, projectID string) (*pipeline.Run, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+runColumns+`
		 FROM analysis_runs
		 WHERE project_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`, projectID)
	return scanRun(row)
}

// ReclaimStaleRun takes over a queued or running run that has not been
// touched since the cutoff, moving it back to queued. The conditional update
// makes the reclaim a single-winner operation under concurrent callers:
// bumping updated_at means losers observe zero rows affected.
func (db *DB) ReclaimStaleRun(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE analysis_runs
		 SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status IN ($3, $4) AND updated_at < $5`,
		pipeline.StatusQueued, id, pipeline.StatusQueued, pipeline.StatusRunning, cutoff,
	)
	if err != nil {
		return false, fmt.Errorf("failed to reclaim run: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanRun(row pgx.Row) (*pipeline.Run, error) {
	var (
		run     pipeline.Run
		output  []byte
		metrics []byte
	)
	err := row.Scan(
		&run.ID, &run.ProjectID, &run.InputVersion, &run.PipelineVersion,
		&run.IdempotencyKey, &run.Status, &run.StartedAt, &run.FinishedAt,
		&run.ErrorCode, &run.ErrorMessage, &run.ErrorDetail,
		&output, &metrics, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	if len(output) > 0 {
		run.Output = &pipeline.Output{}
		if err := json.Unmarshal(output, run.Output); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run output: %w", err)
		}
	}
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &run.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run metrics: %w", err)
		}
	}
	return &run, nil
}
