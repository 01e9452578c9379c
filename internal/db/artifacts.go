package db

import (
	"context"
	"fmt"

	"github.com/nathan/competitor-lens/internal/artifacts"
)

// InsertArtifact appends one artifact row. Artifacts are never updated or
// deleted; history accumulates.
func (db *DB) InsertArtifact(ctx context.Context, rec *artifacts.Record) error {
	if !artifacts.Known(rec.Type) {
		return fmt.Errorf("unknown artifact type: %s", rec.Type)
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO artifacts (id, project_id, type, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.ProjectID, rec.Type, []byte(rec.Content), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert artifact: %w", err)
	}
	return nil
}

// ListArtifacts returns every artifact of one type for a project, newest
// first.
func (db *DB) ListArtifacts(ctx context.Context, projectID string, typ artifacts.Type) ([]artifacts.Record, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, project_id, type, content, created_at
		 FROM artifacts
		 WHERE project_id = $1 AND type = $2
		 ORDER BY created_at DESC`,
		projectID, typ,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var out []artifacts.Record
	for rows.Next() {
		var rec artifacts.Record
		var content []byte
		if err := rows.Scan(&rec.ID, &rec.ProjectID, &rec.Type, &content, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		rec.Content = content
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read artifacts: %w", err)
	}
	return out, nil
}
