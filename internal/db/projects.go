package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nathan/competitor-lens/internal/types"
)

// GetProjectInputs loads a project's current input snapshot with its
// competitor list, or (nil, nil) when the project does not exist.
func (db *DB) GetProjectInputs(ctx context.Context, projectID string) (*types.ProjectInputs, error) {
	var p types.ProjectInputs
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, positioning, target_market, input_version
		 FROM projects WHERE id = $1`,
		projectID,
	).Scan(&p.ID, &p.Name, &p.Positioning, &p.TargetMarket, &p.InputVersion)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, name, website
		 FROM competitors
		 WHERE project_id = $1
		 ORDER BY created_at`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list competitors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c types.CompetitorInput
		if err := rows.Scan(&c.ID, &c.Name, &c.Website); err != nil {
			return nil, fmt.Errorf("failed to scan competitor: %w", err)
		}
		p.Competitors = append(p.Competitors, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read competitors: %w", err)
	}

	return &p, nil
}
