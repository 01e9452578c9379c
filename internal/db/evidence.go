package db

import (
	"context"
	"fmt"

	"github.com/nathan/competitor-lens/internal/types"
)

// ListEvidence returns every evidence row for a project, newest extraction
// first. Evidence rows are written by the external collector; this side only
// reads them.
func (db *DB) ListEvidence(ctx context.Context, projectID string) ([]types.EvidenceSource, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT url, source_type, extracted_text, extracted_at, source_confidence, domain
		 FROM evidence_sources
		 WHERE project_id = $1
		 ORDER BY extracted_at DESC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}
	defer rows.Close()

	var out []types.EvidenceSource
	for rows.Next() {
		var row types.EvidenceSource
		if err := rows.Scan(&row.URL, &row.SourceType, &row.ExtractedText,
			&row.ExtractedAt, &row.SourceConfidence, &row.Domain); err != nil {
			return nil, fmt.Errorf("failed to scan evidence row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read evidence rows: %w", err)
	}
	return out, nil
}
