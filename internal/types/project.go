package types

import "time"

// CompetitorInput identifies one tracked competitor of a project.
type CompetitorInput struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
}

// ProjectInputs is the snapshot of project inputs an analysis run works from.
// InputVersion increments whenever these inputs change.
type ProjectInputs struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Positioning  string            `json:"positioning,omitempty"`
	TargetMarket string            `json:"targetMarket,omitempty"`
	InputVersion int               `json:"inputVersion"`
	Competitors  []CompetitorInput `json:"competitors"`
}

// EvidenceSource is one persisted, externally collected evidence row.
// The analysis core only ever reads these.
type EvidenceSource struct {
	URL              string    `json:"url"`
	SourceType       string    `json:"source_type"`
	ExtractedText    string    `json:"extracted_text"`
	ExtractedAt      time.Time `json:"extracted_at"`
	SourceConfidence float64   `json:"source_confidence"`
	Domain           string    `json:"domain"`
}
