package types

// CompetitorSnapshot is a generated profile of one competitor, backed by
// citations into the collected evidence.
type CompetitorSnapshot struct {
	Name         string     `json:"name"`
	Positioning  string     `json:"positioning,omitempty"`
	Strengths    []string   `json:"strengths,omitempty"`
	Weaknesses   []string   `json:"weaknesses,omitempty"`
	PricingNotes string     `json:"pricingNotes,omitempty"`
	RecentMoves  []string   `json:"recentMoves,omitempty"`
	Citations    []Citation `json:"citations,omitempty"`
}

// ScorecardRow scores one competitor across the scorecard dimensions.
type ScorecardRow struct {
	Competitor string             `json:"competitor"`
	Scores     map[string]float64 `json:"scores"`
	Notes      string             `json:"notes,omitempty"`
}

// Scorecard is a competitor-by-dimension comparison matrix.
type Scorecard struct {
	Dimensions []string       `json:"dimensions"`
	Rows       []ScorecardRow `json:"rows"`
}

// EvidenceSummary aggregates citation statistics across artifacts.
type EvidenceSummary struct {
	TotalCitations     int            `json:"totalCitations"`
	CountsByType       map[string]int `json:"countsByType"`
	RecencyLabel       string         `json:"recencyLabel"`
	CoverageConfidence float64        `json:"coverageConfidence"`
}

// DecisionModel is the single canonical, version-independent representation
// of a project's analysis results. Downstream consumers read only this shape.
type DecisionModel struct {
	ProjectID     string               `json:"projectId"`
	RunID         string               `json:"runId,omitempty"`
	GeneratedAt   string               `json:"generatedAt"`
	Summary       string               `json:"summary"`
	Opportunities []Opportunity        `json:"opportunities"`
	Competitors   []CompetitorSnapshot `json:"competitors,omitempty"`
	Scorecard     *Scorecard           `json:"scorecard,omitempty"`
	Evidence      *EvidenceSummary     `json:"evidence,omitempty"`
	Metadata      DecisionMetadata     `json:"metadata"`
}

// DecisionMetadata records which artifact schema version the model was built from.
type DecisionMetadata struct {
	ArtifactVersion string `json:"artifactVersion"`
}
