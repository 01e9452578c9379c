// Package artifacts models the append-only artifact store payloads as a
// closed, version-tagged union. Payloads are decoded exactly once at the
// persistence boundary; everything downstream works with typed structs.
package artifacts

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nathan/competitor-lens/internal/types"
)

// Type discriminates artifact payloads.
type Type string

// The closed set of artifact types. Multiple artifacts of the same type may
// exist per project; history is preserved, never overwritten.
const (
	TypeProfiles        Type = "profiles"
	TypeOpportunitiesV2 Type = "opportunities_v2"
	TypeOpportunitiesV3 Type = "opportunities_v3"
	TypeScoringMatrix   Type = "scoring_matrix"
	TypeStrategicBets   Type = "strategic_bets"
	TypeJTBD            Type = "jtbd"
)

// Known reports whether t is a member of the closed artifact-type set.
func Known(t Type) bool {
	switch t {
	case TypeProfiles, TypeOpportunitiesV2, TypeOpportunitiesV3,
		TypeScoringMatrix, TypeStrategicBets, TypeJTBD:
		return true
	}
	return false
}

// Record is one persisted artifact row.
type Record struct {
	ID        uuid.UUID       `json:"id"`
	ProjectID string          `json:"project_id"`
	Type      Type            `json:"type"`
	Content   json.RawMessage `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}

// ProfilesPayload is the content of a profiles artifact.
type ProfilesPayload struct {
	RunID       string                     `json:"runId,omitempty"`
	GeneratedAt string                     `json:"generatedAt,omitempty"`
	Profiles    []types.CompetitorSnapshot `json:"profiles"`
}

// OpportunitiesV3Payload is the current opportunity artifact schema.
type OpportunitiesV3Payload struct {
	RunID         string              `json:"runId,omitempty"`
	Summary       string              `json:"summary"`
	Opportunities []types.Opportunity `json:"opportunities"`
}

// OpportunityV2 is the historical loose opportunity shape: no stable id, a
// free-form sources field, and a flat 0-10 score map.
type OpportunityV2 struct {
	Title       string             `json:"title"`
	WhyNow      string             `json:"why_now,omitempty"`
	Rationale   string             `json:"rationale,omitempty"`
	Sources     any                `json:"sources,omitempty"`
	Scores      map[string]float64 `json:"scores,omitempty"`
	Tradeoffs   []string           `json:"tradeoffs,omitempty"`
	Experiments []string           `json:"experiments,omitempty"`
}

// OpportunitiesV2Payload is the historical opportunity artifact schema.
type OpportunitiesV2Payload struct {
	RunID         string          `json:"run_id,omitempty"`
	Summary       string          `json:"summary,omitempty"`
	Opportunities []OpportunityV2 `json:"opportunities"`
}

// ScoringMatrixPayload compares competitors across fixed dimensions.
type ScoringMatrixPayload struct {
	RunID      string               `json:"runId,omitempty"`
	Dimensions []string             `json:"dimensions"`
	Rows       []types.ScorecardRow `json:"rows"`
}

// StrategicBet is a longer-horizon directional bet with supporting citations.
type StrategicBet struct {
	Title     string `json:"title"`
	Thesis    string `json:"thesis"`
	Horizon   string `json:"horizon,omitempty"`
	Citations any    `json:"citations,omitempty"`
}

// StrategicBetsPayload is the content of a strategic_bets artifact.
type StrategicBetsPayload struct {
	RunID string         `json:"runId,omitempty"`
	Bets  []StrategicBet `json:"bets"`
}

// JTBDJob is one job-to-be-done; opportunities link to these via id.
type JTBDJob struct {
	ID       string `json:"id"`
	Job      string `json:"job"`
	Struggle string `json:"struggle,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
}

// JTBDPayload is the content of a jtbd artifact.
type JTBDPayload struct {
	RunID string    `json:"runId,omitempty"`
	Jobs  []JTBDJob `json:"jobs"`
}
