package artifacts

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nathan/competitor-lens/internal/citations"
	"github.com/nathan/competitor-lens/internal/scoring"
	"github.com/nathan/competitor-lens/internal/types"
)

// DecodeError reports a payload that could not be decoded as its tagged type.
type DecodeError struct {
	Type  Type
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s artifact payload: %v", e.Type, e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// DecodeProfiles decodes a profiles artifact payload.
func DecodeProfiles(r Record) (*ProfilesPayload, error) {
	if r.Type != TypeProfiles {
		return nil, &DecodeError{Type: r.Type, Cause: fmt.Errorf("not a profiles artifact")}
	}
	var p ProfilesPayload
	if err := json.Unmarshal(r.Content, &p); err != nil {
		return nil, &DecodeError{Type: r.Type, Cause: err}
	}
	return &p, nil
}

// DecodeOpportunitiesV3 decodes a current-schema opportunity artifact.
func DecodeOpportunitiesV3(r Record) (*OpportunitiesV3Payload, error) {
	if r.Type != TypeOpportunitiesV3 {
		return nil, &DecodeError{Type: r.Type, Cause: fmt.Errorf("not an opportunities_v3 artifact")}
	}
	var p OpportunitiesV3Payload
	if err := json.Unmarshal(r.Content, &p); err != nil {
		return nil, &DecodeError{Type: r.Type, Cause: err}
	}
	return &p, nil
}

// DecodeOpportunitiesV2 decodes a historical-schema opportunity artifact.
func DecodeOpportunitiesV2(r Record) (*OpportunitiesV2Payload, error) {
	if r.Type != TypeOpportunitiesV2 {
		return nil, &DecodeError{Type: r.Type, Cause: fmt.Errorf("not an opportunities_v2 artifact")}
	}
	var p OpportunitiesV2Payload
	if err := json.Unmarshal(r.Content, &p); err != nil {
		return nil, &DecodeError{Type: r.Type, Cause: err}
	}
	return &p, nil
}

// DecodeScoringMatrix decodes a scoring_matrix artifact payload.
func DecodeScoringMatrix(r Record) (*ScoringMatrixPayload, error) {
	if r.Type != TypeScoringMatrix {
		return nil, &DecodeError{Type: r.Type, Cause: fmt.Errorf("not a scoring_matrix artifact")}
	}
	var p ScoringMatrixPayload
	if err := json.Unmarshal(r.Content, &p); err != nil {
		return nil, &DecodeError{Type: r.Type, Cause: err}
	}
	return &p, nil
}

// DecodeStrategicBets decodes a strategic_bets artifact payload.
func DecodeStrategicBets(r Record) (*StrategicBetsPayload, error) {
	if r.Type != TypeStrategicBets {
		return nil, &DecodeError{Type: r.Type, Cause: fmt.Errorf("not a strategic_bets artifact")}
	}
	var p StrategicBetsPayload
	if err := json.Unmarshal(r.Content, &p); err != nil {
		return nil, &DecodeError{Type: r.Type, Cause: err}
	}
	return &p, nil
}

// NormalizeV3 brings a v3 payload's opportunities onto the canonical shape:
// citations re-normalized, ids synthesized when absent, scores recomputed.
// now drives recency confidence.
func NormalizeV3(p *OpportunitiesV3Payload, projectID string, now time.Time) []types.Opportunity {
	out := make([]types.Opportunity, 0, len(p.Opportunities))
	for _, opp := range p.Opportunities {
		opp.Citations = renormalize(opp.Citations)
		if opp.ID == "" {
			opp.ID = scoring.OpportunityID(opp.Title, projectID, opp.LinkedJobID)
		}
		scoring.Rescore(&opp, now)
		out = append(out, opp)
	}
	return out
}

// NormalizeV2 upgrades a historical v2 payload to the canonical shape with
// explicit defaults: synthesized ids, normalized sources, recomputed scores
// with default weights, experiments folded into hypothesis-only entries.
func NormalizeV2(p *OpportunitiesV2Payload, projectID string, now time.Time) []types.Opportunity {
	out := make([]types.Opportunity, 0, len(p.Opportunities))
	for _, old := range p.Opportunities {
		rationale := old.Rationale
		if rationale == "" {
			rationale = old.WhyNow
		}

		opp := types.Opportunity{
			ID:        scoring.OpportunityID(old.Title, projectID, ""),
			Title:     old.Title,
			Rationale: rationale,
			Citations: citations.Normalize(old.Sources),
			Scoring: types.Scoring{
				Breakdown: old.Scores,
			},
			Tradeoffs: old.Tradeoffs,
		}
		for _, ex := range old.Experiments {
			opp.Experiments = append(opp.Experiments, types.Experiment{Hypothesis: ex, Method: "unspecified"})
		}
		scoring.Rescore(&opp, now)
		out = append(out, opp)
	}
	return out
}

// renormalize runs already-typed citations back through the normalizer so
// historical rows with sloppy URLs or types are cleaned on read.
func renormalize(cites []types.Citation) []types.Citation {
	if len(cites) == 0 {
		return nil
	}
	items := make([]any, 0, len(cites))
	for _, c := range cites {
		items = append(items, c)
	}
	return citations.Normalize(items)
}
