package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nathan/competitor-lens/internal/artifacts"
	"github.com/nathan/competitor-lens/internal/citations"
	"github.com/nathan/competitor-lens/internal/llm"
	"github.com/nathan/competitor-lens/internal/prompts"
	"github.com/nathan/competitor-lens/internal/schemas"
	"github.com/nathan/competitor-lens/internal/scoring"
	"github.com/nathan/competitor-lens/internal/types"
)

// rawOpportunity mirrors the v3 opportunity schema with citations untyped.
type rawOpportunity struct {
	Title     string `json:"title"`
	Rationale string `json:"rationale"`
	Citations any    `json:"citations"`
	Scoring   struct {
		Breakdown map[string]float64 `json:"breakdown"`
		Weights   map[string]float64 `json:"weights"`
		Total     float64            `json:"total"`
	} `json:"scoring"`
	Tradeoffs   []string           `json:"tradeoffs"`
	Experiments []types.Experiment `json:"experiments"`
	LinkedJobID string             `json:"linkedJobId"`
}

type rawOpportunities struct {
	Summary       string           `json:"summary"`
	Opportunities []rawOpportunity `json:"opportunities"`
}

// BuildOpportunityMessages assembles the single batch synthesis prompt from
// project inputs, competitor profiles, and evidence.
func BuildOpportunityMessages(project types.ProjectInputs, profiles *artifacts.ProfilesPayload, rows []types.EvidenceSource) ([]llm.Message, error) {
	profilesJSON, err := json.MarshalIndent(profiles.Profiles, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode competitor profiles: %w", err)
	}

	template := prompts.MustGet("opportunities.json", "synthesize")
	content := prompts.Format(template, map[string]string{
		"ProjectName":        project.Name,
		"ProjectPositioning": project.Positioning,
		"TargetMarket":       project.TargetMarket,
		"Profiles":           string(profilesJSON),
		"Evidence":           FormatEvidence(rows),
	})
	return []llm.Message{
		{Role: llm.RoleSystem, Content: prompts.MustGet("opportunities.json", "system")},
		{Role: llm.RoleUser, Content: content},
	}, nil
}

// SynthesizeOpportunities runs one generation+repair call producing the batch
// opportunity payload, then normalizes citations and recomputes every score
// server-side. Opportunities whose citations all fail normalization are
// dropped; an empty final set is an error.
func SynthesizeOpportunities(ctx context.Context, client llm.Client, logger *slog.Logger, project types.ProjectInputs, profiles *artifacts.ProfilesPayload, rows []types.EvidenceSource, now time.Time) (*artifacts.OpportunitiesV3Payload, llm.Usage, error) {
	var usage llm.Usage

	messages, err := BuildOpportunityMessages(project, profiles, rows)
	if err != nil {
		return nil, usage, err
	}

	result, err := GenerateValidated(ctx, client, logger, messages, schemas.OpportunitiesV3, llm.TierAdvanced, 0)
	if result != nil {
		usage.Add(result.Usage)
	}
	if err != nil {
		return nil, usage, err
	}

	var raw rawOpportunities
	if err := json.Unmarshal(result.Raw, &raw); err != nil {
		return nil, usage, &APICallError{Message: "failed to decode validated opportunities", Cause: err}
	}

	payload := &artifacts.OpportunitiesV3Payload{
		Summary:       strings.TrimSpace(raw.Summary),
		Opportunities: make([]types.Opportunity, 0, len(raw.Opportunities)),
	}
	for _, r := range raw.Opportunities {
		cites := citations.Normalize(r.Citations)
		if len(cites) == 0 {
			logger.Warn("dropping opportunity with no usable citations", "title", r.Title)
			continue
		}

		opp := types.Opportunity{
			ID:        scoring.OpportunityID(r.Title, project.ID, r.LinkedJobID),
			Title:     strings.TrimSpace(r.Title),
			Rationale: strings.TrimSpace(r.Rationale),
			Citations: cites,
			Scoring: types.Scoring{
				Breakdown: r.Scoring.Breakdown,
				Weights:   r.Scoring.Weights,
			},
			Tradeoffs:   r.Tradeoffs,
			Experiments: r.Experiments,
			LinkedJobID: r.LinkedJobID,
		}
		scoring.Rescore(&opp, now)
		payload.Opportunities = append(payload.Opportunities, opp)
	}

	if len(payload.Opportunities) == 0 {
		return nil, usage, fmt.Errorf("generator produced no opportunities with usable citations")
	}
	return payload, usage, nil
}
