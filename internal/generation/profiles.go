package generation

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nathan/competitor-lens/internal/artifacts"
	"github.com/nathan/competitor-lens/internal/citations"
	"github.com/nathan/competitor-lens/internal/llm"
	"github.com/nathan/competitor-lens/internal/prompts"
	"github.com/nathan/competitor-lens/internal/schemas"
	"github.com/nathan/competitor-lens/internal/types"
)

// rawSnapshot mirrors the profile schema with citations left untyped; they go
// through the normalizer before anything trusts them.
type rawSnapshot struct {
	Name         string   `json:"name"`
	Positioning  string   `json:"positioning"`
	Strengths    []string `json:"strengths"`
	Weaknesses   []string `json:"weaknesses"`
	PricingNotes string   `json:"pricingNotes"`
	RecentMoves  []string `json:"recentMoves"`
	Citations    any      `json:"citations"`
}

// BuildProfileMessages assembles the prompt for one competitor snapshot.
func BuildProfileMessages(project types.ProjectInputs, competitor types.CompetitorInput, rows []types.EvidenceSource) []llm.Message {
	template := prompts.MustGet("profiles.json", "competitor-snapshot")
	content := prompts.Format(template, map[string]string{
		"CompetitorName":     competitor.Name,
		"ProjectName":        project.Name,
		"ProjectPositioning": project.Positioning,
		"Evidence":           FormatEvidence(rows),
	})
	return []llm.Message{
		{Role: llm.RoleSystem, Content: prompts.MustGet("profiles.json", "system")},
		{Role: llm.RoleUser, Content: content},
	}
}

// GenerateCompetitorProfiles runs the generation+repair loop once per
// competitor and assembles a profiles artifact payload. Competitors are
// processed sequentially; the first failure aborts the remainder.
func GenerateCompetitorProfiles(ctx context.Context, client llm.Client, logger *slog.Logger, project types.ProjectInputs, rows []types.EvidenceSource, now time.Time) (*artifacts.ProfilesPayload, llm.Usage, error) {
	payload := &artifacts.ProfilesPayload{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Profiles:    make([]types.CompetitorSnapshot, 0, len(project.Competitors)),
	}
	var usage llm.Usage

	for _, competitor := range project.Competitors {
		logger.Info("generating competitor profile", "competitor", competitor.Name)

		messages := BuildProfileMessages(project, competitor, EvidenceForCompetitor(rows, competitor))
		result, err := GenerateValidated(ctx, client, logger, messages, schemas.ProfileSnapshot, llm.TierStandard, 0)
		if result != nil {
			usage.Add(result.Usage)
		}
		if err != nil {
			return nil, usage, err
		}

		var raw rawSnapshot
		if err := json.Unmarshal(result.Raw, &raw); err != nil {
			// Schema validation passed, so this should not happen.
			return nil, usage, &APICallError{Message: "failed to decode validated snapshot", Cause: err}
		}

		snapshot := types.CompetitorSnapshot{
			Name:         raw.Name,
			Positioning:  raw.Positioning,
			Strengths:    raw.Strengths,
			Weaknesses:   raw.Weaknesses,
			PricingNotes: raw.PricingNotes,
			RecentMoves:  raw.RecentMoves,
			Citations:    citations.Normalize(raw.Citations),
		}
		if snapshot.Name == "" {
			snapshot.Name = competitor.Name
		}
		payload.Profiles = append(payload.Profiles, snapshot)
	}

	return payload, usage, nil
}
