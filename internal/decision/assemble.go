// Package decision assembles the canonical decision model from persisted
// artifacts. It reads whatever artifact generations a project has and folds
// them into one version-independent shape, preferring the newest v3
// opportunity artifact and falling back to normalized v2.
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nathan/competitor-lens/internal/artifacts"
	"github.com/nathan/competitor-lens/internal/citations"
	"github.com/nathan/competitor-lens/internal/evidence"
	"github.com/nathan/competitor-lens/internal/pipeline"
	"github.com/nathan/competitor-lens/internal/schemas"
	"github.com/nathan/competitor-lens/internal/types"
)

// Artifact schema versions recorded in decision model metadata.
const (
	VersionV3 = "v3"
	VersionV2 = "v2"
)

// NotFoundError indicates no opportunity artifact exists to assemble from.
type NotFoundError struct {
	ProjectID string
	RunID     string
}

func (e *NotFoundError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("no opportunity artifact for project %s and run %s", e.ProjectID, e.RunID)
	}
	return fmt.Sprintf("no opportunity artifact for project %s", e.ProjectID)
}

// Assembler builds decision models from the artifact store.
type Assembler struct {
	artifacts pipeline.ArtifactStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewAssembler wires an Assembler.
func NewAssembler(arts pipeline.ArtifactStore, logger *slog.Logger) *Assembler {
	return &Assembler{
		artifacts: arts,
		logger:    logger,
		now:       time.Now,
	}
}

// Assemble builds the decision model for a project. When runID is non-empty,
// only artifacts stamped with that run are considered; otherwise the newest
// v3 artifact wins, with v2 as a fallback even when a v2 artifact is newer
// than every v3 one. The assembled model is validated before being returned;
// a model that fails validation is an assembly bug, not caller error.
func (a *Assembler) Assemble(ctx context.Context, projectID, runID string) (*types.DecisionModel, error) {
	var (
		v3Records, v2Records       []artifacts.Record
		profileRecords             []artifacts.Record
		matrixRecords, jtbdRecords []artifacts.Record
		betRecords                 []artifacts.Record
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		v3Records, err = a.artifacts.ListArtifacts(gctx, projectID, artifacts.TypeOpportunitiesV3)
		return err
	})
	g.Go(func() (err error) {
		v2Records, err = a.artifacts.ListArtifacts(gctx, projectID, artifacts.TypeOpportunitiesV2)
		return err
	})
	g.Go(func() (err error) {
		profileRecords, err = a.artifacts.ListArtifacts(gctx, projectID, artifacts.TypeProfiles)
		return err
	})
	g.Go(func() (err error) {
		matrixRecords, err = a.artifacts.ListArtifacts(gctx, projectID, artifacts.TypeScoringMatrix)
		return err
	})
	g.Go(func() (err error) {
		jtbdRecords, err = a.artifacts.ListArtifacts(gctx, projectID, artifacts.TypeJTBD)
		return err
	})
	g.Go(func() (err error) {
		betRecords, err = a.artifacts.ListArtifacts(gctx, projectID, artifacts.TypeStrategicBets)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load artifacts for project %s: %w", projectID, err)
	}

	now := a.now().UTC()
	model := &types.DecisionModel{
		ProjectID:   projectID,
		GeneratedAt: now.Format(time.RFC3339),
		Metadata:    types.DecisionMetadata{},
	}

	if err := a.fillOpportunities(model, v3Records, v2Records, projectID, runID, now); err != nil {
		return nil, err
	}
	a.fillCompetitors(model, profileRecords, runID)
	fillScorecard(model, matrixRecords)
	pruneDanglingJobLinks(model, jtbdRecords)
	model.Evidence = summarizeEvidence(model, betCitations(betRecords), now)

	doc, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("failed to encode decision model: %w", err)
	}
	if err := schemas.Validate(schemas.DecisionModel, doc); err != nil {
		return nil, fmt.Errorf("assembled decision model is invalid: %w", err)
	}

	a.logger.Info("decision model assembled",
		"project_id", projectID,
		"run_id", model.RunID,
		"artifact_version", model.Metadata.ArtifactVersion,
		"opportunities", len(model.Opportunities))
	return model, nil
}

// fillOpportunities selects the opportunity artifact and normalizes its
// payload onto the model.
func (a *Assembler) fillOpportunities(model *types.DecisionModel, v3Records, v2Records []artifacts.Record, projectID, runID string, now time.Time) error {
	for _, rec := range v3Records {
		payload, err := artifacts.DecodeOpportunitiesV3(rec)
		if err != nil {
			a.logger.Warn("skipping undecodable artifact", "artifact_id", rec.ID, "error", err)
			continue
		}
		if runID != "" && payload.RunID != runID {
			continue
		}
		model.RunID = payload.RunID
		model.Summary = payload.Summary
		model.Opportunities = withCitations(artifacts.NormalizeV3(payload, projectID, now))
		model.Metadata.ArtifactVersion = VersionV3
		return nil
	}

	for _, rec := range v2Records {
		payload, err := artifacts.DecodeOpportunitiesV2(rec)
		if err != nil {
			a.logger.Warn("skipping undecodable artifact", "artifact_id", rec.ID, "error", err)
			continue
		}
		if runID != "" && payload.RunID != runID {
			continue
		}
		model.RunID = payload.RunID
		model.Summary = payload.Summary
		model.Opportunities = withCitations(artifacts.NormalizeV2(payload, projectID, now))
		model.Metadata.ArtifactVersion = VersionV2
		return nil
	}

	return &NotFoundError{ProjectID: projectID, RunID: runID}
}

// withCitations drops opportunities whose citations all failed normalization.
// Historical v2 rows sometimes carry nothing usable.
func withCitations(opps []types.Opportunity) []types.Opportunity {
	out := make([]types.Opportunity, 0, len(opps))
	for _, opp := range opps {
		if len(opp.Citations) == 0 {
			continue
		}
		out = append(out, opp)
	}
	return out
}

// fillCompetitors attaches the newest decodable profiles payload, preferring
// one stamped with the selected run.
func (a *Assembler) fillCompetitors(model *types.DecisionModel, records []artifacts.Record, runID string) {
	var fallback []types.CompetitorSnapshot
	for _, rec := range records {
		payload, err := artifacts.DecodeProfiles(rec)
		if err != nil {
			a.logger.Warn("skipping undecodable artifact", "artifact_id", rec.ID, "error", err)
			continue
		}
		if runID != "" && payload.RunID == runID {
			model.Competitors = payload.Profiles
			return
		}
		if fallback == nil {
			fallback = payload.Profiles
		}
	}
	model.Competitors = fallback
}

func fillScorecard(model *types.DecisionModel, records []artifacts.Record) {
	for _, rec := range records {
		payload, err := artifacts.DecodeScoringMatrix(rec)
		if err != nil {
			continue
		}
		model.Scorecard = &types.Scorecard{
			Dimensions: payload.Dimensions,
			Rows:       payload.Rows,
		}
		return
	}
}

// pruneDanglingJobLinks clears linkedJobId references that no longer resolve
// to a job in the newest jtbd artifact. With no jtbd artifact at all, links
// are left alone.
func pruneDanglingJobLinks(model *types.DecisionModel, records []artifacts.Record) {
	if len(records) == 0 {
		return
	}
	var payload artifacts.JTBDPayload
	if err := json.Unmarshal(records[0].Content, &payload); err != nil {
		return
	}
	known := make(map[string]bool, len(payload.Jobs))
	for _, job := range payload.Jobs {
		known[job.ID] = true
	}
	for i := range model.Opportunities {
		if id := model.Opportunities[i].LinkedJobID; id != "" && !known[id] {
			model.Opportunities[i].LinkedJobID = ""
		}
	}
}

// betCitations collects normalized citations from the newest decodable
// strategic bets artifact. Bets only contribute to the evidence summary; they
// are not part of the model surface.
func betCitations(records []artifacts.Record) []types.Citation {
	for _, rec := range records {
		payload, err := artifacts.DecodeStrategicBets(rec)
		if err != nil {
			continue
		}
		var out []types.Citation
		for _, bet := range payload.Bets {
			out = append(out, citations.Normalize(bet.Citations)...)
		}
		return out
	}
	return nil
}

// summarizeEvidence folds the union of every citation on the model, plus any
// strategic bet citations, into a coverage summary.
func summarizeEvidence(model *types.DecisionModel, extra []types.Citation, now time.Time) *types.EvidenceSummary {
	var union []types.Citation
	for _, opp := range model.Opportunities {
		union = append(union, opp.Citations...)
	}
	for _, comp := range model.Competitors {
		union = append(union, comp.Citations...)
	}
	union = append(union, extra...)

	cov := evidence.CoverageFromCitations(union, now)

	counts := make(map[string]int)
	seen := make(map[string]bool)
	for _, c := range union {
		if c.URL == "" || seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		t := c.EvidenceType
		if t == "" {
			t = types.EvidenceOther
		}
		counts[t]++
	}

	return &types.EvidenceSummary{
		TotalCitations:     cov.TotalCitations,
		CountsByType:       counts,
		RecencyLabel:       cov.RecencyLabel,
		CoverageConfidence: cov.CoverageScore,
	}
}
