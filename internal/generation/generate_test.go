package generation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathan/competitor-lens/internal/artifacts"
	"github.com/nathan/competitor-lens/internal/llm"
	"github.com/nathan/competitor-lens/internal/schemas"
	"github.com/nathan/competitor-lens/internal/types"
)

var artifactsPayload = artifacts.ProfilesPayload{
	Profiles: []types.CompetitorSnapshot{{Name: "Acme", Positioning: "SMB billing"}},
}

// fakeClient replays scripted responses and records every request.
type fakeClient struct {
	responses []string
	err       error
	requests  []llm.GenerateRequest
}

func (f *fakeClient) Generate(_ context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	idx := len(f.requests) - 1
	if idx >= len(f.responses) {
		return nil, fmt.Errorf("fake client exhausted after %d responses", len(f.responses))
	}
	return &llm.GenerateResponse{
		Text:     f.responses[idx],
		Provider: "fake",
		Model:    "fake-model",
		Usage:    llm.Usage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150},
	}, nil
}

func (f *fakeClient) GetModel(llm.ModelTier) string { return "fake-model" }
func (f *fakeClient) Provider() string              { return "fake" }
func (f *fakeClient) Close() error                  { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const validOpps = `{
	"summary": "One clear gap.",
	"opportunities": [{
		"title": "Usage-based pricing",
		"rationale": "Everyone sells seats.",
		"citations": ["https://a.com/pricing"],
		"scoring": {"breakdown": {"customer_pain": 8, "competitor_gap": 9}}
	}]
}`

func userMessages() []llm.Message {
	return []llm.Message{{Role: llm.RoleUser, Content: "go"}}
}

func TestGenerateValidated_FirstCallValid(t *testing.T) {
	client := &fakeClient{responses: []string{validOpps}}

	result, err := GenerateValidated(context.Background(), client, testLogger(), userMessages(), schemas.OpportunitiesV3, llm.TierAdvanced, 0)

	require.NoError(t, err)
	assert.Len(t, client.requests, 1)
	assert.False(t, result.Repaired)
	assert.Equal(t, 150, result.Usage.TotalTokens)
	assert.JSONEq(t, validOpps, string(result.Raw))
}

func TestGenerateValidated_RepairSucceeds(t *testing.T) {
	client := &fakeClient{responses: []string{`{"broken": true}`, validOpps}}

	result, err := GenerateValidated(context.Background(), client, testLogger(), userMessages(), schemas.OpportunitiesV3, llm.TierAdvanced, 0)

	require.NoError(t, err)
	require.Len(t, client.requests, 2)
	assert.True(t, result.Repaired)
	// Usage from both calls is retained.
	assert.Equal(t, 300, result.Usage.TotalTokens)

	// The repair prompt carries the raw text, the schema, and the errors.
	repairPrompt := client.requests[1].Messages[0].Content
	assert.Contains(t, repairPrompt, `"broken": true`)
	assert.Contains(t, repairPrompt, "opportunities")
	assert.Contains(t, repairPrompt, "required")
}

func TestGenerateValidated_ExactlyOneRepair(t *testing.T) {
	client := &fakeClient{responses: []string{"not json at all", "still not json", validOpps}}

	result, err := GenerateValidated(context.Background(), client, testLogger(), userMessages(), schemas.OpportunitiesV3, llm.TierAdvanced, 0)

	// The third, valid response must never be requested.
	assert.Len(t, client.requests, 2)

	var vfe *ValidationFailedError
	require.ErrorAs(t, err, &vfe)
	assert.Equal(t, schemas.OpportunitiesV3, vfe.Schema)
	require.NotNil(t, result)
	assert.Equal(t, 300, result.Usage.TotalTokens)
}

func TestGenerateValidated_TransportError(t *testing.T) {
	client := &fakeClient{err: fmt.Errorf("connection refused")}

	_, err := GenerateValidated(context.Background(), client, testLogger(), userMessages(), schemas.OpportunitiesV3, llm.TierAdvanced, 0)

	var apiErr *APICallError
	require.ErrorAs(t, err, &apiErr)
}

func TestGenerateValidated_RequestsJSONMode(t *testing.T) {
	client := &fakeClient{responses: []string{validOpps}}

	_, err := GenerateValidated(context.Background(), client, testLogger(), userMessages(), schemas.OpportunitiesV3, llm.TierAdvanced, 0)

	require.NoError(t, err)
	assert.True(t, client.requests[0].JSONMode)
	assert.Equal(t, llm.TierAdvanced, client.requests[0].Tier)
}

func testProject() types.ProjectInputs {
	return types.ProjectInputs{
		ID:          "proj1",
		Name:        "Zenith",
		Positioning: "Billing for SMBs",
		Competitors: []types.CompetitorInput{
			{ID: "c1", Name: "Acme", Website: "https://acme.com"},
			{ID: "c2", Name: "Globex", Website: "https://globex.io"},
		},
	}
}

func testEvidence() []types.EvidenceSource {
	now := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	return []types.EvidenceSource{
		{URL: "https://acme.com/pricing", SourceType: "pricing", Domain: "acme.com", ExtractedAt: now, ExtractedText: "Seats only."},
		{URL: "https://globex.io/blog", SourceType: "blog", Domain: "globex.io", ExtractedAt: now, ExtractedText: "We launched X."},
	}
}

func TestGenerateCompetitorProfiles_OnePerCompetitor(t *testing.T) {
	snapshot := `{"name": "Acme", "positioning": "SMB billing", "citations": ["https://acme.com/pricing"]}`
	client := &fakeClient{responses: []string{snapshot, snapshot}}

	payload, usage, err := GenerateCompetitorProfiles(context.Background(), client, testLogger(), testProject(), testEvidence(), time.Now())

	require.NoError(t, err)
	assert.Len(t, client.requests, 2)
	require.Len(t, payload.Profiles, 2)
	assert.Equal(t, 300, usage.TotalTokens)
	require.Len(t, payload.Profiles[0].Citations, 1)
	assert.Equal(t, "https://acme.com/pricing", payload.Profiles[0].Citations[0].URL)
}

func TestGenerateCompetitorProfiles_AbortsOnFailure(t *testing.T) {
	client := &fakeClient{responses: []string{"garbage", "more garbage"}}

	_, usage, err := GenerateCompetitorProfiles(context.Background(), client, testLogger(), testProject(), testEvidence(), time.Now())

	var vfe *ValidationFailedError
	require.ErrorAs(t, err, &vfe)
	assert.Equal(t, schemas.ProfileSnapshot, vfe.Schema)
	// First competitor consumed both allowed calls; the second never started.
	assert.Len(t, client.requests, 2)
	assert.Equal(t, 300, usage.TotalTokens)
}

func TestSynthesizeOpportunities_NormalizesAndRescores(t *testing.T) {
	client := &fakeClient{responses: []string{`{
		"summary": "Gap in pricing.",
		"opportunities": [{
			"title": "Usage-based pricing",
			"rationale": "Everyone sells seats.",
			"citations": ["https://acme.com/pricing#plans", "https://acme.com/pricing"],
			"scoring": {"breakdown": {"customer_pain": 8}, "total": 777}
		}]
	}`}}

	payload, _, err := SynthesizeOpportunities(context.Background(), client, testLogger(), testProject(), &artifactsPayload, testEvidence(), time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	require.Len(t, payload.Opportunities, 1)
	opp := payload.Opportunities[0]
	assert.Equal(t, "usage-based-pricing-proj1", opp.ID)
	require.Len(t, opp.Citations, 1, "fragment duplicate collapsed")
	assert.NotEqual(t, 777, opp.Scoring.Total)
	assert.LessOrEqual(t, opp.Scoring.Total, 100)
}

func TestSynthesizeOpportunities_AllCitationsInvalid(t *testing.T) {
	client := &fakeClient{responses: []string{`{
		"summary": "s",
		"opportunities": [{
			"title": "t",
			"rationale": "r",
			"citations": ["ftp://nope"],
			"scoring": {"breakdown": {}}
		}]
	}`, `{
		"summary": "s",
		"opportunities": [{
			"title": "t",
			"rationale": "r",
			"citations": ["ftp://nope"],
			"scoring": {"breakdown": {}}
		}]
	}`}}

	_, _, err := SynthesizeOpportunities(context.Background(), client, testLogger(), testProject(), &artifactsPayload, testEvidence(), time.Now())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no opportunities")
}

func TestEvidenceForCompetitor_FiltersByDomain(t *testing.T) {
	rows := testEvidence()

	matched := EvidenceForCompetitor(rows, types.CompetitorInput{Name: "Acme", Website: "https://www.acme.com/about"})
	require.Len(t, matched, 1)
	assert.Equal(t, "acme.com", matched[0].Domain)

	// No website: everything.
	assert.Len(t, EvidenceForCompetitor(rows, types.CompetitorInput{Name: "X"}), 2)

	// No matches: fall back to everything.
	assert.Len(t, EvidenceForCompetitor(rows, types.CompetitorInput{Name: "Y", Website: "https://initech.com"}), 2)
}

func TestFormatEvidence_TruncatesLongExcerpts(t *testing.T) {
	long := make([]byte, excerptLimit+500)
	for i := range long {
		long[i] = 'a'
	}
	rows := []types.EvidenceSource{{
		URL:           "https://a.com",
		SourceType:    "docs",
		ExtractedAt:   time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		ExtractedText: string(long),
	}}

	out := FormatEvidence(rows)
	assert.Contains(t, out, "https://a.com")
	assert.Less(t, len(out), excerptLimit+300)
}
