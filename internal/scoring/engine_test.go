package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathan/competitor-lens/internal/types"
)

var testNow = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

func fullBreakdown(v float64) map[string]float64 {
	out := make(map[string]float64)
	for _, dim := range types.ScoringDimensions {
		out[dim] = v
	}
	return out
}

func TestTotal_AllMaxIsHundred(t *testing.T) {
	assert.Equal(t, 100, Total(fullBreakdown(10), DefaultWeights))
}

func TestTotal_AllZeroIsZero(t *testing.T) {
	assert.Equal(t, 0, Total(fullBreakdown(0), DefaultWeights))
}

func TestTotal_Deterministic(t *testing.T) {
	breakdown := map[string]float64{
		types.DimCustomerPain:     8,
		types.DimWillingnessToPay: 6,
		types.DimStrategicFit:     7,
		types.DimFeasibility:      5,
		types.DimDefensibility:    4,
		types.DimCompetitorGap:    9,
	}

	first := Total(breakdown, DefaultWeights)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Total(breakdown, DefaultWeights))
	}
}

func TestTotal_ClampsOutOfRangeBreakdown(t *testing.T) {
	breakdown := fullBreakdown(10)
	breakdown[types.DimCustomerPain] = 42
	breakdown[types.DimFeasibility] = -5

	got := Total(breakdown, DefaultWeights)
	assert.GreaterOrEqual(t, got, 0)
	assert.LessOrEqual(t, got, 100)
}

func TestNormalizeWeights_RescalesToOne(t *testing.T) {
	weights := NormalizeWeights(map[string]float64{
		types.DimCustomerPain:  2,
		types.DimCompetitorGap: 2,
	})

	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.InDelta(t, 0.5, weights[types.DimCustomerPain], 1e-9)
	assert.Equal(t, 0.0, weights[types.DimStrategicFit])
}

func TestNormalizeWeights_FallsBackToDefaults(t *testing.T) {
	assert.Equal(t, DefaultWeights, NormalizeWeights(nil))
	assert.Equal(t, DefaultWeights, NormalizeWeights(map[string]float64{"made_up_dimension": 1}))
}

func TestRecencyConfidence_NoCitations(t *testing.T) {
	assert.Equal(t, 0, RecencyConfidence(nil, testNow))
}

func TestRecencyConfidence_AllRecentHighValue(t *testing.T) {
	cites := []types.Citation{
		{URL: "https://a.com", EvidenceType: types.EvidencePricing, RetrievedAt: testNow.Add(-24 * time.Hour).Format(time.RFC3339)},
		{URL: "https://b.com", EvidenceType: types.EvidenceReviews, PublishedAt: testNow.Add(-48 * time.Hour).Format(time.RFC3339)},
	}

	// recentFraction = 1 -> 6 points; highValueFraction = 1 -> 4 points.
	assert.Equal(t, 10, RecencyConfidence(cites, testNow))
}

func TestRecencyConfidence_StaleLowValue(t *testing.T) {
	cites := []types.Citation{
		{URL: "https://a.com", EvidenceType: types.EvidenceBlog, RetrievedAt: testNow.Add(-200 * 24 * time.Hour).Format(time.RFC3339)},
		{URL: "https://b.com", EvidenceType: types.EvidenceDocs},
	}

	assert.Equal(t, 0, RecencyConfidence(cites, testNow))
}

func TestRecencyConfidence_PublishedAtWinsOverRetrievedAt(t *testing.T) {
	// Published long ago but retrieved yesterday: the content is old.
	cites := []types.Citation{{
		URL:         "https://a.com",
		PublishedAt: testNow.Add(-365 * 24 * time.Hour).Format(time.RFC3339),
		RetrievedAt: testNow.Add(-24 * time.Hour).Format(time.RFC3339),
	}}

	assert.Equal(t, 0, RecencyConfidence(cites, testNow))
}

func TestRescore_OverwritesGeneratorTotal(t *testing.T) {
	opp := &types.Opportunity{
		Title: "Usage-based pricing tier",
		Citations: []types.Citation{
			{URL: "https://a.com/pricing", EvidenceType: types.EvidencePricing, RetrievedAt: testNow.Add(-24 * time.Hour).Format(time.RFC3339)},
		},
		Scoring: types.Scoring{
			Breakdown: fullBreakdown(5),
			Total:     999, // generator lies
		},
	}

	Rescore(opp, testNow)

	assert.Equal(t, 50, opp.Scoring.Total)
	assert.Equal(t, 10, opp.Scoring.RecencyConfidence)
	require.NotEmpty(t, opp.Scoring.Weights)
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Usage-Based Pricing Tier", "usage-based-pricing-tier"},
		{"  SOC 2 / HIPAA compliance!! ", "soc-2-hipaa-compliance"},
		{"---", ""},
		{"Émigréождение metrics", "migr-metrics"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slug(tt.in), "input %q", tt.in)
	}
}

func TestOpportunityID(t *testing.T) {
	assert.Equal(t, "self-serve-onboarding-proj1", OpportunityID("Self-serve onboarding", "proj1", ""))
	assert.Equal(t, "self-serve-onboarding-proj1-job7", OpportunityID("Self-serve onboarding", "proj1", "job7"))
}
