// Package scoring computes deterministic opportunity scores. Generative input
// supplies the per-dimension breakdown; totals and recency confidence are
// always recomputed here and overwrite anything the generator proposed.
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/nathan/competitor-lens/internal/types"
)

// DefaultWeights is the weight profile used when the generator supplies no
// usable weights. Values sum to 1.
var DefaultWeights = map[string]float64{
	types.DimCustomerPain:     0.25,
	types.DimWillingnessToPay: 0.20,
	types.DimStrategicFit:     0.15,
	types.DimFeasibility:      0.15,
	types.DimDefensibility:    0.10,
	types.DimCompetitorGap:    0.15,
}

// recentWindow is the citation age that counts toward recency confidence.
const recentWindow = 90 * 24 * time.Hour

// highValueTypes are the evidence types that carry the most pricing/positioning
// signal for recency confidence.
var highValueTypes = map[string]bool{
	types.EvidenceReviews:   true,
	types.EvidencePricing:   true,
	types.EvidenceChangelog: true,
}

// NormalizeWeights returns a weight map over the known dimensions that sums to
// 1. Unknown dimensions are dropped; a missing, empty, or non-positive input
// falls back to DefaultWeights.
func NormalizeWeights(weights map[string]float64) map[string]float64 {
	cleaned := make(map[string]float64, len(types.ScoringDimensions))
	sum := 0.0
	for _, dim := range types.ScoringDimensions {
		w := weights[dim]
		if w < 0 {
			w = 0
		}
		cleaned[dim] = w
		sum += w
	}
	if sum <= 0 {
		out := make(map[string]float64, len(DefaultWeights))
		for dim, w := range DefaultWeights {
			out[dim] = w
		}
		return out
	}
	for dim := range cleaned {
		cleaned[dim] = cleaned[dim] / sum
	}
	return cleaned
}

// ClampBreakdown restricts breakdown values to the known dimensions and the
// 0-10 range. Missing dimensions default to 0.
func ClampBreakdown(breakdown map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(types.ScoringDimensions))
	for _, dim := range types.ScoringDimensions {
		v := breakdown[dim]
		if v < 0 {
			v = 0
		}
		if v > 10 {
			v = 10
		}
		out[dim] = v
	}
	return out
}

// RecencyConfidence derives a 0-10 confidence from citation freshness and
// evidence-type value. Deterministic given the same citations and now.
func RecencyConfidence(cites []types.Citation, now time.Time) int {
	if len(cites) == 0 {
		return 0
	}

	recent := 0
	highValue := 0
	for _, c := range cites {
		if within(c, now, recentWindow) {
			recent++
		}
		if highValueTypes[c.EvidenceType] {
			highValue++
		}
	}

	recentFraction := float64(recent) / float64(len(cites))
	highValueFraction := float64(highValue) / float64(len(cites))
	return int(math.Round(math.Min(6, recentFraction*6) + math.Min(4, highValueFraction*4)))
}

// within reports whether a citation's best timestamp falls inside the window.
// PublishedAt wins over RetrievedAt; a citation with no parseable timestamp is
// not recent.
func within(c types.Citation, now time.Time, window time.Duration) bool {
	for _, raw := range []string{c.PublishedAt, c.RetrievedAt} {
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			continue
		}
		age := now.Sub(t)
		return age >= 0 && age <= window
	}
	return false
}

// Total computes the 0-100 weighted total from a breakdown and weights. Both
// inputs are sanitized first, so untrusted generator output is safe to pass.
func Total(breakdown, weights map[string]float64) int {
	b := ClampBreakdown(breakdown)
	w := NormalizeWeights(weights)

	sum := 0.0
	for _, dim := range types.ScoringDimensions {
		sum += b[dim] * w[dim] * 10
	}
	if sum < 0 {
		sum = 0
	}
	if sum > 100 {
		sum = 100
	}
	return int(math.Round(sum))
}

// Rescore replaces an opportunity's scoring with server-computed values:
// sanitized breakdown, normalized weights, recomputed recency confidence and
// total. The generator's proposed total is never trusted.
func Rescore(opp *types.Opportunity, now time.Time) {
	opp.Scoring.Breakdown = ClampBreakdown(opp.Scoring.Breakdown)
	opp.Scoring.Weights = NormalizeWeights(opp.Scoring.Weights)
	opp.Scoring.RecencyConfidence = RecencyConfidence(opp.Citations, now)
	opp.Scoring.Total = Total(opp.Scoring.Breakdown, opp.Scoring.Weights)
}

// maxSlugLen bounds the slug portion of opportunity ids.
const maxSlugLen = 48

// Slug lowercases a title and collapses non-alphanumeric runs to single
// hyphens.
func Slug(title string) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if isAlnum {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}

// OpportunityID builds the stable cross-run identifier for an opportunity:
// slug(title) + project id + optional primary linked job id.
func OpportunityID(title, projectID, linkedJobID string) string {
	id := Slug(title) + "-" + projectID
	if linkedJobID != "" {
		id += "-" + linkedJobID
	}
	return id
}
