// Package evidence implements the deterministic readiness gate that blocks
// generation when the collected evidence for a project is too thin. Both
// checks are pure functions of already-persisted rows; the reference time is
// injected so verdicts are reproducible.
package evidence

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nathan/competitor-lens/internal/types"
)

// Recency labels, freshest first.
const (
	RecencyFresh  = "fresh"  // newest row < 7 days
	RecencyRecent = "recent" // newest row < 30 days
	RecencyStale  = "stale"  // newest row < 90 days
	RecencyOld    = "old"
	RecencyNone   = "none" // no rows at all
)

// Fixed readiness thresholds. The gate verdict never depends on
// generative output.
const (
	MinSourceRows  = 3
	MinSourceTypes = 2
)

// desiredTypes are the evidence types coverage reporting suggests collecting
// first when missing.
var desiredTypes = []string{
	types.EvidencePricing,
	types.EvidenceDocs,
	types.EvidenceReviews,
	types.EvidenceChangelog,
}

// Coverage summarizes the evidence collected for a project.
type Coverage struct {
	TotalCitations int      `json:"totalCitations"`
	SourceTypes    []string `json:"sourceTypes"`
	RecencyLabel   string   `json:"recencyLabel"`
	CoverageScore  float64  `json:"coverageScore"`
}

// Readiness is the gate verdict for a coverage snapshot.
type Readiness struct {
	IsReady bool     `json:"isReady"`
	Reasons []string `json:"reasons,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

// ComputeCoverage derives coverage statistics from persisted evidence rows.
// now is the reference time for recency bucketing.
func ComputeCoverage(rows []types.EvidenceSource, now time.Time) Coverage {
	typeSet := make(map[string]bool)
	var newest time.Time
	for _, row := range rows {
		if t := strings.TrimSpace(row.SourceType); t != "" {
			typeSet[t] = true
		}
		if row.ExtractedAt.After(newest) {
			newest = row.ExtractedAt
		}
	}

	sourceTypes := make([]string, 0, len(typeSet))
	for t := range typeSet {
		sourceTypes = append(sourceTypes, t)
	}
	sort.Strings(sourceTypes)

	label := recencyLabel(newest, now, len(rows))

	return Coverage{
		TotalCitations: len(rows),
		SourceTypes:    sourceTypes,
		RecencyLabel:   label,
		CoverageScore:  coverageScore(len(rows), len(sourceTypes), label),
	}
}

func recencyLabel(newest, now time.Time, total int) string {
	if total == 0 || newest.IsZero() {
		return RecencyNone
	}
	age := now.Sub(newest)
	switch {
	case age < 7*24*time.Hour:
		return RecencyFresh
	case age < 30*24*time.Hour:
		return RecencyRecent
	case age < 90*24*time.Hour:
		return RecencyStale
	default:
		return RecencyOld
	}
}

// coverageScore folds volume, variety, and freshness into a 0-1 confidence.
func coverageScore(total, distinctTypes int, label string) float64 {
	volume := float64(total) / 8
	if volume > 1 {
		volume = 1
	}
	variety := float64(distinctTypes) / 4
	if variety > 1 {
		variety = 1
	}
	freshness := 0.0
	switch label {
	case RecencyFresh:
		freshness = 1
	case RecencyRecent:
		freshness = 0.7
	case RecencyStale:
		freshness = 0.3
	}
	return 0.5*volume + 0.3*variety + 0.2*freshness
}

// EvaluateReadiness applies the fixed thresholds to a coverage snapshot.
// Reasons explain every failed threshold; Missing lists evidence types worth
// collecting next.
func EvaluateReadiness(cov Coverage) Readiness {
	var reasons []string

	if cov.TotalCitations == 0 {
		reasons = append(reasons, "no evidence has been collected for this project")
	} else {
		if cov.TotalCitations < MinSourceRows {
			reasons = append(reasons, fmt.Sprintf("only %d evidence source(s) collected (need at least %d)", cov.TotalCitations, MinSourceRows))
		}
		if len(cov.SourceTypes) < MinSourceTypes {
			reasons = append(reasons, fmt.Sprintf("evidence spans %d source type(s) (need at least %d)", len(cov.SourceTypes), MinSourceTypes))
		}
		if cov.RecencyLabel != RecencyFresh && cov.RecencyLabel != RecencyRecent {
			reasons = append(reasons, fmt.Sprintf("newest evidence is %s (need sources collected within 30 days)", cov.RecencyLabel))
		}
	}

	have := make(map[string]bool, len(cov.SourceTypes))
	for _, t := range cov.SourceTypes {
		have[t] = true
	}
	var missing []string
	for _, t := range desiredTypes {
		if !have[t] {
			missing = append(missing, t)
		}
	}

	return Readiness{
		IsReady: len(reasons) == 0,
		Reasons: reasons,
		Missing: missing,
	}
}

// CoverageFromCitations derives coverage statistics from a set of citations,
// deduplicated by URL. The decision model assembler uses this to summarize
// the evidence backing an already-generated artifact.
func CoverageFromCitations(cites []types.Citation, now time.Time) Coverage {
	seen := make(map[string]bool)
	typeSet := make(map[string]bool)
	var newest time.Time
	total := 0
	for _, c := range cites {
		if c.URL == "" || seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		total++
		if t := strings.TrimSpace(c.EvidenceType); t != "" {
			typeSet[t] = true
		}
		if ts := citationTime(c); ts.After(newest) {
			newest = ts
		}
	}

	sourceTypes := make([]string, 0, len(typeSet))
	for t := range typeSet {
		sourceTypes = append(sourceTypes, t)
	}
	sort.Strings(sourceTypes)

	label := recencyLabel(newest, now, total)

	return Coverage{
		TotalCitations: total,
		SourceTypes:    sourceTypes,
		RecencyLabel:   label,
		CoverageScore:  coverageScore(total, len(sourceTypes), label),
	}
}

// citationTime picks the citation's best timestamp, preferring publication
// date over retrieval date.
func citationTime(c types.Citation) time.Time {
	for _, raw := range []string{c.PublishedAt, c.RetrievedAt} {
		if raw == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}
