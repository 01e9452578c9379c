package generation

import (
	"fmt"
	"strings"

	"github.com/nathan/competitor-lens/internal/types"
)

// excerptLimit truncates evidence text so a handful of long pages cannot
// crowd everything else out of the prompt.
const excerptLimit = 1200

// maxEvidenceRows bounds how many rows one prompt carries.
const maxEvidenceRows = 40

// FormatEvidence renders evidence rows as a numbered block for prompt
// inclusion.
func FormatEvidence(rows []types.EvidenceSource) string {
	if len(rows) > maxEvidenceRows {
		rows = rows[:maxEvidenceRows]
	}

	var sb strings.Builder
	for i, row := range rows {
		excerpt := strings.TrimSpace(row.ExtractedText)
		if len(excerpt) > excerptLimit {
			excerpt = excerpt[:excerptLimit] + "…"
		}
		fmt.Fprintf(&sb, "[%d] %s (type: %s, collected: %s)\n%s\n\n",
			i+1, row.URL, row.SourceType, row.ExtractedAt.Format("2006-01-02"), excerpt)
	}
	return strings.TrimSpace(sb.String())
}

// EvidenceForCompetitor filters project evidence down to rows whose domain
// matches the competitor's website. When the competitor has no website, or
// nothing matches, all rows are returned so the generator still has context.
func EvidenceForCompetitor(rows []types.EvidenceSource, competitor types.CompetitorInput) []types.EvidenceSource {
	domain := websiteDomain(competitor.Website)
	if domain == "" {
		return rows
	}

	var matched []types.EvidenceSource
	for _, row := range rows {
		if row.Domain != "" && strings.HasSuffix(strings.ToLower(row.Domain), domain) {
			matched = append(matched, row)
		}
	}
	if len(matched) == 0 {
		return rows
	}
	return matched
}

func websiteDomain(website string) string {
	w := strings.ToLower(strings.TrimSpace(website))
	w = strings.TrimPrefix(w, "https://")
	w = strings.TrimPrefix(w, "http://")
	w = strings.TrimPrefix(w, "www.")
	if idx := strings.IndexByte(w, '/'); idx >= 0 {
		w = w[:idx]
	}
	return w
}
