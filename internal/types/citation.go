// Package types defines the shared data structures used across the analysis pipeline.
package types

// Evidence type constants define the closed set of citation evidence types.
const (
	EvidencePricing   = "pricing"
	EvidenceDocs      = "docs"
	EvidenceReviews   = "reviews"
	EvidenceJobs      = "jobs"
	EvidenceChangelog = "changelog"
	EvidenceBlog      = "blog"
	EvidenceCommunity = "community"
	EvidenceSecurity  = "security"
	EvidenceOther     = "other"
)

// EvidenceTypes lists every valid citation evidence type.
var EvidenceTypes = []string{
	EvidencePricing,
	EvidenceDocs,
	EvidenceReviews,
	EvidenceJobs,
	EvidenceChangelog,
	EvidenceBlog,
	EvidenceCommunity,
	EvidenceSecurity,
	EvidenceOther,
}

// ValidEvidenceType checks whether t is a member of the closed evidence-type set.
func ValidEvidenceType(t string) bool {
	for _, known := range EvidenceTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Citation is a normalized pointer from a claim to a piece of collected evidence.
// URL is canonical (fragment stripped, http/https only); timestamps are RFC 3339.
type Citation struct {
	URL          string   `json:"url"`
	Title        string   `json:"title,omitempty"`
	EvidenceType string   `json:"evidenceType,omitempty"`
	RetrievedAt  string   `json:"retrievedAt,omitempty"`
	PublishedAt  string   `json:"publishedAt,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
}
