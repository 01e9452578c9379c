// Package citations normalizes heterogeneous evidence-reference shapes into
// the canonical Citation form. It is a best-effort compatibility layer for
// historical artifact payloads: invalid entries are dropped, never errored.
package citations

import (
	"net/url"
	"strings"
	"time"

	"github.com/nathan/competitor-lens/internal/types"
)

// Field name aliases seen across historical artifact versions.
var (
	urlKeys       = []string{"url", "link", "href", "source_url", "sourceUrl", "source"}
	titleKeys     = []string{"title", "name", "label", "pageTitle", "page_title"}
	typeKeys      = []string{"evidenceType", "evidence_type", "type", "kind", "category", "sourceType", "source_type"}
	retrievedKeys = []string{"retrievedAt", "retrieved_at", "accessedAt", "accessed_at", "fetchedAt", "fetched_at", "crawledAt"}
	publishedKeys = []string{"publishedAt", "published_at", "published", "date", "postedAt", "posted_at"}
	confKeys      = []string{"confidence", "score", "certainty"}
	wrapperKeys   = []string{"citations", "sources", "references"}
)

// dateLayouts are tried in order when parsing free-form date fields.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	time.RFC1123,
	time.RFC1123Z,
}

// Normalize converts any supported citation input shape into canonical
// citations: a bare URL string, an aliased object, an array of either, or a
// wrapper object exposing a citations/sources/references array. Results are
// deduplicated by canonical URL, keeping the first occurrence.
func Normalize(input any) []types.Citation {
	candidates := collect(input, 0)

	out := make([]types.Citation, 0, len(candidates))
	seen := make(map[string]bool)
	for _, c := range candidates {
		if seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		out = append(out, c)
	}
	return out
}

// maxDepth bounds recursive wrapper unwrapping on malformed payloads.
const maxDepth = 4

func collect(input any, depth int) []types.Citation {
	if input == nil || depth > maxDepth {
		return nil
	}

	switch v := input.(type) {
	case string:
		if c, ok := fromURL(v); ok {
			return []types.Citation{c}
		}
	case []any:
		var out []types.Citation
		for _, item := range v {
			out = append(out, collect(item, depth+1)...)
		}
		return out
	case []string:
		var out []types.Citation
		for _, item := range v {
			out = append(out, collect(item, depth+1)...)
		}
		return out
	case map[string]any:
		// Wrapper shapes first: {citations: [...]} and friends.
		for _, key := range wrapperKeys {
			if inner, ok := v[key]; ok {
				return collect(inner, depth+1)
			}
		}
		if c, ok := fromObject(v); ok {
			return []types.Citation{c}
		}
	case types.Citation:
		if canon, ok := CanonicalURL(v.URL); ok {
			v.URL = canon
			return []types.Citation{v}
		}
	}
	return nil
}

func fromURL(raw string) (types.Citation, bool) {
	canon, ok := CanonicalURL(raw)
	if !ok {
		return types.Citation{}, false
	}
	return types.Citation{URL: canon}, true
}

func fromObject(obj map[string]any) (types.Citation, bool) {
	rawURL := firstString(obj, urlKeys)
	canon, ok := CanonicalURL(rawURL)
	if !ok {
		return types.Citation{}, false
	}

	c := types.Citation{
		URL:          canon,
		Title:        strings.TrimSpace(firstString(obj, titleKeys)),
		EvidenceType: MapEvidenceType(firstString(obj, typeKeys)),
		RetrievedAt:  parseDate(firstValue(obj, retrievedKeys)),
		PublishedAt:  parseDate(firstValue(obj, publishedKeys)),
	}
	if raw, ok := firstValue(obj, confKeys); ok {
		if f, ok := asFloat(raw); ok {
			clamped := clampConfidence(f)
			c.Confidence = &clamped
		}
	}
	return c, true
}

// CanonicalURL canonicalizes a raw URL: trims whitespace, assumes https when
// no scheme is present, strips the fragment, and rejects non-http(s) results.
func CanonicalURL(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Host == "" || !strings.Contains(u.Host, ".") {
		return "", false
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	return u.String(), true
}

// substringTypeHints maps free-form type substrings to the closed evidence-type
// set. Checked in order after an exact match attempt.
var substringTypeHints = []struct {
	hint string
	out  string
}{
	{"pric", types.EvidencePricing},
	{"plan", types.EvidencePricing},
	{"doc", types.EvidenceDocs},
	{"guide", types.EvidenceDocs},
	{"api", types.EvidenceDocs},
	{"review", types.EvidenceReviews},
	{"rating", types.EvidenceReviews},
	{"g2", types.EvidenceReviews},
	{"job", types.EvidenceJobs},
	{"career", types.EvidenceJobs},
	{"hiring", types.EvidenceJobs},
	{"changelog", types.EvidenceChangelog},
	{"release", types.EvidenceChangelog},
	{"blog", types.EvidenceBlog},
	{"article", types.EvidenceBlog},
	{"news", types.EvidenceBlog},
	{"forum", types.EvidenceCommunity},
	{"community", types.EvidenceCommunity},
	{"reddit", types.EvidenceCommunity},
	{"discord", types.EvidenceCommunity},
	{"security", types.EvidenceSecurity},
	{"compliance", types.EvidenceSecurity},
	{"trust", types.EvidenceSecurity},
}

// MapEvidenceType maps a free-form type string onto the closed evidence-type
// set: exact match first, then substring heuristics, then "other". An empty
// input stays empty.
func MapEvidenceType(raw string) string {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return ""
	}
	if types.ValidEvidenceType(normalized) {
		return normalized
	}
	for _, h := range substringTypeHints {
		if strings.Contains(normalized, h.hint) {
			return h.out
		}
	}
	return types.EvidenceOther
}

// parseDate converts any date-like value to RFC 3339 UTC, or "" when
// unparseable.
func parseDate(raw any, ok bool) string {
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return ""
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC().Format(time.RFC3339)
			}
		}
	case float64:
		// Unix seconds; sanity-bounded to 2001-2286.
		if v > 1e9 && v < 1e10 {
			return time.Unix(int64(v), 0).UTC().Format(time.RFC3339)
		}
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	}
	return ""
}

// clampConfidence clamps into [0,1], rescaling a 0-100 input automatically.
func clampConfidence(f float64) float64 {
	if f > 1 && f <= 100 {
		f = f / 100
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func firstString(obj map[string]any, keys []string) string {
	for _, key := range keys {
		if v, ok := obj[key]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}

func firstValue(obj map[string]any, keys []string) (any, bool) {
	for _, key := range keys {
		if v, ok := obj[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func asFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
