package syncer

import (
	"strings"

	"github.com/voyagen/streamvault/internal/models"
)

// Denylists holds the per-kind category exclusion lists. Entries are
// compared against normalized category ids (leading zeros stripped).
// These are static configuration, not sync state.
type Denylists struct {
	Live   []string
	VOD    []string
	Series []string
}

// NewDenylists normalizes the configured entries, so an operator value
// like "081" excludes the same categories as "81".
func NewDenylists(live, vod, series []string) Denylists {
	return Denylists{
		Live:   normalizeList(live),
		VOD:    normalizeList(vod),
		Series: normalizeList(series),
	}
}

func normalizeList(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if id := NormalizeCategoryID(e); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// For returns the denylist for a content kind.
func (d Denylists) For(kind models.ContentKind) []string {
	switch kind {
	case models.KindVOD:
		return d.VOD
	case models.KindSeries:
		return d.Series
	default:
		return d.Live
	}
}

// NormalizeCategoryID strips leading zeros from the string form of a raw
// category identifier ("081" -> "81"). Providers are inconsistent about
// zero-padding, so both sides of a denylist comparison normalize first:
// record ids here, configured entries in NewDenylists. Absent or empty
// identifiers normalize to "" and never match a denylist.
func NormalizeCategoryID(v any) string {
	return strings.TrimLeft(rawString(v), "0")
}

// Excluded reports whether a raw record's category_id, or any entry of its
// category_ids array, is on the denylist.
func Excluded(raw map[string]any, denylist []string) bool {
	if len(denylist) == 0 {
		return false
	}
	if id := NormalizeCategoryID(raw["category_id"]); id != "" && contains(denylist, id) {
		return true
	}
	if ids, ok := raw["category_ids"].([]any); ok {
		for _, cid := range ids {
			if id := NormalizeCategoryID(cid); id != "" && contains(denylist, id) {
				return true
			}
		}
	}
	return false
}

// FilterExcluded drops records whose category is denylisted, returning the
// kept records and the number dropped.
func FilterExcluded(records []map[string]any, denylist []string) ([]map[string]any, int) {
	if len(denylist) == 0 {
		return records, 0
	}
	kept := make([]map[string]any, 0, len(records))
	for _, r := range records {
		if !Excluded(r, denylist) {
			kept = append(kept, r)
		}
	}
	return kept, len(records) - len(kept)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
