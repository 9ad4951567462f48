package syncer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/voyagen/streamvault/internal/models"
)

var numericID = regexp.MustCompile(`^\d+$`)

// NormalizeCategory maps a raw provider category into the canonical schema.
// The identifier must be numeric; it is zero-padded to 4 digits (already
// padded input passes through unchanged). parent_id is always nil: the
// import is flat, hierarchy is established by admin action afterwards.
// Returns false for records failing the identifier check.
func NormalizeCategory(raw map[string]any, providerID int64, kind models.ContentKind) (*models.Category, bool) {
	id := rawString(raw["category_id"])
	if id == "" || !numericID.MatchString(id) {
		return nil, false
	}
	return &models.Category{
		CategoryID:   padCategoryID(id),
		CategoryName: strings.TrimSpace(rawString(raw["category_name"])),
		ParentID:     nil,
		ProviderID:   providerID,
		CategoryType: kind,
	}, true
}

// NormalizeStream maps a raw provider stream record into the canonical
// schema. The kind-specific numeric identifier (stream_id or series_id) is
// required; everything else the provider sent passes through verbatim in
// Metadata. status is forced ACTIVE, provider to the resolving provider.
// Returns false for records without a usable identifier.
func NormalizeStream(raw map[string]any, providerID int64, kind models.ContentKind) (*models.StreamRecord, bool) {
	id, ok := numericValue(raw[kind.IDField()])
	if !ok {
		return nil, false
	}
	rec := &models.StreamRecord{
		ProviderID: providerID,
		StreamID:   id,
		CategoryID: rawString(raw["category_id"]),
		Name:       strings.TrimSpace(rawString(raw["name"])),
		Status:     models.StreamActive,
		Metadata:   raw,
	}
	if ids, ok := raw["category_ids"].([]any); ok {
		for _, v := range ids {
			if n, ok := numericValue(v); ok {
				rec.CategoryIDs = append(rec.CategoryIDs, n)
			}
		}
	}
	return rec, true
}

// padCategoryID zero-pads a numeric id to at least 4 digits.
func padCategoryID(id string) string {
	for len(id) < 4 {
		id = "0" + id
	}
	return id
}

// rawString renders a loosely-typed provider field as a string. Providers
// return identifiers as numbers or strings interchangeably.
func rawString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	}
	return ""
}

// numericValue extracts a numeric identifier from a loosely-typed field.
func numericValue(v any) (int64, bool) {
	switch x := v.(type) {
	case float64:
		return int64(x), true
	case int64:
		return x, true
	case int:
		return int64(x), true
	case string:
		if numericID.MatchString(x) {
			n, err := strconv.ParseInt(x, 10, 64)
			return n, err == nil
		}
	}
	return 0, false
}
