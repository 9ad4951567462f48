package models

// ContentKind identifies which provider endpoint and canonical schema a
// record belongs to. The values double as the category_type stored on
// category rows, so they must match what the admin UI displays.
type ContentKind string

const (
	KindLive   ContentKind = "Live TV"
	KindVOD    ContentKind = "VOD"
	KindSeries ContentKind = "Series"
)

// Kinds lists the three content kinds in the order category sync reports them.
var Kinds = []ContentKind{KindLive, KindVOD, KindSeries}

// CategoryAction returns the player_api action that lists categories for the kind.
func (k ContentKind) CategoryAction() string {
	switch k {
	case KindVOD:
		return "get_vod_categories"
	case KindSeries:
		return "get_series_categories"
	default:
		return "get_live_categories"
	}
}

// StreamAction returns the player_api action that lists streams for the kind.
// Series is the odd one out: the provider API calls it "get_series", not
// "get_series_streams".
func (k ContentKind) StreamAction() string {
	switch k {
	case KindVOD:
		return "get_vod_streams"
	case KindSeries:
		return "get_series"
	default:
		return "get_live_streams"
	}
}

// IDField returns the raw JSON field that carries the numeric identifier
// for stream records of this kind.
func (k ContentKind) IDField() string {
	if k == KindSeries {
		return "series_id"
	}
	return "stream_id"
}
