package models

import "time"

// Stream status values.
const (
	StreamActive   = "ACTIVE"
	StreamInactive = "INACTIVE"
	StreamHidden   = "HIDDEN" // live/VOD only
)

// StreamRecord is one catalog item (live channel, VOD title, or series) for
// one provider. The upsert key is (provider, stream_id); for series the
// provider calls the identifier series_id, but it lands in StreamID here.
//
// Provider APIs disagree wildly on which metadata fields exist, so everything
// beyond the typed identifiers goes into Metadata verbatim (stored as JSONB).
// Feature is a curation flag set by admins and is never touched by sync.
type StreamRecord struct {
	ID          int64          `json:"id,omitempty"`
	ProviderID  int64          `json:"provider"`
	StreamID    int64          `json:"stream_id"`
	CategoryID  string         `json:"category_id,omitempty"`
	CategoryIDs []int64        `json:"category_ids,omitempty"`
	Name        string         `json:"name"`
	Status      string         `json:"status"`
	Feature     bool           `json:"feature"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`
	UpdatedAt   *time.Time     `json:"updated_at,omitempty"`
}
