package models

import "time"

// Category is one classification node for a provider and content kind.
// category_id is a zero-padded 4-digit numeric string; the upsert key is
// (category_id, provider, category_type).
type Category struct {
	ID           int64       `json:"id,omitempty"`
	CategoryID   string      `json:"category_id"`
	CategoryName string      `json:"category_name"`
	ParentID     *string     `json:"parent_id"` // single digit or nil (root); sync always writes nil
	ProviderID   int64       `json:"provider"`
	CategoryType ContentKind `json:"category_type"`
	CreatedAt    *time.Time  `json:"created_at,omitempty"`
	UpdatedAt    *time.Time  `json:"updated_at,omitempty"`
}
