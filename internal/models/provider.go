package models

import "time"

// Provider status values. Only Active providers may be synced.
const (
	ProviderActive    = "Active"
	ProviderInactive  = "Inactive"
	ProviderSuspended = "Suspended"
)

// Provider is a configured upstream IPTV source. The sync engine only reads
// status, apiEndpoint, dns, and name; the remaining fields belong to the
// admin CRUD surface.
type Provider struct {
	ID                 int64      `json:"id,omitempty"`
	Owner              string     `json:"owner"`
	Name               string     `json:"name"`
	APIEndpoint        string     `json:"apiEndpoint"`
	DNS                string     `json:"dns"`
	Status             string     `json:"status"`
	MaxConcurrentUsers int        `json:"maxConcurrentUsers"`
	ExpiryHours        int        `json:"expiryHours"`
	CreatedAt          *time.Time `json:"created_at,omitempty"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

// ProviderRef is the short provider identity embedded in sync results.
type ProviderRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
