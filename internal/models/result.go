package models

// KindStats counts the outcome of reconciling one content kind.
// Error is set when the kind's fetch failed; the counts then reflect
// whatever was processed before the failure (usually zero).
type KindStats struct {
	Created   int    `json:"created"`
	Updated   int    `json:"updated"`
	Unchanged int    `json:"unchanged"`
	Invalid   int    `json:"invalid"`
	Total     int    `json:"total"`
	Error     string `json:"error,omitempty"`
}

// SyncSummary aggregates category counts across the three kinds.
type SyncSummary struct {
	TotalCategories int `json:"totalCategories"`
	TotalCreated    int `json:"totalCreated"`
	TotalUpdated    int `json:"totalUpdated"`
	TotalUnchanged  int `json:"totalUnchanged"`
	TotalInvalid    int `json:"totalInvalid"`
}

// CategorySyncResult is the persisted result of a category sync job.
// The per-kind keys match the category_type strings on purpose, the admin
// UI renders the breakdown directly.
type CategorySyncResult struct {
	Live         KindStats   `json:"Live TV"`
	VOD          KindStats   `json:"VOD"`
	Series       KindStats   `json:"Series"`
	Summary      SyncSummary `json:"summary"`
	SyncDuration string      `json:"syncDuration"`
	Provider     ProviderRef `json:"provider"`
}

// Stats returns the slot for a kind so the orchestrator can fan out writes.
func (r *CategorySyncResult) Stats(k ContentKind) *KindStats {
	switch k {
	case KindVOD:
		return &r.VOD
	case KindSeries:
		return &r.Series
	default:
		return &r.Live
	}
}

// Aggregate fills Summary from the per-kind stats.
func (r *CategorySyncResult) Aggregate() {
	r.Summary = SyncSummary{}
	for _, s := range []KindStats{r.Live, r.VOD, r.Series} {
		r.Summary.TotalCategories += s.Total
		r.Summary.TotalCreated += s.Created
		r.Summary.TotalUpdated += s.Updated
		r.Summary.TotalUnchanged += s.Unchanged
		r.Summary.TotalInvalid += s.Invalid
	}
}

// StreamSyncResult is the persisted result of a single-kind stream sync job.
// Total is the number of upsert operations issued.
type StreamSyncResult struct {
	Success bool `json:"success"`
	Total   int  `json:"total"`
}
