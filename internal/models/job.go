package models

import (
	"encoding/json"
	"time"
)

// JobKind names one queued unit of sync work.
type JobKind string

const (
	JobSyncCategory JobKind = "sync-category"
	JobSyncLive     JobKind = "sync-live"
	JobSyncVOD      JobKind = "sync-vod"
	JobSyncSeries   JobKind = "sync-series"
)

// JobKinds lists every queue a worker drains.
var JobKinds = []JobKind{JobSyncCategory, JobSyncLive, JobSyncVOD, JobSyncSeries}

// StreamKind maps a single-kind sync job to its content kind.
// Returns false for category sync, which spans all three kinds.
func (k JobKind) StreamKind() (ContentKind, bool) {
	switch k {
	case JobSyncLive:
		return KindLive, true
	case JobSyncVOD:
		return KindVOD, true
	case JobSyncSeries:
		return KindSeries, true
	}
	return "", false
}

// Job states.
const (
	JobWaiting   = "waiting"
	JobActive    = "active"
	JobDelayed   = "delayed" // waiting out a retry backoff
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Job is the persisted state of one sync job.
type Job struct {
	ID           string          `json:"id"`
	Kind         JobKind         `json:"kind"`
	ProviderID   int64           `json:"providerId"`
	State        string          `json:"state"`
	Progress     int             `json:"progress"`
	Status       string          `json:"status,omitempty"` // human-readable stage string
	AttemptsMade int             `json:"attemptsMade"`
	MaxAttempts  int             `json:"maxAttempts"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	FinishedAt   *time.Time      `json:"finishedAt,omitempty"`
}
