package queue

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyagen/streamvault/internal/models"
)

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: 5 * time.Second}

	tests := []struct {
		attemptsMade int
		want         time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Backoff(tt.attemptsMade), "attempt %d", tt.attemptsMade)
	}
}

func TestRetryPolicyNextAttemptLifecycle(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: 5 * time.Second}

	// Each failed attempt is retried with a doubled delay until the
	// budget is spent.
	delay, terminal := p.NextAttempt(1, 3)
	assert.False(t, terminal)
	assert.Equal(t, 5*time.Second, delay)

	delay, terminal = p.NextAttempt(2, 3)
	assert.False(t, terminal)
	assert.Equal(t, 10*time.Second, delay)

	delay, terminal = p.NextAttempt(3, 3)
	assert.True(t, terminal)
	assert.Equal(t, time.Duration(0), delay)

	// Past the budget stays terminal.
	_, terminal = p.NextAttempt(4, 3)
	assert.True(t, terminal)
}

func TestFailedJobRetainsError(t *testing.T) {
	finished := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	job := &models.Job{
		ID:           "4",
		Kind:         models.JobSyncLive,
		ProviderID:   7,
		State:        models.JobWaiting,
		AttemptsMade: 3,
		MaxAttempts:  3,
	}

	asStrings := make(map[string]string)
	for k, v := range jobFields(job) {
		asStrings[k] = fmt.Sprint(v)
	}
	// A terminal Fail overwrites these on the job hash.
	asStrings["state"] = models.JobFailed
	asStrings["error"] = "provider is not active"
	asStrings["finished_at"] = finished.Format(time.RFC3339Nano)

	got := parseJob("4", asStrings)
	assert.Equal(t, models.JobFailed, got.State)
	assert.Equal(t, "provider is not active", got.Error)
	assert.Equal(t, 3, got.AttemptsMade)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(finished))
}

func TestRetryPolicyBackoffZeroBase(t *testing.T) {
	p := RetryPolicy{}
	assert.Equal(t, 5*time.Second, p.Backoff(1))
}

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "streamvault:jobs:42", jobKey("42"))
	assert.Equal(t, "streamvault:pending:sync-category", pendingKey(models.JobSyncCategory))
	assert.Equal(t, "streamvault:pending:sync-vod", pendingKey(models.JobSyncVOD))
	assert.Equal(t, "streamvault:lock:provider:7", ProviderLockKey(7))
}

func TestJobFieldsRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	job := &models.Job{
		ID:           "9",
		Kind:         models.JobSyncVOD,
		ProviderID:   7,
		State:        models.JobWaiting,
		Progress:     40,
		Status:       "Processing VOD batch 2/5",
		AttemptsMade: 1,
		MaxAttempts:  3,
		CreatedAt:    created,
		UpdatedAt:    created,
	}

	// HSet stores everything as strings; emulate that.
	asStrings := make(map[string]string)
	for k, v := range jobFields(job) {
		asStrings[k] = fmt.Sprint(v)
	}

	got := parseJob("9", asStrings)
	assert.Equal(t, job.Kind, got.Kind)
	assert.Equal(t, job.ProviderID, got.ProviderID)
	assert.Equal(t, job.State, got.State)
	assert.Equal(t, job.Progress, got.Progress)
	assert.Equal(t, job.Status, got.Status)
	assert.Equal(t, job.AttemptsMade, got.AttemptsMade)
	assert.Equal(t, job.MaxAttempts, got.MaxAttempts)
	assert.True(t, got.CreatedAt.Equal(created))
	require.Nil(t, got.FinishedAt)
}

func TestParseJobFinishedAt(t *testing.T) {
	finished := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	f := map[string]string{
		"kind":        string(models.JobSyncCategory),
		"state":       models.JobCompleted,
		"result":      `{"success":true}`,
		"finished_at": finished.Format(time.RFC3339Nano),
	}
	j := parseJob("1", f)
	require.NotNil(t, j.FinishedAt)
	assert.True(t, j.FinishedAt.Equal(finished))
	assert.JSONEq(t, `{"success":true}`, string(j.Result))
}

func TestNewAppliesPolicyDefaults(t *testing.T) {
	q := New(nil, RetryPolicy{})
	assert.Equal(t, 3, q.policy.MaxAttempts)
	assert.Equal(t, 5*time.Second, q.policy.BaseDelay)
}
