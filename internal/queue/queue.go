package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/voyagen/streamvault/internal/models"
)

// Redis key layout. Jobs live in hashes so state, progress, and result can
// be updated field-by-field while a job runs; the pending lists and the
// delayed set only carry job ids.
const (
	keyPrefix  = "streamvault"
	keyNextID  = keyPrefix + ":jobs:next"
	keyDelayed = keyPrefix + ":delayed"
)

func jobKey(id string) string {
	return keyPrefix + ":jobs:" + id
}

func pendingKey(kind models.JobKind) string {
	return keyPrefix + ":pending:" + string(kind)
}

// ProviderLockKey names the per-provider lock workers hold while syncing.
func ProviderLockKey(providerID int64) string {
	return fmt.Sprintf("%s:lock:provider:%d", keyPrefix, providerID)
}

// RetryPolicy bounds job attempts. Backoff is exponential: BaseDelay doubled
// for every attempt already made.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Backoff returns the delay before the next attempt, given how many
// attempts have been made so far.
func (p RetryPolicy) Backoff(attemptsMade int) time.Duration {
	d := p.BaseDelay
	if d <= 0 {
		d = 5 * time.Second
	}
	for i := 1; i < attemptsMade; i++ {
		d *= 2
	}
	return d
}

// NextAttempt decides the fate of a failed job: terminal once the retry
// budget is spent, otherwise a delayed retry with exponential backoff.
func (p RetryPolicy) NextAttempt(attemptsMade, maxAttempts int) (time.Duration, bool) {
	if attemptsMade >= maxAttempts {
		return 0, true
	}
	return p.Backoff(attemptsMade), false
}

// Queue is a durable, retryable job queue over Redis. Each job kind has its
// own pending list; failed jobs wait out an exponential backoff in a delayed
// set until a worker promotes them back.
type Queue struct {
	r      *Redis
	policy RetryPolicy
}

// New creates a Queue with the given retry policy.
func New(r *Redis, policy RetryPolicy) *Queue {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 5 * time.Second
	}
	return &Queue{r: r, policy: policy}
}

// Enqueue creates a job record and pushes it onto its kind's pending list.
func (q *Queue) Enqueue(ctx context.Context, kind models.JobKind, providerID int64) (*models.Job, error) {
	id, err := q.r.client.Incr(ctx, keyNextID).Result()
	if err != nil {
		return nil, fmt.Errorf("queue id: %w", err)
	}
	now := time.Now().UTC()
	job := &models.Job{
		ID:          strconv.FormatInt(id, 10),
		Kind:        kind,
		ProviderID:  providerID,
		State:       models.JobWaiting,
		MaxAttempts: q.policy.MaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := q.r.client.HSet(ctx, jobKey(job.ID), jobFields(job)).Err(); err != nil {
		return nil, fmt.Errorf("queue save job: %w", err)
	}
	if err := q.r.client.LPush(ctx, pendingKey(kind), job.ID).Err(); err != nil {
		return nil, fmt.Errorf("queue push: %w", err)
	}
	return job, nil
}

// Dequeue blocks until a job of any kind is available or the timeout
// expires. On timeout (nil, nil) is returned so the caller can loop and
// check for shutdown. The dequeued job is marked active and its attempt
// counter incremented.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*models.Job, error) {
	keys := make([]string, len(models.JobKinds))
	for i, k := range models.JobKinds {
		keys[i] = pendingKey(k)
	}
	result, err := q.r.client.BRPop(ctx, timeout, keys...).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // timeout, no job available
		}
		// Context cancelled (shutdown), not an error.
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("queue dequeue: %w", err)
	}
	// BRPop returns [key, value].
	if len(result) < 2 {
		return nil, nil
	}
	job, err := q.GetJob(ctx, result[1])
	if err != nil {
		return nil, err
	}
	job.State = models.JobActive
	job.AttemptsMade++
	if err := q.update(ctx, job.ID, map[string]any{
		"state":         job.State,
		"attempts_made": job.AttemptsMade,
	}); err != nil {
		return nil, err
	}
	return job, nil
}

// Requeue pushes a job back for a later attempt without consuming one,
// used when the job's provider is locked by a sibling job.
func (q *Queue) Requeue(ctx context.Context, job *models.Job, delay time.Duration) error {
	job.AttemptsMade--
	job.State = models.JobDelayed
	if err := q.update(ctx, job.ID, map[string]any{
		"state":         job.State,
		"attempts_made": job.AttemptsMade,
	}); err != nil {
		return err
	}
	readyAt := float64(time.Now().Add(delay).UnixMilli())
	return q.r.client.ZAdd(ctx, keyDelayed, redis.Z{Score: readyAt, Member: job.ID}).Err()
}

// Complete marks a job completed and persists its result.
func (q *Queue) Complete(ctx context.Context, job *models.Job, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("queue marshal result: %w", err)
	}
	now := time.Now().UTC()
	job.State = models.JobCompleted
	job.Progress = 100
	job.Result = data
	job.FinishedAt = &now
	return q.update(ctx, job.ID, map[string]any{
		"state":       job.State,
		"progress":    100,
		"status":      "Completed",
		"result":      string(data),
		"error":       "",
		"finished_at": now.Format(time.RFC3339Nano),
	})
}

// Fail records a failed attempt. While attempts remain, the job is parked in
// the delayed set with exponential backoff and retried in full; once
// attempts are exhausted it is terminally failed with the error retained.
// Returns the retry delay and whether the failure is terminal.
func (q *Queue) Fail(ctx context.Context, job *models.Job, jobErr error) (time.Duration, bool, error) {
	msg := jobErr.Error()
	delay, terminal := q.policy.NextAttempt(job.AttemptsMade, job.MaxAttempts)
	if terminal {
		now := time.Now().UTC()
		job.State = models.JobFailed
		job.Error = msg
		job.FinishedAt = &now
		return 0, true, q.update(ctx, job.ID, map[string]any{
			"state":       job.State,
			"error":       msg,
			"finished_at": now.Format(time.RFC3339Nano),
		})
	}
	job.State = models.JobDelayed
	job.Error = msg
	if err := q.update(ctx, job.ID, map[string]any{
		"state": job.State,
		"error": msg,
	}); err != nil {
		return 0, false, err
	}
	readyAt := float64(time.Now().Add(delay).UnixMilli())
	if err := q.r.client.ZAdd(ctx, keyDelayed, redis.Z{Score: readyAt, Member: job.ID}).Err(); err != nil {
		return 0, false, fmt.Errorf("queue delay: %w", err)
	}
	return delay, false, nil
}

// PromoteDue moves jobs whose backoff has elapsed from the delayed set back
// onto their pending lists. Returns how many were promoted.
func (q *Queue) PromoteDue(ctx context.Context) (int, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := q.r.client.ZRangeByScore(ctx, keyDelayed, &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 100,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("queue promote scan: %w", err)
	}
	promoted := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil {
			// Job hash expired or was swept; drop the orphan member.
			_ = q.r.client.ZRem(ctx, keyDelayed, id).Err()
			continue
		}
		removed, err := q.r.client.ZRem(ctx, keyDelayed, id).Result()
		if err != nil {
			return promoted, fmt.Errorf("queue promote: %w", err)
		}
		if removed == 0 {
			continue // another worker promoted it first
		}
		if err := q.update(ctx, id, map[string]any{"state": models.JobWaiting}); err != nil {
			return promoted, err
		}
		if err := q.r.client.LPush(ctx, pendingKey(job.Kind), id).Err(); err != nil {
			return promoted, fmt.Errorf("queue promote push: %w", err)
		}
		promoted++
	}
	return promoted, nil
}

// UpdateProgress records advisory progress (0-100) and a human-readable
// stage string against the job. Failures here never affect the job outcome.
func (q *Queue) UpdateProgress(ctx context.Context, jobID string, progress int, status string) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	return q.update(ctx, jobID, map[string]any{
		"progress": progress,
		"status":   status,
	})
}

// Purge removes every job record, pending entry, and delayed entry,
// including the id counter. Running jobs keep going; their completion
// updates simply recreate the hash.
func (q *Queue) Purge(ctx context.Context) error {
	if err := q.r.DelPattern(ctx, keyPrefix+":jobs:*"); err != nil {
		return err
	}
	if err := q.r.DelPattern(ctx, keyPrefix+":pending:*"); err != nil {
		return err
	}
	return q.r.client.Del(ctx, keyDelayed).Err()
}

// ErrJobNotFound is returned by GetJob when the job hash does not exist.
var ErrJobNotFound = errors.New("job not found")

// GetJob loads a job by id.
func (q *Queue) GetJob(ctx context.Context, id string) (*models.Job, error) {
	fields, err := q.r.client.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("queue get job: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
	}
	return parseJob(id, fields), nil
}

func (q *Queue) update(ctx context.Context, id string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	if err := q.r.client.HSet(ctx, jobKey(id), fields).Err(); err != nil {
		return fmt.Errorf("queue update job %s: %w", id, err)
	}
	return nil
}

func jobFields(j *models.Job) map[string]any {
	return map[string]any{
		"kind":          string(j.Kind),
		"provider_id":   j.ProviderID,
		"state":         j.State,
		"progress":      j.Progress,
		"status":        j.Status,
		"attempts_made": j.AttemptsMade,
		"max_attempts":  j.MaxAttempts,
		"created_at":    j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":    j.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func parseJob(id string, f map[string]string) *models.Job {
	j := &models.Job{
		ID:     id,
		Kind:   models.JobKind(f["kind"]),
		State:  f["state"],
		Status: f["status"],
		Error:  f["error"],
	}
	j.ProviderID, _ = strconv.ParseInt(f["provider_id"], 10, 64)
	j.Progress, _ = strconv.Atoi(f["progress"])
	j.AttemptsMade, _ = strconv.Atoi(f["attempts_made"])
	j.MaxAttempts, _ = strconv.Atoi(f["max_attempts"])
	if v := f["result"]; v != "" {
		j.Result = json.RawMessage(v)
	}
	j.CreatedAt, _ = time.Parse(time.RFC3339Nano, f["created_at"])
	j.UpdatedAt, _ = time.Parse(time.RFC3339Nano, f["updated_at"])
	if v := f["finished_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			j.FinishedAt = &t
		}
	}
	return j
}
