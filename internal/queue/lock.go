package queue

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrLocked is returned by TryLock when the lock is already held.
var ErrLocked = errors.New("lock is already held")

// unlockScript deletes the key only if the token still matches, so a lock
// that expired and was re-acquired by another worker is never released by
// the old holder.
const unlockScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`

// renewScript extends the TTL only while the token still matches.
const renewScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	end
	return 0
`

// Lock is a held distributed lock. Workers hold one per provider for the
// lifetime of a job, renewing it periodically so a stalled job cannot be
// double-processed while the worker is still alive.
type Lock struct {
	r     *Redis
	key   string
	token string
	ttl   time.Duration
}

// TryLock attempts to acquire a distributed lock identified by key using the
// Redis SET NX EX pattern. If the lock is already held, ErrLocked is returned.
// The caller must Release the returned lock (typically via defer).
func TryLock(ctx context.Context, r *Redis, key string, ttl time.Duration) (*Lock, error) {
	token := randomToken()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &Lock{r: r, key: key, token: token, ttl: ttl}, nil
}

// Renew extends the lock's TTL. Returns false if the lock was lost
// (expired and possibly taken by another worker).
func (l *Lock) Renew(ctx context.Context) (bool, error) {
	n, err := l.r.client.Eval(ctx, renewScript, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("renew %s: %w", l.key, err)
	}
	return n == 1, nil
}

// Release releases the lock. A background context is used so release works
// even when the job's context is already cancelled.
func (l *Lock) Release() {
	_ = l.r.client.Eval(context.Background(), unlockScript, []string{l.key}, l.token).Err()
}

// KeepAlive renews the lock every interval until ctx is cancelled.
// Run it in its own goroutine; it returns when ctx ends or the lock is lost.
func (l *Lock) KeepAlive(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ok, err := l.Renew(ctx)
			if err != nil || !ok {
				return
			}
		}
	}
}

func randomToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
