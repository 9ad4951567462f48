// Package worker drains the job queue and executes sync runs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/voyagen/streamvault/internal/metrics"
	"github.com/voyagen/streamvault/internal/models"
	"github.com/voyagen/streamvault/internal/queue"
	"github.com/voyagen/streamvault/internal/syncer"
)

const (
	dequeueTimeout = 5 * time.Second
	promoteEvery   = time.Second

	// providerLockTTL must outlive any realistic sync run; KeepAlive renews
	// it far more often so a crashed worker frees the provider quickly.
	providerLockTTL  = 10 * time.Minute
	lockRenewEvery   = 15 * time.Second
	lockedRetryDelay = 5 * time.Second
)

// Pool runs a fixed number of workers against the shared queue. Each job
// takes a per-provider lock so two syncs never interleave writes for the
// same provider, even across processes.
type Pool struct {
	queue       *queue.Queue
	redis       *queue.Redis
	orch        *syncer.Orchestrator
	concurrency int
	log         *logrus.Logger
}

func NewPool(q *queue.Queue, r *queue.Redis, orch *syncer.Orchestrator, concurrency int, log *logrus.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = 2
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pool{queue: q, redis: r, orch: orch, concurrency: concurrency, log: log}
}

// Run blocks until ctx is cancelled and every worker has drained its
// current job.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.promoteLoop(ctx)
	}()

	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.workLoop(ctx, n)
		}(i)
	}
	wg.Wait()
}

// promoteLoop moves delayed jobs whose backoff has elapsed back onto the
// pending lists.
func (p *Pool) promoteLoop(ctx context.Context) {
	t := time.NewTicker(promoteEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := p.queue.PromoteDue(ctx)
			if err != nil && ctx.Err() == nil {
				p.log.WithError(err).Warn("promote delayed jobs")
			}
			if n > 0 {
				p.log.WithField("count", n).Debug("promoted delayed jobs")
			}
		}
	}
}

func (p *Pool) workLoop(ctx context.Context, n int) {
	log := p.log.WithField("worker", n)
	for ctx.Err() == nil {
		job, err := p.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Error("dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}
		p.process(ctx, log, job)
	}
}

func (p *Pool) process(ctx context.Context, log *logrus.Entry, job *models.Job) {
	log = log.WithFields(logrus.Fields{
		"job":      job.ID,
		"kind":     job.Kind,
		"provider": job.ProviderID,
		"attempt":  job.AttemptsMade,
	})

	lock, err := queue.TryLock(ctx, p.redis, queue.ProviderLockKey(job.ProviderID), providerLockTTL)
	if errors.Is(err, queue.ErrLocked) {
		log.Debug("provider busy, requeueing")
		if err := p.queue.Requeue(ctx, job, lockedRetryDelay); err != nil {
			log.WithError(err).Error("requeue failed")
		}
		return
	}
	if err != nil {
		log.WithError(err).Error("provider lock failed")
		p.settle(ctx, log, job, fmt.Errorf("acquire provider lock: %w", err))
		return
	}
	defer lock.Release()

	renewCtx, cancelRenew := context.WithCancel(ctx)
	defer cancelRenew()
	go lock.KeepAlive(renewCtx, lockRenewEvery)

	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()
	start := time.Now()
	log.Info("job started")

	result, err := p.run(ctx, job)
	metrics.JobDuration.WithLabelValues(string(job.Kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		p.settle(ctx, log, job, err)
		return
	}
	if err := p.queue.Complete(ctx, job, result); err != nil {
		log.WithError(err).Error("mark job completed")
		return
	}
	metrics.JobsProcessed.WithLabelValues(string(job.Kind), "completed").Inc()
	log.WithField("duration", time.Since(start).Round(time.Millisecond)).Info("job completed")
}

// run executes the job body with panic containment so one bad catalog can
// never take a worker down.
func (p *Pool) run(ctx context.Context, job *models.Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	progress := func(pct int, status string) {
		if uerr := p.queue.UpdateProgress(ctx, job.ID, pct, status); uerr != nil && ctx.Err() == nil {
			p.log.WithError(uerr).WithField("job", job.ID).Debug("progress update failed")
		}
	}

	if kind, ok := job.Kind.StreamKind(); ok {
		res, err := p.orch.RunStreamSync(ctx, job.ProviderID, kind, progress)
		if err != nil {
			return nil, err
		}
		return res, nil
	}

	res, err := p.orch.RunCategorySync(ctx, job.ProviderID, progress)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// settle records a failure, scheduling a retry unless attempts ran out.
func (p *Pool) settle(ctx context.Context, log *logrus.Entry, job *models.Job, jobErr error) {
	delay, terminal, err := p.queue.Fail(ctx, job, jobErr)
	if err != nil {
		log.WithError(err).Error("mark job failed")
		return
	}
	if terminal {
		metrics.JobsProcessed.WithLabelValues(string(job.Kind), "failed").Inc()
		log.WithError(jobErr).Error("job failed permanently")
		return
	}
	metrics.JobsProcessed.WithLabelValues(string(job.Kind), "retried").Inc()
	log.WithError(jobErr).WithField("retry_in", delay).Warn("job failed, retrying")
}
