// Package scheduler enqueues recurring sync jobs on a cron expression.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/voyagen/streamvault/internal/models"
	"github.com/voyagen/streamvault/internal/queue"
	"github.com/voyagen/streamvault/internal/store"
)

// Scheduler fires a full sync (categories plus all three stream kinds) for
// every active provider on the configured schedule. Overlap with an already
// running sync is harmless: the per-provider lock makes late jobs wait.
type Scheduler struct {
	cron  *cron.Cron
	store store.Store
	queue *queue.Queue
	log   *logrus.Logger
}

func New(s store.Store, q *queue.Queue, log *logrus.Logger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{cron: cron.New(), store: s, queue: q, log: log}
}

// Start registers the schedule and launches the cron loop. An empty spec
// disables scheduled syncs.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	if spec == "" {
		s.log.Info("scheduled sync disabled")
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() { s.enqueueAll(ctx) })
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.WithField("schedule", spec).Info("scheduled sync enabled")
	return nil
}

// Stop halts the cron loop and waits for a running enqueue pass to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) enqueueAll(ctx context.Context) {
	providers, err := s.store.ListProviders(ctx, true)
	if err != nil {
		s.log.WithError(err).Error("scheduled sync: list providers")
		return
	}
	for _, p := range providers {
		for _, kind := range models.JobKinds {
			job, err := s.queue.Enqueue(ctx, kind, p.ID)
			if err != nil {
				s.log.WithError(err).WithFields(logrus.Fields{
					"provider": p.Name,
					"kind":     kind,
				}).Error("scheduled sync: enqueue")
				continue
			}
			s.log.WithFields(logrus.Fields{
				"provider": p.Name,
				"kind":     kind,
				"job":      job.ID,
			}).Debug("scheduled sync: enqueued")
		}
	}
}
