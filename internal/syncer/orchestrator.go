package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/voyagen/streamvault/internal/fetcher"
	"github.com/voyagen/streamvault/internal/metrics"
	"github.com/voyagen/streamvault/internal/models"
	"github.com/voyagen/streamvault/internal/store"
)

var (
	ErrProviderNotFound  = errors.New("provider not found")
	ErrProviderNotActive = errors.New("provider is not active")
)

// ProgressFunc receives advisory progress updates while a sync runs.
// pct is clamped to [0,100] by the consumer; status is a short human line.
type ProgressFunc func(pct int, status string)

// Orchestrator drives full sync runs for a provider: resolve credentials
// once, fetch each catalog, filter denylisted categories, hand the rest to
// the reconciler. Credentials live only on the stack for the duration of a
// run and are never persisted or logged.
type Orchestrator struct {
	store store.Store
	fetch *fetcher.Client
	rec   *Reconciler
	deny  Denylists
	log   *logrus.Logger
}

func NewOrchestrator(s store.Store, f *fetcher.Client, rec *Reconciler, deny Denylists, log *logrus.Logger) *Orchestrator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{store: s, fetch: f, rec: rec, deny: deny, log: log}
}

// activeProvider loads the provider and enforces that it may be synced.
// Nothing touches the network before this check passes.
func (o *Orchestrator) activeProvider(ctx context.Context, providerID int64) (*models.Provider, error) {
	p, err := o.store.GetProvider(ctx, providerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrProviderNotFound, providerID)
	}
	if err != nil {
		return nil, err
	}
	if p.Status != models.ProviderActive {
		return nil, fmt.Errorf("%w: %s (%s)", ErrProviderNotActive, p.Name, p.Status)
	}
	return p, nil
}

// catalogDNS picks the endpoint for catalog calls. The provider record's
// dns wins; the one echoed with the credentials is only a fallback.
func catalogDNS(p *models.Provider, creds fetcher.Credentials) string {
	if p.DNS != "" {
		return p.DNS
	}
	return creds.DNS
}

// RunCategorySync synchronizes category catalogs for all three content
// kinds concurrently. A failing kind records its error in the result and
// never disturbs the other kinds; the run as a whole still completes.
func (o *Orchestrator) RunCategorySync(ctx context.Context, providerID int64, progress ProgressFunc) (*models.CategorySyncResult, error) {
	start := time.Now()

	provider, err := o.activeProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	creds, err := o.fetch.ResolveCredentials(ctx, provider.APIEndpoint)
	if err != nil {
		return nil, err
	}

	dns := catalogDNS(provider, creds)
	result := &models.CategorySyncResult{
		Provider: models.ProviderRef{ID: provider.ID, Name: provider.Name},
	}

	var mu sync.Mutex
	report := func(pct int, status string) {
		if progress == nil {
			return
		}
		mu.Lock()
		progress(pct, status)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i, kind := range models.Kinds {
		wg.Add(1)
		go func(slot int, kind models.ContentKind) {
			defer wg.Done()
			base := slot * 33

			stats := result.Stats(kind)
			report(base, fmt.Sprintf("Fetching %s categories", kind))

			raws, err := o.fetch.FetchCatalog(ctx, dns, creds.Username, creds.Password, kind.CategoryAction())
			if err != nil {
				metrics.FetchErrors.WithLabelValues(kind.CategoryAction()).Inc()
				stats.Error = err.Error()
				o.log.WithError(err).WithFields(logrus.Fields{
					"provider": provider.Name,
					"kind":     kind,
				}).Error("category fetch failed")
				return
			}

			kept, dropped := FilterExcluded(raws, o.deny.For(kind))
			if dropped > 0 {
				o.log.WithFields(logrus.Fields{
					"provider": provider.Name,
					"kind":     kind,
					"dropped":  dropped,
				}).Debug("categories excluded by denylist")
			}

			s, err := o.rec.ReconcileCategories(ctx, kept, provider.ID, kind, func(batch, batches int) {
				pct := base + batch*33/batches
				report(pct, fmt.Sprintf("Processing %s batch %d/%d", kind, batch, batches))
			})
			*stats = s
			if err != nil {
				stats.Error = err.Error()
				o.log.WithError(err).WithFields(logrus.Fields{
					"provider": provider.Name,
					"kind":     kind,
				}).Error("category reconcile failed")
			}
		}(i, kind)
	}
	wg.Wait()

	result.Aggregate()
	result.SyncDuration = fmt.Sprintf("%.2fs", time.Since(start).Seconds())
	for _, kind := range models.Kinds {
		s := result.Stats(kind)
		metrics.ObserveStats(string(kind), s.Created, s.Updated, s.Unchanged, s.Invalid)
	}
	report(100, "Completed")

	o.log.WithFields(logrus.Fields{
		"provider": provider.Name,
		"created":  result.Summary.TotalCreated,
		"updated":  result.Summary.TotalUpdated,
		"duration": result.SyncDuration,
	}).Info("category sync finished")
	return result, nil
}

// RunStreamSync synchronizes the stream catalog for a single content kind.
// Unlike the category run there is no fan-out and any failure is fatal to
// the job, leaving retries to the queue.
func (o *Orchestrator) RunStreamSync(ctx context.Context, providerID int64, kind models.ContentKind, progress ProgressFunc) (*models.StreamSyncResult, error) {
	provider, err := o.activeProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	creds, err := o.fetch.ResolveCredentials(ctx, provider.APIEndpoint)
	if err != nil {
		return nil, err
	}

	report := func(pct int, status string) {
		if progress != nil {
			progress(pct, status)
		}
	}

	report(5, fmt.Sprintf("Fetching %s streams", kind))
	raws, err := o.fetch.FetchCatalog(ctx, catalogDNS(provider, creds), creds.Username, creds.Password, kind.StreamAction())
	if err != nil {
		metrics.FetchErrors.WithLabelValues(kind.StreamAction()).Inc()
		return nil, err
	}

	kept, dropped := FilterExcluded(raws, o.deny.For(kind))
	if dropped > 0 {
		o.log.WithFields(logrus.Fields{
			"provider": provider.Name,
			"kind":     kind,
			"dropped":  dropped,
		}).Debug("streams excluded by denylist")
	}

	stats, err := o.rec.ReconcileStreams(ctx, kept, provider.ID, kind, func(batch, batches int) {
		pct := 10 + batch*90/batches
		report(pct, fmt.Sprintf("Processing %s batch %d/%d", kind, batch, batches))
	})
	if err != nil {
		return nil, err
	}
	metrics.ObserveStats(string(kind), stats.Created, stats.Updated, stats.Unchanged, stats.Invalid)

	o.log.WithFields(logrus.Fields{
		"provider": provider.Name,
		"kind":     kind,
		"total":    stats.Total,
		"invalid":  stats.Invalid,
	}).Info("stream sync finished")
	return &models.StreamSyncResult{Success: true, Total: stats.Total}, nil
}
