package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/voyagen/streamvault/internal/models"
	"github.com/voyagen/streamvault/internal/store"
)

// DefaultBatchSize bounds memory and single-operation latency for
// reconciliation writes.
const DefaultBatchSize = 100

// Reconciler partitions normalized records into fixed-size batches and
// performs idempotent upserts against the store. It issues no network calls.
//
// The two paths deliberately differ: categories read-then-write per record
// so an unchanged row costs no write, streams bulk-write unconditionally
// for throughput. Both behaviors are load-bearing; do not unify them.
type Reconciler struct {
	store     store.Store
	batchSize int
	log       *logrus.Logger
}

// NewReconciler creates a Reconciler. batchSize <= 0 selects DefaultBatchSize.
func NewReconciler(s store.Store, batchSize int, log *logrus.Logger) *Reconciler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reconciler{store: s, batchSize: batchSize, log: log}
}

// BatchProgress reports batch completion to an observer (advisory only).
type BatchProgress func(batch, batches int)

// ReconcileCategories upserts raw category records for one provider and
// kind. Per record: not found -> insert (created); found with a different
// name -> update in place (updated); identical -> no write (unchanged).
// Records failing the identifier check, and rows the store rejects, are
// counted invalid and never abort the run. Only a failing lookup is fatal,
// since that means the store itself is unhealthy.
func (r *Reconciler) ReconcileCategories(ctx context.Context, raws []map[string]any, providerID int64, kind models.ContentKind, progress BatchProgress) (models.KindStats, error) {
	stats := models.KindStats{Total: len(raws)}
	batches := (len(raws) + r.batchSize - 1) / r.batchSize

	for b := 0; b < batches; b++ {
		end := (b + 1) * r.batchSize
		if end > len(raws) {
			end = len(raws)
		}
		for _, raw := range raws[b*r.batchSize : end] {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			cat, ok := NormalizeCategory(raw, providerID, kind)
			if !ok {
				stats.Invalid++
				continue
			}
			existing, err := r.store.FindCategory(ctx, cat.CategoryID, providerID, kind)
			switch {
			case errors.Is(err, store.ErrNotFound):
				if err := r.store.InsertCategory(ctx, cat); err != nil {
					// Usually a duplicate-key race with a concurrent sync.
					r.log.WithError(err).WithField("category_id", cat.CategoryID).
						Warn("category insert rejected")
					stats.Invalid++
					continue
				}
				stats.Created++
			case err != nil:
				return stats, fmt.Errorf("category lookup: %w", err)
			case existing.CategoryName != cat.CategoryName:
				if err := r.store.UpdateCategoryName(ctx, cat.CategoryID, providerID, kind, cat.CategoryName); err != nil {
					r.log.WithError(err).WithField("category_id", cat.CategoryID).
						Warn("category update rejected")
					stats.Invalid++
					continue
				}
				stats.Updated++
			default:
				stats.Unchanged++
			}
		}
		if progress != nil {
			progress(b+1, batches)
		}
	}
	return stats, nil
}

// ReconcileStreams normalizes and bulk-upserts raw stream records for one
// provider and kind. All mutable fields are overwritten whether creating or
// refreshing; status is forced ACTIVE. Total counts the upsert operations
// issued; rows rejected inside a batch are counted invalid while the rest
// of the batch stays applied. Only store unreachability is returned as an
// error.
func (r *Reconciler) ReconcileStreams(ctx context.Context, raws []map[string]any, providerID int64, kind models.ContentKind, progress BatchProgress) (models.KindStats, error) {
	stats := models.KindStats{}

	records := make([]models.StreamRecord, 0, len(raws))
	for _, raw := range raws {
		rec, ok := NormalizeStream(raw, providerID, kind)
		if !ok {
			stats.Invalid++
			continue
		}
		records = append(records, *rec)
	}
	stats.Total = len(records)

	batches := (len(records) + r.batchSize - 1) / r.batchSize
	for b := 0; b < batches; b++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		end := (b + 1) * r.batchSize
		if end > len(records) {
			end = len(records)
		}
		res, err := r.store.BulkUpsertStreams(ctx, kind, records[b*r.batchSize:end])
		stats.Created += res.Applied
		stats.Invalid += res.Rejected
		if err != nil {
			return stats, fmt.Errorf("bulk upsert: %w", err)
		}
		if progress != nil {
			progress(b+1, batches)
		}
	}
	return stats, nil
}
