package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyagen/streamvault/internal/models"
	"github.com/voyagen/streamvault/internal/store"
)

// fakeStore is an in-memory store.Store for reconciler and orchestrator
// tests. Categories are keyed the same way the real unique index is.
type fakeStore struct {
	providers  map[int64]*models.Provider
	categories map[string]*models.Category
	streams    map[string]models.StreamRecord
	bulkCalls  []int // batch sizes seen by BulkUpsertStreams

	bulkErr    error  // returned by BulkUpsertStreams when set
	rejectName string // stream name rejected inside a bulk batch
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		providers:  map[int64]*models.Provider{},
		categories: map[string]*models.Category{},
		streams:    map[string]models.StreamRecord{},
	}
}

func catKey(categoryID string, providerID int64, kind models.ContentKind) string {
	return fmt.Sprintf("%s/%d/%s", categoryID, providerID, kind)
}

func (f *fakeStore) GetProvider(_ context.Context, id int64) (*models.Provider, error) {
	p, ok := f.providers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) ListProviders(context.Context, bool) ([]models.Provider, error) {
	out := make([]models.Provider, 0, len(f.providers))
	for _, p := range f.providers {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeStore) CreateProvider(_ context.Context, p *models.Provider) (int64, error) {
	id := int64(len(f.providers) + 1)
	f.providers[id] = p
	return id, nil
}

func (f *fakeStore) UpdateProvider(context.Context, int64, store.ProviderUpdate) error { return nil }
func (f *fakeStore) DeleteProvider(context.Context, int64) error                      { return nil }

func (f *fakeStore) FindCategory(_ context.Context, categoryID string, providerID int64, kind models.ContentKind) (*models.Category, error) {
	c, ok := f.categories[catKey(categoryID, providerID, kind)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) InsertCategory(_ context.Context, c *models.Category) error {
	key := catKey(c.CategoryID, c.ProviderID, c.CategoryType)
	if _, ok := f.categories[key]; ok {
		return errors.New("duplicate key")
	}
	cp := *c
	f.categories[key] = &cp
	return nil
}

func (f *fakeStore) UpdateCategoryName(_ context.Context, categoryID string, providerID int64, kind models.ContentKind, name string) error {
	c, ok := f.categories[catKey(categoryID, providerID, kind)]
	if !ok {
		return store.ErrNotFound
	}
	c.CategoryName = name
	return nil
}

func (f *fakeStore) ListCategories(context.Context, store.CategoryFilter) ([]models.Category, error) {
	return nil, nil
}

func (f *fakeStore) DeleteCategory(context.Context, int64) error { return nil }

func (f *fakeStore) BulkUpsertStreams(_ context.Context, kind models.ContentKind, records []models.StreamRecord) (store.BulkResult, error) {
	if f.bulkErr != nil {
		return store.BulkResult{}, f.bulkErr
	}
	f.bulkCalls = append(f.bulkCalls, len(records))
	res := store.BulkResult{}
	for _, r := range records {
		if f.rejectName != "" && r.Name == f.rejectName {
			res.Rejected++
			continue
		}
		f.streams[fmt.Sprintf("%s/%d/%d", kind, r.ProviderID, r.StreamID)] = r
		res.Applied++
	}
	return res, nil
}

func (f *fakeStore) ListStreams(context.Context, models.ContentKind, store.StreamFilter) ([]models.StreamRecord, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) CountStreams(context.Context, models.ContentKind, int64) (int, error) {
	return len(f.streams), nil
}

func rawCategory(id, name string) map[string]any {
	return map[string]any{"category_id": id, "category_name": name}
}

func TestReconcileCategoriesCreateUpdateUnchanged(t *testing.T) {
	fs := newFakeStore()
	rec := NewReconciler(fs, 0, nil)
	ctx := context.Background()

	raws := []map[string]any{
		rawCategory("1", "News"),
		rawCategory("2", "Sports"),
		rawCategory("bad", "Broken"),
	}
	stats, err := rec.ReconcileCategories(ctx, raws, 7, models.KindLive, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Created)
	assert.Equal(t, 1, stats.Invalid)
	assert.Equal(t, 3, stats.Total)

	// Second run: one rename, one identical.
	raws = []map[string]any{
		rawCategory("1", "World News"),
		rawCategory("2", "Sports"),
	}
	stats, err = rec.ReconcileCategories(ctx, raws, 7, models.KindLive, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Created)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 1, stats.Unchanged)

	got, err := fs.FindCategory(ctx, "0001", 7, models.KindLive)
	require.NoError(t, err)
	assert.Equal(t, "World News", got.CategoryName)
}

func TestReconcileCategoriesKindsAreIndependent(t *testing.T) {
	fs := newFakeStore()
	rec := NewReconciler(fs, 0, nil)
	ctx := context.Background()

	raws := []map[string]any{rawCategory("1", "Top")}
	_, err := rec.ReconcileCategories(ctx, raws, 7, models.KindLive, nil)
	require.NoError(t, err)

	// Same id under a different kind is a fresh row, not an update.
	stats, err := rec.ReconcileCategories(ctx, raws, 7, models.KindVOD, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)
}

func TestReconcileStreamsBatching(t *testing.T) {
	fs := newFakeStore()
	rec := NewReconciler(fs, 100, nil)

	raws := make([]map[string]any, 0, 250)
	for i := 0; i < 250; i++ {
		raws = append(raws, map[string]any{
			"stream_id": float64(i + 1),
			"name":      fmt.Sprintf("ch %d", i+1),
		})
	}

	var calls []int
	stats, err := rec.ReconcileStreams(context.Background(), raws, 7, models.KindLive, func(batch, batches int) {
		calls = append(calls, batches)
	})
	require.NoError(t, err)
	assert.Equal(t, 250, stats.Total)
	assert.Equal(t, 250, stats.Created)
	assert.Equal(t, []int{100, 100, 50}, fs.bulkCalls)
	assert.Equal(t, []int{3, 3, 3}, calls)
}

func TestReconcileStreamsCountsInvalid(t *testing.T) {
	fs := newFakeStore()
	fs.rejectName = "poison"
	rec := NewReconciler(fs, 100, nil)

	raws := []map[string]any{
		{"stream_id": float64(1), "name": "ok"},
		{"stream_id": "abc", "name": "bad id"},
		{"stream_id": float64(2), "name": "poison"},
	}
	stats, err := rec.ReconcileStreams(context.Background(), raws, 7, models.KindLive, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 2, stats.Invalid) // one unparseable, one rejected by the store
}

func TestReconcileStreamsStoreErrorIsFatal(t *testing.T) {
	fs := newFakeStore()
	fs.bulkErr = errors.New("connection refused")
	rec := NewReconciler(fs, 100, nil)

	raws := []map[string]any{{"stream_id": float64(1), "name": "ok"}}
	_, err := rec.ReconcileStreams(context.Background(), raws, 7, models.KindLive, nil)
	assert.Error(t, err)
}

func TestReconcileStreamsIdempotent(t *testing.T) {
	fs := newFakeStore()
	rec := NewReconciler(fs, 100, nil)
	ctx := context.Background()

	raws := []map[string]any{{"stream_id": float64(1), "name": "ch"}}
	_, err := rec.ReconcileStreams(ctx, raws, 7, models.KindLive, nil)
	require.NoError(t, err)
	_, err = rec.ReconcileStreams(ctx, raws, 7, models.KindLive, nil)
	require.NoError(t, err)

	n, _ := fs.CountStreams(ctx, models.KindLive, 7)
	assert.Equal(t, 1, n)
}
