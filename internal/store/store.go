package store

import (
	"context"
	"errors"

	"github.com/voyagen/streamvault/internal/models"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// ErrHasChildren is returned when deleting a category that still has child categories.
var ErrHasChildren = errors.New("category has child categories")

// Store defines persistence for providers, categories, stream records, and
// the read queries the API serves. The sync engine writes only through
// FindCategory/InsertCategory/UpdateCategoryName (category path) and
// BulkUpsertStreams (stream path).
type Store interface {
	// GetProvider returns a provider by id, or ErrNotFound.
	GetProvider(ctx context.Context, id int64) (*models.Provider, error)
	// ListProviders returns all providers, optionally only Active ones.
	ListProviders(ctx context.Context, onlyActive bool) ([]models.Provider, error)
	// CreateProvider inserts a provider and returns its id.
	CreateProvider(ctx context.Context, p *models.Provider) (int64, error)
	// UpdateProvider updates mutable provider fields.
	UpdateProvider(ctx context.Context, id int64, fields ProviderUpdate) error
	// DeleteProvider deletes a provider (categories/streams cascade).
	DeleteProvider(ctx context.Context, id int64) error

	// FindCategory looks up a category by its unique key
	// (category_id, provider, category_type). Returns ErrNotFound when absent.
	FindCategory(ctx context.Context, categoryID string, providerID int64, kind models.ContentKind) (*models.Category, error)
	// InsertCategory inserts a new category row.
	InsertCategory(ctx context.Context, c *models.Category) error
	// UpdateCategoryName updates category_name in place for the unique key.
	UpdateCategoryName(ctx context.Context, categoryID string, providerID int64, kind models.ContentKind, name string) error
	// ListCategories returns categories matching the filter.
	ListCategories(ctx context.Context, filter CategoryFilter) ([]models.Category, error)
	// DeleteCategory deletes a category; ErrHasChildren while children exist.
	DeleteCategory(ctx context.Context, id int64) error

	// BulkUpsertStreams writes a batch of stream records keyed by
	// (provider, stream_id). Partial failure does not abort the batch:
	// applied rows stay applied and rejected rows are counted. Only a store
	// connectivity problem is returned as an error.
	BulkUpsertStreams(ctx context.Context, kind models.ContentKind, records []models.StreamRecord) (BulkResult, error)
	// ListStreams returns stream records matching the filter plus the total
	// count before limit/offset.
	ListStreams(ctx context.Context, kind models.ContentKind, filter StreamFilter) ([]models.StreamRecord, int, error)
	// CountStreams returns the number of stream rows for a provider.
	CountStreams(ctx context.Context, kind models.ContentKind, providerID int64) (int, error)
}

// BulkResult reports the outcome of one bulk stream write.
type BulkResult struct {
	Applied  int
	Rejected int
}

// ProviderUpdate holds mutable fields for PATCH /providers/{id}.
// Pointer fields: nil = don't change, non-nil = set.
type ProviderUpdate struct {
	Name               *string
	APIEndpoint        *string
	DNS                *string
	Status             *string
	MaxConcurrentUsers *int
	ExpiryHours        *int
}

// CategoryFilter holds optional filters for listing categories.
type CategoryFilter struct {
	ProviderID *int64
	Kind       models.ContentKind // empty = all kinds
}

// StreamFilter holds optional filters for listing stream records.
type StreamFilter struct {
	ProviderID *int64
	CategoryID string
	Status     string
	Feature    *bool
	Search     string // case-insensitive substring match on name
	Limit      int    // default 50, max 200
	Offset     int
}
