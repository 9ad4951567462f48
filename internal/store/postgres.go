package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/voyagen/streamvault/internal/models"
)

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// --- providers ---

const providerCols = `id, owner, name, api_endpoint, dns, status, max_concurrent_users, expiry_hours, created_at, updated_at`

func scanProvider(row pgx.Row) (*models.Provider, error) {
	var pr models.Provider
	err := row.Scan(&pr.ID, &pr.Owner, &pr.Name, &pr.APIEndpoint, &pr.DNS, &pr.Status,
		&pr.MaxConcurrentUsers, &pr.ExpiryHours, &pr.CreatedAt, &pr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &pr, nil
}

// GetProvider returns a provider by id, or ErrNotFound.
func (p *Postgres) GetProvider(ctx context.Context, id int64) (*models.Provider, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+providerCols+` FROM providers WHERE id = $1`, id)
	pr, err := scanProvider(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("GetProvider: %w", err)
	}
	return pr, err
}

// ListProviders returns all providers, optionally only Active ones.
func (p *Postgres) ListProviders(ctx context.Context, onlyActive bool) ([]models.Provider, error) {
	q := `SELECT ` + providerCols + ` FROM providers`
	if onlyActive {
		q += ` WHERE status = 'Active'`
	}
	q += ` ORDER BY id`
	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("ListProviders: %w", err)
	}
	defer rows.Close()
	var out []models.Provider
	for rows.Next() {
		pr, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("ListProviders scan: %w", err)
		}
		out = append(out, *pr)
	}
	return out, rows.Err()
}

// CreateProvider inserts a provider and returns its id.
func (p *Postgres) CreateProvider(ctx context.Context, pr *models.Provider) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO providers (owner, name, api_endpoint, dns, status, max_concurrent_users, expiry_hours)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		pr.Owner, pr.Name, pr.APIEndpoint, pr.DNS, pr.Status, pr.MaxConcurrentUsers, pr.ExpiryHours,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("CreateProvider: %w", err)
	}
	return id, nil
}

// UpdateProvider updates mutable provider fields.
func (p *Postgres) UpdateProvider(ctx context.Context, id int64, fields ProviderUpdate) error {
	sets := []string{}
	args := []any{}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if fields.Name != nil {
		add("name", *fields.Name)
	}
	if fields.APIEndpoint != nil {
		add("api_endpoint", *fields.APIEndpoint)
	}
	if fields.DNS != nil {
		add("dns", *fields.DNS)
	}
	if fields.Status != nil {
		add("status", *fields.Status)
	}
	if fields.MaxConcurrentUsers != nil {
		add("max_concurrent_users", *fields.MaxConcurrentUsers)
	}
	if fields.ExpiryHours != nil {
		add("expiry_hours", *fields.ExpiryHours)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)
	q := fmt.Sprintf(`UPDATE providers SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	tag, err := p.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("UpdateProvider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProvider deletes a provider; categories and streams cascade.
func (p *Postgres) DeleteProvider(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM providers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteProvider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- categories ---

const categoryCols = `id, category_id, category_name, parent_id, provider_id, category_type, created_at, updated_at`

// FindCategory looks up a category by its unique key, or ErrNotFound.
func (p *Postgres) FindCategory(ctx context.Context, categoryID string, providerID int64, kind models.ContentKind) (*models.Category, error) {
	var c models.Category
	err := p.pool.QueryRow(ctx,
		`SELECT `+categoryCols+` FROM categories
		 WHERE category_id = $1 AND provider_id = $2 AND category_type = $3`,
		categoryID, providerID, string(kind),
	).Scan(&c.ID, &c.CategoryID, &c.CategoryName, &c.ParentID, &c.ProviderID, &c.CategoryType, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("FindCategory: %w", err)
	}
	return &c, nil
}

// InsertCategory inserts a new category row.
func (p *Postgres) InsertCategory(ctx context.Context, c *models.Category) error {
	err := p.pool.QueryRow(ctx,
		`INSERT INTO categories (category_id, category_name, parent_id, provider_id, category_type)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		c.CategoryID, c.CategoryName, c.ParentID, c.ProviderID, string(c.CategoryType),
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("InsertCategory: %w", err)
	}
	return nil
}

// UpdateCategoryName updates category_name in place for the unique key.
func (p *Postgres) UpdateCategoryName(ctx context.Context, categoryID string, providerID int64, kind models.ContentKind, name string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE categories SET category_name = $1, updated_at = NOW()
		 WHERE category_id = $2 AND provider_id = $3 AND category_type = $4`,
		name, categoryID, providerID, string(kind),
	)
	if err != nil {
		return fmt.Errorf("UpdateCategoryName: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCategories returns categories matching the filter.
func (p *Postgres) ListCategories(ctx context.Context, filter CategoryFilter) ([]models.Category, error) {
	q := `SELECT ` + categoryCols + ` FROM categories`
	var conds []string
	var args []any
	if filter.ProviderID != nil {
		args = append(args, *filter.ProviderID)
		conds = append(conds, fmt.Sprintf("provider_id = $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		conds = append(conds, fmt.Sprintf("category_type = $%d", len(args)))
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY category_id"
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: %w", err)
	}
	defer rows.Close()
	var out []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.CategoryID, &c.CategoryName, &c.ParentID, &c.ProviderID, &c.CategoryType, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ListCategories scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCategory deletes a category, refusing while child categories exist.
func (p *Postgres) DeleteCategory(ctx context.Context, id int64) error {
	var categoryID string
	err := p.pool.QueryRow(ctx, `SELECT category_id FROM categories WHERE id = $1`, id).Scan(&categoryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("DeleteCategory lookup: %w", err)
	}
	// parent_id holds a single digit; a child points at the first digit of
	// its parent's id with the leading zeros stripped.
	var children int
	err = p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM categories WHERE parent_id = ltrim($1, '0')`,
		categoryID,
	).Scan(&children)
	if err != nil {
		return fmt.Errorf("DeleteCategory children: %w", err)
	}
	if children > 0 {
		return ErrHasChildren
	}
	_, err = p.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("DeleteCategory: %w", err)
	}
	return nil
}

// --- streams ---

// streamTable maps a content kind to its table and identifier column.
func streamTable(kind models.ContentKind) (table, idCol string) {
	switch kind {
	case models.KindVOD:
		return "vod_streams", "stream_id"
	case models.KindSeries:
		return "series_streams", "series_id"
	default:
		return "live_streams", "stream_id"
	}
}

// BulkUpsertStreams writes a batch in a single multi-row INSERT ... ON
// CONFLICT DO UPDATE. If the statement fails for a reason other than
// connectivity, the batch is replayed row by row so valid rows still apply
// and rejected rows are counted, the same partial-failure behavior as an
// unordered bulk write. The feature flag is never written.
func (p *Postgres) BulkUpsertStreams(ctx context.Context, kind models.ContentKind, records []models.StreamRecord) (BulkResult, error) {
	if len(records) == 0 {
		return BulkResult{}, nil
	}
	table, idCol := streamTable(kind)

	const cols = 7
	placeholders := make([]string, 0, len(records))
	args := make([]any, 0, len(records)*cols)
	for _, rec := range records {
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			// Unmarshalable metadata cannot happen for JSON-decoded input,
			// but count it as a rejected row rather than failing the batch.
			continue
		}
		base := len(placeholders) * cols
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7))
		args = append(args, rec.ProviderID, rec.StreamID, rec.CategoryID, rec.CategoryIDs, rec.Name, rec.Status, meta)
	}
	rejected := len(records) - len(placeholders)

	q := fmt.Sprintf(
		`INSERT INTO %s (provider_id, %s, category_id, category_ids, name, status, metadata)
		 VALUES %s
		 ON CONFLICT (provider_id, %s) DO UPDATE SET
		   category_id = EXCLUDED.category_id,
		   category_ids = EXCLUDED.category_ids,
		   name = EXCLUDED.name,
		   status = EXCLUDED.status,
		   metadata = EXCLUDED.metadata,
		   updated_at = NOW()`,
		table, idCol, strings.Join(placeholders, ", "), idCol)

	if _, err := p.pool.Exec(ctx, q, args...); err != nil {
		if !isRowRejection(err) {
			return BulkResult{Rejected: rejected}, fmt.Errorf("BulkUpsertStreams: %w", err)
		}
		// Statement-level rejection (constraint/type violation somewhere in
		// the batch): replay per row to salvage the valid ones.
		return p.upsertRows(ctx, kind, records)
	}
	return BulkResult{Applied: len(placeholders), Rejected: rejected}, nil
}

// upsertRows writes records one at a time, counting per-row rejections.
func (p *Postgres) upsertRows(ctx context.Context, kind models.ContentKind, records []models.StreamRecord) (BulkResult, error) {
	table, idCol := streamTable(kind)
	q := fmt.Sprintf(
		`INSERT INTO %s (provider_id, %s, category_id, category_ids, name, status, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (provider_id, %s) DO UPDATE SET
		   category_id = EXCLUDED.category_id,
		   category_ids = EXCLUDED.category_ids,
		   name = EXCLUDED.name,
		   status = EXCLUDED.status,
		   metadata = EXCLUDED.metadata,
		   updated_at = NOW()`,
		table, idCol, idCol)

	var res BulkResult
	for _, rec := range records {
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			res.Rejected++
			continue
		}
		if _, err := p.pool.Exec(ctx, q, rec.ProviderID, rec.StreamID, rec.CategoryID, rec.CategoryIDs, rec.Name, rec.Status, meta); err != nil {
			if !isRowRejection(err) {
				return res, fmt.Errorf("upsert row: %w", err)
			}
			res.Rejected++
			continue
		}
		res.Applied++
	}
	return res, nil
}

// isRowRejection reports whether err is a statement rejection reported by
// the server, recognizable by its SQLSTATE. Callers count those as invalid
// rows. Anything else (dial failures, DNS errors, timeouts, a closed pool)
// means the store is unreachable and must fail the job so the queue can
// retry it with backoff.
func isRowRejection(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}

const streamColsFmt = `id, provider_id, %s, category_id, category_ids, name, status, feature, metadata, created_at, updated_at`

// ListStreams returns stream records matching the filter and the total count.
func (p *Postgres) ListStreams(ctx context.Context, kind models.ContentKind, filter StreamFilter) ([]models.StreamRecord, int, error) {
	table, idCol := streamTable(kind)

	var conds []string
	var args []any
	if filter.ProviderID != nil {
		args = append(args, *filter.ProviderID)
		conds = append(conds, fmt.Sprintf("provider_id = $%d", len(args)))
	}
	if filter.CategoryID != "" {
		args = append(args, filter.CategoryID)
		conds = append(conds, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Feature != nil {
		args = append(args, *filter.Feature)
		conds = append(conds, fmt.Sprintf("feature = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListStreams count: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	args = append(args, limit, filter.Offset)
	q := fmt.Sprintf(`SELECT `+streamColsFmt+` FROM %s%s ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`,
		idCol, table, where, len(args)-1, len(args))

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListStreams: %w", err)
	}
	defer rows.Close()

	var out []models.StreamRecord
	for rows.Next() {
		var rec models.StreamRecord
		var meta []byte
		if err := rows.Scan(&rec.ID, &rec.ProviderID, &rec.StreamID, &rec.CategoryID, &rec.CategoryIDs,
			&rec.Name, &rec.Status, &rec.Feature, &meta, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("ListStreams scan: %w", err)
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &rec.Metadata)
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

// CountStreams returns the number of stream rows for a provider.
func (p *Postgres) CountStreams(ctx context.Context, kind models.ContentKind, providerID int64) (int, error) {
	table, _ := streamTable(kind)
	var n int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+` WHERE provider_id = $1`, providerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountStreams: %w", err)
	}
	return n, nil
}
