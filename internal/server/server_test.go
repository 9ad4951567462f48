package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyagen/streamvault/internal/config"
	"github.com/voyagen/streamvault/internal/models"
	"github.com/voyagen/streamvault/internal/store"
)

// memStore implements store.Store over maps for handler tests.
type memStore struct {
	providers  map[int64]models.Provider
	nextID     int64
	categories []models.Category
	streams    []models.StreamRecord

	lastStreamFilter store.StreamFilter
}

func newMemStore() *memStore {
	return &memStore{providers: map[int64]models.Provider{}, nextID: 1}
}

func (m *memStore) GetProvider(_ context.Context, id int64) (*models.Provider, error) {
	p, ok := m.providers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (m *memStore) ListProviders(_ context.Context, onlyActive bool) ([]models.Provider, error) {
	var out []models.Provider
	for _, p := range m.providers {
		if onlyActive && p.Status != models.ProviderActive {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) CreateProvider(_ context.Context, p *models.Provider) (int64, error) {
	id := m.nextID
	m.nextID++
	p.ID = id
	m.providers[id] = *p
	return id, nil
}

func (m *memStore) UpdateProvider(_ context.Context, id int64, fields store.ProviderUpdate) error {
	p, ok := m.providers[id]
	if !ok {
		return store.ErrNotFound
	}
	if fields.Name != nil {
		p.Name = *fields.Name
	}
	if fields.Status != nil {
		p.Status = *fields.Status
	}
	m.providers[id] = p
	return nil
}

func (m *memStore) DeleteProvider(_ context.Context, id int64) error {
	if _, ok := m.providers[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.providers, id)
	return nil
}

func (m *memStore) FindCategory(context.Context, string, int64, models.ContentKind) (*models.Category, error) {
	return nil, store.ErrNotFound
}
func (m *memStore) InsertCategory(context.Context, *models.Category) error { return nil }
func (m *memStore) UpdateCategoryName(context.Context, string, int64, models.ContentKind, string) error {
	return nil
}

func (m *memStore) ListCategories(_ context.Context, f store.CategoryFilter) ([]models.Category, error) {
	var out []models.Category
	for _, c := range m.categories {
		if f.ProviderID != nil && c.ProviderID != *f.ProviderID {
			continue
		}
		if f.Kind != "" && c.CategoryType != f.Kind {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *memStore) DeleteCategory(_ context.Context, id int64) error {
	if id == 99 {
		return store.ErrHasChildren
	}
	if id > int64(len(m.categories)) {
		return store.ErrNotFound
	}
	return nil
}

func (m *memStore) BulkUpsertStreams(context.Context, models.ContentKind, []models.StreamRecord) (store.BulkResult, error) {
	return store.BulkResult{}, nil
}

func (m *memStore) ListStreams(_ context.Context, _ models.ContentKind, f store.StreamFilter) ([]models.StreamRecord, int, error) {
	m.lastStreamFilter = f
	return m.streams, len(m.streams), nil
}

func (m *memStore) CountStreams(context.Context, models.ContentKind, int64) (int, error) {
	return len(m.streams), nil
}

func testServer(ms *memStore) *Server {
	return New(ms, nil, nil, &config.Config{ServerPort: "0"}, nil)
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	return rr
}

func TestProviderCRUD(t *testing.T) {
	ms := newMemStore()
	srv := testServer(ms)

	body := `{"owner":"ops","name":"acme","apiEndpoint":"http://panel.example/auth","dns":"http://panel.example"}`
	rr := doJSON(t, srv, http.MethodPost, "/api/providers", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created models.Provider
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, models.ProviderActive, created.Status, "status defaults to Active")

	rr = doJSON(t, srv, http.MethodGet, "/api/providers/1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, srv, http.MethodPatch, "/api/providers/1", `{"status":"Suspended"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var updated models.Provider
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
	assert.Equal(t, models.ProviderSuspended, updated.Status)

	rr = doJSON(t, srv, http.MethodDelete, "/api/providers/1", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, srv, http.MethodGet, "/api/providers/1", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateProviderValidation(t *testing.T) {
	srv := testServer(newMemStore())

	tests := []struct {
		name string
		body string
	}{
		{"missing owner", `{"name":"acme","apiEndpoint":"http://x","dns":"http://x"}`},
		{"missing endpoint", `{"owner":"ops","name":"acme","dns":"http://x"}`},
		{"bad endpoint scheme", `{"owner":"ops","name":"acme","apiEndpoint":"ftp://x","dns":"http://x"}`},
		{"bad status", `{"owner":"ops","name":"acme","apiEndpoint":"http://x","dns":"http://x","status":"Paused"}`},
		{"bad json", `{"owner":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, srv, http.MethodPost, "/api/providers", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)

			var apiErr APIError
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &apiErr))
			assert.Equal(t, http.StatusBadRequest, apiErr.Status)
			assert.NotEmpty(t, apiErr.Detail)
		})
	}
}

func TestEnqueueSyncUnknownProvider(t *testing.T) {
	srv := testServer(newMemStore())
	rr := doJSON(t, srv, http.MethodPost, "/api/sync/categories/42", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListStreamsValidation(t *testing.T) {
	ms := newMemStore()
	srv := testServer(ms)

	rr := doJSON(t, srv, http.MethodGet, "/api/streams/tv", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, srv, http.MethodGet, "/api/streams/live?provider_id=abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, srv, http.MethodGet, "/api/streams/live?feature=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListStreamsDefaultsAndClamping(t *testing.T) {
	ms := newMemStore()
	srv := testServer(ms)

	rr := doJSON(t, srv, http.MethodGet, "/api/streams/live", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 50, ms.lastStreamFilter.Limit)

	rr = doJSON(t, srv, http.MethodGet, "/api/streams/vod?limit=1000&offset=10", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 200, ms.lastStreamFilter.Limit)
	assert.Equal(t, 10, ms.lastStreamFilter.Offset)
}

func TestDeleteCategoryConflict(t *testing.T) {
	ms := newMemStore()
	ms.categories = append(ms.categories, models.Category{CategoryID: "0001"})
	srv := testServer(ms)

	rr := doJSON(t, srv, http.MethodDelete, "/api/categories/99", "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = doJSON(t, srv, http.MethodDelete, "/api/categories/1", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestListCategoriesFilter(t *testing.T) {
	ms := newMemStore()
	ms.categories = []models.Category{
		{CategoryID: "0001", ProviderID: 1, CategoryType: models.KindLive},
		{CategoryID: "0002", ProviderID: 1, CategoryType: models.KindVOD},
		{CategoryID: "0003", ProviderID: 2, CategoryType: models.KindLive},
	}
	srv := testServer(ms)

	rr := doJSON(t, srv, http.MethodGet, "/api/categories?provider_id=1&type=live", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var got []models.Category
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "0001", got[0].CategoryID)
}

func TestCORSPreflight(t *testing.T) {
	srv := testServer(newMemStore())
	req := httptest.NewRequest(http.MethodOptions, "/api/providers", nil)
	rr := httptest.NewRecorder()
	withCORS(srv).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
