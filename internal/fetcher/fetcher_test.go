package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "StreamVault/test", r.Header.Get("User-Agent"))
		w.Write([]byte(`{"username":"u1","password":"p1","dns":"http://cdn.example"}`))
	}))
	defer srv.Close()

	c := New(5*time.Second, "StreamVault/test")
	creds, err := c.ResolveCredentials(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "u1", creds.Username)
	assert.Equal(t, "p1", creds.Password)
	assert.Equal(t, "http://cdn.example", creds.DNS)
}

func TestResolveCredentialsMissingFields(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no password", `{"username":"u1"}`, "password"},
		{"no username", `{"password":"p1"}`, "username"},
		{"neither", `{}`, "username, password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(5*time.Second, "")
			_, err := c.ResolveCredentials(context.Background(), srv.URL)
			var credErr *CredentialError
			require.ErrorAs(t, err, &credErr)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestResolveCredentialsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(5*time.Second, "")
	_, err := c.ResolveCredentials(context.Background(), srv.URL)
	var credErr *CredentialError
	assert.ErrorAs(t, err, &credErr)
}

func TestFetchCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/player_api.php", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "u&1", q.Get("username"))
		assert.Equal(t, "p=1", q.Get("password"))
		assert.Equal(t, "get_live_categories", q.Get("action"))
		w.Write([]byte(`[{"category_id":"1","category_name":"News"}]`))
	}))
	defer srv.Close()

	c := New(5*time.Second, "")
	// Credentials with URL metacharacters must survive encoding.
	records, err := c.FetchCatalog(context.Background(), srv.URL+"/", "u&1", "p=1", "get_live_categories")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "News", records[0]["category_name"])
}

func TestFetchCatalogRejectsNonArray(t *testing.T) {
	// Panels signal auth failure with an object body and HTTP 200.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user_info":{"auth":0}}`))
	}))
	defer srv.Close()

	c := New(5*time.Second, "")
	_, err := c.FetchCatalog(context.Background(), srv.URL, "u", "p", "get_vod_streams")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "get_vod_streams", fetchErr.Action)
	assert.Contains(t, err.Error(), "expected JSON array")
}

func TestFetchCatalogHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(5*time.Second, "")
	_, err := c.FetchCatalog(context.Background(), srv.URL, "u", "p", "get_series")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestFetchCatalogEmptyArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(5*time.Second, "")
	records, err := c.FetchCatalog(context.Background(), srv.URL, "u", "p", "get_series")
	require.NoError(t, err)
	assert.Empty(t, records)
}
