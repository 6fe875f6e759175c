package hostapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(context.Background(), srv.URL+"/", "tok", zaptest.NewLogger(t))
	c.SetRetries(3)
	return c, srv
}

func TestDo_SendsCredentials(t *testing.T) {
	var auth, referer, query string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		referer = r.Header.Get("Referer")
		query = r.URL.Query().Get("q")
		_, _ = w.Write([]byte(`ok`))
	})

	body, err := c.Do(context.Background(), http.MethodGet, "/api/ping", map[string][]string{"q": {"1"}}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "ok", string(body))
	assert.Equal(t, "tok", auth)
	assert.Equal(t, srv.URL, referer)
	assert.Equal(t, "1", query)
	assert.Equal(t, srv.URL, c.Server())
	assert.Equal(t, srv.URL, c.Destination().Server)
}

func TestDo_MapsErrorJSON(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"forbidden","message":"token expired"}`))
	})

	_, err := c.Do(context.Background(), http.MethodGet, "/api/user", nil, nil, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "forbidden", apiErr.Code)
	assert.Equal(t, "token expired", apiErr.Message)
}

func TestDo_MessageDefaultsToEmpty(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Do(context.Background(), http.MethodGet, "/api/missing", nil, nil, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "not found", apiErr.Code)
	assert.Equal(t, "", apiErr.Message)
}

func TestDo_RetriesTransientErrors(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := c.Do(context.Background(), http.MethodGet, "/api/user", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestDo_DoesNotRetryPost(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Do(context.Background(), http.MethodPost, "/api/thing", nil, nil, []byte(`{}`))
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestUserAndFiles(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/user":
			_ = json.NewEncoder(w).Encode(User{ID: "u1", Username: "ana", StorageUsed: 42})
		case "/api/user/files":
			assert.Equal(t, "2", r.URL.Query().Get("page"))
			_ = json.NewEncoder(w).Encode(FileList{
				Files: []File{{ID: "f1", Name: "a.txt", Size: 10, URL: "http://h/f1"}},
				Page:  2, Pages: 3, Total: 21,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	u, err := c.User(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ana", u.Username)
	assert.Equal(t, int64(42), u.StorageUsed)

	list, err := c.Files(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, list.Files, 1)
	assert.Equal(t, "a.txt", list.Files[0].Name)
	assert.Equal(t, 3, list.Pages)
}
