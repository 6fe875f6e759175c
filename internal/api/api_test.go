package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"nhooyr.io/websocket"

	"parcel/internal/event"
	"parcel/internal/model"
	"parcel/internal/service"
	"parcel/internal/store"
	"parcel/internal/upload"
)

type stubUploader struct {
	block bool
}

func (s *stubUploader) UploadFileStreamed(ctx context.Context, dst upload.Destination, path, name string, progress upload.ProgressFunc) (*upload.Response, error) {
	return s.do(ctx, name)
}

func (s *stubUploader) UploadFile(ctx context.Context, dst upload.Destination, path, name string, progress upload.ProgressFunc) (*upload.Response, error) {
	return s.do(ctx, name)
}

func (s *stubUploader) do(ctx context.Context, name string) (*upload.Response, error) {
	if s.block {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", upload.ErrCancelled, ctx.Err())
	}
	return &upload.Response{Name: name, URL: "https://h/" + name}, nil
}

type testAPI struct {
	srv *httptest.Server
	bus *event.Bus
	dir string
}

func newTestAPI(t *testing.T, apiKey string, up service.Uploader) *testAPI {
	return newRootedTestAPI(t, apiKey, "", up)
}

func newRootedTestAPI(t *testing.T, apiKey, root string, up service.Uploader) *testAPI {
	return newCustomTestAPI(t, apiKey, root, nil, up)
}

func newCustomTestAPI(t *testing.T, apiKey, root string, origins []string, up service.Uploader) *testAPI {
	t.Helper()
	l := zaptest.NewLogger(t)

	db, err := store.New(t.TempDir())
	require.NoError(t, err)

	bus := event.NewBus()
	svc := service.NewUploadService(db, up, bus, upload.Destination{Server: "https://h"}, service.Options{MaxUploads: 2}, l)
	require.NoError(t, svc.Start(context.Background()))

	rt := NewRouter(apiKey, origins, l)
	rt.MountV1(rt.V1(Handlers{
		Uploads: NewUploadHandler(svc, root),
		Stats:   NewStatsHandler(service.NewStatsService(db, svc)),
		Events:  NewEventHandler(bus),
		WS:      NewWSHandler(bus, l, OriginPatterns(origins)...),
	}))

	srv := httptest.NewServer(rt.Handler())
	t.Cleanup(func() {
		srv.CloseClientConnections()
		srv.Close()
		svc.Stop()
		db.Close()
	})
	dir := root
	if dir == "" {
		dir = t.TempDir()
	}
	return &testAPI{srv: srv, bus: bus, dir: dir}
}

func (a *testAPI) file(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(a.dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.srv.URL+"/api/v1"+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestAuth(t *testing.T) {
	a := newTestAPI(t, "secret", &stubUploader{})

	resp, err := http.Get(a.srv.URL + "/api/v1/uploads")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, a.srv.URL+"/api/v1/uploads", nil)
	req.Header.Set(HeaderAPIKey, "secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(a.srv.URL + "/api/v1/uploads?token=secret")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEnqueueAndGet(t *testing.T) {
	a := newTestAPI(t, "", &stubUploader{})
	p := a.file(t, "notes.txt", "hello")

	resp := a.do(t, http.MethodPost, "/uploads", EnqueueRequest{Path: p, Name: "renamed.txt", Mode: "buffered"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	rec := decode[model.UploadRecord](t, resp)
	assert.Equal(t, "renamed.txt", rec.FileName)
	assert.Equal(t, model.ModeBuffered, rec.Mode)
	assert.Equal(t, int64(5), rec.Size)

	var got model.UploadRecord
	require.Eventually(t, func() bool {
		resp := a.do(t, http.MethodGet, "/uploads/"+rec.ID, nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		got = decode[model.UploadRecord](t, resp)
		return got.Status == model.StatusComplete
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "https://h/renamed.txt", got.URL)

	resp = a.do(t, http.MethodGet, "/uploads?status=complete", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[UploadListResponse](t, resp)
	require.Len(t, list.Data, 1)
	assert.Equal(t, rec.ID, list.Data[0].ID)
	assert.Equal(t, DefaultLimit, list.Meta.Limit)

	var stats model.Stats
	require.Eventually(t, func() bool {
		resp := a.do(t, http.MethodGet, "/stats", nil)
		stats = decode[model.Stats](t, resp)
		return stats.Totals.TasksFinished == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(5), stats.Totals.TotalUploaded)
}

func TestEnqueue_RejectsBadRequests(t *testing.T) {
	a := newTestAPI(t, "", &stubUploader{})
	p := a.file(t, "a.bin", "x")

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"missing path", EnqueueRequest{}, http.StatusBadRequest},
		{"unknown mode", EnqueueRequest{Path: p, Mode: "chunked"}, http.StatusBadRequest},
		{"not json", "{", http.StatusBadRequest},
		{"missing file", EnqueueRequest{Path: filepath.Join(a.dir, "nope")}, http.StatusBadRequest},
		{"directory", EnqueueRequest{Path: a.dir}, http.StatusBadRequest},
		{"quote in name", EnqueueRequest{Path: p, Name: `a"b.bin`}, http.StatusBadRequest},
		{"line break in name", EnqueueRequest{Path: p, Name: "a\r\nX-Evil: 1"}, http.StatusBadRequest},
		{"quote in base name", EnqueueRequest{Path: a.file(t, `say "hi".txt`, "x")}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := a.do(t, http.MethodPost, "/uploads", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			e := decode[ErrorResponse](t, resp)
			assert.NotEmpty(t, e.Error)
			assert.Equal(t, tt.status, e.Code)
		})
	}
}

func TestEnqueue_ConfinedToRoot(t *testing.T) {
	a := newRootedTestAPI(t, "", t.TempDir(), &stubUploader{})
	a.file(t, "inside.txt", "ok")

	resp := a.do(t, http.MethodPost, "/uploads", EnqueueRequest{Path: "inside.txt"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	rec := decode[model.UploadRecord](t, resp)
	assert.Equal(t, filepath.Join(a.dir, "inside.txt"), rec.Path)

	resp = a.do(t, http.MethodPost, "/uploads", EnqueueRequest{Path: "../outside.txt"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = a.do(t, http.MethodPost, "/uploads", EnqueueRequest{Path: "inside.txt", Name: "../x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	outside := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(outside, []byte("s"), 0o600))
	require.NoError(t, os.Symlink(outside, filepath.Join(a.dir, "link")))
	resp = a.do(t, http.MethodPost, "/uploads", EnqueueRequest{Path: "link"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func preflight(t *testing.T, a *testAPI, origin string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodOptions, a.srv.URL+"/api/v1/uploads", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCORS_NoOriginsByDefault(t *testing.T) {
	a := newTestAPI(t, "", &stubUploader{})

	resp := preflight(t, a, "https://evil.example")
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Credentials"))

	req, err := http.NewRequest(http.MethodGet, a.srv.URL+"/api/v1/uploads", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORS_AllowsListedOriginsOnly(t *testing.T) {
	a := newCustomTestAPI(t, "", "", []string{"https://app.example.com"}, &stubUploader{})

	resp := preflight(t, a, "https://app.example.com")
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Credentials"))

	resp = preflight(t, a, "https://evil.example")
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t, []string{"app.example.com", "localhost:5173"},
		OriginPatterns([]string{"https://app.example.com", "http://localhost:5173", "garbage"}))
	assert.Nil(t, OriginPatterns(nil))
}

func TestGet_NotFound(t *testing.T) {
	a := newTestAPI(t, "", &stubUploader{})

	resp := a.do(t, http.MethodGet, "/uploads/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	e := decode[ErrorResponse](t, resp)
	assert.Equal(t, "NOT_FOUND", e.Reason)
}

func TestList_UnknownStatus(t *testing.T) {
	a := newTestAPI(t, "", &stubUploader{})

	resp := a.do(t, http.MethodGet, "/uploads?status=paused", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancel(t *testing.T) {
	a := newTestAPI(t, "", &stubUploader{block: true})
	p := a.file(t, "big.bin", "payload")

	resp := a.do(t, http.MethodPost, "/uploads", EnqueueRequest{Path: p})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	rec := decode[model.UploadRecord](t, resp)

	resp = a.do(t, http.MethodDelete, "/uploads/"+rec.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.Eventually(t, func() bool {
		got := decode[model.UploadRecord](t, a.do(t, http.MethodGet, "/uploads/"+rec.ID, nil))
		return got.Status == model.StatusCancelled
	}, 5*time.Second, 10*time.Millisecond)

	resp = a.do(t, http.MethodDelete, "/uploads/"+rec.ID, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestEvents_StreamsBusEvents(t *testing.T) {
	a := newTestAPI(t, "", &stubUploader{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.srv.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get(HeaderContentType))

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "connected")

	a.bus.PublishRemote(event.RemoteEvent{Type: "file.created", Data: json.RawMessage(`{"id":"f1"}`)})

	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event: ") {
			assert.Equal(t, "event: remote\n", line)
			data, err := r.ReadString('\n')
			require.NoError(t, err)
			assert.Contains(t, data, `"file.created"`)
			return
		}
	}
}

func TestWebSocket_ForwardsEvents(t *testing.T) {
	a := newTestAPI(t, "", &stubUploader{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(a.srv.URL, "http") + "/api/v1/ws"
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return a.bus.Subscribers() == 1 }, 5*time.Second, 5*time.Millisecond)
	a.bus.PublishProgress(event.ProgressEvent{ID: "u1", Sent: 10, Size: 20, Fraction: 0.5})

	typ, data, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)

	var ev struct {
		Type event.EventType     `json:"type"`
		Data event.ProgressEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, event.UploadProgress, ev.Type)
	assert.Equal(t, "u1", ev.Data.ID)
	assert.Equal(t, int64(10), ev.Data.Sent)
}
