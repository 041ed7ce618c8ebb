package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/voicepost/internal/scheduler"
	"github.com/elonfeng/voicepost/internal/store"
	"github.com/elonfeng/voicepost/pkg/publish"
)

type stubPublisher struct{}

func (stubPublisher) Name() string { return "stub" }

func (stubPublisher) Publish(_ context.Context, req publish.Request) (*publish.Result, error) {
	if req.Text == "reject me" {
		return nil, &publish.RejectedError{StatusCode: 403, Body: "nope"}
	}
	return &publish.Result{TweetID: "1001"}, nil
}

type fixture struct {
	store *store.CSVStore
	srv   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.NewCSV(store.DefaultPaths(t.TempDir()))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	engine := scheduler.NewEngine(s, scheduler.DefaultStrategy())
	driver := scheduler.NewDriver(s, engine, stubPublisher{}, scheduler.Options{
		Metrics: scheduler.NewMetrics(reg),
		Logger:  logger,
	})

	api := New(s, engine, Options{Driver: driver, Gatherer: reg, Logger: logger})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return &fixture{store: s, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestServer_DraftLifecycle(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/v1/drafts", map[string]any{"text": "hello api", "notes": "@cmd"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := body["id"].(string)
	require.Len(t, id, 8)

	resp, body = f.do(t, http.MethodGet, "/api/v1/drafts/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello api", body["text"])
	assert.Equal(t, "pending", body["status"])

	resp, body = f.do(t, http.MethodPost, "/api/v1/drafts/"+id+"/schedule", map[string]string{"time": "2026-02-02T10:00"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "scheduled", body["status"])
	assert.Equal(t, "2026-02-02T10:00:00", body["scheduled_time"])

	_, body = f.do(t, http.MethodGet, "/api/v1/scheduled", nil)
	assert.Equal(t, 1.0, body["count"])

	_, body = f.do(t, http.MethodGet, "/api/v1/drafts?status=pending", nil)
	assert.Equal(t, 0.0, body["count"])

	resp, body = f.do(t, http.MethodDelete, "/api/v1/drafts/"+id+"/schedule", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "", body["scheduled_time"])

	resp, body = f.do(t, http.MethodPost, "/api/v1/drafts/"+id+"/post", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "1001", body["tweet_id"])

	resp, _ = f.do(t, http.MethodPost, "/api/v1/drafts/"+id+"/schedule", map[string]string{"time": "2026-02-02T10:00"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, body = f.do(t, http.MethodGet, "/api/v1/posted", nil)
	assert.Equal(t, 1.0, body["count"])
	_, body = f.do(t, http.MethodGet, "/api/v1/attempts", nil)
	assert.Equal(t, 1.0, body["count"])

	resp, body = f.do(t, http.MethodPost, "/api/v1/export", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := os.ReadFile(body["path"].(string))
	require.NoError(t, err)
	assert.Contains(t, string(data), "'@cmd")
}

func TestServer_Errors(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/api/v1/drafts/missing1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/v1/drafts", map[string]string{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/v1/drafts", map[string]any{"text": "rt", "is_retweet": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/v1/drafts/missing1/schedule", map[string]string{"time": "2026-02-02"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/v1/drafts?status=archived", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/v1/due?at=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/v1/drafts/missing1/post", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_ScheduleBadTime(t *testing.T) {
	f := newFixture(t)
	id, err := f.store.Create(context.Background(), store.NewDraft{Text: "x"})
	require.NoError(t, err)

	resp, body := f.do(t, http.MethodPost, "/api/v1/drafts/"+id+"/schedule", map[string]string{"time": "soon"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "invalid scheduled time")
}

func TestServer_PostRejected(t *testing.T) {
	f := newFixture(t)
	id, err := f.store.Create(context.Background(), store.NewDraft{Text: "reject me"})
	require.NoError(t, err)

	resp, body := f.do(t, http.MethodPost, "/api/v1/drafts/"+id+"/post", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "failed", body["status"])
}

func TestServer_DueAndSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.store.Create(ctx, store.NewDraft{Text: "due"})
	require.NoError(t, err)
	_, err = f.store.SetSchedule(ctx, id, "2000-01-01T00:00:00")
	require.NoError(t, err)

	_, body := f.do(t, http.MethodGet, "/api/v1/due", nil)
	assert.Equal(t, 1.0, body["count"])

	_, body = f.do(t, http.MethodGet, "/api/v1/slot?at=2026-02-04T14:00:00Z", nil)
	assert.Equal(t, true, body["slot"])
	_, body = f.do(t, http.MethodGet, "/api/v1/slot?at=2026-02-04T14:06:00Z", nil)
	assert.Equal(t, false, body["slot"])
}

func TestServer_HealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	id, err := f.store.Create(context.Background(), store.NewDraft{Text: "metric"})
	require.NoError(t, err)
	f.do(t, http.MethodPost, "/api/v1/drafts/"+id+"/post", nil)

	mresp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	data, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `voicepost_publish_attempts_total{status="success"} 1`))
}

func TestServer_PostWithoutDriver(t *testing.T) {
	s, err := store.NewCSV(store.DefaultPaths(t.TempDir()))
	require.NoError(t, err)
	api := New(s, scheduler.NewEngine(s, scheduler.StrategyRule{}), Options{Gatherer: prometheus.NewRegistry()})

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/drafts/abc/post", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
