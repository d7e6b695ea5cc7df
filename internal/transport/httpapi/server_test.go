package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/formpilot/internal/core"
	"github.com/sandevgo/formpilot/internal/service/capture"
	"github.com/sandevgo/formpilot/internal/service/detect"
	"github.com/sandevgo/formpilot/internal/service/preview"
	"github.com/sandevgo/formpilot/internal/service/session"
	"github.com/sandevgo/formpilot/internal/service/sitectx"
)

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]core.FillSession
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]core.FillSession)}
}

func (r *memSessionRepo) Create(ctx context.Context, s core.FillSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return nil
}

func (r *memSessionRepo) Get(ctx context.Context, id string) (core.FillSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return core.FillSession{}, core.ErrSessionNotFound
	}
	return s, nil
}

func (r *memSessionRepo) Update(ctx context.Context, s core.FillSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; !ok {
		return core.ErrSessionNotFound
	}
	r.sessions[s.ID] = s
	return nil
}

func (r *memSessionRepo) List(ctx context.Context, limit int) ([]core.FillSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.FillSession
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (r *memSessionRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type memMemoryRepo struct {
	mu         sync.Mutex
	entries    []core.MemoryEntry
	usageCalls map[string]int
}

func newMemMemoryRepo(entries ...core.MemoryEntry) *memMemoryRepo {
	return &memMemoryRepo{entries: entries, usageCalls: make(map[string]int)}
}

func (r *memMemoryRepo) Add(ctx context.Context, entry core.MemoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memMemoryRepo) Get(ctx context.Context, id string) (core.MemoryEntry, error) {
	return core.MemoryEntry{}, core.ErrMemoryNotFound
}

func (r *memMemoryRepo) List(ctx context.Context) ([]core.MemoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.MemoryEntry(nil), r.entries...), nil
}

func (r *memMemoryRepo) Delete(ctx context.Context, id string) error { return nil }

func (r *memMemoryRepo) ContentHashes(ctx context.Context) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

func (r *memMemoryRepo) IncrementUsage(ctx context.Context, id string, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usageCalls[id]++
	return nil
}

type stubMatcher struct {
	mappings []core.FieldMapping
	err      error
}

func (m *stubMatcher) Match(ctx context.Context, fields []core.DetectedField, memories []core.MemoryEntry, siteCtx *core.WebsiteContext) ([]core.FieldMapping, error) {
	return m.mappings, m.err
}

type stubCapture struct {
	result capture.Result
	err    error
}

func (c *stubCapture) SaveCapturedMemories(ctx context.Context, fields []core.CapturedField) (capture.Result, error) {
	return c.result, c.err
}

type fixture struct {
	server   *httptest.Server
	sessions *session.Manager
	memories *memMemoryRepo
	matcher  *stubMatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	memories := newMemMemoryRepo()
	matcher := &stubMatcher{}
	sessions := session.NewManager(newMemSessionRepo())

	srv := NewServer("127.0.0.1:0", Services{
		Detector: detect.NewDetector(sitectx.NewExtractor()),
		Sessions: sessions,
		Matcher:  matcher,
		Capture:  &stubCapture{result: capture.Result{Success: true, SavedCount: 1}},
		Preview:  preview.NewCoordinator(),
		Memories: memories,
	})

	ts := httptest.NewServer(srv.router())
	t.Cleanup(ts.Close)
	return &fixture{server: ts, sessions: sessions, memories: memories, matcher: matcher}
}

func (f *fixture) do(t *testing.T, method, path string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDetectEndpoint(t *testing.T) {
	f := newFixture(t)

	var result core.DetectFormsResult
	resp := f.do(t, http.MethodPost, "/api/v1/detect", detectRequest{
		HTML: `<html><body><form><label for="e">Email</label><input id="e" type="email"></form></body></html>`,
		URL:  "https://jobs.example/apply",
	}, &result)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.TotalFields)
	require.NotNil(t, result.WebsiteContext)
	assert.Equal(t, "jobs.example", result.WebsiteContext.Domain)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)

	var created core.FillSession
	resp := f.do(t, http.MethodPost, "/api/v1/sessions", nil, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, core.StatusDetecting, created.Status)

	var patched core.FillSession
	status := core.StatusMatching
	resp = f.do(t, http.MethodPatch, "/api/v1/sessions/"+created.ID,
		patchSessionRequest{Status: &status}, &patched)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, core.StatusMatching, patched.Status)

	var completed core.FillSession
	resp = f.do(t, http.MethodPost, "/api/v1/sessions/"+created.ID+"/complete", nil, &completed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, core.StatusCompleted, completed.Status)
	assert.NotNil(t, completed.CompletedAt)
}

func TestFailSessionOverHTTP(t *testing.T) {
	f := newFixture(t)

	var created core.FillSession
	f.do(t, http.MethodPost, "/api/v1/sessions", nil, &created)

	var failed core.FillSession
	resp := f.do(t, http.MethodPost, "/api/v1/sessions/"+created.ID+"/fail",
		failSessionRequest{Error: "page navigated away"}, &failed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, core.StatusFailed, failed.Status)
	assert.Equal(t, "page navigated away", failed.Error)
}

func TestSessionNotFoundIs404(t *testing.T) {
	f := newFixture(t)

	var body map[string]string
	resp := f.do(t, http.MethodGet, "/api/v1/sessions/missing", nil, &body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestSaveMappingsEndpoint(t *testing.T) {
	f := newFixture(t)

	var created core.FillSession
	f.do(t, http.MethodPost, "/api/v1/sessions", nil, &created)

	var updated core.FillSession
	resp := f.do(t, http.MethodPost, "/api/v1/sessions/"+created.ID+"/mappings",
		saveMappingsRequest{FormMappings: []core.FormMapping{{URL: "https://x.example"}}}, &updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, updated.FormMappings, 1)
}

func TestMatchEndpoint_Success(t *testing.T) {
	f := newFixture(t)
	v := "jan@example.com"
	f.matcher.mappings = []core.FieldMapping{
		{Selector: "#email", Value: &v, Confidence: 0.9, MemoryID: "m1"},
	}

	var result matchResponse
	resp := f.do(t, http.MethodPost, "/api/v1/match", matchRequest{
		Fields: []core.DetectedField{{Selector: "#email"}},
	}, &result)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, result.Success)
	require.Len(t, result.Mappings, 1)
	assert.Equal(t, 1, f.memories.usageCalls["m1"], "used memory gets a usage bump")
}

func TestMatchEndpoint_FailureFailsSessionNotRequest(t *testing.T) {
	f := newFixture(t)
	f.matcher.err = errors.New("provider unreachable")

	var created core.FillSession
	f.do(t, http.MethodPost, "/api/v1/sessions", nil, &created)

	var result matchResponse
	resp := f.do(t, http.MethodPost, "/api/v1/match", matchRequest{
		SessionID: created.ID,
		Fields:    []core.DetectedField{{Selector: "#email"}},
	}, &result)

	assert.Equal(t, http.StatusOK, resp.StatusCode, "AI failure is a payload, not a transport error")
	assert.False(t, result.Success)
	assert.Empty(t, result.Mappings)
	assert.Contains(t, result.Error, "provider unreachable")

	got, err := f.sessions.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusFailed, got.Status)
	assert.Contains(t, got.Error, "provider unreachable")
}

func TestCaptureEndpoint(t *testing.T) {
	f := newFixture(t)

	var result capture.Result
	resp := f.do(t, http.MethodPost, "/api/v1/capture", captureRequest{
		CapturedFields: []core.CapturedField{{Question: "Email", Value: "a@b.c", Type: "email"}},
	}, &result)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.SavedCount)
}

func TestPreviewEndpoints(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPut, "/api/v1/tabs/7/preview",
		preview.Payload{SessionID: "s1"}, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/api/v1/tabs/7/preview/progress",
		preview.Progress{Filled: 1, Total: 3}, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	var state preview.TabState
	resp = f.do(t, http.MethodGet, "/api/v1/tabs/7/preview", nil, &state)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, state.Payload)
	assert.Equal(t, "s1", state.Payload.SessionID)
	require.NotNil(t, state.Progress)
	assert.Equal(t, 1, state.Progress.Filled)

	resp = f.do(t, http.MethodDelete, "/api/v1/tabs/7/preview", nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/v1/tabs/7/preview", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBadJSONIs400(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/v1/detect",
		bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
