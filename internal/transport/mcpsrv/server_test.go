package mcpsrv

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/formpilot/internal/core"
	"github.com/sandevgo/formpilot/internal/service/capture"
	"github.com/sandevgo/formpilot/internal/service/detect"
	"github.com/sandevgo/formpilot/internal/service/sitectx"
)

type stubMatcher struct {
	mappings []core.FieldMapping
	err      error
}

func (m *stubMatcher) Match(ctx context.Context, fields []core.DetectedField, memories []core.MemoryEntry, siteCtx *core.WebsiteContext) ([]core.FieldMapping, error) {
	return m.mappings, m.err
}

type stubCapture struct {
	result capture.Result
}

func (c *stubCapture) SaveCapturedMemories(ctx context.Context, fields []core.CapturedField) (capture.Result, error) {
	return c.result, nil
}

type emptyMemories struct{}

func (emptyMemories) Add(ctx context.Context, entry core.MemoryEntry) error { return nil }
func (emptyMemories) Get(ctx context.Context, id string) (core.MemoryEntry, error) {
	return core.MemoryEntry{}, core.ErrMemoryNotFound
}
func (emptyMemories) List(ctx context.Context) ([]core.MemoryEntry, error) { return nil, nil }
func (emptyMemories) Delete(ctx context.Context, id string) error          { return nil }
func (emptyMemories) ContentHashes(ctx context.Context) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}
func (emptyMemories) IncrementUsage(ctx context.Context, id string, usedAt time.Time) error {
	return nil
}

func newTestServer(matcher *stubMatcher) *Server {
	return NewServer(Services{
		Detector: detect.NewDetector(sitectx.NewExtractor()),
		Matcher:  matcher,
		Capture:  &stubCapture{result: capture.Result{Success: true, SavedCount: 2}},
		Memories: emptyMemories{},
	})
}

func callReq(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func textContent(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := mcp.AsTextContent(res.Content[0])
	require.True(t, ok)
	return tc.Text
}

func TestDetectFormsTool(t *testing.T) {
	s := newTestServer(&stubMatcher{})

	res, err := s.handleDetectForms(context.Background(), callReq(map[string]any{
		"html": `<html><body><form><input type="email" name="email"></form></body></html>`,
		"url":  "https://x.example",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var result core.DetectFormsResult
	require.NoError(t, json.Unmarshal([]byte(textContent(t, res)), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.TotalFields)
}

func TestDetectFormsTool_MissingHTML(t *testing.T) {
	s := newTestServer(&stubMatcher{})

	res, err := s.handleDetectForms(context.Background(), callReq(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestMatchFieldsTool(t *testing.T) {
	v := "jan@example.com"
	s := newTestServer(&stubMatcher{mappings: []core.FieldMapping{
		{Selector: "#email", Value: &v, Confidence: 0.9},
	}})

	res, err := s.handleMatchFields(context.Background(), callReq(map[string]any{
		"fields": `[{"opid":"__field__0","selector":"#email","metadata":{"type":"email"}}]`,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var out struct {
		Success  bool                `json:"success"`
		Mappings []core.FieldMapping `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal([]byte(textContent(t, res)), &out))
	assert.True(t, out.Success)
	require.Len(t, out.Mappings, 1)
}

func TestMatchFieldsTool_ProviderFailureDegrades(t *testing.T) {
	s := newTestServer(&stubMatcher{err: errors.New("provider down")})

	res, err := s.handleMatchFields(context.Background(), callReq(map[string]any{
		"fields": `[{"opid":"__field__0","selector":"#email","metadata":{"type":"email"}}]`,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, "AI failure is a payload, not a tool error")

	var out struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(textContent(t, res)), &out))
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "provider down")
}

func TestMatchFieldsTool_BadFieldsJSON(t *testing.T) {
	s := newTestServer(&stubMatcher{})

	res, err := s.handleMatchFields(context.Background(), callReq(map[string]any{
		"fields": "{not json",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestSaveCapturedMemoriesTool(t *testing.T) {
	s := newTestServer(&stubMatcher{})

	res, err := s.handleSaveCapturedMemories(context.Background(), callReq(map[string]any{
		"captured_fields": `[{"question":"Email","value":"a@b.c","type":"email"}]`,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var result capture.Result
	require.NoError(t, json.Unmarshal([]byte(textContent(t, res)), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.SavedCount)
}
