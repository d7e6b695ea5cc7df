// Package mcpsrv exposes the autofill pipeline to agents over MCP stdio.
// The tools mirror the extension's messaging contract: detect, match,
// capture.
package mcpsrv

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sandevgo/formpilot/internal/core"
	"github.com/sandevgo/formpilot/internal/service/capture"
	"github.com/sandevgo/formpilot/internal/service/detect"
	"github.com/sandevgo/formpilot/pkg/log"
)

// FieldMatcher is the matching step as the MCP surface sees it.
type FieldMatcher interface {
	Match(ctx context.Context, fields []core.DetectedField, memories []core.MemoryEntry, siteCtx *core.WebsiteContext) ([]core.FieldMapping, error)
}

type MemorySaver interface {
	SaveCapturedMemories(ctx context.Context, fields []core.CapturedField) (capture.Result, error)
}

type Services struct {
	Detector *detect.Detector
	Matcher  FieldMatcher
	Capture  MemorySaver
	Memories core.MemoryRepository
}

type Server struct {
	mcpServer *server.MCPServer
	svc       Services
	cancel    context.CancelFunc
}

func NewServer(svc Services) *Server {
	s := &Server{svc: svc}

	s.mcpServer = server.NewMCPServer(core.AppName, core.AppVersion,
		server.WithToolCapabilities(false),
	)

	s.mcpServer.AddTool(mcp.NewTool("detect_forms",
		mcp.WithDescription("Scan an HTML document for fillable form fields and extract website context."),
		mcp.WithString("html", mcp.Required(), mcp.Description("Full HTML of the page")),
		mcp.WithString("url", mcp.Description("Page URL, used for context classification")),
	), s.handleDetectForms)

	s.mcpServer.AddTool(mcp.NewTool("match_fields",
		mcp.WithDescription("Match detected form fields against the stored memories. Returns field mappings with values, confidence and reasoning."),
		mcp.WithString("fields", mcp.Required(), mcp.Description("JSON array of detected fields")),
		mcp.WithString("website_context", mcp.Description("JSON website context object")),
	), s.handleMatchFields)

	s.mcpServer.AddTool(mcp.NewTool("save_captured_memories",
		mcp.WithDescription("Persist user-typed form answers as new memories, deduplicated and categorized."),
		mcp.WithString("captured_fields", mcp.Required(), mcp.Description("JSON array of captured fields")),
	), s.handleSaveCapturedMemories)

	return s
}

// Start serves MCP over stdio until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	log.FromCtx(ctx).Info().Msg("mcp server listening on stdio")

	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

func (s *Server) handleDetectForms(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	html, err := req.RequireString("html")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pageURL := req.GetString("url", "")

	return jsonResult(s.svc.Detector.DetectForms(html, pageURL))
}

func (s *Server) handleMatchFields(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fieldsJSON, err := req.RequireString("fields")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var fields []core.DetectedField
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid fields: %v", err)), nil
	}

	var siteCtx *core.WebsiteContext
	if raw := req.GetString("website_context", ""); raw != "" {
		siteCtx = &core.WebsiteContext{}
		if err := json.Unmarshal([]byte(raw), siteCtx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid website_context: %v", err)), nil
		}
	}

	memories, err := s.svc.Memories.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	mappings, err := s.svc.Matcher.Match(ctx, fields, memories, siteCtx)
	if err != nil {
		// Same fallback policy as the HTTP surface: degrade, don't throw.
		return jsonResult(map[string]any{
			"success":  false,
			"mappings": []core.FieldMapping{},
			"error":    err.Error(),
		})
	}

	return jsonResult(map[string]any{"success": true, "mappings": mappings})
}

func (s *Server) handleSaveCapturedMemories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	capturedJSON, err := req.RequireString("captured_fields")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var fields []core.CapturedField
	if err := json.Unmarshal([]byte(capturedJSON), &fields); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid captured_fields: %v", err)), nil
	}

	result, err := s.svc.Capture.SaveCapturedMemories(ctx, fields)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
