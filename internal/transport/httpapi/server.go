// Package httpapi is the loopback HTTP surface the browser extension talks
// to. Every messaging-contract request/response pair from the extension maps
// to one endpoint under /api/v1.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sandevgo/formpilot/internal/core"
	"github.com/sandevgo/formpilot/internal/service/capture"
	"github.com/sandevgo/formpilot/internal/service/detect"
	"github.com/sandevgo/formpilot/internal/service/preview"
	"github.com/sandevgo/formpilot/internal/service/session"
	"github.com/sandevgo/formpilot/pkg/log"
)

// FieldMatcher is the matching step as the transport sees it.
type FieldMatcher interface {
	Match(ctx context.Context, fields []core.DetectedField, memories []core.MemoryEntry, siteCtx *core.WebsiteContext) ([]core.FieldMapping, error)
}

// MemorySaver persists captured answers.
type MemorySaver interface {
	SaveCapturedMemories(ctx context.Context, fields []core.CapturedField) (capture.Result, error)
}

// Services bundles everything the handlers need.
type Services struct {
	Detector *detect.Detector
	Sessions *session.Manager
	Matcher  FieldMatcher
	Capture  MemorySaver
	Preview  *preview.Coordinator
	Memories core.MemoryRepository
}

type Server struct {
	httpServer *http.Server
	svc        Services
}

func NewServer(addr string, svc Services) *Server {
	s := &Server{svc: svc}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/detect", s.handleDetect)

		r.Post("/sessions", s.handleStartSession)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Patch("/sessions/{id}", s.handlePatchSession)
		r.Post("/sessions/{id}/complete", s.handleCompleteSession)
		r.Post("/sessions/{id}/fail", s.handleFailSession)
		r.Post("/sessions/{id}/mappings", s.handleSaveMappings)

		r.Post("/match", s.handleMatch)
		r.Post("/capture", s.handleCapture)

		r.Route("/tabs/{tabID}/preview", func(r chi.Router) {
			r.Put("/", s.handleShowPreview)
			r.Get("/", s.handleGetPreview)
			r.Delete("/", s.handleClosePreview)
			r.Put("/progress", s.handleUpdateProgress)
			r.Post("/edits", s.handleApplyEdits)
		})
	})

	return r
}

// Start blocks until the listener stops. A clean Shutdown is not an error.
func (s *Server) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Str("addr", s.httpServer.Addr).Msg("http api listening")
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
