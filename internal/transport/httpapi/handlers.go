package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sandevgo/formpilot/internal/core"
	"github.com/sandevgo/formpilot/internal/service/preview"
	"github.com/sandevgo/formpilot/internal/service/session"
	"github.com/sandevgo/formpilot/pkg/log"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

type detectRequest struct {
	HTML string `json:"html"`
	URL  string `json:"url"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req detectRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Detector.DetectForms(req.HTML, req.URL))
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	created, err := s.svc.Sessions.Start(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.svc.Sessions.List(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	got, err := s.svc.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, sessionStatusCode(err), err)
		return
	}
	writeJSON(w, http.StatusOK, got)
}

type patchSessionRequest struct {
	Status       *core.SessionStatus `json:"status,omitempty"`
	FormMappings []core.FormMapping  `json:"formMappings,omitempty"`
	Error        *string             `json:"error,omitempty"`
}

func (s *Server) handlePatchSession(w http.ResponseWriter, r *http.Request) {
	var req patchSessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := s.svc.Sessions.Update(r.Context(), chi.URLParam(r, "id"), session.Patch{
		Status:       req.Status,
		FormMappings: req.FormMappings,
		Error:        req.Error,
	})
	if err != nil {
		writeError(w, sessionStatusCode(err), err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	completed, err := s.svc.Sessions.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, sessionStatusCode(err), err)
		return
	}
	writeJSON(w, http.StatusOK, completed)
}

type failSessionRequest struct {
	Error string `json:"error"`
}

func (s *Server) handleFailSession(w http.ResponseWriter, r *http.Request) {
	var req failSessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	failed, err := s.svc.Sessions.Fail(r.Context(), chi.URLParam(r, "id"), req.Error)
	if err != nil {
		writeError(w, sessionStatusCode(err), err)
		return
	}
	writeJSON(w, http.StatusOK, failed)
}

type saveMappingsRequest struct {
	FormMappings []core.FormMapping `json:"formMappings"`
}

func (s *Server) handleSaveMappings(w http.ResponseWriter, r *http.Request) {
	var req saveMappingsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := s.svc.Sessions.SaveFormMappings(r.Context(), chi.URLParam(r, "id"), req.FormMappings)
	if err != nil {
		writeError(w, sessionStatusCode(err), err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type matchRequest struct {
	SessionID      string               `json:"sessionId,omitempty"`
	Fields         []core.DetectedField `json:"fields"`
	WebsiteContext *core.WebsiteContext `json:"websiteContext,omitempty"`
}

type matchResponse struct {
	Success  bool                `json:"success"`
	Mappings []core.FieldMapping `json:"mappings"`
	Error    string              `json:"error,omitempty"`
}

// handleMatch runs the LLM matching step. An AI failure is not an HTTP
// failure: the session is marked failed and the extension gets an empty
// mapping set it can render.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx := r.Context()

	memories, err := s.svc.Memories.List(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	mappings, err := s.svc.Matcher.Match(ctx, req.Fields, memories, req.WebsiteContext)
	if err != nil {
		if req.SessionID != "" {
			if _, failErr := s.svc.Sessions.Fail(ctx, req.SessionID, err.Error()); failErr != nil {
				log.FromCtx(ctx).Error().Err(failErr).Str("session", req.SessionID).Msg("failed to mark session failed")
			}
		}
		writeJSON(w, http.StatusOK, matchResponse{Success: false, Mappings: []core.FieldMapping{}, Error: err.Error()})
		return
	}

	s.recordUsage(r, mappings)
	writeJSON(w, http.StatusOK, matchResponse{Success: true, Mappings: mappings})
}

// recordUsage bumps usage counters for every memory that produced a value.
// Best effort: a failed increment never fails the match.
func (s *Server) recordUsage(r *http.Request, mappings []core.FieldMapping) {
	ctx := r.Context()
	now := time.Now().UTC()
	for _, m := range mappings {
		if m.MemoryID == "" || m.Value == nil {
			continue
		}
		if err := s.svc.Memories.IncrementUsage(ctx, m.MemoryID, now); err != nil {
			log.FromCtx(ctx).Debug().Err(err).Str("memory", m.MemoryID).Msg("usage increment failed")
		}
	}
}

type captureRequest struct {
	CapturedFields []core.CapturedField `json:"capturedFields"`
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.svc.Capture.SaveCapturedMemories(r.Context(), req.CapturedFields)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleShowPreview(w http.ResponseWriter, r *http.Request) {
	var payload preview.Payload
	if err := decode(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.svc.Preview.ShowPreview(chi.URLParam(r, "tabID"), payload)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetPreview(w http.ResponseWriter, r *http.Request) {
	state, ok := s.svc.Preview.State(chi.URLParam(r, "tabID"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no preview for tab"))
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleClosePreview(w http.ResponseWriter, r *http.Request) {
	s.svc.Preview.ClosePreview(chi.URLParam(r, "tabID"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateProgress(w http.ResponseWriter, r *http.Request) {
	var progress preview.Progress
	if err := decode(r, &progress); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.svc.Preview.UpdateProgress(chi.URLParam(r, "tabID"), progress)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleApplyEdits(w http.ResponseWriter, r *http.Request) {
	var edits map[string]string
	if err := decode(r, &edits); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !s.svc.Preview.ApplyEdits(chi.URLParam(r, "tabID"), edits) {
		writeError(w, http.StatusNotFound, errors.New("no preview for tab"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionStatusCode(err error) int {
	switch {
	case errors.Is(err, core.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTransition):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
