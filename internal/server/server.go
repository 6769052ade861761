// Package server exposes sessions and chat turns over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/comigor/jarvis-chat/internal/chat"
	"github.com/comigor/jarvis-chat/internal/export"
	"github.com/comigor/jarvis-chat/internal/history"
	"github.com/comigor/jarvis-chat/internal/llm"
	"github.com/comigor/jarvis-chat/internal/logger"
	"github.com/comigor/jarvis-chat/internal/session"
)

// maxInputBytes bounds a single user message.
const maxInputBytes = 1 << 20

// activeAlias can stand in for the active session id in URLs.
const activeAlias = "active"

const (
	turnIDHeader    = "X-Turn-Id"
	turnErrorHeader = "X-Turn-Error"
)

// Server is the HTTP front end. Registry calls are serialized. A session runs
// at most one turn at a time and cannot be deleted while it does.
type Server struct {
	mu       sync.Mutex
	registry *session.Registry
	chat     *chat.Orchestrator
	mux      *http.ServeMux
	turning  map[string]bool
}

// New wires the routes. The registry must already be bootstrapped.
func New(registry *session.Registry, orchestrator *chat.Orchestrator) *Server {
	s := &Server{
		registry: registry,
		chat:     orchestrator,
		mux:      http.NewServeMux(),
		turning:  make(map[string]bool),
	}
	s.mux.HandleFunc("GET /sessions", s.listSessions)
	s.mux.HandleFunc("POST /sessions", s.createSession)
	s.mux.HandleFunc("PUT /sessions/active", s.selectSession)
	s.mux.HandleFunc("DELETE /sessions/{id}", s.deleteSession)
	s.mux.HandleFunc("GET /sessions/{id}/history", s.getHistory)
	s.mux.HandleFunc("GET /sessions/{id}/export", s.exportSession)
	s.mux.HandleFunc("POST /sessions/{id}/turns", s.postTurn)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type sessionsResponse struct {
	Active   string   `json:"active"`
	Sessions []string `json:"sessions"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L.Error("encode response", "error", err)
	}
}

func (s *Server) state() sessionsResponse {
	st := s.registry.State()
	return sessionsResponse{Active: st.ActiveID, Sessions: st.KnownIDs}
}

// resolve maps the URL id to a known session.
func (s *Server) resolve(r *http.Request) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(r)
}

func (s *Server) resolveLocked(r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == activeAlias {
		id = s.registry.Active()
	}
	for _, known := range s.registry.IDs() {
		if known == id {
			return id, true
		}
	}
	return id, false
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.registry.Create(r.Context()); err != nil {
		logger.L.Error("create session", "error", err)
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, s.state())
}

func (s *Server) selectSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxInputBytes)).Decode(&body); err != nil {
		http.Error(w, "expected {\"id\": ...}", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.registry.Select(body.ID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.resolveLocked(r)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if s.turning[id] {
		http.Error(w, "a turn is in progress for this session", http.StatusConflict)
		return
	}
	if err := s.registry.Delete(r.Context(), id); err != nil {
		logger.L.Error("delete session", "session", id, "error", err)
		http.Error(w, "failed to delete session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) loadHistory(w http.ResponseWriter, r *http.Request) (string, history.History, bool) {
	id, ok := s.resolve(r)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return "", nil, false
	}
	h, err := s.chat.History(r.Context(), id)
	if err != nil {
		logger.L.Error("load history", "session", id, "error", err)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return "", nil, false
	}
	return id, h, true
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	if _, h, ok := s.loadHistory(w, r); ok {
		writeJSON(w, http.StatusOK, h)
	}
}

func (s *Server) exportSession(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	exporter, err := export.For(format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, h, ok := s.loadHistory(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+"."+exporter.Extension()+`"`)
	if err := exporter.Export(id, h, w); err != nil {
		logger.L.Error("export", "session", id, "error", err)
	}
}

// beginTurn claims the session for one turn. It fails with 404 for unknown
// sessions and 409 while another turn on the same session is running.
func (s *Server) beginTurn(r *http.Request) (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.resolveLocked(r)
	if !ok {
		return id, http.StatusNotFound
	}
	if s.turning[id] {
		return id, http.StatusConflict
	}
	s.turning[id] = true
	return id, http.StatusOK
}

func (s *Server) endTurn(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turning, id)
}

// postTurn streams the reply as plain text, flushing after every fragment.
// A failure after the first fragment can no longer change the status, so it
// is reported in the X-Turn-Error trailer.
func (s *Server) postTurn(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.resolve(r); !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxInputBytes))
	if err != nil {
		logger.L.Error("read body error", "err", err)
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	input := string(body)
	if strings.TrimSpace(input) == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	id, status := s.beginTurn(r)
	switch status {
	case http.StatusNotFound:
		http.Error(w, "session not found", status)
		return
	case http.StatusConflict:
		http.Error(w, "a turn is in progress for this session", status)
		return
	}
	defer s.endTurn(id)

	turnID := uuid.NewString()
	w.Header().Set(turnIDHeader, turnID)
	logger.L.Info("turn request", "session", id, "turn", turnID, "bytes", len(body))

	rc := http.NewResponseController(w)
	started := false
	for fragment, err := range s.chat.Turn(r.Context(), id, input) {
		if err != nil {
			logger.L.Error("turn failed", "session", id, "turn", turnID, "error", err)
			if started {
				w.Header().Set(turnErrorHeader, err.Error())
			} else {
				http.Error(w, err.Error(), statusFor(err))
			}
			return
		}
		if !started {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("X-Session-Id", id)
			w.Header().Set("Trailer", turnErrorHeader)
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if _, err := io.WriteString(w, fragment); err != nil {
			return // client went away; breaking abandons the turn
		}
		if err := rc.Flush(); err != nil {
			logger.L.Debug("flush not supported", "error", err)
		}
	}
	if !started {
		w.Header().Set("X-Session-Id", id)
		w.WriteHeader(http.StatusOK)
	}
}

func statusFor(err error) int {
	if errors.Is(err, llm.ErrCompletion) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
