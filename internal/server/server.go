// Package server is the admin HTTP API: tool catalogue, call journal and health.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/qbmcp/internal/store"
	"github.com/yourorg/qbmcp/internal/tools"
)

const maxCallBody = 1 << 20

// Readiness reports whether the QuickBooks session has been established.
type Readiness interface {
	Ready() bool
}

// Server wraps the admin API handlers.
type Server struct {
	// Token, when set, must accompany tool calls as a bearer token.
	Token string

	tools   *tools.Toolset
	store   store.Store
	session Readiness
	logger  *slog.Logger
	mux     *http.ServeMux
}

// New constructs a new Server with routes registered. st may be nil when
// the journal is disabled.
func New(set *tools.Toolset, st store.Store, session Readiness, logger *slog.Logger) (*Server, error) {
	if set == nil {
		return nil, errors.New("toolset is nil")
	}
	srv := &Server{
		tools:   set,
		store:   st,
		session: session,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	srv.registerRoutes()
	return srv, nil
}

// Handler returns the http handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	hs := &http.Server{Addr: addr, Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- hs.ListenAndServe() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/tools", s.handleTools)
	s.mux.HandleFunc("/api/tools/", s.handleToolRoutes)
	s.mux.HandleFunc("/api/calls", s.handleCalls)
	s.mux.HandleFunc("/api/calls/", s.handleCallDetail)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ready := s.session != nil && s.session.Ready()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"session_ready": ready,
		"tools":         s.tools.Len(),
		"journal":       s.store != nil,
	})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	catalog, err := s.tools.Catalog()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}

func (s *Server) handleToolRoutes(w http.ResponseWriter, r *http.Request) {
	name, tail, ok := splitPath(r.URL.Path, "/api/tools/")
	if !ok || name == "" || tail != "" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.handleToolDetail(w, name)
	case http.MethodPost:
		s.handleToolCall(w, r, name)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleToolDetail(w http.ResponseWriter, name string) {
	catalog, err := s.tools.Catalog()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for _, d := range catalog {
		if d.Name == name {
			writeJSON(w, http.StatusOK, d)
			return
		}
	}
	http.Error(w, "tool not found", http.StatusNotFound)
}

// handleToolCall runs a tool with the request body as its argument object.
func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request, name string) {
	if status, msg := s.checkCaller(r); status != 0 {
		http.Error(w, msg, status)
		return
	}
	if _, ok := s.tools.Lookup(name); !ok {
		http.Error(w, "tool not found", http.StatusNotFound)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallBody))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	out, err := s.tools.Call(r.Context(), name, body)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("admin tool call failed", "tool", name, "error", err)
		}
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, out)
}

// checkCaller refuses tool calls a browser could send cross-site: tool
// calls write to QuickBooks, so only same-origin JSON requests carrying
// the configured token get through.
func (s *Server) checkCaller(r *http.Request) (int, string) {
	if s.Token != "" {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.Token)) != 1 {
			return http.StatusUnauthorized, "missing or invalid bearer token"
		}
	}
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "application/json" {
		return http.StatusUnsupportedMediaType, "content type must be application/json"
	}
	if origin := r.Header.Get("Origin"); origin != "" && !sameHost(origin, r.Host) {
		return http.StatusForbidden, "cross-origin tool calls are not allowed"
	}
	return 0, ""
}

func sameHost(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "call journal disabled", http.StatusServiceUnavailable)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	calls, err := s.store.ListCalls(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, calls)
}

func (s *Server) handleCallDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, tail, ok := splitPath(r.URL.Path, "/api/calls/")
	if !ok || id == "" || tail != "" {
		http.NotFound(w, r)
		return
	}
	if s.store == nil {
		http.Error(w, "call journal disabled", http.StatusServiceUnavailable)
		return
	}
	rec, err := s.store.GetCall(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "call not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func splitPath(fullPath, prefix string) (string, string, bool) {
	if !strings.HasPrefix(fullPath, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(fullPath, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	tail := ""
	if len(parts) > 1 {
		tail = strings.Join(parts[1:], "/")
	}
	return id, tail, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
