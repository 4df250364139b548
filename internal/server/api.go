// ABOUTME: HTTP routes: web chat, health probes and the JSON admin API
// ABOUTME: Admin routes sit behind JWT auth when a secret is configured

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/switchboard/internal/assets"
	"github.com/2389/switchboard/internal/auth"
	"github.com/2389/switchboard/internal/gateway"
	"github.com/2389/switchboard/internal/session"
	"github.com/2389/switchboard/internal/store"
	"github.com/2389/switchboard/internal/tenant"
)

// maxAdminBody caps admin request bodies.
const maxAdminBody = 1 << 20

// SessionsResponse is the JSON response for GET /api/sessions.
type SessionsResponse struct {
	Sessions []session.Session `json:"sessions"`
	Count    int               `json:"count"`
}

// TenantsResponse is the JSON response for GET /api/tenants.
type TenantsResponse struct {
	Tenants []tenant.Config `json:"tenants"`
}

// EventsResponse is the JSON response for the ledger event routes.
type EventsResponse struct {
	Events []*store.LedgerEvent `json:"events"`
}

// AuditResponse is the JSON response for GET /api/audit.
type AuditResponse struct {
	Entries []store.AuditEntry `json:"entries"`
}

// AdaptersResponse is the JSON response for GET /api/adapters.
type AdaptersResponse struct {
	Adapters []gateway.AdapterInfo `json:"adapters"`
}

// SetAgentRequest is the JSON body for PUT /api/tenants/{id}/agent.
type SetAgentRequest struct {
	InvokeURL string `json:"invokeUrl"`
	TimeoutMS int64  `json:"timeout"`
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	if s.web != nil && s.config.Frontends.Web.Enabled {
		mux.HandleFunc("POST /api/chat", s.web.HandleChat)
		mux.HandleFunc("GET /api/ws", s.web.HandleWS)
		mux.Handle("GET /{$}", assets.ChatPage())
		mux.Handle("GET /static/", http.StripPrefix("/static/", assets.FileServer()))
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/live", s.handleLive)

	s.admin(mux, "GET /api/sessions", s.handleListSessions)
	s.admin(mux, "GET /api/sessions/stats", s.handleSessionStats)
	s.admin(mux, "GET /api/sessions/{id}", s.handleGetSession)
	s.admin(mux, "DELETE /api/sessions/{id}", s.handleClearSession)
	s.admin(mux, "GET /api/sessions/{id}/events", s.handleSessionEvents)

	s.admin(mux, "GET /api/tenants", s.handleListTenants)
	s.admin(mux, "POST /api/tenants", s.handleRegisterTenant)
	s.admin(mux, "GET /api/tenants/{id}", s.handleGetTenant)
	s.admin(mux, "DELETE /api/tenants/{id}", s.handleRemoveTenant)
	s.admin(mux, "PUT /api/tenants/{id}/agent", s.handleSetAgent)
	s.admin(mux, "GET /api/tenants/{id}/events", s.handleTenantEvents)
	s.admin(mux, "GET /api/events/stream", s.handleEventStream)

	s.admin(mux, "GET /api/adapters", s.handleListAdapters)
	s.admin(mux, "GET /api/audit", s.handleAuditLog)
}

// admin mounts h, wrapped in auth when a verifier is configured.
func (s *Server) admin(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	var handler http.Handler = h
	if s.verifier != nil {
		handler = auth.HTTPAuthMiddleware(s.verifier)(auth.RequireAdminHTTP()(handler))
	}
	mux.Handle(pattern, handler)
}

// handleHealth runs the agent health check. Unhealthy answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.gateway.HealthCheck(r.Context())
	status := http.StatusOK
	if h.Status == gateway.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

// handleLive returns 200 OK if the process is serving.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.gateway.ListSessions(r.URL.Query().Get("tenantId"))
	writeJSON(w, http.StatusOK, SessionsResponse{Sessions: sessions, Count: len(sessions)})
}

func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gateway.SessionStats())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.gateway.Session(r.PathValue("id"))
	if !ok {
		sendJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	if !s.gateway.ClearSession(r.Context(), r.PathValue("id")) {
		sendJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := s.gateway.SessionEvents(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.sendAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: events})
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	all := s.gateway.ListTenants()
	out := make([]tenant.Config, 0, len(all))
	for _, t := range all {
		out = append(out, t.Redacted())
	}
	writeJSON(w, http.StatusOK, TenantsResponse{Tenants: out})
}

func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	t, ok := s.gateway.Tenant(r.PathValue("id"))
	if !ok {
		sendJSONError(w, http.StatusNotFound, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, t.Redacted())
}

func (s *Server) handleRegisterTenant(w http.ResponseWriter, r *http.Request) {
	var cfg tenant.Config
	if err := decodeBody(w, r, &cfg); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.gateway.RegisterTenant(r.Context(), cfg); err != nil {
		s.sendAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg.Redacted())
}

func (s *Server) handleRemoveTenant(w http.ResponseWriter, r *http.Request) {
	if err := s.gateway.RemoveTenant(r.Context(), r.PathValue("id")); err != nil {
		s.sendAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetAgent(w http.ResponseWriter, r *http.Request) {
	var req SetAgentRequest
	if err := decodeBody(w, r, &req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	cfg, err := s.gateway.SetAgentEndpoint(r.Context(), r.PathValue("id"), req.InvokeURL, timeout)
	if err != nil {
		s.sendAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg.Redacted())
}

func (s *Server) handleTenantEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := r.PathValue("id")
	if _, ok := s.gateway.Tenant(id); !ok {
		sendJSONError(w, http.StatusNotFound, "tenant not found")
		return
	}
	events, err := s.gateway.TenantEvents(r.Context(), id, limit)
	if err != nil {
		s.sendAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: events})
}

func (s *Server) handleListAdapters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AdaptersResponse{Adapters: s.gateway.AdapterInfos()})
}

func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAuditFilter(r)
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.gateway.AuditLog(r.Context(), filter)
	if err != nil {
		s.sendAdminError(w, err)
		return
	}
	if entries == nil {
		entries = []store.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, AuditResponse{Entries: entries})
}

// parseAuditFilter reads actor, action, target_type, target_id, since and limit.
func parseAuditFilter(r *http.Request) (store.AuditFilter, error) {
	q := r.URL.Query()
	var f store.AuditFilter

	if v := q.Get("actor"); v != "" {
		f.Actor = &v
	}
	if v := q.Get("action"); v != "" {
		action := store.AuditAction(v)
		f.Action = &action
	}
	if v := q.Get("target_type"); v != "" {
		f.TargetType = &v
	}
	if v := q.Get("target_id"); v != "" {
		f.TargetID = &v
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("since must be an RFC3339 timestamp")
		}
		f.Since = &since
	}

	limit, err := parseLimit(r)
	if err != nil {
		return f, err
	}
	f.Limit = limit
	return f, nil
}

// parseLimit reads the optional limit query parameter; zero means the store default.
func parseLimit(r *http.Request) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return n, nil
}

// sendAdminError maps gateway admin errors onto HTTP statuses.
func (s *Server) sendAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gateway.ErrTenantNotFound):
		sendJSONError(w, http.StatusNotFound, "tenant not found")
	case errors.Is(err, gateway.ErrSessionNotFound):
		sendJSONError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, gateway.ErrDefaultTenant):
		sendJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, gateway.ErrInvalidTenant), errors.Is(err, gateway.ErrInvalidAgentSpec):
		sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, gateway.ErrLedgerDisabled):
		sendJSONError(w, http.StatusNotImplemented, "ledger is disabled (set database.path)")
	default:
		s.logger.Error("admin request failed", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxAdminBody)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes a JSON error response.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
