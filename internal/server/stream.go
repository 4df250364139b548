// ABOUTME: Server-sent event stream of live message traffic for admin watchers
// ABOUTME: Bridges the gateway's event broadcaster to GET /api/events/stream

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// sseHeartbeat keeps idle streams alive through proxies.
const sseHeartbeat = 15 * time.Second

// handleEventStream streams every recorded event, or one tenant's with
// ?tenantId=, until the client disconnects or the server shuts down.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	feed := s.gateway.Feed()
	if feed == nil {
		sendJSONError(w, http.StatusNotImplemented, "live event feed is disabled")
		return
	}

	tenantID := r.URL.Query().Get("tenantId")
	if tenantID != "" {
		if _, ok := s.gateway.Tenant(tenantID); !ok {
			sendJSONError(w, http.StatusNotFound, "tenant not found")
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, _ := feed.Subscribe(r.Context(), tenantID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s.writeSSEEvent(w, "ready", map[string]string{"tenantId": tenantID})
	flusher.Flush()

	s.logger.Debug("event stream opened", "tenant_id", tenantID, "remote", r.RemoteAddr)
	defer s.logger.Debug("event stream closed", "tenant_id", tenantID, "remote", r.RemoteAddr)

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.writeSSEEvent(w, "event", ev)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func (s *Server) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}
