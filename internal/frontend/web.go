// ABOUTME: Web adapter serving JSON chat over HTTP and a websocket chat stream
// ABOUTME: Maps gateway failure kinds to HTTP status codes

package frontend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/switchboard/internal/message"
)

const (
	maxChatBody = 1 << 20

	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// WebOptions configures the web adapter.
type WebOptions struct {
	// AllowedOrigins lists websocket origins besides the server's own.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Web is the browser-facing adapter.
type Web struct {
	dispatcher Dispatcher
	upgrader   websocket.Upgrader
	logger     *slog.Logger

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

// NewWeb creates the web adapter.
func NewWeb(d Dispatcher, opts WebOptions) *Web {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	w := &Web{
		dispatcher: d,
		logger:     logger.With("component", "web"),
		conns:      make(map[*websocket.Conn]struct{}),
	}
	origins := newAllowlist(opts.AllowedOrigins)
	w.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if _, ok := origins["*"]; ok {
				return true
			}
			if _, ok := origins[origin]; ok {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && u.Host == r.Host
		},
	}
	return w
}

func (w *Web) Name() string { return "web" }

func (w *Web) Channel() message.Channel { return message.ChannelWeb }

// ProcessMessage submits raw programmatically and reports a failed reply as an error.
func (w *Web) ProcessMessage(ctx context.Context, raw *message.Inbound) error {
	resp := w.dispatcher.ProcessMessage(ctx, raw, message.ChannelWeb)
	if !resp.Success {
		return fmt.Errorf("%s: %s", resp.ErrorKind(), resp.Response)
	}
	return nil
}

// Close disconnects every open websocket.
func (w *Web) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	for conn := range w.conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	clear(w.conns)
	return nil
}

// chatRequest is the POST /api/chat body. Message is the older name of Text.
type chatRequest struct {
	message.Inbound
	Message string `json:"message,omitempty"`
}

func (c *chatRequest) inbound() *message.Inbound {
	in := c.Inbound
	if in.Text == "" {
		in.Text = c.Message
	}
	return &in
}

// HTTPStatus maps a gateway response to the status code of the web reply.
func HTTPStatus(resp message.AgentResponse) int {
	if resp.Success {
		return http.StatusOK
	}
	switch resp.ErrorKind() {
	case message.ErrorInvalidTenant, message.ErrorUnsupportedChannel, message.ErrorInvalidMessage:
		return http.StatusBadRequest
	case message.ErrorNoInvoker:
		return http.StatusServiceUnavailable
	case message.ErrorAgent:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeErrorText names the offending metadata key when a request fails only
// because of an unsupported metadata value.
func decodeErrorText(fallback string, err error) string {
	if errors.Is(err, message.ErrUnsupportedValue) {
		return "invalid metadata: " + err.Error()
	}
	return fallback
}

// HandleChat handles POST /api/chat.
func (w *Web) HandleChat(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendJSONError(rw, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, maxChatBody)).Decode(&req); err != nil {
		sendJSONError(rw, http.StatusBadRequest, decodeErrorText("invalid JSON body", err))
		return
	}

	resp := w.dispatcher.ProcessMessage(r.Context(), req.inbound(), message.ChannelWeb)
	writeJSON(rw, HTTPStatus(resp), resp)
}

// HandleWS upgrades GET /api/ws. Each text frame is a chat request; each
// reply is written as one AgentResponse frame, in order.
func (w *Web) HandleWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	if !w.track(conn) {
		_ = conn.Close()
		return
	}
	defer w.untrack(conn)

	w.logger.Debug("websocket connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	var writeMu sync.Mutex
	write := func(mt int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteMessage(mt, data)
	}

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.logger.Debug("websocket read error", "error", err)
			}
			return
		}

		var req chatRequest
		var resp message.AgentResponse
		if err := json.Unmarshal(data, &req); err != nil {
			resp = message.Failure(message.ErrorInvalidMessage, decodeErrorText("invalid JSON frame", err), "unknown")
		} else {
			resp = w.dispatcher.ProcessMessage(ctx, req.inbound(), message.ChannelWeb)
		}

		out, err := json.Marshal(resp)
		if err != nil {
			w.logger.Error("encoding websocket reply", "error", err)
			return
		}
		if err := write(websocket.TextMessage, out); err != nil {
			return
		}
	}
}

func (w *Web) track(conn *websocket.Conn) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.conns[conn] = struct{}{}
	return true
}

func (w *Web) untrack(conn *websocket.Conn) {
	w.mu.Lock()
	delete(w.conns, conn)
	w.mu.Unlock()
	_ = conn.Close()
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes a JSON error response.
func sendJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
