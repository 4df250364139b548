// ABOUTME: Minimal demo agent that answers switchboard invocations over HTTP
// ABOUTME: Usage: echo-agent [-addr :3000]; serves POST /api/chat

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

// agentRequest is the subset of the invocation body the agent reads.
type agentRequest struct {
	Text     string `json:"text"`
	Platform string `json:"platform"`
}

type agentReply struct {
	Text     string `json:"text"`
	Platform string `json:"platform,omitempty"`
}

// reply picks the canned answer for text.
func reply(text string) string {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "hello":
		return "Hi! I'm your PoC agent."
	case "help":
		return "I support multiple channels like web and Slack."
	default:
		return "You said: " + text
	}
}

func handleChat(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req agentRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid JSON body"})
			return
		}
		logger.Debug("invocation", "platform", req.Platform, "text", req.Text)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(agentReply{Text: reply(req.Text), Platform: req.Platform})
	}
}

func newMux(logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", handleChat(logger))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

func main() {
	addr := flag.String("addr", ":3000", "HTTP listen address")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newMux(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("echo agent listening", "addr", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
