// ABOUTME: HTTP agent invoker with per-call timeout, retry with backoff and health probe
// ABOUTME: Endpoint settings are swapped atomically so setters never race in-flight calls

package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/2389/switchboard/internal/message"
)

// DefaultTimeout bounds a single agent call when none is configured.
const DefaultTimeout = 30 * time.Second

// DefaultBaseDelay is the first retry backoff; it doubles on every attempt.
const DefaultBaseDelay = 100 * time.Millisecond

// maxReplyBytes caps how much of an agent reply is read.
const maxReplyBytes = 4 << 20

// ErrTimeout is returned when an agent call exceeds its timeout.
var ErrTimeout = errors.New("agent call timed out")

// StatusError reports a non-2xx reply from the agent.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("agent returned status %d", e.Code)
	}
	return fmt.Sprintf("agent returned status %d: %s", e.Code, e.Body)
}

type endpoint struct {
	url     string
	timeout time.Duration
}

// Invoker calls one agent endpoint.
type Invoker struct {
	ep        atomic.Pointer[endpoint]
	client    *http.Client
	logger    *slog.Logger
	baseDelay time.Duration
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithHTTPClient sets the HTTP client. Its own Timeout should be zero; the
// invoker applies the per-call timeout through the request context.
func WithHTTPClient(c *http.Client) Option {
	return func(i *Invoker) {
		if c != nil {
			i.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Invoker) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithBaseDelay overrides the first retry backoff.
func WithBaseDelay(d time.Duration) Option {
	return func(i *Invoker) {
		i.baseDelay = d
	}
}

// New creates an invoker for url. A non-positive timeout selects DefaultTimeout.
func New(url string, timeout time.Duration, opts ...Option) *Invoker {
	i := &Invoker{
		client:    &http.Client{},
		logger:    slog.Default(),
		baseDelay: DefaultBaseDelay,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.With("component", "invoker")
	i.ep.Store(&endpoint{url: url, timeout: normalizeTimeout(timeout)})
	return i
}

func normalizeTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}

// URL returns the current endpoint URL.
func (i *Invoker) URL() string {
	return i.ep.Load().url
}

// Timeout returns the current per-call timeout.
func (i *Invoker) Timeout() time.Duration {
	return i.ep.Load().timeout
}

// SetURL replaces the endpoint URL for subsequent calls.
func (i *Invoker) SetURL(url string) {
	for {
		old := i.ep.Load()
		if i.ep.CompareAndSwap(old, &endpoint{url: url, timeout: old.timeout}) {
			return
		}
	}
}

// SetTimeout replaces the per-call timeout for subsequent calls.
func (i *Invoker) SetTimeout(d time.Duration) {
	for {
		old := i.ep.Load()
		if i.ep.CompareAndSwap(old, &endpoint{url: old.url, timeout: normalizeTimeout(d)}) {
			return
		}
	}
}

// agentRequest is the JSON body sent to the agent.
type agentRequest struct {
	Text      string           `json:"text"`
	Channel   string           `json:"channel"`
	Platform  string           `json:"platform"`
	UserID    string           `json:"userId,omitempty"`
	SessionID string           `json:"sessionId,omitempty"`
	TenantID  string           `json:"tenantId,omitempty"`
	Metadata  message.Metadata `json:"metadata,omitempty"`
}

// Invoke makes one call to the agent. Failures come back as an unsuccessful response.
func (i *Invoker) Invoke(ctx context.Context, msg *message.UnifiedMessage) message.AgentResponse {
	reply, err := i.call(ctx, msg)
	if err != nil {
		i.logger.Warn("agent invocation failed",
			"tenant_id", msg.TenantID,
			"session_id", msg.SessionID,
			"url", i.URL(),
			"error", err,
		)
		return message.Failure(message.ErrorAgent, "Error: "+err.Error(), msg.SessionID)
	}
	return message.AgentResponse{Success: true, Response: reply, SessionID: msg.SessionID}
}

// InvokeWithRetry makes up to maxRetries+1 calls, sleeping 100ms, 200ms, 400ms, ...
// between failures. Cancelling ctx stops further attempts.
func (i *Invoker) InvokeWithRetry(ctx context.Context, msg *message.UnifiedMessage, maxRetries int) message.AgentResponse {
	if maxRetries < 0 {
		maxRetries = 0
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= maxRetries; attempt++ {
		attempts++
		reply, err := i.call(ctx, msg)
		if err == nil {
			return message.AgentResponse{Success: true, Response: reply, SessionID: msg.SessionID}.
				With(message.ExtAttempts, message.Int(int64(attempts)))
		}
		lastErr = err

		if attempt == maxRetries {
			break
		}
		delay := i.baseDelay << attempt
		i.logger.Debug("agent call failed, retrying",
			"attempt", attempts,
			"delay", delay,
			"error", err,
		)
		if err := sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	i.logger.Warn("agent invocation exhausted retries",
		"tenant_id", msg.TenantID,
		"attempts", attempts,
		"error", lastErr,
	)
	text := fmt.Sprintf("Agent invocation failed after %d attempts: %v", attempts, lastErr)
	return message.Failure(message.ErrorAgent, text, msg.SessionID).
		With(message.ExtAttempts, message.Int(int64(attempts)))
}

// HealthCheck sends a ping and reports whether the endpoint answered with a
// 2xx status.
func (i *Invoker) HealthCheck(ctx context.Context) bool {
	body := agentRequest{Text: "ping", Platform: "gateway", Channel: "gateway"}
	status, data, err := i.post(ctx, body)
	if err == nil && (status < 200 || status > 299) {
		err = &StatusError{Code: status, Body: truncate(string(bytes.TrimSpace(data)), 200)}
	}
	if err != nil {
		i.logger.Debug("agent health probe failed", "url", i.URL(), "error", err)
		return false
	}
	return true
}

// call performs one invocation and returns the extracted reply text.
func (i *Invoker) call(ctx context.Context, msg *message.UnifiedMessage) (string, error) {
	body := agentRequest{
		Text:      msg.Text,
		Channel:   string(msg.Channel),
		Platform:  string(msg.Channel),
		UserID:    msg.UserID,
		SessionID: msg.SessionID,
		TenantID:  msg.TenantID,
		Metadata:  msg.Metadata,
	}

	status, data, err := i.post(ctx, body)
	if err != nil {
		return "", err
	}
	if status < 200 || status > 299 {
		return "", &StatusError{Code: status, Body: truncate(string(bytes.TrimSpace(data)), 200)}
	}
	return extractReply(data), nil
}

// post sends body to the current endpoint under the per-call timeout.
func (i *Invoker) post(ctx context.Context, body agentRequest) (int, []byte, error) {
	ep := i.ep.Load()

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("encoding request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, ep.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, ep.url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return 0, nil, fmt.Errorf("%w after %s", ErrTimeout, ep.timeout)
		}
		return 0, nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return 0, nil, fmt.Errorf("%w after %s", ErrTimeout, ep.timeout)
		}
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// extractReply picks the reply text: a "response" field, else a "text" field,
// else the payload itself.
func extractReply(data []byte) string {
	trimmed := bytes.TrimSpace(data)
	if !gjson.ValidBytes(trimmed) {
		return string(trimmed)
	}

	r := gjson.ParseBytes(trimmed)
	switch {
	case r.IsObject():
		if v := r.Get("response"); v.Exists() && v.String() != "" {
			return v.String()
		}
		if v := r.Get("text"); v.Exists() && v.String() != "" {
			return v.String()
		}
		return r.Raw
	case r.Type == gjson.String:
		return r.Str
	default:
		return r.Raw
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
