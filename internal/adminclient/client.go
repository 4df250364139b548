// ABOUTME: HTTP client for the switchboard admin and chat API
// ABOUTME: Decodes JSON bodies and turns {"error": ...} replies into APIError

package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/2389/switchboard/internal/gateway"
	"github.com/2389/switchboard/internal/message"
	"github.com/2389/switchboard/internal/session"
	"github.com/2389/switchboard/internal/store"
	"github.com/2389/switchboard/internal/tenant"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("switchboard error (%d): %s", e.Status, e.Message)
}

// Client talks to one switchboard instance.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// New creates a client for baseURL. token may be empty when auth is disabled.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
}

// AuditQuery filters GET /api/audit.
type AuditQuery struct {
	Actor      string
	Action     string
	TargetType string
	TargetID   string
	Since      time.Time
	Limit      int
}

// Health fetches GET /health. An unhealthy gateway answers 503 with the same
// body, so the decoded report is returned alongside the error.
func (c *Client) Health(ctx context.Context) (gateway.Health, error) {
	var h gateway.Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &h)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable && h.Status != "" {
		return h, nil
	}
	return h, err
}

// Chat posts a message to /api/chat. Failure envelopes come back as the
// response with a nil error whenever the server produced one.
func (c *Client) Chat(ctx context.Context, in message.Inbound) (message.AgentResponse, error) {
	var resp message.AgentResponse
	err := c.do(ctx, http.MethodPost, "/api/chat", in, &resp)
	var apiErr *APIError
	if errors.As(err, &apiErr) && resp.Response != "" {
		return resp, nil
	}
	return resp, err
}

// ListSessions lists sessions, optionally for one tenant.
func (c *Client) ListSessions(ctx context.Context, tenantID string) ([]session.Session, error) {
	q := url.Values{}
	if tenantID != "" {
		q.Set("tenantId", tenantID)
	}
	var resp struct {
		Sessions []session.Session `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, withQuery("/api/sessions", q), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// Session fetches one session.
func (c *Client) Session(ctx context.Context, id string) (session.Session, error) {
	var sess session.Session
	err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(id), nil, &sess)
	return sess, err
}

// SessionStats fetches the session summary.
func (c *Client) SessionStats(ctx context.Context) (session.Stats, error) {
	var st session.Stats
	err := c.do(ctx, http.MethodGet, "/api/sessions/stats", nil, &st)
	return st, err
}

// ClearSession deletes a session.
func (c *Client) ClearSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil, nil)
}

// SessionEvents lists a session's ledger events, oldest first.
func (c *Client) SessionEvents(ctx context.Context, id string, limit int) ([]store.LedgerEvent, error) {
	return c.events(ctx, "/api/sessions/"+url.PathEscape(id)+"/events", limit)
}

// TenantEvents lists a tenant's ledger events, oldest first.
func (c *Client) TenantEvents(ctx context.Context, id string, limit int) ([]store.LedgerEvent, error) {
	return c.events(ctx, "/api/tenants/"+url.PathEscape(id)+"/events", limit)
}

func (c *Client) events(ctx context.Context, path string, limit int) ([]store.LedgerEvent, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Events []store.LedgerEvent `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, withQuery(path, q), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// ListTenants lists tenants with credentials masked.
func (c *Client) ListTenants(ctx context.Context) ([]tenant.Config, error) {
	var resp struct {
		Tenants []tenant.Config `json:"tenants"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/tenants", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tenants, nil
}

// Tenant fetches one tenant with credentials masked.
func (c *Client) Tenant(ctx context.Context, id string) (tenant.Config, error) {
	var cfg tenant.Config
	err := c.do(ctx, http.MethodGet, "/api/tenants/"+url.PathEscape(id), nil, &cfg)
	return cfg, err
}

// RegisterTenant adds or replaces a tenant.
func (c *Client) RegisterTenant(ctx context.Context, cfg tenant.Config) (tenant.Config, error) {
	var out tenant.Config
	err := c.do(ctx, http.MethodPost, "/api/tenants", cfg, &out)
	return out, err
}

// RemoveTenant deletes a tenant.
func (c *Client) RemoveTenant(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tenants/"+url.PathEscape(id), nil, nil)
}

// SetAgent retargets a tenant's agent. Empty url or zero timeout keep the current value.
func (c *Client) SetAgent(ctx context.Context, id, invokeURL string, timeout time.Duration) (tenant.Config, error) {
	body := map[string]any{
		"invokeUrl": invokeURL,
		"timeout":   timeout.Milliseconds(),
	}
	var out tenant.Config
	err := c.do(ctx, http.MethodPut, "/api/tenants/"+url.PathEscape(id)+"/agent", body, &out)
	return out, err
}

// Adapters lists the registered channel adapters.
func (c *Client) Adapters(ctx context.Context) ([]gateway.AdapterInfo, error) {
	var resp struct {
		Adapters []gateway.AdapterInfo `json:"adapters"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/adapters", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Adapters, nil
}

// Audit lists audit entries, newest first.
func (c *Client) Audit(ctx context.Context, aq AuditQuery) ([]store.AuditEntry, error) {
	q := url.Values{}
	if aq.Actor != "" {
		q.Set("actor", aq.Actor)
	}
	if aq.Action != "" {
		q.Set("action", aq.Action)
	}
	if aq.TargetType != "" {
		q.Set("target_type", aq.TargetType)
	}
	if aq.TargetID != "" {
		q.Set("target_id", aq.TargetID)
	}
	if !aq.Since.IsZero() {
		q.Set("since", aq.Since.UTC().Format(time.RFC3339))
	}
	if aq.Limit > 0 {
		q.Set("limit", strconv.Itoa(aq.Limit))
	}
	var resp struct {
		Entries []store.AuditEntry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, withQuery("/api/audit", q), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// do sends a request and decodes the reply into out. On a non-2xx reply it
// still decodes the body into out when possible and returns an APIError.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if out != nil {
			_ = json.Unmarshal(data, out)
		}
		return errorFromBody(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// errorFromBody extracts the message from a JSON error or failure envelope.
func errorFromBody(status int, data []byte) error {
	var payload struct {
		Error    string `json:"error"`
		Response string `json:"response"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &payload) == nil {
		switch {
		case payload.Error != "":
			msg = payload.Error
		case payload.Response != "":
			msg = payload.Response
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Status: status, Message: msg}
}
