// ABOUTME: Administrative operations over sessions, tenants, agents and the ledger
// ABOUTME: Mutations are attributed to the caller in the audit log when a ledger is configured

package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2389/switchboard/internal/auth"
	"github.com/2389/switchboard/internal/session"
	"github.com/2389/switchboard/internal/store"
	"github.com/2389/switchboard/internal/tenant"
)

// Admin errors
var (
	ErrLedgerDisabled   = errors.New("ledger is not configured")
	ErrTenantNotFound   = errors.New("tenant not found")
	ErrInvalidTenant    = errors.New("invalid tenant")
	ErrDefaultTenant    = errors.New("the default tenant cannot be removed")
	ErrSessionNotFound  = errors.New("session not found")
	ErrInvalidAgentSpec = errors.New("invalid agent endpoint")
)

// Session returns a snapshot of the session with id.
func (g *Gateway) Session(id string) (session.Session, bool) {
	return g.sessions.Get(id)
}

// ListSessions returns the live sessions of tenantID, or of every tenant
// when tenantID is empty. Idle sessions are reaped first.
func (g *Gateway) ListSessions(tenantID string) []session.Session {
	return g.sessions.List(tenantID)
}

// SessionStats summarizes every session held.
func (g *Gateway) SessionStats() session.Stats {
	return g.sessions.Stats()
}

// ClearSession removes a session and reports whether it existed.
func (g *Gateway) ClearSession(ctx context.Context, id string) bool {
	if !g.sessions.Clear(id) {
		return false
	}
	g.logger.Info("session cleared", "session_id", id, "actor", auth.Actor(ctx))
	g.audit(ctx, store.AuditClearSession, "session", id, nil)
	return true
}

// SessionEvents returns the ledger events of a session, oldest first.
func (g *Gateway) SessionEvents(ctx context.Context, sessionID string, limit int) ([]*store.LedgerEvent, error) {
	if g.ledger == nil {
		return nil, ErrLedgerDisabled
	}
	events, err := g.ledger.ListEventsBySession(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing session events: %w", err)
	}
	return events, nil
}

// TenantEvents returns the newest ledger events of a tenant.
func (g *Gateway) TenantEvents(ctx context.Context, tenantID string, limit int) ([]*store.LedgerEvent, error) {
	if g.ledger == nil {
		return nil, ErrLedgerDisabled
	}
	events, err := g.ledger.ListEventsByTenant(ctx, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing tenant events: %w", err)
	}
	return events, nil
}

// Tenant returns the configuration of tenant id.
func (g *Gateway) Tenant(id string) (tenant.Config, bool) {
	return g.tenants.Get(id)
}

// ListTenants returns every tenant, sorted by id.
func (g *Gateway) ListTenants() []tenant.Config {
	return g.tenants.All()
}

// RegisterTenant upserts a tenant and creates or retargets its invoker.
// The change is visible to the next message.
func (g *Gateway) RegisterTenant(ctx context.Context, cfg tenant.Config) error {
	g.tenantAdminMu.Lock()
	if !g.tenants.Register(cfg) {
		g.tenantAdminMu.Unlock()
		return fmt.Errorf("%w: tenantId is required", ErrInvalidTenant)
	}
	g.ensureInvoker(cfg)
	g.tenantAdminMu.Unlock()

	g.logger.Info("tenant registered",
		"tenant_id", cfg.TenantID,
		"invoke_url", cfg.Agent.URL(),
		"usable", cfg.Usable(),
		"actor", auth.Actor(ctx),
	)
	g.audit(ctx, store.AuditRegisterTenant, "tenant", cfg.TenantID, map[string]any{
		"invokeUrl": cfg.Agent.URL(),
		"channels":  cfg.Channels(),
	})
	return nil
}

// RemoveTenant deletes a tenant and its invoker. Sessions already opened for
// it stay until they idle out, but new messages are rejected.
func (g *Gateway) RemoveTenant(ctx context.Context, id string) error {
	if id == tenant.DefaultID {
		return ErrDefaultTenant
	}
	g.tenantAdminMu.Lock()
	if !g.tenants.Remove(id) {
		g.tenantAdminMu.Unlock()
		return ErrTenantNotFound
	}
	g.dropInvoker(id)
	g.tenantAdminMu.Unlock()

	g.logger.Info("tenant removed", "tenant_id", id, "actor", auth.Actor(ctx))
	g.audit(ctx, store.AuditRemoveTenant, "tenant", id, nil)
	return nil
}

// SetAgentEndpoint retargets a tenant's agent. An empty url or a
// non-positive timeout leaves that setting unchanged.
func (g *Gateway) SetAgentEndpoint(ctx context.Context, tenantID, url string, timeout time.Duration) (tenant.Config, error) {
	g.tenantAdminMu.Lock()
	cfg, ok := g.tenants.Get(tenantID)
	if !ok {
		g.tenantAdminMu.Unlock()
		return tenant.Config{}, ErrTenantNotFound
	}
	if url == "" && timeout <= 0 {
		g.tenantAdminMu.Unlock()
		return tenant.Config{}, fmt.Errorf("%w: url or timeout is required", ErrInvalidAgentSpec)
	}

	if url != "" {
		cfg.Agent.InvokeURL = url
	}
	if timeout > 0 {
		cfg.Agent.TimeoutMS = timeout.Milliseconds()
	}
	g.tenants.Register(cfg)
	g.ensureInvoker(cfg)
	g.tenantAdminMu.Unlock()

	g.logger.Info("agent endpoint updated",
		"tenant_id", tenantID,
		"invoke_url", cfg.Agent.URL(),
		"timeout", cfg.Agent.Timeout(),
		"actor", auth.Actor(ctx),
	)
	g.audit(ctx, store.AuditUpdateAgent, "tenant", tenantID, map[string]any{
		"invokeUrl": cfg.Agent.URL(),
		"timeoutMs": cfg.Agent.Timeout().Milliseconds(),
	})
	return cfg, nil
}

// AuditLog returns administrative actions, newest first.
func (g *Gateway) AuditLog(ctx context.Context, f store.AuditFilter) ([]store.AuditEntry, error) {
	if g.ledger == nil {
		return nil, ErrLedgerDisabled
	}
	entries, err := g.ledger.ListAuditLog(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing audit log: %w", err)
	}
	return entries, nil
}

// PruneLedger deletes ledger events older than retention.
func (g *Gateway) PruneLedger(ctx context.Context, retention time.Duration) (int64, error) {
	if g.ledger == nil {
		return 0, ErrLedgerDisabled
	}
	return g.ledger.PruneEventsBefore(ctx, g.now().Add(-retention))
}

func (g *Gateway) audit(ctx context.Context, action store.AuditAction, targetType, targetID string, detail map[string]any) {
	if g.ledger == nil {
		return
	}
	entry := &store.AuditEntry{
		Actor:      auth.Actor(ctx),
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     detail,
	}
	if err := g.ledger.AppendAuditLog(context.WithoutCancel(ctx), entry); err != nil {
		g.logger.Warn("failed to append audit log", "action", action, "target", targetID, "error", err)
	}
}
