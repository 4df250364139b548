// ABOUTME: Gateway orchestrator: tenant gate, normalization, session resolution and agent invocation
// ABOUTME: Every failure is returned as an AgentResponse envelope; panics are recovered

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/2389/switchboard/internal/conversation"
	"github.com/2389/switchboard/internal/dedupe"
	"github.com/2389/switchboard/internal/invoker"
	"github.com/2389/switchboard/internal/message"
	"github.com/2389/switchboard/internal/session"
	"github.com/2389/switchboard/internal/store"
	"github.com/2389/switchboard/internal/tenant"
)

// unknownSession is reported when a failure happens before a session exists.
const unknownSession = "unknown"

// Session metadata keys written after every agent call.
const (
	MetaLastActivity = "lastActivity"
	MetaLastChannel  = "lastChannel"
)

// Config wires a Gateway's collaborators.
type Config struct {
	// Tenants is required.
	Tenants *tenant.Registry

	// Sessions defaults to a store with the 24h idle timeout.
	Sessions *session.Store

	// Ledger is optional; nil disables event recording and the audit log.
	Ledger store.Ledger

	// Feed, when set, receives every recorded event for live watchers.
	Feed *conversation.EventBroadcaster

	// Dedupe defaults to a cache with dedupe.DefaultTTL, owned and closed by the gateway.
	Dedupe *dedupe.Cache

	// MaxRetries above zero makes every agent call go through InvokeWithRetry.
	MaxRetries int

	// HTTPClient is shared by all tenant invokers.
	HTTPClient *http.Client

	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Gateway routes channel messages to tenant agents.
type Gateway struct {
	tenants    *tenant.Registry
	sessions   *session.Store
	ledger     store.Ledger
	feed       *conversation.EventBroadcaster
	dedupe     *dedupe.Cache
	ownsDedupe bool
	maxRetries int
	client     *http.Client
	logger     *slog.Logger
	baseLogger *slog.Logger
	now        func() time.Time

	// tenantAdminMu serializes tenant mutations so the registry entry and
	// its invoker always come from the same caller.
	tenantAdminMu sync.Mutex

	invokersMu sync.RWMutex
	invokers   map[string]*invoker.Invoker

	adaptersMu sync.RWMutex
	adapters   map[string]Adapter
}

// New creates a gateway and an invoker for every tenant already registered.
func New(cfg Config) (*Gateway, error) {
	if cfg.Tenants == nil {
		return nil, errors.New("gateway: tenant registry is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{
		tenants:    cfg.Tenants,
		sessions:   cfg.Sessions,
		ledger:     cfg.Ledger,
		feed:       cfg.Feed,
		dedupe:     cfg.Dedupe,
		maxRetries: cfg.MaxRetries,
		client:     cfg.HTTPClient,
		logger:     logger.With("component", "gateway"),
		baseLogger: logger,
		now:        cfg.Now,
		invokers:   make(map[string]*invoker.Invoker),
		adapters:   make(map[string]Adapter),
	}
	if g.sessions == nil {
		g.sessions = session.New(session.WithLogger(logger))
	}
	if g.dedupe == nil {
		g.dedupe = dedupe.New(dedupe.DefaultTTL, dedupe.DefaultMaxEntries)
		g.ownsDedupe = true
	}
	if g.client == nil {
		g.client = &http.Client{}
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.maxRetries < 0 {
		g.maxRetries = 0
	}

	for _, t := range g.tenants.All() {
		g.ensureInvoker(t)
	}

	g.logger.Info("gateway initialized",
		"tenants", g.tenants.IDs(),
		"max_retries", g.maxRetries,
		"ledger", g.ledger != nil,
	)
	return g, nil
}

// Sessions exposes the session store.
func (g *Gateway) Sessions() *session.Store {
	return g.sessions
}

// Feed exposes the live event broadcaster, nil when none was configured.
func (g *Gateway) Feed() *conversation.EventBroadcaster {
	return g.feed
}

// Tenants exposes the tenant registry.
func (g *Gateway) Tenants() *tenant.Registry {
	return g.tenants
}

// ProcessMessage runs one inbound message through the pipeline and returns
// the agent's reply or a failure envelope. It never panics.
func (g *Gateway) ProcessMessage(ctx context.Context, raw *message.Inbound, channel message.Channel) (resp message.AgentResponse) {
	sessionID := unknownSession

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("panic while processing message",
				"channel", channel,
				"session_id", sessionID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			resp = message.Failure(message.ErrorGateway, fmt.Sprintf("Gateway error: %v", r), sessionID)
		}
	}()

	if raw == nil {
		return message.Failure(message.ErrorGateway, "Gateway error: nil message", sessionID)
	}

	in := *raw
	if in.SessionID != "" {
		sessionID = in.SessionID
	}

	tenantID := in.TenantID
	if tenantID == "" {
		tenantID = tenant.DefaultID
	}
	in.TenantID = tenantID

	if !g.tenants.Validate(tenantID) {
		g.logger.Warn("rejected message for invalid tenant", "tenant_id", tenantID, "channel", channel)
		return message.Failure(message.ErrorInvalidTenant, "Invalid tenant: "+tenantID, sessionID)
	}

	if channel == message.ChannelWeb && in.UserID == "" {
		in.UserID = fmt.Sprintf("web-user-%d", g.now().UnixMilli())
	}

	msg, err := message.Normalize(channel, in)
	if err != nil {
		g.logger.Warn("rejected message for unsupported channel", "tenant_id", tenantID, "channel", channel)
		return message.Failure(message.ErrorUnsupportedChannel, "Unsupported channel: "+string(channel), sessionID)
	}

	if !msg.Valid() {
		g.logger.Debug("message failed validation", "tenant_id", tenantID, "channel", channel, "user_id", msg.UserID)
		return message.Failure(message.ErrorInvalidMessage, "Failed to normalize message", msg.SessionID)
	}

	sess := g.sessions.GetOrCreate(msg.UserID, tenantID, channel, in.SessionID)
	msg.SessionID = sess.ID
	sessionID = sess.ID

	inv := g.invoker(tenantID)
	if inv == nil {
		g.logger.Error("no invoker for tenant", "tenant_id", tenantID)
		return message.Failure(message.ErrorNoInvoker, "No invoker configured for tenant: "+tenantID, sess.ID)
	}

	g.recordInbound(ctx, &msg)

	if g.maxRetries > 0 {
		resp = inv.InvokeWithRetry(ctx, &msg, g.maxRetries)
	} else {
		resp = inv.Invoke(ctx, &msg)
	}

	g.sessions.Update(sess.ID, message.Metadata{
		MetaLastActivity: message.Int(g.now().UnixMilli()),
		MetaLastChannel:  message.String(string(channel)),
	})

	g.recordOutbound(ctx, &msg, resp)

	g.logger.Debug("message processed",
		"tenant_id", tenantID,
		"channel", channel,
		"session_id", sess.ID,
		"success", resp.Success,
	)
	return resp
}

// HandleBridgeMessage processes a chat platform message once. A message whose
// platform id was already seen within the dedupe window is dropped and the
// second return value is false. Messages without a platform id are never
// deduplicated.
func (g *Gateway) HandleBridgeMessage(ctx context.Context, raw *message.Inbound, channel message.Channel) (message.AgentResponse, bool) {
	if raw != nil && raw.MessageID != "" {
		key := dedupe.Key(string(channel), raw.MessageID)
		if g.dedupe.SeenOrRecord(key) {
			g.logger.Debug("duplicate bridge message ignored",
				"channel", channel,
				"platform_id", raw.MessageID,
			)
			return message.AgentResponse{}, false
		}
	}
	return g.ProcessMessage(ctx, raw, channel), true
}

// invoker returns the tenant's invoker, or nil.
func (g *Gateway) invoker(tenantID string) *invoker.Invoker {
	g.invokersMu.RLock()
	defer g.invokersMu.RUnlock()
	return g.invokers[tenantID]
}

// ensureInvoker creates the tenant's invoker or retargets the existing one.
func (g *Gateway) ensureInvoker(cfg tenant.Config) *invoker.Invoker {
	g.invokersMu.Lock()
	defer g.invokersMu.Unlock()

	if inv, ok := g.invokers[cfg.TenantID]; ok {
		inv.SetURL(cfg.Agent.URL())
		inv.SetTimeout(cfg.Agent.Timeout())
		return inv
	}

	inv := invoker.New(cfg.Agent.URL(), cfg.Agent.Timeout(),
		invoker.WithHTTPClient(g.client),
		invoker.WithLogger(g.baseLogger.With("tenant_id", cfg.TenantID)),
	)
	g.invokers[cfg.TenantID] = inv
	return inv
}

func (g *Gateway) dropInvoker(tenantID string) {
	g.invokersMu.Lock()
	defer g.invokersMu.Unlock()
	delete(g.invokers, tenantID)
}

// Close shuts down adapters and the dedupe cache if the gateway created it.
func (g *Gateway) Close() error {
	err := g.CloseAdapters()
	if g.ownsDedupe {
		g.dedupe.Close()
	}
	return err
}
