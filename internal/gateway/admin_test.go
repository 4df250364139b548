// ABOUTME: Tests for administrative operations and their audit trail
// ABOUTME: Uses the mock ledger to observe audit entries and pruning

package gateway

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/switchboard/internal/auth"
	"github.com/2389/switchboard/internal/message"
	"github.com/2389/switchboard/internal/store"
	"github.com/2389/switchboard/internal/tenant"
)

func adminCtx() context.Context {
	return auth.WithAuth(context.Background(), &auth.AuthContext{Subject: "alice", Role: auth.RoleAdmin})
}

func TestRegisterTenant_RoutesImmediately(t *testing.T) {
	agent, calls := echoAgent(t)
	g := newTestGateway(t, Config{}, defaultTenant(agent.URL))

	err := g.RegisterTenant(adminCtx(), tenant.Config{
		TenantID: "acme",
		Web:      tenant.WebConfig{Enabled: true},
		Agent:    tenant.AgentConfig{InvokeURL: agent.URL},
	})
	require.NoError(t, err)

	resp := g.ProcessMessage(context.Background(), &message.Inbound{Text: "hi", UserID: "u1", TenantID: "acme"}, message.ChannelWeb)
	assert.True(t, resp.Success, resp.Response)
	assert.Equal(t, int32(1), calls.Load())

	entries, err := g.AuditLog(context.Background(), store.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Actor)
	assert.Equal(t, store.AuditRegisterTenant, entries[0].Action)
	assert.Equal(t, "acme", entries[0].TargetID)
	assert.Equal(t, agent.URL, entries[0].Detail["invokeUrl"])
}

func TestRegisterTenant_RequiresID(t *testing.T) {
	agent, _ := echoAgent(t)
	g := newTestGateway(t, Config{}, defaultTenant(agent.URL))

	err := g.RegisterTenant(context.Background(), tenant.Config{Name: "nameless"})
	assert.ErrorIs(t, err, ErrInvalidTenant)
	assert.Len(t, g.ListTenants(), 1)
}

func TestRegisterTenant_ReplacesEndpoint(t *testing.T) {
	first, firstCalls := echoAgent(t)
	second, secondCalls := echoAgent(t)
	g := newTestGateway(t, Config{}, defaultTenant(first.URL))

	cfg := defaultTenant(second.URL)
	require.NoError(t, g.RegisterTenant(context.Background(), cfg))

	g.ProcessMessage(context.Background(), &message.Inbound{Text: "hi", UserID: "u1"}, message.ChannelWeb)
	assert.Equal(t, int32(0), firstCalls.Load())
	assert.Equal(t, int32(1), secondCalls.Load())
}

func TestRemoveTenant(t *testing.T) {
	agent, _ := echoAgent(t)
	acme := tenant.Config{TenantID: "acme", Web: tenant.WebConfig{Enabled: true}, Agent: tenant.AgentConfig{InvokeURL: agent.URL}}
	g := newTestGateway(t, Config{}, defaultTenant(agent.URL), acme)

	assert.ErrorIs(t, g.RemoveTenant(adminCtx(), tenant.DefaultID), ErrDefaultTenant)
	assert.ErrorIs(t, g.RemoveTenant(adminCtx(), "missing"), ErrTenantNotFound)
	require.NoError(t, g.RemoveTenant(adminCtx(), "acme"))

	_, ok := g.Tenant("acme")
	assert.False(t, ok)
	assert.Nil(t, g.invoker("acme"))

	resp := g.ProcessMessage(context.Background(), &message.Inbound{Text: "hi", UserID: "u1", TenantID: "acme"}, message.ChannelWeb)
	assert.Equal(t, "Invalid tenant: acme", resp.Response)

	action := store.AuditRemoveTenant
	entries, err := g.AuditLog(context.Background(), store.AuditFilter{Action: &action})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "acme", entries[0].TargetID)
}

func TestSetAgentEndpoint(t *testing.T) {
	first, _ := echoAgent(t)
	second, secondCalls := echoAgent(t)
	g := newTestGateway(t, Config{}, defaultTenant(first.URL))

	cfg, err := g.SetAgentEndpoint(adminCtx(), tenant.DefaultID, second.URL, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, second.URL, cfg.Agent.InvokeURL)
	assert.Equal(t, int64(5000), cfg.Agent.TimeoutMS)

	inv := g.invoker(tenant.DefaultID)
	require.NotNil(t, inv)
	assert.Equal(t, second.URL, inv.URL())
	assert.Equal(t, 5*time.Second, inv.Timeout())

	g.ProcessMessage(context.Background(), &message.Inbound{Text: "hi", UserID: "u1"}, message.ChannelWeb)
	assert.Equal(t, int32(1), secondCalls.Load())

	// Timeout alone keeps the url.
	cfg, err = g.SetAgentEndpoint(adminCtx(), tenant.DefaultID, "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, second.URL, cfg.Agent.InvokeURL)
	assert.Equal(t, int64(1000), cfg.Agent.TimeoutMS)
}

func TestSetAgentEndpoint_Errors(t *testing.T) {
	agent, _ := echoAgent(t)
	g := newTestGateway(t, Config{}, defaultTenant(agent.URL))

	_, err := g.SetAgentEndpoint(context.Background(), "missing", agent.URL, 0)
	assert.ErrorIs(t, err, ErrTenantNotFound)

	_, err = g.SetAgentEndpoint(context.Background(), tenant.DefaultID, "", 0)
	assert.ErrorIs(t, err, ErrInvalidAgentSpec)
}

func TestClearSession_Audited(t *testing.T) {
	agent, _ := echoAgent(t)
	g := newTestGateway(t, Config{}, defaultTenant(agent.URL))

	resp := g.ProcessMessage(context.Background(), &message.Inbound{Text: "hi", UserID: "u1", SessionID: "s1"}, message.ChannelWeb)
	require.True(t, resp.Success)

	assert.True(t, g.ClearSession(context.Background(), "s1"))
	assert.False(t, g.ClearSession(context.Background(), "s1"))

	entries, err := g.AuditLog(context.Background(), store.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1, "a miss is not audited")
	assert.Equal(t, "anonymous", entries[0].Actor)
	assert.Equal(t, "session", entries[0].TargetType)
}

func TestSessionEvents(t *testing.T) {
	agent, _ := echoAgent(t)
	g := newTestGateway(t, Config{}, defaultTenant(agent.URL))

	g.ProcessMessage(context.Background(), &message.Inbound{Text: "one", UserID: "u1", SessionID: "s1"}, message.ChannelWeb)
	g.ProcessMessage(context.Background(), &message.Inbound{Text: "two", UserID: "u1", SessionID: "s1"}, message.ChannelWeb)

	events, err := g.SessionEvents(context.Background(), "s1", 0)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, "one", events[0].Text)
	assert.Equal(t, "echo: two", events[3].Text)

	tenantEvents, err := g.TenantEvents(context.Background(), tenant.DefaultID, 2)
	require.NoError(t, err)
	assert.Len(t, tenantEvents, 2)
}

func TestLedgerDisabled(t *testing.T) {
	agent, _ := echoAgent(t)
	g, err := New(Config{
		Tenants: tenant.NewRegistry(quietLogger(), defaultTenant(agent.URL)),
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	defer g.Close()

	resp := g.ProcessMessage(context.Background(), &message.Inbound{Text: "hi", UserID: "u1"}, message.ChannelWeb)
	assert.True(t, resp.Success)

	_, err = g.SessionEvents(context.Background(), resp.SessionID, 10)
	assert.ErrorIs(t, err, ErrLedgerDisabled)
	_, err = g.AuditLog(context.Background(), store.AuditFilter{})
	assert.ErrorIs(t, err, ErrLedgerDisabled)
	_, err = g.PruneLedger(context.Background(), time.Hour)
	assert.ErrorIs(t, err, ErrLedgerDisabled)

	// Mutations still work without an audit trail.
	assert.NoError(t, g.RegisterTenant(context.Background(), tenant.Config{TenantID: "acme"}))
}

func TestPruneLedger(t *testing.T) {
	agent, _ := echoAgent(t)
	g := newTestGateway(t, Config{}, defaultTenant(agent.URL))

	old := &store.LedgerEvent{
		ID: "old", TenantID: tenant.DefaultID, SessionID: "s", Channel: "web",
		Direction: store.EventDirectionInbound, Author: "u", Type: store.EventTypeMessage,
		Timestamp: fixedNow.Add(-48 * time.Hour), Text: "ancient",
	}
	require.NoError(t, g.ledger.SaveEvent(context.Background(), old))
	g.ProcessMessage(context.Background(), &message.Inbound{Text: "fresh", UserID: "u"}, message.ChannelWeb)

	removed, err := g.PruneLedger(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Len(t, g.ledger.Events(), 2)
}

func TestTenantAdmin_ConcurrentMutationsStayConsistent(t *testing.T) {
	agent, _ := echoAgent(t)
	g := newTestGateway(t, Config{}, defaultTenant(agent.URL))
	ctx := context.Background()

	consistent := func(id string) {
		t.Helper()
		cfg, registered := g.Tenant(id)
		inv := g.invoker(id)
		require.Equal(t, registered, inv != nil, "tenant %s registry and invoker disagree", id)
		if registered {
			assert.Equal(t, cfg.Agent.URL(), inv.URL())
		}
	}

	for round := range 200 {
		id := fmt.Sprintf("t%d", round)
		require.NoError(t, g.RegisterTenant(ctx, webTenant(id, agent.URL)))

		var wg sync.WaitGroup
		wg.Add(4)
		go func() {
			defer wg.Done()
			_, _ = g.SetAgentEndpoint(ctx, id, agent.URL+"/set", 0)
		}()
		go func() {
			defer wg.Done()
			_ = g.RemoveTenant(ctx, id)
		}()
		go func() {
			defer wg.Done()
			_ = g.RegisterTenant(ctx, webTenant(id, agent.URL+"/a"))
		}()
		go func() {
			defer wg.Done()
			_ = g.RegisterTenant(ctx, webTenant(id, agent.URL+"/b"))
		}()
		wg.Wait()

		consistent(id)
	}
}
