// ABOUTME: Tests for server wiring: construction, lifecycle, gRPC health and maintenance
// ABOUTME: Builds a real gateway against httptest agents and an in-memory ledger

package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/2389/switchboard/internal/config"
	"github.com/2389/switchboard/internal/conversation"
	"github.com/2389/switchboard/internal/frontend"
	"github.com/2389/switchboard/internal/gateway"
	"github.com/2389/switchboard/internal/store"
	"github.com/2389/switchboard/internal/tenant"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoAgent replies with the text it received.
func echoAgent(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "echo: " + body.Text})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func webTenant(id, url string) tenant.Config {
	return tenant.Config{
		TenantID: id,
		Name:     id,
		Web:      tenant.WebConfig{Enabled: true},
		Slack:    tenant.SlackConfig{Enabled: true, BotToken: "xoxb-secret"},
		Agent:    tenant.AgentConfig{InvokeURL: url, TimeoutMS: 2000},
	}
}

type testServer struct {
	*Server
	gw     *gateway.Gateway
	ledger *store.MockStore
}

type serverOpts struct {
	noLedger bool
	noFeed   bool
	mutate   func(*config.Config)
	tenants  []tenant.Config
}

func newTestServer(t *testing.T, o serverOpts) testServer {
	t.Helper()

	cfg := config.Default()
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	if o.mutate != nil {
		o.mutate(cfg)
	}

	tenants := o.tenants
	if tenants == nil {
		tenants = []tenant.Config{webTenant(tenant.DefaultID, echoAgent(t).URL)}
	}

	var (
		mock   *store.MockStore
		ledger store.Ledger
	)
	if !o.noLedger {
		mock = store.NewMockStore()
		ledger = mock
	}

	var feed *conversation.EventBroadcaster
	if !o.noFeed {
		feed = conversation.NewEventBroadcaster(quietLogger())
		t.Cleanup(feed.Close)
	}

	gw, err := gateway.New(gateway.Config{
		Tenants: tenant.NewRegistry(quietLogger(), tenants...),
		Ledger:  ledger,
		Feed:    feed,
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })

	web := frontend.NewWeb(gw, frontend.WebOptions{Logger: quietLogger()})
	gw.RegisterAdapter(web.Name(), web)

	s, err := New(Options{
		Config:  cfg,
		Gateway: gw,
		Web:     web,
		Ledger:  ledger,
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	return testServer{Server: s, gw: gw, ledger: mock}
}

func TestNew_RequiresConfigAndGateway(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestNew_RejectsWeakSecret(t *testing.T) {
	gw, err := gateway.New(gateway.Config{Tenants: tenant.NewRegistry(quietLogger()), Logger: quietLogger()})
	require.NoError(t, err)
	defer gw.Close()

	cfg := config.Default()
	cfg.Auth.JWTSecret = "short"
	_, err = New(Options{Config: cfg, Gateway: gw, Logger: quietLogger()})
	assert.Error(t, err)
}

func TestNew_GRPCOnlyWhenAddressSet(t *testing.T) {
	s := newTestServer(t, serverOpts{})
	assert.Nil(t, s.grpcServer)

	s = newTestServer(t, serverOpts{mutate: func(c *config.Config) { c.Server.GRPCAddr = "127.0.0.1:0" }})
	assert.NotNil(t, s.grpcServer)
	assert.NotNil(t, s.health)
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := newTestServer(t, serverOpts{mutate: func(c *config.Config) { c.Server.GRPCAddr = "127.0.0.1:0" }})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := newTestServer(t, serverOpts{mutate: func(c *config.Config) { c.Server.HTTPAddr = ln.Addr().String() }})
	err = s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listening on HTTP address")
}

func TestResolveTailscaleStateDir(t *testing.T) {
	dir, err := resolveTailscaleStateDir("/var/lib/sb")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/sb", dir)

	t.Setenv("HOME", "/home/op")
	dir, err = resolveTailscaleStateDir("")
	require.NoError(t, err)
	assert.Equal(t, "/home/op/.local/share/switchboard/tailscale", dir)
}

func TestResolveTailscaleAuthKey(t *testing.T) {
	t.Setenv("TS_AUTHKEY", "")
	_, err := resolveTailscaleAuthKey("")
	assert.Error(t, err)

	key, err := resolveTailscaleAuthKey("tskey-conf")
	require.NoError(t, err)
	assert.Equal(t, "tskey-conf", key)

	t.Setenv("TS_AUTHKEY", "tskey-env")
	key, err = resolveTailscaleAuthKey("")
	require.NoError(t, err)
	assert.Equal(t, "tskey-env", key)
}

// dialHealth serves the gRPC server over an in-memory listener.
func dialHealth(t *testing.T, s testServer) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = s.grpcServer.Serve(lis) }()
	t.Cleanup(s.grpcServer.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func TestRefreshHealth_ReportsTenants(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	s := newTestServer(t, serverOpts{
		mutate: func(c *config.Config) { c.Server.GRPCAddr = "127.0.0.1:0" },
		tenants: []tenant.Config{
			webTenant(tenant.DefaultID, echoAgent(t).URL),
			webTenant("acme", downURL),
		},
	})
	client := dialHealth(t, s)

	s.refreshHealth(context.Background())

	ctx := context.Background()
	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err, service)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""), "degraded still serves")
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(healthServiceName))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(tenantServicePrefix+tenant.DefaultID))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(tenantServicePrefix+"acme"))
}

func TestRefreshHealth_UnhealthyNotServing(t *testing.T) {
	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	s := newTestServer(t, serverOpts{
		mutate:  func(c *config.Config) { c.Server.GRPCAddr = "127.0.0.1:0" },
		tenants: []tenant.Config{webTenant(tenant.DefaultID, downURL)},
	})
	client := dialHealth(t, s)

	s.refreshHealth(context.Background())

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: healthServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestPruneLedger_RemovesExpired(t *testing.T) {
	s := newTestServer(t, serverOpts{})
	ctx := context.Background()

	require.NoError(t, s.ledger.SaveEvent(ctx, &store.LedgerEvent{
		ID: "old", TenantID: "default", SessionID: "s", Channel: "web",
		Direction: store.EventDirectionInbound, Author: "u", Type: store.EventTypeMessage,
		Timestamp: time.Now().Add(-72 * time.Hour),
	}))
	require.NoError(t, s.ledger.SaveEvent(ctx, &store.LedgerEvent{
		ID: "new", TenantID: "default", SessionID: "s", Channel: "web",
		Direction: store.EventDirectionInbound, Author: "u", Type: store.EventTypeMessage,
		Timestamp: time.Now(),
	}))

	s.pruneLedger(ctx, 24*time.Hour)

	events := s.ledger.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "new", events[0].ID)
}

func TestMaintenance_StartsAndStops(t *testing.T) {
	s := newTestServer(t, serverOpts{mutate: func(c *config.Config) {
		c.Server.GRPCAddr = "127.0.0.1:0"
		c.Database.Retention = time.Hour
		c.Agents.HealthInterval = 10 * time.Millisecond
	}})

	s.startMaintenance()
	assert.Eventually(t, func() bool {
		resp, err := s.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: healthServiceName})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 10*time.Millisecond)

	s.stopMaintenance()
	require.NoError(t, s.gw.Sessions().Close())
}
