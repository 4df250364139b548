// ABOUTME: Tests for the tenant registry, usability rules and bootstrap layering
// ABOUTME: Includes a concurrent register/read check for the race detector

package tenant

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/switchboard/internal/message"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfig_Usable(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want bool
	}{
		{"nothing enabled", Config{TenantID: "a"}, false},
		{"web only", Config{Web: WebConfig{Enabled: true}}, true},
		{"slack without token", Config{Slack: SlackConfig{Enabled: true}}, false},
		{"slack with token", Config{Slack: SlackConfig{Enabled: true, BotToken: "xoxb"}}, true},
		{"discord without token", Config{Discord: DiscordConfig{Enabled: true}}, false},
		{"discord with token", Config{Discord: DiscordConfig{Enabled: true, Token: "t"}}, true},
		{"token but disabled", Config{Discord: DiscordConfig{Token: "t"}}, false},
		{"matrix missing homeserver", Config{Matrix: MatrixConfig{Enabled: true, AccessToken: "t"}}, false},
		{"matrix complete", Config{Matrix: MatrixConfig{Enabled: true, AccessToken: "t", Homeserver: "https://hs"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Usable())
		})
	}
}

func TestAgentConfig_Defaults(t *testing.T) {
	var a AgentConfig
	assert.Equal(t, 30*time.Second, a.Timeout())
	assert.Equal(t, DefaultInvokeURL, a.URL())

	a = AgentConfig{InvokeURL: "http://agent/x", TimeoutMS: 1500}
	assert.Equal(t, 1500*time.Millisecond, a.Timeout())
	assert.Equal(t, "http://agent/x", a.URL())
}

func TestRegistry_GetValidate(t *testing.T) {
	reg := NewRegistry(testLogger(),
		Config{TenantID: "acme", Web: WebConfig{Enabled: true}},
		Config{TenantID: "broken", Slack: SlackConfig{Enabled: true}},
	)

	got, ok := reg.Get("acme")
	require.True(t, ok)
	assert.Equal(t, "acme", got.TenantID)

	assert.True(t, reg.Validate("acme"))
	assert.False(t, reg.Validate("broken"), "registered but unusable")
	assert.False(t, reg.Validate("ghost"), "unregistered")

	_, ok = reg.Get("ghost")
	assert.False(t, ok)
}

func TestRegistry_RegisterUpserts(t *testing.T) {
	reg := NewRegistry(testLogger())
	require.True(t, reg.Register(Config{TenantID: "t1", Name: "first"}))
	require.True(t, reg.Register(Config{TenantID: "t1", Name: "second", Web: WebConfig{Enabled: true}}))

	got, _ := reg.Get("t1")
	assert.Equal(t, "second", got.Name)
	assert.True(t, reg.Validate("t1"))
	assert.Equal(t, 1, reg.Len())

	assert.False(t, reg.Register(Config{Name: "no id"}))
}

func TestRegistry_IDsAndAllSorted(t *testing.T) {
	reg := NewRegistry(testLogger(), Config{TenantID: "zeta"}, Config{TenantID: "alpha"}, Config{TenantID: "mid"})
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, reg.IDs())

	all := reg.All()
	require.Len(t, all, 3)
	assert.Equal(t, "alpha", all[0].TenantID)
}

func TestRegistry_RemoveKeepsDefault(t *testing.T) {
	reg := NewRegistry(testLogger(), DefaultTenant(Defaults{}), Config{TenantID: "x"})
	assert.False(t, reg.Remove(DefaultID))
	assert.True(t, reg.Remove("x"))
	assert.False(t, reg.Remove("x"))
	assert.Equal(t, []string{DefaultID}, reg.IDs())
}

func TestDefaultTenant(t *testing.T) {
	def := DefaultTenant(Defaults{DiscordToken: "d-token", TimeoutMS: 5000})

	assert.Equal(t, DefaultID, def.TenantID)
	assert.Equal(t, "Default Tenant", def.Name)
	assert.True(t, def.Web.Enabled)
	assert.False(t, def.Slack.Enabled, "no slack token")
	assert.True(t, def.Discord.Enabled)
	assert.Equal(t, DefaultInvokeURL, def.Agent.InvokeURL)
	assert.Equal(t, 5*time.Second, def.Agent.Timeout())
	assert.Equal(t, []message.Channel{message.ChannelWeb, message.ChannelDiscord}, def.Channels())
}

func TestBootstrap_TenantsJSON(t *testing.T) {
	raw := `[
		{"tenantId":"acme","name":"Acme","web":{"enabled":true},
		 "agentConfig":{"invokeUrl":"http://acme/agent","timeout":1000}},
		{"tenantId":"globex","slack":{"enabled":true,"botToken":"xoxb-1"}}
	]`
	reg := Bootstrap(testLogger(), DefaultTenant(Defaults{}), nil, raw)

	assert.Equal(t, []string{"acme", DefaultID, "globex"}, reg.IDs())
	acme, ok := reg.Get("acme")
	require.True(t, ok)
	assert.Equal(t, "http://acme/agent", acme.Agent.URL())
	assert.Equal(t, time.Second, acme.Agent.Timeout())
	assert.True(t, reg.Validate("globex"))
}

func TestBootstrap_MalformedJSONIgnored(t *testing.T) {
	reg := Bootstrap(testLogger(), DefaultTenant(Defaults{}), []Config{{TenantID: "cfg", Web: WebConfig{Enabled: true}}}, `{not json`)
	assert.Equal(t, []string{"cfg", DefaultID}, reg.IDs())
}

func TestBootstrap_LayersOverride(t *testing.T) {
	configured := []Config{{TenantID: DefaultID, Name: "From config", Web: WebConfig{Enabled: true}}}
	reg := Bootstrap(testLogger(), DefaultTenant(Defaults{}), configured, `[{"tenantId":"default","name":"From env","web":{"enabled":true}}]`)

	def, _ := reg.Get(DefaultID)
	assert.Equal(t, "From env", def.Name)
}

func TestRedacted(t *testing.T) {
	cfg := Config{Slack: SlackConfig{BotToken: "xoxb-secret"}, Discord: DiscordConfig{}}
	r := cfg.Redacted()
	assert.Equal(t, "********", r.Slack.BotToken)
	assert.Equal(t, "", r.Discord.Token)
	assert.Equal(t, "xoxb-secret", cfg.Slack.BotToken)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry(testLogger(), DefaultTenant(Defaults{}))

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			reg.Register(Config{TenantID: fmt.Sprintf("t%d", n), Web: WebConfig{Enabled: true}})
		}(i)
		go func() {
			defer wg.Done()
			_ = reg.Validate(DefaultID)
			_ = reg.All()
		}()
	}
	wg.Wait()

	assert.Equal(t, 21, reg.Len())
}
