// ABOUTME: Tests for adapter registration and lifecycle fan-out
// ABOUTME: Fake adapters record initialize and close calls

package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/switchboard/internal/message"
)

type fakeAdapter struct {
	name        string
	channel     message.Channel
	initErr     error
	closeErr    error
	initialized bool
	closed      bool
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Channel() message.Channel {
	if f.channel == "" {
		return message.ChannelWeb
	}
	return f.channel
}

func (f *fakeAdapter) ProcessMessage(ctx context.Context, raw *message.Inbound) error { return nil }

func (f *fakeAdapter) Initialize(ctx context.Context) error {
	f.initialized = true
	return f.initErr
}

func (f *fakeAdapter) Close() error {
	f.closed = true
	return f.closeErr
}

// bareAdapter implements neither Initializer nor io.Closer.
type bareAdapter struct{}

func (bareAdapter) Name() string                                           { return "bare" }
func (bareAdapter) Channel() message.Channel                               { return message.ChannelMatrix }
func (bareAdapter) ProcessMessage(context.Context, *message.Inbound) error { return nil }

func TestAdapters_Registry(t *testing.T) {
	agent, _ := echoAgent(t)
	g := newTestGateway(t, Config{}, defaultTenant(agent.URL))

	slack := &fakeAdapter{name: "slack", channel: message.ChannelSlack}
	g.RegisterAdapter("slack", slack)
	g.RegisterAdapter("bare", bareAdapter{})

	assert.Equal(t, []string{"bare", "slack"}, g.ListAdapters())
	got, ok := g.Adapter("slack")
	require.True(t, ok)
	assert.Same(t, slack, got)

	_, ok = g.Adapter("missing")
	assert.False(t, ok)

	assert.Equal(t, []AdapterInfo{
		{Name: "bare", Channel: message.ChannelMatrix},
		{Name: "slack", Channel: message.ChannelSlack},
	}, g.AdapterInfos())
}

func TestInitializeAdapters_AttemptsAll(t *testing.T) {
	agent, _ := echoAgent(t)
	g := newTestGateway(t, Config{}, defaultTenant(agent.URL))

	bad := &fakeAdapter{name: "a", initErr: errors.New("no token")}
	good := &fakeAdapter{name: "b"}
	g.RegisterAdapter("a", bad)
	g.RegisterAdapter("b", good)
	g.RegisterAdapter("bare", bareAdapter{})

	err := g.InitializeAdapters(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initializing a: no token")
	assert.True(t, bad.initialized)
	assert.True(t, good.initialized)
}

func TestClose_ClosesAdapters(t *testing.T) {
	agent, _ := echoAgent(t)
	g := newTestGateway(t, Config{}, defaultTenant(agent.URL))

	a := &fakeAdapter{name: "a", closeErr: errors.New("already gone")}
	b := &fakeAdapter{name: "b"}
	g.RegisterAdapter("a", a)
	g.RegisterAdapter("b", b)

	err := g.Close()
	assert.ErrorContains(t, err, "closing a: already gone")
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
