// ABOUTME: Channel adapter registration for introspection and lifecycle
// ABOUTME: Adapters are never called by the pipeline; the host initializes and closes them

package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/2389/switchboard/internal/message"
)

// Adapter translates one platform's events into gateway calls.
type Adapter interface {
	Name() string
	Channel() message.Channel
	ProcessMessage(ctx context.Context, raw *message.Inbound) error
}

// Initializer is implemented by adapters that must connect before use.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// AdapterInfo describes a registered adapter.
type AdapterInfo struct {
	Name    string          `json:"name"`
	Channel message.Channel `json:"channel"`
}

// RegisterAdapter stores a under name, replacing any previous adapter with that name.
func (g *Gateway) RegisterAdapter(name string, a Adapter) {
	g.adaptersMu.Lock()
	defer g.adaptersMu.Unlock()

	g.adapters[name] = a
	g.logger.Info("adapter registered", "name", name, "channel", a.Channel())
}

// Adapter returns the adapter registered under name.
func (g *Gateway) Adapter(name string) (Adapter, bool) {
	g.adaptersMu.RLock()
	defer g.adaptersMu.RUnlock()

	a, ok := g.adapters[name]
	return a, ok
}

// ListAdapters returns the registered adapter names, sorted.
func (g *Gateway) ListAdapters() []string {
	g.adaptersMu.RLock()
	defer g.adaptersMu.RUnlock()

	names := make([]string, 0, len(g.adapters))
	for name := range g.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AdapterInfos describes every registered adapter, sorted by name.
func (g *Gateway) AdapterInfos() []AdapterInfo {
	g.adaptersMu.RLock()
	defer g.adaptersMu.RUnlock()

	infos := make([]AdapterInfo, 0, len(g.adapters))
	for name, a := range g.adapters {
		infos = append(infos, AdapterInfo{Name: name, Channel: a.Channel()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// snapshotAdapters returns the adapters in name order without holding the lock.
func (g *Gateway) snapshotAdapters() []Adapter {
	names := g.ListAdapters()

	g.adaptersMu.RLock()
	defer g.adaptersMu.RUnlock()

	out := make([]Adapter, 0, len(names))
	for _, name := range names {
		if a, ok := g.adapters[name]; ok {
			out = append(out, a)
		}
	}
	return out
}

// InitializeAdapters calls Initialize on every adapter that implements
// Initializer. All adapters are attempted; the errors are joined.
func (g *Gateway) InitializeAdapters(ctx context.Context) error {
	var errs []error
	for _, a := range g.snapshotAdapters() {
		initializer, ok := a.(Initializer)
		if !ok {
			continue
		}
		if err := initializer.Initialize(ctx); err != nil {
			g.logger.Error("adapter failed to initialize", "name", a.Name(), "error", err)
			errs = append(errs, fmt.Errorf("initializing %s: %w", a.Name(), err))
			continue
		}
		g.logger.Info("adapter initialized", "name", a.Name())
	}
	return errors.Join(errs...)
}

// CloseAdapters closes every adapter that implements io.Closer.
func (g *Gateway) CloseAdapters() error {
	var errs []error
	for _, a := range g.snapshotAdapters() {
		c, ok := a.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", a.Name(), err))
		}
	}
	return errors.Join(errs...)
}
