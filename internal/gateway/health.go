// ABOUTME: Aggregated health across every tenant's agent endpoint
// ABOUTME: Probes run concurrently with a bounded fan-out

package gateway

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Status summarizes agent reachability across tenants.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// maxConcurrentProbes bounds the health fan-out.
const maxConcurrentProbes = 8

// Health is the result of HealthCheck.
type Health struct {
	Status      Status          `json:"status"`
	Adapters    []string        `json:"adapters"`
	Tenants     []string        `json:"tenants"`
	AgentHealth map[string]bool `json:"agentHealth"`
}

// HealthCheck probes each tenant's agent. The status is healthy when every
// probe succeeds (including when there are no tenants), degraded when some do
// and unhealthy when none do. A tenant without an invoker counts as failed.
func (g *Gateway) HealthCheck(ctx context.Context) Health {
	ids := g.tenants.IDs()
	results := make([]bool, len(ids))

	var eg errgroup.Group
	eg.SetLimit(maxConcurrentProbes)
	for i, id := range ids {
		inv := g.invoker(id)
		if inv == nil {
			continue
		}
		eg.Go(func() error {
			results[i] = inv.HealthCheck(ctx)
			return nil
		})
	}
	_ = eg.Wait()

	agentHealth := make(map[string]bool, len(ids))
	healthy := 0
	for i, id := range ids {
		agentHealth[id] = results[i]
		if results[i] {
			healthy++
		}
	}

	status := StatusDegraded
	switch {
	case healthy == len(ids):
		status = StatusHealthy
	case healthy == 0:
		status = StatusUnhealthy
	}

	if status != StatusHealthy {
		g.logger.Warn("agent health check", "status", status, "healthy", healthy, "tenants", len(ids))
	}

	return Health{
		Status:      status,
		Adapters:    g.ListAdapters(),
		Tenants:     ids,
		AgentHealth: agentHealth,
	}
}
