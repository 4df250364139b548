// ABOUTME: Background loops: session sweeping, gRPC health refresh and ledger retention
// ABOUTME: All loops stop when the server shuts down

package server

import (
	"context"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/2389/switchboard/internal/config"
	"github.com/2389/switchboard/internal/gateway"
)

// Health service names reported over gRPC.
const (
	healthServiceName   = "switchboard"
	tenantServicePrefix = "switchboard.tenant."
)

func (s *Server) startMaintenance() {
	ctx, cancel := context.WithCancel(context.Background())
	s.maintCancel = cancel

	sweep := s.config.Sessions.SweepInterval
	if sweep <= 0 {
		sweep = config.DefaultSweepInterval
	}
	s.gateway.Sessions().StartSweeper(sweep)

	if s.health != nil {
		interval := s.config.Agents.HealthInterval
		if interval <= 0 {
			interval = config.DefaultHealthInterval
		}
		s.every(ctx, interval, s.refreshHealth)
	}

	if retention := s.config.Database.Retention; retention > 0 && s.ledger != nil {
		s.every(ctx, pruneInterval, func(ctx context.Context) { s.pruneLedger(ctx, retention) })
	}
}

func (s *Server) stopMaintenance() {
	if s.maintCancel != nil {
		s.maintCancel()
	}
	s.maintWG.Wait()
}

// every runs fn now and then on each tick until ctx is done.
func (s *Server) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	s.maintWG.Add(1)
	go func() {
		defer s.maintWG.Done()

		fn(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// refreshHealth maps the gateway health check onto gRPC serving status.
// Degraded still serves; only unhealthy reports NOT_SERVING.
func (s *Server) refreshHealth(ctx context.Context) {
	h := s.gateway.HealthCheck(ctx)
	if ctx.Err() != nil {
		return
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if h.Status == gateway.StatusUnhealthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", overall)
	s.health.SetServingStatus(healthServiceName, overall)

	for id, ok := range h.AgentHealth {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if ok {
			status = healthpb.HealthCheckResponse_SERVING
		}
		s.health.SetServingStatus(tenantServicePrefix+id, status)
	}
}

func (s *Server) pruneLedger(ctx context.Context, retention time.Duration) {
	n, err := s.gateway.PruneLedger(ctx, retention)
	if err != nil {
		s.logger.Warn("ledger prune failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("pruned ledger events", "removed", n, "retention", retention)
	}
}
