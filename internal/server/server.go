// ABOUTME: Server lifecycle: wires HTTP and gRPC servers around the gateway and runs them
// ABOUTME: Owns listener setup, maintenance loops and graceful shutdown

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"tailscale.com/tsnet"

	"github.com/2389/switchboard/internal/auth"
	"github.com/2389/switchboard/internal/config"
	"github.com/2389/switchboard/internal/frontend"
	"github.com/2389/switchboard/internal/gateway"
	"github.com/2389/switchboard/internal/store"
)

// pruneInterval is how often ledger retention runs.
const pruneInterval = time.Hour

// Options wires a Server.
type Options struct {
	Config  *config.Config
	Gateway *gateway.Gateway

	// Web serves /api/chat and /api/ws; nil leaves them unmounted.
	Web *frontend.Web

	// Ledger is closed on shutdown. May be nil.
	Ledger store.Ledger

	Logger *slog.Logger
}

// Server runs the switchboard network surfaces.
type Server struct {
	config   *config.Config
	gateway  *gateway.Gateway
	web      *frontend.Web
	ledger   store.Ledger
	verifier auth.TokenVerifier
	logger   *slog.Logger

	httpServer  *http.Server
	grpcServer  *grpc.Server
	health      *health.Server
	tsnetServer *tsnet.Server

	startedAt time.Time

	maintCancel context.CancelFunc
	maintWG     sync.WaitGroup
}

// New builds the server and registers every route. Nothing listens until Run.
func New(opts Options) (*Server, error) {
	if opts.Config == nil || opts.Gateway == nil {
		return nil, errors.New("server: config and gateway are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:    opts.Config,
		gateway:   opts.Gateway,
		web:       opts.Web,
		ledger:    opts.Ledger,
		logger:    logger.With("component", "server"),
		startedAt: time.Now(),
	}

	if secret := opts.Config.Auth.JWTSecret; secret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(secret))
		if err != nil {
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		s.verifier = verifier
		s.logger.Info("admin API auth enabled (JWT)")
	} else {
		s.logger.Warn("auth disabled - no jwt_secret configured, admin API is open")
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.httpServer = &http.Server{
		Addr:              opts.Config.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if opts.Config.Server.GRPCAddr != "" {
		s.grpcServer, s.health = newGRPCServer()
	}
	return s, nil
}

// newGRPCServer creates a gRPC server exposing only health and reflection.
func newGRPCServer() (*grpc.Server, *health.Server) {
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	reflection.Register(server)
	return server, hs
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// setupTCPListeners creates standard TCP listeners for HTTP and, if enabled, gRPC.
func (s *Server) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	s.logger.Info("starting switchboard",
		"http_addr", s.config.Server.HTTPAddr,
		"grpc_addr", s.config.Server.GRPCAddr,
	)

	httpLn, err = net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	if s.grpcServer != nil {
		grpcLn, err = net.Listen("tcp", s.config.Server.GRPCAddr)
		if err != nil {
			_ = httpLn.Close()
			return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
		}
	}
	return grpcLn, httpLn, nil
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (s *Server) setupListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	if s.config.Tailscale.Enabled {
		if s.config.Server.HTTPAddr != "" && s.config.Server.HTTPAddr != config.DefaultHTTPAddr {
			s.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", s.config.Server.HTTPAddr)
		}
		return s.setupTailscaleListeners(ctx)
	}
	return s.setupTCPListeners()
}

// startServers starts the servers in goroutines, returning their error channel.
func (s *Server) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	if grpcLn != nil {
		go func() {
			s.logger.Info("gRPC health server listening", "addr", grpcLn.Addr().String())
			if err := s.grpcServer.Serve(grpcLn); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	go func() {
		s.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := s.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		s.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (s *Server) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		s.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts listening, initializes adapters and blocks until ctx is canceled
// or a server fails. It always shuts down before returning.
func (s *Server) Run(ctx context.Context) error {
	grpcLn, httpLn, err := s.setupListeners(ctx)
	if err != nil {
		return err
	}

	if err := s.gateway.InitializeAdapters(ctx); err != nil {
		// A broken chat integration must not take the web surface down.
		s.logger.Error("some adapters failed to initialize", "error", err)
	}

	s.startMaintenance()
	errCh := s.startServers(grpcLn, httpLn)
	serverErr := s.waitForShutdownSignal(ctx, errCh)

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (s *Server) shutdownGRPCServer(ctx context.Context) {
	if s.grpcServer == nil {
		return
	}
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the servers, the maintenance loops, the adapters and the ledger.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down switchboard")

	// Open event streams only end when the feed closes.
	if feed := s.gateway.Feed(); feed != nil {
		feed.Close()
	}

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))
	s.shutdownGRPCServer(ctx)
	s.stopMaintenance()

	errs = appendCloseError(errs, "gateway close", s.gateway.Close())
	errs = appendCloseError(errs, "sessions close", s.gateway.Sessions().Close())

	if s.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", s.tsnetServer.Close())
	}
	if s.ledger != nil {
		errs = appendCloseError(errs, "ledger close", s.ledger.Close())
	}

	return errors.Join(errs...)
}
