// Package server wires the control-plane services into a single HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stakehaus/fairplane/internal/api/admingrant"
	apifairness "github.com/stakehaus/fairplane/internal/api/fairness"
	apigovernance "github.com/stakehaus/fairplane/internal/api/governance"
	"github.com/stakehaus/fairplane/internal/api/httpx"
	"github.com/stakehaus/fairplane/internal/api/verification"
	"github.com/stakehaus/fairplane/internal/fairness"
	"github.com/stakehaus/fairplane/internal/fairness/bet"
	"github.com/stakehaus/fairplane/internal/gateway"
	"github.com/stakehaus/fairplane/internal/governance"
	"github.com/stakehaus/fairplane/internal/ledger"
	"github.com/stakehaus/fairplane/internal/platform/metrics"
	"github.com/stakehaus/fairplane/internal/storage/integrity"
	"github.com/stakehaus/fairplane/internal/storage/sqlite"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	defaultSweepInterval   = time.Minute
)

// Config holds the server configuration loaded from the environment.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `env:"FAIRPLANE_HTTP_ADDR" envDefault:":8080"`
	// DatabasePath locates the SQLite store.
	DatabasePath string `env:"FAIRPLANE_DB_PATH" envDefault:"fairplane.db"`
	// RequiredApprovals is the quorum threshold for governance actions.
	RequiredApprovals int `env:"FAIRPLANE_QUORUM_REQUIRED" envDefault:"2"`
	// CommitmentTTL is the reveal deadline for sealed commitments.
	CommitmentTTL time.Duration `env:"FAIRPLANE_COMMITMENT_TTL" envDefault:"15m"`
	// SweepInterval paces the background expiry and armed-action sweep.
	SweepInterval time.Duration `env:"FAIRPLANE_SWEEP_INTERVAL" envDefault:"1m"`
	// MinStakeCents and MaxStakeCents bound accepted stakes. Zero uses
	// the built-in defaults.
	MinStakeCents int64 `env:"FAIRPLANE_MIN_STAKE_CENTS"`
	MaxStakeCents int64 `env:"FAIRPLANE_MAX_STAKE_CENTS"`
	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `env:"FAIRPLANE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Server hosts the fairness and governance control plane over HTTP.
type Server struct {
	listener        net.Listener
	httpServer      *http.Server
	store           *sqlite.Store
	engine          *fairness.Engine
	gate            *governance.Gate
	sweepInterval   time.Duration
	shutdownTimeout time.Duration
}

// New creates a configured server listening on cfg.Addr. The ledger HMAC
// keyring and the admin grant verification key are loaded from the
// environment.
func New(cfg Config) (*Server, error) {
	keyring, err := integrity.KeyringFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load ledger keyring: %w", err)
	}
	grants, err := admingrant.LoadConfigFromEnv(nil)
	if err != nil {
		return nil, fmt.Errorf("load admin grant config: %w", err)
	}

	store, err := sqlite.Open(cfg.DatabasePath, keyring)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	m := &metrics.Metrics{}
	registry := prometheus.NewRegistry()
	m.Register(registry)

	broadcast := gateway.LogBroadcast{}
	chain := ledger.New(store, keyring, m, broadcast)
	engine := fairness.NewEngine(fairness.Config{
		Store:   store,
		Ledger:  chain,
		Metrics: m,
		Limits: bet.Limits{
			MinStakeCents: cfg.MinStakeCents,
			MaxStakeCents: cfg.MaxStakeCents,
		},
		TTL: cfg.CommitmentTTL,
	})
	gate := governance.NewGate(governance.GateConfig{
		Store:     store,
		Metrics:   m,
		Broadcast: broadcast,
		Required:  cfg.RequiredApprovals,
	})

	mux := http.NewServeMux()
	verification.NewModule(engine, chain, gate, m).Register(mux)
	apigovernance.NewModule(gate, grants).Register(mux)
	apifairness.NewModule(engine).Register(mux)
	mux.Handle(http.MethodGet+" /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}

	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	return &Server{
		listener: listener,
		httpServer: &http.Server{
			Handler:           httpx.Chain(mux, httpx.RequestID(), httpx.RecoverPanic(), httpx.Trace("fairplane")),
			ReadHeaderTimeout: 5 * time.Second,
		},
		store:           store,
		engine:          engine,
		gate:            gate,
		sweepInterval:   sweepInterval,
		shutdownTimeout: shutdownTimeout,
	}, nil
}

// Run creates and serves a server until the context ends.
func Run(ctx context.Context, cfg Config) error {
	srv, err := New(cfg)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr {
	if s == nil || s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve bootstraps the protocol registry, starts the background sweep, and
// serves HTTP until the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.store.Close()

	if err := s.gate.EnsureBootstrapped(ctx, governance.WellKnownNodes); err != nil {
		return fmt.Errorf("bootstrap protocol registry: %w", err)
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.sweep(sweepCtx)

	log.Printf("server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	handleErr := func(err error) error {
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http: %w", err)
		}
		return handleErr(<-serveErr)
	case err := <-serveErr:
		return handleErr(err)
	}
}

// sweep periodically expires stale commitments and applies armed governance
// actions whose time-lock has passed.
func (s *Server) sweep(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if expired, err := s.engine.ExpireStale(ctx); err != nil {
				log.Printf("commitment expiry sweep: %v", err)
			} else if expired > 0 {
				log.Printf("expired %d stale commitments", expired)
			}
			if applied, err := s.gate.ApplyArmed(ctx); err != nil {
				log.Printf("armed action sweep: %v", err)
			} else if applied > 0 {
				log.Printf("applied %d armed governance actions", applied)
			}
		}
	}
}
