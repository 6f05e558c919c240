// Package escrowservice boots the escrow HTTP service: configuration, journal
// store, transfer backend, engine restore, health checking and graceful
// shutdown.
package escrowservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/custodia/escrowd/internal/allowlist"
	"github.com/custodia/escrowd/internal/api"
	"github.com/custodia/escrowd/internal/auth"
	"github.com/custodia/escrowd/internal/config"
	"github.com/custodia/escrowd/internal/engine"
	"github.com/custodia/escrowd/internal/events"
	"github.com/custodia/escrowd/internal/health"
	"github.com/custodia/escrowd/internal/model"
	"github.com/custodia/escrowd/internal/platform/logger"
	"github.com/custodia/escrowd/internal/store"
	"github.com/custodia/escrowd/internal/store/memstore"
	"github.com/custodia/escrowd/internal/store/postgres"
	"github.com/custodia/escrowd/internal/store/sqlite"
	"github.com/custodia/escrowd/internal/transfer"
)

// Run starts the escrow service HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("escrow-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Str("transfer_backend", cfg.TransferBackend).
		Int("http_port", cfg.HTTPPort).
		Msg("Escrow service starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	// Initialize dependencies (journal store, transfer backend)
	st, mover, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}

	eng, err := buildEngine(ctx, cfg, log, st, mover)
	if err != nil {
		return err
	}

	router := api.NewRouter(eng, buildAuthorizer(cfg))

	// Start health checkers and bind service health
	svcHealth := startHealthCheckers(ctx, cfg, log, st, mover)

	// Block startup until dependencies report healthy; fail fast otherwise
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// initDependencies constructs required components and enforces fail-fast on missing deps.
func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, transfer.Mover, error) {
	st, err := newStore(ctx, cfg)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Journal store unavailable")
		return nil, nil, err
	}

	mover, err := newMover(cfg)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Transfer backend unavailable")
		return nil, nil, err
	}
	return st, mover, nil
}

func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DBDriver {
	case "memory":
		return memstore.New(), nil
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite journal: %w", err)
		}
		return sqlite.NewWithDB(db), nil
	case "postgres":
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres journal: %w", err)
		}
		bootCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := postgres.Bootstrap(bootCtx, db); err != nil {
			return nil, fmt.Errorf("bootstrap postgres journal: %w", err)
		}
		return postgres.NewWithDB(db), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER: %s", cfg.DBDriver)
	}
}

func newMover(cfg *config.Config) (transfer.Mover, error) {
	switch cfg.TransferBackend {
	case "memory":
		return transfer.NewMemoryBank(), nil
	case "gateway":
		return transfer.NewGatewayClient(cfg.GatewayURL, cfg.GatewayAPIKey), nil
	default:
		return nil, fmt.Errorf("unsupported TRANSFER_BACKEND: %s", cfg.TransferBackend)
	}
}

// buildEngine assembles the ledger engine and replays the journal into it.
func buildEngine(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store, mover transfer.Mover) (*engine.Engine, error) {
	allowed := allowlist.New()
	for _, s := range cfg.AllowedAssets {
		a, err := model.ParseAsset(s)
		if err != nil {
			return nil, fmt.Errorf("ALLOWED_ASSETS entry %q: %w", s, err)
		}
		allowed.Add(a)
	}

	eng, err := engine.New(engine.Config{
		Operator:    cfg.OperatorID,
		MinLockTime: cfg.MinLockTime(),
		Mover:       mover,
		AllowList:   allowed,
		Store:       st,
		Bus:         events.NewBus(cfg.EventBusBuffer),
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}
	if err := eng.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restore ledger from journal: %w", err)
	}
	log.Info().Int64("vaults", eng.VaultCount()).Msg("ledger restored from journal")
	return eng, nil
}

// buildAuthorizer maps configured API keys to actors. Outside production the
// dev authorizer additionally accepts self-identifying sk_dev_<actor> keys.
func buildAuthorizer(cfg *config.Config) auth.Authorizer {
	keys := make(map[string]auth.ActorInfo, len(cfg.ActorAPIKeys)+1)
	for key, actorID := range cfg.ActorAPIKeys {
		keys[key] = auth.ActorInfo{ActorID: actorID, KeyName: "configured key"}
	}
	if cfg.OperatorAPIKey != "" {
		keys[cfg.OperatorAPIKey] = auth.ActorInfo{ActorID: cfg.OperatorID, KeyName: "operator key"}
	}
	static := auth.NewStaticAuthorizer(keys)
	if cfg.IsProduction() {
		return static
	}
	return auth.NewDevAuthorizer(static)
}

// startHealthCheckers starts component checkers and service-level aggregator; binds health.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store, mover transfer.Mover) *health.ServiceHealthChecker {
	var checkers []health.HealthChecker
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	storeChecker := store.NewStoreHealthChecker(st, log, probeTimeout)
	go storeChecker.Start(ctx, interval)
	checkers = append(checkers, storeChecker)

	if gw, ok := mover.(*transfer.GatewayClient); ok {
		gwChecker := health.NewPingChecker("gateway", log, probeTimeout, gw.HealthPing)
		go gwChecker.Start(ctx, interval)
		checkers = append(checkers, gwChecker)
	}

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	api.BindServiceHealth(svcHealth.IsHealthy)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.GetHTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// calculateStartupHealthTimeout returns the startup health timeout in seconds,
// calculated as interval*2 with a minimum of 60 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	// Health checkers start unhealthy and need time for their first probe cycle
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
