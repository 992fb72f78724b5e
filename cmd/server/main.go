/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the TourGuide server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env file, then environment, then flags)
  2. Initialize logging and tracing
  3. Open the SQLite store
  4. Build the engine: catalog, point authority, ledger, pool, orchestrator
  5. Start the reward scheduler and the optional MQTT ingester
  6. Serve HTTP until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -addr    HTTP listen address (overrides HTTP_ADDR)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  See config/config.go for the full list. Common ones:
  LOG_LEVEL, LOG_FORMAT, REWARD_RADIUS_MILES, POOL_SIZE,
  SCHEDULER_INTERVAL, MQTT_BROKER, TRACING_ENABLED, DEMO_USERS

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler and the ingester
  4. Drain the worker pool
  5. Flush traces and close the database

EXAMPLES:
  # Run with file database
  ./server -db="./data/tourguide.db"

  # Run in memory with 100 generated users and JSON logs
  DEMO_USERS=100 LOG_FORMAT=json ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - tourguide/service.go: Application service
  - config/config.go: Environment variables
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/tourguide/api"
	"github.com/warp/tourguide/catalog"
	"github.com/warp/tourguide/config"
	"github.com/warp/tourguide/engine"
	"github.com/warp/tourguide/ingest"
	"github.com/warp/tourguide/logger"
	"github.com/warp/tourguide/metrics"
	"github.com/warp/tourguide/rewards"
	"github.com/warp/tourguide/store/sqlite"
	"github.com/warp/tourguide/telemetry"
	"github.com/warp/tourguide/tourguide"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	dbPath := flag.String("db", "", "SQLite database path (overrides DB_PATH)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *addr, *dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, addr, dbPath string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if addr != "" {
		cfg.HTTPAddr = addr
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, zap.String("service", telemetry.ServiceName))
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.TracingEnabled, log)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer telemetry.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	// --- SQLite ---
	store, err := sqlite.Open(ctx, cfg.DBDriver, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()
	log.Info("database ready", zap.String("driver", cfg.DBDriver), zap.String("path", cfg.DBPath))

	// --- Engine ---
	attractions := catalog.DefaultAttractions()
	if cfg.CatalogPath != "" {
		attractions, err = catalog.LoadFile(cfg.CatalogPath)
		if err != nil {
			return fmt.Errorf("loading catalog: %w", err)
		}
	}
	provider := catalog.NewCachedProvider(catalog.NewStaticProvider(attractions), cfg.CatalogCacheTTL, log)
	log.Info("catalog loaded", zap.Int("attractions", len(attractions)))

	authority := rewards.NewSimulatedAuthority(rewards.WithLatency(cfg.AuthorityLatency, cfg.AuthorityLatency/2))

	collector, err := metrics.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	ledger := engine.NewRewardLedger(provider, authority, nil,
		engine.WithLogger(log.Named("ledger")),
		engine.WithRecorder(collector))
	ledger.Proximity().SetRewardRadius(cfg.RewardRadiusMiles)

	pool := engine.NewPool(cfg.PoolSize)
	orchestrator := engine.NewOrchestrator(ledger, pool,
		engine.WithLogger(log.Named("batch")),
		engine.WithRecorder(collector))

	svc := tourguide.New(store, provider, orchestrator, pool, tourguide.WithLogger(log.Named("service")))

	// --- API ---
	scheduler := api.NewRewardScheduler(svc, store, log)
	scheduler.Interval = cfg.SchedulerInterval
	scheduler.Enabled = cfg.SchedulerEnabled

	handler := api.NewHandler(svc, scheduler, store, log)
	if cfg.DemoUsers > 0 {
		n, err := handler.Seed(ctx, api.ScenarioInternalUsers, cfg.DemoUsers)
		if err != nil {
			return fmt.Errorf("seeding demo users: %w", err)
		}
		log.Info("demo users created", zap.Int("users", n))
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api.NewRouter(handler, collector.Handler(), log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Background work ---
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.MQTTBroker != "" {
		sub := ingest.NewSubscriber(cfg.MQTTBroker, cfg.MQTTTopic, svc, log)
		if err := sub.Start(ctx); err != nil {
			return fmt.Errorf("starting mqtt ingester: %w", err)
		}
		defer sub.Stop()
	}

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		scheduler.Stop()
		if err := pool.Shutdown(shutdownCtx); err != nil {
			log.Warn("worker pool did not drain", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	log.Info("server stopped")
	return err
}
