// Package main is the entry point of the learning progress API.
//
// The API owns enrollments, per-content progress, derived module
// percentages and daily streaks. Modules and content items are read from
// the catalog tables filled by the authoring side (or CATALOG_SEED_FILE in
// development).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alem-hub/learnhub/config"
	"github.com/alem-hub/learnhub/internal/application/command"
	"github.com/alem-hub/learnhub/internal/application/eventhandler"
	"github.com/alem-hub/learnhub/internal/application/query"
	"github.com/alem-hub/learnhub/internal/application/storecall"
	"github.com/alem-hub/learnhub/internal/domain/catalog"
	"github.com/alem-hub/learnhub/internal/domain/enrollment"
	"github.com/alem-hub/learnhub/internal/domain/progress"
	"github.com/alem-hub/learnhub/internal/domain/shared"
	"github.com/alem-hub/learnhub/internal/domain/streak"
	"github.com/alem-hub/learnhub/internal/infrastructure/messaging"
	"github.com/alem-hub/learnhub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/learnhub/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/learnhub/internal/infrastructure/persistence/redis"
	httpapi "github.com/alem-hub/learnhub/internal/interface/http"
	"github.com/alem-hub/learnhub/internal/interface/http/handlers"
	"github.com/alem-hub/learnhub/internal/observability"
	"github.com/alem-hub/learnhub/pkg/logger"
	"github.com/alem-hub/learnhub/pkg/timeutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// stores bundles the repositories of the selected backend.
type stores struct {
	catalog     catalog.Reader
	catalogW    catalog.Writer
	enrollments enrollment.Repository
	progress    progress.Repository
	streaks     streak.Repository
	ping        handlers.Pinger
	close       func()
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION & LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    cfg.Observability.LogFormat,
		AddCaller: true,
	}).With(logger.String("service", cfg.App.Name), logger.String("version", cfg.App.Version))
	defer func() { _ = log.Sync() }()

	log.Info("starting learnhub API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("store", cfg.Store.Driver),
		logger.String("timezone", cfg.App.Location.String()),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. TRACING
	// ─────────────────────────────────────────────────────────────────────────
	shutdownTracing, err := observability.Init(ctx, observability.Config{
		Enabled:     cfg.Observability.TracingEnabled,
		Exporter:    cfg.Observability.TracingExporter,
		Endpoint:    cfg.Observability.TracingEndpoint,
		ServiceName: cfg.Observability.ServiceName,
		Environment: string(cfg.App.Environment),
		Version:     cfg.App.Version,
		SampleRatio: cfg.Observability.SampleRatio,
		Insecure:    cfg.Observability.TracingInsecure,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("tracer shutdown failed", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORE
	// ─────────────────────────────────────────────────────────────────────────
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck(cfg.Store.Driver, handlers.NewPingCheck(st.ping))

	calendar := timeutil.NewCalendar(cfg.App.Location, timeutil.SystemClock{})
	runner := storecall.New(cfg.Store.MaxAttempts, log)

	if cfg.Store.CatalogSeedFile != "" {
		if err := seedCatalog(ctx, cfg.Store.CatalogSeedFile, st.catalogW, command.Deps{Calendar: calendar, Logger: log, Store: runner}); err != nil {
			return err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (optional) & EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	var (
		guard command.DayGuard
		bus   interface {
			shared.EventBus
			Close() error
		}
	)
	bus = messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 10, Logger: log})

	if cfg.Redis.Enabled() {
		rc, err := redis.NewClient(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		}, log)
		if err != nil {
			// Redis only accelerates and fans out; the API works without it.
			log.Warn("redis unavailable, continuing without it", logger.Err(err))
		} else {
			defer rc.Close()
			health.AddOptionalCheck("redis", handlers.NewPingCheck(rc))
			guard = redis.NewDayGuard(rc)

			_ = bus.Close()
			rbus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
				Transport:      messaging.NewRedisTransport(rc),
				LocalBusConfig: messaging.InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 10},
				Logger:         log,
			})
			if err != nil {
				return fmt.Errorf("failed to start redis event bus: %w", err)
			}
			bus = rbus
		}
	}
	defer func() {
		if err := bus.Close(); err != nil {
			log.Warn("event bus close failed", logger.Err(err))
		}
	}()
	if err := bus.SubscribeAll(messaging.AuditHandler(log)); err != nil {
		return fmt.Errorf("failed to subscribe audit handler: %w", err)
	}
	if err := eventhandler.NewOnCompletionHandler(eventhandler.LogSink{Log: log}, log).Register(bus); err != nil {
		return fmt.Errorf("failed to subscribe completion handler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. APPLICATION SERVICES
	// ─────────────────────────────────────────────────────────────────────────
	cmdDeps := command.Deps{
		Calendar:           calendar,
		Publisher:          bus,
		Logger:             log,
		Store:              runner,
		MaxConflictRetries: cfg.Store.MaxConflictRetries,
	}
	enrollments := command.NewEnrollmentService(st.enrollments, st.progress, st.catalog, cmdDeps)
	streaks := command.NewStreakService(st.streaks, guard, cmdDeps)
	contentProgress := command.NewContentProgressService(st.progress, st.catalog, enrollments, streaks,
		cfg.Progress.AutoCompleteThreshold, cmdDeps)

	queryDeps := query.Deps{Calendar: calendar, Logger: log, Store: runner}
	stats := query.NewStatisticsAggregator(st.enrollments, st.progress, st.catalog, queryDeps)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = "learnhub-development-secret"
		log.Warn("AUTH_JWT_SECRET is empty, using the development secret")
	}
	auth, err := httpapi.NewAuthenticator(httpapi.AuthConfig{
		Secret:    secret,
		Issuer:    cfg.Auth.Issuer,
		AdminRole: cfg.Auth.AdminRole,
	})
	if err != nil {
		return err
	}

	server, err := httpapi.NewServer(httpapi.Config{
		Host:           cfg.HTTP.Host,
		Port:           cfg.HTTP.Port,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: 1 << 20,
		AllowedOrigins: cfg.HTTP.CORSOrigins,
		RateLimitRPS:   cfg.HTTP.RateLimitRPS,
		RateLimitBurst: cfg.HTTP.RateLimitBurst,
		ServiceName:    cfg.Observability.ServiceName,
		Version:        cfg.App.Version,
		Debug:          cfg.IsDevelopment(),
	}, httpapi.Dependencies{
		Enrollments:   enrollments,
		Progress:      contentProgress,
		Streaks:       streaks,
		ProgressViews: query.NewProgressQueries(st.enrollments, st.progress, st.catalog, stats, queryDeps),
		Statistics:    stats,
		StreakReads:   query.NewStreakQueries(st.streaks, queryDeps),
		Auth:          auth,
		Health:        health,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("failed to build http server: %w", err)
	}

	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 7. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("learnhub API stopped")
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger) (*stores, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		conn, err := postgres.NewConnection(ctx, postgres.Config{
			URL:             cfg.Database.URL,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if cfg.Database.AutoMigrate {
			n, err := postgres.NewMigrator(conn).Migrate(ctx)
			if err != nil {
				conn.Close()
				return nil, fmt.Errorf("failed to migrate: %w", err)
			}
			log.Info("migrations applied", logger.Int("count", n))
		}
		cat := postgres.NewCatalogRepository(conn)
		return &stores{
			catalog:     cat,
			catalogW:    cat,
			enrollments: postgres.NewEnrollmentRepository(conn),
			progress:    postgres.NewProgressRepository(conn),
			streaks:     postgres.NewStreakRepository(conn, cfg.App.Location),
			ping:        conn,
			close:       conn.Close,
		}, nil

	case config.DriverMemory:
		log.Warn("using the in-memory store; data is lost on restart")
		mem := memory.New()
		return &stores{
			catalog:     mem.Catalog(),
			catalogW:    mem.Catalog(),
			enrollments: mem.Enrollments(),
			progress:    mem.Progress(),
			streaks:     mem.Streaks(),
			ping:        mem,
			close:       func() {},
		}, nil
	}
	return nil, errors.New("unknown store driver " + cfg.Store.Driver)
}

func seedCatalog(ctx context.Context, path string, w catalog.Writer, deps command.Deps) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open catalog seed: %w", err)
	}
	defer f.Close()

	if _, err := command.NewImportCatalogHandler(w, deps).Handle(ctx, f); err != nil {
		return fmt.Errorf("import catalog seed: %w", err)
	}
	return nil
}
