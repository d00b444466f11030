// Package main is the entry point for the Emberhollow progression core: the
// ledger, rank, verification, and health services shared by the community's
// game servers.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emberhollow/emberhollow-core/config"
	"github.com/emberhollow/emberhollow-core/internal/application/progression"
	"github.com/emberhollow/emberhollow-core/internal/application/verification"
	"github.com/emberhollow/emberhollow-core/internal/domain/ledger"
	"github.com/emberhollow/emberhollow-core/internal/infrastructure/health"
	"github.com/emberhollow/emberhollow-core/internal/infrastructure/persistence/postgres"
	redisinfra "github.com/emberhollow/emberhollow-core/internal/infrastructure/persistence/redis"
	"github.com/emberhollow/emberhollow-core/internal/infrastructure/scheduler"
	"github.com/emberhollow/emberhollow-core/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/emberhollow/emberhollow-core/internal/interface/http"
	"github.com/emberhollow/emberhollow-core/pkg/circuitbreaker"
	"github.com/emberhollow/emberhollow-core/pkg/logger"
	"github.com/emberhollow/emberhollow-core/pkg/retry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Options{
		Level: "info",
		JSON:  cfg.IsProduction(),
	})
	if cfg.App.Debug {
		log = logger.New(logger.Options{Level: "debug", JSON: cfg.IsProduction()})
	}

	log.Info("starting",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("env", string(cfg.App.Environment)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Storage gateway ──────────────────────────────────────────────────

	// The database may still be coming up when we are; retry the initial
	// connect before giving up.
	var conn *postgres.Connection
	err = retry.Do(ctx, retry.Config{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			log.Warn("postgres connect failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				logger.Err(err))
		},
	}, func(ctx context.Context) error {
		var connErr error
		conn, connErr = postgres.NewConnection(ctx, postgres.Config{
			URL:             cfg.Database.URL,
			MaxConns:        int32(cfg.Database.MaxConns),
			MinConns:        int32(cfg.Database.MinConns),
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
			AcquireTimeout:  cfg.Database.AcquireTimeout,
			Breaker: circuitbreaker.Config{
				FailureThreshold:    cfg.Database.BreakerFailureThreshold,
				SuccessThreshold:    cfg.Database.BreakerSuccessThreshold,
				Timeout:             cfg.Database.BreakerTimeout,
				HalfOpenMaxRequests: 1,
			},
		})
		return connErr
	})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer conn.Close()

	if err := postgres.NewMigrator(conn, log).Run(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	store := postgres.NewStore(conn)

	seeded, err := store.Catalog().SeedIfEmpty(ctx)
	if err != nil {
		return fmt.Errorf("seed rank catalog: %w", err)
	}
	if seeded > 0 {
		log.Info("rank catalog seeded", slog.Int("definitions", seeded))
	}

	// ── Optional Redis ───────────────────────────────────────────────────

	var (
		presence  progression.Presence
		rankCache progression.RankCache
	)
	if !cfg.Redis.Disabled {
		cache, err := redisinfra.NewCache(redisinfra.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			// Redis is an accelerator: log and continue without it.
			log.Warn("redis unavailable, running without cache", logger.Err(err))
		} else {
			defer cache.Close()
			presence = redisinfra.NewPresenceTracker(cache)
			rankCache = redisinfra.NewRankCache(cache)
		}
	}

	// ── Application services ─────────────────────────────────────────────

	limiter := progression.NewLimiter(store.Ledger(), map[ledger.Kind]progression.Caps{
		ledger.KindXPGain: {
			PerMinute: cfg.RateLimit.XPPerMinute,
			PerHour:   cfg.RateLimit.XPPerHour,
			PerDay:    cfg.RateLimit.XPPerDay,
		},
		ledger.KindAchievement: {
			PerMinute: cfg.RateLimit.AchievementsPerMinute,
			PerHour:   cfg.RateLimit.AchievementsPerHour,
			PerDay:    cfg.RateLimit.AchievementsPerDay,
		},
	})

	engine := progression.NewEngine(store, store.Catalog(), rankCache, log, cfg.App.ServerName)

	progressionSvc := progression.NewService(
		store,
		store.Ledger(),
		store.Progress(),
		store.Catalog(),
		store.Identities(),
		limiter,
		engine,
		presence,
		rankCache,
		log,
		progression.Config{
			ServerName:        cfg.App.ServerName,
			SessionContinuity: cfg.Progression.SessionContinuity,
		},
	)

	verificationSvc := verification.NewService(store.Identities(), log, verification.Config{
		PurgatoryTimeout: cfg.Verification.PurgatoryTimeout,
	})

	// ── Background jobs ──────────────────────────────────────────────────

	sched := scheduler.NewScheduler(log)
	sched.Register(jobs.NewPromotionSweep(store.Identities(), engine, log), time.Minute)
	sched.Start(ctx)
	defer sched.Stop()

	// ── Health monitoring ────────────────────────────────────────────────

	monitor := health.NewMonitor(conn, health.Config{
		ProbeInterval: cfg.Health.ProbeInterval,
		BackoffBase:   cfg.Health.BackoffBase,
		BackoffCap:    cfg.Health.BackoffCap,
		MaxRetries:    cfg.Health.MaxRetries,
		ProbeTimeout:  cfg.Health.ProbeTimeout,
	}, log)
	monitor.Start(ctx)

	// ── HTTP readiness ───────────────────────────────────────────────────

	api := httpserver.NewAPI(progressionSvc, verificationSvc, log)
	server := httpserver.NewServer(httpserver.Config{
		Addr:            cfg.HTTP.Addr,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}, monitor, conn, api, log, cfg.App.Version)
	httpErr := server.Start()

	// ── Run until shutdown ───────────────────────────────────────────────

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case <-monitor.Terminal():
		log.Error("storage outage is terminal, shutting down")
	case err := <-httpErr:
		if err != nil {
			log.Error("http server failed", logger.Err(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", logger.Err(err))
	}
	stop()
	monitor.Wait()

	log.Info("stopped")
	return nil
}
