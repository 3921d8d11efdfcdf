// Package main is the entry point of the progress API server: per-skill
// progress records, leaderboards and star awards behind /progress.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/skillsim/progress-hub/config"
	"github.com/skillsim/progress-hub/internal/application/tracking"
	"github.com/skillsim/progress-hub/internal/domain/progress"
	"github.com/skillsim/progress-hub/internal/infrastructure/persistence/memory"
	"github.com/skillsim/progress-hub/internal/infrastructure/persistence/postgres"
	"github.com/skillsim/progress-hub/internal/infrastructure/persistence/redis"
	httpapi "github.com/skillsim/progress-hub/internal/interface/http"
	"github.com/skillsim/progress-hub/internal/interface/http/handlers"
	"github.com/skillsim/progress-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
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
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    logger.Format(cfg.Observability.LogFormat),
		AddCaller: cfg.App.Debug,
	}).With(logger.String("app", cfg.App.Name), logger.String("version", cfg.App.Version))
	slogger := log.Slog()

	log.Info("starting progress server", logger.String("env", string(cfg.App.Environment)))

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. STORAGE (PostgreSQL, or memory when no database is configured)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		records progress.Repository
		stars   progress.StarRepository
	)
	if cfg.Database.URL != "" {
		conn, err := postgres.Connect(ctx, cfg.Database.URL, postgres.PoolSettings{
			MaxConns:        int32(cfg.Database.MaxConns),
			MinConns:        int32(cfg.Database.MinConns),
			MaxConnLifetime: cfg.Database.ConnMaxLifetime,
			MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer conn.Close()

		if cfg.Database.AutoMigrate {
			if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("database schema is up to date")
		}

		records = postgres.NewProgressRepository(conn)
		stars = postgres.NewStarRepository(conn)
		health.AddCheck("database", handlers.NewPingCheck(conn))
	} else {
		log.Warn("DATABASE_URL not set, using in-memory storage")
		records = memory.NewProgressRepository()
		stars = memory.NewStarRepository()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (optional leaderboard cache)
	// ─────────────────────────────────────────────────────────────────────────
	trackingCfg := tracking.Config{Logger: slogger, LeaderboardTTL: cfg.Redis.LeaderboardTTL}
	if !cfg.Redis.Disabled && cfg.Features.IsEnabled(config.FeatureLeaderboardCache) {
		cache, err := redis.NewCache(redisConfig(cfg.Redis))
		if err != nil {
			log.Warn("failed to connect to Redis, leaderboard caching disabled", logger.Err(err))
		} else {
			defer cache.Close()
			trackingCfg.LeaderboardCache = redis.NewLeaderboardCache(cache)
			health.AddCheck("cache", handlers.NewPingCheck(cache))
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	if len(cfg.Auth.Tokens) == 0 {
		log.Warn("AUTH_TOKENS is empty, every /progress request will be rejected")
	}

	srv := httpapi.NewServer(httpapi.Config{
		Host:           cfg.HTTP.Host,
		Port:           cfg.HTTP.Port,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		Version:        cfg.App.Version,

		RateLimitPerMinute: cfg.HTTP.RateLimitPerMinute,
		RateLimitBurst:     cfg.HTTP.RateLimitBurst,
	}, httpapi.Dependencies{
		Tracking:      tracking.NewService(records, stars, trackingCfg),
		Resolver:      handlers.StaticTokens(cfg.Auth.Tokens),
		HealthChecker: health,
		Logger:        log,
	})

	errCh := srv.StartAsync()
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return err
		}
		return errors.New("server stopped unexpectedly")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	rc.PoolSize = c.PoolSize
	rc.MinIdleConns = c.MinIdleConns
	rc.DialTimeout = c.DialTimeout
	rc.ReadTimeout = c.ReadTimeout
	rc.WriteTimeout = c.WriteTimeout
	return rc
}
