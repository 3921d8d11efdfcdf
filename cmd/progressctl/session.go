package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/skillsim/progress-hub/config"
	"github.com/skillsim/progress-hub/internal/application/achievement"
	"github.com/skillsim/progress-hub/internal/application/reconcile"
	"github.com/skillsim/progress-hub/internal/domain/progress"
	"github.com/skillsim/progress-hub/internal/infrastructure/external/progressapi"
	"github.com/skillsim/progress-hub/internal/infrastructure/fallback"
	"github.com/skillsim/progress-hub/internal/infrastructure/persistence/redis"
	"github.com/skillsim/progress-hub/internal/infrastructure/persistence/sqlite"
	"github.com/skillsim/progress-hub/pkg/logger"
)

// session holds everything a command needs. It is built once per
// invocation in the root command's PersistentPreRunE.
type session struct {
	cfg     *config.Config
	log     *slog.Logger
	client  *progressapi.Client
	cache   *fallback.Cache
	awarder *achievement.Awarder
	syncer  *reconcile.Syncer
	catalog *progress.Catalog
	jsonOut bool
	closers []func() error
}

// flags are the persistent overrides of the environment configuration.
type flags struct {
	apiURL      string
	token       string
	driver      string
	path        string
	origin      string
	catalog     string
	concurrency int
	logLevel    string
	jsonOut     bool
}

func (f *flags) bind(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.apiURL, "api-url", "", "Progress API base URL (overrides PROGRESS_API_URL)")
	pf.StringVar(&f.token, "token", "", "Session token (overrides PROGRESS_API_TOKEN)")
	pf.StringVar(&f.driver, "fallback-driver", "", "Local star storage: memory, sqlite or redis (overrides FALLBACK_DRIVER)")
	pf.StringVar(&f.path, "fallback-path", "", "SQLite file of the local star storage (overrides FALLBACK_PATH)")
	pf.StringVar(&f.origin, "origin", "", "Namespace of the local star storage (overrides FALLBACK_ORIGIN)")
	pf.StringVar(&f.catalog, "catalog", "", "YAML skill catalog (overrides SKILL_CATALOG_PATH)")
	pf.IntVar(&f.concurrency, "concurrency", 0, "Skills reconciled at once (overrides RECONCILE_CONCURRENCY)")
	pf.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	pf.BoolVar(&f.jsonOut, "json", false, "Print results as JSON")
}

func (f *flags) apply(cfg *config.Config) {
	if f.apiURL != "" {
		cfg.ProgressAPI.BaseURL = f.apiURL
	}
	if f.token != "" {
		cfg.ProgressAPI.Token = f.token
	}
	if f.driver != "" {
		cfg.Fallback.Driver = f.driver
	}
	if f.path != "" {
		cfg.Fallback.Path = f.path
	}
	if f.origin != "" {
		cfg.Fallback.Origin = f.origin
	}
	if f.catalog != "" {
		cfg.Reconcile.CatalogPath = f.catalog
	}
	if f.concurrency > 0 {
		cfg.Reconcile.Concurrency = f.concurrency
	}
	if f.logLevel != "" {
		cfg.Observability.LogLevel = f.logLevel
	}
}

func newSession(cfg *config.Config, stderr io.Writer, jsonOut bool) (*session, error) {
	s := &session{cfg: cfg, jsonOut: jsonOut}

	s.log = logger.New(logger.Options{
		Output: stderr,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
		Format: logger.Format(cfg.Observability.LogFormat),
	}).Slog()

	catalog, err := config.LoadCatalog(cfg.Reconcile.CatalogPath)
	if err != nil {
		return nil, err
	}
	s.catalog = catalog

	store, err := s.openStorage()
	if err != nil {
		return nil, fmt.Errorf("open local star storage: %w", err)
	}
	s.cache = fallback.New(store, s.log)

	s.client = progressapi.NewClient(progressapi.ClientConfig{
		BaseURL:          cfg.ProgressAPI.BaseURL,
		Credentials:      progressapi.StaticToken(cfg.ProgressAPI.Token),
		Timeout:          cfg.ProgressAPI.Timeout,
		BreakerThreshold: cfg.ProgressAPI.BreakerThreshold,
		BreakerTimeout:   cfg.ProgressAPI.BreakerTimeout,
		Logger:           s.log,
	})

	var remote achievement.RemoteStars = s.client
	if !cfg.Features.IsEnabled(config.FeatureRemoteAward) {
		remote = nil
	}
	s.awarder = achievement.NewAwarder(remote, s.cache, achievement.Config{
		AwardAttempts: cfg.Reconcile.AwardAttempts,
		RetryDelay:    cfg.Reconcile.RetryDelay,
		Logger:        s.log,
	})
	s.syncer = reconcile.New(s.client, s.awarder, reconcile.Config{
		Concurrency: cfg.Reconcile.Concurrency,
		Logger:      s.log,
	})
	return s, nil
}

func (s *session) openStorage() (fallback.Storage, error) {
	fc := s.cfg.Fallback
	switch fc.Driver {
	case config.DriverMemory:
		return fallback.NewMemoryStorage(), nil
	case config.DriverSQLite:
		st, err := sqlite.Open(fc.Path, fc.Origin)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, st.Close)
		return st, nil
	case config.DriverRedis:
		rc := redis.DefaultConfig()
		rc.Host = s.cfg.Redis.Host
		rc.Port = s.cfg.Redis.Port
		rc.Password = s.cfg.Redis.Password
		rc.DB = s.cfg.Redis.DB
		rc.DialTimeout = s.cfg.Redis.DialTimeout
		rc.ReadTimeout = s.cfg.Redis.ReadTimeout
		rc.WriteTimeout = s.cfg.Redis.WriteTimeout
		cache, err := redis.NewCache(rc)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, cache.Close)
		return redis.NewStorage(cache, fc.Origin), nil
	default:
		return nil, fmt.Errorf("unknown fallback driver %q", fc.Driver)
	}
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.Warn("close failed", "error", err)
		}
	}
	s.closers = nil
}

// reconcileOnStart runs one quiet reconciliation pass when enabled.
func (s *session) reconcileOnStart(ctx context.Context) {
	if !s.cfg.Features.IsEnabled(config.FeatureReconcileOnStart) {
		return
	}
	if _, err := s.syncer.Run(ctx, s.catalog.SkillIDs(), nil); err != nil {
		s.log.Warn("startup reconciliation failed", "error", err)
	}
}

// print writes v as indented JSON in --json mode, otherwise calls text.
func (s *session) print(w io.Writer, v any, text func(io.Writer)) error {
	if s.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
