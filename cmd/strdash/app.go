package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/strdash/internal/config"
	"github.com/rumor-ml/commons.systems/strdash/internal/domain"
	"github.com/rumor-ml/commons.systems/strdash/internal/firestore"
	"github.com/rumor-ml/commons.systems/strdash/internal/logger"
	"github.com/rumor-ml/commons.systems/strdash/internal/property"
	"github.com/rumor-ml/commons.systems/strdash/internal/registry"
	"github.com/rumor-ml/commons.systems/strdash/internal/retry"
	"github.com/rumor-ml/commons.systems/strdash/internal/rules"
	"github.com/rumor-ml/commons.systems/strdash/internal/store"
	"github.com/rumor-ml/commons.systems/strdash/internal/store/sqlite"
)

type commonFlags struct {
	store   string
	sqlite  string
	project string
	verbose bool
}

// app is what every command works with. It is built once per invocation
// and passed down explicitly.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	cal      *domain.Calendar
	catalog  *property.Catalog
	engine   *rules.Engine
	registry *registry.Registry
	store    store.Store
}

// newApp loads configuration, applies flag overrides and opens the store.
// logFormat overrides LOG_FORMAT when not empty.
func newApp(ctx context.Context, flags *commonFlags, logFormat string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flags.store != "" {
		cfg.Store.Backend = flags.store
	}
	if flags.sqlite != "" {
		cfg.Store.SQLitePath = flags.sqlite
	}
	if flags.project != "" {
		cfg.Store.ProjectID = flags.project
	}
	if flags.verbose {
		cfg.Logger.Level = "debug"
	}
	if logFormat != "" {
		cfg.Logger.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Options{Level: cfg.Logger.Level, Format: cfg.Logger.Format, Out: os.Stderr})
	if err != nil {
		return nil, err
	}
	cal, err := domain.NewCalendar(cfg.PropertyTZ)
	if err != nil {
		return nil, err
	}
	catalog, err := property.Load(cfg.PropertiesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load property catalog: %w", err)
	}
	engine, err := rules.Load(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	reg, err := registry.New(registry.Deps{Categorizer: engine, Listings: catalog})
	if err != nil {
		return nil, fmt.Errorf("failed to create parser registry: %w", err)
	}

	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("store", cfg.Store.Backend).
		Str("tz", cfg.PropertyTZ).
		Int("rules", len(engine.GetRules())).
		Int("properties", len(catalog.All())).
		Msg("app ready")

	return &app{
		cfg:      cfg,
		log:      log,
		cal:      cal,
		catalog:  catalog,
		engine:   engine,
		registry: reg,
		store:    s,
	}, nil
}

// context returns ctx carrying the app logger
func (a *app) context(ctx context.Context) context.Context {
	return logger.WithContext(ctx, a.log)
}

func (a *app) Close() error {
	return a.store.Close()
}

// openStore opens the configured backend. Remote backends retry transient
// failures.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemory(), nil
	case config.BackendSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendFirestore:
		c, err := firestore.NewClient(ctx, cfg.ProjectID, cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return store.WithRetry(c, retry.DefaultPolicy), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
