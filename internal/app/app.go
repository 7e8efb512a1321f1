// Package app wires the Lumra services together from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/lumra/lumra-backend/internal/config"
	"github.com/lumra/lumra-backend/internal/db"
	"github.com/lumra/lumra-backend/internal/diagnostics"
	"github.com/lumra/lumra-backend/internal/events"
	"github.com/lumra/lumra-backend/internal/geofence"
	"github.com/lumra/lumra-backend/internal/ingest"
	"github.com/lumra/lumra-backend/internal/location"
	"github.com/lumra/lumra-backend/internal/logging"
	"github.com/lumra/lumra-backend/internal/middleware"
	"github.com/lumra/lumra-backend/internal/notify"
	"github.com/lumra/lumra-backend/internal/profiles"
	"github.com/lumra/lumra-backend/internal/tracker"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stores struct {
	profiles profiles.Store
	fences   geofence.Store
	states   tracker.StateStore
	history  location.History
	events   events.Log
	failures notify.FailureStore
	closers  []func() error
}

// App holds the running services.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Metrics  *diagnostics.Metrics
	Profiles *profiles.Service
	Fences   *geofence.Service
	Tracker  *tracker.Tracker
	Engine   *ingest.Engine
	Notifier *notify.Notifier
	Router   http.Handler

	closers []func() error
}

// New opens the configured storage backend and builds every service.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	st, err := openStores(cfg, logger)
	if err != nil {
		return nil, err
	}
	return build(cfg, logger, st)
}

func build(cfg config.Config, logger *zap.Logger, st stores) (*App, error) {
	metrics := diagnostics.New()

	people := profiles.NewService(st.profiles, logger)
	fences := geofence.NewService(st.fences, people, logger)
	tr := tracker.New(st.states, cfg.Tracker.RequiredStreak, metrics, logger)
	fences.OnDeactivate(tr.Release)

	channel, err := notify.NewChannel(cfg.Notify, logger)
	if err != nil {
		return nil, err
	}
	opts := notify.OptionsFromConfig(cfg.Notify)
	opts.Channel = channel
	opts.Guardians = people
	opts.Failures = st.failures
	opts.Metrics = metrics
	opts.Logger = logger
	notifier := notify.New(opts)

	limiter := middleware.NewKeyedLimiter(cfg.Ingest.RatePerSecond, cfg.Ingest.Burst)
	engine := ingest.NewEngine(ingest.Deps{
		Fences:   fences,
		Tracker:  tr,
		History:  st.history,
		Events:   st.events,
		Notifier: notifier,
		Limiter:  limiter,
		Metrics:  metrics,
		Logger:   logger,
	})

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		Profiles: people,
		Fences:   fences,
		Tracker:  tr,
		Engine:   engine,
		Notifier: notifier,
		closers:  st.closers,
	}
	a.Router = NewRouter(a, limiter.RetryAfter())
	return a, nil
}

// Close drains the notifier and releases storage handles.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Notifier.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("closing notifier: %w", err))
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openStores(cfg config.Config, logger *zap.Logger) (stores, error) {
	var st stores
	log := logging.Component(logger, "storage")

	switch cfg.Store {
	case config.StorePostgres:
		d, err := db.Connect(cfg.DatabaseURL)
		if err != nil {
			return st, fmt.Errorf("connecting to database: %w", err)
		}
		if err := migrate(d); err != nil {
			return st, err
		}
		st = stores{
			profiles: profiles.NewGormStore(d),
			fences:   geofence.NewGormStore(d),
			states:   tracker.NewGormStore(d),
			history:  location.NewGormHistory(d),
			events:   events.NewGormLog(d),
			failures: notify.NewGormFailureStore(d),
		}
		if sqlDB, err := d.DB(); err == nil {
			st.closers = append(st.closers, sqlDB.Close)
		}
		log.Info("using postgres storage")
	default:
		st = stores{
			profiles: profiles.NewMemoryStore(),
			fences:   geofence.NewMemoryStore(),
			states:   tracker.NewMemoryStore(),
			history:  location.NewMemoryHistory(),
			events:   events.NewMemoryLog(),
			failures: notify.NewMemoryFailureStore(),
		}
		log.Warn("using in-memory storage; data is lost on restart")
	}

	if cfg.StateSQLite != "" {
		sq, err := tracker.NewSQLiteStore(cfg.StateSQLite)
		if err != nil {
			return st, fmt.Errorf("opening membership state file: %w", err)
		}
		st.states = sq
		st.closers = append(st.closers, sq.Close)
		log.Info("membership states persisted to sqlite", zap.String("path", cfg.StateSQLite))
	}
	return st, nil
}

func migrate(d *gorm.DB) error {
	for _, initFn := range []func(*gorm.DB) error{
		profiles.Init,
		geofence.Init,
		tracker.Init,
		location.Init,
		events.Init,
		notify.Init,
	} {
		if err := initFn(d); err != nil {
			return err
		}
	}
	return nil
}
