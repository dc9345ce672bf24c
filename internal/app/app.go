// Package app wires the changewatch components into a runnable service.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nats-io/nats.go"

	"github.com/pratik-mahalle/changewatch/internal/api/handlers"
	"github.com/pratik-mahalle/changewatch/internal/api/router"
	"github.com/pratik-mahalle/changewatch/internal/bus"
	"github.com/pratik-mahalle/changewatch/internal/config"
	"github.com/pratik-mahalle/changewatch/internal/detector"
	"github.com/pratik-mahalle/changewatch/internal/domain/aggregation"
	"github.com/pratik-mahalle/changewatch/internal/domain/alert"
	"github.com/pratik-mahalle/changewatch/internal/domain/monitor"
	"github.com/pratik-mahalle/changewatch/internal/pkg/logger"
	"github.com/pratik-mahalle/changewatch/internal/pkg/validator"
	"github.com/pratik-mahalle/changewatch/internal/producer"
	"github.com/pratik-mahalle/changewatch/internal/repository/postgres"
	"github.com/pratik-mahalle/changewatch/internal/services"
	"github.com/pratik-mahalle/changewatch/internal/worker"
	"github.com/pratik-mahalle/changewatch/migrations"
)

// App holds the wired components of one changewatch process
type App struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *postgres.DB

	Monitors     monitor.Service
	Alerts       alert.Service
	Aggregations aggregation.Service
	Store        *services.SnapshotStore
	Notifier     *services.NotificationService
	Coordinator  *worker.MonitorCoordinator
	Cleaner      *worker.RetentionCleaner

	codec *services.PayloadCodec
	bus   *bus.Bus
	sub   *nats.Subscription
}

// New opens the database, applies pending migrations and wires every
// component. Nothing runs in the background until Start.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := postgres.New(cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: log, DB: db}

	if err := a.migrate(); err != nil {
		a.closeResources()
		return nil, err
	}
	if err := a.wire(ctx); err != nil {
		a.closeResources()
		return nil, err
	}
	return a, nil
}

func (a *App) migrate() error {
	schema, err := migrations.GetFS(a.DB.Driver)
	if err != nil {
		return fmt.Errorf("no migrations for driver %s: %w", a.DB.Driver, err)
	}
	applied, err := postgres.RunMigrations(a.DB, schema)
	if err != nil {
		return err
	}
	if applied > 0 {
		a.Logger.Infof("Applied %d migration(s)", applied)
	}
	return nil
}

func (a *App) wire(ctx context.Context) error {
	cfg, log := a.Config, a.Logger

	monitorRepo := postgres.NewMonitorRepository(a.DB)
	alertRepo := postgres.NewAlertRepository(a.DB)

	codec, err := services.NewPayloadCodec(cfg.Store.CompressionThreshold)
	if err != nil {
		return err
	}
	a.codec = codec
	a.Store = services.NewSnapshotStore(postgres.NewSnapshotRepository(a.DB), codec, cfg.Store, log)

	if cfg.Archive.Bucket != "" {
		archiver, err := services.NewS3Archiver(ctx, cfg.Archive, log)
		if err != nil {
			return err
		}
		a.Store.SetArchiver(archiver)
	}

	var publisher services.Publisher
	if cfg.NATS.URL != "" {
		b, err := bus.Connect(cfg.NATS.URL, log)
		if err != nil {
			return err
		}
		a.bus = b
		publisher = b
	}

	prod, err := producer.New(cfg.Producer, log)
	if err != nil {
		return err
	}

	a.Monitors = services.NewMonitorService(monitorRepo, log)
	a.Alerts = services.NewAlertService(alertRepo, monitorRepo, log)
	a.Aggregations = services.NewAggregationService(postgres.NewAggregationRepository(a.DB), a.Store, cfg.Detector.TrendEpsilon, log)
	a.Notifier = services.NewNotificationService(postgres.NewNotificationRepository(a.DB), cfg.Notification, publisher, log)

	a.Coordinator = worker.NewMonitorCoordinator(worker.Dependencies{
		Monitors:   monitorRepo,
		Alerts:     alertRepo,
		Store:      a.Store,
		Aggregator: a.Aggregations,
		Changes:    detector.NewChangeDetector(cfg.Scorer.ChangeThreshold, cfg.Scorer.MagnitudeSaturation),
		Anomalies:  detector.NewAnomalyDetector(cfg.Detector),
		Scorer:     services.NewAlertScorer(cfg.Scorer),
		Dispatcher: a.Notifier,
		Producer:   prod,
	}, cfg.Coordinator, log)
	a.Cleaner = worker.NewRetentionCleaner(a.Store, cfg.Retention, log)

	return nil
}

// Start launches the background flusher, the check scheduler, the retention
// job and the NATS trigger subscription
func (a *App) Start(ctx context.Context) error {
	a.Store.Start(ctx)

	if err := a.Coordinator.Start(ctx); err != nil {
		return err
	}
	if err := a.Cleaner.Start(ctx); err != nil {
		return err
	}

	if a.bus != nil {
		sub, err := a.bus.SubscribeTriggers(a.Config.NATS.TriggerTopic, a.Coordinator.HandleTrigger)
		if err != nil {
			return err
		}
		a.sub = sub
	}
	return nil
}

// Handler builds the HTTP API
func (a *App) Handler() http.Handler {
	val := validator.New()
	return router.New(a.Config, a.Logger, &router.Handlers{
		Health:  handlers.NewHealthHandler(a.DB.DB, a.Store, a.Logger),
		Monitor: handlers.NewMonitorHandler(a.Monitors, a.Coordinator, a.Logger, val),
		Alert:   handlers.NewAlertHandler(a.Alerts, a.Logger, val),
		Data:    handlers.NewDataHandler(a.Monitors, a.Store, a.Aggregations, a.Logger),
	})
}

// Close stops background work in dependency order and flushes pending
// snapshots. It is safe to call when Start was never called.
func (a *App) Close(ctx context.Context) error {
	if a.sub != nil {
		if err := a.sub.Unsubscribe(); err != nil {
			a.Logger.WarnWithErr(err, "Failed to unsubscribe from triggers")
		}
	}
	if a.Cleaner != nil {
		a.Cleaner.Stop()
	}
	if a.Coordinator != nil {
		a.Coordinator.Stop()
	}
	if a.Notifier != nil {
		a.Notifier.Wait()
	}

	var flushErr error
	if a.Store != nil {
		flushErr = a.Store.Close(ctx)
	}
	a.closeResources()
	return flushErr
}

func (a *App) closeResources() {
	if a.bus != nil {
		a.bus.Close()
		a.bus = nil
	}
	if a.codec != nil {
		a.codec.Close()
		a.codec = nil
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.WarnWithErr(err, "Failed to close database")
		}
	}
}
