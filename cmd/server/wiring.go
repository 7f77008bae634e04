// Fieldsense - Farm Telemetry Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsense

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/tomtom215/fieldsense/internal/api"
	"github.com/tomtom215/fieldsense/internal/archive"
	"github.com/tomtom215/fieldsense/internal/audit"
	"github.com/tomtom215/fieldsense/internal/cache"
	"github.com/tomtom215/fieldsense/internal/config"
	"github.com/tomtom215/fieldsense/internal/database"
	"github.com/tomtom215/fieldsense/internal/decision"
	"github.com/tomtom215/fieldsense/internal/detection"
	"github.com/tomtom215/fieldsense/internal/eventbus"
	"github.com/tomtom215/fieldsense/internal/ingest"
	"github.com/tomtom215/fieldsense/internal/logging"
	"github.com/tomtom215/fieldsense/internal/middleware"
	"github.com/tomtom215/fieldsense/internal/modelstore"
	"github.com/tomtom215/fieldsense/internal/notify"
	"github.com/tomtom215/fieldsense/internal/supervisor"
	"github.com/tomtom215/fieldsense/internal/supervisor/services"
	ws "github.com/tomtom215/fieldsense/internal/websocket"
)

// application owns everything that must be closed after the tree stops.
type application struct {
	tree    *supervisor.Tree
	closers []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

func (a *application) onClose(name string, c io.Closer) {
	a.closers = append(a.closers, namedCloser{name: name, c: c})
}

// close releases resources in reverse order of acquisition.
func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		nc := a.closers[i]
		if err := nc.c.Close(); err != nil {
			logging.Error().Err(err).Str("resource", nc.name).Msg("Error closing resource")
		}
	}
	a.closers = nil
}

// alertFanout sends every alert to each broadcaster.
type alertFanout []detection.AlertBroadcaster

func (f alertFanout) BroadcastJSON(messageType string, data interface{}) {
	for _, b := range f {
		b.BroadcastJSON(messageType, data)
	}
}

// decisionConfig maps the koanf section onto the engine configuration,
// keeping engine defaults for zero values.
func decisionConfig(c config.DecisionConfig) *decision.Config {
	out := decision.DefaultConfig()
	setInt(&out.HistoryLimit, c.HistoryLimit)
	setInt(&out.MinTrainingSamples, c.MinTrainingSamples)
	setInt(&out.OverviewLimit, c.OverviewLimit)
	setInt(&out.TrendMinSamples, c.TrendMinSamples)
	setInt(&out.TrainingWindow, c.TrainingWindow)
	setInt(&out.Forest.Trees, c.Trees)
	setInt(&out.Forest.MaxDepth, c.MaxDepth)
	if c.TestFraction > 0 {
		out.TestFraction = c.TestFraction
	}
	if c.Seed != 0 {
		out.Forest.Seed = c.Seed
	}
	setDuration(&out.Cooldown, c.Cooldown)
	setDuration(&out.Validity, c.Validity)
	setDuration(&out.TrendWindow, c.TrendWindow)
	setDuration(&out.TrainingTimeout, c.TrainingTimeout)
	return out
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func routerConfig(c config.EventBusConfig) eventbus.RouterConfig {
	rc := eventbus.DefaultRouterConfig()
	rc.PoisonQueueTopic = c.PoisonTopic
	return rc
}

func middlewareConfig(c config.ServerConfig) *api.ChiMiddlewareConfig {
	mc := api.DefaultChiMiddlewareConfig()
	mc.CORSAllowedOrigins = c.CORSOrigins
	if c.RateLimitReqs > 0 {
		mc.RateLimitRequests = c.RateLimitReqs
	}
	if c.RateLimitWindow > 0 {
		mc.RateLimitWindow = c.RateLimitWindow
	}
	if c.IngestRateLimitReqs > 0 {
		mc.IngestRateLimitRequests = c.IngestRateLimitReqs
	}
	return mc
}

// build opens every store and wires the services into a supervisor tree.
// On error, whatever was opened is closed before returning.
//
//nolint:gocritic,gocyclo // logger passed by value; sequential wiring
func build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (app *application, err error) {
	app = &application{}
	defer func() {
		if err != nil {
			app.close()
			app = nil
		}
	}()

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	app.onClose("database", db)
	logger.Info().Str("path", db.Path()).Msg("Database initialized")

	engine, err := decision.NewEngine(decisionConfig(cfg.Decision), db, db, logger)
	if err != nil {
		return nil, fmt.Errorf("create decision engine: %w", err)
	}

	var bundles *modelstore.Store
	if cfg.ModelStore.Enabled {
		if bundles, err = modelstore.Open(cfg.ModelStore); err != nil {
			return nil, fmt.Errorf("open model store: %w", err)
		}
		app.onClose("model store", bundles)
		restored, err := bundles.Attach(ctx, engine.Registry())
		if err != nil {
			return nil, fmt.Errorf("restore models: %w", err)
		}
		logger.Info().Bool("restored", restored).Msg("Model store attached")
	}

	hub := ws.NewHub(logger)
	engine.AddSink(hub)
	broadcasters := alertFanout{hub}

	var notifier *notify.Notifier
	if cfg.Kafka.Enabled {
		notifier = notify.New(cfg.Kafka, logger)
		engine.AddSink(notifier)
		broadcasters = append(broadcasters, notifier)
	}

	detCfg := detection.DefaultEngineConfig()
	detCfg.Enabled = cfg.Detection.Enabled
	detCfg.AutoResolve = cfg.Detection.AutoResolve
	alerts := detection.NewEngine(detection.NewDuckDBStore(db.Conn()), broadcasters, detCfg, logger,
		detection.NewTemperatureDetector(),
		detection.NewSoilMoistureDetector(),
		detection.NewSoilPHDetector(),
		detection.NewRainfallDetector(),
	)

	dispatcher := decision.NewDispatcher(engine, decision.DispatcherConfig{
		Workers:   cfg.Decision.Workers,
		QueueSize: cfg.Decision.QueueSize,
	}, logger)

	bus, err := eventbus.New(ctx, cfg.EventBus, logger)
	if err != nil {
		return nil, fmt.Errorf("create event bus: %w", err)
	}
	app.onClose("event bus", bus)

	decisionHandler, err := eventbus.NewDecisionHandler(dispatcher, logger)
	if err != nil {
		return nil, err
	}
	detectionHandler, err := eventbus.NewDetectionHandler(alerts, logger)
	if err != nil {
		return nil, err
	}
	consumers := []eventbus.Consumer{
		{Name: "decision", Handler: message.NoPublishHandlerFunc(decisionHandler.Handle)},
		{Name: "detection", Handler: message.NoPublishHandlerFunc(detectionHandler.Handle)},
	}

	var telemetryArchive *archive.Archive
	if cfg.Archive.Enabled {
		if telemetryArchive, err = archive.Open(ctx, cfg.Archive, logger); err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		archiveHandler, err := eventbus.NewArchiveHandler(telemetryArchive, logger)
		if err != nil {
			return nil, err
		}
		consumers = append(consumers, eventbus.Consumer{
			Name:    "archive",
			Handler: message.NoPublishHandlerFunc(archiveHandler.Handle),
		})
	}
	components := eventbus.NewComponents(bus, routerConfig(cfg.EventBus), logger, consumers...)

	ingestSvc := ingest.NewService(db, bus.Publisher(), logger)

	var (
		auditLogger *audit.Logger
		trail       api.AuditTrail
	)
	if cfg.Audit.Enabled {
		auditStore := audit.NewDuckDBStore(db.Conn())
		if err := auditStore.CreateTable(ctx); err != nil {
			return nil, fmt.Errorf("create audit table: %w", err)
		}
		auditLogger = audit.NewLogger(auditStore, audit.Config{
			BufferSize:    cfg.Audit.BufferSize,
			RetentionDays: cfg.Audit.RetentionDays,
		}, logger)
		trail = auditLogger
	}

	perf := middleware.NewPerformanceMonitor(1000, time.Second, logger)
	responses := cache.New(15*time.Second, 1024)
	handler := api.NewHandler(api.HandlerDeps{
		Store:       db,
		Decisions:   engine,
		Alerts:      alerts,
		Submitter:   ingestSvc,
		NodeLimiter: ingest.NewNodeLimiter(cfg.MQTT.NodeRatePerMinute),
		Perf:        perf,
		Cache:       responses,
		Audit:       trail,
		Checks: map[string]api.ReadinessCheck{
			"event_bus": func(context.Context) error {
				if !components.IsRunning() {
					return fmt.Errorf("event bus router not running")
				}
				return nil
			},
		},
	})
	router := api.NewRouter(handler, api.NewChiMiddleware(middlewareConfig(cfg.Server)), ws.NewHandler(hub, cfg.Server.CORSOrigins))

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create supervisor tree: %w", err)
	}
	app.tree = tree

	if bundles != nil {
		tree.Add(supervisor.LayerData, bundles)
	}
	if telemetryArchive != nil {
		tree.Add(supervisor.LayerData, telemetryArchive)
	}
	if auditLogger != nil {
		tree.Add(supervisor.LayerData, auditLogger)
	}

	tree.Add(supervisor.LayerMessaging, services.NewEventBusService(components, cfg.Server.ShutdownTimeout))
	tree.Add(supervisor.LayerMessaging, dispatcher)
	if notifier != nil {
		tree.Add(supervisor.LayerMessaging, notifier)
	}
	if cfg.MQTT.Enabled {
		tree.Add(supervisor.LayerMessaging, ingest.NewMQTTIngester(cfg.MQTT, ingestSvc, logger))
	}

	tree.Add(supervisor.LayerAPI, services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	tree.Add(supervisor.LayerAPI, hub)
	tree.Add(supervisor.LayerAPI, responses)
	tree.Add(supervisor.LayerAPI, services.NewSchedulerService(engine, db, services.SchedulerConfig{
		TrainOnStartup:  cfg.Decision.TrainOnStartup,
		RetrainInterval: cfg.Decision.RetrainInterval,
		TrendInterval:   cfg.Decision.TrendInterval,
		OfflineAfter:    cfg.Detection.NodeOfflineAfter,
	}, logger))

	return app, nil
}
