package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/defcheck/aggregation"
	"github.com/c360studio/defcheck/catalog"
	"github.com/c360studio/defcheck/cleaning"
	"github.com/c360studio/defcheck/config"
	"github.com/c360studio/defcheck/evaluator"
	"github.com/c360studio/defcheck/orchestrator"
	"github.com/c360studio/defcheck/rules"
	"github.com/c360studio/defcheck/rules/builtin"
	"github.com/c360studio/defcheck/telemetry"
	"github.com/c360studio/defcheck/transport/httpapi"
	"github.com/c360studio/defcheck/transport/natsapi"
	"github.com/c360studio/defcheck/validation"
)

// App wires the engine from configuration.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	// Observability
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	sink     telemetry.Sink

	// Engine
	store        *catalog.Store
	watcher      *catalog.Watcher
	rules        *rules.Registry
	service      *validation.Service
	orchestrator *orchestrator.Orchestrator

	// NATS
	natsConn *nats.Conn
	natsAPI  *natsapi.Server
}

// NewApp creates the application. No I/O happens until Start.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := telemetry.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("create metrics: %w", err)
	}

	reg := rules.NewRegistry()
	if err := builtin.Register(reg); err != nil {
		return nil, err
	}

	var source catalog.Source = catalog.EmbeddedSource{}
	if cfg.Catalog.Path != "" {
		source = catalog.FileSource{Path: cfg.Catalog.Path}
	}
	store := catalog.NewStore(source, logger, func(_ *catalog.Snapshot, err error) {
		metrics.CatalogReloaded(err)
	})

	policy := aggregation.Policy{Threshold: cfg.Scoring.Threshold}
	for _, s := range cfg.Scoring.GateSeverities {
		sev, err := rules.ParseSeverity(s)
		if err != nil {
			return nil, fmt.Errorf("scoring.gate_severities: %w", err)
		}
		policy.GateSeverities = append(policy.GateSeverities, sev)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("scoring policy: %w", err)
	}

	sink := telemetry.MultiSink{telemetry.NewLogSink(logger), metrics}
	service := validation.NewService(
		store,
		reg,
		evaluator.NewAdapter(cfg.Rules.Timeout, sink, logger),
		aggregation.New(policy),
		validation.Options{
			DefaultProfile: cfg.Catalog.DefaultProfile,
			Concurrency:    cfg.Rules.Concurrency,
		},
		logger,
	)

	return &App{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		metrics:  metrics,
		sink:     sink,
		store:    store,
		rules:    reg,
		service:  service,
	}, nil
}

// Start loads the catalog, connects to NATS when configured, builds the
// orchestrator and starts the catalog watcher.
func (a *App) Start(ctx context.Context) error {
	if _, err := a.store.Reload(ctx); err != nil {
		return err
	}

	if a.cfg.NATS.URL != "" {
		conn, err := nats.Connect(a.cfg.NATS.URL,
			nats.Name("defcheck"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		a.natsConn = conn
		a.logger.Info("Connected to NATS", "url", conn.ConnectedUrl())
	}

	cleaner, err := a.cleaner()
	if err != nil {
		return err
	}
	a.orchestrator = orchestrator.New(a.service, cleaner, orchestrator.Options{
		CleaningTimeout:     a.cfg.Cleaning.Timeout,
		MaxBatchConcurrency: a.cfg.Batch.MaxConcurrency,
	}, a.sink, a.logger)

	if a.cfg.Catalog.Watch && a.cfg.Catalog.Path != "" {
		w, err := catalog.NewWatcher(a.cfg.Catalog.Path, a.cfg.Catalog.Debounce, a.store, a.logger)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		a.watcher = w
	}
	return nil
}

func (a *App) cleaner() (cleaning.Cleaner, error) {
	if !a.cfg.Cleaning.Enabled {
		return nil, nil
	}
	switch a.cfg.Cleaning.Mode {
	case config.CleaningModeNATS:
		if a.natsConn == nil {
			return nil, errors.New("cleaning mode nats requires a NATS connection")
		}
		return cleaning.NewNATSCleaner(a.natsConn, a.cfg.Cleaning.Subject), nil
	default:
		return cleaning.NewHTMLCleaner(), nil
	}
}

// ServeNATS starts the NATS request/reply API.
func (a *App) ServeNATS(ctx context.Context) error {
	if a.natsConn == nil {
		return errors.New("nats.url is not configured")
	}
	a.natsAPI = natsapi.NewServer(a.orchestrator, natsapi.Options{
		Prefix:  a.cfg.NATS.Prefix,
		Queue:   a.cfg.NATS.Queue,
		Timeout: a.cfg.NATS.Timeout,
	}, a.logger)
	return a.natsAPI.Start(ctx, a.natsConn)
}

// HTTPHandler returns the HTTP API handler.
func (a *App) HTTPHandler() http.Handler {
	metrics := promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
	return httpapi.NewServer(a.orchestrator, a.store, metrics, a.logger).Router()
}

// Shutdown stops background work and closes connections.
func (a *App) Shutdown() {
	if a.natsAPI != nil {
		a.natsAPI.Stop()
	}
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			a.logger.Warn("Failed to stop catalog watcher", "error", err)
		}
	}
	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			a.natsConn.Close()
		}
	}
}
