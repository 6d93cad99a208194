package resilience

import (
	"context"
	"fmt"

	"github.com/menumetrics/lib-resilience/resilience/adapter"
	"github.com/menumetrics/lib-resilience/resilience/alert"
	"github.com/menumetrics/lib-resilience/resilience/breaker"
	"github.com/menumetrics/lib-resilience/resilience/health"
	"github.com/menumetrics/lib-resilience/resilience/log"
	"go.opentelemetry.io/otel/metric"
)

// Config assembles the collaborators for a Core. Zero values are usable:
// logging is dropped, versions live in memory, alerts go to the logger.
type Config struct {
	Logger        log.Logger
	MeterProvider metric.MeterProvider
	Repository    adapter.Repository
	Alerter       alert.Alerter
	Rollback      adapter.Config
}

// Core wires the three resilience components together: the health monitor
// receives every breaker outcome, and the version manager watches the
// monitor's metrics and the breakers' state changes.
//
// Construct one Core per process at startup and inject it into callers;
// construct a fresh one per test.
type Core struct {
	Health   *health.Monitor
	Breakers *breaker.Manager
	Versions *adapter.Manager
}

// New builds a Core from cfg.
func New(cfg Config) (*Core, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	repo := cfg.Repository
	if repo == nil {
		repo = adapter.NewInMemory()
	}

	monitor := health.NewMonitor(logger, health.WithMeterProvider(cfg.MeterProvider))

	breakers := breaker.NewManager(
		breaker.WithManagerRecorder(monitor),
		breaker.WithManagerLogger(logger),
		breaker.WithManagerMeterProvider(cfg.MeterProvider),
	)

	versionOpts := []adapter.Option{
		adapter.WithLogger(logger),
		adapter.WithMeterProvider(cfg.MeterProvider),
		adapter.WithAlerter(cfg.Alerter),
	}

	if cfg.Rollback != (adapter.Config{}) {
		versionOpts = append(versionOpts, adapter.WithConfig(cfg.Rollback))
	}

	versions, err := adapter.NewManager(repo, monitor, versionOpts...)
	if err != nil {
		return nil, fmt.Errorf("resilience: build version manager: %w", err)
	}

	// A breaker opening immediately re-evaluates that platform's rollback
	// gates instead of waiting for the next sweep.
	breakers.RegisterStateChangeListener(versions)

	return &Core{
		Health:   monitor,
		Breakers: breakers,
		Versions: versions,
	}, nil
}

// Start warms the active-version cache from persistence and launches the
// background rollback sweep.
func (c *Core) Start(ctx context.Context) error {
	if err := c.Versions.WarmCache(ctx); err != nil {
		return err
	}

	return c.Versions.Start()
}

// Stop stops the background sweep. Safe to call more than once.
func (c *Core) Stop() {
	c.Versions.Stop()
}
