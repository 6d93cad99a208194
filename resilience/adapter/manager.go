package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/menumetrics/lib-resilience/resilience/alert"
	"github.com/menumetrics/lib-resilience/resilience/health"
	"github.com/menumetrics/lib-resilience/resilience/log"
	"go.opentelemetry.io/otel/metric"
)

// HealthSource supplies the live platform metrics the rollback decision is
// based on. Satisfied by health.Monitor.
type HealthSource interface {
	Health(platform string) health.PlatformHealth
}

// Manager owns adapter version lifecycle and automatic rollback for every
// platform. It exclusively writes AdapterVersion and RollbackEvent records;
// callers read its decisions through Active.
type Manager struct {
	repo    Repository
	healthy HealthSource
	alerter alert.Alerter
	cfg     Config

	cacheMu sync.RWMutex
	active  map[string]*AdapterVersion

	platformLocks *keyedMutex

	now     func() time.Time
	logger  log.Logger
	metrics managerMetrics

	sweepMu   sync.Mutex
	running   bool
	stop      chan struct{}
	checkNow  chan string
	sweepDone sync.WaitGroup
}

// Option customizes Manager construction.
type Option func(*Manager)

// WithConfig overrides the default rollback thresholds and sweep interval.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.cfg = cfg
	}
}

// WithAlerter sets the alerting collaborator. Defaults to a log-backed one.
func WithAlerter(alerter alert.Alerter) Option {
	return func(m *Manager) {
		if alerter != nil {
			m.alerter = alerter
		}
	}
}

// WithLogger sets the manager's logger.
func WithLogger(logger log.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the manager's time source (used by deterministic tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMeterProvider wires OpenTelemetry instruments to the given provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(m *Manager) {
		m.metrics = newManagerMetrics(provider)
	}
}

// NewManager creates a version manager on top of repo and healthSource.
func NewManager(repo Repository, healthSource HealthSource, opts ...Option) (*Manager, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}

	if healthSource == nil {
		return nil, ErrHealthSourceRequired
	}

	manager := &Manager{
		repo:          repo,
		healthy:       healthSource,
		cfg:           DefaultConfig(),
		active:        make(map[string]*AdapterVersion),
		platformLocks: newKeyedMutex(),
		now:           time.Now,
		logger:        log.NewNop(),
		metrics:       newManagerMetrics(nil),
		checkNow:      make(chan string, 16),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}

	if err := manager.cfg.validate(); err != nil {
		return nil, err
	}

	manager.cfg = manager.cfg.normalize()

	if manager.alerter == nil {
		manager.alerter = alert.NewLogAlerter(manager.logger)
	}

	return manager, nil
}

// WarmCache loads every platform's persisted active version into the
// in-memory cache. Call once at process start, before serving lookups.
func (m *Manager) WarmCache(ctx context.Context) error {
	platforms, err := m.repo.ListPlatforms(ctx)
	if err != nil {
		return fmt.Errorf("warm cache: list platforms: %w", err)
	}

	for _, platform := range platforms {
		active, err := m.repo.FindActive(ctx, platform)
		if err != nil {
			return fmt.Errorf("warm cache: find active for %s: %w", platform, err)
		}

		if active != nil {
			m.cacheActive(platform, active)
		}
	}

	m.logger.Log(ctx, log.LevelInfo, "adapter version cache warmed",
		log.Int("platforms", len(platforms)))

	return nil
}

// RegisterVersion records a new adapter version. When status is active, the
// platform's current active version is deprecated first so the at-most-one-
// active invariant holds.
func (m *Manager) RegisterVersion(ctx context.Context, platform, version string, status Status, changelog string) (*AdapterVersion, error) {
	platform = strings.TrimSpace(platform)
	if platform == "" {
		return nil, ErrInvalidPlatform
	}

	version, err := normalizeVersion(version)
	if err != nil {
		return nil, err
	}

	if status != StatusActive && status != StatusTesting {
		return nil, fmt.Errorf("%w: new versions must be %q or %q, got %q",
			ErrInvalidStatus, StatusActive, StatusTesting, status)
	}

	unlock := m.platformLocks.lock(platform)
	defer unlock()

	now := m.now()

	if status == StatusActive {
		if err := m.deprecateActiveLocked(ctx, platform, "superseded by "+version, now); err != nil {
			return nil, err
		}
	}

	record := &AdapterVersion{
		Platform:   platform,
		Version:    version,
		Status:     status,
		DeployedAt: now,
		Changelog:  changelog,
	}

	if err := m.repo.UpsertVersion(ctx, record); err != nil {
		return nil, fmt.Errorf("register version %s/%s: %w", platform, version, err)
	}

	if status == StatusActive {
		m.cacheActive(platform, record)
	}

	m.logger.Log(ctx, log.LevelInfo, "adapter version registered",
		log.String("platform", platform),
		log.String("version", version),
		log.String("status", string(status)))

	return record, nil
}

// Active returns the platform's active version, or (nil, nil) when none
// exists. Lookups are served from the warm cache; a miss falls through to the
// repository once and populates the cache.
func (m *Manager) Active(ctx context.Context, platform string) (*AdapterVersion, error) {
	m.cacheMu.RLock()
	cached, exists := m.active[platform]
	m.cacheMu.RUnlock()

	if exists {
		return cached, nil
	}

	found, err := m.repo.FindActive(ctx, platform)
	if err != nil {
		return nil, fmt.Errorf("find active for %s: %w", platform, err)
	}

	if found != nil {
		m.cacheActive(platform, found)
	}

	return found, nil
}

// PromoteToActive transitions a testing version to active, deprecating the
// current active version. Referencing an unknown version fails fast with
// ErrVersionNotFound.
func (m *Manager) PromoteToActive(ctx context.Context, platform, version string) (*AdapterVersion, error) {
	version, err := normalizeVersion(version)
	if err != nil {
		return nil, err
	}

	unlock := m.platformLocks.lock(platform)
	defer unlock()

	candidate, err := m.repo.FindVersion(ctx, platform, version)
	if err != nil {
		return nil, err
	}

	if candidate.Status == StatusActive {
		return candidate, nil
	}

	now := m.now()

	if err := m.deprecateActiveLocked(ctx, platform, "superseded by "+version, now); err != nil {
		return nil, err
	}

	candidate.Status = StatusActive
	candidate.DeployedAt = now
	candidate.DeprecatedAt = nil
	candidate.DeprecationReason = ""

	if err := m.repo.UpsertVersion(ctx, candidate); err != nil {
		return nil, fmt.Errorf("promote %s/%s: %w", platform, version, err)
	}

	m.cacheActive(platform, candidate)

	m.logger.Log(ctx, log.LevelInfo, "adapter version promoted to active",
		log.String("platform", platform),
		log.String("version", version))

	return candidate, nil
}

// SetTesting moves a version to testing. Demoting the active version leaves
// the platform without an active adapter until another one is promoted.
func (m *Manager) SetTesting(ctx context.Context, platform, version string) error {
	version, err := normalizeVersion(version)
	if err != nil {
		return err
	}

	unlock := m.platformLocks.lock(platform)
	defer unlock()

	record, err := m.repo.FindVersion(ctx, platform, version)
	if err != nil {
		return err
	}

	wasActive := record.Status == StatusActive

	record.Status = StatusTesting
	record.DeprecatedAt = nil
	record.DeprecationReason = ""

	if err := m.repo.UpsertVersion(ctx, record); err != nil {
		return fmt.Errorf("set testing %s/%s: %w", platform, version, err)
	}

	if wasActive {
		m.dropActive(platform)
	}

	return nil
}

// Versions returns all versions for the platform, newest deployment first.
func (m *Manager) Versions(ctx context.Context, platform string) ([]*AdapterVersion, error) {
	return m.repo.ListVersions(ctx, platform)
}

// RollbackHistory returns the platform's audit trail, newest first.
func (m *Manager) RollbackHistory(ctx context.Context, platform string, limit int) ([]*RollbackEvent, error) {
	return m.repo.ListRollbackEvents(ctx, platform, limit)
}

// deprecateActiveLocked deprecates the platform's current active version, if
// any. Callers must hold the platform lock.
func (m *Manager) deprecateActiveLocked(ctx context.Context, platform, reason string, now time.Time) error {
	current, err := m.repo.FindActive(ctx, platform)
	if err != nil {
		return fmt.Errorf("find active for %s: %w", platform, err)
	}

	if current == nil {
		return nil
	}

	current.Status = StatusDeprecated
	current.DeprecatedAt = &now
	current.DeprecationReason = reason

	if err := m.repo.UpsertVersion(ctx, current); err != nil {
		return fmt.Errorf("deprecate %s/%s: %w", platform, current.Version, err)
	}

	m.dropActive(platform)

	return nil
}

func (m *Manager) cacheActive(platform string, version *AdapterVersion) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	m.active[platform] = version
}

func (m *Manager) dropActive(platform string) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	delete(m.active, platform)
}
