package breaker

import (
	"context"
	"fmt"
	"sync"

	"github.com/menumetrics/lib-resilience/resilience/log"
	"go.opentelemetry.io/otel/metric"
)

// Manager is a process-wide registry of breakers keyed by platform name.
// Construct one explicitly at process start and inject it into callers; fresh
// managers per test keep the registry testable.
type Manager struct {
	breakers  map[string]*Breaker
	listeners []StateChangeListener
	mu        sync.RWMutex

	recorder      Recorder
	logger        log.Logger
	meterProvider metric.MeterProvider
}

// ManagerOption customizes Manager construction.
type ManagerOption func(*Manager)

// WithManagerRecorder forwards every outcome of every managed breaker to the
// given recorder, typically a health.Monitor.
func WithManagerRecorder(recorder Recorder) ManagerOption {
	return func(m *Manager) {
		m.recorder = recorder
	}
}

// WithManagerLogger sets the logger used by the manager and its breakers.
func WithManagerLogger(logger log.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithManagerMeterProvider wires OpenTelemetry instruments for all managed
// breakers to the given provider.
func WithManagerMeterProvider(provider metric.MeterProvider) ManagerOption {
	return func(m *Manager) {
		m.meterProvider = provider
	}
}

// NewManager creates a circuit breaker manager.
func NewManager(opts ...ManagerOption) *Manager {
	manager := &Manager{
		breakers: make(map[string]*Breaker),
		logger:   log.NewNop(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}

	return manager
}

// GetOrCreate returns the existing breaker for cfg.Name or creates a new one.
// Per-breaker options only apply on creation.
func (m *Manager) GetOrCreate(cfg Config, opts ...Option) (*Breaker, error) {
	m.mu.RLock()
	b, exists := m.breakers[cfg.Name]
	m.mu.RUnlock()

	if exists {
		return b, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if b, exists = m.breakers[cfg.Name]; exists {
		return b, nil
	}

	baseOpts := []Option{
		WithRecorder(m.recorder),
		WithLogger(m.logger),
		WithMeterProvider(m.meterProvider),
		withTransitionHook(m.handleStateChange),
	}

	b, err := New(cfg, append(baseOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create breaker %q: %w", cfg.Name, err)
	}

	m.breakers[cfg.Name] = b

	m.logger.Log(context.Background(), log.LevelInfo, "created circuit breaker",
		log.String("breaker", cfg.Name))

	return b, nil
}

// Do runs op through the named breaker.
func (m *Manager) Do(ctx context.Context, name string, op Operation) (any, error) {
	b := m.get(name)
	if b == nil {
		return nil, fmt.Errorf("%w: %s", ErrBreakerNotFound, name)
	}

	return b.Do(ctx, op)
}

// State returns the named breaker's state, StateUnknown if it does not exist.
func (m *Manager) State(name string) State {
	b := m.get(name)
	if b == nil {
		return StateUnknown
	}

	return b.State()
}

// Counts returns the named breaker's statistics.
func (m *Manager) Counts(name string) Counts {
	return m.get(name).Counts()
}

// IsHealthy reports whether the named breaker is closed. OPEN and HALF_OPEN
// both count as unhealthy until a probe succeeds.
func (m *Manager) IsHealthy(name string) bool {
	return m.State(name) == StateClosed
}

// Reset returns the named breaker to CLOSED with cleared statistics.
func (m *Manager) Reset(name string) {
	b := m.get(name)
	if b == nil {
		return
	}

	b.ResetStats()
	b.ForceClose()
}

// ForceOpen opens the named breaker, bypassing the statistical decision.
func (m *Manager) ForceOpen(name string) {
	m.get(name).ForceOpen()
}

// ForceClose closes the named breaker, bypassing the statistical decision.
func (m *Manager) ForceClose(name string) {
	m.get(name).ForceClose()
}

// Names returns the names of all managed breakers.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.breakers))
	for name := range m.breakers {
		names = append(names, name)
	}

	return names
}

// RegisterStateChangeListener registers a listener notified of every state
// change of every managed breaker.
func (m *Manager) RegisterStateChangeListener(listener StateChangeListener) {
	if listener == nil {
		m.logger.Log(context.Background(), log.LevelWarn, "ignoring nil state change listener")

		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners = append(m.listeners, listener)
}

func (m *Manager) get(name string) *Breaker {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.breakers[name]
}

// handleStateChange fans a breaker state change out to registered listeners.
// Listeners run in their own goroutines so a slow or panicking listener never
// blocks breaker operations.
func (m *Manager) handleStateChange(name string, from, to State) {
	m.mu.RLock()
	listeners := make([]StateChangeListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, listener := range listeners {
		go func(l StateChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Log(context.Background(), log.LevelError, "state change listener panicked",
						log.String("breaker", name),
						log.Any("panic", r))
				}
			}()

			l.OnStateChange(name, from, to)
		}(listener)
	}
}
