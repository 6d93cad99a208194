package health

import (
	"context"
	"sync"
	"time"

	"github.com/menumetrics/lib-resilience/resilience/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// minutesPerHour is the number of minute buckets summed for 1h metrics.
	minutesPerHour = 60
	// bucketCount is the number of minute buckets kept per platform, covering
	// a full 24h window. Memory per platform is fixed regardless of traffic.
	bucketCount = 24 * minutesPerHour
)

// Ratio is a success ratio over a rolling window. Known is false when the
// window held no requests; in that case Value is meaningless and callers must
// treat the window as insufficient data, never as 0% or 100%.
type Ratio struct {
	Value float64
	Known bool
}

// PlatformHealth is the derived health view for one platform, recomputed on
// every read from the underlying minute buckets.
type PlatformHealth struct {
	Platform            string
	Requests1h          int
	Requests24h         int
	SuccessRate1h       Ratio
	SuccessRate24h      Ratio
	ConsecutiveFailures int
	AvgLatency1h        time.Duration
	LastErrorKind       string
	LastSuccessAt       time.Time
	LastFailureAt       time.Time
}

// bucket aggregates the outcomes recorded during one wall-clock minute.
// epochMinute identifies which minute the bucket currently holds; a bucket
// whose epochMinute is stale is logically empty and is reset on next write.
type bucket struct {
	epochMinute int64
	requests    int
	successes   int
	latencySum  time.Duration
}

// platformStats holds per-platform state behind its own lock so unrelated
// platforms never contend.
type platformStats struct {
	mu                  sync.Mutex
	buckets             [bucketCount]bucket
	consecutiveFailures int
	lastErrorKind       string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
}

// Monitor records call outcomes per platform and serves rolling-window health
// metrics. RecordEvent never fails and Health never returns an error: health
// bookkeeping is best-effort and must not abort a caller's operation.
type Monitor struct {
	mu        sync.RWMutex
	platforms map[string]*platformStats

	now     func() time.Time
	logger  log.Logger
	metrics monitorMetrics
}

// Option customizes Monitor construction.
type Option func(*Monitor)

// WithClock overrides the monitor's time source (used by deterministic tests).
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMeterProvider wires OpenTelemetry instruments to the given provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(m *Monitor) {
		m.metrics = newMonitorMetrics(provider)
	}
}

// NewMonitor creates a health monitor. A nil logger degrades to a no-op logger.
func NewMonitor(logger log.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = log.NewNop()
	}

	monitor := &Monitor{
		platforms: make(map[string]*platformStats),
		now:       time.Now,
		logger:    logger,
		metrics:   newMonitorMetrics(nil),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(monitor)
		}
	}

	return monitor
}

// RecordEvent records the outcome of one call against platform. latency is the
// observed call duration; errorKind classifies failures ("timeout",
// "circuit_open", "operation") and is empty for successes.
func (m *Monitor) RecordEvent(platform string, success bool, latency time.Duration, errorKind string) {
	if m == nil || platform == "" {
		return
	}

	stats := m.stats(platform)
	now := m.now()
	epochMinute := now.Unix() / 60

	stats.mu.Lock()

	slot := &stats.buckets[epochMinute%bucketCount]
	if slot.epochMinute != epochMinute {
		*slot = bucket{epochMinute: epochMinute}
	}

	slot.requests++

	if success {
		slot.successes++
		stats.consecutiveFailures = 0
		stats.lastSuccessAt = now
	} else {
		stats.consecutiveFailures++
		stats.lastErrorKind = errorKind
		stats.lastFailureAt = now
	}

	if latency > 0 {
		slot.latencySum += latency
	}

	stats.mu.Unlock()

	m.metrics.recorded(context.Background(),
		attribute.String("platform", platform),
		attribute.Bool("success", success),
	)
}

// Health returns the derived metrics for platform. An unknown platform yields
// a zeroed PlatformHealth with both success rates unknown.
func (m *Monitor) Health(platform string) PlatformHealth {
	result := PlatformHealth{Platform: platform}

	if m == nil {
		return result
	}

	m.mu.RLock()
	stats, exists := m.platforms[platform]
	m.mu.RUnlock()

	if !exists {
		return result
	}

	epochMinute := m.now().Unix() / 60

	stats.mu.Lock()
	defer stats.mu.Unlock()

	var (
		successes1h  int
		successes24h int
		latencySum1h time.Duration
	)

	for i := range stats.buckets {
		slot := &stats.buckets[i]

		age := epochMinute - slot.epochMinute
		if slot.requests == 0 || age < 0 || age >= bucketCount {
			continue
		}

		result.Requests24h += slot.requests
		successes24h += slot.successes

		if age < minutesPerHour {
			result.Requests1h += slot.requests
			successes1h += slot.successes
			latencySum1h += slot.latencySum
		}
	}

	if result.Requests1h > 0 {
		result.SuccessRate1h = Ratio{Value: float64(successes1h) / float64(result.Requests1h), Known: true}
		result.AvgLatency1h = latencySum1h / time.Duration(result.Requests1h)
	}

	if result.Requests24h > 0 {
		result.SuccessRate24h = Ratio{Value: float64(successes24h) / float64(result.Requests24h), Known: true}
	}

	result.ConsecutiveFailures = stats.consecutiveFailures
	result.LastErrorKind = stats.lastErrorKind
	result.LastSuccessAt = stats.lastSuccessAt
	result.LastFailureAt = stats.lastFailureAt

	return result
}

// Snapshot returns the current health of every platform seen so far.
func (m *Monitor) Snapshot() map[string]PlatformHealth {
	if m == nil {
		return nil
	}

	m.mu.RLock()
	names := make([]string, 0, len(m.platforms))

	for name := range m.platforms {
		names = append(names, name)
	}
	m.mu.RUnlock()

	snapshot := make(map[string]PlatformHealth, len(names))
	for _, name := range names {
		snapshot[name] = m.Health(name)
	}

	return snapshot
}

// Platforms returns the names of every platform with recorded events.
func (m *Monitor) Platforms() []string {
	if m == nil {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.platforms))
	for name := range m.platforms {
		names = append(names, name)
	}

	return names
}

// stats returns the platform's shard, creating it on first use.
func (m *Monitor) stats(platform string) *platformStats {
	m.mu.RLock()
	stats, exists := m.platforms[platform]
	m.mu.RUnlock()

	if exists {
		return stats
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if stats, exists = m.platforms[platform]; exists {
		return stats
	}

	stats = &platformStats{}
	m.platforms[platform] = stats

	m.logger.Log(context.Background(), log.LevelDebug, "tracking health for new platform",
		log.String("platform", platform))

	return stats
}
