//go:build unit

package health

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source for deterministic window tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func TestMonitor_UnknownPlatform(t *testing.T) {
	t.Parallel()

	monitor := NewMonitor(nil)

	got := monitor.Health("never-seen")

	assert.Equal(t, "never-seen", got.Platform)
	assert.Zero(t, got.Requests1h)
	assert.False(t, got.SuccessRate1h.Known, "zero-request window must be unknown, not 0%%")
	assert.False(t, got.SuccessRate24h.Known)
	assert.Zero(t, got.ConsecutiveFailures)
}

func TestMonitor_SuccessRate(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	monitor := NewMonitor(nil, WithClock(clock.Now))

	for range 3 {
		monitor.RecordEvent("wolt", true, 120*time.Millisecond, "")
	}

	monitor.RecordEvent("wolt", false, 80*time.Millisecond, "operation")

	got := monitor.Health("wolt")

	assert.Equal(t, 4, got.Requests1h)
	require.True(t, got.SuccessRate1h.Known)
	assert.InDelta(t, 0.75, got.SuccessRate1h.Value, 1e-9)
	require.True(t, got.SuccessRate24h.Known)
	assert.InDelta(t, 0.75, got.SuccessRate24h.Value, 1e-9)
	assert.Equal(t, 110*time.Millisecond, got.AvgLatency1h)
	assert.Equal(t, "operation", got.LastErrorKind)
}

func TestMonitor_ConsecutiveFailures(t *testing.T) {
	t.Parallel()

	monitor := NewMonitor(nil)

	monitor.RecordEvent("glovo", false, 0, "timeout")
	monitor.RecordEvent("glovo", false, 0, "timeout")
	monitor.RecordEvent("glovo", false, 0, "operation")
	assert.Equal(t, 3, monitor.Health("glovo").ConsecutiveFailures)

	monitor.RecordEvent("glovo", true, 50*time.Millisecond, "")
	assert.Equal(t, 0, monitor.Health("glovo").ConsecutiveFailures, "any success resets the streak")

	monitor.RecordEvent("glovo", false, 0, "timeout")
	assert.Equal(t, 1, monitor.Health("glovo").ConsecutiveFailures)
}

func TestMonitor_WindowEviction(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	monitor := NewMonitor(nil, WithClock(clock.Now))

	monitor.RecordEvent("wolt", false, 0, "operation")
	monitor.RecordEvent("wolt", true, 0, "")

	// Still inside both windows.
	clock.Advance(30 * time.Minute)
	got := monitor.Health("wolt")
	assert.Equal(t, 2, got.Requests1h)
	assert.Equal(t, 2, got.Requests24h)

	// Out of the 1h window, still inside 24h.
	clock.Advance(45 * time.Minute)
	got = monitor.Health("wolt")
	assert.Zero(t, got.Requests1h)
	assert.False(t, got.SuccessRate1h.Known)
	assert.Equal(t, 2, got.Requests24h)
	require.True(t, got.SuccessRate24h.Known)
	assert.InDelta(t, 0.5, got.SuccessRate24h.Value, 1e-9)

	// Out of the 24h window entirely.
	clock.Advance(24 * time.Hour)
	got = monitor.Health("wolt")
	assert.Zero(t, got.Requests24h)
	assert.False(t, got.SuccessRate24h.Known)

	// Consecutive failures survive eviction: the counter is independent of
	// the windows.
	assert.Equal(t, 0, got.ConsecutiveFailures)
}

func TestMonitor_ConsecutiveFailuresSurviveEviction(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	monitor := NewMonitor(nil, WithClock(clock.Now))

	monitor.RecordEvent("wolt", false, 0, "timeout")
	monitor.RecordEvent("wolt", false, 0, "timeout")

	clock.Advance(25 * time.Hour)

	got := monitor.Health("wolt")
	assert.Zero(t, got.Requests24h)
	assert.Equal(t, 2, got.ConsecutiveFailures)
}

func TestMonitor_SnapshotAndPlatforms(t *testing.T) {
	t.Parallel()

	monitor := NewMonitor(nil)

	monitor.RecordEvent("wolt", true, 0, "")
	monitor.RecordEvent("glovo", false, 0, "operation")

	assert.ElementsMatch(t, []string{"wolt", "glovo"}, monitor.Platforms())

	snapshot := monitor.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, 1, snapshot["wolt"].Requests1h)
	assert.Equal(t, 1, snapshot["glovo"].ConsecutiveFailures)
}

func TestMonitor_ConcurrentRecording(t *testing.T) {
	t.Parallel()

	monitor := NewMonitor(nil)

	const (
		workers          = 8
		eventsPerWorker  = 200
		expectedRequests = workers * eventsPerWorker
	)

	var wg sync.WaitGroup

	for w := range workers {
		wg.Add(1)

		go func(worker int) {
			defer wg.Done()

			for i := range eventsPerWorker {
				monitor.RecordEvent("wolt", (worker+i)%2 == 0, time.Millisecond, "operation")
				_ = monitor.Health("wolt")
			}
		}(w)
	}

	wg.Wait()

	got := monitor.Health("wolt")
	assert.Equal(t, expectedRequests, got.Requests1h)
	require.True(t, got.SuccessRate1h.Known)
	assert.InDelta(t, 0.5, got.SuccessRate1h.Value, 1e-9)
}

func TestMonitor_NilReceiverAndEmptyPlatform(t *testing.T) {
	t.Parallel()

	var monitor *Monitor

	// Must not panic.
	monitor.RecordEvent("wolt", true, 0, "")
	assert.Zero(t, monitor.Health("wolt").Requests1h)
	assert.Nil(t, monitor.Platforms())

	real := NewMonitor(nil)
	real.RecordEvent("", true, 0, "")
	assert.Empty(t, real.Platforms())
}
