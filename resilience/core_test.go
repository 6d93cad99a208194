//go:build unit

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/menumetrics/lib-resilience/resilience/adapter"
	"github.com/menumetrics/lib-resilience/resilience/breaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	core, err := New(Config{})
	require.NoError(t, err)

	require.NotNil(t, core.Health)
	require.NotNil(t, core.Breakers)
	require.NotNil(t, core.Versions)
}

func TestNew_InvalidRollbackConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Rollback: adapter.Config{AutoRollbackThresholdPct: 120}})
	require.Error(t, err)
}

func TestCore_StartStop(t *testing.T) {
	t.Parallel()

	core, err := New(Config{})
	require.NoError(t, err)

	ctx := context.Background()

	require.NoError(t, core.Start(ctx))
	core.Stop()
	core.Stop() // idempotent
}

// TestCore_BreakerOutcomesFeedHealth proves the default topology: results of
// breaker-guarded calls show up in the health monitor under the breaker name.
func TestCore_BreakerOutcomesFeedHealth(t *testing.T) {
	t.Parallel()

	core, err := New(Config{})
	require.NoError(t, err)

	cfg := breaker.DefaultConfig("wolt")
	cfg.VolumeThreshold = 100 // keep the breaker closed for this test

	_, err = core.Breakers.GetOrCreate(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	boom := errors.New("boom")

	for i := 0; i < 4; i++ {
		_, err := core.Breakers.Do(ctx, "wolt", func(context.Context) (any, error) {
			return "menu", nil
		})
		require.NoError(t, err)
	}

	_, err = core.Breakers.Do(ctx, "wolt", func(context.Context) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	snapshot := core.Health.Health("wolt")
	assert.Equal(t, 5, snapshot.Requests1h)
	require.True(t, snapshot.SuccessRate1h.Known)
	assert.InDelta(t, 0.8, snapshot.SuccessRate1h.Value, 1e-9)
	assert.Equal(t, 1, snapshot.ConsecutiveFailures)
}

// TestCore_OpenBreakerTriggersRollback exercises the full loop: repeated
// failures trip the breaker, the open transition wakes the version manager,
// and the degraded platform is rolled back to its previous version.
func TestCore_OpenBreakerTriggersRollback(t *testing.T) {
	t.Parallel()

	repo := adapter.NewInMemory()

	core, err := New(Config{
		Repository: repo,
		Rollback: adapter.Config{
			MinRequestsForRollback: 5,
			MinConsecutiveFailures: 3,
			SweepInterval:          time.Hour, // only the breaker can trigger the check
		},
	})
	require.NoError(t, err)

	ctx := context.Background()

	_, err = core.Versions.RegisterVersion(ctx, "wolt", "1.0", adapter.StatusActive, "")
	require.NoError(t, err)
	_, err = core.Versions.RegisterVersion(ctx, "wolt", "1.1", adapter.StatusActive, "broken selectors")
	require.NoError(t, err)

	require.NoError(t, core.Start(ctx))
	defer core.Stop()

	cfg := breaker.DefaultConfig("wolt")
	cfg.VolumeThreshold = 5
	cfg.ErrorThresholdPct = 50

	_, err = core.Breakers.GetOrCreate(cfg)
	require.NoError(t, err)

	boom := errors.New("extraction failed")

	for i := 0; i < 6; i++ {
		_, _ = core.Breakers.Do(ctx, "wolt", func(context.Context) (any, error) {
			return nil, boom
		})
	}

	require.Equal(t, breaker.StateOpen, core.Breakers.State("wolt"))

	require.Eventually(t, func() bool {
		history, err := core.Versions.RollbackHistory(ctx, "wolt", 1)

		return err == nil && len(history) == 1
	}, 2*time.Second, 10*time.Millisecond)

	active, err := core.Versions.Active(ctx, "wolt")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "1.0", active.Version)

	history, err := core.Versions.RollbackHistory(ctx, "wolt", 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Automatic)
	assert.Equal(t, "1.1", history[0].FromVersion)
	assert.Equal(t, "1.0", history[0].ToVersion)
}
