package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/menumetrics/lib-resilience/resilience/breaker"
	"github.com/menumetrics/lib-resilience/resilience/log"
)

// SweepResult captures one evaluation pass over all known platforms.
type SweepResult struct {
	Checked    int
	RolledBack int
	Failed     int
}

// Start launches the background sweep that periodically evaluates every
// platform and rolls back where warranted. It returns ErrAlreadyRunning if
// the sweep is active.
func (m *Manager) Start() error {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}

	m.running = true
	m.stop = make(chan struct{})
	m.sweepDone.Add(1)

	go m.sweepLoop()

	m.logger.Log(context.Background(), log.LevelInfo, "rollback sweep started",
		log.Duration("interval", m.cfg.SweepInterval))

	return nil
}

// Stop gracefully stops the background sweep.
func (m *Manager) Stop() {
	m.sweepMu.Lock()

	if !m.running {
		m.sweepMu.Unlock()

		return
	}

	m.running = false
	close(m.stop)
	m.sweepMu.Unlock()

	m.sweepDone.Wait()
	m.logger.Log(context.Background(), log.LevelInfo, "rollback sweep stopped")
}

func (m *Manager) sweepLoop() {
	defer m.sweepDone.Done()

	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, err := m.CheckAndRollbackIfNeeded(context.Background())
			if err != nil {
				m.logger.Log(context.Background(), log.LevelError, "rollback sweep failed",
					log.Err(err))
			}
		case platform := <-m.checkNow:
			m.evaluatePlatform(context.Background(), platform)
		case <-m.stop:
			return
		}
	}
}

// CheckAndRollbackIfNeeded evaluates every known platform once and rolls back
// where ShouldRollback holds. One platform's failure is logged and skipped;
// it never blocks the rest of the sweep.
func (m *Manager) CheckAndRollbackIfNeeded(ctx context.Context) (SweepResult, error) {
	start := m.now()

	platforms, err := m.repo.ListPlatforms(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("sweep: list platforms: %w", err)
	}

	var result SweepResult

	for _, platform := range platforms {
		result.Checked++

		rolled, err := m.evaluatePlatform(ctx, platform)
		if err != nil {
			result.Failed++

			continue
		}

		if rolled {
			result.RolledBack++
		}
	}

	m.metrics.sweep(ctx, m.now().Sub(start).Seconds())

	if result.RolledBack > 0 || result.Failed > 0 {
		m.logger.Log(ctx, log.LevelInfo, "rollback sweep complete",
			log.Int("checked", result.Checked),
			log.Int("rolled_back", result.RolledBack),
			log.Int("failed", result.Failed))
	}

	return result, nil
}

// evaluatePlatform applies the rollback decision to one platform. Errors are
// logged here so sweep callers only count them.
func (m *Manager) evaluatePlatform(ctx context.Context, platform string) (bool, error) {
	should, err := m.ShouldRollback(ctx, platform)
	if err != nil {
		m.logger.Log(ctx, log.LevelError, "rollback evaluation failed, will retry next sweep",
			log.String("platform", platform),
			log.Err(err))

		return false, err
	}

	if !should {
		return false, nil
	}

	snapshot := m.healthy.Health(platform)
	reason := fmt.Sprintf("auto rollback: success rate %.1f%% below %.1f%% threshold",
		snapshot.SuccessRate1h.Value*percent, m.cfg.AutoRollbackThresholdPct)

	if _, err := m.rollback(ctx, platform, reason, true); err != nil {
		m.logger.Log(ctx, log.LevelError, "automatic rollback failed, will retry next sweep",
			log.String("platform", platform),
			log.Err(err))

		return false, err
	}

	return true, nil
}

// OnStateChange implements breaker.StateChangeListener: a breaker opening
// schedules an immediate rollback evaluation for that platform instead of
// waiting for the next sweep tick.
func (m *Manager) OnStateChange(platform string, _ breaker.State, to breaker.State) {
	if to != breaker.StateOpen {
		return
	}

	select {
	case m.checkNow <- platform:
	default:
		m.logger.Log(context.Background(), log.LevelWarn,
			"immediate rollback check queue full, platform will wait for next sweep",
			log.String("platform", platform))
	}
}
