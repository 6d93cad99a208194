package adapter

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/menumetrics/lib-resilience/resilience/alert"
	"github.com/menumetrics/lib-resilience/resilience/health"
	"github.com/menumetrics/lib-resilience/resilience/log"
)

const percent = 100

// ShouldRollback reports whether the platform currently satisfies all four
// rollback gates: enough 1h volume, 1h success rate below the threshold,
// enough consecutive failures, and a deprecated version to roll back to.
// The gates are independent; any single unmet gate vetoes the rollback.
func (m *Manager) ShouldRollback(ctx context.Context, platform string) (bool, error) {
	snapshot := m.healthy.Health(platform)

	// Volume gate: a zero- or low-request window is insufficient data, never
	// evidence of a bad adapter.
	if snapshot.Requests1h < m.cfg.MinRequestsForRollback {
		return false, nil
	}

	if !snapshot.SuccessRate1h.Known || snapshot.SuccessRate1h.Value*percent >= m.cfg.AutoRollbackThresholdPct {
		return false, nil
	}

	if snapshot.ConsecutiveFailures < m.cfg.MinConsecutiveFailures {
		return false, nil
	}

	// Existence gate: there must be somewhere to go.
	deprecated, err := m.repo.FindByStatus(ctx, platform, StatusDeprecated)
	if err != nil {
		return false, fmt.Errorf("find rollback target for %s: %w", platform, err)
	}

	return len(deprecated) > 0, nil
}

// Rollback manually rolls the platform back to its most recently deprecated
// version. Returns ErrNoActiveVersion or ErrRollbackUnavailable when there is
// nothing to roll back from or to.
func (m *Manager) Rollback(ctx context.Context, platform string) (*RollbackEvent, error) {
	return m.rollback(ctx, platform, "manual rollback requested", false)
}

// rollback performs the rollback under the platform lock so a manual rollback
// and the automatic sweep can never double-deprecate.
func (m *Manager) rollback(ctx context.Context, platform, reason string, automatic bool) (*RollbackEvent, error) {
	unlock := m.platformLocks.lock(platform)
	defer unlock()

	current, err := m.repo.FindActive(ctx, platform)
	if err != nil {
		return nil, fmt.Errorf("rollback %s: find active: %w", platform, err)
	}

	if current == nil {
		return nil, fmt.Errorf("rollback %s: %w", platform, ErrNoActiveVersion)
	}

	deprecated, err := m.repo.FindByStatus(ctx, platform, StatusDeprecated)
	if err != nil {
		return nil, fmt.Errorf("rollback %s: find target: %w", platform, err)
	}

	if len(deprecated) == 0 {
		return nil, fmt.Errorf("rollback %s: %w", platform, ErrRollbackUnavailable)
	}

	// Most recently deployed deprecated version is the rollback target.
	target := deprecated[0]

	snapshot := m.healthy.Health(platform)
	now := m.now()

	successRateBefore := 0.0
	if snapshot.SuccessRate1h.Known {
		successRateBefore = snapshot.SuccessRate1h.Value
	}

	// Deprecate the failing version, keeping its observed stats on the record.
	current.Status = StatusDeprecated
	current.DeprecatedAt = &now
	current.DeprecationReason = reason
	current.SuccessRate = &successRateBefore
	current.RequestsTested = snapshot.Requests1h

	if err := m.repo.UpsertVersion(ctx, current); err != nil {
		return nil, fmt.Errorf("rollback %s: deprecate %s: %w", platform, current.Version, err)
	}

	// Reactivate the target.
	target.Status = StatusActive
	target.DeployedAt = now
	target.DeprecatedAt = nil
	target.DeprecationReason = ""

	if err := m.repo.UpsertVersion(ctx, target); err != nil {
		return nil, fmt.Errorf("rollback %s: reactivate %s: %w", platform, target.Version, err)
	}

	event := &RollbackEvent{
		ID:                uuid.New(),
		Platform:          platform,
		FromVersion:       current.Version,
		ToVersion:         target.Version,
		Reason:            reason,
		SuccessRateBefore: successRateBefore,
		Timestamp:         now,
		Automatic:         automatic,
	}

	if err := m.repo.AppendRollbackEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("rollback %s: append audit event: %w", platform, err)
	}

	m.cacheActive(platform, target)
	m.metrics.rollback(ctx, platform, automatic)

	m.logger.Log(ctx, log.LevelWarn, "adapter version rolled back",
		log.String("platform", platform),
		log.String("from_version", event.FromVersion),
		log.String("to_version", event.ToVersion),
		log.Float64("success_rate_before", successRateBefore),
		log.Bool("automatic", automatic))

	m.emitRollbackAlert(event, snapshot)

	return event, nil
}

// emitRollbackAlert notifies the alerting collaborator in the background.
// Failures are logged and swallowed; alerting must never block a rollback.
func (m *Manager) emitRollbackAlert(event *RollbackEvent, snapshot health.PlatformHealth) {
	go func() {
		ctx := context.Background()

		defer func() {
			if r := recover(); r != nil {
				m.logger.Log(ctx, log.LevelError, "alerter panicked",
					log.String("platform", event.Platform),
					log.Any("panic", r))
			}
		}()

		notification := alert.Alert{
			Type:     "adapter_rollback",
			Platform: event.Platform,
			Severity: alert.SeverityCritical,
			Message: fmt.Sprintf("adapter for %s rolled back from %s to %s",
				event.Platform, event.FromVersion, event.ToVersion),
			Details: map[string]any{
				"reason":               event.Reason,
				"automatic":            event.Automatic,
				"success_rate_before":  event.SuccessRateBefore,
				"requests_1h":          snapshot.Requests1h,
				"consecutive_failures": snapshot.ConsecutiveFailures,
			},
			Timestamp: event.Timestamp,
		}

		if err := m.alerter.Emit(ctx, notification); err != nil {
			m.logger.Log(ctx, log.LevelError, "failed to emit rollback alert",
				log.String("platform", event.Platform),
				log.Err(err))

			return
		}

		if err := m.repo.MarkAlertSent(ctx, event.ID); err != nil {
			m.logger.Log(ctx, log.LevelWarn, "failed to mark rollback alert as sent",
				log.String("platform", event.Platform),
				log.Err(err))
		}
	}()
}
