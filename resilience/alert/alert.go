// Package alert defines the outbound alerting contract used by the version
// manager. Delivery is fire-and-forget: an alerting failure is logged and
// swallowed, it never blocks or fails a rollback.
package alert

import (
	"context"
	"time"

	"github.com/menumetrics/lib-resilience/resilience/log"
)

// Severity classifies an alert for routing.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one notification emitted by the resilience core.
type Alert struct {
	Type      string
	Platform  string
	Severity  Severity
	Message   string
	Details   map[string]any
	Timestamp time.Time
}

// Alerter delivers alerts to an external collaborator (Slack webhook,
// PagerDuty, ops mailbox).
type Alerter interface {
	Emit(ctx context.Context, alert Alert) error
}

// LogAlerter writes alerts through the structured logger. It is the default
// collaborator when no external channel is wired.
type LogAlerter struct {
	logger log.Logger
}

// NewLogAlerter creates an alerter backed by logger. A nil logger degrades to
// a no-op logger.
func NewLogAlerter(logger log.Logger) *LogAlerter {
	if logger == nil {
		logger = log.NewNop()
	}

	return &LogAlerter{logger: logger}
}

// Emit logs the alert. It never fails.
func (a *LogAlerter) Emit(ctx context.Context, alert Alert) error {
	level := log.LevelWarn
	if alert.Severity == SeverityCritical {
		level = log.LevelError
	}

	a.logger.Log(ctx, level, alert.Message,
		log.String("alert_type", alert.Type),
		log.String("platform", alert.Platform),
		log.String("severity", string(alert.Severity)),
		log.Any("details", alert.Details),
	)

	return nil
}

// Nop is an alerter that drops everything; useful in tests.
type Nop struct{}

// Emit discards the alert.
func (Nop) Emit(_ context.Context, _ Alert) error { return nil }
