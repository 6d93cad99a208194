package adapter

import (
	"fmt"
	"time"
)

// Default thresholds for the automatic rollback decision. All of them are
// overridable per Manager through Config.
const (
	// DefaultAutoRollbackThresholdPct is the 1h success-rate percentage below
	// which a platform becomes a rollback candidate.
	DefaultAutoRollbackThresholdPct = 30.0
	// DefaultMinRequestsForRollback is the minimum 1h request volume before
	// the success-rate gate applies; sparser data never triggers a rollback.
	DefaultMinRequestsForRollback = 10
	// DefaultMinConsecutiveFailures filters out transient blips.
	DefaultMinConsecutiveFailures = 3
	// DefaultSweepInterval is how often the background sweep re-evaluates all
	// platforms.
	DefaultSweepInterval = 5 * time.Minute
)

// Config holds the version manager's rollback thresholds and sweep cadence.
type Config struct {
	AutoRollbackThresholdPct float64
	MinRequestsForRollback   int
	MinConsecutiveFailures   int
	SweepInterval            time.Duration
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		AutoRollbackThresholdPct: DefaultAutoRollbackThresholdPct,
		MinRequestsForRollback:   DefaultMinRequestsForRollback,
		MinConsecutiveFailures:   DefaultMinConsecutiveFailures,
		SweepInterval:            DefaultSweepInterval,
	}
}

func (cfg Config) validate() error {
	if cfg.AutoRollbackThresholdPct < 0 || cfg.AutoRollbackThresholdPct > 100 {
		return fmt.Errorf("adapter: auto rollback threshold must be in [0, 100], got %v", cfg.AutoRollbackThresholdPct)
	}

	if cfg.MinRequestsForRollback < 0 || cfg.MinConsecutiveFailures < 0 {
		return fmt.Errorf("adapter: rollback gates must not be negative")
	}

	if cfg.SweepInterval < 0 {
		return fmt.Errorf("adapter: sweep interval must not be negative")
	}

	return nil
}

func (cfg Config) normalize() Config {
	if cfg.AutoRollbackThresholdPct == 0 {
		cfg.AutoRollbackThresholdPct = DefaultAutoRollbackThresholdPct
	}

	if cfg.MinRequestsForRollback == 0 {
		cfg.MinRequestsForRollback = DefaultMinRequestsForRollback
	}

	if cfg.MinConsecutiveFailures == 0 {
		cfg.MinConsecutiveFailures = DefaultMinConsecutiveFailures
	}

	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	return cfg
}
