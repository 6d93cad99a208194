package breaker

import (
	"fmt"
	"strings"
	"time"
)

// defaultWindow is the rolling window over which trip statistics are kept.
const defaultWindow = time.Minute

// Config holds circuit breaker configuration.
type Config struct {
	Name              string        // platform name, also used as health monitor key
	Timeout           time.Duration // per-call execution timeout; 0 disables it
	ErrorThresholdPct float64       // failure percentage (0-100) that trips the breaker
	ResetTimeout      time.Duration // cooldown before a half-open probe is admitted
	VolumeThreshold   int           // minimum requests in window before the threshold applies
	Window            time.Duration // rolling stats window; defaults to one minute
}

func (cfg Config) validate() error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}

	if cfg.ErrorThresholdPct < 0 || cfg.ErrorThresholdPct > 100 {
		return fmt.Errorf("%w: error threshold must be in [0, 100], got %v", ErrInvalidConfig, cfg.ErrorThresholdPct)
	}

	if cfg.Timeout < 0 || cfg.ResetTimeout < 0 || cfg.Window < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}

	if cfg.VolumeThreshold < 0 {
		return fmt.Errorf("%w: volume threshold must not be negative", ErrInvalidConfig)
	}

	return nil
}

func (cfg Config) normalize() Config {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}

	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}

	if cfg.VolumeThreshold <= 0 {
		cfg.VolumeThreshold = 1
	}

	return cfg
}

// DefaultConfig provides balanced settings for most integrations.
func DefaultConfig(name string) Config {
	return Config{
		Name:              name,
		Timeout:           30 * time.Second,
		ErrorThresholdPct: 50,
		ResetTimeout:      2 * time.Minute,
		VolumeThreshold:   10,
		Window:            defaultWindow,
	}
}

// AggressiveConfig for integrations requiring fast failure detection.
func AggressiveConfig(name string) Config {
	return Config{
		Name:              name,
		Timeout:           10 * time.Second,
		ErrorThresholdPct: 40,
		ResetTimeout:      time.Minute,
		VolumeThreshold:   5,
		Window:            defaultWindow,
	}
}

// ConservativeConfig for integrations that should tolerate more failures.
func ConservativeConfig(name string) Config {
	return Config{
		Name:              name,
		Timeout:           60 * time.Second,
		ErrorThresholdPct: 60,
		ResetTimeout:      5 * time.Minute,
		VolumeThreshold:   20,
		Window:            defaultWindow,
	}
}

/// ScrapeConfig is tuned for delivery-platform page fetches: shorter timeout
// and faster detection than the default.
func ScrapeConfig(name string) Config {
	return Config{
		Name:              name,
		Timeout:           15 * time.Second,
		ErrorThresholdPct: 50,
		ResetTimeout:      2 * time.Minute,
		VolumeThreshold:   5,
		Window:            defaultWindow,
	}
}

// ExtractionConfig is tuned for AI extraction APIs, which run longer per call
// and rate-limit aggressively when degraded.
func ExtractionConfig(name string) Config {
	return Config{
		Name:              name,
		Timeout:           45 * time.Second,
		ErrorThresholdPct: 40,
		ResetTimeout:      3 * time.Minute,
		VolumeThreshold:   5,
		Window:            defaultWindow,
	}
}
