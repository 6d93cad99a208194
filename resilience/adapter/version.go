package adapter

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/mod/semver"
)

// Status is the lifecycle state of an adapter version.
type Status string

const (
	// StatusActive marks the version currently used to talk to the platform.
	// At most one version per platform is active at any time.
	StatusActive Status = "active"
	// StatusTesting marks a candidate version not yet promoted.
	StatusTesting Status = "testing"
	// StatusDeprecated marks a superseded or rolled-back version. Deprecated
	// versions are retained forever as rollback targets, never deleted.
	StatusDeprecated Status = "deprecated"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusTesting, StatusDeprecated:
		return true
	default:
		return false
	}
}

// AdapterVersion is the durable record of one version of the code/config used
// to talk to a platform.
type AdapterVersion struct {
	Platform          string     `json:"platform"`
	Version           string     `json:"version"`
	Status            Status     `json:"status"`
	DeployedAt        time.Time  `json:"deployedAt"`
	DeprecatedAt      *time.Time `json:"deprecatedAt,omitempty"`
	DeprecationReason string     `json:"deprecationReason,omitempty"`
	SuccessRate       *float64   `json:"successRate,omitempty"`
	RequestsTested    int        `json:"requestsTested"`
	Changelog         string     `json:"changelog,omitempty"`
}

// RollbackEvent is the append-only audit record of one rollback. Immutable
// after creation except the AlertSent flag.
type RollbackEvent struct {
	ID                uuid.UUID `json:"id"`
	Platform          string    `json:"platform"`
	FromVersion       string    `json:"fromVersion"`
	ToVersion         string    `json:"toVersion"`
	Reason            string    `json:"reason"`
	SuccessRateBefore float64   `json:"successRateBefore"`
	Timestamp         time.Time `json:"timestamp"`
	Automatic         bool      `json:"automatic"`
	AlertSent         bool      `json:"alertSent"`
}

// normalizeVersion validates and canonicalizes a version string. Versions are
// stored without the "v" prefix ("1.2", "2.0.1").
func normalizeVersion(version string) (string, error) {
	version = strings.TrimSpace(version)
	version = strings.TrimPrefix(version, "v")

	if version == "" {
		return "", fmt.Errorf("%w: empty version", ErrInvalidVersion)
	}

	if !semver.IsValid("v" + version) {
		return "", fmt.Errorf("%w: %q is not valid semver", ErrInvalidVersion, version)
	}

	return version, nil
}
