package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemory is a Repository kept entirely in process memory. It backs tests
// and local development; production deployments use the mongodb subpackage.
type InMemory struct {
	mu       sync.RWMutex
	versions map[string]map[string]*AdapterVersion
	events   []*RollbackEvent
}

// Compile-time assertion: *InMemory implements Repository.
var _ Repository = (*InMemory)(nil)

// NewInMemory creates an empty in-memory repository.
func NewInMemory() *InMemory {
	return &InMemory{versions: make(map[string]map[string]*AdapterVersion)}
}

// UpsertVersion creates or replaces the record keyed by platform+version.
func (r *InMemory) UpsertVersion(_ context.Context, version *AdapterVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byVersion, exists := r.versions[version.Platform]
	if !exists {
		byVersion = make(map[string]*AdapterVersion)
		r.versions[version.Platform] = byVersion
	}

	byVersion[version.Version] = cloneVersion(version)

	return nil
}

// FindVersion returns the record for platform+version, or ErrVersionNotFound.
func (r *InMemory) FindVersion(_ context.Context, platform, version string) (*AdapterVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.versions[platform][version]
	if !exists {
		return nil, fmt.Errorf("%w: %s/%s", ErrVersionNotFound, platform, version)
	}

	return cloneVersion(record), nil
}

// FindActive returns the platform's active version, or (nil, nil).
func (r *InMemory) FindActive(_ context.Context, platform string) (*AdapterVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, record := range r.versions[platform] {
		if record.Status == StatusActive {
			return cloneVersion(record), nil
		}
	}

	return nil, nil
}

// FindByStatus returns the platform's versions with the given status, ordered
// by deployed_at descending.
func (r *InMemory) FindByStatus(_ context.Context, platform string, status Status) ([]*AdapterVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []*AdapterVersion

	for _, record := range r.versions[platform] {
		if record.Status == status {
			matches = append(matches, cloneVersion(record))
		}
	}

	sortByDeployedAtDesc(matches)

	return matches, nil
}

// ListVersions returns all versions for the platform, ordered by deployed_at
// descending.
func (r *InMemory) ListVersions(_ context.Context, platform string) ([]*AdapterVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []*AdapterVersion

	for _, record := range r.versions[platform] {
		records = append(records, cloneVersion(record))
	}

	sortByDeployedAtDesc(records)

	return records, nil
}

// ListPlatforms returns every platform with at least one version record.
func (r *InMemory) ListPlatforms(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	platforms := make([]string, 0, len(r.versions))
	for platform := range r.versions {
		platforms = append(platforms, platform)
	}

	sort.Strings(platforms)

	return platforms, nil
}

// AppendRollbackEvent writes one immutable audit record.
func (r *InMemory) AppendRollbackEvent(_ context.Context, event *RollbackEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *event
	r.events = append(r.events, &clone)

	return nil
}

// MarkAlertSent flips the alert_sent flag on an existing rollback event.
func (r *InMemory) MarkAlertSent(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, event := range r.events {
		if event.ID == id {
			event.AlertSent = true

			return nil
		}
	}

	return fmt.Errorf("rollback event %s not found", id)
}

// ListRollbackEvents returns the platform's audit trail, newest first.
func (r *InMemory) ListRollbackEvents(_ context.Context, platform string, limit int) ([]*RollbackEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []*RollbackEvent

	for _, event := range r.events {
		if event.Platform == platform {
			clone := *event
			matches = append(matches, &clone)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Timestamp.After(matches[j].Timestamp)
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	return matches, nil
}

func cloneVersion(version *AdapterVersion) *AdapterVersion {
	clone := *version

	if version.DeprecatedAt != nil {
		at := *version.DeprecatedAt
		clone.DeprecatedAt = &at
	}

	if version.SuccessRate != nil {
		rate := *version.SuccessRate
		clone.SuccessRate = &rate
	}

	return &clone
}

func sortByDeployedAtDesc(records []*AdapterVersion) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].DeployedAt.After(records[j].DeployedAt)
	})
}
