package adapter

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the document-store operations the version manager
// requires. No transactions are needed beyond single-document atomic updates;
// cross-document consistency comes from the manager's per-platform lock.
//
// The mongodb subpackage provides the production implementation; InMemory is
// the test double.
type Repository interface {
	// UpsertVersion creates or replaces the record keyed by platform+version.
	UpsertVersion(ctx context.Context, version *AdapterVersion) error

	// FindVersion returns the record for platform+version, or
	// ErrVersionNotFound.
	FindVersion(ctx context.Context, platform, version string) (*AdapterVersion, error)

	// FindActive returns the platform's active version, or (nil, nil) when
	// none exists.
	FindActive(ctx context.Context, platform string) (*AdapterVersion, error)

	// FindByStatus returns the platform's versions with the given status,
	// ordered by deployed_at descending.
	FindByStatus(ctx context.Context, platform string, status Status) ([]*AdapterVersion, error)

	// ListVersions returns all versions for the platform, ordered by
	// deployed_at descending.
	ListVersions(ctx context.Context, platform string) ([]*AdapterVersion, error)

	// ListPlatforms returns every platform with at least one version record.
	ListPlatforms(ctx context.Context) ([]string, error)

	// AppendRollbackEvent writes one immutable audit record.
	AppendRollbackEvent(ctx context.Context, event *RollbackEvent) error

	// MarkAlertSent flips the alert_sent flag on an existing rollback event.
	MarkAlertSent(ctx context.Context, id uuid.UUID) error

	// ListRollbackEvents returns the platform's rollback audit trail, newest
	// first, capped at limit (0 means no cap).
	ListRollbackEvents(ctx context.Context, platform string, limit int) ([]*RollbackEvent, error)
}
