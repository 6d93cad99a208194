package adapter

import "errors"

var (
	// ErrVersionNotFound is returned when an operation references a version
	// that was never registered for the platform. This is a programmer error;
	// callers should fail fast instead of retrying.
	ErrVersionNotFound = errors.New("adapter: version not found")
	// ErrNoActiveVersion is returned when a rollback is requested for a
	// platform with no active version.
	ErrNoActiveVersion = errors.New("adapter: no active version")
	// ErrRollbackUnavailable is returned when no deprecated version exists to
	// roll back to. Surfaced to the operator, not auto-retried.
	ErrRollbackUnavailable = errors.New("adapter: no deprecated version to roll back to")
	// ErrInvalidVersion indicates a version string that is not valid semver.
	ErrInvalidVersion = errors.New("adapter: invalid version")
	// ErrInvalidStatus indicates an unknown or disallowed lifecycle status.
	ErrInvalidStatus = errors.New("adapter: invalid status")
	// ErrInvalidPlatform indicates an empty platform name.
	ErrInvalidPlatform = errors.New("adapter: platform is required")
	// ErrRepositoryRequired is returned when a Manager is constructed without
	// a repository.
	ErrRepositoryRequired = errors.New("adapter: repository is required")
	// ErrHealthSourceRequired is returned when a Manager is constructed
	// without a health source.
	ErrHealthSourceRequired = errors.New("adapter: health source is required")
	// ErrAlreadyRunning is returned when Start is called on a running sweep.
	ErrAlreadyRunning = errors.New("adapter: sweep already running")
)
