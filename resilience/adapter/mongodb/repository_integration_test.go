//go:build integration

package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/menumetrics/lib-resilience/resilience/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const testDatabase = "resilience_integration_db"

// setupRepository starts a disposable MongoDB 7 container and returns a
// repository with indexes in place. The container is terminated via t.Cleanup.
func setupRepository(t *testing.T) *Repository {
	t.Helper()

	ctx := context.Background()

	container, err := tcmongo.Run(ctx,
		"mongo:7",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Waiting for connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(endpoint))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, client.Disconnect(context.Background()))
	})

	repo, err := NewRepository(client.Database(testDatabase))
	require.NoError(t, err)

	require.NoError(t, repo.EnsureIndexes(ctx))

	return repo
}

func TestIntegration_Repository_VersionLifecycle(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	deployed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.FindVersion(ctx, "wolt", "1.0")
	require.ErrorIs(t, err, adapter.ErrVersionNotFound)

	active, err := repo.FindActive(ctx, "wolt")
	require.NoError(t, err)
	assert.Nil(t, active)

	require.NoError(t, repo.UpsertVersion(ctx, &adapter.AdapterVersion{
		Platform:   "wolt",
		Version:    "1.0",
		Status:     adapter.StatusActive,
		DeployedAt: deployed,
		Changelog:  "initial",
	}))

	found, err := repo.FindVersion(ctx, "wolt", "1.0")
	require.NoError(t, err)
	assert.Equal(t, adapter.StatusActive, found.Status)
	assert.Equal(t, "initial", found.Changelog)
	assert.True(t, found.DeployedAt.Equal(deployed))

	// Upsert with the same platform+version replaces, never duplicates.
	deprecatedAt := deployed.Add(time.Hour)
	found.Status = adapter.StatusDeprecated
	found.DeprecatedAt = &deprecatedAt
	found.DeprecationReason = "superseded by 1.1"
	require.NoError(t, repo.UpsertVersion(ctx, found))

	require.NoError(t, repo.UpsertVersion(ctx, &adapter.AdapterVersion{
		Platform:   "wolt",
		Version:    "1.1",
		Status:     adapter.StatusActive,
		DeployedAt: deployed.Add(time.Hour),
	}))

	require.NoError(t, repo.UpsertVersion(ctx, &adapter.AdapterVersion{
		Platform:   "glovo",
		Version:    "2.0",
		Status:     adapter.StatusTesting,
		DeployedAt: deployed,
	}))

	versions, err := repo.ListVersions(ctx, "wolt")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "1.1", versions[0].Version, "newest deployment first")
	assert.Equal(t, "1.0", versions[1].Version)
	require.NotNil(t, versions[1].DeprecatedAt)
	assert.True(t, versions[1].DeprecatedAt.Equal(deprecatedAt))

	deprecated, err := repo.FindByStatus(ctx, "wolt", adapter.StatusDeprecated)
	require.NoError(t, err)
	require.Len(t, deprecated, 1)
	assert.Equal(t, "1.0", deprecated[0].Version)

	active, err = repo.FindActive(ctx, "wolt")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "1.1", active.Version)

	platforms, err := repo.ListPlatforms(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"wolt", "glovo"}, platforms)
}

func TestIntegration_Repository_RollbackEvents(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ids := make([]uuid.UUID, 3)

	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, repo.AppendRollbackEvent(ctx, &adapter.RollbackEvent{
			ID:          ids[i],
			Platform:    "wolt",
			FromVersion: "1.1",
			ToVersion:   "1.0",
			Reason:      "manual rollback requested",
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	events, err := repo.ListRollbackEvents(ctx, "wolt", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ids[2], events[0].ID, "newest first")
	assert.Equal(t, ids[1], events[1].ID)

	require.NoError(t, repo.MarkAlertSent(ctx, ids[2]))
	require.Error(t, repo.MarkAlertSent(ctx, uuid.New()))

	events, err = repo.ListRollbackEvents(ctx, "wolt", 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].AlertSent)

	events, err = repo.ListRollbackEvents(ctx, "glovo", 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}
