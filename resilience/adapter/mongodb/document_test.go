//go:build unit

package mongodb

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/menumetrics/lib-resilience/resilience/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionDocument_RoundTrip(t *testing.T) {
	t.Parallel()

	deployed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	deprecated := deployed.Add(time.Hour)
	rate := 0.21

	record := &adapter.AdapterVersion{
		Platform:          "wolt",
		Version:           "1.2",
		Status:            adapter.StatusDeprecated,
		DeployedAt:        deployed,
		DeprecatedAt:      &deprecated,
		DeprecationReason: "superseded by 1.3",
		SuccessRate:       &rate,
		RequestsTested:    42,
		Changelog:         "selector fixes",
	}

	doc := toVersionDocument(record)
	assert.Equal(t, "wolt/1.2", doc.ID)

	assert.Equal(t, record, fromVersionDocument(doc))
}

func TestEventDocument_RoundTrip(t *testing.T) {
	t.Parallel()

	event := &adapter.RollbackEvent{
		ID:                uuid.New(),
		Platform:          "wolt",
		FromVersion:       "1.2",
		ToVersion:         "1.1",
		Reason:            "manual rollback requested",
		SuccessRateBefore: 0.21,
		Timestamp:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Automatic:         true,
		AlertSent:         true,
	}

	doc := toEventDocument(event)
	assert.Equal(t, event.ID.String(), doc.ID)

	restored, err := fromEventDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, event, restored)
}

func TestEventDocument_BadID(t *testing.T) {
	t.Parallel()

	_, err := fromEventDocument(eventDocument{ID: "not-a-uuid"})
	require.Error(t, err)
}

func TestNewRepository_NilDatabase(t *testing.T) {
	t.Parallel()

	_, err := NewRepository(nil)
	require.ErrorIs(t, err, ErrNilDatabase)
}
