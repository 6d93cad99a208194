package mongodb

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/menumetrics/lib-resilience/resilience/adapter"
)

// versionDocument is the persisted shape of an adapter.AdapterVersion. The
// _id is the platform+version pair, making upserts naturally idempotent.
type versionDocument struct {
	ID                string     `bson:"_id"`
	Platform          string     `bson:"platform"`
	Version           string     `bson:"version"`
	Status            string     `bson:"status"`
	DeployedAt        time.Time  `bson:"deployed_at"`
	DeprecatedAt      *time.Time `bson:"deprecated_at,omitempty"`
	DeprecationReason string     `bson:"deprecation_reason,omitempty"`
	SuccessRate       *float64   `bson:"success_rate,omitempty"`
	RequestsTested    int        `bson:"requests_tested"`
	Changelog         string     `bson:"changelog,omitempty"`
}

// eventDocument is the persisted shape of an adapter.RollbackEvent.
type eventDocument struct {
	ID                string    `bson:"_id"`
	Platform          string    `bson:"platform"`
	FromVersion       string    `bson:"from_version"`
	ToVersion         string    `bson:"to_version"`
	Reason            string    `bson:"reason"`
	SuccessRateBefore float64   `bson:"success_rate_before"`
	Timestamp         time.Time `bson:"timestamp"`
	Automatic         bool      `bson:"automatic"`
	AlertSent         bool      `bson:"alert_sent"`
}

func versionKey(platform, version string) string {
	return platform + "/" + version
}

func toVersionDocument(record *adapter.AdapterVersion) versionDocument {
	return versionDocument{
		ID:                versionKey(record.Platform, record.Version),
		Platform:          record.Platform,
		Version:           record.Version,
		Status:            string(record.Status),
		DeployedAt:        record.DeployedAt.UTC(),
		DeprecatedAt:      record.DeprecatedAt,
		DeprecationReason: record.DeprecationReason,
		SuccessRate:       record.SuccessRate,
		RequestsTested:    record.RequestsTested,
		Changelog:         record.Changelog,
	}
}

func fromVersionDocument(doc versionDocument) *adapter.AdapterVersion {
	return &adapter.AdapterVersion{
		Platform:          doc.Platform,
		Version:           doc.Version,
		Status:            adapter.Status(doc.Status),
		DeployedAt:        doc.DeployedAt,
		DeprecatedAt:      doc.DeprecatedAt,
		DeprecationReason: doc.DeprecationReason,
		SuccessRate:       doc.SuccessRate,
		RequestsTested:    doc.RequestsTested,
		Changelog:         doc.Changelog,
	}
}

func toEventDocument(event *adapter.RollbackEvent) eventDocument {
	return eventDocument{
		ID:                event.ID.String(),
		Platform:          event.Platform,
		FromVersion:       event.FromVersion,
		ToVersion:         event.ToVersion,
		Reason:            event.Reason,
		SuccessRateBefore: event.SuccessRateBefore,
		Timestamp:         event.Timestamp.UTC(),
		Automatic:         event.Automatic,
		AlertSent:         event.AlertSent,
	}
}

func fromEventDocument(doc eventDocument) (*adapter.RollbackEvent, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("parse rollback event id %q: %w", doc.ID, err)
	}

	return &adapter.RollbackEvent{
		ID:                id,
		Platform:          doc.Platform,
		FromVersion:       doc.FromVersion,
		ToVersion:         doc.ToVersion,
		Reason:            doc.Reason,
		SuccessRateBefore: doc.SuccessRateBefore,
		Timestamp:         doc.Timestamp,
		Automatic:         doc.Automatic,
		AlertSent:         doc.AlertSent,
	}, nil
}
