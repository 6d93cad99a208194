// Package mongodb implements the adapter.Repository contract on MongoDB.
//
// Versions live in one collection keyed by platform+version; rollback events
// are append-only in a second collection. No multi-document transactions are
// used: the version manager's per-platform lock provides the required
// serialization, and every write here is a single-document atomic update.
package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/menumetrics/lib-resilience/resilience/adapter"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	versionsCollection = "adapter_versions"
	eventsCollection   = "rollback_events"
)

// ErrNilDatabase is returned when the repository is constructed without a
// database handle.
var ErrNilDatabase = errors.New("mongodb: database is required")

// Repository is the MongoDB-backed adapter.Repository.
type Repository struct {
	versions *mongo.Collection
	events   *mongo.Collection
}

// Compile-time assertion: *Repository implements adapter.Repository.
var _ adapter.Repository = (*Repository)(nil)

// NewRepository creates a repository on top of db.
func NewRepository(db *mongo.Database) (*Repository, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}

	return &Repository{
		versions: db.Collection(versionsCollection),
		events:   db.Collection(eventsCollection),
	}, nil
}

// EnsureIndexes creates the indexes the repository's queries rely on. Call
// once at process start; index creation is idempotent.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	_, err := r.versions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "platform", Value: 1}, {Key: "version", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "platform", Value: 1}, {Key: "status", Value: 1}, {Key: "deployed_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("create version indexes: %w", err)
	}

	_, err = r.events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "platform", Value: 1}, {Key: "timestamp", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("create event indexes: %w", err)
	}

	return nil
}

// UpsertVersion creates or replaces the record keyed by platform+version.
func (r *Repository) UpsertVersion(ctx context.Context, version *adapter.AdapterVersion) error {
	doc := toVersionDocument(version)

	_, err := r.versions.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: doc.ID}},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert version %s: %w", doc.ID, err)
	}

	return nil
}

// FindVersion returns the record for platform+version, or
// adapter.ErrVersionNotFound.
func (r *Repository) FindVersion(ctx context.Context, platform, version string) (*adapter.AdapterVersion, error) {
	var doc versionDocument

	err := r.versions.FindOne(ctx, bson.D{{Key: "_id", Value: versionKey(platform, version)}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s/%s", adapter.ErrVersionNotFound, platform, version)
	}

	if err != nil {
		return nil, fmt.Errorf("find version %s/%s: %w", platform, version, err)
	}

	return fromVersionDocument(doc), nil
}

// FindActive returns the platform's active version, or (nil, nil).
func (r *Repository) FindActive(ctx context.Context, platform string) (*adapter.AdapterVersion, error) {
	var doc versionDocument

	err := r.versions.FindOne(ctx, bson.D{
		{Key: "platform", Value: platform},
		{Key: "status", Value: string(adapter.StatusActive)},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("find active version for %s: %w", platform, err)
	}

	return fromVersionDocument(doc), nil
}

// FindByStatus returns the platform's versions with the given status, ordered
// by deployed_at descending.
func (r *Repository) FindByStatus(ctx context.Context, platform string, status adapter.Status) ([]*adapter.AdapterVersion, error) {
	return r.findVersions(ctx, bson.D{
		{Key: "platform", Value: platform},
		{Key: "status", Value: string(status)},
	})
}

// ListVersions returns all versions for the platform, ordered by deployed_at
// descending.
func (r *Repository) ListVersions(ctx context.Context, platform string) ([]*adapter.AdapterVersion, error) {
	return r.findVersions(ctx, bson.D{{Key: "platform", Value: platform}})
}

func (r *Repository) findVersions(ctx context.Context, filter bson.D) ([]*adapter.AdapterVersion, error) {
	cursor, err := r.versions.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "deployed_at", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find versions: %w", err)
	}

	var docs []versionDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode versions: %w", err)
	}

	records := make([]*adapter.AdapterVersion, 0, len(docs))
	for _, doc := range docs {
		records = append(records, fromVersionDocument(doc))
	}

	return records, nil
}

// ListPlatforms returns every platform with at least one version record.
func (r *Repository) ListPlatforms(ctx context.Context) ([]string, error) {
	values, err := r.versions.Distinct(ctx, "platform", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list platforms: %w", err)
	}

	platforms := make([]string, 0, len(values))

	for _, value := range values {
		if platform, ok := value.(string); ok {
			platforms = append(platforms, platform)
		}
	}

	return platforms, nil
}

// AppendRollbackEvent writes one immutable audit record.
func (r *Repository) AppendRollbackEvent(ctx context.Context, event *adapter.RollbackEvent) error {
	_, err := r.events.InsertOne(ctx, toEventDocument(event))
	if err != nil {
		return fmt.Errorf("append rollback event for %s: %w", event.Platform, err)
	}

	return nil
}

// MarkAlertSent flips the alert_sent flag on an existing rollback event.
func (r *Repository) MarkAlertSent(ctx context.Context, id uuid.UUID) error {
	result, err := r.events.UpdateByID(ctx, id.String(),
		bson.D{{Key: "$set", Value: bson.D{{Key: "alert_sent", Value: true}}}},
	)
	if err != nil {
		return fmt.Errorf("mark alert sent for %s: %w", id, err)
	}

	if result.MatchedCount == 0 {
		return fmt.Errorf("rollback event %s not found", id)
	}

	return nil
}

// ListRollbackEvents returns the platform's audit trail, newest first.
func (r *Repository) ListRollbackEvents(ctx context.Context, platform string, limit int) ([]*adapter.RollbackEvent, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		findOpts = findOpts.SetLimit(int64(limit))
	}

	cursor, err := r.events.Find(ctx, bson.D{{Key: "platform", Value: platform}}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("find rollback events for %s: %w", platform, err)
	}

	var docs []eventDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode rollback events: %w", err)
	}

	events := make([]*adapter.RollbackEvent, 0, len(docs))

	for _, doc := range docs {
		event, err := fromEventDocument(doc)
		if err != nil {
			return nil, err
		}

		events = append(events, event)
	}

	return events, nil
}
