package crm

import (
	"context"
	"errors"
	"fmt"
	"time"

	common_models "roof-crm/internal/common/models"
	"roof-crm/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrNotFound = errors.New("record not found")

type ContactRepository interface {
	GetContact(ctx context.Context, tenantID, id string) (*Contact, error)
	ListContacts(ctx context.Context, tenantID string) ([]Contact, error)
}

type ProjectRepository interface {
	GetProject(ctx context.Context, tenantID, id string) (*Project, error)
}

// RecordRepositoryImpl reads contacts and projects out of entity_records.
type RecordRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewRecordRepository(mongodb *database.MongodbDB) *RecordRepositoryImpl {
	return &RecordRepositoryImpl{
		Collection: mongodb.DB.Collection("entity_records"),
	}
}

func NewContactRepository(repo *RecordRepositoryImpl) ContactRepository { return repo }

func NewProjectRepository(repo *RecordRepositoryImpl) ProjectRepository { return repo }

func (r *RecordRepositoryImpl) GetContact(ctx context.Context, tenantID, id string) (*Contact, error) {
	rec, err := r.get(ctx, EntityContacts, tenantID, id)
	if err != nil {
		return nil, err
	}
	contact := contactFromRecord(rec)
	return &contact, nil
}

func (r *RecordRepositoryImpl) ListContacts(ctx context.Context, tenantID string) ([]Contact, error) {
	oid, err := primitive.ObjectIDFromHex(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id %q: %w", tenantID, err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.Collection.Find(ctx, bson.M{
		"tenant_id": oid,
		"entity":    EntityContacts,
		"deleted":   bson.M{"$ne": true},
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []common_models.EntityRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}

	contacts := make([]Contact, len(records))
	for i := range records {
		contacts[i] = contactFromRecord(&records[i])
	}
	return contacts, nil
}

func (r *RecordRepositoryImpl) GetProject(ctx context.Context, tenantID, id string) (*Project, error) {
	rec, err := r.get(ctx, EntityProjects, tenantID, id)
	if err != nil {
		return nil, err
	}
	project := projectFromRecord(rec)
	return &project, nil
}

func (r *RecordRepositoryImpl) get(ctx context.Context, entity, tenantID, id string) (*common_models.EntityRecord, error) {
	oid, err := primitive.ObjectIDFromHex(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id %q: %w", tenantID, err)
	}
	recordID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		// A malformed id can never match a row.
		return nil, ErrNotFound
	}

	var rec common_models.EntityRecord
	err = r.Collection.FindOne(ctx, bson.M{
		"_id":       recordID,
		"tenant_id": oid,
		"entity":    entity,
		"deleted":   bson.M{"$ne": true},
	}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// EnsureIndexes creates the lookup index used by tenant scoped reads.
func (r *RecordRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "tenant_id", Value: 1},
			{Key: "entity", Value: 1},
			{Key: "deleted", Value: 1},
			{Key: "created_at", Value: 1},
		},
		Options: options.Index().SetName("tenant_entity_created"),
	})
	return err
}

// EnsureRecord returns the id of the record whose data[key] equals value,
// inserting data as a new record when none exists.
func (r *RecordRepositoryImpl) EnsureRecord(ctx context.Context, tenantID, entity, key string, data map[string]interface{}) (string, bool, error) {
	oid, err := primitive.ObjectIDFromHex(tenantID)
	if err != nil {
		return "", false, fmt.Errorf("invalid tenant id %q: %w", tenantID, err)
	}

	var existing common_models.EntityRecord
	err = r.Collection.FindOne(ctx, bson.M{
		"tenant_id":   oid,
		"entity":      entity,
		"data." + key: data[key],
		"deleted":     bson.M{"$ne": true},
	}).Decode(&existing)
	if err == nil {
		return existing.ID.Hex(), false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, err
	}

	now := time.Now()
	rec := common_models.EntityRecord{
		ID:        primitive.NewObjectID(),
		TenantID:  oid,
		Entity:    entity,
		Data:      data,
		CreatedBy: "seed",
		UpdatedBy: "seed",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := r.Collection.InsertOne(ctx, rec); err != nil {
		return "", false, err
	}
	return rec.ID.Hex(), true, nil
}
