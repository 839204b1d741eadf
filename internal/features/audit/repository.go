package audit

import (
	"context"
	"errors"

	common_models "roof-crm/internal/common/models"
	"roof-crm/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrMissingTenant = errors.New("audit log requires a tenant")

type AuditRepository interface {
	Create(ctx context.Context, log common_models.AuditLog) error
	List(ctx context.Context, tenantID string, filter Filter) ([]common_models.AuditLog, error)
}

type AuditRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewAuditRepository(mongodb *database.MongodbDB) AuditRepository {
	return &AuditRepositoryImpl{
		Collection: mongodb.DB.Collection("audit_logs"),
	}
}

func (r *AuditRepositoryImpl) Create(ctx context.Context, log common_models.AuditLog) error {
	if log.TenantID == "" {
		return ErrMissingTenant
	}
	_, err := r.Collection.InsertOne(ctx, log)
	return err
}

func (r *AuditRepositoryImpl) List(ctx context.Context, tenantID string, filter Filter) ([]common_models.AuditLog, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}

	query := bson.M{"tenant_id": tenantID}
	if filter.Module != "" {
		query["module"] = filter.Module
	}
	if filter.Action != "" {
		query["action"] = filter.Action
	}
	if filter.RecordID != "" {
		query["record_id"] = filter.RecordID
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip(filter.offset()).
		SetLimit(filter.Limit)

	cursor, err := r.Collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	logs := []common_models.AuditLog{}
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}
