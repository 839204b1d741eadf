package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ContextKey string

const (
	TenantIDKey ContextKey = "tenant_id"
)

type AuditAction string

const (
	AuditActionConnect    AuditAction = "CONNECT"
	AuditActionDisconnect AuditAction = "DISCONNECT"
	AuditActionSync       AuditAction = "SYNC"
	AuditActionCron       AuditAction = "CRON"
)

type Change struct {
	Old interface{} `bson:"old" json:"old"`
	New interface{} `bson:"new" json:"new"`
}

type AuditLog struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID  string             `bson:"tenant_id,omitempty" json:"tenant_id,omitempty"`
	Action    AuditAction        `bson:"action" json:"action"`
	Module    string             `bson:"module" json:"module"`
	RecordID  string             `bson:"record_id" json:"record_id"`
	ActorID   string             `bson:"actor_id" json:"actor_id"`
	Changes   map[string]Change  `bson:"changes,omitempty" json:"changes,omitempty"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

// EntityRecord is the generic tenant scoped CRM record. Contacts and projects
// are stored as records of entity "contacts" and "projects".
type EntityRecord struct {
	ID        primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	TenantID  primitive.ObjectID     `json:"tenant_id" bson:"tenant_id"`
	Entity    string                 `json:"entity" bson:"entity"`
	Data      map[string]interface{} `json:"data" bson:"data"`
	CreatedBy string                 `json:"created_by" bson:"created_by"`
	UpdatedBy string                 `json:"updated_by" bson:"updated_by"`
	CreatedAt time.Time              `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time              `json:"updated_at" bson:"updated_at"`
	Deleted   bool                   `json:"__deleted" bson:"deleted"`
	DeletedAt *time.Time             `json:"deleted_at,omitempty" bson:"deleted_at,omitempty"`
}

type Log struct {
	Message      string    `bson:"message" json:"message"`
	Caller       string    `bson:"caller,omitempty" json:"caller,omitempty"`
	IpAddress    string    `bson:"ip_address" json:"ip_address"`
	TenantID     string    `bson:"tenant_id,omitempty" json:"tenant_id,omitempty"`
	LogLevelId   int       `bson:"log_level_id" json:"log_level_id"`
	CreatedOnUtc time.Time `bson:"created_on_utc" json:"created_on_utc"`
}
