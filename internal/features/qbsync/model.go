package qbsync

import (
	"time"

	"github.com/goccy/go-json"
)

const (
	EntityContact = "contact"
	EntityProject = "project"

	QBEntityCustomer = "customer"
	QBEntityInvoice  = "invoice"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionLink   Action = "link"
	ActionSkip   Action = "skip"
)

type Direction string

const (
	DirectionToQB   Direction = "to_qb"
	DirectionFromQB Direction = "from_qb"
)

type LogStatus string

const (
	LogSuccess LogStatus = "success"
	LogError   LogStatus = "error"
)

type MappingStatus string

const (
	MappingSynced  MappingStatus = "synced"
	MappingPending MappingStatus = "pending"
	MappingError   MappingStatus = "error"
)

// Error codes carried on a failed Result.
const (
	CodeContactNotFound   = "CONTACT_NOT_FOUND"
	CodeProjectNotFound   = "PROJECT_NOT_FOUND"
	CodeContactSyncFailed = "CONTACT_SYNC_FAILED"
	CodeNotConnected      = "NOT_CONNECTED"
	CodeQBAPIError        = "QB_API_ERROR"
	CodeSyncError         = "SYNC_ERROR"
	CodeMissingContact    = "MISSING_CONTACT"
)

// InvoiceResyncPolicy decides what syncing an already invoiced project does.
type InvoiceResyncPolicy string

const (
	// InvoiceResyncSkip reports the mapped invoice and creates nothing.
	InvoiceResyncSkip InvoiceResyncPolicy = "skip"
	// InvoiceResyncCreate issues another invoice and repoints the mapping.
	InvoiceResyncCreate InvoiceResyncPolicy = "create"
)

func ParseInvoiceResyncPolicy(s string) InvoiceResyncPolicy {
	if InvoiceResyncPolicy(s) == InvoiceResyncCreate {
		return InvoiceResyncCreate
	}
	return InvoiceResyncSkip
}

// EntityMapping links one CRM entity to its QuickBooks counterpart. There is
// at most one per (tenant, crm type, crm id).
type EntityMapping struct {
	ID            string        `json:"id"`
	TenantID      string        `json:"tenant_id"`
	CRMEntityType string        `json:"crm_entity_type"`
	CRMEntityID   string        `json:"crm_entity_id"`
	QBEntityType  string        `json:"qb_entity_type"`
	QBEntityID    string        `json:"qb_entity_id"`
	QBSyncToken   string        `json:"qb_sync_token,omitempty"`
	LastSyncedAt  time.Time     `json:"last_synced_at"`
	SyncStatus    MappingStatus `json:"sync_status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// SyncLogEntry records one sync attempt. Rows are never updated.
type SyncLogEntry struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	EntityType      string          `json:"entity_type"`
	EntityID        string          `json:"entity_id"`
	QBEntityID      string          `json:"qb_entity_id,omitempty"`
	Action          Action          `json:"action"`
	Direction       Direction       `json:"direction"`
	Status          LogStatus       `json:"status"`
	RequestPayload  json.RawMessage `json:"request_payload,omitempty"`
	ResponsePayload json.RawMessage `json:"response_payload,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	ErrorCode       string          `json:"error_code,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type Result struct {
	Success    bool   `json:"success"`
	ExternalID string `json:"external_id,omitempty"`
	Action     Action `json:"action,omitempty"`
	Error      string `json:"error,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
}

type BulkError struct {
	ContactID string `json:"contact_id"`
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
}

type BulkResult struct {
	Total  int         `json:"total"`
	Synced int         `json:"synced"`
	Failed int         `json:"failed"`
	Errors []BulkError `json:"errors,omitempty"`
}

type LogFilter struct {
	EntityType string
	EntityID   string
	Status     LogStatus
	Limit      int
}
