package qbsync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"roof-crm/internal/database"

	"github.com/google/uuid"
)

type MappingRepository interface {
	Get(ctx context.Context, tenantID, crmEntityType, crmEntityID string) (*EntityMapping, error)
	Upsert(ctx context.Context, mapping *EntityMapping) error
	List(ctx context.Context, tenantID, crmEntityType string, limit int) ([]EntityMapping, error)
}

type SyncLogRepository interface {
	Create(ctx context.Context, entry *SyncLogEntry) error
	List(ctx context.Context, tenantID string, filter LogFilter) ([]SyncLogEntry, error)
}

type MappingRepositoryImpl struct {
	DB *sql.DB
}

func NewMappingRepository(pg *database.PostgresDB) MappingRepository {
	return &MappingRepositoryImpl{DB: pg.DB}
}

const mappingColumns = `id, tenant_id, crm_entity_type, crm_entity_id, qb_entity_type,
	qb_entity_id, qb_sync_token, last_synced_at, sync_status, created_at, updated_at`

// Get returns nil, nil when the entity has never been synced.
func (r *MappingRepositoryImpl) Get(ctx context.Context, tenantID, crmEntityType, crmEntityID string) (*EntityMapping, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+mappingColumns+` FROM quickbooks_entity_mappings
		 WHERE tenant_id = $1 AND crm_entity_type = $2 AND crm_entity_id = $3`,
		tenantID, crmEntityType, crmEntityID)

	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// Upsert writes the mapping keyed on (tenant, crm type, crm id). The row id
// and created_at of an existing mapping are preserved.
func (r *MappingRepositoryImpl) Upsert(ctx context.Context, m *EntityMapping) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if m.LastSyncedAt.IsZero() {
		m.LastSyncedAt = now
	}
	if m.SyncStatus == "" {
		m.SyncStatus = MappingSynced
	}

	return r.DB.QueryRowContext(ctx,
		`INSERT INTO quickbooks_entity_mappings (`+mappingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		 ON CONFLICT (tenant_id, crm_entity_type, crm_entity_id) DO UPDATE SET
		   qb_entity_type = EXCLUDED.qb_entity_type,
		   qb_entity_id = EXCLUDED.qb_entity_id,
		   qb_sync_token = EXCLUDED.qb_sync_token,
		   last_synced_at = EXCLUDED.last_synced_at,
		   sync_status = EXCLUDED.sync_status,
		   updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at, updated_at`,
		m.ID, m.TenantID, m.CRMEntityType, m.CRMEntityID, m.QBEntityType,
		m.QBEntityID, nullString(m.QBSyncToken), m.LastSyncedAt, m.SyncStatus, now,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
}

func (r *MappingRepositoryImpl) List(ctx context.Context, tenantID, crmEntityType string, limit int) ([]EntityMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM quickbooks_entity_mappings WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	if crmEntityType != "" {
		args = append(args, crmEntityType)
		query += fmt.Sprintf(" AND crm_entity_type = $%d", len(args))
	}
	args = append(args, clampLimit(limit))
	query += fmt.Sprintf(" ORDER BY last_synced_at DESC LIMIT $%d", len(args))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []EntityMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, *m)
	}
	return mappings, rows.Err()
}

type SyncLogRepositoryImpl struct {
	DB *sql.DB
}

func NewSyncLogRepository(pg *database.PostgresDB) SyncLogRepository {
	return &SyncLogRepositoryImpl{DB: pg.DB}
}

const logColumns = `id, tenant_id, entity_type, entity_id, qb_entity_id, action, direction,
	status, request_payload, response_payload, error_message, error_code, created_at`

func (r *SyncLogRepositoryImpl) Create(ctx context.Context, e *SyncLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO quickbooks_sync_logs (`+logColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.TenantID, e.EntityType, e.EntityID, nullString(e.QBEntityID), e.Action, e.Direction,
		e.Status, jsonParam(e.RequestPayload), jsonParam(e.ResponsePayload),
		nullString(e.ErrorMessage), nullString(e.ErrorCode), e.CreatedAt)
	return err
}

func (r *SyncLogRepositoryImpl) List(ctx context.Context, tenantID string, f LogFilter) ([]SyncLogEntry, error) {
	conds := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}
	add := func(column string, value interface{}) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if f.EntityType != "" {
		add("entity_type", f.EntityType)
	}
	if f.EntityID != "" {
		add("entity_id", f.EntityID)
	}
	if f.Status != "" {
		add("status", f.Status)
	}
	args = append(args, clampLimit(f.Limit))

	query := fmt.Sprintf(`SELECT %s FROM quickbooks_sync_logs WHERE %s ORDER BY created_at DESC LIMIT $%d`,
		logColumns, strings.Join(conds, " AND "), len(args))

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []SyncLogEntry
	for rows.Next() {
		var (
			e                                SyncLogEntry
			qbID, errMsg, errCode, req, resp sql.NullString
			action, direction, status        string
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.EntityType, &e.EntityID, &qbID, &action, &direction,
			&status, &req, &resp, &errMsg, &errCode, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.QBEntityID = qbID.String
		e.Action = Action(action)
		e.Direction = Direction(direction)
		e.Status = LogStatus(status)
		if req.Valid {
			e.RequestPayload = []byte(req.String)
		}
		if resp.Valid {
			e.ResponsePayload = []byte(resp.String)
		}
		e.ErrorMessage = errMsg.String
		e.ErrorCode = errCode.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMapping(row rowScanner) (*EntityMapping, error) {
	var (
		m          EntityMapping
		syncToken  sql.NullString
		syncStatus string
	)
	if err := row.Scan(&m.ID, &m.TenantID, &m.CRMEntityType, &m.CRMEntityID, &m.QBEntityType,
		&m.QBEntityID, &syncToken, &m.LastSyncedAt, &syncStatus, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.QBSyncToken = syncToken.String
	m.SyncStatus = MappingStatus(syncStatus)
	return &m, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// jsonParam passes payloads as text so lib/pq does not send them as bytea.
func jsonParam(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
