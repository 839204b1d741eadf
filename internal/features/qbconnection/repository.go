package qbconnection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"roof-crm/internal/database"
)

type ConnectionRepository interface {
	GetActive(ctx context.Context, tenantID string) (*Connection, error)
	GetLatest(ctx context.Context, tenantID string) (*Connection, error)
	Activate(ctx context.Context, conn *Connection) error
	UpdateTokens(ctx context.Context, id string, update TokenUpdate) error
	Deactivate(ctx context.Context, id string, status Status, syncError string) error
	SetDefaultItem(ctx context.Context, id, itemID, itemName string) error
	ListActiveTenants(ctx context.Context) ([]string, error)
}

type ConnectionRepositoryImpl struct {
	DB *sql.DB
}

func NewConnectionRepository(pg *database.PostgresDB) ConnectionRepository {
	return &ConnectionRepositoryImpl{DB: pg.DB}
}

const connectionColumns = `id, tenant_id, realm_id, access_token, refresh_token,
	token_expires_at, refresh_token_expires_at, company_name, is_active, status,
	sync_error, default_item_id, default_item_name, last_refreshed_at,
	created_at, updated_at`

func (r *ConnectionRepositoryImpl) GetActive(ctx context.Context, tenantID string) (*Connection, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM quickbooks_connections
		 WHERE tenant_id = $1 AND is_active`, tenantID)
	return scanConnection(row)
}

// GetLatest returns the most recent connection in any state.
func (r *ConnectionRepositoryImpl) GetLatest(ctx context.Context, tenantID string) (*Connection, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM quickbooks_connections
		 WHERE tenant_id = $1 ORDER BY is_active DESC, updated_at DESC LIMIT 1`, tenantID)
	return scanConnection(row)
}

// Activate retires any active connection for the tenant and inserts conn as
// the new active one in a single transaction.
func (r *ConnectionRepositoryImpl) Activate(ctx context.Context, conn *Connection) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE quickbooks_connections
		 SET is_active = FALSE, status = $2, updated_at = $3
		 WHERE tenant_id = $1 AND is_active`,
		conn.TenantID, StatusDisconnected, now); err != nil {
		return fmt.Errorf("retire previous connection: %w", err)
	}

	conn.IsActive = true
	conn.Status = StatusActive
	conn.CreatedAt, conn.UpdatedAt = now, now

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO quickbooks_connections (`+connectionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		conn.ID, conn.TenantID, conn.RealmID, conn.AccessToken, conn.RefreshToken,
		conn.TokenExpiresAt, conn.RefreshTokenExpiresAt, conn.CompanyName, conn.IsActive, conn.Status,
		nullString(conn.SyncError), nullString(conn.DefaultItemID), nullString(conn.DefaultItemName), conn.LastRefreshedAt,
		conn.CreatedAt, conn.UpdatedAt); err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}

	return tx.Commit()
}

func (r *ConnectionRepositoryImpl) UpdateTokens(ctx context.Context, id string, u TokenUpdate) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE quickbooks_connections
		 SET access_token = $2, refresh_token = $3, token_expires_at = $4,
		     refresh_token_expires_at = $5, last_refreshed_at = $6,
		     sync_error = NULL, updated_at = $6
		 WHERE id = $1`,
		id, u.AccessToken, u.RefreshToken, u.TokenExpiresAt, u.RefreshTokenExpiresAt, u.RefreshedAt)
	return err
}

// Deactivate soft-disables a connection. The row is kept for reauthorization.
func (r *ConnectionRepositoryImpl) Deactivate(ctx context.Context, id string, status Status, syncError string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE quickbooks_connections
		 SET is_active = FALSE, status = $2, sync_error = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, status, nullString(syncError))
	return err
}

func (r *ConnectionRepositoryImpl) SetDefaultItem(ctx context.Context, id, itemID, itemName string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE quickbooks_connections
		 SET default_item_id = $2, default_item_name = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, itemID, itemName)
	return err
}

func (r *ConnectionRepositoryImpl) ListActiveTenants(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT tenant_id FROM quickbooks_connections WHERE is_active ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func scanConnection(row *sql.Row) (*Connection, error) {
	var (
		c                           Connection
		syncError, itemID, itemName sql.NullString
		lastRefreshed               sql.NullTime
		status                      string
	)
	err := row.Scan(&c.ID, &c.TenantID, &c.RealmID, &c.AccessToken, &c.RefreshToken,
		&c.TokenExpiresAt, &c.RefreshTokenExpiresAt, &c.CompanyName, &c.IsActive, &status,
		&syncError, &itemID, &itemName, &lastRefreshed, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConnectionNotFound
	}
	if err != nil {
		return nil, err
	}

	c.Status = Status(status)
	c.SyncError = syncError.String
	c.DefaultItemID = itemID.String
	c.DefaultItemName = itemName.String
	if lastRefreshed.Valid {
		t := lastRefreshed.Time
		c.LastRefreshedAt = &t
	}
	return &c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
