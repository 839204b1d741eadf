package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied on every start; statements must stay idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS quickbooks_connections (
		id                       UUID PRIMARY KEY,
		tenant_id                TEXT NOT NULL,
		realm_id                 TEXT NOT NULL,
		access_token             TEXT NOT NULL,
		refresh_token            TEXT NOT NULL,
		token_expires_at         TIMESTAMPTZ NOT NULL,
		refresh_token_expires_at TIMESTAMPTZ NOT NULL,
		company_name             TEXT NOT NULL DEFAULT '',
		is_active                BOOLEAN NOT NULL DEFAULT TRUE,
		status                   TEXT NOT NULL DEFAULT 'active',
		sync_error               TEXT,
		default_item_id          TEXT,
		default_item_name        TEXT,
		last_refreshed_at        TIMESTAMPTZ,
		created_at               TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at               TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS quickbooks_connections_active_tenant
		ON quickbooks_connections (tenant_id) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS quickbooks_entity_mappings (
		id              UUID PRIMARY KEY,
		tenant_id       TEXT NOT NULL,
		crm_entity_type TEXT NOT NULL,
		crm_entity_id   TEXT NOT NULL,
		qb_entity_type  TEXT NOT NULL,
		qb_entity_id    TEXT NOT NULL,
		qb_sync_token   TEXT,
		last_synced_at  TIMESTAMPTZ NOT NULL,
		sync_status     TEXT NOT NULL DEFAULT 'synced',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (tenant_id, crm_entity_type, crm_entity_id)
	)`,
	`CREATE TABLE IF NOT EXISTS quickbooks_sync_logs (
		id               UUID PRIMARY KEY,
		tenant_id        TEXT NOT NULL,
		entity_type      TEXT NOT NULL,
		entity_id        TEXT NOT NULL,
		qb_entity_id     TEXT,
		action           TEXT NOT NULL,
		direction        TEXT NOT NULL,
		status           TEXT NOT NULL,
		request_payload  JSONB,
		response_payload JSONB,
		error_message    TEXT,
		error_code       TEXT,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS quickbooks_sync_logs_tenant_created
		ON quickbooks_sync_logs (tenant_id, created_at DESC)`,
}

// Migrate applies the QuickBooks schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
