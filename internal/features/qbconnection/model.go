package qbconnection

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusActive         Status = "active"
	StatusReauthRequired Status = "reauth_required"
	StatusDisconnected   Status = "disconnected"
)

// Connection is one tenant's QuickBooks authorization. Token columns hold
// vault ciphertext, never plaintext.
type Connection struct {
	ID                    string     `json:"id"`
	TenantID              string     `json:"tenant_id"`
	RealmID               string     `json:"realm_id"`
	AccessToken           string     `json:"-"`
	RefreshToken          string     `json:"-"`
	TokenExpiresAt        time.Time  `json:"token_expires_at"`
	RefreshTokenExpiresAt time.Time  `json:"refresh_token_expires_at"`
	CompanyName           string     `json:"company_name"`
	IsActive              bool       `json:"is_active"`
	Status                Status     `json:"status"`
	SyncError             string     `json:"sync_error,omitempty"`
	DefaultItemID         string     `json:"default_item_id,omitempty"`
	DefaultItemName       string     `json:"default_item_name,omitempty"`
	LastRefreshedAt       *time.Time `json:"last_refreshed_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

type TokenState string

const (
	TokenValid                TokenState = "valid"
	TokenNeedsRefresh         TokenState = "needs_refresh"
	TokenExpiredIrrecoverable TokenState = "expired_irrecoverable"
)

// Evaluate decides what GetClient must do with conn at now. Expiry is strict:
// a token whose expiry equals now is already expired. skew pulls the access
// token deadline earlier and is zero unless configured.
func Evaluate(conn *Connection, now time.Time, skew time.Duration) TokenState {
	if !conn.RefreshTokenExpiresAt.After(now) {
		return TokenExpiredIrrecoverable
	}
	if !conn.TokenExpiresAt.After(now.Add(skew)) {
		return TokenNeedsRefresh
	}
	return TokenValid
}

// Reasons written to sync_error when a connection is soft-disabled.
const (
	ReasonRefreshTokenExpired = "Refresh token expired"
	ReasonDecryptFailed       = "Token decryption failed"
	ReasonRefreshFailed       = "Token refresh failed"
	ReasonEncryptFailed       = "Token encryption failed"
)

var (
	ErrNotConnected       = errors.New("quickbooks not connected")
	ErrConnectionNotFound = errors.New("quickbooks connection not found")
)

// NotConnectedError is the business outcome for every state in which no
// usable client exists. errors.Is(err, ErrNotConnected) holds for it.
type NotConnectedError struct {
	TenantID string
	Reason   string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("quickbooks not connected for tenant %s: %s", e.TenantID, e.Reason)
}

func (e *NotConnectedError) Is(target error) bool {
	return target == ErrNotConnected
}

// TokenSet is the bearer endpoint response.
type TokenSet struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	TokenType             string `json:"token_type"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshTokenExpiresIn int64  `json:"x_refresh_token_expires_in"`
}

// Expiries converts the relative lifetimes into absolute deadlines.
func (t *TokenSet) Expiries(now time.Time) (access, refresh time.Time) {
	access = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	refresh = now.Add(time.Duration(t.RefreshTokenExpiresIn) * time.Second)
	return access, refresh
}

// TokenUpdate is what a successful refresh writes back.
type TokenUpdate struct {
	AccessToken           string
	RefreshToken          string
	TokenExpiresAt        time.Time
	RefreshTokenExpiresAt time.Time
	RefreshedAt           time.Time
}

type ConnectionStatus struct {
	Connected             bool       `json:"connected"`
	Status                Status     `json:"status"`
	RealmID               string     `json:"realm_id,omitempty"`
	CompanyName           string     `json:"company_name,omitempty"`
	SyncError             string     `json:"sync_error,omitempty"`
	TokenExpiresAt        *time.Time `json:"token_expires_at,omitempty"`
	RefreshTokenExpiresAt *time.Time `json:"refresh_token_expires_at,omitempty"`
	LastRefreshedAt       *time.Time `json:"last_refreshed_at,omitempty"`
	DefaultItemID         string     `json:"default_item_id,omitempty"`
	DefaultItemName       string     `json:"default_item_name,omitempty"`
}

func statusOf(conn *Connection) *ConnectionStatus {
	if conn == nil {
		return &ConnectionStatus{Status: StatusDisconnected}
	}
	tokenExp, refreshExp := conn.TokenExpiresAt, conn.RefreshTokenExpiresAt
	return &ConnectionStatus{
		Connected:             conn.IsActive,
		Status:                conn.Status,
		RealmID:               conn.RealmID,
		CompanyName:           conn.CompanyName,
		SyncError:             conn.SyncError,
		TokenExpiresAt:        &tokenExp,
		RefreshTokenExpiresAt: &refreshExp,
		LastRefreshedAt:       conn.LastRefreshedAt,
		DefaultItemID:         conn.DefaultItemID,
		DefaultItemName:       conn.DefaultItemName,
	}
}
