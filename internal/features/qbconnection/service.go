package qbconnection

import (
	"context"
	"errors"
	"fmt"
	"time"

	common_models "roof-crm/internal/common/models"
	"roof-crm/internal/config"
	"roof-crm/internal/features/audit"
	"roof-crm/internal/metrics"
	"roof-crm/pkg/qbclient"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const auditModule = "quickbooks"

// TokenStore owns each tenant's QuickBooks credentials and hands out
// authenticated API clients.
type TokenStore interface {
	GetClient(ctx context.Context, tenantID string) (*qbclient.Client, error)
	DefaultItem(ctx context.Context, tenantID string) (*qbclient.Ref, error)
	SetDefaultItem(ctx context.Context, tenantID string, item qbclient.Ref) error

	AuthorizationURL(ctx context.Context, tenantID string) (string, error)
	HandleCallback(ctx context.Context, code, state, realmID string) (*ConnectionStatus, error)
	Connect(ctx context.Context, tenantID, code, realmID string) (*ConnectionStatus, error)
	Disconnect(ctx context.Context, tenantID string) error
	Status(ctx context.Context, tenantID string) (*ConnectionStatus, error)
	ActiveTenants(ctx context.Context) ([]string, error)
}

type TokenStoreImpl struct {
	Repo         ConnectionRepository
	Vault        Vault
	OAuth        OAuthClient
	Locker       Locker
	States       StateStore
	Factory      *ClientFactory
	AuditService audit.AuditService
	Logger       *zap.Logger
	RefreshSkew  time.Duration
	Now          func() time.Time
}

func NewTokenStore(
	repo ConnectionRepository,
	vault Vault,
	oauth OAuthClient,
	locker Locker,
	states StateStore,
	factory *ClientFactory,
	auditService audit.AuditService,
	logger *zap.Logger,
	cfg *config.Config,
) TokenStore {
	return &TokenStoreImpl{
		Repo:         repo,
		Vault:        vault,
		OAuth:        oauth,
		Locker:       locker,
		States:       states,
		Factory:      factory,
		AuditService: auditService,
		Logger:       logger,
		RefreshSkew:  cfg.QuickBooks.RefreshSkew,
		Now:          time.Now,
	}
}

func (s *TokenStoreImpl) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// GetClient returns a client for the tenant's active connection, refreshing
// the access token when it has expired. Every business reason for not having
// a client comes back as *NotConnectedError; other errors are faults.
func (s *TokenStoreImpl) GetClient(ctx context.Context, tenantID string) (*qbclient.Client, error) {
	conn, err := s.loadActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if Evaluate(conn, s.now(), s.RefreshSkew) == TokenValid {
		return s.clientFromStored(ctx, conn)
	}

	unlock, err := s.Locker.Lock(ctx, "qb_refresh:"+tenantID)
	if err != nil {
		return nil, fmt.Errorf("acquire refresh lock: %w", err)
	}
	defer unlock()

	// Another caller may have refreshed or disabled the row while we waited.
	conn, err = s.loadActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	switch Evaluate(conn, s.now(), s.RefreshSkew) {
	case TokenExpiredIrrecoverable:
		return nil, s.softDisable(ctx, conn, ReasonRefreshTokenExpired)
	case TokenValid:
		return s.clientFromStored(ctx, conn)
	}

	_, refreshToken, err := s.decryptTokens(ctx, conn)
	if err != nil {
		return nil, err
	}

	tokens, err := s.OAuth.Refresh(ctx, refreshToken)
	if err != nil {
		metrics.RecordTokenRefresh(false)
		// Only a rejection from Intuit revokes the grant. Transport faults
		// leave the connection active for the next attempt.
		var oauthErr *OAuthError
		if !errors.As(err, &oauthErr) {
			s.Logger.Error("Token refresh request failed", zap.String("tenant_id", tenantID), zap.Error(err))
			return nil, fmt.Errorf("refresh token: %w", err)
		}
		s.Logger.Warn("Token refresh failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, s.softDisable(ctx, conn, ReasonRefreshFailed)
	}
	metrics.RecordTokenRefresh(true)

	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}

	now := s.now()
	encAccess, errA := s.Vault.Encrypt(ctx, tokens.AccessToken)
	encRefresh, errR := s.Vault.Encrypt(ctx, tokens.RefreshToken)
	if err := errors.Join(errA, errR); err != nil {
		s.Logger.Error("Token encryption failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, s.softDisable(ctx, conn, ReasonEncryptFailed)
	}

	accessExp, refreshExp := tokens.Expiries(now)
	if tokens.RefreshTokenExpiresIn == 0 {
		refreshExp = conn.RefreshTokenExpiresAt
	}
	if err := s.Repo.UpdateTokens(ctx, conn.ID, TokenUpdate{
		AccessToken:           encAccess,
		RefreshToken:          encRefresh,
		TokenExpiresAt:        accessExp,
		RefreshTokenExpiresAt: refreshExp,
		RefreshedAt:           now,
	}); err != nil {
		return nil, fmt.Errorf("persist refreshed tokens: %w", err)
	}

	s.Logger.Info("QuickBooks token refreshed",
		zap.String("tenant_id", tenantID),
		zap.Time("expires_at", accessExp),
	)
	return s.Factory.New(tokens.AccessToken, conn.RealmID), nil
}

func (s *TokenStoreImpl) loadActive(ctx context.Context, tenantID string) (*Connection, error) {
	conn, err := s.Repo.GetActive(ctx, tenantID)
	if errors.Is(err, ErrConnectionNotFound) {
		return nil, &NotConnectedError{TenantID: tenantID, Reason: "no active connection"}
	}
	if err != nil {
		return nil, fmt.Errorf("load connection: %w", err)
	}
	return conn, nil
}

func (s *TokenStoreImpl) clientFromStored(ctx context.Context, conn *Connection) (*qbclient.Client, error) {
	accessToken, _, err := s.decryptTokens(ctx, conn)
	if err != nil {
		return nil, err
	}
	return s.Factory.New(accessToken, conn.RealmID), nil
}

// decryptTokens opens both tokens. Any failure soft-disables the connection
// and yields the not-connected outcome.
func (s *TokenStoreImpl) decryptTokens(ctx context.Context, conn *Connection) (access, refresh string, err error) {
	access, errA := s.Vault.Decrypt(ctx, conn.AccessToken)
	refresh, errR := s.Vault.Decrypt(ctx, conn.RefreshToken)
	if errA != nil || errR != nil || access == "" || refresh == "" {
		s.Logger.Warn("Token decryption failed",
			zap.String("tenant_id", conn.TenantID),
			zap.Error(errors.Join(errA, errR)),
		)
		return "", "", s.softDisable(ctx, conn, ReasonDecryptFailed)
	}
	return access, refresh, nil
}

// softDisable marks the connection as needing reauthorization and returns
// the not-connected outcome for the caller. The writes outlive a cancelled
// caller context.
func (s *TokenStoreImpl) softDisable(ctx context.Context, conn *Connection, reason string) error {
	ctx = context.WithoutCancel(ctx)
	if err := s.Repo.Deactivate(ctx, conn.ID, StatusReauthRequired, reason); err != nil {
		s.Logger.Error("Failed to disable connection",
			zap.String("tenant_id", conn.TenantID),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
	metrics.RecordConnectionDisabled(reason)

	_ = s.AuditService.LogChange(withTenant(ctx, conn.TenantID), common_models.AuditActionDisconnect, auditModule, conn.RealmID, map[string]common_models.Change{
		"status":     {Old: conn.Status, New: StatusReauthRequired},
		"sync_error": {Old: conn.SyncError, New: reason},
	})

	return &NotConnectedError{TenantID: conn.TenantID, Reason: reason}
}

// DefaultItem returns the cached invoice line item, or nil when none is set.
func (s *TokenStoreImpl) DefaultItem(ctx context.Context, tenantID string) (*qbclient.Ref, error) {
	conn, err := s.loadActive(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if conn.DefaultItemID == "" {
		return nil, nil
	}
	return &qbclient.Ref{Value: conn.DefaultItemID, Name: conn.DefaultItemName}, nil
}

func (s *TokenStoreImpl) SetDefaultItem(ctx context.Context, tenantID string, item qbclient.Ref) error {
	conn, err := s.loadActive(ctx, tenantID)
	if err != nil {
		return err
	}
	return s.Repo.SetDefaultItem(ctx, conn.ID, item.Value, item.Name)
}

func (s *TokenStoreImpl) AuthorizationURL(ctx context.Context, tenantID string) (string, error) {
	state, err := s.States.Issue(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return s.OAuth.AuthorizationURL(state), nil
}

// HandleCallback resolves the tenant from the one-shot state and connects it.
func (s *TokenStoreImpl) HandleCallback(ctx context.Context, code, state, realmID string) (*ConnectionStatus, error) {
	tenantID, err := s.States.Consume(ctx, state)
	if err != nil {
		return nil, err
	}
	return s.Connect(withTenant(ctx, tenantID), tenantID, code, realmID)
}

func (s *TokenStoreImpl) Connect(ctx context.Context, tenantID, code, realmID string) (*ConnectionStatus, error) {
	tokens, err := s.OAuth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	companyName := ""
	info, err := s.Factory.New(tokens.AccessToken, realmID).GetCompanyInfo(ctx)
	if err != nil {
		s.Logger.Warn("Failed to fetch company info",
			zap.String("tenant_id", tenantID),
			zap.String("realm_id", realmID),
			zap.Error(err),
		)
	} else {
		companyName = info.CompanyName
	}

	encAccess, err := s.Vault.Encrypt(ctx, tokens.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}
	encRefresh, err := s.Vault.Encrypt(ctx, tokens.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt refresh token: %w", err)
	}

	now := s.now()
	accessExp, refreshExp := tokens.Expiries(now)
	conn := &Connection{
		ID:                    uuid.NewString(),
		TenantID:              tenantID,
		RealmID:               realmID,
		AccessToken:           encAccess,
		RefreshToken:          encRefresh,
		TokenExpiresAt:        accessExp,
		RefreshTokenExpiresAt: refreshExp,
		CompanyName:           companyName,
		LastRefreshedAt:       &now,
	}
	if err := s.Repo.Activate(ctx, conn); err != nil {
		return nil, fmt.Errorf("save connection: %w", err)
	}

	_ = s.AuditService.LogChange(withTenant(ctx, tenantID), common_models.AuditActionConnect, auditModule, realmID, map[string]common_models.Change{
		"status":       {New: StatusActive},
		"company_name": {New: companyName},
	})
	s.Logger.Info("QuickBooks connected",
		zap.String("tenant_id", tenantID),
		zap.String("realm_id", realmID),
		zap.String("company_name", companyName),
	)

	return statusOf(conn), nil
}

// Disconnect revokes the refresh token at the provider when it can and marks
// the connection disconnected. A failed revoke does not block disconnecting.
func (s *TokenStoreImpl) Disconnect(ctx context.Context, tenantID string) error {
	conn, err := s.loadActive(ctx, tenantID)
	if err != nil {
		return err
	}

	if refreshToken, err := s.Vault.Decrypt(ctx, conn.RefreshToken); err == nil && refreshToken != "" {
		if err := s.OAuth.Revoke(ctx, refreshToken); err != nil {
			s.Logger.Warn("Token revoke failed", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}

	if err := s.Repo.Deactivate(ctx, conn.ID, StatusDisconnected, ""); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}

	_ = s.AuditService.LogChange(withTenant(ctx, tenantID), common_models.AuditActionDisconnect, auditModule, conn.RealmID, map[string]common_models.Change{
		"status": {Old: conn.Status, New: StatusDisconnected},
	})
	return nil
}

func (s *TokenStoreImpl) Status(ctx context.Context, tenantID string) (*ConnectionStatus, error) {
	conn, err := s.Repo.GetLatest(ctx, tenantID)
	if errors.Is(err, ErrConnectionNotFound) {
		return statusOf(nil), nil
	}
	if err != nil {
		return nil, err
	}
	return statusOf(conn), nil
}

func (s *TokenStoreImpl) ActiveTenants(ctx context.Context) ([]string, error) {
	return s.Repo.ListActiveTenants(ctx)
}

func withTenant(ctx context.Context, tenantID string) context.Context {
	if existing, _ := ctx.Value(common_models.TenantIDKey).(string); existing == tenantID {
		return ctx
	}
	return context.WithValue(ctx, common_models.TenantIDKey, tenantID)
}
