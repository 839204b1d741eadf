package qbconnection

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	common_models "roof-crm/internal/common/models"
	"roof-crm/internal/features/audit"
	"roof-crm/pkg/retry"

	"go.uber.org/zap"
)

type MockConnectionRepo struct {
	mu           sync.Mutex
	Connections  map[string]*Connection
	UpdateCalls  int
	GetActiveErr error
	UpdateErr    error
	// HonourCancel makes writes fail on a cancelled context like a SQL driver.
	HonourCancel bool
}

func NewMockConnectionRepo(conns ...*Connection) *MockConnectionRepo {
	m := &MockConnectionRepo{Connections: map[string]*Connection{}}
	for _, c := range conns {
		m.Connections[c.ID] = c
	}
	return m
}

func (m *MockConnectionRepo) GetActive(ctx context.Context, tenantID string) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetActiveErr != nil {
		return nil, m.GetActiveErr
	}
	for _, c := range m.Connections {
		if c.TenantID == tenantID && c.IsActive {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrConnectionNotFound
}

func (m *MockConnectionRepo) GetLatest(ctx context.Context, tenantID string) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *Connection
	for _, c := range m.Connections {
		if c.TenantID != tenantID {
			continue
		}
		switch {
		case latest == nil, c.IsActive:
			latest = c
		case !latest.IsActive && c.UpdatedAt.After(latest.UpdatedAt):
			latest = c
		}
	}
	if latest == nil {
		return nil, ErrConnectionNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *MockConnectionRepo) Activate(ctx context.Context, conn *Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.Connections {
		if c.TenantID == conn.TenantID && c.IsActive {
			c.IsActive = false
			c.Status = StatusDisconnected
		}
	}
	conn.IsActive = true
	conn.Status = StatusActive
	cp := *conn
	m.Connections[conn.ID] = &cp
	return nil
}

func (m *MockConnectionRepo) UpdateTokens(ctx context.Context, id string, u TokenUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	c := m.Connections[id]
	c.AccessToken = u.AccessToken
	c.RefreshToken = u.RefreshToken
	c.TokenExpiresAt = u.TokenExpiresAt
	c.RefreshTokenExpiresAt = u.RefreshTokenExpiresAt
	refreshed := u.RefreshedAt
	c.LastRefreshedAt = &refreshed
	c.SyncError = ""
	return nil
}

func (m *MockConnectionRepo) Deactivate(ctx context.Context, id string, status Status, syncError string) error {
	if m.HonourCancel && ctx.Err() != nil {
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.Connections[id]
	c.IsActive = false
	c.Status = status
	c.SyncError = syncError
	return nil
}

func (m *MockConnectionRepo) SetDefaultItem(ctx context.Context, id, itemID, itemName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Connections[id].DefaultItemID = itemID
	m.Connections[id].DefaultItemName = itemName
	return nil
}

func (m *MockConnectionRepo) ListActiveTenants(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.Connections {
		if c.IsActive {
			out = append(out, c.TenantID)
		}
	}
	return out, nil
}

func (m *MockConnectionRepo) Get(id string) Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.Connections[id]
}

// MockVault "encrypts" by prefixing enc:. Ciphertext without the prefix fails.
type MockVault struct {
	EncryptErr error
}

func (v *MockVault) Encrypt(ctx context.Context, plaintext string) (string, error) {
	if v.EncryptErr != nil {
		return "", v.EncryptErr
	}
	return "enc:" + plaintext, nil
}

func (v *MockVault) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, "enc:") {
		return "", ErrVault
	}
	return strings.TrimPrefix(ciphertext, "enc:"), nil
}

type MockOAuth struct {
	mu           sync.Mutex
	RefreshCalls int
	RevokeCalls  []string
	RefreshErr   error
	RefreshDelay time.Duration
	Tokens       TokenSet
}

func (o *MockOAuth) AuthorizationURL(state string) string {
	return "https://auth.example/authorize?state=" + state
}

func (o *MockOAuth) Exchange(ctx context.Context, code string) (*TokenSet, error) {
	if code == "bad" {
		return nil, &OAuthError{Status: 400, Body: "invalid_grant"}
	}
	t := o.Tokens
	return &t, nil
}

func (o *MockOAuth) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	o.mu.Lock()
	o.RefreshCalls++
	o.mu.Unlock()
	if o.RefreshDelay > 0 {
		time.Sleep(o.RefreshDelay)
	}
	if o.RefreshErr != nil {
		return nil, o.RefreshErr
	}
	t := o.Tokens
	return &t, nil
}

func (o *MockOAuth) Revoke(ctx context.Context, token string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.RevokeCalls = append(o.RevokeCalls, token)
	return nil
}

func (o *MockOAuth) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.RefreshCalls
}

type MockAuditService struct {
	mu      sync.Mutex
	Actions []common_models.AuditAction
}

func (m *MockAuditService) LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Actions = append(m.Actions, action)
	return nil
}

func (m *MockAuditService) ListLogs(ctx context.Context, tenantID string, filter audit.Filter) ([]common_models.AuditLog, error) {
	return nil, errors.New("not implemented")
}

// newCompanyServer answers companyinfo and records the bearer token it saw.
func newCompanyServer(seen *[]string, mu *sync.Mutex) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		*seen = append(*seen, r.Header.Get("Authorization"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"CompanyInfo":{"Id":"1","CompanyName":"Acme Roofing"}}`))
	}))
}

func newTestStore(repo ConnectionRepository, oauth OAuthClient, baseURL string, now time.Time) (*TokenStoreImpl, *MockAuditService) {
	auditSvc := &MockAuditService{}
	return &TokenStoreImpl{
		Repo:   repo,
		Vault:  &MockVault{},
		OAuth:  oauth,
		Locker: NewLocalLocker(),
		States: NewMemoryStateStore(StateTTL),
		Factory: &ClientFactory{
			BaseURL: baseURL,
			Retry:   retry.Options{NoRetry: true},
			HTTP:    http.DefaultClient,
		},
		AuditService: auditSvc,
		Logger:       zap.NewNop(),
		Now:          func() time.Time { return now },
	}, auditSvc
}
