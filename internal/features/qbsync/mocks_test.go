package qbsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	common_models "roof-crm/internal/common/models"
	"roof-crm/internal/features/audit"
	"roof-crm/internal/features/crm"
	"roof-crm/internal/features/qbconnection"
	"roof-crm/pkg/qbclient"
	"roof-crm/pkg/retry"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

type MockContactRepo struct {
	Contacts map[string]crm.Contact
	ListErr  error
}

func (m *MockContactRepo) GetContact(ctx context.Context, tenantID, id string) (*crm.Contact, error) {
	c, ok := m.Contacts[id]
	if !ok || c.TenantID != tenantID {
		return nil, crm.ErrNotFound
	}
	return &c, nil
}

func (m *MockContactRepo) ListContacts(ctx context.Context, tenantID string) ([]crm.Contact, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []crm.Contact
	for _, id := range sortedKeys(m.Contacts) {
		if c := m.Contacts[id]; c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out, nil
}

type MockProjectRepo struct {
	Projects map[string]crm.Project
}

func (m *MockProjectRepo) GetProject(ctx context.Context, tenantID, id string) (*crm.Project, error) {
	p, ok := m.Projects[id]
	if !ok || p.TenantID != tenantID {
		return nil, crm.ErrNotFound
	}
	return &p, nil
}

type MockMappingRepo struct {
	mu       sync.Mutex
	Mappings map[string]EntityMapping
	nextID   int
}

func mappingKey(tenantID, crmType, crmID string) string {
	return tenantID + "|" + crmType + "|" + crmID
}

func (m *MockMappingRepo) Get(ctx context.Context, tenantID, crmEntityType, crmEntityID string) (*EntityMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mp, ok := m.Mappings[mappingKey(tenantID, crmEntityType, crmEntityID)]
	if !ok {
		return nil, nil
	}
	return &mp, nil
}

func (m *MockMappingRepo) Upsert(ctx context.Context, mp *EntityMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Mappings == nil {
		m.Mappings = map[string]EntityMapping{}
	}
	key := mappingKey(mp.TenantID, mp.CRMEntityType, mp.CRMEntityID)
	if existing, ok := m.Mappings[key]; ok {
		mp.ID = existing.ID
	} else {
		m.nextID++
		mp.ID = fmt.Sprintf("map-%d", m.nextID)
	}
	m.Mappings[key] = *mp
	return nil
}

func (m *MockMappingRepo) List(ctx context.Context, tenantID, crmEntityType string, limit int) ([]EntityMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EntityMapping
	for _, mp := range m.Mappings {
		if mp.TenantID == tenantID && (crmEntityType == "" || mp.CRMEntityType == crmEntityType) {
			out = append(out, mp)
		}
	}
	return out, nil
}

func (m *MockMappingRepo) count(crmType string) int {
	n, _ := m.List(context.Background(), testTenant, crmType, 0)
	return len(n)
}

type MockLogRepo struct {
	mu      sync.Mutex
	Entries []SyncLogEntry
	// HonourCancel rejects writes on a cancelled context like ExecContext.
	HonourCancel bool
}

func (m *MockLogRepo) Create(ctx context.Context, e *SyncLogEntry) error {
	if m.HonourCancel && ctx.Err() != nil {
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = fmt.Sprintf("log-%d", len(m.Entries)+1)
	m.Entries = append(m.Entries, *e)
	return nil
}

func (m *MockLogRepo) List(ctx context.Context, tenantID string, f LogFilter) ([]SyncLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SyncLogEntry
	for i := len(m.Entries) - 1; i >= 0; i-- {
		e := m.Entries[i]
		if e.TenantID != tenantID {
			continue
		}
		if f.EntityType != "" && e.EntityType != f.EntityType {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *MockLogRepo) forEntity(entityType string) []SyncLogEntry {
	var out []SyncLogEntry
	for _, e := range m.Entries {
		if e.EntityType == entityType {
			out = append(out, e)
		}
	}
	return out
}

// MockClients hands out a client bound to the fake QuickBooks server.
type MockClients struct {
	Client      *qbclient.Client
	Err         error
	Default     *qbclient.Ref
	SetDefaults []qbclient.Ref
}

func (m *MockClients) GetClient(ctx context.Context, tenantID string) (*qbclient.Client, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Client, nil
}

func (m *MockClients) DefaultItem(ctx context.Context, tenantID string) (*qbclient.Ref, error) {
	return m.Default, nil
}

func (m *MockClients) SetDefaultItem(ctx context.Context, tenantID string, item qbclient.Ref) error {
	m.SetDefaults = append(m.SetDefaults, item)
	m.Default = &item
	return nil
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
	return nil, nil
}

// fakeQBO is an in-memory QuickBooks company.
type fakeQBO struct {
	mu          sync.Mutex
	customers   map[string]qbclient.Customer
	invoices    []qbclient.Invoice
	items       []qbclient.Item
	rejectNames map[string]bool
	creates     int
	updates     int
	nextID      int
}

func newFakeQBO() *fakeQBO {
	return &fakeQBO{
		customers:   map[string]qbclient.Customer{},
		rejectNames: map[string]bool{},
		nextID:      100,
	}
}

func (f *fakeQBO) addCustomer(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprint(f.nextID)
	f.customers[id] = qbclient.Customer{ID: id, SyncToken: "0", DisplayName: name}
	return id
}

func (f *fakeQBO) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v3/company/"+testRealm)
	switch {
	case r.Method == http.MethodGet && path == "/query":
		f.query(w, r.URL.Query().Get("query"))

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/customer/"):
		c, ok := f.customers[strings.TrimPrefix(path, "/customer/")]
		if !ok {
			writeFault(w, http.StatusBadRequest, "Object Not Found")
			return
		}
		writeJSON(w, map[string]interface{}{"Customer": c})

	case r.Method == http.MethodPost && path == "/customer":
		var c qbclient.Customer
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &c); err != nil {
			writeFault(w, http.StatusBadRequest, "bad body")
			return
		}
		if f.rejectNames[c.DisplayName] {
			writeFault(w, http.StatusBadRequest, "Invalid DisplayName")
			return
		}
		if c.ID != "" {
			existing, ok := f.customers[c.ID]
			if !ok || existing.SyncToken != c.SyncToken {
				writeFault(w, http.StatusBadRequest, "Stale Object Error")
				return
			}
			f.updates++
			c.Sparse = false
			n, _ := strconv.Atoi(existing.SyncToken)
			c.SyncToken = strconv.Itoa(n + 1)
			f.customers[c.ID] = c
			writeJSON(w, map[string]interface{}{"Customer": c})
			return
		}
		for _, existing := range f.customers {
			if existing.DisplayName == c.DisplayName {
				writeFault(w, http.StatusBadRequest, "Duplicate Name Exists Error")
				return
			}
		}
		f.creates++
		f.nextID++
		c.ID = fmt.Sprint(f.nextID)
		c.SyncToken = "0"
		f.customers[c.ID] = c
		writeJSON(w, map[string]interface{}{"Customer": c})

	case r.Method == http.MethodPost && path == "/invoice":
		var inv qbclient.Invoice
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &inv); err != nil {
			writeFault(w, http.StatusBadRequest, "bad body")
			return
		}
		f.nextID++
		inv.ID = fmt.Sprint(f.nextID)
		inv.SyncToken = "0"
		for _, l := range inv.Line {
			inv.TotalAmt += l.Amount
		}
		f.invoices = append(f.invoices, inv)
		writeJSON(w, map[string]interface{}{"Invoice": inv})

	default:
		writeFault(w, http.StatusNotFound, "unsupported "+r.Method+" "+path)
	}
}

func (f *fakeQBO) query(w http.ResponseWriter, q string) {
	resp := qbclient.QueryResponse{}
	switch {
	case strings.Contains(q, "FROM Customer"):
		const marker = "DisplayName = '"
		i := strings.Index(q, marker)
		j := strings.LastIndex(q, "'")
		if i >= 0 && j > i+len(marker)-1 {
			name := strings.ReplaceAll(q[i+len(marker):j], "''", "'")
			for _, c := range f.customers {
				if c.DisplayName == name {
					resp.Customer = append(resp.Customer, c)
				}
			}
		}
	case strings.Contains(q, "FROM Item"):
		for _, it := range f.items {
			if it.Active && it.Type == qbclient.ItemTypeService {
				resp.Item = append(resp.Item, it)
				break
			}
		}
	}
	writeJSON(w, map[string]interface{}{"QueryResponse": resp})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeFault(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"Fault": map[string]interface{}{
			"Error": []map[string]string{{"Message": msg, "Detail": msg, "code": "6240"}},
			"type":  "ValidationFault",
		},
	})
}

const (
	testTenant = "000000000000000000000001"
	testRealm  = "realm-1"
)

type testEnv struct {
	svc      *SyncServiceImpl
	qbo      *fakeQBO
	contacts *MockContactRepo
	projects *MockProjectRepo
	mappings *MockMappingRepo
	logs     *MockLogRepo
	clients  *MockClients
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	qbo := newFakeQBO()
	srv := httptest.NewServer(qbo)
	t.Cleanup(srv.Close)

	client := qbclient.New("access", testRealm,
		qbclient.WithBaseURL(srv.URL),
		qbclient.WithRetry(retry.Options{NoRetry: true}),
	)

	env := &testEnv{
		qbo:      qbo,
		contacts: &MockContactRepo{Contacts: map[string]crm.Contact{}},
		projects: &MockProjectRepo{Projects: map[string]crm.Project{}},
		mappings: &MockMappingRepo{},
		logs:     &MockLogRepo{},
		clients:  &MockClients{Client: client},
	}
	env.svc = &SyncServiceImpl{
		Contacts:      env.contacts,
		Projects:      env.projects,
		MappingRepo:   env.mappings,
		LogRepo:       env.logs,
		Clients:       env.clients,
		Logger:        zap.NewNop(),
		InvoiceResync: InvoiceResyncSkip,
	}
	return env
}

func (e *testEnv) addContact(c crm.Contact) {
	c.TenantID = testTenant
	e.contacts.Contacts[c.ID] = c
}

func (e *testEnv) addProject(p crm.Project) {
	p.TenantID = testTenant
	e.projects.Projects[p.ID] = p
}

func notConnected() error {
	return &qbconnection.NotConnectedError{TenantID: testTenant, Reason: "no active connection"}
}

var errBoom = errors.New("boom")

func sortedKeys(m map[string]crm.Contact) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
