package audit

import (
	"context"
	"testing"
	"time"

	common_models "roof-crm/internal/common/models"
	"roof-crm/pkg/utils"
)

type MockAuditRepo struct {
	Logs       []common_models.AuditLog
	LastTenant string
	LastFilter Filter
}

func (m *MockAuditRepo) Create(ctx context.Context, log common_models.AuditLog) error {
	if log.TenantID == "" {
		return ErrMissingTenant
	}
	m.Logs = append(m.Logs, log)
	return nil
}

func (m *MockAuditRepo) List(ctx context.Context, tenantID string, filter Filter) ([]common_models.AuditLog, error) {
	m.LastTenant, m.LastFilter = tenantID, filter
	return m.Logs, nil
}

func TestLogChange(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &MockAuditRepo{}
	svc := &AuditServiceImpl{Repo: repo, Now: func() time.Time { return fixed }}

	tenantCtx := context.WithValue(context.Background(), common_models.TenantIDKey, "t1")
	if err := svc.LogChange(tenantCtx, common_models.AuditActionCron, "quickbooks_sync", "t1", nil); err != nil {
		t.Fatalf("system entry: %v", err)
	}

	userCtx := context.WithValue(tenantCtx, utils.UserClaimsKey, &utils.UserClaims{UserID: "u-9"})
	err := svc.LogChange(userCtx, common_models.AuditActionConnect, "quickbooks", "realm-1", map[string]common_models.Change{
		"status": {Old: "disconnected", New: "active"},
	})
	if err != nil {
		t.Fatalf("user entry: %v", err)
	}

	if len(repo.Logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(repo.Logs))
	}
	if repo.Logs[0].ActorID != "system" || repo.Logs[0].TenantID != "t1" {
		t.Errorf("unexpected system entry: %+v", repo.Logs[0])
	}
	if repo.Logs[1].ActorID != "u-9" || repo.Logs[1].Action != common_models.AuditActionConnect {
		t.Errorf("unexpected user entry: %+v", repo.Logs[1])
	}
	if !repo.Logs[1].Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %v, want %v", repo.Logs[1].Timestamp, fixed)
	}
}

func TestLogChangeWithoutTenant(t *testing.T) {
	svc := NewAuditService(&MockAuditRepo{})
	if err := svc.LogChange(context.Background(), common_models.AuditActionSync, "quickbooks", "c1", nil); err != ErrMissingTenant {
		t.Errorf("expected ErrMissingTenant, got %v", err)
	}
}

func TestListLogsNormalizesFilter(t *testing.T) {
	tests := []struct {
		name       string
		in         Filter
		wantLimit  int64
		wantOffset int64
		wantAction common_models.AuditAction
	}{
		{"defaults", Filter{}, defaultPageSize, 0, ""},
		{"third page", Filter{Page: 3, Limit: 20}, 20, 40, ""},
		{"capped", Filter{Limit: 5000}, maxPageSize, 0, ""},
		{"action case", Filter{Action: "connect"}, defaultPageSize, 0, common_models.AuditActionConnect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockAuditRepo{}
			svc := NewAuditService(repo)

			if _, err := svc.ListLogs(context.Background(), "t1", tt.in); err != nil {
				t.Fatal(err)
			}
			got := repo.LastFilter
			if repo.LastTenant != "t1" {
				t.Errorf("tenant = %q", repo.LastTenant)
			}
			if got.Limit != tt.wantLimit || got.offset() != tt.wantOffset || got.Action != tt.wantAction {
				t.Errorf("filter = %+v (offset %d)", got, got.offset())
			}
		})
	}
}
