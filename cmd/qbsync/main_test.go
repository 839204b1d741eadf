package main

import (
	"context"
	"io"
	"testing"

	"roof-crm/internal/features/qbsync"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"all", []string{"-all"}, false},
		{"single contact", []string{"-tenant", "t1", "-contact", "c1"}, false},
		{"bulk contacts", []string{"-tenant", "t1", "-contacts"}, false},
		{"missing tenant", []string{"-contact", "c1"}, true},
		{"no action", []string{"-tenant", "t1"}, true},
		{"two actions", []string{"-tenant", "t1", "-contact", "c1", "-project", "p1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseOptions(tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseOptions(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
		})
	}
}

type stubSync struct {
	contact, project string
	bulk             int
}

func (s *stubSync) SyncContactToCustomer(ctx context.Context, tenantID, contactID string) qbsync.Result {
	s.contact = contactID
	return qbsync.Result{Success: true}
}

func (s *stubSync) SyncProjectToInvoice(ctx context.Context, tenantID, projectID string) qbsync.Result {
	s.project = projectID
	return qbsync.Result{Success: true}
}

func (s *stubSync) BulkSyncContacts(ctx context.Context, tenantID string) (*qbsync.BulkResult, error) {
	s.bulk++
	return &qbsync.BulkResult{}, nil
}

func (s *stubSync) ListLogs(ctx context.Context, tenantID string, filter qbsync.LogFilter) ([]qbsync.SyncLogEntry, error) {
	return nil, nil
}

func (s *stubSync) ListMappings(ctx context.Context, tenantID, crmEntityType string, limit int) ([]qbsync.EntityMapping, error) {
	return nil, nil
}

func (s *stubSync) ExportLogs(ctx context.Context, tenantID string, filter qbsync.LogFilter, w io.Writer) error {
	return nil
}

type stubScheduler struct{ runs int }

func (s *stubScheduler) InitializeScheduler(ctx context.Context) error { return nil }
func (s *stubScheduler) StopScheduler() error                          { return nil }
func (s *stubScheduler) RunBulkSync(ctx context.Context) error {
	s.runs++
	return nil
}

func TestRunDispatch(t *testing.T) {
	svc := &stubSync{}
	sched := &stubScheduler{}

	if _, err := run(context.Background(), options{TenantID: "t1", ProjectID: "p1"}, svc, sched); err != nil {
		t.Fatal(err)
	}
	if _, err := run(context.Background(), options{TenantID: "t1", Contacts: true}, svc, sched); err != nil {
		t.Fatal(err)
	}
	if _, err := run(context.Background(), options{All: true}, svc, sched); err != nil {
		t.Fatal(err)
	}
	if svc.project != "p1" || svc.bulk != 1 || sched.runs != 1 {
		t.Errorf("dispatch = %+v, scheduler runs = %d", svc, sched.runs)
	}
}
