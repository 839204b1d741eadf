package qbsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	common_models "roof-crm/internal/common/models"
	"roof-crm/internal/config"
	"roof-crm/internal/features/audit"
	"roof-crm/internal/features/qbconnection"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type TenantSource interface {
	ActiveTenants(ctx context.Context) ([]string, error)
}

type SyncScheduler interface {
	InitializeScheduler(ctx context.Context) error
	StopScheduler() error
	RunBulkSync(ctx context.Context) error
}

// SchedulerImpl runs a nightly bulk contact sync for every tenant with an
// active connection.
type SchedulerImpl struct {
	Sync         SyncService
	Tenants      TenantSource
	AuditService audit.AuditService
	Logger       *zap.Logger
	Schedule     string
	JobTimeout   time.Duration

	mu        sync.Mutex
	scheduler *cron.Cron
	running   bool
}

func NewSyncScheduler(
	syncService SyncService,
	tokenStore qbconnection.TokenStore,
	auditService audit.AuditService,
	logger *zap.Logger,
	cfg *config.Config,
) SyncScheduler {
	return &SchedulerImpl{
		Sync:         syncService,
		Tenants:      tokenStore,
		AuditService: auditService,
		Logger:       logger,
		Schedule:     cfg.QuickBooks.BulkSyncSchedule,
		JobTimeout:   time.Hour,
	}
}

func (s *SchedulerImpl) InitializeScheduler(ctx context.Context) error {
	if s.Schedule == "" {
		s.Logger.Info("QuickBooks bulk sync schedule disabled")
		return nil
	}
	if _, err := cron.ParseStandard(s.Schedule); err != nil {
		return fmt.Errorf("invalid bulk sync schedule %q: %w", s.Schedule, err)
	}

	s.scheduler = cron.New()
	if _, err := s.scheduler.AddFunc(s.Schedule, s.runJob); err != nil {
		return fmt.Errorf("failed to add bulk sync job to scheduler: %w", err)
	}
	s.scheduler.Start()
	s.Logger.Info("QuickBooks bulk sync scheduled", zap.String("schedule", s.Schedule))
	return nil
}

func (s *SchedulerImpl) StopScheduler() error {
	if s.scheduler != nil {
		ctx := s.scheduler.Stop()
		<-ctx.Done()
	}
	return nil
}

func (s *SchedulerImpl) runJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.JobTimeout)
	defer cancel()
	if err := s.RunBulkSync(ctx); err != nil {
		s.Logger.Error("Scheduled bulk sync failed", zap.Error(err))
	}
}

// RunBulkSync syncs contacts for each active tenant in turn. Overlapping runs
// are dropped.
func (s *SchedulerImpl) RunBulkSync(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.Logger.Warn("Bulk sync already running, skipping")
		return nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	tenants, err := s.Tenants.ActiveTenants(ctx)
	if err != nil {
		return fmt.Errorf("failed to load connected tenants: %w", err)
	}

	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		tctx := context.WithValue(ctx, common_models.TenantIDKey, tenantID)
		start := time.Now()
		res, err := s.Sync.BulkSyncContacts(tctx, tenantID)
		if err != nil {
			s.Logger.Error("Bulk sync failed for tenant", zap.String("tenant_id", tenantID), zap.Error(err))
			continue
		}

		s.Logger.Info("Bulk sync completed for tenant",
			zap.String("tenant_id", tenantID),
			zap.Int("synced", res.Synced),
			zap.Int("failed", res.Failed),
			zap.Duration("elapsed", time.Since(start)),
		)
		if s.AuditService != nil {
			_ = s.AuditService.LogChange(tctx, common_models.AuditActionCron, "quickbooks_sync", tenantID, map[string]common_models.Change{
				"synced": {New: res.Synced},
				"failed": {New: res.Failed},
			})
		}
	}
	return nil
}
