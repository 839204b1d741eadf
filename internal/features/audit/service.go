package audit

import (
	"context"
	"strings"
	"time"

	common_models "roof-crm/internal/common/models"
	"roof-crm/pkg/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Filter narrows a tenant's audit trail. Empty fields match everything.
type Filter struct {
	Module   string
	Action   common_models.AuditAction
	RecordID string
	Page     int64
	Limit    int64
}

func (f Filter) normalized() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	f.Action = common_models.AuditAction(strings.ToUpper(string(f.Action)))
	return f
}

func (f Filter) offset() int64 { return (f.Page - 1) * f.Limit }

type AuditService interface {
	LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error
	ListLogs(ctx context.Context, tenantID string, filter Filter) ([]common_models.AuditLog, error)
}

type AuditServiceImpl struct {
	Repo AuditRepository
	Now  func() time.Time
}

func NewAuditService(repo AuditRepository) AuditService {
	return &AuditServiceImpl{Repo: repo, Now: time.Now}
}

// LogChange records an action against the tenant on ctx. Calls without user
// claims, such as scheduled runs, are attributed to "system".
func (s *AuditServiceImpl) LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error {
	actorID := "system"
	if claims, ok := ctx.Value(utils.UserClaimsKey).(*utils.UserClaims); ok && claims.UserID != "" {
		actorID = claims.UserID
	}
	tenantID, _ := ctx.Value(common_models.TenantIDKey).(string)

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return s.Repo.Create(ctx, common_models.AuditLog{
		ID:        primitive.NewObjectID(),
		TenantID:  tenantID,
		Action:    action,
		Module:    module,
		RecordID:  recordID,
		ActorID:   actorID,
		Changes:   changes,
		Timestamp: now().UTC(),
	})
}

func (s *AuditServiceImpl) ListLogs(ctx context.Context, tenantID string, filter Filter) ([]common_models.AuditLog, error) {
	return s.Repo.List(ctx, tenantID, filter.normalized())
}
