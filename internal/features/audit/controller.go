package audit

import (
	common_models "roof-crm/internal/common/models"
	"roof-crm/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type AuditController struct {
	Service AuditService
}

func NewAuditController(service AuditService) *AuditController {
	return &AuditController{Service: service}
}

// ListLogs returns the caller's tenant audit trail, newest first.
func (ctrl *AuditController) ListLogs(c *fiber.Ctx) error {
	filter := Filter{
		Module:   c.Query("module"),
		Action:   common_models.AuditAction(c.Query("action")),
		RecordID: c.Query("record_id"),
		Page:     int64(c.QueryInt("page", 1)),
		Limit:    int64(c.QueryInt("limit", defaultPageSize)),
	}.normalized()

	logs, err := ctrl.Service.ListLogs(c.UserContext(), middleware.TenantFromContext(c.UserContext()), filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"data":  logs,
		"page":  filter.Page,
		"limit": filter.Limit,
	})
}
