package qbsync

import (
	"bytes"
	"fmt"
	"time"

	"roof-crm/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type SyncController struct {
	Service SyncService
}

func NewSyncController(service SyncService) *SyncController {
	return &SyncController{Service: service}
}

// resultStatus maps a sync result onto a response code. Business failures
// other than a missing connection still answer 200 with the result body.
func resultStatus(res Result) int {
	switch res.ErrorCode {
	case CodeNotConnected:
		return fiber.StatusConflict
	case CodeContactNotFound, CodeProjectNotFound:
		return fiber.StatusNotFound
	}
	return fiber.StatusOK
}

func (ctrl *SyncController) SyncContact(c *fiber.Ctx) error {
	tenantID := middleware.TenantFromContext(c.UserContext())
	res := ctrl.Service.SyncContactToCustomer(c.UserContext(), tenantID, c.Params("id"))
	return c.Status(resultStatus(res)).JSON(res)
}

func (ctrl *SyncController) SyncProject(c *fiber.Ctx) error {
	tenantID := middleware.TenantFromContext(c.UserContext())
	res := ctrl.Service.SyncProjectToInvoice(c.UserContext(), tenantID, c.Params("id"))
	return c.Status(resultStatus(res)).JSON(res)
}

func (ctrl *SyncController) BulkSyncContacts(c *fiber.Ctx) error {
	tenantID := middleware.TenantFromContext(c.UserContext())
	res, err := ctrl.Service.BulkSyncContacts(c.UserContext(), tenantID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(res)
}

func logFilterFromQuery(c *fiber.Ctx) LogFilter {
	return LogFilter{
		EntityType: c.Query("entity_type"),
		EntityID:   c.Query("entity_id"),
		Status:     LogStatus(c.Query("status")),
		Limit:      c.QueryInt("limit", 50),
	}
}

func (ctrl *SyncController) ListLogs(c *fiber.Ctx) error {
	tenantID := middleware.TenantFromContext(c.UserContext())
	logs, err := ctrl.Service.ListLogs(c.UserContext(), tenantID, logFilterFromQuery(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"data": logs})
}

func (ctrl *SyncController) ExportLogs(c *fiber.Ctx) error {
	tenantID := middleware.TenantFromContext(c.UserContext())
	filter := logFilterFromQuery(c)
	filter.Limit = c.QueryInt("limit", 1000)

	var buf bytes.Buffer
	if err := ctrl.Service.ExportLogs(c.UserContext(), tenantID, filter, &buf); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", ExportFilename(tenantID, time.Now())))
	return c.Send(buf.Bytes())
}

func (ctrl *SyncController) ListMappings(c *fiber.Ctx) error {
	tenantID := middleware.TenantFromContext(c.UserContext())
	mappings, err := ctrl.Service.ListMappings(c.UserContext(), tenantID, c.Query("type"), c.QueryInt("limit", 50))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"data": mappings})
}
