package audit

import (
	"roof-crm/internal/config"
	"roof-crm/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type AuditApi struct {
	controller *AuditController
	config     *config.Config
}

func NewAuditApi(controller *AuditController, config *config.Config) *AuditApi {
	return &AuditApi{controller: controller, config: config}
}

// Setup exposes the audit trail to tenant admins.
func (h *AuditApi) Setup(app *fiber.App) {
	app.Get("/api/audit-logs",
		middleware.AuthMiddleware(h.config.SkipAuth),
		middleware.RequireRole(h.config.SkipAuth, "admin"),
		h.controller.ListLogs,
	)
}
