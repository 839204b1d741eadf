package qbsync

import (
	"roof-crm/internal/config"
	"roof-crm/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type SyncApi struct {
	controller *SyncController
	config     *config.Config
}

func NewSyncApi(controller *SyncController, config *config.Config) *SyncApi {
	return &SyncApi{
		controller: controller,
		config:     config,
	}
}

func (h *SyncApi) Setup(app *fiber.App) {
	auth := middleware.AuthMiddleware(h.config.SkipAuth)
	admin := middleware.RequireRole(h.config.SkipAuth, "admin")

	sync := app.Group("/api/quickbooks/sync", auth)
	sync.Post("/contacts", admin, h.controller.BulkSyncContacts)
	sync.Post("/contacts/:id", h.controller.SyncContact)
	sync.Post("/projects/:id", h.controller.SyncProject)
	sync.Get("/logs", h.controller.ListLogs)
	sync.Get("/logs/export", h.controller.ExportLogs)

	app.Get("/api/quickbooks/mappings", auth, h.controller.ListMappings)
}
