package qbconnection

import (
	"roof-crm/internal/config"
	"roof-crm/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ConnectionApi struct {
	controller *ConnectionController
	config     *config.Config
}

func NewConnectionApi(controller *ConnectionController, config *config.Config) *ConnectionApi {
	return &ConnectionApi{
		controller: controller,
		config:     config,
	}
}

// Setup registers auth per route because the callback under the same prefix is public.
func (h *ConnectionApi) Setup(app *fiber.App) {
	qb := app.Group("/api/quickbooks")
	auth := middleware.AuthMiddleware(h.config.SkipAuth)
	admin := middleware.RequireRole(h.config.SkipAuth, "admin")

	qb.Get("/callback", h.controller.Callback)
	qb.Get("/connect", auth, admin, h.controller.Connect)
	qb.Get("/status", auth, h.controller.Status)
	qb.Post("/disconnect", auth, admin, h.controller.Disconnect)
	qb.Get("/default-item", auth, h.controller.GetDefaultItem)
	qb.Put("/default-item", auth, admin, h.controller.SetDefaultItem)
}
