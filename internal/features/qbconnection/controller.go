package qbconnection

import (
	"errors"

	"roof-crm/internal/middleware"
	"roof-crm/pkg/qbclient"
	"roof-crm/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

type ConnectionController struct {
	Service TokenStore
}

func NewConnectionController(service TokenStore) *ConnectionController {
	return &ConnectionController{Service: service}
}

type CallbackQuery struct {
	Code    string `query:"code" validate:"required"`
	State   string `query:"state" validate:"required"`
	RealmID string `query:"realmId" validate:"required"`
}

type DefaultItemRequest struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

// Connect returns the provider authorization URL for the caller's tenant.
func (ctrl *ConnectionController) Connect(c *fiber.Ctx) error {
	tenantID := middleware.TenantFromContext(c.UserContext())

	authURL, err := ctrl.Service.AuthorizationURL(c.UserContext(), tenantID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"url": authURL})
}

// Callback is the public OAuth redirect target. The tenant comes from state.
func (ctrl *ConnectionController) Callback(c *fiber.Ctx) error {
	if providerErr := c.Query("error"); providerErr != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Authorization denied: " + providerErr,
		})
	}

	var q CallbackQuery
	if err := c.QueryParser(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid callback query",
		})
	}
	if err := utils.ValidateStruct(q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	status, err := ctrl.Service.HandleCallback(c.UserContext(), q.Code, q.State, q.RealmID)
	if errors.Is(err, ErrInvalidState) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(status)
}

func (ctrl *ConnectionController) Status(c *fiber.Ctx) error {
	status, err := ctrl.Service.Status(c.UserContext(), middleware.TenantFromContext(c.UserContext()))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(status)
}

func (ctrl *ConnectionController) Disconnect(c *fiber.Ctx) error {
	err := ctrl.Service.Disconnect(c.UserContext(), middleware.TenantFromContext(c.UserContext()))
	if errors.Is(err, ErrNotConnected) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"message": "Disconnected"})
}

func (ctrl *ConnectionController) GetDefaultItem(c *fiber.Ctx) error {
	item, err := ctrl.Service.DefaultItem(c.UserContext(), middleware.TenantFromContext(c.UserContext()))
	if errors.Is(err, ErrNotConnected) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if item == nil {
		return c.JSON(fiber.Map{"item": nil})
	}
	return c.JSON(fiber.Map{"item": fiber.Map{"id": item.Value, "name": item.Name}})
}

func (ctrl *ConnectionController) SetDefaultItem(c *fiber.Ctx) error {
	var req DefaultItemRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	err := ctrl.Service.SetDefaultItem(c.UserContext(), middleware.TenantFromContext(c.UserContext()), qbclient.Ref{Value: req.ID, Name: req.Name})
	if errors.Is(err, ErrNotConnected) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"message": "Default item updated"})
}
