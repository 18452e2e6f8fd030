package handler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/Sujay0610/ReviewReap/internal/domain"
	"github.com/Sujay0610/ReviewReap/internal/service"
)

// DispatcherControl exposes the dispatch loop lifecycle to operators.
type DispatcherControl interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status(ctx context.Context) (service.DispatcherStatus, error)
}

// WhatsAppConfigurator rotates WhatsApp Cloud API credentials at runtime.
type WhatsAppConfigurator interface {
	Configure(accessToken, phoneNumberID string) error
	Configured() bool
}

// EmailConfigurator rotates the email provider API key at runtime.
type EmailConfigurator interface {
	Configure(apiKey, fromAddress string) error
	Configured() bool
}

type DispatchHandler struct {
	dispatcher DispatcherControl
	whatsapp   WhatsAppConfigurator
	email      EmailConfigurator
}

func NewDispatchHandler(dispatcher DispatcherControl, whatsapp WhatsAppConfigurator, email EmailConfigurator) (*DispatchHandler, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher control is required")
	}
	if whatsapp == nil {
		return nil, fmt.Errorf("whatsapp configurator is required")
	}
	if email == nil {
		return nil, fmt.Errorf("email configurator is required")
	}

	return &DispatchHandler{
		dispatcher: dispatcher,
		whatsapp:   whatsapp,
		email:      email,
	}, nil
}

// RegisterDispatchRoutes mounts the operational endpoints. They are not org
// scoped: the dispatch loop and provider credentials are per deployment.
func RegisterDispatchRoutes(router fiber.Router, dispatcher DispatcherControl, whatsapp WhatsAppConfigurator, email EmailConfigurator) error {
	h, err := NewDispatchHandler(dispatcher, whatsapp, email)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/dispatcher/status", h.GetDispatcherStatus)
	v1.Post("/dispatcher/start", h.StartDispatcher)
	v1.Post("/dispatcher/stop", h.StopDispatcher)
	v1.Post("/providers/whatsapp/configure", h.ConfigureWhatsApp)
	v1.Post("/providers/email/configure", h.ConfigureEmail)

	return nil
}

type dispatcherStatusResponse struct {
	Running             bool `json:"running"`
	RateLimiterInWindow int  `json:"rateLimiterInWindow"`
	RateLimiterMax      int  `json:"rateLimiterMax"`
}

type configureWhatsAppRequest struct {
	AccessToken   string `json:"accessToken"`
	PhoneNumberID string `json:"phoneNumberId"`
}

type configureEmailRequest struct {
	APIKey      string `json:"apiKey"`
	FromAddress string `json:"fromAddress"`
}

func (h *DispatchHandler) GetDispatcherStatus(c *fiber.Ctx) error {
	status, err := h.dispatcher.Status(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(dispatcherStatusResponse{
		Running:             status.Running,
		RateLimiterInWindow: status.RateLimiterInWindow,
		RateLimiterMax:      status.RateLimiterMax,
	})
}

func (h *DispatchHandler) StartDispatcher(c *fiber.Ctx) error {
	if err := h.dispatcher.Start(c.Context()); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"running": true})
}

func (h *DispatchHandler) StopDispatcher(c *fiber.Ctx) error {
	if err := h.dispatcher.Stop(c.Context()); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"running": false})
}

func (h *DispatchHandler) ConfigureWhatsApp(c *fiber.Ctx) error {
	var req configureWhatsAppRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.whatsapp.Configure(req.AccessToken, req.PhoneNumberID); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"channel":    domain.ChannelWhatsApp.String(),
		"configured": h.whatsapp.Configured(),
	})
}

func (h *DispatchHandler) ConfigureEmail(c *fiber.Ctx) error {
	var req configureEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.email.Configure(req.APIKey, req.FromAddress); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"channel":    domain.ChannelEmail.String(),
		"configured": h.email.Configured(),
	})
}
