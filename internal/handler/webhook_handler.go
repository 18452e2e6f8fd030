package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Sujay0610/ReviewReap/internal/provider"
)

// StatusReconciler folds provider webhook events into message state.
type StatusReconciler interface {
	Apply(ctx context.Context, event provider.StatusEvent) error
}

type WebhookHandler struct {
	reconciler  StatusReconciler
	verifyToken string
	logger      *zap.Logger
}

func NewWebhookHandler(reconciler StatusReconciler, verifyToken string, logger *zap.Logger) (*WebhookHandler, error) {
	if reconciler == nil {
		return nil, fmt.Errorf("status reconciler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebhookHandler{
		reconciler:  reconciler,
		verifyToken: strings.TrimSpace(verifyToken),
		logger:      logger,
	}, nil
}

func RegisterWebhookRoutes(router fiber.Router, reconciler StatusReconciler, verifyToken string, logger *zap.Logger) error {
	h, err := NewWebhookHandler(reconciler, verifyToken, logger)
	if err != nil {
		return err
	}

	webhooks := router.Group("/webhooks")
	webhooks.Get("/whatsapp", h.VerifyWhatsApp)
	webhooks.Post("/whatsapp", h.ReceiveWhatsApp)
	webhooks.Post("/email", h.ReceiveEmail)

	return nil
}

// VerifyWhatsApp answers the Cloud API subscription handshake: echo the
// challenge when the verify token matches, 403 otherwise.
func (h *WebhookHandler) VerifyWhatsApp(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || h.verifyToken == "" || token != h.verifyToken {
		return fiber.NewError(fiber.StatusForbidden, "webhook verification failed")
	}

	return c.Status(fiber.StatusOK).SendString(challenge)
}

func (h *WebhookHandler) ReceiveWhatsApp(c *fiber.Ctx) error {
	events, err := provider.ParseWhatsAppWebhook(c.Body())
	if err != nil {
		return toHTTPError(err)
	}

	return h.applyAll(c, events)
}

func (h *WebhookHandler) ReceiveEmail(c *fiber.Ctx) error {
	events, err := provider.ParseEmailWebhook(c.Body())
	if err != nil {
		return toHTTPError(err)
	}

	return h.applyAll(c, events)
}

// applyAll feeds each event to the reconciler. A decodable payload is always
// acknowledged with 200 so the provider does not redeliver it; reconcile
// failures are logged and retried through the provider's next status change.
func (h *WebhookHandler) applyAll(c *fiber.Ctx, events []provider.StatusEvent) error {
	applied := 0
	for _, event := range events {
		if err := h.reconciler.Apply(c.Context(), event); err != nil {
			h.logger.Error("failed to reconcile webhook event",
				zap.String("provider", event.Provider),
				zap.String("providerMessageId", event.ProviderMessageID),
				zap.String("kind", string(event.Kind)),
				zap.Error(err),
			)
			continue
		}
		applied++
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"received": len(events),
		"applied":  applied,
	})
}
