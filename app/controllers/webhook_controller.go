package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gastrodesk/gastrodesk/internal/pkg/billing"
)

// SignatureHeader carries the gateway's HMAC over the raw request body.
const SignatureHeader = "X-Gateway-Signature"

// WebhookController receives signed gateway event deliveries.
type WebhookController struct {
	ingestor *billing.Ingestor
}

func NewWebhookController(ingestor *billing.Ingestor) *WebhookController {
	return &WebhookController{ingestor: ingestor}
}

// HandleGatewayWebhook verifies, audits and enqueues one delivery. Success
// is only reported after both the audit row and the queue entry are
// committed; a persistence failure answers 5xx so the gateway's own
// redelivery takes another shot.
func (ctrl *WebhookController) HandleGatewayWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get(SignatureHeader))

	result, err := ctrl.ingestor.Ingest(c.Context(), rawBody, signature)
	if err != nil {
		if errors.Is(err, billing.ErrSignatureInvalid) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if result.Duplicate {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "event_id": result.GatewayEventID})
}
