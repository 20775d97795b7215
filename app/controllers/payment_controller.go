package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gastrodesk/gastrodesk/internal/pkg/billing"
)

// PaymentController serves manual payment entry against invoices.
type PaymentController struct {
	service *billing.Service
}

func NewPaymentController(service *billing.Service) *PaymentController {
	return &PaymentController{service: service}
}

type createPaymentRequest struct {
	Amount    int64      `json:"amount" validate:"required"`
	Method    string     `json:"method" validate:"required,oneof=cash bank_transfer card"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	Reference string     `json:"reference" validate:"max=191"`
	Notes     string     `json:"notes" validate:"max=2000"`
}

// HandleCreatePayment records a manual payment. A reconciliation failure
// after the payment insert is reported as a warning, not an error: the
// payment stands and the invoice is flagged for manual review.
func (ctrl *PaymentController) HandleCreatePayment(c *fiber.Ctx) error {
	invoiceID, ok := parseUintParam(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid id"})
	}

	var req createPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Malformed request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	payment, err := ctrl.service.RecordPayment(c.Context(), billing.PaymentInput{
		InvoiceID: invoiceID,
		Amount:    req.Amount,
		Method:    req.Method,
		PaidAt:    req.PaidAt,
		Reference: req.Reference,
		Notes:     req.Notes,
		CreatedBy: c.Get("X-Operator", ""),
	})
	if err != nil {
		var warn *billing.ReconcileWarning
		switch {
		case errors.As(err, &warn):
			return c.Status(fiber.StatusCreated).JSON(fiber.Map{
				"payment": payment,
				"warning": "Zahlung gespeichert, Abgleich fehlgeschlagen - Rechnung bitte manuell prüfen",
			})
		case errors.Is(err, billing.ErrInvoiceNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		case errors.Is(err, billing.ErrInvoiceLocked):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":   "invoice_locked",
				"message": "Der Abrechnungsmonat ist abgeschlossen, Zahlungen können nicht mehr erfasst werden",
			})
		case errors.Is(err, billing.ErrInvalidAmount):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error":   "invalid_amount",
				"message": "Der Betrag muss eine positive Ganzzahl in Cent sein",
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
		}
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"payment": payment})
}
