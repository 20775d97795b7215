package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/gastrodesk/gastrodesk/internal/pkg/billing"
)

// AdminBillingController serves the schedule-invoked and administrative
// billing operations. Authentication (shared-secret header) is attached in
// the router.
type AdminBillingController struct {
	service *billing.Service
	worker  *billing.Worker
	gateway billing.Gateway
}

func NewAdminBillingController(service *billing.Service, worker *billing.Worker, gateway billing.Gateway) *AdminBillingController {
	return &AdminBillingController{service: service, worker: worker, gateway: gateway}
}

// HandleRetryRun executes one retry-worker batch and returns the
// per-attempt outcome report.
func (ctrl *AdminBillingController) HandleRetryRun(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	outcomes, err := ctrl.worker.Run(c.Context(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "retry_run_failed", "message": err.Error()})
	}
	if outcomes == nil {
		outcomes = []billing.AttemptOutcome{}
	}
	return c.JSON(fiber.Map{"processed": len(outcomes), "outcomes": outcomes})
}

type closeMonthRequest struct {
	Period string `json:"period" validate:"required,len=7"`
}

// HandleCloseMonth freezes a billing period. Idempotent; a repeated close
// reports zero newly locked invoices.
func (ctrl *AdminBillingController) HandleCloseMonth(c *fiber.Ctx) error {
	var req closeMonthRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Malformed request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	locked, err := ctrl.service.CloseMonth(c.Context(), req.Period)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidPeriod) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_period", "message": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "close_month_failed"})
	}
	return c.JSON(fiber.Map{"period": req.Period, "locked": locked})
}

type kickoffRequest struct {
	Period string `json:"period" validate:"required,len=7"`
}

// HandleAutoBillingKickoff prepares gateway invoices and initial charge
// attempts for every auto-mode subscription in the period.
func (ctrl *AdminBillingController) HandleAutoBillingKickoff(c *fiber.Ctx) error {
	var req kickoffRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Malformed request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	outcomes, err := ctrl.service.KickoffAutoBilling(c.Context(), ctrl.gateway, req.Period)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidPeriod) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_period", "message": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "kickoff_failed"})
	}
	return c.JSON(fiber.Map{"period": req.Period, "outcomes": outcomes})
}

type paymentModeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=manual auto"`
}

// HandleSetPaymentMode toggles a merchant between manual and automatic
// billing.
func (ctrl *AdminBillingController) HandleSetPaymentMode(c *fiber.Ctx) error {
	merchantID, ok := parseUintParam(c, "merchantID")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid merchantID"})
	}
	var req paymentModeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Malformed request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	sub, err := ctrl.service.SetPaymentMode(c.Context(), merchantID, req.Mode)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "payment_mode_update_failed"})
	}
	return c.JSON(sub)
}

// HandleBulkSetPaymentMode switches every subscription at once.
func (ctrl *AdminBillingController) HandleBulkSetPaymentMode(c *fiber.Ctx) error {
	var req paymentModeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Malformed request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	changed, err := ctrl.service.BulkSetPaymentMode(c.Context(), req.Mode)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "payment_mode_update_failed"})
	}
	return c.JSON(fiber.Map{"mode": req.Mode, "changed": changed})
}

type standingRequest struct {
	Standing string `json:"standing" validate:"required,oneof=active restricted blocked"`
	Reason   string `json:"reason" validate:"required,max=255"`
}

// HandleSetStanding is the manual standing override (restrict or unlock a
// merchant) with an audited reason.
func (ctrl *AdminBillingController) HandleSetStanding(c *fiber.Ctx) error {
	merchantID, ok := parseUintParam(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid id"})
	}
	var req standingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Malformed request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	if err := ctrl.service.SetMerchantStanding(c.Context(), merchantID, req.Standing, req.Reason); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "standing_update_failed"})
	}
	billing.InvalidateStandingCache(merchantID)
	return c.JSON(fiber.Map{"merchant_id": merchantID, "standing": req.Standing})
}
