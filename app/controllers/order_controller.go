package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gastrodesk/gastrodesk/app/models"
	"github.com/gastrodesk/gastrodesk/app/repository"
	"github.com/gastrodesk/gastrodesk/internal/pkg/billing"
	"github.com/gastrodesk/gastrodesk/internal/pkg/metrics/counter"
	"github.com/gastrodesk/gastrodesk/internal/pkg/orders"
)

// OrderController serves the customer-facing order intake and the
// merchant-facing fulfillment status updates.
type OrderController struct {
	orderRepo repository.OrderRepository
	gate      *billing.Gate
	machine   *orders.Machine
}

func NewOrderController(orderRepo repository.OrderRepository, gate *billing.Gate) *OrderController {
	return &OrderController{
		orderRepo: orderRepo,
		gate:      gate,
		machine:   orders.NewMachine(orderRepo),
	}
}

type createOrderItem struct {
	ProductID uint   `json:"product_id" validate:"required"`
	Name      string `json:"name" validate:"required,max=200"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
	UnitPrice int64  `json:"unit_price" validate:"required,min=1"`
}

type createOrderRequest struct {
	MerchantID uint              `json:"merchant_id" validate:"required"`
	Location   string            `json:"location" validate:"max=100"`
	Items      []createOrderItem `json:"items" validate:"required,min=1,dive"`
}

// HandleCreateOrder accepts a checkout request. The admission gate runs
// before anything is written; a blocked merchant means no order row and no
// item rows exist afterwards.
func (ctrl *OrderController) HandleCreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Malformed request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	if err := ctrl.gate.AssertCheckoutAllowed(c.Context(), req.MerchantID); err != nil {
		var blocked *billing.CheckoutBlockedError
		if errors.As(err, &blocked) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":   "checkout_blocked",
				"code":    blocked.Code,
				"message": blocked.Message,
			})
		}
		if errors.Is(err, billing.ErrMerchantNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Merchant not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	order := &models.Order{
		UUID:       uuid.NewString(),
		MerchantID: req.MerchantID,
		Status:     models.OrderStatusReceived,
		Location:   req.Location,
	}
	for _, item := range req.Items {
		order.Items = append(order.Items, models.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
		order.TotalAmount += int64(item.Quantity) * item.UnitPrice
	}

	if err := ctrl.orderRepo.Create(order); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "order_create_failed"})
	}

	// Counters are flushed to the merchant row periodically; a cache
	// hiccup must not fail the checkout.
	if err := counter.AddOrder(order.MerchantID); err != nil {
		log.Errorf("[Order] order counter for merchant %d failed: %v", order.MerchantID, err)
	}
	if err := counter.AddRevenue(order.MerchantID, order.TotalAmount); err != nil {
		log.Errorf("[Order] revenue counter for merchant %d failed: %v", order.MerchantID, err)
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

// HandleGetOrder returns one order with its items.
func (ctrl *OrderController) HandleGetOrder(c *fiber.Ctx) error {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid id"})
	}
	order, err := ctrl.orderRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.JSON(order)
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=received preparing ready delivered canceled"`
}

// HandleUpdateOrderStatus advances an order along the fulfillment chain.
// A request that is not the single legal next step gets a 409 carrying the
// current status and the allowed successor, so a stale client can refetch
// and retry instead of guessing.
func (ctrl *OrderController) HandleUpdateOrderStatus(c *fiber.Ctx) error {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid id"})
	}

	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Malformed request body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	var err error
	if req.Status == models.OrderStatusCanceled {
		err = ctrl.machine.Cancel(id)
	} else {
		err = ctrl.machine.Advance(id, req.Status)
	}
	if err != nil {
		var conflict *orders.ConflictError
		var terminal *orders.TerminalStateError
		switch {
		case errors.Is(err, orders.ErrOrderNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		case errors.As(err, &conflict):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":          "status_conflict",
				"current_status": conflict.Current,
				"allowed_next":   conflict.AllowedNext,
			})
		case errors.As(err, &terminal):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":          "invalid_state",
				"current_status": terminal.Current,
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
		}
	}

	order, err := ctrl.orderRepo.GetByID(id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.JSON(order)
}

// HandleListOrders returns a merchant's orders, newest first.
func (ctrl *OrderController) HandleListOrders(c *fiber.Ctx) error {
	merchantID, ok := parseUintParam(c, "merchantID")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid merchantID"})
	}
	offset := c.QueryInt("offset", 0)
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	list, err := ctrl.orderRepo.ListByMerchant(merchantID, offset, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	total, err := ctrl.orderRepo.CountByMerchant(merchantID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.JSON(fiber.Map{"orders": list, "total": total})
}
