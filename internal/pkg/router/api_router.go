package router

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/gastrodesk/gastrodesk/app/controllers"
	"github.com/gastrodesk/gastrodesk/app/repository"
	"github.com/gastrodesk/gastrodesk/internal/pkg/billing"
	"github.com/gastrodesk/gastrodesk/internal/pkg/cache"
	"github.com/gastrodesk/gastrodesk/internal/pkg/database"
	"github.com/gastrodesk/gastrodesk/internal/pkg/env"
	"github.com/gastrodesk/gastrodesk/internal/pkg/middleware"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	db := database.GetDB()
	cfg := billing.LoadConfig()

	billingRepo := billing.NewRepository(db)
	service := billing.NewService(billingRepo, cfg)
	gateway := billing.NewGateway(cfg)
	worker := billing.NewWorker(billingRepo, gateway, billing.DefaultPolicy())
	resolver := billing.NewCachedStandingResolver(billing.NewStandingResolver(billingRepo))
	gate := billing.NewGate(resolver)

	factory := repository.GetGlobalFactory()
	orderCtrl := controllers.NewOrderController(factory.GetOrderRepository(), gate)
	paymentCtrl := controllers.NewPaymentController(service)
	adminCtrl := controllers.NewAdminBillingController(service, worker, gateway)

	api := app.Group("/api", limiter.New(limiter.Config{Storage: newLimiterStorage()}))
	v1 := api.Group("/v1")

	v1.Post("/orders", orderCtrl.HandleCreateOrder)
	v1.Get("/orders/:id", orderCtrl.HandleGetOrder)
	v1.Patch("/orders/:id/status", orderCtrl.HandleUpdateOrderStatus)
	v1.Get("/merchants/:merchantID/orders", orderCtrl.HandleListOrders)

	v1.Post("/invoices/:id/payments", paymentCtrl.HandleCreatePayment)

	admin := v1.Group("/admin", middleware.AdminTokenMiddleware(env.GetEnv("ADMIN_TOKEN", "")))
	admin.Post("/billing/retry-run", adminCtrl.HandleRetryRun)
	admin.Post("/billing/close-month", adminCtrl.HandleCloseMonth)
	admin.Post("/billing/kickoff", adminCtrl.HandleAutoBillingKickoff)
	admin.Patch("/subscriptions/:merchantID", adminCtrl.HandleSetPaymentMode)
	admin.Post("/subscriptions/bulk-mode", adminCtrl.HandleBulkSetPaymentMode)
	admin.Patch("/merchants/:id/standing", adminCtrl.HandleSetStanding)
}

// newLimiterStorage backs the rate limiter with Redis, using database 1 so
// the cache keys in database 0 stay untouched.
func newLimiterStorage() *redisstorage.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		addr := client.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}
