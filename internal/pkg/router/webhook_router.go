package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gastrodesk/gastrodesk/app/controllers"
	"github.com/gastrodesk/gastrodesk/internal/pkg/billing"
	"github.com/gastrodesk/gastrodesk/internal/pkg/database"
	"github.com/gastrodesk/gastrodesk/internal/pkg/worker"
)

type WebhookRouter struct {
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	cfg := billing.LoadConfig()
	repo := billing.NewRepository(database.GetDB())
	ingestor := billing.NewIngestor(repo, cfg, worker.NewRedisNotifier())
	ctrl := controllers.NewWebhookController(ingestor)

	app.Post("/webhooks/gateway", ctrl.HandleGatewayWebhook)
}
