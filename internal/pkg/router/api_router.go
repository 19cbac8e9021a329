package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/streamnest/streamnest/app/controllers"
	"github.com/streamnest/streamnest/internal/pkg/middleware"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")
	v1.Get("/plans", controllers.HandleListPlans)
	v1.Get("/account", middleware.RequireAPISessionAuth, controllers.HandleGetAccount)

	billing := v1.Group("/billing")
	billing.Post("/webhooks", controllers.HandleBillingWebhook)

	authed := billing.Group("", middleware.RequireAPISessionAuth)
	authed.Post("/checkout", controllers.HandleBillingCheckout)
	authed.Post("/checkout/confirm", controllers.HandleBillingCheckoutConfirm)
	authed.Post("/subscription/cancel", controllers.HandleSubscriptionCancel)
	authed.Post("/subscription/reactivate", controllers.HandleSubscriptionReactivate)
}
