package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/streamnest/streamnest/app/controllers"
	"github.com/streamnest/streamnest/internal/pkg/middleware"
	"github.com/streamnest/streamnest/internal/pkg/session"
)

type HttpRouter struct {
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	h.registerPublicRoutes(app)
	h.registerBillingRoutes(app)
}

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	app.Post("/register", controllers.HandleRegister)
	app.Post("/login", controllers.HandleLogin)
	app.Post("/logout", controllers.HandleLogout)
	app.Get("/plans", controllers.HandleListPlans)
}

func (h HttpRouter) registerBillingRoutes(app *fiber.App) {
	// The webhook carries its own authentication (signature header); it
	// must never sit behind session auth.
	app.Post("/webhooks/billing", controllers.HandleBillingWebhook)

	authed := app.Group("", middleware.RequireAPISessionAuth)
	authed.Post("/checkout", controllers.HandleBillingCheckout)
	authed.Post("/checkout/confirm", controllers.HandleBillingCheckoutConfirm)
	authed.Post("/subscription/cancel", controllers.HandleSubscriptionCancel)
	authed.Post("/subscription/reactivate", controllers.HandleSubscriptionReactivate)
	authed.Get("/account", controllers.HandleGetAccount)
}
