package controllers

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/streamnest/streamnest/app/models"
	"github.com/streamnest/streamnest/internal/pkg/billing"
	"github.com/streamnest/streamnest/internal/pkg/database"
	"github.com/streamnest/streamnest/internal/pkg/entitlements"
	"github.com/streamnest/streamnest/internal/pkg/usercontext"
)

var (
	billingSvc     *billing.Service
	billingSvcOnce sync.Once
)

// SetBillingService overrides the lazily constructed service. Used by tests.
func SetBillingService(svc *billing.Service) {
	billingSvc = svc
}

func getBillingService() *billing.Service {
	billingSvcOnce.Do(func() {
		if billingSvc == nil {
			billingSvc = billing.NewServiceFromDB(database.GetDB(), billing.NewStripeGatewayFromEnv())
		}
	})
	return billingSvc
}

type checkoutRequest struct {
	PlanID   string `json:"plan_id"`
	Interval string `json:"interval"`
}

// HandleBillingCheckout opens a hosted checkout session for the
// authenticated account and returns the redirect target.
func HandleBillingCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Authentication required")
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "Invalid JSON body")
	}
	if req.PlanID == "" {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "plan_id is required")
	}

	hosted, err := getBillingService().StartCheckout(c.Context(), userCtx.UserID, req.PlanID, req.Interval)
	if err != nil {
		log.Printf("checkout for user %d failed: %v", userCtx.UserID, err)
		return billingErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"session_id":   hosted.ID,
		"redirect_url": hosted.URL,
	})
}

type checkoutConfirmRequest struct {
	SessionID string `json:"session_id"`
}

// HandleBillingCheckoutConfirm lets the returning browser trigger an
// immediate reconcile instead of waiting for the webhook.
func HandleBillingCheckoutConfirm(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Authentication required")
	}

	var req checkoutConfirmRequest
	if err := c.BodyParser(&req); err != nil || req.SessionID == "" {
		return jsonError(c, fiber.StatusBadRequest, "invalid_request", "session_id is required")
	}

	ent, err := getBillingService().ConfirmCheckout(c.Context(), userCtx.UserID, req.SessionID)
	if err != nil {
		log.Printf("checkout confirm for user %d failed: %v", userCtx.UserID, err)
		return billingErrorResponse(c, err)
	}

	return c.JSON(fiber.Map{"entitlement": entitlementResponse(ent)})
}

// HandleSubscriptionCancel stops renewal while keeping access until the
// end of the paid period.
func HandleSubscriptionCancel(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Authentication required")
	}

	ent, err := getBillingService().CancelSubscription(c.Context(), userCtx.UserID)
	if err != nil {
		return billingErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"entitlement": entitlementResponse(ent)})
}

// HandleSubscriptionReactivate resumes renewal for a cancellation that has
// not yet run out.
func HandleSubscriptionReactivate(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Authentication required")
	}

	ent, err := getBillingService().ReactivateSubscription(c.Context(), userCtx.UserID)
	if err != nil {
		return billingErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"entitlement": entitlementResponse(ent)})
}

// HandleBillingWebhook receives raw provider events. A bad signature is
// the only rejection; every verified event is acknowledged with 200 so
// the provider does not retry forever over transient processing issues.
func HandleBillingWebhook(c *fiber.Ctx) error {
	// Fiber reuses the request buffer after the handler returns; copy
	// before anything async can observe it.
	payload := append([]byte(nil), c.BodyRaw()...)
	sig := c.Get("Stripe-Signature")

	result, err := getBillingService().HandleWebhook(c.Context(), payload, sig)
	if err != nil {
		if errors.Is(err, billing.ErrSignatureInvalid) {
			return jsonError(c, fiber.StatusBadRequest, "invalid_signature", "Webhook signature verification failed")
		}
		log.Printf("webhook processing failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Unexpected error")
	}

	return c.JSON(fiber.Map{
		"received":  result.Received,
		"duplicate": result.Duplicate,
		"ignored":   result.Ignored,
	})
}

// entitlementResponse is the shared JSON shape for entitlement state.
func entitlementResponse(ent *models.Entitlement) fiber.Map {
	now := time.Now()
	plan := entitlements.EffectivePlan(*ent, now)
	return fiber.Map{
		"plan":           ent.Plan,
		"status":         ent.Status,
		"period_start":   formatTimePtr(ent.PeriodStart),
		"period_end":     formatTimePtr(ent.PeriodEnd),
		"auto_renew":     ent.AutoRenew,
		"cancelled_at":   formatTimePtr(ent.CancelledAt),
		"has_access":     ent.HasAccess(now),
		"effective_plan": string(plan),
		"max_streams":    entitlements.MaxConcurrentStreams(plan),
		"max_resolution": entitlements.MaxResolution(plan),
	}
}
