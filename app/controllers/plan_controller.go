package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/streamnest/streamnest/app/repository"
	"github.com/streamnest/streamnest/internal/pkg/entitlements"
)

// HandleListPlans returns the purchasable plan catalog. Public endpoint.
func HandleListPlans(c *fiber.Ctx) error {
	plans, err := repository.GetGlobalFactory().GetPlanRepository().ListActive()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load plans")
	}

	out := make([]fiber.Map, 0, len(plans))
	for _, p := range plans {
		code := entitlements.Normalize(p.Code)
		out = append(out, fiber.Map{
			"code":           p.Code,
			"name":           p.Name,
			"description":    p.Description,
			"amount_month":   p.AmountMonthCents,
			"amount_year":    p.AmountYearCents,
			"currency":       p.Currency,
			"max_streams":    entitlements.MaxConcurrentStreams(code),
			"max_resolution": entitlements.MaxResolution(code),
		})
	}
	return c.JSON(fiber.Map{"plans": out})
}
