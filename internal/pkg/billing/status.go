package billing

import (
	"strings"

	"github.com/streamnest/streamnest/app/models"
)

func normalizeInterval(interval string) string {
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case models.BillingIntervalYear:
		return models.BillingIntervalYear
	default:
		return models.BillingIntervalMonth
	}
}

// isEntitlingStatus reports whether a gateway subscription status grants
// access. past_due deliberately does not: payment failure revokes access
// immediately rather than after a grace period.
func isEntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "trialing", "paid":
		return true
	default:
		return false
	}
}

// normalizeRecordStatus maps gateway status strings onto the billing record
// status set.
func normalizeRecordStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "active", "paid":
		return models.BillingStatusActive
	case "trialing":
		return models.BillingStatusTrialing
	case "past_due":
		return models.BillingStatusPastDue
	case "canceled", "cancelled":
		return models.BillingStatusCancelled
	case "unpaid":
		return models.BillingStatusUnpaid
	default:
		return models.BillingStatusIncomplete
	}
}

// entitlementStatusFor derives the entitlement status for a subscription
// event: created is always a grant, everything else follows the gateway
// status.
func entitlementStatusFor(kind, gatewayStatus string) string {
	if kind == EventSubscriptionCreated {
		return models.EntitlementStatusActive
	}
	if isEntitlingStatus(gatewayStatus) {
		return models.EntitlementStatusActive
	}
	return models.EntitlementStatusInactive
}
