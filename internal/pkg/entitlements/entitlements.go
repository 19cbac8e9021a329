package entitlements

import (
	"strings"
	"time"

	"github.com/streamnest/streamnest/app/models"
)

type Plan string

const (
	PlanFree     Plan = "free"
	PlanStandard Plan = "standard"
	PlanPremium  Plan = "premium"
)

// Normalize maps arbitrary plan strings onto a known plan, defaulting to free.
func Normalize(plan string) Plan {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanStandard):
		return PlanStandard
	case string(PlanPremium):
		return PlanPremium
	default:
		return PlanFree
	}
}

// Rank orders plans so reconciliation and display can pick the better one.
func Rank(plan Plan) int {
	switch plan {
	case PlanPremium:
		return 2
	case PlanStandard:
		return 1
	default:
		return 0
	}
}

// MaxConcurrentStreams returns how many simultaneous playback sessions a
// plan allows.
func MaxConcurrentStreams(plan Plan) int {
	switch plan {
	case PlanPremium:
		return 4
	case PlanStandard:
		return 2
	default:
		return 1
	}
}

// MaxResolution returns the highest playback resolution for a plan.
func MaxResolution(plan Plan) string {
	switch plan {
	case PlanPremium:
		return "2160p"
	case PlanStandard:
		return "1080p"
	default:
		return "720p"
	}
}

// EffectivePlan resolves the plan a user actually gets served with: the paid
// plan while the entitlement grants access, free otherwise.
func EffectivePlan(e models.Entitlement, now time.Time) Plan {
	if e.Status == models.EntitlementStatusFree {
		return PlanFree
	}
	if !e.HasAccess(now) {
		return PlanFree
	}
	return Normalize(e.Plan)
}
