package entitlements

import (
	"testing"
	"time"

	"github.com/streamnest/streamnest/app/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want Plan
	}{
		{"free", PlanFree},
		{"standard", PlanStandard},
		{"premium", PlanPremium},
		{" Premium ", PlanPremium},
		{"", PlanFree},
		{"enterprise", PlanFree},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlanLimits(t *testing.T) {
	if MaxConcurrentStreams(PlanPremium) != 4 || MaxConcurrentStreams(PlanStandard) != 2 || MaxConcurrentStreams(PlanFree) != 1 {
		t.Error("unexpected concurrent stream limits")
	}
	if MaxResolution(PlanPremium) != "2160p" || MaxResolution(PlanStandard) != "1080p" || MaxResolution(PlanFree) != "720p" {
		t.Error("unexpected resolution limits")
	}
	if !(Rank(PlanPremium) > Rank(PlanStandard) && Rank(PlanStandard) > Rank(PlanFree)) {
		t.Error("plan ranking out of order")
	}
}

func TestEffectivePlan(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	future := now.AddDate(0, 1, 0)
	past := now.AddDate(0, -1, 0)

	tests := []struct {
		name string
		ent  models.Entitlement
		want Plan
	}{
		{"free account", models.NewFreeEntitlement(), PlanFree},
		{"active premium", models.Entitlement{Plan: "premium", Status: models.EntitlementStatusActive, PeriodEnd: &future}, PlanPremium},
		{"cancelled but within period", models.Entitlement{Plan: "standard", Status: models.EntitlementStatusCancelled, PeriodEnd: &future}, PlanStandard},
		{"lapsed premium falls back", models.Entitlement{Plan: "premium", Status: models.EntitlementStatusActive, PeriodEnd: &past}, PlanFree},
		{"inactive standard falls back", models.Entitlement{Plan: "standard", Status: models.EntitlementStatusInactive, PeriodEnd: &future}, PlanFree},
	}
	for _, tt := range tests {
		if got := EffectivePlan(tt.ent, now); got != tt.want {
			t.Errorf("%s: EffectivePlan = %q, want %q", tt.name, got, tt.want)
		}
	}
}
