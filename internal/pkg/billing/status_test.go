package billing

import (
	"testing"
	"time"

	"github.com/streamnest/streamnest/app/models"
)

func TestNormalizeInterval(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", models.BillingIntervalMonth},
		{"month", models.BillingIntervalMonth},
		{"MONTH", models.BillingIntervalMonth},
		{"year", models.BillingIntervalYear},
		{" Year ", models.BillingIntervalYear},
		{"weekly", models.BillingIntervalMonth},
	}
	for _, tt := range tests {
		if got := normalizeInterval(tt.in); got != tt.want {
			t.Errorf("normalizeInterval(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsEntitlingStatus(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"active", true},
		{"trialing", true},
		{"paid", true},
		{"past_due", false},
		{"canceled", false},
		{"incomplete", false},
		{"unpaid", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isEntitlingStatus(tt.status); got != tt.want {
			t.Errorf("isEntitlingStatus(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestNormalizeRecordStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", models.BillingStatusActive},
		{"active", models.BillingStatusActive},
		{"paid", models.BillingStatusActive},
		{"trialing", models.BillingStatusTrialing},
		{"past_due", models.BillingStatusPastDue},
		{"canceled", models.BillingStatusCancelled},
		{"cancelled", models.BillingStatusCancelled},
		{"unpaid", models.BillingStatusUnpaid},
		{"incomplete_expired", models.BillingStatusIncomplete},
	}
	for _, tt := range tests {
		if got := normalizeRecordStatus(tt.in); got != tt.want {
			t.Errorf("normalizeRecordStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEntitlementStatusFor(t *testing.T) {
	tests := []struct {
		kind   string
		status string
		want   string
	}{
		{EventSubscriptionCreated, "incomplete", models.EntitlementStatusActive},
		{EventSubscriptionUpdated, "active", models.EntitlementStatusActive},
		{EventSubscriptionUpdated, "trialing", models.EntitlementStatusActive},
		{EventSubscriptionUpdated, "past_due", models.EntitlementStatusInactive},
		{EventSubscriptionConfirmed, "unpaid", models.EntitlementStatusInactive},
	}
	for _, tt := range tests {
		if got := entitlementStatusFor(tt.kind, tt.status); got != tt.want {
			t.Errorf("entitlementStatusFor(%q, %q) = %q, want %q", tt.kind, tt.status, got, tt.want)
		}
	}
}

func TestStaleAgainst(t *testing.T) {
	t1 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.AddDate(0, 1, 0)

	tests := []struct {
		name     string
		stored   *time.Time
		incoming *time.Time
		want     bool
	}{
		{"both nil", nil, nil, false},
		{"stored nil", nil, &t1, false},
		{"incoming nil", &t1, nil, false},
		{"incoming newer", &t1, &t2, false},
		{"incoming equal", &t1, &t1, false},
		{"incoming older", &t2, &t1, true},
	}
	for _, tt := range tests {
		if got := staleAgainst(tt.stored, tt.incoming); got != tt.want {
			t.Errorf("%s: staleAgainst = %v, want %v", tt.name, got, tt.want)
		}
	}
}
