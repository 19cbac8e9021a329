package billing

import (
	"testing"
	"time"
)

func TestParseSubscriptionPayloadTopLevelPeriods(t *testing.T) {
	raw := []byte(`{
		"id": "sub_1",
		"customer": "cus_1",
		"status": "active",
		"cancel_at_period_end": false,
		"current_period_start": 1748736000,
		"current_period_end": 1751328000,
		"metadata": {"account_id": "42", "plan_code": "standard"}
	}`)

	sub, err := parseSubscriptionPayload(raw)
	if err != nil {
		t.Fatalf("parseSubscriptionPayload: %v", err)
	}
	if sub.ID != "sub_1" || sub.CustomerID != "cus_1" || sub.Status != "active" {
		t.Errorf("unexpected subscription: %+v", sub)
	}
	if sub.PeriodEnd != time.Unix(1751328000, 0).UTC() {
		t.Errorf("period end = %v", sub.PeriodEnd)
	}
	if sub.Metadata["plan_code"] != "standard" {
		t.Errorf("metadata not parsed: %v", sub.Metadata)
	}
}

func TestParseSubscriptionPayloadItemPeriods(t *testing.T) {
	// Newer API versions carry the period on the subscription item.
	raw := []byte(`{
		"id": "sub_2",
		"customer": "cus_2",
		"status": "trialing",
		"items": {
			"data": [{
				"current_period_start": 1748736000,
				"current_period_end": 1751328000,
				"price": {
					"id": "price_std_m",
					"unit_amount": 999,
					"currency": "eur",
					"recurring": {"interval": "month"}
				}
			}]
		}
	}`)

	sub, err := parseSubscriptionPayload(raw)
	if err != nil {
		t.Fatalf("parseSubscriptionPayload: %v", err)
	}
	if sub.PriceRef != "price_std_m" || sub.AmountCents != 999 || sub.Interval != "month" {
		t.Errorf("price not parsed: %+v", sub)
	}
	if sub.PeriodEnd != time.Unix(1751328000, 0).UTC() {
		t.Errorf("period end = %v", sub.PeriodEnd)
	}
}

func TestParseSubscriptionPayloadMissingID(t *testing.T) {
	if _, err := parseSubscriptionPayload([]byte(`{"customer": "cus_1"}`)); err == nil {
		t.Fatal("expected error for missing subscription id")
	}
}

func TestParseInvoicePayloadLegacySubscriptionField(t *testing.T) {
	raw := []byte(`{
		"customer": "cus_1",
		"subscription": "sub_1",
		"period_end": 1751328000
	}`)

	inv, err := parseInvoicePayload(raw)
	if err != nil {
		t.Fatalf("parseInvoicePayload: %v", err)
	}
	if inv.subscriptionID != "sub_1" {
		t.Errorf("subscription id = %q", inv.subscriptionID)
	}
	if inv.periodEnd != time.Unix(1751328000, 0).UTC() {
		t.Errorf("period end = %v", inv.periodEnd)
	}
}

func TestParseInvoicePayloadParentAndLines(t *testing.T) {
	// Newer layout: subscription under parent, period on the line items.
	raw := []byte(`{
		"customer": "cus_1",
		"parent": {"subscription_details": {"subscription": "sub_9"}},
		"period_end": 1748736000,
		"lines": {"data": [
			{"period": {"end": 1751328000}},
			{"period": {"end": 1750000000}}
		]}
	}`)

	inv, err := parseInvoicePayload(raw)
	if err != nil {
		t.Fatalf("parseInvoicePayload: %v", err)
	}
	if inv.subscriptionID != "sub_9" {
		t.Errorf("subscription id = %q", inv.subscriptionID)
	}
	// The latest line period wins over the invoice-level period.
	if inv.periodEnd != time.Unix(1751328000, 0).UTC() {
		t.Errorf("period end = %v", inv.periodEnd)
	}
}
