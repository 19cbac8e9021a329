package billing

import "time"

// Normalized event kinds dispatched by the reconciler. Gateway-specific
// type strings are mapped onto these during webhook verification; anything
// that does not map stays under its raw name and is acknowledged unprocessed.
const (
	EventSubscriptionCreated = "subscription.created"
	EventSubscriptionUpdated = "subscription.updated"
	EventSubscriptionDeleted = "subscription.deleted"
	EventInvoicePaid         = "invoice.payment_succeeded"
	EventInvoiceFailed       = "invoice.payment_failed"

	// EventSubscriptionConfirmed is the internal kind used by the client
	// confirmation path. It is advisory-only in origin but reconciles
	// through the exact same idempotent path as created/updated.
	EventSubscriptionConfirmed = "subscription.confirmed"
)

// Subscription is the provider-agnostic shape of one gateway subscription,
// re-fetched canonically from the gateway or parsed out of a verified
// webhook payload. Client-supplied status never ends up in here.
type Subscription struct {
	ID                string
	CustomerID        string
	PriceRef          string
	Status            string
	CancelAtPeriodEnd bool
	PeriodStart       time.Time
	PeriodEnd         time.Time
	AmountCents       int64
	Currency          string
	Interval          string
	Metadata          map[string]string
}

// Event is one inbound billing fact for the reconciler.
type Event struct {
	ID             string
	Kind           string
	CustomerID     string
	SubscriptionID string

	// Subscription is set for subscription.* kinds (including confirmed).
	Subscription *Subscription

	// PeriodEnd carries the paid-through boundary for invoice kinds.
	PeriodEnd time.Time
}

// EntitlementPatch is the write shape for the account-embedded entitlement.
// Zero-valued optional fields are left untouched by the store.
type EntitlementPatch struct {
	Plan             string
	Status           string
	PeriodStart      *time.Time
	PeriodEnd        *time.Time
	AutoRenew        bool
	CustomerID       string
	CancelledAt      *time.Time
	ClearCancelledAt bool
}

// RecordState is the write shape for a billing record upsert. Like the
// entitlement patch, zero-valued optional fields do not overwrite stored
// values.
type RecordState struct {
	UserID           uint
	PlanCode         string
	Status           string
	PeriodStart      *time.Time
	PeriodEnd        *time.Time
	AmountCents      int64
	Currency         string
	Interval         string
	CancelledAt      *time.Time
	ClearCancelledAt bool
}

// WebhookResult reports what the ingestion path did with a verified event.
type WebhookResult struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
	Ignored   bool `json:"ignored,omitempty"`
}

// StoredCheckoutSession is the short-lived correlation this system keeps for
// a gateway-hosted checkout: just enough to validate the browser-redirect
// confirmation. It never grants access by itself.
type StoredCheckoutSession struct {
	SessionID string    `json:"session_id"`
	AccountID uint      `json:"account_id"`
	PlanCode  string    `json:"plan_code"`
	Interval  string    `json:"interval"`
	CreatedAt time.Time `json:"created_at"`
}
