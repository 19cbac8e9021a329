package billing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/streamnest/streamnest/app/models"
)

// Outcome reports what the reconciler did with an event.
type Outcome string

const (
	// OutcomeApplied means the event advanced the entitlement state.
	OutcomeApplied Outcome = "applied"
	// OutcomeStale means the event lost the period-end comparison against
	// stored state and was discarded. Not an error: stale replays and
	// out-of-order deliveries are expected.
	OutcomeStale Outcome = "stale"
	// OutcomeIgnored means the event kind is not part of the dispatch
	// table and was acknowledged without processing.
	OutcomeIgnored Outcome = "ignored"
)

// PlanResolver maps gateway price references back to catalog plans.
// Deactivated plans still resolve: an existing subscription keeps its plan
// even after it was pulled from sale.
type PlanResolver interface {
	GetByPriceRef(priceRef string) (*models.Plan, error)
}

// Reconciler is the idempotent state machine merging billing events from
// the confirmation and webhook paths into the entitlement store. It is the
// single writer of entitlement and billing record state.
type Reconciler struct {
	store Store
	plans PlanResolver
	now   func() time.Time
}

// NewReconciler creates a reconciler over the given store and plan catalog.
func NewReconciler(store Store, plans PlanResolver) *Reconciler {
	return &Reconciler{store: store, plans: plans, now: time.Now}
}

type applyFunc func(r *Reconciler, ctx context.Context, accountID uint, ev Event) (Outcome, error)

// Closed dispatch table over event kinds. Kinds not listed here fall into
// the default acknowledge-and-ignore branch, so new gateway event types
// never cause failures.
var eventHandlers = map[string]applyFunc{
	EventSubscriptionCreated:   (*Reconciler).applySubscriptionEvent,
	EventSubscriptionUpdated:   (*Reconciler).applySubscriptionEvent,
	EventSubscriptionConfirmed: (*Reconciler).applySubscriptionEvent,
	EventSubscriptionDeleted:   (*Reconciler).applyDeleted,
	EventInvoicePaid:           (*Reconciler).applyInvoicePaid,
	EventInvoiceFailed:         (*Reconciler).applyInvoiceFailed,
}

// Handles reports whether the reconciler processes the given event kind.
func (r *Reconciler) Handles(kind string) bool {
	_, ok := eventHandlers[kind]
	return ok
}

// Apply runs one event through the state machine. A write conflict is
// retried once with a fresh read rather than merging partial writes.
func (r *Reconciler) Apply(ctx context.Context, accountID uint, ev Event) (Outcome, error) {
	h, ok := eventHandlers[ev.Kind]
	if !ok {
		log.Printf("billing: acknowledging unhandled event kind %q (id=%s)", ev.Kind, ev.ID)
		return OutcomeIgnored, nil
	}

	var out Outcome
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		out, err = h(r, ctx, accountID, ev)
		if err == nil {
			if out == OutcomeStale {
				log.Printf("billing: discarded stale event kind=%s sub=%s account=%d", ev.Kind, ev.SubscriptionID, accountID)
			}
			return out, nil
		}
	}
	return out, err
}

func (r *Reconciler) applySubscriptionEvent(ctx context.Context, accountID uint, ev Event) (Outcome, error) {
	sub := ev.Subscription
	if sub == nil || sub.ID == "" {
		return OutcomeIgnored, fmt.Errorf("%w: event %s carries no subscription", ErrValidation, ev.Kind)
	}

	planCode := r.resolvePlanCode(sub)
	entStatus := entitlementStatusFor(ev.Kind, sub.Status)

	state := RecordState{
		UserID:   accountID,
		PlanCode: planCode,
		Status:   normalizeRecordStatus(sub.Status),
	}
	patch := EntitlementPatch{
		Plan:       planCode,
		Status:     entStatus,
		AutoRenew:  !sub.CancelAtPeriodEnd,
		CustomerID: sub.CustomerID,
	}
	if ev.Kind == EventSubscriptionCreated {
		patch.AutoRenew = true
	}
	if !sub.PeriodStart.IsZero() {
		start := sub.PeriodStart
		state.PeriodStart = &start
		patch.PeriodStart = &start
	}
	if !sub.PeriodEnd.IsZero() {
		end := sub.PeriodEnd
		state.PeriodEnd = &end
		patch.PeriodEnd = &end
	}
	state.AmountCents = sub.AmountCents
	state.Currency = sub.Currency
	state.Interval = normalizeInterval(sub.Interval)

	return r.applyPair(ctx, accountID, sub.ID, patch, state)
}

func (r *Reconciler) applyDeleted(ctx context.Context, accountID uint, ev Event) (Outcome, error) {
	now := r.now()
	state := RecordState{
		UserID:      accountID,
		Status:      models.BillingStatusCancelled,
		CancelledAt: &now,
	}
	patch := EntitlementPatch{
		Status:      models.EntitlementStatusCancelled,
		AutoRenew:   false,
		CancelledAt: &now,
	}
	// A deletion does not shorten the paid period: access persists until
	// the stored period end lapses.
	subID := ev.SubscriptionID
	if sub := ev.Subscription; sub != nil {
		if subID == "" {
			subID = sub.ID
		}
		patch.CustomerID = sub.CustomerID
		if !sub.PeriodEnd.IsZero() {
			end := sub.PeriodEnd
			state.PeriodEnd = &end
			patch.PeriodEnd = &end
		}
	}
	if subID == "" {
		return OutcomeIgnored, fmt.Errorf("%w: deletion event carries no subscription id", ErrValidation)
	}

	return r.applyPair(ctx, accountID, subID, patch, state)
}

func (r *Reconciler) applyInvoicePaid(ctx context.Context, accountID uint, ev Event) (Outcome, error) {
	if ev.SubscriptionID == "" {
		return OutcomeIgnored, nil
	}
	// A paid invoice extends the paid-through boundary; the status is left
	// as is.
	state := RecordState{UserID: accountID}
	patch := EntitlementPatch{CustomerID: ev.CustomerID}
	if !ev.PeriodEnd.IsZero() {
		end := ev.PeriodEnd
		state.PeriodEnd = &end
		patch.PeriodEnd = &end
	}
	return r.applyPair(ctx, accountID, ev.SubscriptionID, patch, state)
}

func (r *Reconciler) applyInvoiceFailed(ctx context.Context, accountID uint, ev Event) (Outcome, error) {
	if ev.SubscriptionID == "" {
		return OutcomeIgnored, nil
	}
	// Failed payment revokes access immediately. The period end stays
	// unchanged so a later successful payment restores the same window.
	state := RecordState{
		UserID: accountID,
		Status: models.BillingStatusPastDue,
	}
	patch := EntitlementPatch{
		Status:    models.EntitlementStatusInactive,
		AutoRenew: false,
	}
	return r.applyPair(ctx, accountID, ev.SubscriptionID, patch, state)
}

// applyPair performs the guarded record-then-entitlement write for one
// account/subscription pair. The record upsert carries the authoritative
// ordering verdict; a stale verdict skips the entitlement entirely.
func (r *Reconciler) applyPair(ctx context.Context, accountID uint, subscriptionID string, patch EntitlementPatch, state RecordState) (Outcome, error) {
	applied, err := r.store.UpsertBillingRecord(ctx, subscriptionID, state)
	if err != nil {
		return OutcomeApplied, err
	}
	if !applied {
		return OutcomeStale, nil
	}
	if _, err := r.store.ApplyEntitlement(ctx, accountID, patch); err != nil {
		return OutcomeApplied, err
	}
	return OutcomeApplied, nil
}

// Cancel is the forward-only local cancellation: access persists until the
// period end, auto-renew stops. Cancelling an already-cancelled
// subscription is a no-op and never moves the accessible-until date.
func (r *Reconciler) Cancel(ctx context.Context, accountID uint) (*models.Entitlement, error) {
	ent, err := r.store.GetEntitlement(ctx, accountID)
	if err != nil {
		return nil, mapRecordErr(err)
	}
	if ent.Status == models.EntitlementStatusCancelled {
		return ent, nil
	}
	if ent.Status != models.EntitlementStatusActive {
		return nil, fmt.Errorf("%w: no active subscription to cancel", ErrValidation)
	}

	now := r.now()
	patch := EntitlementPatch{
		Status:      models.EntitlementStatusCancelled,
		AutoRenew:   false,
		CancelledAt: &now,
	}
	if _, err := r.store.ApplyEntitlement(ctx, accountID, patch); err != nil {
		return nil, err
	}
	if rec, err := r.store.LatestBillingRecordForUser(ctx, accountID); err == nil {
		state := RecordState{
			UserID:      accountID,
			Status:      models.BillingStatusCancelled,
			CancelledAt: &now,
		}
		if _, err := r.store.UpsertBillingRecord(ctx, rec.ProviderSubscriptionID, state); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return r.store.GetEntitlement(ctx, accountID)
}

// Reactivate undoes a scheduled cancellation while the paid period still
// runs. A lapsed or inactive subscription cannot be reactivated; the user
// has to go through checkout again.
func (r *Reconciler) Reactivate(ctx context.Context, accountID uint) (*models.Entitlement, error) {
	ent, err := r.store.GetEntitlement(ctx, accountID)
	if err != nil {
		return nil, mapRecordErr(err)
	}
	if ent.Status == models.EntitlementStatusActive {
		return ent, nil
	}
	if ent.Status != models.EntitlementStatusCancelled || !ent.HasAccess(r.now()) {
		return nil, fmt.Errorf("%w: no cancelled subscription within its paid period", ErrValidation)
	}

	patch := EntitlementPatch{
		Status:           models.EntitlementStatusActive,
		AutoRenew:        true,
		ClearCancelledAt: true,
	}
	if _, err := r.store.ApplyEntitlement(ctx, accountID, patch); err != nil {
		return nil, err
	}
	if rec, err := r.store.LatestBillingRecordForUser(ctx, accountID); err == nil {
		state := RecordState{
			UserID:           accountID,
			Status:           models.BillingStatusActive,
			ClearCancelledAt: true,
		}
		if _, err := r.store.UpsertBillingRecord(ctx, rec.ProviderSubscriptionID, state); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return r.store.GetEntitlement(ctx, accountID)
}

func (r *Reconciler) resolvePlanCode(sub *Subscription) string {
	if sub.PriceRef != "" && r.plans != nil {
		if plan, err := r.plans.GetByPriceRef(sub.PriceRef); err == nil {
			return plan.Code
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("billing: plan lookup for price %q failed: %v", sub.PriceRef, err)
		}
	}
	// The checkout flow stamps the plan code into the subscription
	// metadata, which covers events arriving before the catalog knows the
	// price id.
	if code, ok := sub.Metadata["plan_code"]; ok {
		return code
	}
	return ""
}

func mapRecordErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
