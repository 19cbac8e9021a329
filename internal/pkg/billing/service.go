package billing

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"gorm.io/gorm"

	"github.com/streamnest/streamnest/app/models"
	"github.com/streamnest/streamnest/app/repository"
	"github.com/streamnest/streamnest/internal/pkg/cache"
	"github.com/streamnest/streamnest/internal/pkg/env"
)

// Service ties the billing core together: customer mapping, checkout,
// client confirmation, webhook ingestion and the forward-only subscription
// transitions. All entitlement writes run through the reconciler.
type Service struct {
	store      Store
	gateway    Gateway
	plans      repository.PlanRepository
	sessions   CheckoutSessionStore
	reconciler *Reconciler
	successURL string
	cancelURL  string
}

// NewService creates a billing service from injected collaborators.
func NewService(store Store, gateway Gateway, plans repository.PlanRepository, sessions CheckoutSessionStore, successURL, cancelURL string) *Service {
	return &Service{
		store:      store,
		gateway:    gateway,
		plans:      plans,
		sessions:   sessions,
		reconciler: NewReconciler(store, plans),
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

// NewServiceFromDB wires the service with the GORM store, the plan catalog
// repository, the redis checkout session store and the redirect targets
// from the environment.
func NewServiceFromDB(db *gorm.DB, gateway Gateway) *Service {
	return NewService(
		NewStore(db),
		gateway,
		repository.NewPlanRepository(db),
		NewCheckoutSessionStore(cache.GetClient()),
		env.GetEnv("BILLING_SUCCESS_URL", "http://localhost:4000/billing/success"),
		env.GetEnv("BILLING_CANCEL_URL", "http://localhost:4000/billing/cancelled"),
	)
}

// EnsureCustomer resolves the gateway customer identity for an account,
// provisioning one on first use. Two concurrent calls cannot end up with
// two stored customers: the claim is optimistic and the loser reuses the
// winner's id.
func (s *Service) EnsureCustomer(ctx context.Context, accountID uint) (string, error) {
	user, err := s.store.GetUser(ctx, accountID)
	if err != nil {
		return "", mapRecordErr(err)
	}
	if user.Entitlement.CustomerID != "" {
		return user.Entitlement.CustomerID, nil
	}

	customerID, err := s.gateway.CreateCustomer(ctx, user.Email, user.Name)
	if err != nil {
		return "", err
	}

	winner, err := s.store.ClaimCustomerID(ctx, accountID, customerID)
	if err != nil {
		return "", err
	}
	if winner != customerID {
		// Lost the provisioning race; the unclaimed gateway customer is
		// orphaned and left to gateway-side cleanup.
		log.Printf("billing: account %d lost customer claim race, reusing %s", accountID, winner)
	}
	return winner, nil
}

// StartCheckout validates the plan and opens a hosted checkout session.
// No entitlement mutation happens here; access is only ever granted by the
// reconciler once the gateway confirms payment.
func (s *Service) StartCheckout(ctx context.Context, accountID uint, planCode, interval string) (*HostedSession, error) {
	interval = normalizeInterval(interval)

	plan, err := s.plans.GetByCode(planCode)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: unknown plan %q", ErrValidation, planCode)
	}
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, fmt.Errorf("%w: plan %q is not purchasable", ErrValidation, planCode)
	}
	priceRef := plan.PriceRefFor(interval)
	if priceRef == "" {
		return nil, fmt.Errorf("%w: plan %q has no %s price", ErrValidation, planCode, interval)
	}

	customerID, err := s.EnsureCustomer(ctx, accountID)
	if err != nil {
		return nil, err
	}

	hosted, err := s.gateway.CreateCheckoutSession(ctx, CheckoutParams{
		CustomerID: customerID,
		PriceRef:   priceRef,
		SuccessURL: s.successURL,
		CancelURL:  s.cancelURL,
		Metadata: map[string]string{
			"account_id": strconv.FormatUint(uint64(accountID), 10),
			"plan_code":  plan.Code,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Save(ctx, &StoredCheckoutSession{
		SessionID: hosted.ID,
		AccountID: accountID,
		PlanCode:  plan.Code,
		Interval:  interval,
		CreatedAt: s.reconciler.now(),
	}); err != nil {
		return nil, err
	}
	return hosted, nil
}

// ConfirmCheckout is the browser-redirect acceleration path. It never
// trusts anything the client asserts: the canonical subscription is
// re-fetched from the gateway and runs through the same idempotent
// reconcile path as a webhook, so repeated page refreshes are harmless and
// racing the webhook cannot corrupt state.
func (s *Service) ConfirmCheckout(ctx context.Context, accountID uint, sessionID string) (*models.Entitlement, error) {
	stored, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if stored.AccountID != accountID {
		return nil, fmt.Errorf("%w: checkout session belongs to another account", ErrNotFound)
	}

	hosted, err := s.gateway.RetrieveCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if hosted.SubscriptionID == "" {
		return nil, fmt.Errorf("%w: checkout has not completed", ErrValidation)
	}

	sub, err := s.gateway.RetrieveSubscription(ctx, hosted.SubscriptionID)
	if err != nil {
		return nil, err
	}

	ev := Event{
		Kind:           EventSubscriptionConfirmed,
		CustomerID:     sub.CustomerID,
		SubscriptionID: sub.ID,
		Subscription:   sub,
	}
	if _, err := s.reconciler.Apply(ctx, accountID, ev); err != nil {
		return nil, err
	}
	return s.store.GetEntitlement(ctx, accountID)
}

// CancelSubscription and ReactivateSubscription are forward-only: neither
// rolls back a prior transition.
func (s *Service) CancelSubscription(ctx context.Context, accountID uint) (*models.Entitlement, error) {
	return s.reconciler.Cancel(ctx, accountID)
}

func (s *Service) ReactivateSubscription(ctx context.Context, accountID uint) (*models.Entitlement, error) {
	return s.reconciler.Reactivate(ctx, accountID)
}

// GetEntitlement exposes the read-only entitlement view.
func (s *Service) GetEntitlement(ctx context.Context, accountID uint) (*models.Entitlement, error) {
	ent, err := s.store.GetEntitlement(ctx, accountID)
	if err != nil {
		return nil, mapRecordErr(err)
	}
	return ent, nil
}

// HandleWebhook ingests one raw gateway event. Signature verification runs
// first, unconditionally, over the unparsed body; a failure has zero side
// effects and is the only error this path propagates. Everything after the
// trust boundary is acknowledged even when processing fails - silent
// staleness is preferred over redelivery storms, and the stored event row
// keeps the failure auditable.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error) {
	ev, err := s.gateway.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		if errors.Is(err, ErrSignatureInvalid) {
			return nil, err
		}
		// Verified but unparsable: acknowledge, nothing else we can do.
		log.Printf("billing: webhook normalization failed: %v", err)
		return &WebhookResult{Received: true, Ignored: true}, nil
	}

	created, stored, err := s.store.CreateWebhookEventIfNotExists(ctx, &models.BillingWebhookEvent{
		ProviderEventID: ev.ID,
		EventType:       ev.Kind,
		PayloadJSON:     string(payload),
	})
	if err != nil {
		log.Printf("billing: webhook event persist failed: %v", err)
		return &WebhookResult{Received: true}, nil
	}
	if !created {
		return &WebhookResult{Received: true, Duplicate: true}, nil
	}

	if !s.reconciler.Handles(ev.Kind) {
		s.markProcessed(ctx, stored.ID, nil)
		return &WebhookResult{Received: true, Ignored: true}, nil
	}

	accountID, err := s.resolveAccount(ctx, ev)
	if err != nil {
		// Unknown customer: the event is not relevant to this system.
		log.Printf("billing: no account for customer %q (event %s), acknowledging", ev.CustomerID, ev.ID)
		s.markProcessed(ctx, stored.ID, err)
		return &WebhookResult{Received: true, Ignored: true}, nil
	}

	_, applyErr := s.reconciler.Apply(ctx, accountID, *ev)
	s.markProcessed(ctx, stored.ID, applyErr)
	if applyErr != nil {
		log.Printf("billing: event %s (%s) failed for account %d: %v", ev.ID, ev.Kind, accountID, applyErr)
	}
	return &WebhookResult{Received: true}, nil
}

func (s *Service) resolveAccount(ctx context.Context, ev *Event) (uint, error) {
	if ev.CustomerID != "" {
		id, err := s.store.AccountIDForCustomer(ctx, ev.CustomerID)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, err
		}
	}
	// Before the first billing record exists the customer may be unknown;
	// the checkout flow stamps the account id into subscription metadata
	// for exactly this window.
	if ev.Subscription != nil {
		if raw, ok := ev.Subscription.Metadata["account_id"]; ok {
			id, err := strconv.ParseUint(raw, 10, 64)
			if err == nil && id > 0 {
				return uint(id), nil
			}
		}
	}
	return 0, fmt.Errorf("%w: no account for customer %q", ErrNotFound, ev.CustomerID)
}

func (s *Service) markProcessed(ctx context.Context, eventID uint, processingErr error) {
	msg := ""
	if processingErr != nil {
		msg = processingErr.Error()
	}
	if err := s.store.MarkWebhookProcessed(ctx, eventID, msg); err != nil {
		log.Printf("billing: marking webhook event %d processed failed: %v", eventID, err)
	}
}
