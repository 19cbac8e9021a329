package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/streamnest/streamnest/internal/pkg/env"
)

// StripeGateway implements Gateway against the Stripe API.
type StripeGateway struct {
	webhookSecret string
}

// NewStripeGateway creates a gateway with explicit credentials.
func NewStripeGateway(secretKey, webhookSecret string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{webhookSecret: webhookSecret}
}

// NewStripeGatewayFromEnv creates a gateway from STRIPE_SECRET_KEY and
// STRIPE_WEBHOOK_SECRET.
func NewStripeGatewayFromEnv() *StripeGateway {
	return NewStripeGateway(
		env.GetEnv("STRIPE_SECRET_KEY", ""),
		env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
	)
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx

	c, err := customer.New(params)
	if err != nil {
		return "", mapStripeErr(err)
	}
	return c.ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*HostedSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:   stripe.String(p.CustomerID),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceRef),
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	if len(p.Metadata) > 0 {
		// Metadata goes onto the session and the subscription it creates,
		// so subscription webhooks can be mapped to an account even before
		// any billing record exists.
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: p.Metadata,
		}
		for k, v := range p.Metadata {
			params.AddMetadata(k, v)
		}
	}

	s, err := checkoutsession.New(params)
	if err != nil {
		return nil, mapStripeErr(err)
	}
	return &HostedSession{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) RetrieveCheckoutSession(ctx context.Context, id string) (*HostedSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := checkoutsession.Get(id, params)
	if err != nil {
		return nil, mapStripeErr(err)
	}
	hs := &HostedSession{ID: s.ID, URL: s.URL}
	if s.Subscription != nil {
		hs.SubscriptionID = s.Subscription.ID
	}
	return hs, nil
}

func (g *StripeGateway) RetrieveSubscription(ctx context.Context, id string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	s, err := subscription.Get(id, params)
	if err != nil {
		return nil, mapStripeErr(err)
	}

	out := &Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		Metadata:          s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		out.PeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		out.PeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		if item.Price != nil {
			out.PriceRef = item.Price.ID
			out.AmountCents = item.Price.UnitAmount
			out.Currency = string(item.Price.Currency)
			if item.Price.Recurring != nil {
				out.Interval = string(item.Price.Recurring.Interval)
			}
		}
	}
	return out, nil
}

// VerifyWebhook checks the Stripe-Signature header over the raw body and
// normalizes the event. This is the trust boundary: on signature failure
// nothing is parsed and nothing downstream runs.
func (g *StripeGateway) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return normalizeStripeEvent(event)
}

func normalizeStripeEvent(event stripe.Event) (*Event, error) {
	out := &Event{ID: event.ID, Kind: string(event.Type)}

	switch string(event.Type) {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		sub, err := parseSubscriptionPayload(event.Data.Raw)
		if err != nil {
			return nil, fmt.Errorf("%w: subscription payload: %v", ErrValidation, err)
		}
		switch string(event.Type) {
		case "customer.subscription.created":
			out.Kind = EventSubscriptionCreated
		case "customer.subscription.updated":
			out.Kind = EventSubscriptionUpdated
		default:
			out.Kind = EventSubscriptionDeleted
		}
		out.Subscription = sub
		out.SubscriptionID = sub.ID
		out.CustomerID = sub.CustomerID
	case "invoice.payment_succeeded", "invoice.payment_failed":
		inv, err := parseInvoicePayload(event.Data.Raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invoice payload: %v", ErrValidation, err)
		}
		if string(event.Type) == "invoice.payment_succeeded" {
			out.Kind = EventInvoicePaid
		} else {
			out.Kind = EventInvoiceFailed
		}
		out.CustomerID = inv.customerID
		out.SubscriptionID = inv.subscriptionID
		out.PeriodEnd = inv.periodEnd
	}
	// Unknown types keep their raw kind; the reconciler acknowledges and
	// ignores them.
	return out, nil
}

// Webhook payloads are parsed by hand instead of through the SDK's typed
// structs: the same fields moved around between Stripe API versions
// (subscription periods live on the items since the 2025 versions) and the
// handler has to accept either layout.
type stripeSubscriptionPayload struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				ID         string `json:"id"`
				UnitAmount int64  `json:"unit_amount"`
				Currency   string `json:"currency"`
				Recurring  struct {
					Interval string `json:"interval"`
				} `json:"recurring"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func parseSubscriptionPayload(raw []byte) (*Subscription, error) {
	var p stripeSubscriptionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, errors.New("missing subscription id")
	}

	sub := &Subscription{
		ID:                p.ID,
		CustomerID:        p.Customer,
		Status:            p.Status,
		CancelAtPeriodEnd: p.CancelAtPeriodEnd,
		Metadata:          p.Metadata,
	}
	periodStart, periodEnd := p.CurrentPeriodStart, p.CurrentPeriodEnd
	if len(p.Items.Data) > 0 {
		item := p.Items.Data[0]
		if item.CurrentPeriodStart > 0 {
			periodStart = item.CurrentPeriodStart
		}
		if item.CurrentPeriodEnd > 0 {
			periodEnd = item.CurrentPeriodEnd
		}
		sub.PriceRef = item.Price.ID
		sub.AmountCents = item.Price.UnitAmount
		sub.Currency = item.Price.Currency
		sub.Interval = item.Price.Recurring.Interval
	}
	if periodStart > 0 {
		sub.PeriodStart = time.Unix(periodStart, 0).UTC()
	}
	if periodEnd > 0 {
		sub.PeriodEnd = time.Unix(periodEnd, 0).UTC()
	}
	return sub, nil
}

type stripeInvoicePayload struct {
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	PeriodEnd int64 `json:"period_end"`
	Lines     struct {
		Data []struct {
			Period struct {
				End int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

type parsedInvoice struct {
	customerID     string
	subscriptionID string
	periodEnd      time.Time
}

func parseInvoicePayload(raw []byte) (*parsedInvoice, error) {
	var p stripeInvoicePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}

	inv := &parsedInvoice{customerID: p.Customer, subscriptionID: p.Subscription}
	if inv.subscriptionID == "" {
		inv.subscriptionID = p.Parent.SubscriptionDetails.Subscription
	}

	end := p.PeriodEnd
	for _, line := range p.Lines.Data {
		if line.Period.End > end {
			end = line.Period.End
		}
	}
	if end > 0 {
		inv.periodEnd = time.Unix(end, 0).UTC()
	}
	return inv, nil
}

// mapStripeErr folds transport failures into ErrGatewayUnavailable so the
// calling flow can treat them as retryable. API-level rejections (bad
// request, unknown object) pass through untouched.
func mapStripeErr(err error) error {
	if err == nil {
		return nil
	}
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		if sErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return err
	}
	// No typed response means the request never completed (timeout, DNS,
	// connection reset).
	return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
}
