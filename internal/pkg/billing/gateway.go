package billing

import "context"

// CheckoutParams describes a hosted checkout session request. The metadata
// travels onto both the session and the resulting subscription so webhook
// events can be mapped back to an account before any billing record exists.
type CheckoutParams struct {
	CustomerID string
	PriceRef   string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// HostedSession is the gateway's handle for one checkout transaction.
type HostedSession struct {
	ID             string
	URL            string
	SubscriptionID string
}

// Gateway is the opaque payment provider this system talks to. All calls
// are synchronous with a bounded timeout via ctx and fail closed; retries
// are the calling flow's responsibility.
type Gateway interface {
	// CreateCustomer provisions an external customer identity.
	CreateCustomer(ctx context.Context, email, name string) (string, error)

	// CreateCheckoutSession starts a hosted checkout transaction.
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*HostedSession, error)

	// RetrieveCheckoutSession re-fetches a session, including the
	// subscription reference once checkout completed.
	RetrieveCheckoutSession(ctx context.Context, id string) (*HostedSession, error)

	// RetrieveSubscription fetches the canonical subscription object.
	RetrieveSubscription(ctx context.Context, id string) (*Subscription, error)

	// VerifyWebhook checks the signature over the raw, unparsed body and
	// returns the normalized event. A signature failure wraps
	// ErrSignatureInvalid and nothing downstream may run on the payload.
	VerifyWebhook(payload []byte, signatureHeader string) (*Event, error)
}
