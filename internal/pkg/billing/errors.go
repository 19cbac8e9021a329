package billing

import "errors"

// Error taxonomy for the billing core. Controllers map these onto HTTP
// statuses; everything is matched with errors.Is so wrapped context survives.
var (
	// ErrValidation covers user-correctable input: unknown or inactive
	// plan, missing price for the requested interval, malformed bodies.
	ErrValidation = errors.New("billing: validation failed")

	// ErrNotFound covers unknown checkout sessions and sessions owned by a
	// different account.
	ErrNotFound = errors.New("billing: not found")

	// ErrGatewayUnavailable marks gateway network/timeout failures. The
	// caller may retry; no entitlement is ever granted on its basis.
	ErrGatewayUnavailable = errors.New("billing: payment gateway unavailable")

	// ErrSignatureInvalid is the webhook trust boundary. It is never
	// swallowed and always results in a rejected request with zero side
	// effects.
	ErrSignatureInvalid = errors.New("billing: webhook signature invalid")
)
