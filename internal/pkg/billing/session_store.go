package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	checkoutSessionKeyPrefix = "billing:checkout:"
	checkoutSessionTTL       = 24 * time.Hour
)

// CheckoutSessionStore keeps the short-lived session-to-account correlation
// needed to validate the browser-redirect confirmation. Checkout sessions
// are gateway-owned and ephemeral, so they live in the cache with a TTL
// instead of getting a database table.
type CheckoutSessionStore interface {
	Save(ctx context.Context, s *StoredCheckoutSession) error
	// Get returns ErrNotFound for unknown or expired sessions.
	Get(ctx context.Context, sessionID string) (*StoredCheckoutSession, error)
}

type redisCheckoutSessionStore struct {
	client *redis.Client
}

// NewCheckoutSessionStore creates a redis-backed checkout session store.
func NewCheckoutSessionStore(client *redis.Client) CheckoutSessionStore {
	return &redisCheckoutSessionStore{client: client}
}

func (s *redisCheckoutSessionStore) Save(ctx context.Context, cs *StoredCheckoutSession) error {
	if cs == nil || cs.SessionID == "" {
		return fmt.Errorf("%w: checkout session id is required", ErrValidation)
	}
	b, err := json.Marshal(cs)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, checkoutSessionKeyPrefix+cs.SessionID, b, checkoutSessionTTL).Err()
}

func (s *redisCheckoutSessionStore) Get(ctx context.Context, sessionID string) (*StoredCheckoutSession, error) {
	b, err := s.client.Get(ctx, checkoutSessionKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: unknown checkout session", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var cs StoredCheckoutSession
	if err := json.Unmarshal(b, &cs); err != nil {
		return nil, err
	}
	return &cs, nil
}
