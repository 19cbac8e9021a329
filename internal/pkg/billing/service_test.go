package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamnest/streamnest/app/models"
)

type fakeGateway struct {
	customers     int
	checkouts     []CheckoutParams
	session       *HostedSession
	subscriptions map[string]*Subscription
	webhookEvent  *Event
	webhookErr    error
}

func (g *fakeGateway) CreateCustomer(_ context.Context, _, _ string) (string, error) {
	g.customers++
	return "cus_fake", nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, p CheckoutParams) (*HostedSession, error) {
	g.checkouts = append(g.checkouts, p)
	return &HostedSession{ID: "cs_fake", URL: "https://pay.example/cs_fake"}, nil
}

func (g *fakeGateway) RetrieveCheckoutSession(_ context.Context, id string) (*HostedSession, error) {
	if g.session != nil && g.session.ID == id {
		return g.session, nil
	}
	return &HostedSession{ID: id}, nil
}

func (g *fakeGateway) RetrieveSubscription(_ context.Context, id string) (*Subscription, error) {
	sub, ok := g.subscriptions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sub, nil
}

func (g *fakeGateway) VerifyWebhook(_ []byte, _ string) (*Event, error) {
	if g.webhookErr != nil {
		return nil, g.webhookErr
	}
	return g.webhookEvent, nil
}

type memSessions struct {
	byID map[string]*StoredCheckoutSession
}

func newMemSessions() *memSessions {
	return &memSessions{byID: map[string]*StoredCheckoutSession{}}
}

func (m *memSessions) Save(_ context.Context, s *StoredCheckoutSession) error {
	cp := *s
	m.byID[s.SessionID] = &cp
	return nil
}

func (m *memSessions) Get(_ context.Context, sessionID string) (*StoredCheckoutSession, error) {
	s, ok := m.byID[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func newTestService(store Store, gw Gateway) (*Service, *memSessions) {
	sessions := newMemSessions()
	svc := NewService(store, gw, testPlans, sessions, "https://app.example/ok", "https://app.example/cancel")
	return svc, sessions
}

func TestStartCheckoutForUnknownPlan(t *testing.T) {
	store := newMemStore(testUser(1))
	svc, _ := newTestService(store, &fakeGateway{})

	_, err := svc.StartCheckout(context.Background(), 1, "platinum", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStartCheckoutStoresCorrelation(t *testing.T) {
	store := newMemStore(testUser(1))
	gw := &fakeGateway{}
	svc, sessions := newTestService(store, gw)

	hosted, err := svc.StartCheckout(context.Background(), 1, models.PlanCodeStandard, "year")
	require.NoError(t, err)
	assert.Equal(t, "cs_fake", hosted.ID)
	assert.NotEmpty(t, hosted.URL)

	// Checkout metadata has to carry the account back through the gateway.
	require.Len(t, gw.checkouts, 1)
	assert.Equal(t, "price_std_y", gw.checkouts[0].PriceRef)
	assert.Equal(t, "1", gw.checkouts[0].Metadata["account_id"])
	assert.Equal(t, models.PlanCodeStandard, gw.checkouts[0].Metadata["plan_code"])

	stored, err := sessions.Get(context.Background(), "cs_fake")
	require.NoError(t, err)
	assert.Equal(t, uint(1), stored.AccountID)
	assert.Equal(t, models.BillingIntervalYear, stored.Interval)

	// Starting checkout never grants anything.
	ent, _ := store.GetEntitlement(context.Background(), 1)
	assert.Equal(t, models.EntitlementStatusFree, ent.Status)
}

func TestEnsureCustomerReusesExistingID(t *testing.T) {
	user := testUser(1)
	user.Entitlement.CustomerID = "cus_existing"
	store := newMemStore(user)
	gw := &fakeGateway{}
	svc, _ := newTestService(store, gw)

	id, err := svc.EnsureCustomer(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "cus_existing", id)
	assert.Zero(t, gw.customers)
}

func TestEnsureCustomerClaimsOnce(t *testing.T) {
	store := newMemStore(testUser(1))
	gw := &fakeGateway{}
	svc, _ := newTestService(store, gw)

	first, err := svc.EnsureCustomer(context.Background(), 1)
	require.NoError(t, err)
	second, err := svc.EnsureCustomer(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, gw.customers)
}

func TestConfirmCheckoutGrantsAndIsIdempotent(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	end := now.AddDate(0, 1, 0)
	store := newMemStore(testUser(1))
	gw := &fakeGateway{
		session: &HostedSession{ID: "cs_fake", SubscriptionID: "sub_1"},
		subscriptions: map[string]*Subscription{
			"sub_1": {
				ID:          "sub_1",
				CustomerID:  "cus_fake",
				PriceRef:    "price_std_m",
				Status:      "active",
				PeriodStart: now,
				PeriodEnd:   end,
				AmountCents: 999,
				Currency:    "eur",
				Interval:    "month",
			},
		},
	}
	svc, sessions := newTestService(store, gw)
	require.NoError(t, sessions.Save(context.Background(), &StoredCheckoutSession{
		SessionID: "cs_fake", AccountID: 1, PlanCode: models.PlanCodeStandard, Interval: "month",
	}))

	ent, err := svc.ConfirmCheckout(context.Background(), 1, "cs_fake")
	require.NoError(t, err)
	assert.Equal(t, models.EntitlementStatusActive, ent.Status)
	assert.Equal(t, models.PlanCodeStandard, ent.Plan)
	require.NotNil(t, ent.PeriodEnd)
	assert.True(t, ent.PeriodEnd.Equal(end))

	// A page refresh replays the confirmation without damage.
	ent, err = svc.ConfirmCheckout(context.Background(), 1, "cs_fake")
	require.NoError(t, err)
	assert.Equal(t, models.EntitlementStatusActive, ent.Status)
	assert.Len(t, store.records, 1)
}

func TestConfirmCheckoutForeignSession(t *testing.T) {
	store := newMemStore(testUser(1), testUser(2))
	svc, sessions := newTestService(store, &fakeGateway{})
	require.NoError(t, sessions.Save(context.Background(), &StoredCheckoutSession{
		SessionID: "cs_fake", AccountID: 2,
	}))

	_, err := svc.ConfirmCheckout(context.Background(), 1, "cs_fake")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConfirmCheckoutBeforeCompletion(t *testing.T) {
	store := newMemStore(testUser(1))
	gw := &fakeGateway{session: &HostedSession{ID: "cs_fake"}}
	svc, sessions := newTestService(store, gw)
	require.NoError(t, sessions.Save(context.Background(), &StoredCheckoutSession{
		SessionID: "cs_fake", AccountID: 1,
	}))

	_, err := svc.ConfirmCheckout(context.Background(), 1, "cs_fake")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestWebhookSignatureFailureHasNoSideEffects(t *testing.T) {
	store := newMemStore(testUser(1))
	gw := &fakeGateway{webhookErr: ErrSignatureInvalid}
	svc, _ := newTestService(store, gw)

	_, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "bad")
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	assert.Empty(t, store.events)
	assert.Empty(t, store.records)
	ent, _ := store.GetEntitlement(context.Background(), 1)
	assert.Equal(t, models.EntitlementStatusFree, ent.Status)
}

func TestWebhookAppliesAndDeduplicates(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	end := now.AddDate(0, 1, 0)
	user := testUser(1)
	user.Entitlement.CustomerID = "cus_1"
	store := newMemStore(user)
	gw := &fakeGateway{webhookEvent: &Event{
		ID:             "evt_1",
		Kind:           EventSubscriptionCreated,
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		Subscription: &Subscription{
			ID: "sub_1", CustomerID: "cus_1", PriceRef: "price_std_m",
			Status: "active", PeriodStart: now, PeriodEnd: end,
		},
	}}
	svc, _ := newTestService(store, gw)

	res, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.True(t, res.Received)
	assert.False(t, res.Duplicate)

	ent, _ := store.GetEntitlement(context.Background(), 1)
	assert.Equal(t, models.EntitlementStatusActive, ent.Status)
	require.NotNil(t, store.events["evt_1"].ProcessedAt)

	// Redelivery of the same event id is acknowledged without reprocessing.
	res, err = svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Len(t, store.events, 1)
}

func TestWebhookResolvesAccountFromMetadata(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	store := newMemStore(testUser(7))
	gw := &fakeGateway{webhookEvent: &Event{
		ID:             "evt_meta",
		Kind:           EventSubscriptionCreated,
		CustomerID:     "cus_unknown",
		SubscriptionID: "sub_7",
		Subscription: &Subscription{
			ID: "sub_7", CustomerID: "cus_unknown", PriceRef: "price_std_m",
			Status: "active", PeriodEnd: now.AddDate(0, 1, 0),
			Metadata: map[string]string{"account_id": "7"},
		},
	}}
	svc, _ := newTestService(store, gw)

	res, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.True(t, res.Received)
	assert.False(t, res.Ignored)

	ent, _ := store.GetEntitlement(context.Background(), 7)
	assert.Equal(t, models.EntitlementStatusActive, ent.Status)
}

func TestWebhookUnknownCustomerIsAcknowledged(t *testing.T) {
	store := newMemStore(testUser(1))
	gw := &fakeGateway{webhookEvent: &Event{
		ID:             "evt_stranger",
		Kind:           EventSubscriptionDeleted,
		CustomerID:     "cus_stranger",
		SubscriptionID: "sub_x",
	}}
	svc, _ := newTestService(store, gw)

	res, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.True(t, res.Received)
	assert.True(t, res.Ignored)
	assert.Empty(t, store.records)
}

func TestWebhookUnknownKindIsAcknowledged(t *testing.T) {
	store := newMemStore(testUser(1))
	gw := &fakeGateway{webhookEvent: &Event{ID: "evt_odd", Kind: "charge.refunded"}}
	svc, _ := newTestService(store, gw)

	res, err := svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
	require.NoError(t, err)
	assert.True(t, res.Received)
	assert.True(t, res.Ignored)
	require.NotNil(t, store.events["evt_odd"])
	assert.NotNil(t, store.events["evt_odd"].ProcessedAt)
}
