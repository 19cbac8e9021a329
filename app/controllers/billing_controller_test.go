package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/streamnest/streamnest/app/models"
	"github.com/streamnest/streamnest/internal/pkg/billing"
)

type stubStore struct {
	events map[string]*models.BillingWebhookEvent
}

func newStubStore() *stubStore {
	return &stubStore{events: map[string]*models.BillingWebhookEvent{}}
}

func (s *stubStore) GetUser(context.Context, uint) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubStore) GetEntitlement(context.Context, uint) (*models.Entitlement, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubStore) AccountIDForCustomer(context.Context, string) (uint, error) {
	return 0, gorm.ErrRecordNotFound
}

func (s *stubStore) ClaimCustomerID(_ context.Context, _ uint, customerID string) (string, error) {
	return customerID, nil
}

func (s *stubStore) GetBillingRecord(context.Context, string) (*models.BillingRecord, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubStore) LatestBillingRecordForUser(context.Context, uint) (*models.BillingRecord, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubStore) ApplyEntitlement(context.Context, uint, billing.EntitlementPatch) (bool, error) {
	return true, nil
}

func (s *stubStore) UpsertBillingRecord(context.Context, string, billing.RecordState) (bool, error) {
	return true, nil
}

func (s *stubStore) CreateWebhookEventIfNotExists(_ context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	if existing, ok := s.events[event.ProviderEventID]; ok {
		return false, existing, nil
	}
	event.ID = uint(len(s.events) + 1)
	s.events[event.ProviderEventID] = event
	return true, event, nil
}

func (s *stubStore) MarkWebhookProcessed(_ context.Context, id uint, processingError string) error {
	for _, ev := range s.events {
		if ev.ID == id {
			now := time.Now()
			ev.ProcessedAt = &now
			ev.ProcessingError = processingError
		}
	}
	return nil
}

type stubGateway struct {
	event *billing.Event
	err   error
}

func (g *stubGateway) CreateCustomer(context.Context, string, string) (string, error) {
	return "cus_stub", nil
}

func (g *stubGateway) CreateCheckoutSession(context.Context, billing.CheckoutParams) (*billing.HostedSession, error) {
	return &billing.HostedSession{ID: "cs_stub"}, nil
}

func (g *stubGateway) RetrieveCheckoutSession(_ context.Context, id string) (*billing.HostedSession, error) {
	return &billing.HostedSession{ID: id}, nil
}

func (g *stubGateway) RetrieveSubscription(context.Context, string) (*billing.Subscription, error) {
	return nil, billing.ErrNotFound
}

func (g *stubGateway) VerifyWebhook([]byte, string) (*billing.Event, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.event, nil
}

func webhookTestApp(gw billing.Gateway) *fiber.App {
	SetBillingService(billing.NewService(newStubStore(), gw, nil, nil, "", ""))
	app := fiber.New()
	app.Post("/webhooks/billing", HandleBillingWebhook)
	return app
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	app := webhookTestApp(&stubGateway{err: billing.ErrSignatureInvalid})

	req := httptest.NewRequest("POST", "/webhooks/billing", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", "t=1,v1=bogus")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "invalid_signature", body["error"])
}

func TestWebhookAcknowledgesUnknownEventKind(t *testing.T) {
	app := webhookTestApp(&stubGateway{event: &billing.Event{ID: "evt_1", Kind: "charge.refunded"}})

	req := httptest.NewRequest("POST", "/webhooks/billing", bytes.NewReader([]byte(`{"id":"evt_1"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", "t=1,v1=valid")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["received"])
	assert.Equal(t, true, body["ignored"])
}
