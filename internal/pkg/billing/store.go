package billing

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/streamnest/streamnest/app/models"
)

// Store is the entitlement store: the only mutable shared state of the
// billing core. All writes go through the reconciler; no other component
// touches entitlement or billing record columns directly.
//
// ApplyEntitlement and UpsertBillingRecord are each an atomic guarded
// compare-and-set on the period-end timestamp: an incoming value older than
// the stored one means the event is a stale replay and the write is refused
// (applied == false). Equal values apply idempotently. This guard, not
// locking, is what lets the client-confirmation path and the webhook path
// race across processes without corrupting each other.
type Store interface {
	GetUser(ctx context.Context, accountID uint) (*models.User, error)
	GetEntitlement(ctx context.Context, accountID uint) (*models.Entitlement, error)

	// AccountIDForCustomer resolves an external customer id to an account.
	// Returns gorm.ErrRecordNotFound when the customer is unknown here.
	AccountIDForCustomer(ctx context.Context, customerID string) (uint, error)

	// ClaimCustomerID persists a freshly provisioned customer id with an
	// optimistic empty-check and returns the id that actually won: the
	// loser of a concurrent claim gets the winner's id back.
	ClaimCustomerID(ctx context.Context, accountID uint, customerID string) (string, error)

	GetBillingRecord(ctx context.Context, subscriptionID string) (*models.BillingRecord, error)
	LatestBillingRecordForUser(ctx context.Context, accountID uint) (*models.BillingRecord, error)

	ApplyEntitlement(ctx context.Context, accountID uint, patch EntitlementPatch) (bool, error)
	UpsertBillingRecord(ctx context.Context, subscriptionID string, state RecordState) (bool, error)

	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates the entitlement store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) GetUser(ctx context.Context, accountID uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, accountID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *gormStore) GetEntitlement(ctx context.Context, accountID uint) (*models.Entitlement, error) {
	user, err := s.GetUser(ctx, accountID)
	if err != nil {
		return nil, err
	}
	ent := user.Entitlement
	return &ent, nil
}

func (s *gormStore) AccountIDForCustomer(ctx context.Context, customerID string) (uint, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Select("id").
		Where("entitlement_customer_id = ?", customerID).
		First(&user).Error
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

func (s *gormStore) ClaimCustomerID(ctx context.Context, accountID uint, customerID string) (string, error) {
	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND entitlement_customer_id = ''", accountID).
		Update("entitlement_customer_id", customerID)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected > 0 {
		return customerID, nil
	}

	// Lost the race - re-read and reuse the winner's id.
	user, err := s.GetUser(ctx, accountID)
	if err != nil {
		return "", err
	}
	if user.Entitlement.CustomerID == "" {
		return "", errors.New("customer id claim failed without a winner")
	}
	return user.Entitlement.CustomerID, nil
}

func (s *gormStore) GetBillingRecord(ctx context.Context, subscriptionID string) (*models.BillingRecord, error) {
	var rec models.BillingRecord
	err := s.db.WithContext(ctx).
		Where("provider_subscription_id = ?", subscriptionID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *gormStore) LatestBillingRecordForUser(ctx context.Context, accountID uint) (*models.BillingRecord, error) {
	var rec models.BillingRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", accountID).
		Order("id DESC").
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ApplyEntitlement writes the patch in a single conditional UPDATE. When the
// patch carries a period end the statement only matches while the stored
// period end is not newer, so a stale write affects zero rows.
func (s *gormStore) ApplyEntitlement(ctx context.Context, accountID uint, patch EntitlementPatch) (bool, error) {
	updates := map[string]interface{}{}
	if patch.Plan != "" {
		updates["entitlement_plan"] = patch.Plan
	}
	if patch.Status != "" {
		updates["entitlement_status"] = patch.Status
		updates["entitlement_auto_renew"] = patch.AutoRenew
	}
	if patch.PeriodStart != nil {
		updates["entitlement_period_start"] = patch.PeriodStart
	}
	if patch.PeriodEnd != nil {
		updates["entitlement_period_end"] = patch.PeriodEnd
	}
	if patch.CustomerID != "" {
		updates["entitlement_customer_id"] = patch.CustomerID
	}
	if patch.CancelledAt != nil {
		updates["entitlement_cancelled_at"] = patch.CancelledAt
	} else if patch.ClearCancelledAt {
		updates["entitlement_cancelled_at"] = nil
	}
	if len(updates) == 0 {
		return true, nil
	}

	q := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", accountID)
	if patch.PeriodEnd != nil {
		q = q.Where("entitlement_period_end IS NULL OR entitlement_period_end <= ?", patch.PeriodEnd)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpsertBillingRecord creates or updates the one record for an external
// subscription id. The stored period end is read under a row lock and
// compared against the incoming one; older incoming values are refused.
func (s *gormStore) UpsertBillingRecord(ctx context.Context, subscriptionID string, state RecordState) (bool, error) {
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.BillingRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("provider_subscription_id = ?", subscriptionID).
			First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec = models.BillingRecord{
				ProviderSubscriptionID: subscriptionID,
				UserID:                 state.UserID,
				PlanCode:               state.PlanCode,
				Status:                 state.Status,
				CurrentPeriodStart:     state.PeriodStart,
				CurrentPeriodEnd:       state.PeriodEnd,
				AmountCents:            state.AmountCents,
				Currency:               state.Currency,
				BillingInterval:        state.Interval,
				CancelledAt:            state.CancelledAt,
			}
			if rec.Status == "" {
				rec.Status = models.BillingStatusActive
			}
			if rec.Currency == "" {
				rec.Currency = "eur"
			}
			if rec.BillingInterval == "" {
				rec.BillingInterval = models.BillingIntervalMonth
			}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
			applied = true
			return nil
		}
		if err != nil {
			return err
		}

		if staleAgainst(rec.CurrentPeriodEnd, state.PeriodEnd) {
			return nil
		}

		updates := map[string]interface{}{}
		if state.UserID != 0 {
			updates["user_id"] = state.UserID
		}
		if state.PlanCode != "" {
			updates["plan_code"] = state.PlanCode
		}
		if state.Status != "" {
			updates["status"] = state.Status
		}
		if state.PeriodStart != nil {
			updates["current_period_start"] = state.PeriodStart
		}
		if state.PeriodEnd != nil {
			updates["current_period_end"] = state.PeriodEnd
		}
		if state.AmountCents > 0 {
			updates["amount_cents"] = state.AmountCents
		}
		if state.Currency != "" {
			updates["currency"] = state.Currency
		}
		if state.Interval != "" {
			updates["billing_interval"] = state.Interval
		}
		if state.CancelledAt != nil {
			updates["cancelled_at"] = state.CancelledAt
		} else if state.ClearCancelledAt {
			updates["cancelled_at"] = nil
		}
		if len(updates) > 0 {
			if err := tx.Model(&models.BillingRecord{}).
				Where("id = ?", rec.ID).
				Updates(updates).Error; err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	return applied, err
}

// staleAgainst reports whether an incoming period end is strictly older
// than the stored one. Missing values on either side pass: events without
// period information are status-only transitions.
func staleAgainst(stored *time.Time, incoming *time.Time) bool {
	if stored == nil || incoming == nil {
		return false
	}
	return incoming.Before(*stored)
}

func (s *gormStore) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := s.db.WithContext(ctx).
		Where("provider_event_id = ?", event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (s *gormStore) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return s.db.WithContext(ctx).
		Model(&models.BillingWebhookEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
}
