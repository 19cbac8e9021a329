package models

import "time"

const (
	BillingStatusActive     = "active"
	BillingStatusTrialing   = "trialing"
	BillingStatusPastDue    = "past_due"
	BillingStatusCancelled  = "cancelled"
	BillingStatusIncomplete = "incomplete"
	BillingStatusUnpaid     = "unpaid"
)

// BillingRecord mirrors one gateway subscription lifecycle. There is exactly
// one row per external subscription id; a re-subscribing account gets a new
// id and thus a new row, which gives an implicit append-only billing history.
// Rows are never deleted - cancellation is a field update.
type BillingRecord struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_billing_records_provider_subid" json:"provider_subscription_id"`
	UserID                 uint       `gorm:"not null;index" json:"user_id"`
	PlanCode               string     `gorm:"type:varchar(50);not null;default:'free'" json:"plan_code"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	CurrentPeriodStart     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	AmountCents            int64      `gorm:"not null;default:0" json:"amount_cents"`
	Currency               string     `gorm:"type:varchar(3);not null;default:'eur'" json:"currency"`
	BillingInterval        string     `gorm:"type:varchar(16);not null;default:'month'" json:"billing_interval"`
	CancelledAt            *time.Time `gorm:"type:timestamp;default:null" json:"cancelled_at,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
