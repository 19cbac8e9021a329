package models

import "time"

const (
	PlanCodeFree     = "free"
	PlanCodeStandard = "standard"
	PlanCodePremium  = "premium"
)

const (
	BillingIntervalMonth = "month"
	BillingIntervalYear  = "year"
)

// Plan is a purchasable subscription tier with its payment-gateway price
// references per billing interval. Plans are read-only to the billing core;
// an entitlement may keep referencing a deactivated plan (grandfathering),
// but new checkouts require IsActive.
type Plan struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Code              string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"code"`
	Name              string    `gorm:"type:varchar(100);not null" json:"name" validate:"required,max=100"`
	Description       string    `gorm:"type:text" json:"description"`
	PriceRefMonthly   string    `gorm:"type:varchar(191);not null;default:''" json:"-"`
	PriceRefYearly    string    `gorm:"type:varchar(191);not null;default:''" json:"-"`
	AmountMonthCents  int64     `gorm:"not null;default:0" json:"amount_month_cents"`
	AmountYearCents   int64     `gorm:"not null;default:0" json:"amount_year_cents"`
	Currency          string    `gorm:"type:varchar(3);not null;default:'eur'" json:"currency"`
	IsActive          bool      `gorm:"default:true;index" json:"is_active"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PriceRefFor returns the gateway price identifier for a billing interval.
func (p *Plan) PriceRefFor(interval string) string {
	switch interval {
	case BillingIntervalYear:
		return p.PriceRefYearly
	default:
		return p.PriceRefMonthly
	}
}
