package models

import "time"

const (
	EntitlementStatusFree      = "free"
	EntitlementStatusActive    = "active"
	EntitlementStatusCancelled = "cancelled"
	EntitlementStatusInactive  = "inactive"
)

// Entitlement is the single live record of what an account may access.
// It is embedded into User (entitlement_* columns) so there is exactly one
// copy per account, and it is only ever written by the billing reconciler.
type Entitlement struct {
	Plan        string     `gorm:"type:varchar(50);not null;default:'free'" json:"plan"`
	Status      string     `gorm:"type:varchar(32);not null;default:'free'" json:"status"`
	PeriodStart *time.Time `gorm:"type:timestamp;default:null" json:"period_start,omitempty"`
	PeriodEnd   *time.Time `gorm:"type:timestamp;default:null" json:"period_end,omitempty"`
	AutoRenew   bool       `gorm:"default:false" json:"auto_renew"`
	CustomerID  string     `gorm:"type:varchar(191);not null;default:'';index" json:"-"`
	CancelledAt *time.Time `gorm:"type:timestamp;default:null" json:"cancelled_at,omitempty"`
}

// NewFreeEntitlement is the state every account starts in.
func NewFreeEntitlement() Entitlement {
	return Entitlement{
		Plan:   PlanCodeFree,
		Status: EntitlementStatusFree,
	}
}

// HasAccess reports whether the entitlement grants paid access at the given
// time. A cancelled subscription keeps access until its period lapses.
func (e Entitlement) HasAccess(now time.Time) bool {
	if e.Status != EntitlementStatusActive && e.Status != EntitlementStatusCancelled {
		return false
	}
	return e.PeriodEnd != nil && now.Before(*e.PeriodEnd)
}
