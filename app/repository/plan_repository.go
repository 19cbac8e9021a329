package repository

import (
	"github.com/streamnest/streamnest/app/models"
	"gorm.io/gorm"
)

// planRepository implements the PlanRepository interface
type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository instance
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

// GetByCode retrieves a plan by its code, active or not. Callers that only
// accept purchasable plans must check IsActive themselves.
func (r *planRepository) GetByCode(code string) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.Where("code = ?", code).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetByPriceRef resolves a gateway price identifier back to its plan.
func (r *planRepository) GetByPriceRef(priceRef string) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.Where("price_ref_monthly = ? OR price_ref_yearly = ?", priceRef, priceRef).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListActive returns all purchasable plans
func (r *planRepository) ListActive() ([]models.Plan, error) {
	var plans []models.Plan
	err := r.db.Where("is_active = ?", true).Order("amount_month_cents ASC").Find(&plans).Error
	return plans, err
}
