package repository

import (
	"github.com/streamnest/streamnest/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// PlanRepository defines the read-only interface to the plan catalog
type PlanRepository interface {
	GetByCode(code string) (*models.Plan, error)
	GetByPriceRef(priceRef string) (*models.Plan, error)
	ListActive() ([]models.Plan, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User UserRepository
	Plan PlanRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User: NewUserRepository(db),
		Plan: NewPlanRepository(db),
	}
}
