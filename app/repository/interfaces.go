package repository

import (
	"github.com/gastrodesk/gastrodesk/app/models"
	"gorm.io/gorm"
)

// OrderRepository defines the interface for order-related database operations
type OrderRepository interface {
	Create(order *models.Order) error
	GetByID(id uint) (*models.Order, error)
	GetByUUID(uuid string) (*models.Order, error)
	GetOrderStatus(orderID uint) (string, error)
	UpdateOrderStatusIf(orderID uint, from, to string) (bool, error)
	ListByMerchant(merchantID uint, offset, limit int) ([]models.Order, error)
	CountByMerchant(merchantID uint) (int64, error)
}

// MerchantRepository defines the interface for merchant-related database operations
type MerchantRepository interface {
	Create(merchant *models.Merchant) error
	GetByID(id uint) (*models.Merchant, error)
	GetBySlug(slug string) (*models.Merchant, error)
	List(offset, limit int) ([]models.Merchant, error)
}

// Repositories holds all repository instances
type Repositories struct {
	Order    OrderRepository
	Merchant MerchantRepository
}

// NewRepositories creates all repositories with the given database connection
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Order:    NewOrderRepository(db),
		Merchant: NewMerchantRepository(db),
	}
}
