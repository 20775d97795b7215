package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/gastrodesk/gastrodesk/app/models"
	"github.com/gastrodesk/gastrodesk/internal/pkg/orders"
)

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository instance
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create inserts the order together with its line items in one
// transaction; a failing item insert rolls back the order row too.
func (r *orderRepository) Create(order *models.Order) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(order).Error
	})
}

func (r *orderRepository) GetByID(id uint) (*models.Order, error) {
	var order models.Order
	if err := r.db.Preload("Items").First(&order, id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByUUID(uuid string) (*models.Order, error) {
	var order models.Order
	if err := r.db.Preload("Items").Where("uuid = ?", uuid).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetOrderStatus(orderID uint) (string, error) {
	var order models.Order
	if err := r.db.Select("status").First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", orders.ErrOrderNotFound
		}
		return "", err
	}
	return order.Status, nil
}

// UpdateOrderStatusIf is the conditional status write: it only applies
// when the row still carries the expected current status, so of two racing
// callers exactly one wins.
func (r *orderRepository) UpdateOrderStatusIf(orderID uint, from, to string) (bool, error) {
	tx := r.db.Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Update("status", to)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *orderRepository) ListByMerchant(merchantID uint, offset, limit int) ([]models.Order, error) {
	var list []models.Order
	err := r.db.Preload("Items").
		Where("merchant_id = ?", merchantID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *orderRepository) CountByMerchant(merchantID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Order{}).Where("merchant_id = ?", merchantID).Count(&count).Error
	return count, err
}
