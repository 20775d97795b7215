package repository

import (
	"gorm.io/gorm"

	"github.com/gastrodesk/gastrodesk/app/models"
)

type merchantRepository struct {
	db *gorm.DB
}

// NewMerchantRepository creates a new merchant repository instance
func NewMerchantRepository(db *gorm.DB) MerchantRepository {
	return &merchantRepository{db: db}
}

func (r *merchantRepository) Create(merchant *models.Merchant) error {
	return r.db.Create(merchant).Error
}

func (r *merchantRepository) GetByID(id uint) (*models.Merchant, error) {
	var merchant models.Merchant
	if err := r.db.First(&merchant, id).Error; err != nil {
		return nil, err
	}
	return &merchant, nil
}

func (r *merchantRepository) GetBySlug(slug string) (*models.Merchant, error) {
	var merchant models.Merchant
	if err := r.db.Where("slug = ?", slug).First(&merchant).Error; err != nil {
		return nil, err
	}
	return &merchant, nil
}

func (r *merchantRepository) List(offset, limit int) ([]models.Merchant, error) {
	var list []models.Merchant
	err := r.db.Order("name ASC").Offset(offset).Limit(limit).Find(&list).Error
	return list, err
}
