package models

import "time"

const (
	PaymentModeManual = "manual"
	PaymentModeAuto   = "auto"
)

const (
	BillingCadenceMonthly = "monthly"
	BillingCadenceYearly  = "yearly"
)

// Subscription holds a merchant's billing configuration. Exactly one row
// per merchant; toggled by administrative operations, never deleted.
type Subscription struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	MerchantID         uint      `gorm:"not null;uniqueIndex" json:"merchant_id"`
	BillingCadence     string    `gorm:"type:varchar(16);not null;default:'monthly'" json:"billing_cadence"`
	PaymentMode        string    `gorm:"type:varchar(10);not null;default:'manual';index" json:"payment_mode"`
	GatewayCustomerRef string    `gorm:"type:varchar(191);default:''" json:"gateway_customer_ref"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Merchant *Merchant `gorm:"foreignKey:MerchantID" json:"-"`
}
