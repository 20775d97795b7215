package models

import "time"

const (
	InvoiceStatusOpen = "open"
	InvoiceStatusSent = "sent"
	InvoiceStatusPaid = "paid"
	InvoiceStatusVoid = "void"
)

// Invoice is a per-merchant, per-period platform-fee bill. GrossAmount is
// what the merchant's customers paid in the period, PlatformFee what the
// merchant owes the platform. Once LockedAt is set by the month close the
// invoice and its payments are immutable.
type Invoice struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	MerchantID        uint       `gorm:"not null;index:idx_invoices_merchant_period,priority:1" json:"merchant_id"`
	Period            string     `gorm:"type:varchar(7);not null;index:idx_invoices_merchant_period,priority:2;index" json:"period"`
	GrossAmount       int64      `gorm:"not null;default:0" json:"gross_amount"`
	PlatformFee       int64      `gorm:"not null;default:0" json:"platform_fee"`
	Status            string     `gorm:"type:varchar(10);not null;default:'open';index" json:"status"`
	GatewayInvoiceRef string     `gorm:"type:varchar(191);default:'';index" json:"gateway_invoice_ref"`
	PaidAt            *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	LockedAt          *time.Time `gorm:"type:timestamp;default:null" json:"locked_at,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Merchant *Merchant `gorm:"foreignKey:MerchantID" json:"-"`
}

// AmountDue is the settlement bound payments are reconciled against:
// gross minus the platform fee, floored at zero.
func (i *Invoice) AmountDue() int64 {
	due := i.GrossAmount - i.PlatformFee
	if due < 0 {
		return 0
	}
	return due
}

// IsLocked reports whether the invoice belongs to a closed period.
func (i *Invoice) IsLocked() bool {
	return i.LockedAt != nil
}
