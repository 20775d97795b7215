package models

import "time"

// Payment methods. Everything except PaymentMethodGateway is a manual
// channel entered by an operator.
const (
	PaymentMethodCash         = "cash"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCard         = "card"
	PaymentMethodGateway      = "gateway"
)

// Payment is a recorded settlement against an invoice. Rows are
// append-only; once the owning invoice is locked no further payments may
// be created or edited for it.
type Payment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	InvoiceID uint      `gorm:"not null;index" json:"invoice_id"`
	Amount    int64     `gorm:"not null" json:"amount"`
	Method    string    `gorm:"type:varchar(20);not null" json:"method"`
	PaidAt    time.Time `gorm:"not null" json:"paid_at"`
	Reference string    `gorm:"type:varchar(191);default:''" json:"reference"`
	Notes     string    `gorm:"type:text" json:"notes"`
	CreatedBy string    `gorm:"type:varchar(100);default:''" json:"created_by"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	Invoice *Invoice `gorm:"foreignKey:InvoiceID" json:"-"`
}

// IsManualMethod reports whether m is an operator-entered channel.
func IsManualMethod(m string) bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodCard:
		return true
	}
	return false
}
