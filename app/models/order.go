package models

import "time"

// Order fulfillment states. Orders walk the forward chain
// received -> preparing -> ready -> delivered; canceled is reachable from
// any non-terminal state via an explicit administrative action.
const (
	OrderStatusReceived  = "received"
	OrderStatusPreparing = "preparing"
	OrderStatusReady     = "ready"
	OrderStatusDelivered = "delivered"
	OrderStatusCanceled  = "canceled"
)

// Order is a customer purchase request tracked through fulfillment.
// Status is the only field mutated after creation; orders are never
// deleted, only transitioned to a terminal status.
type Order struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	UUID        string      `gorm:"type:varchar(36);not null;uniqueIndex" json:"uuid"`
	MerchantID  uint        `gorm:"not null;index" json:"merchant_id"`
	Status      string      `gorm:"type:varchar(16);not null;default:'received';index" json:"status"`
	Location    string      `gorm:"type:varchar(100);default:''" json:"location"`
	TotalAmount int64       `gorm:"not null;default:0" json:"total_amount"`
	Items       []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	CreatedAt   time.Time   `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time   `gorm:"autoUpdateTime" json:"updated_at"`

	Merchant *Merchant `gorm:"foreignKey:MerchantID" json:"-"`
}

// OrderItem is a single order line. Immutable once the order exists.
type OrderItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   uint      `gorm:"not null;index" json:"order_id"`
	ProductID uint      `gorm:"not null;index" json:"product_id"`
	Name      string    `gorm:"type:varchar(200);not null" json:"name"`
	Quantity  int       `gorm:"not null" json:"quantity"`
	UnitPrice int64     `gorm:"not null" json:"unit_price"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
