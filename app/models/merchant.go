package models

import "time"

// Billing standing values derived from subscription/invoice state. The
// derivation itself is configurable policy; consumers treat the stored
// value as authoritative.
const (
	StandingActive     = "active"
	StandingRestricted = "restricted"
	StandingBlocked    = "blocked"
)

// Merchant is a platform client operating one or more points of sale.
type Merchant struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Name              string     `gorm:"type:varchar(200);not null" json:"name"`
	Slug              string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"slug"`
	BillingStanding   string     `gorm:"type:varchar(16);not null;default:'active';index" json:"billing_standing"`
	StandingReason    string     `gorm:"type:varchar(255);default:''" json:"standing_reason"`
	StandingChangedAt *time.Time `gorm:"type:timestamp;default:null" json:"standing_changed_at,omitempty"`
	OrderCount        int64      `gorm:"not null;default:0" json:"order_count"`
	RevenueTotal      int64      `gorm:"not null;default:0" json:"revenue_total"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
