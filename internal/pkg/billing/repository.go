package billing

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gastrodesk/gastrodesk/app/models"
)

// Repository provides the DB operations used by the billing components.
type Repository interface {
	// Invoices
	GetInvoice(id uint) (*models.Invoice, error)
	GetInvoiceByGatewayRef(ref string) (*models.Invoice, error)
	SetInvoiceGatewayRef(id uint, ref string) error
	SetInvoiceStatus(id uint, status string) error
	MarkInvoicePaid(id uint, paidAt time.Time) error
	LockInvoicesForPeriod(period string, at time.Time) (int64, error)
	FindOpenInvoice(merchantID uint, period string) (*models.Invoice, error)

	// Payments
	CreatePayment(p *models.Payment) error
	SumPayments(invoiceID uint) (int64, error)
	HasPaymentWithReference(invoiceID uint, reference string) (bool, error)

	// Webhook audit + queue
	CreateWebhookEventIfNotExists(ev *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	EnqueueWebhookIfNotExists(entry *models.WebhookQueueEntry) (bool, error)
	GetWebhookEvent(gatewayEventID string) (*models.WebhookEvent, error)
	ListQueuedWebhooks(limit int) ([]models.WebhookQueueEntry, error)
	FinishWebhookEntry(id uint, status, lastError string, at time.Time) error

	// Retry attempts
	CreateRetryAttempt(a *models.RetryAttempt) error
	CountRetryAttempts(invoiceID uint) (int64, error)
	HasPendingRetryAttempt(invoiceID uint) (bool, error)
	ClaimDueRetryAttempts(now time.Time, limit int, claimToken string) ([]models.RetryAttempt, error)
	FinishRetryAttempt(id uint, status, reason string, at time.Time) error

	// Subscriptions
	GetSubscriptionByMerchant(merchantID uint) (*models.Subscription, error)
	UpsertSubscription(sub *models.Subscription) error
	ListSubscriptionsByMode(mode string) ([]models.Subscription, error)
	BulkSetPaymentMode(mode string) (int64, error)

	// Merchant standing
	GetMerchantStanding(merchantID uint) (string, error)
	SetMerchantStanding(merchantID uint, standing, reason string, at time.Time) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetInvoice(id uint) (*models.Invoice, error) {
	var inv models.Invoice
	if err := r.db.First(&inv, id).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *gormRepository) GetInvoiceByGatewayRef(ref string) (*models.Invoice, error) {
	var inv models.Invoice
	if err := r.db.Where("gateway_invoice_ref = ?", ref).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *gormRepository) SetInvoiceGatewayRef(id uint, ref string) error {
	return r.db.Model(&models.Invoice{}).Where("id = ?", id).
		Update("gateway_invoice_ref", ref).Error
}

func (r *gormRepository) SetInvoiceStatus(id uint, status string) error {
	return r.db.Model(&models.Invoice{}).Where("id = ?", id).
		Update("status", status).Error
}

// MarkInvoicePaid sets status=paid and stamps paid_at only if it is not
// already set, so a manual payment and a webhook settlement racing on the
// same invoice keep the earliest timestamp.
func (r *gormRepository) MarkInvoicePaid(id uint, paidAt time.Time) error {
	return r.db.Model(&models.Invoice{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":  models.InvoiceStatusPaid,
			"paid_at": gorm.Expr("COALESCE(paid_at, ?)", paidAt),
		}).Error
}

// LockInvoicesForPeriod freezes every unlocked invoice of the period. The
// WHERE locked_at IS NULL guard makes repeated closes no-ops.
func (r *gormRepository) LockInvoicesForPeriod(period string, at time.Time) (int64, error) {
	tx := r.db.Model(&models.Invoice{}).
		Where("period = ? AND locked_at IS NULL", period).
		Update("locked_at", at)
	return tx.RowsAffected, tx.Error
}

func (r *gormRepository) FindOpenInvoice(merchantID uint, period string) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.Where("merchant_id = ? AND period = ? AND status = ?",
		merchantID, period, models.InvoiceStatusOpen).First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *gormRepository) CreatePayment(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *gormRepository) SumPayments(invoiceID uint) (int64, error) {
	var total int64
	err := r.db.Model(&models.Payment{}).
		Where("invoice_id = ?", invoiceID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

func (r *gormRepository) HasPaymentWithReference(invoiceID uint, reference string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Payment{}).
		Where("invoice_id = ? AND reference = ?", invoiceID, reference).
		Count(&count).Error
	return count > 0, err
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ev *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gateway_event_id"}},
		DoNothing: true,
	}).Create(ev)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("gateway_event_id = ?", ev.GatewayEventID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

// EnqueueWebhookIfNotExists inserts a queue entry keyed by the gateway
// event id. On redelivery the conflict is a no-op, so an in-flight or
// finished entry never has its progress reset.
func (r *gormRepository) EnqueueWebhookIfNotExists(entry *models.WebhookQueueEntry) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "gateway_event_id"}},
		DoNothing: true,
	}).Create(entry)
	return tx.RowsAffected > 0, tx.Error
}

func (r *gormRepository) GetWebhookEvent(gatewayEventID string) (*models.WebhookEvent, error) {
	var ev models.WebhookEvent
	if err := r.db.Where("gateway_event_id = ?", gatewayEventID).First(&ev).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *gormRepository) ListQueuedWebhooks(limit int) ([]models.WebhookQueueEntry, error) {
	var entries []models.WebhookQueueEntry
	err := r.db.Where("status = ?", models.WebhookQueueStatusQueued).
		Order("id ASC").Limit(limit).Find(&entries).Error
	return entries, err
}

func (r *gormRepository) FinishWebhookEntry(id uint, status, lastError string, at time.Time) error {
	return r.db.Model(&models.WebhookQueueEntry{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       status,
			"attempts":     gorm.Expr("attempts + 1"),
			"last_error":   lastError,
			"processed_at": &at,
		}).Error
}

func (r *gormRepository) CreateRetryAttempt(a *models.RetryAttempt) error {
	return r.db.Create(a).Error
}

func (r *gormRepository) CountRetryAttempts(invoiceID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.RetryAttempt{}).
		Where("invoice_id = ?", invoiceID).
		Count(&count).Error
	return count, err
}

func (r *gormRepository) HasPendingRetryAttempt(invoiceID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.RetryAttempt{}).
		Where("invoice_id = ? AND status IN ?", invoiceID,
			[]string{models.RetryStatusQueued, models.RetryStatusScheduled, models.RetryStatusProcessing}).
		Count(&count).Error
	return count > 0, err
}

// ClaimDueRetryAttempts claims up to limit due attempts in one statement.
// Stamping the claim token and status together is what keeps a concurrent
// worker run from picking up the same rows; the follow-up select only
// reads back what this run won.
func (r *gormRepository) ClaimDueRetryAttempts(now time.Time, limit int, claimToken string) ([]models.RetryAttempt, error) {
	tx := r.db.Model(&models.RetryAttempt{}).
		Where("status IN ? AND scheduled_for <= ?",
			[]string{models.RetryStatusQueued, models.RetryStatusScheduled}, now).
		Limit(limit).
		Updates(map[string]interface{}{
			"status":      models.RetryStatusProcessing,
			"claim_token": claimToken,
			"started_at":  &now,
		})
	if tx.Error != nil {
		return nil, tx.Error
	}
	if tx.RowsAffected == 0 {
		return nil, nil
	}

	var attempts []models.RetryAttempt
	err := r.db.Where("claim_token = ? AND status = ?", claimToken, models.RetryStatusProcessing).
		Order("scheduled_for ASC").Find(&attempts).Error
	return attempts, err
}

func (r *gormRepository) FinishRetryAttempt(id uint, status, reason string, at time.Time) error {
	return r.db.Model(&models.RetryAttempt{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"reason":      reason,
			"finished_at": &at,
		}).Error
}

func (r *gormRepository) GetSubscriptionByMerchant(merchantID uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("merchant_id = ?", merchantID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) UpsertSubscription(sub *models.Subscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "merchant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"billing_cadence",
			"payment_mode",
			"gateway_customer_ref",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("merchant_id = ?", sub.MerchantID).First(sub).Error
}

func (r *gormRepository) ListSubscriptionsByMode(mode string) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("payment_mode = ?", mode).Find(&subs).Error
	return subs, err
}

func (r *gormRepository) BulkSetPaymentMode(mode string) (int64, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("payment_mode <> ?", mode).
		Update("payment_mode", mode)
	return tx.RowsAffected, tx.Error
}

func (r *gormRepository) GetMerchantStanding(merchantID uint) (string, error) {
	var merchant models.Merchant
	if err := r.db.Select("billing_standing").First(&merchant, merchantID).Error; err != nil {
		return "", err
	}
	return merchant.BillingStanding, nil
}

func (r *gormRepository) SetMerchantStanding(merchantID uint, standing, reason string, at time.Time) error {
	return r.db.Model(&models.Merchant{}).Where("id = ?", merchantID).
		Updates(map[string]interface{}{
			"billing_standing":    standing,
			"standing_reason":     reason,
			"standing_changed_at": &at,
		}).Error
}
