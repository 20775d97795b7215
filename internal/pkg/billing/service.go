package billing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/gastrodesk/gastrodesk/app/models"
)

var periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ValidatePeriod checks the YYYY-MM billing period format.
func ValidatePeriod(period string) error {
	if !periodPattern.MatchString(period) {
		return ErrInvalidPeriod
	}
	return nil
}

// Service bundles the invoice payment reconciler, month closing and the
// subscription/standing administration around one repository.
type Service struct {
	repo Repository
	cfg  Config
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, cfg Config) *Service {
	return &Service{repo: repo, cfg: cfg}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, cfg Config) *Service {
	return NewService(NewRepository(db), cfg)
}

// RecordPayment appends a payment to an invoice and reconciles the
// invoice's paid state against the fresh payment aggregate.
//
// The payment insert is authoritative: every step after it is best-effort
// reconciliation. A recompute failure is returned as *ReconcileWarning so
// callers can flag the invoice for manual review without treating the
// payment itself as failed.
func (s *Service) RecordPayment(ctx context.Context, in PaymentInput) (*models.Payment, error) {
	_ = ctx
	if in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	method := strings.TrimSpace(in.Method)
	if method == "" {
		method = models.PaymentMethodCash
	}
	if !models.IsManualMethod(method) && method != models.PaymentMethodGateway {
		return nil, fmt.Errorf("unknown payment method %q: %w", method, ErrInvalidAmount)
	}

	invoice, err := s.repo.GetInvoice(in.InvoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	if invoice.IsLocked() {
		return nil, ErrInvoiceLocked
	}

	paidAt := time.Now()
	if in.PaidAt != nil {
		paidAt = *in.PaidAt
	}
	payment := &models.Payment{
		InvoiceID: invoice.ID,
		Amount:    in.Amount,
		Method:    method,
		PaidAt:    paidAt,
		Reference: strings.TrimSpace(in.Reference),
		Notes:     in.Notes,
		CreatedBy: strings.TrimSpace(in.CreatedBy),
	}
	if err := s.repo.CreatePayment(payment); err != nil {
		return nil, err
	}

	if err := s.reconcileInvoice(invoice); err != nil {
		log.Errorf("[Billing] reconcile after payment %d on invoice %d failed: %v", payment.ID, invoice.ID, err)
		return payment, &ReconcileWarning{PaymentID: payment.ID, Err: err}
	}
	return payment, nil
}

// reconcileInvoice recomputes the paid aggregate and advances the invoice
// to paid when it covers the amount due. The predicate is monotonic: a
// paid invoice is never regressed here, overpayment or later corrections
// require a human override.
func (s *Service) reconcileInvoice(invoice *models.Invoice) error {
	paid, err := s.repo.SumPayments(invoice.ID)
	if err != nil {
		return err
	}

	due := invoice.AmountDue()
	fullyPaid := paid > 0
	if due > 0 {
		fullyPaid = paid >= due
	}
	if !fullyPaid {
		return nil
	}
	return s.repo.MarkInvoicePaid(invoice.ID, time.Now())
}

// CloseMonth freezes every unlocked invoice of the period. Idempotent: a
// second close finds nothing left to lock. Closing an under-paid period is
// allowed; the close freezes the numbers, it does not enforce collection.
func (s *Service) CloseMonth(ctx context.Context, period string) (int64, error) {
	_ = ctx
	if err := ValidatePeriod(period); err != nil {
		return 0, err
	}
	locked, err := s.repo.LockInvoicesForPeriod(period, time.Now())
	if err != nil {
		return 0, err
	}
	log.Infof("[Billing] month close %s locked %d invoice(s)", period, locked)
	return locked, nil
}

// KickoffOutcome reports one merchant's result of the auto-billing run.
type KickoffOutcome struct {
	MerchantID uint   `json:"merchant_id"`
	InvoiceID  uint   `json:"invoice_id,omitempty"`
	GatewayRef string `json:"gateway_ref,omitempty"`
	Skipped    bool   `json:"skipped"`
	Reason     string `json:"reason,omitempty"`
}

// KickoffAutoBilling prepares gateway invoices for every auto-mode
// subscription in the period: ensures a gateway customer, creates and
// finalizes a gateway invoice for the merchant's open internal invoice,
// stores the reference and enqueues the first charge attempt. The actual
// charge is executed by the retry worker; settlement comes back through
// the webhook pipeline.
func (s *Service) KickoffAutoBilling(ctx context.Context, gw Gateway, period string) ([]KickoffOutcome, error) {
	if err := ValidatePeriod(period); err != nil {
		return nil, err
	}
	subs, err := s.repo.ListSubscriptionsByMode(models.PaymentModeAuto)
	if err != nil {
		return nil, err
	}

	outcomes := make([]KickoffOutcome, 0, len(subs))
	for _, sub := range subs {
		outcome := s.kickoffOne(ctx, gw, sub, period)
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (s *Service) kickoffOne(ctx context.Context, gw Gateway, sub models.Subscription, period string) KickoffOutcome {
	out := KickoffOutcome{MerchantID: sub.MerchantID}

	invoice, err := s.repo.FindOpenInvoice(sub.MerchantID, period)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			out.Skipped = true
			out.Reason = "no open invoice for period"
			return out
		}
		out.Skipped = true
		out.Reason = err.Error()
		return out
	}
	out.InvoiceID = invoice.ID

	if invoice.GatewayInvoiceRef != "" {
		out.Skipped = true
		out.GatewayRef = invoice.GatewayInvoiceRef
		out.Reason = "gateway invoice already created"
		return out
	}
	if invoice.AmountDue() == 0 {
		out.Skipped = true
		out.Reason = "nothing due"
		return out
	}

	customerRef := sub.GatewayCustomerRef
	if customerRef == "" {
		customerRef, err = gw.CreateCustomer(ctx, fmt.Sprintf("merchant-%d", sub.MerchantID), "")
		if err != nil {
			out.Skipped = true
			out.Reason = err.Error()
			return out
		}
		sub.GatewayCustomerRef = customerRef
		if err := s.repo.UpsertSubscription(&sub); err != nil {
			out.Skipped = true
			out.Reason = err.Error()
			return out
		}
	}

	ref, err := gw.CreateInvoice(ctx, customerRef, invoice.AmountDue(), fmt.Sprintf("Plattformabrechnung %s", period))
	if err != nil {
		out.Skipped = true
		out.Reason = err.Error()
		return out
	}
	if err := gw.FinalizeInvoice(ctx, ref); err != nil {
		out.Skipped = true
		out.Reason = err.Error()
		return out
	}
	if err := s.repo.SetInvoiceGatewayRef(invoice.ID, ref); err != nil {
		out.Skipped = true
		out.Reason = err.Error()
		return out
	}
	if err := s.repo.SetInvoiceStatus(invoice.ID, models.InvoiceStatusSent); err != nil {
		log.Errorf("[Billing] mark invoice %d sent failed: %v", invoice.ID, err)
	}
	out.GatewayRef = ref

	attempt := &models.RetryAttempt{
		InvoiceID:    invoice.ID,
		MerchantID:   sub.MerchantID,
		Status:       models.RetryStatusQueued,
		AttemptNo:    1,
		ScheduledFor: time.Now(),
		Reason:       "initial charge",
	}
	if err := s.repo.CreateRetryAttempt(attempt); err != nil {
		out.Reason = "charge attempt not enqueued: " + err.Error()
	}
	return out
}

// SetPaymentMode toggles one merchant's subscription between manual and
// automatic billing, creating the subscription row if missing.
func (s *Service) SetPaymentMode(ctx context.Context, merchantID uint, mode string) (*models.Subscription, error) {
	_ = ctx
	if mode != models.PaymentModeManual && mode != models.PaymentModeAuto {
		return nil, fmt.Errorf("unknown payment mode %q", mode)
	}
	sub, err := s.repo.GetSubscriptionByMerchant(merchantID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		sub = &models.Subscription{
			MerchantID:     merchantID,
			BillingCadence: models.BillingCadenceMonthly,
		}
	}
	sub.PaymentMode = mode
	if err := s.repo.UpsertSubscription(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// BulkSetPaymentMode switches every subscription to the given mode and
// returns how many rows changed.
func (s *Service) BulkSetPaymentMode(ctx context.Context, mode string) (int64, error) {
	_ = ctx
	if mode != models.PaymentModeManual && mode != models.PaymentModeAuto {
		return 0, fmt.Errorf("unknown payment mode %q", mode)
	}
	return s.repo.BulkSetPaymentMode(mode)
}

// SetMerchantStanding is the manual override for a merchant's billing
// standing, recorded with a reason for the audit trail.
func (s *Service) SetMerchantStanding(ctx context.Context, merchantID uint, standing, reason string) error {
	_ = ctx
	switch standing {
	case models.StandingActive, models.StandingRestricted, models.StandingBlocked:
	default:
		return fmt.Errorf("unknown standing %q", standing)
	}
	if err := s.repo.SetMerchantStanding(merchantID, standing, reason, time.Now()); err != nil {
		return err
	}
	log.Infof("[Billing] merchant %d standing set to %s (%s)", merchantID, standing, reason)
	return nil
}
