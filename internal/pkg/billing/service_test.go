package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gastrodesk/gastrodesk/app/models"
)

func TestValidatePeriod(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
	}{
		{in: "2026-01", valid: true},
		{in: "2026-12", valid: true},
		{in: "2026-13", valid: false},
		{in: "2026-00", valid: false},
		{in: "26-01", valid: false},
		{in: "2026-1", valid: false},
		{in: "", valid: false},
		{in: "2026-01-05", valid: false},
	}

	for _, tt := range tests {
		err := ValidatePeriod(tt.in)
		if tt.valid && err != nil {
			t.Fatalf("ValidatePeriod(%q) = %v, want nil", tt.in, err)
		}
		if !tt.valid && !errors.Is(err, ErrInvalidPeriod) {
			t.Fatalf("ValidatePeriod(%q) = %v, want ErrInvalidPeriod", tt.in, err)
		}
	}
}

func TestRecordPayment_PartialThenFull(t *testing.T) {
	repo := newFakeRepo()
	repo.addInvoice(&models.Invoice{ID: 1, MerchantID: 7, Period: "2026-08",
		GrossAmount: 10000, PlatformFee: 1000, Status: models.InvoiceStatusOpen})
	svc := NewService(repo, Config{})

	// 5000 of 9000 due: invoice stays open.
	if _, err := svc.RecordPayment(context.Background(), PaymentInput{InvoiceID: 1, Amount: 5000, Method: models.PaymentMethodCash}); err != nil {
		t.Fatalf("partial payment failed: %v", err)
	}
	if repo.invoices[1].Status != models.InvoiceStatusOpen {
		t.Fatalf("expected invoice to stay open after partial payment, got %q", repo.invoices[1].Status)
	}
	if repo.invoices[1].PaidAt != nil {
		t.Fatalf("expected no paid_at after partial payment")
	}

	// Remaining 4000: invoice flips to paid.
	if _, err := svc.RecordPayment(context.Background(), PaymentInput{InvoiceID: 1, Amount: 4000, Method: models.PaymentMethodBankTransfer}); err != nil {
		t.Fatalf("final payment failed: %v", err)
	}
	if repo.invoices[1].Status != models.InvoiceStatusPaid {
		t.Fatalf("expected invoice paid, got %q", repo.invoices[1].Status)
	}
	if repo.invoices[1].PaidAt == nil {
		t.Fatalf("expected paid_at to be set")
	}
}

func TestRecordPayment_PaidStaysPaid(t *testing.T) {
	repo := newFakeRepo()
	paidAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	repo.addInvoice(&models.Invoice{ID: 1, MerchantID: 7, Period: "2026-08",
		GrossAmount: 10000, PlatformFee: 1000, Status: models.InvoiceStatusPaid, PaidAt: &paidAt})
	repo.payments = append(repo.payments, &models.Payment{InvoiceID: 1, Amount: 9000})
	svc := NewService(repo, Config{})

	// An extra payment on an already-paid invoice must not clear or move
	// the paid marker.
	if _, err := svc.RecordPayment(context.Background(), PaymentInput{InvoiceID: 1, Amount: 500, Method: models.PaymentMethodCash}); err != nil {
		t.Fatalf("overpayment failed: %v", err)
	}
	if repo.invoices[1].Status != models.InvoiceStatusPaid {
		t.Fatalf("expected invoice to stay paid, got %q", repo.invoices[1].Status)
	}
	if !repo.invoices[1].PaidAt.Equal(paidAt) {
		t.Fatalf("expected original paid_at to be kept, got %v", repo.invoices[1].PaidAt)
	}
}

func TestRecordPayment_ZeroDueInvoice(t *testing.T) {
	repo := newFakeRepo()
	repo.addInvoice(&models.Invoice{ID: 1, MerchantID: 7, Period: "2026-08",
		GrossAmount: 1000, PlatformFee: 1000, Status: models.InvoiceStatusOpen})
	svc := NewService(repo, Config{})

	// Nothing due: any positive payment settles the invoice.
	if _, err := svc.RecordPayment(context.Background(), PaymentInput{InvoiceID: 1, Amount: 1, Method: models.PaymentMethodCash}); err != nil {
		t.Fatalf("payment failed: %v", err)
	}
	if repo.invoices[1].Status != models.InvoiceStatusPaid {
		t.Fatalf("expected zero-due invoice paid after any payment, got %q", repo.invoices[1].Status)
	}
}

func TestRecordPayment_Validation(t *testing.T) {
	repo := newFakeRepo()
	repo.addInvoice(&models.Invoice{ID: 1, MerchantID: 7, Period: "2026-08",
		GrossAmount: 10000, PlatformFee: 1000, Status: models.InvoiceStatusOpen})
	svc := NewService(repo, Config{})

	if _, err := svc.RecordPayment(context.Background(), PaymentInput{InvoiceID: 1, Amount: 0}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero amount, got %v", err)
	}
	if _, err := svc.RecordPayment(context.Background(), PaymentInput{InvoiceID: 1, Amount: -50}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative amount, got %v", err)
	}
	if _, err := svc.RecordPayment(context.Background(), PaymentInput{InvoiceID: 1, Amount: 100, Method: "barter"}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for unknown method, got %v", err)
	}
	if _, err := svc.RecordPayment(context.Background(), PaymentInput{InvoiceID: 99, Amount: 100}); !errors.Is(err, ErrInvoiceNotFound) {
		t.Fatalf("expected ErrInvoiceNotFound, got %v", err)
	}
	if len(repo.payments) != 0 {
		t.Fatalf("expected no payment rows after rejected inputs, got %d", len(repo.payments))
	}
}

func TestRecordPayment_LockedInvoice(t *testing.T) {
	repo := newFakeRepo()
	lockedAt := time.Now()
	repo.addInvoice(&models.Invoice{ID: 1, MerchantID: 7, Period: "2026-07",
		GrossAmount: 10000, PlatformFee: 1000, Status: models.InvoiceStatusOpen, LockedAt: &lockedAt})
	svc := NewService(repo, Config{})

	_, err := svc.RecordPayment(context.Background(), PaymentInput{InvoiceID: 1, Amount: 9000, Method: models.PaymentMethodCash})
	if !errors.Is(err, ErrInvoiceLocked) {
		t.Fatalf("expected ErrInvoiceLocked, got %v", err)
	}
	if len(repo.payments) != 0 {
		t.Fatalf("expected no payment against a locked invoice")
	}
}

func TestRecordPayment_ReconcileWarning(t *testing.T) {
	repo := newFakeRepo()
	repo.addInvoice(&models.Invoice{ID: 1, MerchantID: 7, Period: "2026-08",
		GrossAmount: 10000, PlatformFee: 1000, Status: models.InvoiceStatusOpen})
	repo.failSumPayments = true
	svc := NewService(repo, Config{})

	payment, err := svc.RecordPayment(context.Background(), PaymentInput{InvoiceID: 1, Amount: 9000, Method: models.PaymentMethodCash})
	var warn *ReconcileWarning
	if !errors.As(err, &warn) {
		t.Fatalf("expected *ReconcileWarning, got %v", err)
	}
	if payment == nil {
		t.Fatalf("expected the payment to be returned despite the warning")
	}
	if warn.PaymentID != payment.ID {
		t.Fatalf("warning references payment %d, want %d", warn.PaymentID, payment.ID)
	}
	// The payment stands; the invoice state is simply left for review.
	if len(repo.payments) != 1 {
		t.Fatalf("expected the payment row to be persisted, got %d rows", len(repo.payments))
	}
	if repo.invoices[1].Status != models.InvoiceStatusOpen {
		t.Fatalf("expected invoice untouched after failed recompute, got %q", repo.invoices[1].Status)
	}
}

func TestCloseMonth_Idempotent(t *testing.T) {
	repo := newFakeRepo()
	repo.addInvoice(&models.Invoice{ID: 1, MerchantID: 7, Period: "2026-07", Status: models.InvoiceStatusOpen})
	repo.addInvoice(&models.Invoice{ID: 2, MerchantID: 8, Period: "2026-07", Status: models.InvoiceStatusPaid})
	repo.addInvoice(&models.Invoice{ID: 3, MerchantID: 7, Period: "2026-08", Status: models.InvoiceStatusOpen})
	svc := NewService(repo, Config{})

	locked, err := svc.CloseMonth(context.Background(), "2026-07")
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if locked != 2 {
		t.Fatalf("expected 2 invoices locked, got %d", locked)
	}
	if repo.invoices[3].LockedAt != nil {
		t.Fatalf("expected other period to stay unlocked")
	}

	// Second close of the same period is a no-op.
	locked, err = svc.CloseMonth(context.Background(), "2026-07")
	if err != nil {
		t.Fatalf("repeated close failed: %v", err)
	}
	if locked != 0 {
		t.Fatalf("expected repeated close to lock nothing, got %d", locked)
	}
}

func TestCloseMonth_InvalidPeriod(t *testing.T) {
	svc := NewService(newFakeRepo(), Config{})
	if _, err := svc.CloseMonth(context.Background(), "07/2026"); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestKickoffAutoBilling(t *testing.T) {
	repo := newFakeRepo()
	repo.subscriptions[7] = &models.Subscription{ID: 1, MerchantID: 7, PaymentMode: models.PaymentModeAuto}
	repo.addInvoice(&models.Invoice{ID: 1, MerchantID: 7, Period: "2026-08",
		GrossAmount: 10000, PlatformFee: 1000, Status: models.InvoiceStatusOpen})
	gw := &fakeGateway{customerRef: "cus_7", invoiceRef: "in_700"}
	svc := NewService(repo, Config{})

	outcomes, err := svc.KickoffAutoBilling(context.Background(), gw, "2026-08")
	if err != nil {
		t.Fatalf("kickoff failed: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("expected one outcome, got %d", len(outcomes))
	}
	out := outcomes[0]
	if out.Skipped {
		t.Fatalf("expected merchant 7 not to be skipped: %s", out.Reason)
	}
	if out.GatewayRef != "in_700" {
		t.Fatalf("expected gateway ref in_700, got %q", out.GatewayRef)
	}
	if repo.invoices[1].GatewayInvoiceRef != "in_700" {
		t.Fatalf("expected gateway ref stored on invoice, got %q", repo.invoices[1].GatewayInvoiceRef)
	}
	if repo.invoices[1].Status != models.InvoiceStatusSent {
		t.Fatalf("expected invoice marked sent, got %q", repo.invoices[1].Status)
	}
	if repo.subscriptions[7].GatewayCustomerRef != "cus_7" {
		t.Fatalf("expected customer ref persisted on subscription")
	}
	if len(gw.finalized) != 1 || gw.finalized[0] != "in_700" {
		t.Fatalf("expected gateway invoice finalized, got %v", gw.finalized)
	}
	if len(repo.attempts) != 1 {
		t.Fatalf("expected one queued charge attempt, got %d", len(repo.attempts))
	}
	for _, a := range repo.attempts {
		if a.Status != models.RetryStatusQueued || a.AttemptNo != 1 {
			t.Fatalf("unexpected initial attempt %+v", a)
		}
	}
}

func TestKickoffAutoBilling_Skips(t *testing.T) {
	repo := newFakeRepo()
	repo.subscriptions[1] = &models.Subscription{ID: 1, MerchantID: 1, PaymentMode: models.PaymentModeAuto, GatewayCustomerRef: "cus_1"}
	repo.subscriptions[2] = &models.Subscription{ID: 2, MerchantID: 2, PaymentMode: models.PaymentModeAuto, GatewayCustomerRef: "cus_2"}
	repo.subscriptions[3] = &models.Subscription{ID: 3, MerchantID: 3, PaymentMode: models.PaymentModeAuto, GatewayCustomerRef: "cus_3"}
	// Merchant 1: gateway invoice already created in an earlier run.
	repo.addInvoice(&models.Invoice{ID: 1, MerchantID: 1, Period: "2026-08",
		GrossAmount: 5000, PlatformFee: 500, Status: models.InvoiceStatusOpen, GatewayInvoiceRef: "in_prev"})
	// Merchant 2: nothing due.
	repo.addInvoice(&models.Invoice{ID: 2, MerchantID: 2, Period: "2026-08",
		GrossAmount: 500, PlatformFee: 500, Status: models.InvoiceStatusOpen})
	// Merchant 3: no open invoice at all.
	gw := &fakeGateway{}
	svc := NewService(repo, Config{})

	outcomes, err := svc.KickoffAutoBilling(context.Background(), gw, "2026-08")
	if err != nil {
		t.Fatalf("kickoff failed: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	for _, out := range outcomes {
		if !out.Skipped {
			t.Fatalf("expected merchant %d to be skipped", out.MerchantID)
		}
	}
	if gw.customersCreated != 0 || len(gw.finalized) != 0 {
		t.Fatalf("expected no gateway calls for skipped merchants")
	}
	if len(repo.attempts) != 0 {
		t.Fatalf("expected no charge attempts enqueued")
	}
}

func TestSetPaymentMode(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, Config{})

	if _, err := svc.SetPaymentMode(context.Background(), 7, "sometimes"); err == nil {
		t.Fatalf("expected unknown mode to be rejected")
	}

	sub, err := svc.SetPaymentMode(context.Background(), 7, models.PaymentModeAuto)
	if err != nil {
		t.Fatalf("set mode failed: %v", err)
	}
	if sub.PaymentMode != models.PaymentModeAuto {
		t.Fatalf("expected auto mode, got %q", sub.PaymentMode)
	}
	if repo.subscriptions[7] == nil {
		t.Fatalf("expected subscription row to be created")
	}

	// Toggling back reuses the same row.
	sub, err = svc.SetPaymentMode(context.Background(), 7, models.PaymentModeManual)
	if err != nil {
		t.Fatalf("toggle back failed: %v", err)
	}
	if sub.PaymentMode != models.PaymentModeManual {
		t.Fatalf("expected manual mode, got %q", sub.PaymentMode)
	}
	if len(repo.subscriptions) != 1 {
		t.Fatalf("expected a single subscription row, got %d", len(repo.subscriptions))
	}
}

func TestSetMerchantStanding(t *testing.T) {
	repo := newFakeRepo()
	repo.merchants[7] = &models.Merchant{ID: 7, BillingStanding: models.StandingActive}
	svc := NewService(repo, Config{})

	if err := svc.SetMerchantStanding(context.Background(), 7, "suspended", "typo"); err == nil {
		t.Fatalf("expected unknown standing to be rejected")
	}
	if err := svc.SetMerchantStanding(context.Background(), 7, models.StandingBlocked, "überfällige Rechnungen"); err != nil {
		t.Fatalf("set standing failed: %v", err)
	}
	if repo.merchants[7].BillingStanding != models.StandingBlocked {
		t.Fatalf("expected blocked, got %q", repo.merchants[7].BillingStanding)
	}
	if repo.merchants[7].StandingReason != "überfällige Rechnungen" {
		t.Fatalf("expected reason to be recorded")
	}
}
