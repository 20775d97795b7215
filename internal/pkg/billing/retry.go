package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gastrodesk/gastrodesk/app/models"
)

// Policy controls how failed automatic charges are retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy retries up to 4 times with exponential backoff starting at
// one day and capped at a week.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   24 * time.Hour,
		MaxDelay:    7 * 24 * time.Hour,
	}
}

// NextDelay returns the backoff before attempt number attemptNo (1-based).
func (p Policy) NextDelay(attemptNo int) time.Duration {
	delay := p.BaseDelay
	for i := 2; i < attemptNo; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// ScheduleRetry inserts the next charge attempt for an invoice. It is safe
// to call repeatedly: once the policy's attempt ceiling is reached, or
// while an attempt is still pending, it returns false without inserting.
func ScheduleRetry(repo Repository, policy Policy, invoiceID, merchantID uint, reason string) (bool, error) {
	pending, err := repo.HasPendingRetryAttempt(invoiceID)
	if err != nil {
		return false, err
	}
	if pending {
		return false, nil
	}

	count, err := repo.CountRetryAttempts(invoiceID)
	if err != nil {
		return false, err
	}
	if count >= int64(policy.MaxAttempts) {
		return false, nil
	}

	attemptNo := int(count) + 1
	attempt := &models.RetryAttempt{
		InvoiceID:    invoiceID,
		MerchantID:   merchantID,
		Status:       models.RetryStatusScheduled,
		AttemptNo:    attemptNo,
		ScheduledFor: time.Now().Add(policy.NextDelay(attemptNo)),
		Reason:       reason,
	}
	if err := repo.CreateRetryAttempt(attempt); err != nil {
		return false, err
	}
	return true, nil
}

// Worker executes due charge attempts against the gateway.
type Worker struct {
	repo    Repository
	gateway Gateway
	policy  Policy
}

func NewWorker(repo Repository, gateway Gateway, policy Policy) *Worker {
	return &Worker{repo: repo, gateway: gateway, policy: policy}
}

// Run claims up to limit due attempts in one atomic batch and processes
// them strictly serially. The invoice's own status is never written here;
// gateway-confirmed state arrives through the webhook pipeline, which is
// the single writer for it. One attempt's failure never aborts the rest of
// the batch.
func (w *Worker) Run(ctx context.Context, limit int) ([]AttemptOutcome, error) {
	if limit <= 0 {
		limit = 20
	}
	claimToken := uuid.NewString()
	attempts, err := w.repo.ClaimDueRetryAttempts(time.Now(), limit, claimToken)
	if err != nil {
		return nil, fmt.Errorf("claim due attempts: %w", err)
	}
	if len(attempts) == 0 {
		return nil, nil
	}
	log.Infof("[RetryWorker] claimed %d attempt(s)", len(attempts))

	outcomes := make([]AttemptOutcome, 0, len(attempts))
	for _, attempt := range attempts {
		outcomes = append(outcomes, w.processAttempt(ctx, attempt))
	}
	return outcomes, nil
}

func (w *Worker) processAttempt(ctx context.Context, attempt models.RetryAttempt) AttemptOutcome {
	outcome := AttemptOutcome{AttemptID: attempt.ID, InvoiceID: attempt.InvoiceID}

	invoice, err := w.repo.GetInvoice(attempt.InvoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return w.finish(attempt, &outcome, models.RetryStatusCanceled, "invoice no longer exists")
		}
		return w.finish(attempt, &outcome, models.RetryStatusFailed, err.Error())
	}

	// Never charge an invoice a manual payment or earlier webhook already
	// settled.
	if invoice.Status == models.InvoiceStatusPaid {
		return w.finish(attempt, &outcome, models.RetryStatusCanceled, "invoice already paid")
	}

	if invoice.GatewayInvoiceRef == "" {
		return w.failAndReschedule(attempt, &outcome, invoice, ErrGatewayRefMissing.Error())
	}

	if err := w.gateway.ChargeInvoice(ctx, invoice.GatewayInvoiceRef); err != nil {
		return w.failAndReschedule(attempt, &outcome, invoice, err.Error())
	}
	return w.finish(attempt, &outcome, models.RetryStatusSuccess, "")
}

func (w *Worker) finish(attempt models.RetryAttempt, outcome *AttemptOutcome, status, reason string) AttemptOutcome {
	if err := w.repo.FinishRetryAttempt(attempt.ID, status, reason, time.Now()); err != nil {
		log.Errorf("[RetryWorker] finishing attempt %d failed: %v", attempt.ID, err)
	}
	outcome.Status = status
	outcome.Reason = reason
	return *outcome
}

// failAndReschedule marks the attempt failed and schedules the next one
// per policy. A scheduling failure is folded into the attempt's reason
// instead of crashing the run.
func (w *Worker) failAndReschedule(attempt models.RetryAttempt, outcome *AttemptOutcome, invoice *models.Invoice, reason string) AttemptOutcome {
	result := w.finish(attempt, outcome, models.RetryStatusFailed, reason)

	scheduled, err := ScheduleRetry(w.repo, w.policy, invoice.ID, invoice.MerchantID, reason)
	if err != nil {
		log.Errorf("[RetryWorker] rescheduling invoice %d failed: %v", invoice.ID, err)
		result.Reason = reason + "; reschedule failed: " + err.Error()
		if ferr := w.repo.FinishRetryAttempt(attempt.ID, models.RetryStatusFailed, result.Reason, time.Now()); ferr != nil {
			log.Errorf("[RetryWorker] updating attempt %d reason failed: %v", attempt.ID, ferr)
		}
		return result
	}
	if !scheduled {
		log.Infof("[RetryWorker] invoice %d reached the retry ceiling", invoice.ID)
	}
	return result
}
