package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/gastrodesk/gastrodesk/app/models"
)

// Notifier wakes the asynchronous queue consumer after an event has been
// committed. Purely an optimization: the DB queue remains the source of
// truth and is polled regardless.
type Notifier interface {
	Nudge(gatewayEventID string)
}

// IngestResult reports what the ingestion pipeline did with an event.
type IngestResult struct {
	GatewayEventID string
	EventType      string
	Duplicate      bool
}

// Ingestor is the webhook ingestion pipeline: verify, audit, enqueue.
type Ingestor struct {
	repo     Repository
	cfg      Config
	notifier Notifier
}

// NewIngestor creates the pipeline. notifier may be nil.
func NewIngestor(repo Repository, cfg Config, notifier Notifier) *Ingestor {
	return &Ingestor{repo: repo, cfg: cfg, notifier: notifier}
}

// Ingest processes one inbound gateway delivery. The signature is checked
// against the raw body before anything in the payload is trusted. On
// verification failure a synthetic audit row is recorded and
// ErrSignatureInvalid returned (client error, no retry on our side). On
// success the audit row and queue entry are upserted by event id, so any
// number of redeliveries commit exactly one of each.
func (i *Ingestor) Ingest(ctx context.Context, rawBody []byte, signatureHeader string) (*IngestResult, error) {
	_ = ctx

	if !VerifyWebhookSignature(rawBody, signatureHeader, i.cfg.WebhookSecret()) {
		// The event id inside the payload is untrusted at this point; key
		// the forensic row by payload hash instead.
		ev := &models.WebhookEvent{
			GatewayEventID: hashEventID(rawBody),
			EventType:      models.EventTypeSignatureFailed,
			PayloadJSON:    string(rawBody),
			Livemode:       i.cfg.Livemode(),
			SignatureValid: false,
		}
		if _, _, err := i.repo.CreateWebhookEventIfNotExists(ev); err != nil {
			log.Errorf("[Webhook] audit of rejected delivery failed: %v", err)
		}
		return nil, ErrSignatureInvalid
	}

	var envelope EventEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return nil, fmt.Errorf("malformed event payload: %w", err)
	}
	eventID := strings.TrimSpace(envelope.ID)
	if eventID == "" {
		eventID = hashEventID(rawBody)
	}

	created, _, err := i.repo.CreateWebhookEventIfNotExists(&models.WebhookEvent{
		GatewayEventID: eventID,
		EventType:      envelope.Type,
		PayloadJSON:    string(rawBody),
		Livemode:       envelope.Livemode,
		SignatureValid: true,
	})
	if err != nil {
		return nil, fmt.Errorf("persist webhook audit: %w", err)
	}

	if _, err := i.repo.EnqueueWebhookIfNotExists(&models.WebhookQueueEntry{
		GatewayEventID: eventID,
		EventType:      envelope.Type,
		Status:         models.WebhookQueueStatusQueued,
	}); err != nil {
		return nil, fmt.Errorf("enqueue webhook event: %w", err)
	}

	if i.notifier != nil {
		i.notifier.Nudge(eventID)
	}
	return &IngestResult{GatewayEventID: eventID, EventType: envelope.Type, Duplicate: !created}, nil
}

func hashEventID(rawBody []byte) string {
	sum := sha256.Sum256(rawBody)
	return "hash:" + hex.EncodeToString(sum[:])
}

// Processor consumes queued webhook entries. Handlers are idempotent so
// at-least-once delivery of the same event id is safe.
type Processor struct {
	repo    Repository
	service *Service
	policy  Policy
}

func NewProcessor(repo Repository, service *Service, policy Policy) *Processor {
	return &Processor{repo: repo, service: service, policy: policy}
}

// ProcessQueued drains up to limit queued entries and returns how many it
// handled. A single entry's failure is recorded on the entry and never
// aborts the batch.
func (p *Processor) ProcessQueued(ctx context.Context, limit int) (int, error) {
	entries, err := p.repo.ListQueuedWebhooks(limit)
	if err != nil {
		return 0, err
	}

	for _, entry := range entries {
		if err := p.processEntry(ctx, entry); err != nil {
			log.Errorf("[Webhook] event %s failed: %v", entry.GatewayEventID, err)
			if ferr := p.repo.FinishWebhookEntry(entry.ID, models.WebhookQueueStatusFailed, err.Error(), time.Now()); ferr != nil {
				log.Errorf("[Webhook] marking event %s failed errored: %v", entry.GatewayEventID, ferr)
			}
			continue
		}
		if err := p.repo.FinishWebhookEntry(entry.ID, models.WebhookQueueStatusProcessed, "", time.Now()); err != nil {
			log.Errorf("[Webhook] marking event %s processed errored: %v", entry.GatewayEventID, err)
		}
	}
	return len(entries), nil
}

func (p *Processor) processEntry(ctx context.Context, entry models.WebhookQueueEntry) error {
	ev, err := p.repo.GetWebhookEvent(entry.GatewayEventID)
	if err != nil {
		return fmt.Errorf("load audit row: %w", err)
	}

	var envelope EventEnvelope
	if err := json.Unmarshal([]byte(ev.PayloadJSON), &envelope); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch entry.EventType {
	case EventInvoicePaid:
		return p.handleInvoicePaid(ctx, entry.GatewayEventID, envelope)
	case EventInvoicePaymentFailed:
		return p.handleInvoicePaymentFailed(ctx, envelope)
	default:
		// Unknown event types are acknowledged, not failed; the gateway
		// emits more than this core consumes.
		return nil
	}
}

// handleInvoicePaid settles the internal invoice referenced by the event
// and brings the merchant's standing back toward active. An event for an
// invoice not yet known internally is a no-op so out-of-order delivery
// relative to internal invoice creation never errors.
func (p *Processor) handleInvoicePaid(ctx context.Context, eventID string, envelope EventEnvelope) error {
	ref := strings.TrimSpace(envelope.Data.Object.ID)
	if ref == "" {
		return nil
	}
	invoice, err := p.repo.GetInvoiceByGatewayRef(ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	// One settlement payment per event id; redelivery finds it and skips.
	exists, err := p.repo.HasPaymentWithReference(invoice.ID, eventID)
	if err != nil {
		return err
	}
	if !exists {
		amount := envelope.Data.Object.AmountPaid
		if amount <= 0 {
			amount = invoice.AmountDue()
		}
		if amount > 0 {
			_, err := p.service.RecordPayment(ctx, PaymentInput{
				InvoiceID: invoice.ID,
				Amount:    amount,
				Method:    models.PaymentMethodGateway,
				Reference: eventID,
				Notes:     "gateway settlement",
				CreatedBy: "webhook",
			})
			var warn *ReconcileWarning
			if err != nil && !errors.As(err, &warn) {
				if errors.Is(err, ErrInvoiceLocked) {
					// Settlement for a closed period: keep the event, the
					// payment cannot be booked anymore.
					log.Errorf("[Webhook] settlement for locked invoice %d dropped", invoice.ID)
					return nil
				}
				return err
			}
		}
	}

	if err := p.repo.SetMerchantStanding(invoice.MerchantID, models.StandingActive,
		fmt.Sprintf("invoice %s settled", ref), time.Now()); err != nil {
		return err
	}
	InvalidateStandingCache(invoice.MerchantID)
	return nil
}

// handleInvoicePaymentFailed restricts the merchant and schedules the next
// automatic charge per retry policy.
func (p *Processor) handleInvoicePaymentFailed(ctx context.Context, envelope EventEnvelope) error {
	_ = ctx
	ref := strings.TrimSpace(envelope.Data.Object.ID)
	if ref == "" {
		return nil
	}
	invoice, err := p.repo.GetInvoiceByGatewayRef(ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	if err := p.repo.SetMerchantStanding(invoice.MerchantID, models.StandingRestricted,
		fmt.Sprintf("gateway charge for invoice %s failed", ref), time.Now()); err != nil {
		return err
	}
	InvalidateStandingCache(invoice.MerchantID)

	scheduled, err := ScheduleRetry(p.repo, p.policy, invoice.ID, invoice.MerchantID, "gateway reported payment failure")
	if err != nil {
		return err
	}
	if !scheduled {
		log.Infof("[Webhook] invoice %d reached the retry ceiling, no further attempts", invoice.ID)
	}
	return nil
}
