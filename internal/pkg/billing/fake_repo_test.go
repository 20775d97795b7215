package billing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/gastrodesk/gastrodesk/app/models"
)

// fakeRepo is an in-memory Repository used by the billing tests. Errors
// can be forced per operation to exercise failure paths.
type fakeRepo struct {
	invoices      map[uint]*models.Invoice
	payments      []*models.Payment
	attempts      map[uint]*models.RetryAttempt
	events        map[string]*models.WebhookEvent
	queue         map[string]*models.WebhookQueueEntry
	subscriptions map[uint]*models.Subscription
	merchants     map[uint]*models.Merchant

	nextPaymentID uint
	nextAttemptID uint
	nextQueueID   uint

	failSumPayments bool
	failCreateRetry bool
	failMarkPaid    bool
	standingWrites  []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		invoices:      make(map[uint]*models.Invoice),
		attempts:      make(map[uint]*models.RetryAttempt),
		events:        make(map[string]*models.WebhookEvent),
		queue:         make(map[string]*models.WebhookQueueEntry),
		subscriptions: make(map[uint]*models.Subscription),
		merchants:     make(map[uint]*models.Merchant),
	}
}

func (r *fakeRepo) addInvoice(inv *models.Invoice) *models.Invoice {
	r.invoices[inv.ID] = inv
	return inv
}

func (r *fakeRepo) GetInvoice(id uint) (*models.Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r *fakeRepo) GetInvoiceByGatewayRef(ref string) (*models.Invoice, error) {
	for _, inv := range r.invoices {
		if inv.GatewayInvoiceRef == ref {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) SetInvoiceGatewayRef(id uint, ref string) error {
	inv, ok := r.invoices[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	inv.GatewayInvoiceRef = ref
	return nil
}

func (r *fakeRepo) SetInvoiceStatus(id uint, status string) error {
	inv, ok := r.invoices[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	inv.Status = status
	return nil
}

func (r *fakeRepo) MarkInvoicePaid(id uint, paidAt time.Time) error {
	if r.failMarkPaid {
		return fmt.Errorf("forced mark-paid failure")
	}
	inv, ok := r.invoices[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	inv.Status = models.InvoiceStatusPaid
	if inv.PaidAt == nil {
		inv.PaidAt = &paidAt
	}
	return nil
}

func (r *fakeRepo) LockInvoicesForPeriod(period string, at time.Time) (int64, error) {
	var locked int64
	for _, inv := range r.invoices {
		if inv.Period == period && inv.LockedAt == nil {
			t := at
			inv.LockedAt = &t
			locked++
		}
	}
	return locked, nil
}

func (r *fakeRepo) FindOpenInvoice(merchantID uint, period string) (*models.Invoice, error) {
	for _, inv := range r.invoices {
		if inv.MerchantID == merchantID && inv.Period == period && inv.Status == models.InvoiceStatusOpen {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) CreatePayment(p *models.Payment) error {
	r.nextPaymentID++
	p.ID = r.nextPaymentID
	cp := *p
	r.payments = append(r.payments, &cp)
	return nil
}

func (r *fakeRepo) SumPayments(invoiceID uint) (int64, error) {
	if r.failSumPayments {
		return 0, fmt.Errorf("forced aggregation failure")
	}
	var total int64
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID {
			total += p.Amount
		}
	}
	return total, nil
}

func (r *fakeRepo) HasPaymentWithReference(invoiceID uint, reference string) (bool, error) {
	for _, p := range r.payments {
		if p.InvoiceID == invoiceID && p.Reference == reference {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) CreateWebhookEventIfNotExists(ev *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	if existing, ok := r.events[ev.GatewayEventID]; ok {
		cp := *existing
		return false, &cp, nil
	}
	cp := *ev
	cp.ID = uint(len(r.events) + 1)
	r.events[ev.GatewayEventID] = &cp
	out := cp
	return true, &out, nil
}

func (r *fakeRepo) EnqueueWebhookIfNotExists(entry *models.WebhookQueueEntry) (bool, error) {
	if _, ok := r.queue[entry.GatewayEventID]; ok {
		return false, nil
	}
	r.nextQueueID++
	cp := *entry
	cp.ID = r.nextQueueID
	r.queue[entry.GatewayEventID] = &cp
	return true, nil
}

func (r *fakeRepo) GetWebhookEvent(gatewayEventID string) (*models.WebhookEvent, error) {
	ev, ok := r.events[gatewayEventID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *ev
	return &cp, nil
}

func (r *fakeRepo) ListQueuedWebhooks(limit int) ([]models.WebhookQueueEntry, error) {
	var out []models.WebhookQueueEntry
	for _, entry := range r.queue {
		if entry.Status == models.WebhookQueueStatusQueued {
			out = append(out, *entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo) FinishWebhookEntry(id uint, status, lastError string, at time.Time) error {
	for _, entry := range r.queue {
		if entry.ID == id {
			entry.Status = status
			entry.Attempts++
			entry.LastError = lastError
			t := at
			entry.ProcessedAt = &t
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeRepo) CreateRetryAttempt(a *models.RetryAttempt) error {
	if r.failCreateRetry {
		return fmt.Errorf("forced scheduling failure")
	}
	r.nextAttemptID++
	a.ID = r.nextAttemptID
	cp := *a
	r.attempts[a.ID] = &cp
	return nil
}

func (r *fakeRepo) CountRetryAttempts(invoiceID uint) (int64, error) {
	var count int64
	for _, a := range r.attempts {
		if a.InvoiceID == invoiceID {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepo) HasPendingRetryAttempt(invoiceID uint) (bool, error) {
	for _, a := range r.attempts {
		if a.InvoiceID != invoiceID {
			continue
		}
		switch a.Status {
		case models.RetryStatusQueued, models.RetryStatusScheduled, models.RetryStatusProcessing:
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) ClaimDueRetryAttempts(now time.Time, limit int, claimToken string) ([]models.RetryAttempt, error) {
	var claimed []models.RetryAttempt
	ids := make([]uint, 0, len(r.attempts))
	for id := range r.attempts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if len(claimed) >= limit {
			break
		}
		a := r.attempts[id]
		due := a.Status == models.RetryStatusQueued || a.Status == models.RetryStatusScheduled
		if due && !a.ScheduledFor.After(now) {
			a.Status = models.RetryStatusProcessing
			a.ClaimToken = claimToken
			t := now
			a.StartedAt = &t
			claimed = append(claimed, *a)
		}
	}
	return claimed, nil
}

func (r *fakeRepo) FinishRetryAttempt(id uint, status, reason string, at time.Time) error {
	a, ok := r.attempts[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	a.Status = status
	a.Reason = reason
	t := at
	a.FinishedAt = &t
	return nil
}

func (r *fakeRepo) GetSubscriptionByMerchant(merchantID uint) (*models.Subscription, error) {
	sub, ok := r.subscriptions[merchantID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sub
	return &cp, nil
}

func (r *fakeRepo) UpsertSubscription(sub *models.Subscription) error {
	if existing, ok := r.subscriptions[sub.MerchantID]; ok {
		sub.ID = existing.ID
	} else {
		sub.ID = uint(len(r.subscriptions) + 1)
	}
	cp := *sub
	r.subscriptions[sub.MerchantID] = &cp
	return nil
}

func (r *fakeRepo) ListSubscriptionsByMode(mode string) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, sub := range r.subscriptions {
		if sub.PaymentMode == mode {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MerchantID < out[j].MerchantID })
	return out, nil
}

func (r *fakeRepo) BulkSetPaymentMode(mode string) (int64, error) {
	var changed int64
	for _, sub := range r.subscriptions {
		if sub.PaymentMode != mode {
			sub.PaymentMode = mode
			changed++
		}
	}
	return changed, nil
}

// fakeGateway records calls and fails on demand.
type fakeGateway struct {
	customerRef string
	invoiceRef  string

	createCustomerErr error
	createInvoiceErr  error
	finalizeErr       error
	chargeErr         error

	customersCreated int
	charged          []string
	finalized        []string
}

func (g *fakeGateway) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	if g.createCustomerErr != nil {
		return "", g.createCustomerErr
	}
	g.customersCreated++
	if g.customerRef != "" {
		return g.customerRef, nil
	}
	return fmt.Sprintf("cus_%d", g.customersCreated), nil
}

func (g *fakeGateway) CreateInvoice(ctx context.Context, customerRef string, amount int64, description string) (string, error) {
	if g.createInvoiceErr != nil {
		return "", g.createInvoiceErr
	}
	if g.invoiceRef != "" {
		return g.invoiceRef, nil
	}
	return "in_fake", nil
}

func (g *fakeGateway) FinalizeInvoice(ctx context.Context, invoiceRef string) error {
	if g.finalizeErr != nil {
		return g.finalizeErr
	}
	g.finalized = append(g.finalized, invoiceRef)
	return nil
}

func (g *fakeGateway) ChargeInvoice(ctx context.Context, invoiceRef string) error {
	if g.chargeErr != nil {
		return g.chargeErr
	}
	g.charged = append(g.charged, invoiceRef)
	return nil
}

func (r *fakeRepo) GetMerchantStanding(merchantID uint) (string, error) {
	m, ok := r.merchants[merchantID]
	if !ok {
		return "", gorm.ErrRecordNotFound
	}
	return m.BillingStanding, nil
}

func (r *fakeRepo) SetMerchantStanding(merchantID uint, standing, reason string, at time.Time) error {
	m, ok := r.merchants[merchantID]
	if !ok {
		m = &models.Merchant{ID: merchantID}
		r.merchants[merchantID] = m
	}
	m.BillingStanding = standing
	m.StandingReason = reason
	t := at
	m.StandingChangedAt = &t
	r.standingWrites = append(r.standingWrites, standing)
	return nil
}
