package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/gastrodesk/gastrodesk/internal/pkg/billing"
	"github.com/gastrodesk/gastrodesk/internal/pkg/cache"
	"github.com/gastrodesk/gastrodesk/internal/pkg/database"
	"github.com/gastrodesk/gastrodesk/internal/pkg/metrics/counter"
)

const (
	// Redis list the webhook ingestor nudges after committing an event.
	WebhookNudgeKey = "webhook_nudge"

	webhookBatchSize = 25
	retryBatchSize   = 20

	webhookPollInterval  = 15 * time.Second
	retryRunInterval     = 5 * time.Minute
	stuckSweepInterval   = time.Minute
	counterFlushInterval = time.Minute

	// Lease window after which an attempt stuck in processing (worker
	// crashed mid-run) is requeued.
	processingLease = 10 * time.Minute
)

// Manager runs the webhook queue consumer and the billing retry worker as
// background loops.
type Manager struct {
	processor *billing.Processor
	worker    *billing.Worker
	sweeper   Sweeper
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

// Sweeper requeues retry attempts stuck in processing beyond the lease.
type Sweeper interface {
	RequeueStuckAttempts(olderThan time.Time) (int64, error)
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global background worker manager (singleton).
func GetManager() *Manager {
	managerOnce.Do(func() {
		db := database.GetDB()
		cfg := billing.LoadConfig()
		repo := billing.NewRepository(db)
		policy := billing.DefaultPolicy()
		service := billing.NewService(repo, cfg)
		gateway := billing.NewGateway(cfg)

		globalManager = &Manager{
			processor: billing.NewProcessor(repo, service, policy),
			worker:    billing.NewWorker(repo, gateway, policy),
			sweeper:   NewSweeper(db),
			stopCh:    make(chan struct{}),
		}
	})
	return globalManager
}

// Start launches the background loops.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so the manager can be
	// restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[Worker] Starting background loops")

	m.wg.Add(4)
	go m.webhookLoop()
	go m.retryLoop()
	go m.stuckSweeper()
	go m.counterFlusher()
}

// Stop stops the background loops and waits for them to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Worker] Stopping background loops...")
	close(m.stopCh)
	m.running = false
	m.wg.Wait()
	log.Info("[Worker] All loops stopped")
}

// webhookLoop drains the webhook queue. It blocks on the Redis nudge list
// so committed events are picked up immediately, and falls through on a
// timeout so the DB queue is drained even when nudges get lost.
func (m *Manager) webhookLoop() {
	defer m.wg.Done()
	log.Infof("[Worker] Webhook consumer running (poll=%s)", webhookPollInterval)

	for {
		select {
		case <-m.stopCh:
			log.Info("[Worker] Webhook consumer stopping")
			return
		default:
		}

		if _, err := cache.BRPop(webhookPollInterval, WebhookNudgeKey); err != nil && !errors.Is(err, redis.Nil) {
			// Redis briefly unavailable; the poll interval becomes the
			// effective cadence.
			time.Sleep(time.Second)
		}

		n, err := m.processor.ProcessQueued(context.Background(), webhookBatchSize)
		if err != nil {
			log.Errorf("[Worker] webhook batch failed: %v", err)
			continue
		}
		if n > 0 {
			log.Infof("[Worker] processed %d webhook event(s)", n)
		}
	}
}

// retryLoop runs the billing retry worker on a fixed interval. The
// authenticated HTTP trigger calls the same Worker.Run, the atomic claim
// keeps the two from processing the same attempts.
func (m *Manager) retryLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(retryRunInterval)
	defer ticker.Stop()
	log.Infof("[Worker] Retry worker running (interval=%s)", retryRunInterval)

	for {
		select {
		case <-m.stopCh:
			log.Info("[Worker] Retry worker stopping")
			return
		case <-ticker.C:
			outcomes, err := m.worker.Run(context.Background(), retryBatchSize)
			if err != nil {
				log.Errorf("[Worker] retry run failed: %v", err)
				continue
			}
			if len(outcomes) > 0 {
				log.Infof("[Worker] retry run finished with %d attempt(s)", len(outcomes))
			}
		}
	}
}

// stuckSweeper recovers attempts stuck in processing after a crash.
func (m *Manager) stuckSweeper() {
	defer m.wg.Done()
	ticker := time.NewTicker(stuckSweepInterval)
	defer ticker.Stop()
	log.Infof("[Worker] Stuck sweeper running (lease=%s, interval=%s)", processingLease, stuckSweepInterval)

	for {
		select {
		case <-m.stopCh:
			log.Info("[Worker] Stuck sweeper stopping")
			return
		case <-ticker.C:
			n, err := m.sweeper.RequeueStuckAttempts(time.Now().Add(-processingLease))
			if err != nil {
				log.Errorf("[Worker] sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Infof("[Worker] requeued %d stuck attempt(s)", n)
			}
		}
	}
}

// counterFlusher drains the pending merchant order/revenue counters from
// Redis into the merchants table.
func (m *Manager) counterFlusher() {
	defer m.wg.Done()
	ticker := time.NewTicker(counterFlushInterval)
	defer ticker.Stop()
	log.Infof("[Worker] Counter flusher running (interval=%s)", counterFlushInterval)

	for {
		select {
		case <-m.stopCh:
			// Final flush so counters survive a clean shutdown.
			if err := counter.FlushAll(); err != nil {
				log.Errorf("[Worker] final counter flush failed: %v", err)
			}
			log.Info("[Worker] Counter flusher stopping")
			return
		case <-ticker.C:
			if err := counter.FlushAll(); err != nil {
				log.Errorf("[Worker] counter flush failed: %v", err)
			}
		}
	}
}

// RedisNotifier nudges the webhook consumer through the Redis list.
type RedisNotifier struct{}

func NewRedisNotifier() *RedisNotifier {
	return &RedisNotifier{}
}

func (n *RedisNotifier) Nudge(gatewayEventID string) {
	if err := cache.LPush(WebhookNudgeKey, gatewayEventID); err != nil {
		log.Errorf("[Worker] nudge for event %s failed: %v", gatewayEventID, err)
	}
}
