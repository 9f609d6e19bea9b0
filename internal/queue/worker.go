package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"flashdeal-api/internal/lock"
	"flashdeal-api/internal/model"
	"flashdeal-api/internal/repository"
)

// recoveryDelay separates pending-list iterations after a failure so a
// poisoned entry does not spin the worker.
const recoveryDelay = 200 * time.Millisecond

// Worker is the single logical consumer that makes admitted orders durable.
// It re-checks per-user idempotency and decrements durable stock before
// inserting, so the end state is exactly-once even though stream delivery is
// at-least-once.
type Worker struct {
	queue      *Queue
	locker     *lock.Locker
	promotions repository.PromotionRepository
	orders     repository.OrderRepository

	blockTimeout  time.Duration
	lockTTL       time.Duration
	maxDeliveries int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WorkerConfig holds worker tuning knobs.
type WorkerConfig struct {
	BlockTimeout  time.Duration // bounded wait on the blocking stream read
	LockTTL       time.Duration // lease for the per-user order lock
	MaxDeliveries int64         // deliveries before an entry is dead-lettered
}

// NewWorker creates a persistence worker.
func NewWorker(q *Queue, locker *lock.Locker, promotions repository.PromotionRepository, orders repository.OrderRepository, cfg WorkerConfig) *Worker {
	return &Worker{
		queue:         q,
		locker:        locker,
		promotions:    promotions,
		orders:        orders,
		blockTimeout:  cfg.BlockTimeout,
		lockTTL:       cfg.LockTTL,
		maxDeliveries: cfg.MaxDeliveries,
	}
}

// Start ensures the consumer group exists, drains any deliveries left over
// from a previous crash, and begins consuming.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.queue.EnsureGroup(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(1)
	go w.run(runCtx)

	log.Printf("[OrderWorker] Started on stream %q", w.queue.Stream())
	return nil
}

// Stop signals the consume loop to exit and waits for it.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	log.Printf("[OrderWorker] Stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	// Crash recovery: anything delivered but unacknowledged by an earlier
	// run is processed before new entries.
	w.drainPending(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := w.queue.ReadNew(ctx, w.blockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[OrderWorker] Stream read failed: %v", err)
			w.drainPending(ctx)
			continue
		}
		if msg == nil {
			// Wait window elapsed; loop so shutdown stays responsive.
			continue
		}

		if err := w.handle(ctx, msg); err != nil {
			log.Printf("[OrderWorker] Failed to handle %s: %v", msg.ID, err)
			w.drainPending(ctx)
		}
	}
}

// drainPending processes the pending-entries list from the start until it is
// empty. Entries that keep failing are dead-lettered once their delivery
// count exceeds the cap, so a malformed entry cannot loop forever.
func (w *Worker) drainPending(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := w.queue.ReadPending(ctx)
		if err != nil {
			log.Printf("[OrderWorker] Pending read failed: %v", err)
			sleepCtx(ctx, recoveryDelay)
			continue
		}
		if msg == nil {
			return
		}

		if err := w.handle(ctx, msg); err != nil {
			log.Printf("[OrderWorker] Pending entry %s failed: %v", msg.ID, err)
			sleepCtx(ctx, recoveryDelay)
		}
	}
}

// handle persists one delivered entry and acknowledges it. A nil return
// always means the entry was acknowledged (persisted, skipped as a
// duplicate, or dead-lettered).
func (w *Worker) handle(ctx context.Context, msg *Message) error {
	deliveries, err := w.queue.DeliveryCount(ctx, msg.ID)
	if err != nil {
		return err
	}
	if deliveries > w.maxDeliveries {
		log.Printf("[OrderWorker] Entry %s exceeded %d deliveries, dead-lettering", msg.ID, w.maxDeliveries)
		return w.queue.DeadLetter(ctx, msg)
	}

	order, err := msg.Order()
	if err != nil {
		// Malformed entries can never succeed; their delivery count keeps
		// climbing until the dead-letter cap takes them out of the loop.
		return fmt.Errorf("malformed entry %s: %w", msg.ID, err)
	}

	if err := w.persist(ctx, order); err != nil {
		return err
	}

	return w.queue.Ack(ctx, msg.ID)
}

// persist writes the order to the relational store. The per-user lock and
// the idempotency re-check duplicate the admission script's guarantees:
// stock and one-order-per-user hold even if an entry is replayed or the
// Redis state was rebuilt.
func (w *Worker) persist(ctx context.Context, order *model.Order) error {
	lease, ok, err := w.locker.TryAcquire(ctx, fmt.Sprintf("order:%d", order.UserID), w.lockTTL)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("order lock busy for user %d", order.UserID)
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			log.Printf("[OrderWorker] Failed to release order lock for user %d: %v", order.UserID, err)
		}
	}()

	exists, err := w.orders.ExistsByUserAndPromotion(ctx, order.UserID, order.PromotionID)
	if err != nil {
		return fmt.Errorf("idempotency check for order %d failed: %w", order.ID, err)
	}
	if exists {
		log.Printf("[OrderWorker] Order for user %d on promotion %d already persisted, skipping %d",
			order.UserID, order.PromotionID, order.ID)
		return nil
	}

	decremented, err := w.promotions.DecrementStock(ctx, order.PromotionID)
	if err != nil {
		return fmt.Errorf("stock decrement for promotion %d failed: %w", order.PromotionID, err)
	}
	if !decremented {
		return fmt.Errorf("durable stock exhausted for promotion %d (order %d)", order.PromotionID, order.ID)
	}

	if err := w.orders.Save(ctx, order); err != nil {
		return fmt.Errorf("failed to persist order %d: %w", order.ID, err)
	}

	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
