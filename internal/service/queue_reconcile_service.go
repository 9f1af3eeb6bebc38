package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"opd-token-allocation/internal/domain/entity"
	"opd-token-allocation/internal/domain/repository"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Active tokens are read 500 rows at a time.
const reconcileBatchSize = 500

// ReconcileResult summarises one reconciliation pass
type ReconcileResult struct {
	Tokens    int
	Slots     int
	Skipped   int
	Waiting   int
	Allocated int
	Elapsed   time.Duration
}

// QueueReconcileService rebuilds the Redis slot queues from durable token status.
//
// The token table is the source of truth; the sorted sets are a derived index
// that can drift when a process dies between a DB commit and the queue write.
// A pass collects the slots to rebuild from two places: active tokens in the
// token table, read page by page, and existing queue keys in Redis for the
// covered dates. Each slot is then rebuilt under its slot lock from a fresh
// read of its active tokens, so a request handled during the pass is never
// overwritten. A slot with no active tokens left ends up with empty queues.
type QueueReconcileService struct {
	redisClient *redis.Client
	log         *logrus.Logger
	tokenRepo   repository.TokenRepository
	queue       *SlotQueueService

	now func() time.Time

	// Graceful shutdown of the periodic loop
	stopChan chan struct{}
	wg       sync.WaitGroup
	started  atomic.Bool
	stopped  atomic.Bool
}

func NewQueueReconcileService(redisClient *redis.Client, log *logrus.Logger, tokenRepo repository.TokenRepository, queue *SlotQueueService) *QueueReconcileService {
	return &QueueReconcileService{
		redisClient: redisClient,
		log:         log,
		tokenRepo:   tokenRepo,
		queue:       queue,
		now:         time.Now,
		stopChan:    make(chan struct{}),
	}
}

// Reconcile rebuilds queues for every slot on or after from that has active
// tokens or an existing queue key. A slot whose lock stays busy is skipped;
// live traffic owns it and the next pass picks it up.
func (s *QueueReconcileService) Reconcile(ctx context.Context, from time.Time) (*ReconcileResult, error) {
	from = entity.NormalizeDate(from)
	s.log.Infof("Starting queue reconciliation from %s", from.Format(entity.DateLayout))
	startTime := s.now()

	if err := s.redisClient.Ping(ctx).Err(); err != nil {
		s.log.Warnf("Redis is not available, skipping reconciliation: %+v", err)
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	keys := make(map[string]entity.SlotKey)
	result := &ReconcileResult{}

	tokens, err := s.collectTokenSlots(ctx, from, keys)
	if err != nil {
		return nil, err
	}
	result.Tokens = tokens

	if err := s.collectQueueSlots(ctx, from, keys); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for id := range keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		waiting, allocated, err := s.rebuildSlot(ctx, keys[id])
		if errors.Is(err, ErrSlotLockNotAcquired) {
			s.log.Warnf("Slot %s is busy, leaving its queues to the next pass", id)
			result.Skipped++
			continue
		}
		if err != nil {
			s.log.Errorf("Failed to rebuild queues for %s: %+v", id, err)
			return nil, err
		}
		result.Slots++
		result.Waiting += waiting
		result.Allocated += allocated
	}

	result.Elapsed = s.now().Sub(startTime)
	s.log.Infof("Queue reconciliation completed: %d tokens across %d slots (%d skipped) in %v",
		result.Tokens, result.Slots, result.Skipped, result.Elapsed)

	return result, nil
}

// collectTokenSlots adds the slot of every active token on or after from to
// keys and returns how many tokens it read.
func (s *QueueReconcileService) collectTokenSlots(ctx context.Context, from time.Time, keys map[string]entity.SlotKey) (int, error) {
	total := 0
	afterID := ""

	for {
		tokens, err := s.tokenRepo.FindActiveFrom(ctx, from, afterID, reconcileBatchSize)
		if err != nil {
			s.log.Errorf("Failed to read active tokens after %q: %+v", afterID, err)
			return 0, fmt.Errorf("read active tokens after %q: %w", afterID, err)
		}

		for _, t := range tokens {
			key := t.SlotKey()
			keys[key.String()] = key
		}
		total += len(tokens)
		s.log.Debugf("Reconcile batch: %d tokens after %q", len(tokens), afterID)

		if len(tokens) < reconcileBatchSize {
			return total, nil
		}
		afterID = tokens[len(tokens)-1].ID

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
	}
}

// collectQueueSlots adds every slot on or after from that still has a queue
// key in Redis, so queues of fully drained slots are cleared too.
func (s *QueueReconcileService) collectQueueSlots(ctx context.Context, from time.Time, keys map[string]entity.SlotKey) error {
	iter := s.redisClient.Scan(ctx, 0, slotKeyPrefix+"*", reconcileBatchSize).Iterator()
	for iter.Next(ctx) {
		key, ok := ParseQueueKey(iter.Val())
		if !ok || key.VisitDate.Before(from) {
			continue
		}
		keys[key.String()] = key
	}
	if err := iter.Err(); err != nil {
		s.log.Errorf("Failed to scan slot queue keys: %+v", err)
		return fmt.Errorf("scan slot queue keys: %w", err)
	}
	return nil
}

// rebuildSlot replaces one slot's queues with its active tokens, read under the slot lock.
func (s *QueueReconcileService) rebuildSlot(ctx context.Context, key entity.SlotKey) (waiting, allocated int, err error) {
	err = s.queue.WithSlotLock(ctx, key, func(ctx context.Context) error {
		tokens, err := s.tokenRepo.FindBySlot(ctx, key, entity.ActiveStatuses)
		if err != nil {
			return fmt.Errorf("read active tokens of %s: %w", key, err)
		}

		var w, a []entity.Token
		for _, t := range tokens {
			switch t.Status {
			case entity.TokenStatusWaiting:
				w = append(w, t)
			case entity.TokenStatusAllocated, entity.TokenStatusInProgress:
				a = append(a, t)
			}
		}

		if err := s.queue.ReplaceSlotQueues(ctx, key, w, a); err != nil {
			return err
		}
		waiting, allocated = len(w), len(a)
		return nil
	})
	return waiting, allocated, err
}

// Start runs Reconcile every interval for today's and later visit dates until Stop is called.
func (s *QueueReconcileService) Start(interval time.Duration) {
	if interval <= 0 || !s.started.CompareAndSwap(false, true) {
		return
	}

	s.wg.Add(1)
	go s.loop(interval)
}

// Stop ends the periodic loop. Safe to call multiple times.
func (s *QueueReconcileService) Stop() {
	if s.stopped.CompareAndSwap(false, true) {
		close(s.stopChan)
		s.wg.Wait()
		s.log.Info("QueueReconcileService stopped")
	}
}

func (s *QueueReconcileService) loop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			s.log.Debug("Reconcile loop stopping")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			if _, err := s.Reconcile(ctx, entity.NormalizeDate(s.now())); err != nil {
				s.log.Warnf("Periodic reconciliation failed: %+v", err)
			}
			cancel()
		}
	}
}
