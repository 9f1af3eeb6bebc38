package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"opd-token-allocation/config"
	"opd-token-allocation/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrSlotLockNotAcquired is returned when another holder keeps the slot lock past SlotLockWait
var ErrSlotLockNotAcquired = errors.New("slot lock not acquired")

// releaseLockScript deletes the lock only when it still carries our owner id,
// so a holder whose TTL expired never frees somebody else's lock.
var releaseLockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

const (
	slotKeyPrefix  = "slot:"
	tokenKeyPrefix = "token:"

	lockRetryInterval = 25 * time.Millisecond
)

// SlotQueueService owns the Redis side of a slot: the waiting and allocated
// sorted sets, the advisory slot lock and the no-show grace markers.
//
// Every write is idempotent (ZADD upserts, ZREM ignores absent members), so
// a lost write after a committed DB change is repaired by reconciliation.
type SlotQueueService struct {
	redisClient *redis.Client
	log         *logrus.Logger

	lockTTL  time.Duration
	lockWait time.Duration
	grace    time.Duration
}

func NewSlotQueueService(redisClient *redis.Client, log *logrus.Logger, cfg config.EngineConfig) *SlotQueueService {
	return &SlotQueueService{
		redisClient: redisClient,
		log:         log,
		lockTTL:     cfg.SlotLockTTL,
		lockWait:    cfg.SlotLockWait,
		grace:       cfg.NoShowGrace,
	}
}

// =============================================================================
// Keys
// =============================================================================

func WaitingQueueKey(key entity.SlotKey) string {
	return slotKeyPrefix + key.String() + ":waiting"
}

func AllocatedQueueKey(key entity.SlotKey) string {
	return slotKeyPrefix + key.String() + ":allocated"
}

// ParseQueueKey reverses WaitingQueueKey and AllocatedQueueKey. Lock keys and
// malformed keys report false.
func ParseQueueKey(redisKey string) (entity.SlotKey, bool) {
	rest, ok := strings.CutPrefix(redisKey, slotKeyPrefix)
	if !ok {
		return entity.SlotKey{}, false
	}
	if trimmed, ok := strings.CutSuffix(rest, ":waiting"); ok {
		rest = trimmed
	} else if trimmed, ok := strings.CutSuffix(rest, ":allocated"); ok {
		rest = trimmed
	} else {
		return entity.SlotKey{}, false
	}

	// doctor:slot:date, split from the right so the doctor id keeps any colons
	i := strings.LastIndex(rest, ":")
	if i < 0 {
		return entity.SlotKey{}, false
	}
	visitDate, err := entity.ParseVisitDate(rest[i+1:])
	if err != nil {
		return entity.SlotKey{}, false
	}
	rest = rest[:i]

	j := strings.LastIndex(rest, ":")
	if j <= 0 {
		return entity.SlotKey{}, false
	}
	slot := rest[j+1:]
	if _, err := entity.ParseSlot(slot); err != nil {
		return entity.SlotKey{}, false
	}

	return entity.NewSlotKey(rest[:j], slot, visitDate), true
}

func slotLockKey(key entity.SlotKey) string {
	return slotKeyPrefix + key.String() + ":lock"
}

func graceKey(tokenID string) string {
	return tokenKeyPrefix + tokenID + ":grace"
}

// =============================================================================
// Queues
// =============================================================================

func (s *SlotQueueService) AddToWaitingQueue(ctx context.Context, token *entity.Token) error {
	return s.add(ctx, WaitingQueueKey(token.SlotKey()), token)
}

func (s *SlotQueueService) AddToAllocatedQueue(ctx context.Context, token *entity.Token) error {
	return s.add(ctx, AllocatedQueueKey(token.SlotKey()), token)
}

func (s *SlotQueueService) add(ctx context.Context, queueKey string, token *entity.Token) error {
	err := s.redisClient.ZAdd(ctx, queueKey, redis.Z{Score: token.QueueScore(), Member: token.ID}).Err()
	if err != nil {
		return fmt.Errorf("zadd %s: %w", queueKey, err)
	}
	s.log.Debugf("Queued token %s in %s (score=%.0f)", token.ID, queueKey, token.QueueScore())
	return nil
}

// PollNextWaiting atomically removes and returns the best waiting token id.
// The boolean is false when the queue is empty.
func (s *SlotQueueService) PollNextWaiting(ctx context.Context, key entity.SlotKey) (string, bool, error) {
	queueKey := WaitingQueueKey(key)

	popped, err := s.redisClient.ZPopMin(ctx, queueKey, 1).Result()
	if err != nil {
		return "", false, fmt.Errorf("zpopmin %s: %w", queueKey, err)
	}
	if len(popped) == 0 {
		return "", false, nil
	}

	id, ok := popped[0].Member.(string)
	if !ok {
		return "", false, fmt.Errorf("unexpected member type %T in %s", popped[0].Member, queueKey)
	}
	return id, true, nil
}

// WeakestAllocated returns the allocated token id with the highest score.
func (s *SlotQueueService) WeakestAllocated(ctx context.Context, key entity.SlotKey) (string, bool, error) {
	queueKey := AllocatedQueueKey(key)

	ids, err := s.redisClient.ZRevRange(ctx, queueKey, 0, 0).Result()
	if err != nil {
		return "", false, fmt.Errorf("zrevrange %s: %w", queueKey, err)
	}
	if len(ids) == 0 {
		return "", false, nil
	}
	return ids[0], true, nil
}

func (s *SlotQueueService) RemoveFromAllocatedQueue(ctx context.Context, key entity.SlotKey, tokenID string) error {
	queueKey := AllocatedQueueKey(key)
	if err := s.redisClient.ZRem(ctx, queueKey, tokenID).Err(); err != nil {
		return fmt.Errorf("zrem %s: %w", queueKey, err)
	}
	return nil
}

func (s *SlotQueueService) RemoveFromWaitingQueue(ctx context.Context, key entity.SlotKey, tokenID string) error {
	queueKey := WaitingQueueKey(key)
	if err := s.redisClient.ZRem(ctx, queueKey, tokenID).Err(); err != nil {
		return fmt.Errorf("zrem %s: %w", queueKey, err)
	}
	return nil
}

// WaitingMembers lists waiting token ids, best first.
func (s *SlotQueueService) WaitingMembers(ctx context.Context, key entity.SlotKey) ([]string, error) {
	return s.redisClient.ZRange(ctx, WaitingQueueKey(key), 0, -1).Result()
}

// AllocatedMembers lists allocated token ids, best first.
func (s *SlotQueueService) AllocatedMembers(ctx context.Context, key entity.SlotKey) ([]string, error) {
	return s.redisClient.ZRange(ctx, AllocatedQueueKey(key), 0, -1).Result()
}

// ReplaceSlotQueues overwrites both sorted sets of a slot in one MULTI/EXEC.
func (s *SlotQueueService) ReplaceSlotQueues(ctx context.Context, key entity.SlotKey, waiting, allocated []entity.Token) error {
	waitingKey := WaitingQueueKey(key)
	allocatedKey := AllocatedQueueKey(key)

	pipe := s.redisClient.TxPipeline()
	pipe.Del(ctx, waitingKey, allocatedKey)
	if len(waiting) > 0 {
		pipe.ZAdd(ctx, waitingKey, toMembers(waiting)...)
	}
	if len(allocated) > 0 {
		pipe.ZAdd(ctx, allocatedKey, toMembers(allocated)...)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("replace queues for %s: %w", key, err)
	}
	return nil
}

func toMembers(tokens []entity.Token) []redis.Z {
	members := make([]redis.Z, 0, len(tokens))
	for i := range tokens {
		members = append(members, redis.Z{Score: tokens[i].QueueScore(), Member: tokens[i].ID})
	}
	return members
}

// =============================================================================
// Slot lock
// =============================================================================

// WithSlotLock runs fn while holding the slot's advisory lock. Acquisition is
// retried until SlotLockWait elapses, then ErrSlotLockNotAcquired is returned.
// The lock may expire while fn runs; callers tolerate that.
func (s *SlotQueueService) WithSlotLock(ctx context.Context, key entity.SlotKey, fn func(ctx context.Context) error) error {
	lockKey := slotLockKey(key)
	owner := uuid.NewString()

	if err := s.acquire(ctx, lockKey, owner); err != nil {
		return err
	}

	defer func() {
		// Release with a fresh context so a cancelled request still frees the lock.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.release(releaseCtx, lockKey, owner); err != nil {
			s.log.Warnf("Failed to release slot lock %s: %+v", lockKey, err)
		}
	}()

	return fn(ctx)
}

func (s *SlotQueueService) acquire(ctx context.Context, lockKey, owner string) error {
	deadline := time.Now().Add(s.lockWait)

	for {
		ok, err := s.redisClient.SetNX(ctx, lockKey, owner, s.lockTTL).Result()
		if err != nil {
			return fmt.Errorf("acquire slot lock: %w", err)
		}
		if ok {
			return nil
		}

		if time.Now().After(deadline) {
			s.log.Warnf("Slot lock %s still held after %v", lockKey, s.lockWait)
			return ErrSlotLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

func (s *SlotQueueService) release(ctx context.Context, lockKey, owner string) error {
	_, err := releaseLockScript.Run(ctx, s.redisClient, []string{lockKey}, owner).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}

// =============================================================================
// No-show grace
// =============================================================================

// StartNoShowTimer arms the grace marker read by the external no-show sweep.
func (s *SlotQueueService) StartNoShowTimer(ctx context.Context, tokenID string) error {
	if err := s.redisClient.Set(ctx, graceKey(tokenID), "1", s.grace).Err(); err != nil {
		return fmt.Errorf("set grace marker for %s: %w", tokenID, err)
	}
	return nil
}

func (s *SlotQueueService) ClearNoShowTimer(ctx context.Context, tokenID string) error {
	if err := s.redisClient.Del(ctx, graceKey(tokenID)).Err(); err != nil {
		return fmt.Errorf("clear grace marker for %s: %w", tokenID, err)
	}
	return nil
}

// HasNoShowGrace reports whether the token is still inside its grace window.
func (s *SlotQueueService) HasNoShowGrace(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.redisClient.Exists(ctx, graceKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("check grace marker for %s: %w", tokenID, err)
	}
	return n > 0, nil
}
