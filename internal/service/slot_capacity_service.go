package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"opd-token-allocation/config"
	"opd-token-allocation/internal/domain/entity"
	"opd-token-allocation/internal/domain/repository"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const capacityKeyPrefix = "capacity:"

var ErrNegativeCapacity = errors.New("capacity must not be negative")

// SlotCapacity is a point-in-time view of a slot's bookkeeping
type SlotCapacity struct {
	MaxCapacity      int
	CurrentAllocated int
	AvailableSlots   int
	ReservedBuffer   int
}

// SlotCapacityService answers "may one more token enter this slot" from the
// cached ceiling in Redis and the durable token counts.
//
// Reads fail closed: a store error is logged and treated as no capacity.
type SlotCapacityService struct {
	redisClient *redis.Client
	log         *logrus.Logger
	tokenRepo   repository.TokenRepository

	defaultCapacity int
	reservedBuffer  int
	capacityTTL     time.Duration
}

func NewSlotCapacityService(redisClient *redis.Client, log *logrus.Logger, tokenRepo repository.TokenRepository, cfg config.EngineConfig) *SlotCapacityService {
	return &SlotCapacityService{
		redisClient:     redisClient,
		log:             log,
		tokenRepo:       tokenRepo,
		defaultCapacity: cfg.DefaultSlotCapacity,
		reservedBuffer:  cfg.ReservedBuffer,
		capacityTTL:     cfg.CapacityTTL,
	}
}

func CapacityKey(key entity.SlotKey) string {
	return capacityKeyPrefix + key.String()
}

// GetCapacity returns the slot ceiling, seeding the configured default on a miss.
func (s *SlotCapacityService) GetCapacity(ctx context.Context, key entity.SlotKey) (int, error) {
	capKey := CapacityKey(key)

	capacity, err := s.redisClient.Get(ctx, capKey).Int()
	if err == nil {
		return capacity, nil
	}
	if !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("get capacity %s: %w", capKey, err)
	}

	// SETNX so a concurrent override is never clobbered by the default.
	if err := s.redisClient.SetNX(ctx, capKey, s.defaultCapacity, s.capacityTTL).Err(); err != nil {
		return 0, fmt.Errorf("seed capacity %s: %w", capKey, err)
	}

	capacity, err = s.redisClient.Get(ctx, capKey).Int()
	if err != nil {
		return 0, fmt.Errorf("get capacity %s: %w", capKey, err)
	}
	return capacity, nil
}

// SetCapacity overrides the slot ceiling.
func (s *SlotCapacityService) SetCapacity(ctx context.Context, key entity.SlotKey, capacity int) error {
	if capacity < 0 {
		return ErrNegativeCapacity
	}

	capKey := CapacityKey(key)
	if err := s.redisClient.Set(ctx, capKey, capacity, s.capacityTTL).Err(); err != nil {
		return fmt.Errorf("set capacity %s: %w", capKey, err)
	}

	s.log.Infof("Capacity for %s set to %d", key, capacity)
	return nil
}

// CurrentAllocation counts tokens holding or waiting for a place in the slot.
func (s *SlotCapacityService) CurrentAllocation(ctx context.Context, key entity.SlotKey) (int, error) {
	count, err := s.tokenRepo.CountBySlot(ctx, key, entity.ActiveStatuses)
	if err != nil {
		return 0, fmt.Errorf("count allocation for %s: %w", key, err)
	}
	return int(count), nil
}

// HasAvailableCapacity reports whether a regular token fits while keeping the reserved buffer free.
func (s *SlotCapacityService) HasAvailableCapacity(ctx context.Context, key entity.SlotKey) bool {
	snap, err := s.Snapshot(ctx, key)
	if err != nil {
		s.log.Warnf("Capacity check failed for %s, treating slot as full: %+v", key, err)
		return false
	}
	return snap.MaxCapacity-snap.CurrentAllocated-s.reservedBuffer > 0
}

// HasEmergencyCapacity ignores the reserved buffer and only checks the ceiling.
func (s *SlotCapacityService) HasEmergencyCapacity(ctx context.Context, key entity.SlotKey) bool {
	snap, err := s.Snapshot(ctx, key)
	if err != nil {
		s.log.Warnf("Emergency capacity check failed for %s, treating slot as full: %+v", key, err)
		return false
	}
	return snap.CurrentAllocated < snap.MaxCapacity
}

// HasPromotableCapacity decides whether the waiting queue may promote one more
// token. Waiting tokens already count toward CurrentAllocation, so only the
// tokens holding a position (ALLOCATED, IN_PROGRESS) are weighed here.
func (s *SlotCapacityService) HasPromotableCapacity(ctx context.Context, key entity.SlotKey) bool {
	capacity, err := s.GetCapacity(ctx, key)
	if err != nil {
		s.log.Warnf("Capacity read failed for %s, stopping promotion: %+v", key, err)
		return false
	}

	held, err := s.tokenRepo.CountBySlot(ctx, key, entity.HeldStatuses)
	if err != nil {
		s.log.Warnf("Held count failed for %s, stopping promotion: %+v", key, err)
		return false
	}

	return capacity-int(held)-s.reservedBuffer > 0
}

// SnapshotOrClosed is Snapshot for callers that report capacity rather than
// act on it: a store failure is logged and yields a slot with no capacity.
func (s *SlotCapacityService) SnapshotOrClosed(ctx context.Context, key entity.SlotKey) *SlotCapacity {
	snap, err := s.Snapshot(ctx, key)
	if err != nil {
		s.log.Warnf("Capacity snapshot failed for %s, reporting zero capacity: %+v", key, err)
		return &SlotCapacity{ReservedBuffer: s.reservedBuffer}
	}
	return snap
}

func (s *SlotCapacityService) Snapshot(ctx context.Context, key entity.SlotKey) (*SlotCapacity, error) {
	capacity, err := s.GetCapacity(ctx, key)
	if err != nil {
		return nil, err
	}

	allocated, err := s.CurrentAllocation(ctx, key)
	if err != nil {
		return nil, err
	}

	available := capacity - allocated - s.reservedBuffer
	if available < 0 {
		available = 0
	}

	return &SlotCapacity{
		MaxCapacity:      capacity,
		CurrentAllocated: allocated,
		AvailableSlots:   available,
		ReservedBuffer:   s.reservedBuffer,
	}, nil
}
