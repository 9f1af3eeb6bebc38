package usecase

import (
	"context"
	"fmt"
	"time"

	"opd-token-allocation/internal/domain/entity"
	"opd-token-allocation/internal/domain/repository"
	"opd-token-allocation/internal/service"

	"github.com/sirupsen/logrus"
)

type TokenReallocationUsecase interface {
	FindAlternativeSlot(ctx context.Context, doctorID string, visitDate time.Time, requestedSlot string) (string, bool, error)
	ProcessWaitingQueue(ctx context.Context, doctorID, slot string, visitDate time.Time) (int, error)
	CancelToken(ctx context.Context, tokenID, reason string) (*entity.Token, error)
	MarkNoShow(ctx context.Context, tokenID string) (*entity.Token, error)
	InsertEmergencyToken(ctx context.Context, tokenID string) (*entity.Token, error)
	StartToken(ctx context.Context, tokenID string) (*entity.Token, error)
	CompleteToken(ctx context.Context, tokenID string) (*entity.Token, error)
	SetSlotCapacity(ctx context.Context, doctorID, slot string, visitDate time.Time, capacity int) (*service.SlotCapacity, error)
	HandleDelay(ctx context.Context, doctorID, slot string, visitDate time.Time, delayMinutes int) error
}

type tokenReallocationUsecase struct {
	*slotOps
	doctorRepo  repository.DoctorRepository
	patientRepo repository.PatientRepository
}

func NewTokenReallocationUsecase(
	log *logrus.Logger,
	tokenRepo repository.TokenRepository,
	doctorRepo repository.DoctorRepository,
	patientRepo repository.PatientRepository,
	queue *service.SlotQueueService,
	capacity *service.SlotCapacityService,
	events service.TokenEventService,
) TokenReallocationUsecase {
	return newTokenReallocationUsecase(log, tokenRepo, doctorRepo, patientRepo, queue, capacity, events, time.Now)
}

func newTokenReallocationUsecase(
	log *logrus.Logger,
	tokenRepo repository.TokenRepository,
	doctorRepo repository.DoctorRepository,
	patientRepo repository.PatientRepository,
	queue *service.SlotQueueService,
	capacity *service.SlotCapacityService,
	events service.TokenEventService,
	now func() time.Time,
) *tokenReallocationUsecase {
	return &tokenReallocationUsecase{
		slotOps: &slotOps{
			log:       log,
			tokenRepo: tokenRepo,
			queue:     queue,
			capacity:  capacity,
			events:    events,
			now:       now,
		},
		doctorRepo:  doctorRepo,
		patientRepo: patientRepo,
	}
}

// FindAlternativeSlot picks, among the doctor's other slots with regular
// capacity, the one whose start is closest to the requested slot's start.
// Equal distances resolve to the lexically smaller slot id.
func (u *tokenReallocationUsecase) FindAlternativeSlot(ctx context.Context, doctorID string, visitDate time.Time, requestedSlot string) (string, bool, error) {
	requested, err := entity.ParseSlot(requestedSlot)
	if err != nil {
		return "", false, nil
	}

	doctor, err := u.doctorRepo.FindByID(ctx, doctorID)
	if err != nil {
		u.log.Warnf("Failed to find doctor %s: %+v", doctorID, err)
		return "", false, storeFailure("load doctor", err)
	}
	if doctor == nil {
		return "", false, nil
	}

	best := ""
	bestDistance := -1
	for _, slot := range doctor.SlotIDs() {
		if slot == requestedSlot {
			continue
		}
		candidate, err := entity.ParseSlot(slot)
		if err != nil {
			continue
		}
		if !u.capacity.HasAvailableCapacity(ctx, entity.NewSlotKey(doctorID, slot, visitDate)) {
			continue
		}

		distance := candidate.StartMinutes() - requested.StartMinutes()
		if distance < 0 {
			distance = -distance
		}
		if bestDistance < 0 || distance < bestDistance {
			best, bestDistance = slot, distance
		}
	}

	return best, best != "", nil
}

// ProcessWaitingQueue promotes waiting tokens of a slot while it has room.
//
// Flow:
// 1. Take the slot lock
// 2. Pop the best waiting token (ZPOPMIN)
// 3. Skip it when its record is gone or no longer WAITING
// 4. Otherwise allocate it with the next token number
// 5. Repeat until the queue empties or capacity runs out
func (u *tokenReallocationUsecase) ProcessWaitingQueue(ctx context.Context, doctorID, slot string, visitDate time.Time) (int, error) {
	key := entity.NewSlotKey(doctorID, slot, visitDate)

	var promoted int
	err := u.queue.WithSlotLock(ctx, key, func(ctx context.Context) error {
		var err error
		promoted, err = u.drain(ctx, key)
		return err
	})
	return promoted, lockError(key, err)
}

// CancelToken cancels a token that has not finished and refills its place from the waiting queue.
func (u *tokenReallocationUsecase) CancelToken(ctx context.Context, tokenID, reason string) (*entity.Token, error) {
	return u.finish(ctx, tokenID, func(ctx context.Context, token *entity.Token) error {
		if err := token.TransitionTo(entity.TokenStatusCancelled, u.now()); err != nil {
			return newTokenError(KindInvalidState, ReasonIllegalState, fmt.Sprintf("token %s cannot be cancelled from %s", token.ID, token.Status))
		}
		token.CancellationReason = reason

		if err := u.tokenRepo.Save(ctx, token); err != nil {
			u.log.Warnf("Failed to save cancelled token %s: %+v", token.ID, err)
			return storeFailure("save token", err)
		}

		u.events.Record(ctx, token.ID, token.SlotKey(), entity.TokenEventCancelled, map[string]any{"reason": reason})
		u.log.Infof("Token %s cancelled: %s", token.ID, reason)
		return nil
	})
}

// MarkNoShow expires a token whose patient did not turn up and refills its place.
func (u *tokenReallocationUsecase) MarkNoShow(ctx context.Context, tokenID string) (*entity.Token, error) {
	return u.finish(ctx, tokenID, func(ctx context.Context, token *entity.Token) error {
		if err := token.TransitionTo(entity.TokenStatusExpired, u.now()); err != nil {
			return newTokenError(KindInvalidState, ReasonIllegalState, fmt.Sprintf("token %s cannot be marked no-show from %s", token.ID, token.Status))
		}

		if err := u.tokenRepo.Save(ctx, token); err != nil {
			u.log.Warnf("Failed to save expired token %s: %+v", token.ID, err)
			return storeFailure("save token", err)
		}

		if err := u.patientRepo.IncrementNoShow(ctx, token.PatientID); err != nil {
			u.log.Warnf("Failed to increment no-show count for patient %s: %+v", token.PatientID, err)
		}

		u.events.Record(ctx, token.ID, token.SlotKey(), entity.TokenEventNoShow, nil)
		u.log.Infof("Token %s marked as no-show", token.ID)
		return nil
	})
}

// CompleteToken finishes a consultation. An ALLOCATED token is walked through
// IN_PROGRESS first so every status change goes through the transition table.
func (u *tokenReallocationUsecase) CompleteToken(ctx context.Context, tokenID string) (*entity.Token, error) {
	return u.finish(ctx, tokenID, func(ctx context.Context, token *entity.Token) error {
		now := u.now()
		if token.Status == entity.TokenStatusAllocated {
			if err := token.TransitionTo(entity.TokenStatusInProgress, now); err != nil {
				return newTokenError(KindInvalidState, ReasonIllegalState, err.Error())
			}
		}
		if err := token.TransitionTo(entity.TokenStatusCompleted, now); err != nil {
			return newTokenError(KindInvalidState, ReasonIllegalState, fmt.Sprintf("token %s cannot be completed from %s", token.ID, token.Status))
		}

		if err := u.tokenRepo.Save(ctx, token); err != nil {
			u.log.Warnf("Failed to save completed token %s: %+v", token.ID, err)
			return storeFailure("save token", err)
		}

		u.events.Record(ctx, token.ID, token.SlotKey(), entity.TokenEventCompleted, nil)
		u.log.Infof("Token %s completed", token.ID)
		return nil
	})
}

// finish runs a terminal step under the slot lock, then drops the token from
// the queues and drains the waiting queue into the freed place.
func (u *tokenReallocationUsecase) finish(ctx context.Context, tokenID string, step func(ctx context.Context, token *entity.Token) error) (*entity.Token, error) {
	token, err := u.findToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	key := token.SlotKey()

	err = u.queue.WithSlotLock(ctx, key, func(ctx context.Context) error {
		// Re-read under the lock so two concurrent calls cannot both pass the state check.
		current, err := u.findToken(ctx, tokenID)
		if err != nil {
			return err
		}
		if err := step(ctx, current); err != nil {
			return err
		}
		token = current

		u.release(ctx, token)

		if _, err := u.drain(ctx, key); err != nil {
			u.log.Warnf("Waiting queue drain for %s stopped early: %+v", key, err)
		}
		return nil
	})
	if err := lockError(key, err); err != nil {
		return nil, err
	}

	return token, nil
}

// StartToken calls an allocated patient in.
func (u *tokenReallocationUsecase) StartToken(ctx context.Context, tokenID string) (*entity.Token, error) {
	token, err := u.findToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	key := token.SlotKey()

	err = u.queue.WithSlotLock(ctx, key, func(ctx context.Context) error {
		current, err := u.findToken(ctx, tokenID)
		if err != nil {
			return err
		}
		if err := current.TransitionTo(entity.TokenStatusInProgress, u.now()); err != nil {
			return newTokenError(KindInvalidState, ReasonIllegalState, fmt.Sprintf("token %s cannot be started from %s", current.ID, current.Status))
		}
		if err := u.tokenRepo.Save(ctx, current); err != nil {
			u.log.Warnf("Failed to save started token %s: %+v", current.ID, err)
			return storeFailure("save token", err)
		}
		token = current

		u.clearGrace(ctx, token.ID)
		u.events.Record(ctx, token.ID, key, entity.TokenEventStarted, nil)
		return nil
	})
	if err := lockError(key, err); err != nil {
		return nil, err
	}

	u.log.Infof("Token %s started", token.ID)
	return token, nil
}

// InsertEmergencyToken moves an emergency token to the head of its slot.
//
// Flow:
// 1. Token must exist, carry the emergency flag and be WAITING or ALLOCATED
// 2. Slot must be below its ceiling (reserved buffer may be used)
// 3. Priority 0, token number 1, other ALLOCATED tokens shift back by one (one DB transaction)
// 4. Push to the allocated queue
//
// No drain follows: the insert consumes capacity instead of freeing it.
func (u *tokenReallocationUsecase) InsertEmergencyToken(ctx context.Context, tokenID string) (*entity.Token, error) {
	token, err := u.findToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	key := token.SlotKey()

	err = u.queue.WithSlotLock(ctx, key, func(ctx context.Context) error {
		current, err := u.findToken(ctx, tokenID)
		if err != nil {
			return err
		}
		if !current.Emergency {
			return newTokenError(KindInvalidState, ReasonNotEmergency, fmt.Sprintf("token %s is not flagged as emergency", current.ID))
		}

		wasWaiting := current.Status == entity.TokenStatusWaiting
		if !wasWaiting && current.Status != entity.TokenStatusAllocated {
			return newTokenError(KindInvalidState, ReasonIllegalState, fmt.Sprintf("token %s cannot be inserted from %s", current.ID, current.Status))
		}

		if !u.capacity.HasEmergencyCapacity(ctx, key) {
			return newTokenError(KindCapacityExhausted, ReasonEmergencyCapacityExhausted, fmt.Sprintf("slot %s has no emergency capacity", key))
		}

		if wasWaiting {
			if err := current.TransitionTo(entity.TokenStatusAllocated, u.now()); err != nil {
				return newTokenError(KindInvalidState, ReasonIllegalState, err.Error())
			}
		}
		current.Priority = entity.PriorityEmergency
		current.SetNumber(1)

		if err := u.tokenRepo.PromoteEmergency(ctx, current); err != nil {
			u.log.Warnf("Failed to insert emergency token %s: %+v", current.ID, err)
			return storeFailure("insert emergency token", err)
		}
		token = current

		if wasWaiting {
			if err := u.queue.RemoveFromWaitingQueue(ctx, key, token.ID); err != nil {
				u.log.Warnf("Failed to remove token %s from waiting queue: %+v", token.ID, err)
			}
			u.armGrace(ctx, token.ID)
		}
		u.pushAllocated(ctx, token)

		u.events.Record(ctx, token.ID, key, entity.TokenEventEmergencyInserted, nil)
		return nil
	})
	if err := lockError(key, err); err != nil {
		return nil, err
	}

	u.log.Infof("Emergency token %s inserted at the head of %s", token.ID, key)
	return token, nil
}

// SetSlotCapacity overrides a slot's ceiling and drains the waiting queue into any room it opened.
func (u *tokenReallocationUsecase) SetSlotCapacity(ctx context.Context, doctorID, slot string, visitDate time.Time, capacity int) (*service.SlotCapacity, error) {
	if capacity < 0 {
		return nil, newTokenError(KindInvalidState, ReasonInvalidCapacity, "capacity must not be negative")
	}
	key := entity.NewSlotKey(doctorID, slot, visitDate)

	err := u.queue.WithSlotLock(ctx, key, func(ctx context.Context) error {
		if err := u.capacity.SetCapacity(ctx, key, capacity); err != nil {
			u.log.Warnf("Failed to set capacity for %s: %+v", key, err)
			return storeFailure("set capacity", err)
		}

		u.events.Record(ctx, "", key, entity.TokenEventCapacityChanged, map[string]any{"capacity": capacity})

		if _, err := u.drain(ctx, key); err != nil {
			u.log.Warnf("Waiting queue drain for %s stopped early: %+v", key, err)
		}
		return nil
	})
	if err := lockError(key, err); err != nil {
		return nil, err
	}

	snap, err := u.capacity.Snapshot(ctx, key)
	if err != nil {
		u.log.Warnf("Failed to read capacity snapshot for %s: %+v", key, err)
		return nil, storeFailure("read capacity", err)
	}
	return snap, nil
}

// HandleDelay records that a slot runs late. Patients are not renumbered.
func (u *tokenReallocationUsecase) HandleDelay(ctx context.Context, doctorID, slot string, visitDate time.Time, delayMinutes int) error {
	if delayMinutes <= 0 {
		return newTokenError(KindInvalidState, ReasonInvalidRequest, "delay must be a positive number of minutes")
	}
	key := entity.NewSlotKey(doctorID, slot, visitDate)

	u.log.WithFields(logrus.Fields{
		"slot":          key.String(),
		"delay_minutes": delayMinutes,
	}).Info("slot delayed")
	u.events.Record(ctx, "", key, entity.TokenEventSlotDelayed, map[string]any{"delay_minutes": delayMinutes})

	return nil
}
