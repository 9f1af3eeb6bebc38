package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"opd-token-allocation/internal/domain/entity"
	"opd-token-allocation/internal/domain/repository"
	"opd-token-allocation/internal/service"

	"github.com/sirupsen/logrus"
)

// slotOps holds the steps shared by the allocation and reallocation engines.
// Every method expects the caller to hold the slot lock of the token's slot.
type slotOps struct {
	log       *logrus.Logger
	tokenRepo repository.TokenRepository
	queue     *service.SlotQueueService
	capacity  *service.SlotCapacityService
	events    service.TokenEventService
	now       func() time.Time
}

// seat gives token the next number in its slot, marks it ALLOCATED and
// persists it. The queue write and grace marker that follow are best-effort.
func (o *slotOps) seat(ctx context.Context, token *entity.Token, isNew bool) error {
	key := token.SlotKey()

	maxNumber, err := o.tokenRepo.MaxTokenNumber(ctx, key)
	if err != nil {
		o.log.Warnf("Failed to read max token number for %s: %+v", key, err)
		return storeFailure("read token numbers", err)
	}
	token.SetNumber(maxNumber + 1)

	if isNew {
		token.Status = entity.TokenStatusAllocated
		if err := o.tokenRepo.Create(ctx, token); err != nil {
			return o.createFailure(token, err)
		}
	} else {
		if err := token.TransitionTo(entity.TokenStatusAllocated, o.now()); err != nil {
			return newTokenError(KindInvalidState, ReasonIllegalState, err.Error())
		}
		if err := o.tokenRepo.Save(ctx, token); err != nil {
			o.log.Warnf("Failed to save token %s: %+v", token.ID, err)
			return storeFailure("save token", err)
		}
	}

	o.pushAllocated(ctx, token)
	o.armGrace(ctx, token.ID)
	return nil
}

// enqueue persists token as WAITING and pushes it to its slot's waiting queue.
func (o *slotOps) enqueue(ctx context.Context, token *entity.Token) error {
	token.Status = entity.TokenStatusWaiting
	token.TokenNumber = nil

	if err := o.tokenRepo.Create(ctx, token); err != nil {
		return o.createFailure(token, err)
	}

	if err := o.queue.AddToWaitingQueue(ctx, token); err != nil {
		o.log.Warnf("Failed to push token %s to waiting queue, reconciliation will restore it: %+v", token.ID, err)
	}
	return nil
}

// drain promotes waiting tokens while the slot can take them and returns how many moved.
func (o *slotOps) drain(ctx context.Context, key entity.SlotKey) (int, error) {
	promoted := 0

	for o.capacity.HasPromotableCapacity(ctx, key) {
		id, ok, err := o.queue.PollNextWaiting(ctx, key)
		if err != nil {
			o.log.Warnf("Failed to poll waiting queue for %s: %+v", key, err)
			return promoted, storeFailure("poll waiting queue", err)
		}
		if !ok {
			break
		}

		token, err := o.tokenRepo.FindByID(ctx, id)
		if err != nil {
			o.log.Errorf("Popped token %s from %s but could not load it, reconciliation will restore it: %+v", id, key, err)
			return promoted, storeFailure("load waiting token", err)
		}
		if token == nil || token.Status != entity.TokenStatusWaiting {
			o.log.Debugf("Skipping stale waiting entry %s in %s", id, key)
			continue
		}

		if err := o.seat(ctx, token, false); err != nil {
			return promoted, err
		}

		promoted++
		o.events.Record(ctx, token.ID, key, entity.TokenEventPromoted, map[string]any{
			"token_number": token.Number(),
		})
		o.log.Infof("Promoted token %s in %s with number %d", token.ID, key, token.Number())
	}

	return promoted, nil
}

// release drops a token that no longer holds or waits for a position from both queues.
func (o *slotOps) release(ctx context.Context, token *entity.Token) {
	key := token.SlotKey()

	if err := o.queue.RemoveFromAllocatedQueue(ctx, key, token.ID); err != nil {
		o.log.Warnf("Failed to remove token %s from allocated queue: %+v", token.ID, err)
	}
	if err := o.queue.RemoveFromWaitingQueue(ctx, key, token.ID); err != nil {
		o.log.Warnf("Failed to remove token %s from waiting queue: %+v", token.ID, err)
	}
	o.clearGrace(ctx, token.ID)
}

func (o *slotOps) pushAllocated(ctx context.Context, token *entity.Token) {
	if err := o.queue.AddToAllocatedQueue(ctx, token); err != nil {
		o.log.Warnf("Failed to push token %s to allocated queue, reconciliation will restore it: %+v", token.ID, err)
	}
}

func (o *slotOps) armGrace(ctx context.Context, tokenID string) {
	if err := o.queue.StartNoShowTimer(ctx, tokenID); err != nil {
		o.log.Warnf("Failed to arm no-show grace for token %s: %+v", tokenID, err)
	}
}

func (o *slotOps) clearGrace(ctx context.Context, tokenID string) {
	if err := o.queue.ClearNoShowTimer(ctx, tokenID); err != nil {
		o.log.Warnf("Failed to clear no-show grace for token %s: %+v", tokenID, err)
	}
}

// createFailure maps a failed insert. A duplicate active token gets past the
// in-lock check when the same patient books two different slots at once; the
// unique index on the tokens table catches it.
func (o *slotOps) createFailure(token *entity.Token, err error) error {
	if errors.Is(err, repository.ErrDuplicateActiveToken) {
		o.log.Infof("Rejected concurrent second token for patient %s on %s", token.PatientID, token.VisitDate.Format(entity.DateLayout))
		return newTokenError(KindInvalidState, ReasonDuplicateActiveToken,
			fmt.Sprintf("patient %s already holds an active token for %s", token.PatientID, token.VisitDate.Format(entity.DateLayout)))
	}
	o.log.Warnf("Failed to create token %s: %+v", token.ID, err)
	return storeFailure("create token", err)
}

// findToken loads a token or returns a NOT_FOUND TokenError.
func (o *slotOps) findToken(ctx context.Context, id string) (*entity.Token, error) {
	token, err := o.tokenRepo.FindByID(ctx, id)
	if err != nil {
		o.log.Warnf("Failed to find token %s: %+v", id, err)
		return nil, storeFailure("load token", err)
	}
	if token == nil {
		return nil, tokenNotFound(id)
	}
	return token, nil
}
