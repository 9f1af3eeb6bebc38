package usecase

import (
	"context"
	"fmt"
	"time"

	"opd-token-allocation/internal/delivery/dto"
	"opd-token-allocation/internal/domain/entity"
	"opd-token-allocation/internal/domain/repository"
	"opd-token-allocation/internal/service"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AllocationOutcome tells the caller where the new token ended up
type AllocationOutcome string

const (
	OutcomeAllocated  AllocationOutcome = "ALLOCATED"
	OutcomeRedirected AllocationOutcome = "REDIRECTED"
	OutcomeQueued     AllocationOutcome = "QUEUED"
)

type AllocationResult struct {
	Token         *entity.Token
	Outcome       AllocationOutcome
	RequestedSlot string
	Message       string
}

type TokenAllocationUsecase interface {
	Allocate(ctx context.Context, req *dto.AllocateTokenRequest) (*AllocationResult, error)
}

type tokenAllocationUsecase struct {
	*slotOps
	doctorRepo   repository.DoctorRepository
	patientRepo  repository.PatientRepository
	reallocation TokenReallocationUsecase
}

func NewTokenAllocationUsecase(
	log *logrus.Logger,
	tokenRepo repository.TokenRepository,
	doctorRepo repository.DoctorRepository,
	patientRepo repository.PatientRepository,
	queue *service.SlotQueueService,
	capacity *service.SlotCapacityService,
	events service.TokenEventService,
	reallocation TokenReallocationUsecase,
) TokenAllocationUsecase {
	return newTokenAllocationUsecase(log, tokenRepo, doctorRepo, patientRepo, queue, capacity, events, reallocation, time.Now)
}

func newTokenAllocationUsecase(
	log *logrus.Logger,
	tokenRepo repository.TokenRepository,
	doctorRepo repository.DoctorRepository,
	patientRepo repository.PatientRepository,
	queue *service.SlotQueueService,
	capacity *service.SlotCapacityService,
	events service.TokenEventService,
	reallocation TokenReallocationUsecase,
	now func() time.Time,
) *tokenAllocationUsecase {
	return &tokenAllocationUsecase{
		slotOps: &slotOps{
			log:       log,
			tokenRepo: tokenRepo,
			queue:     queue,
			capacity:  capacity,
			events:    events,
			now:       now,
		},
		doctorRepo:   doctorRepo,
		patientRepo:  patientRepo,
		reallocation: reallocation,
	}
}

// Allocate admits a token request into a doctor's slot.
//
// Flow:
// 1. Validate doctor, patient and slot (first failure wins)
// 2. Take the slot lock
// 3. Reject a second active token for the same patient and date
// 4. Emergency: allocate below the ceiling or reject, never queue
// 5. Regular: allocate when capacity beyond the reserved buffer remains
// 6. Otherwise redirect to the nearest slot with room, or queue as WAITING
func (u *tokenAllocationUsecase) Allocate(ctx context.Context, req *dto.AllocateTokenRequest) (*AllocationResult, error) {
	visitDate, err := entity.ParseVisitDate(req.VisitDate)
	if err != nil {
		return nil, newTokenError(KindInvalidState, ReasonInvalidRequest, "visit_date must be formatted as YYYY-MM-DD")
	}

	bookingType := entity.BookingType(req.BookingType)
	if !bookingType.Valid() {
		return nil, newTokenError(KindInvalidState, ReasonInvalidRequest, fmt.Sprintf("unknown booking type %q", req.BookingType))
	}

	// Step 1: Validate references
	doctor, err := u.doctorRepo.FindByID(ctx, req.DoctorID)
	if err != nil {
		u.log.Warnf("Failed to find doctor %s: %+v", req.DoctorID, err)
		return nil, storeFailure("load doctor", err)
	}
	if doctor == nil || !doctor.Active {
		return nil, newTokenError(KindNotFound, ReasonDoctorUnavailable, fmt.Sprintf("doctor %s is not available", req.DoctorID))
	}

	patient, err := u.patientRepo.FindByID(ctx, req.PatientID)
	if err != nil {
		u.log.Warnf("Failed to find patient %s: %+v", req.PatientID, err)
		return nil, storeFailure("load patient", err)
	}
	if patient == nil {
		return nil, newTokenError(KindNotFound, ReasonPatientNotFound, fmt.Sprintf("patient %s not found", req.PatientID))
	}

	if !doctor.OffersSlot(req.Slot) {
		return nil, newTokenError(KindInvalidState, ReasonSlotInvalid, fmt.Sprintf("doctor %s does not offer slot %s", doctor.ID, req.Slot))
	}

	token := &entity.Token{
		ID:          uuid.NewString(),
		PatientID:   patient.ID,
		DoctorID:    doctor.ID,
		Slot:        req.Slot,
		VisitDate:   entity.NormalizeDate(visitDate),
		BookingType: bookingType,
		Priority:    entity.PriorityFor(bookingType, req.IsEmergency),
		Emergency:   req.IsEmergency,
		CreatedAt:   u.now(),
	}
	key := token.SlotKey()

	// Step 2: Everything from the duplicate check to the queue push runs under the slot lock
	var result *AllocationResult
	err = u.queue.WithSlotLock(ctx, key, func(ctx context.Context) error {
		// Step 3: One active token per patient per day
		existing, err := u.tokenRepo.FindActiveByPatientAndDate(ctx, patient.ID, token.VisitDate)
		if err != nil {
			u.log.Warnf("Failed to check active tokens for patient %s: %+v", patient.ID, err)
			return storeFailure("check active tokens", err)
		}
		if existing != nil {
			return newTokenError(KindInvalidState, ReasonDuplicateActiveToken,
				fmt.Sprintf("patient %s already holds token %s for %s", patient.ID, existing.ID, req.VisitDate))
		}

		// Step 4: Emergency path
		if token.Emergency {
			if !u.capacity.HasEmergencyCapacity(ctx, key) {
				return newTokenError(KindCapacityExhausted, ReasonEmergencyCapacityExhausted, fmt.Sprintf("slot %s is at its ceiling", key))
			}
			if err := u.seat(ctx, token, true); err != nil {
				return err
			}
			result = u.allocated(ctx, token, "Emergency token allocated")
			return nil
		}

		// Step 5: Regular path
		if u.capacity.HasAvailableCapacity(ctx, key) {
			if err := u.seat(ctx, token, true); err != nil {
				return err
			}
			result = u.allocated(ctx, token, "Token allocated")
			return nil
		}

		// Step 6: Redirect or queue
		result, err = u.redirectOrQueue(ctx, token)
		return err
	})
	if err := lockError(key, err); err != nil {
		return nil, err
	}

	u.log.WithFields(logrus.Fields{
		"token_id":     result.Token.ID,
		"slot":         result.Token.SlotKey().String(),
		"outcome":      result.Outcome,
		"token_number": result.Token.Number(),
	}).Info("token request handled")

	return result, nil
}

func (u *tokenAllocationUsecase) allocated(ctx context.Context, token *entity.Token, message string) *AllocationResult {
	u.events.Record(ctx, token.ID, token.SlotKey(), entity.TokenEventAllocated, map[string]any{
		"token_number": token.Number(),
		"priority":     token.Priority,
	})
	return &AllocationResult{
		Token:         token,
		Outcome:       OutcomeAllocated,
		RequestedSlot: token.Slot,
		Message:       message,
	}
}

// redirectOrQueue runs with the requested slot locked. The alternative slot is
// locked in turn and its capacity re-checked, since it may have filled since the search.
func (u *tokenAllocationUsecase) redirectOrQueue(ctx context.Context, token *entity.Token) (*AllocationResult, error) {
	requestedSlot := token.Slot

	alternative, found, err := u.reallocation.FindAlternativeSlot(ctx, token.DoctorID, token.VisitDate, requestedSlot)
	if err != nil {
		return nil, err
	}

	if found {
		altKey := entity.NewSlotKey(token.DoctorID, alternative, token.VisitDate)
		redirected := false

		lockErr := u.queue.WithSlotLock(ctx, altKey, func(ctx context.Context) error {
			if !u.capacity.HasAvailableCapacity(ctx, altKey) {
				return nil
			}
			token.Slot = alternative
			token.OriginalSlot = requestedSlot
			if err := u.seat(ctx, token, true); err != nil {
				token.Slot = requestedSlot
				token.OriginalSlot = ""
				return err
			}
			redirected = true
			return nil
		})
		if lockErr != nil {
			if _, ok := AsTokenError(lockErr); ok {
				return nil, lockErr
			}
			u.log.Warnf("Could not lock alternative slot %s, queueing instead: %+v", altKey, lockErr)
		}

		if redirected {
			u.events.Record(ctx, token.ID, altKey, entity.TokenEventRedirected, map[string]any{
				"requested_slot": requestedSlot,
				"token_number":   token.Number(),
			})
			return &AllocationResult{
				Token:         token,
				Outcome:       OutcomeRedirected,
				RequestedSlot: requestedSlot,
				Message:       fmt.Sprintf("Slot %s is full, token allocated in slot %s", requestedSlot, alternative),
			}, nil
		}
	}

	if err := u.enqueue(ctx, token); err != nil {
		return nil, err
	}
	u.events.Record(ctx, token.ID, token.SlotKey(), entity.TokenEventQueued, map[string]any{"priority": token.Priority})

	return &AllocationResult{
		Token:         token,
		Outcome:       OutcomeQueued,
		RequestedSlot: requestedSlot,
		Message:       fmt.Sprintf("Slot %s is full, token added to the waiting queue", requestedSlot),
	}, nil
}
