package usecase

import (
	"context"

	"opd-token-allocation/internal/converter"
	"opd-token-allocation/internal/delivery/dto"
	"opd-token-allocation/internal/domain/entity"
	"opd-token-allocation/internal/domain/repository"
	"opd-token-allocation/internal/service"

	"github.com/sirupsen/logrus"
)

type TokenQueryUsecase interface {
	GetToken(ctx context.Context, tokenID string) (*dto.TokenResponse, error)
	ListSlotTokens(ctx context.Context, doctorID, slot, visitDate string) (*dto.SlotTokensResponse, error)
	SlotCapacity(ctx context.Context, doctorID, slot, visitDate string) (*dto.SlotCapacityResponse, error)
	TokenEvents(ctx context.Context, tokenID string) ([]dto.TokenEventResponse, error)
}

type tokenQueryUsecase struct {
	log       *logrus.Logger
	tokenRepo repository.TokenRepository
	capacity  *service.SlotCapacityService
	events    service.TokenEventService
}

func NewTokenQueryUsecase(
	log *logrus.Logger,
	tokenRepo repository.TokenRepository,
	capacity *service.SlotCapacityService,
	events service.TokenEventService,
) TokenQueryUsecase {
	return &tokenQueryUsecase{
		log:       log,
		tokenRepo: tokenRepo,
		capacity:  capacity,
		events:    events,
	}
}

func (u *tokenQueryUsecase) GetToken(ctx context.Context, tokenID string) (*dto.TokenResponse, error) {
	token, err := u.tokenRepo.FindByID(ctx, tokenID)
	if err != nil {
		u.log.Warnf("Failed to find token %s: %+v", tokenID, err)
		return nil, storeFailure("load token", err)
	}
	if token == nil {
		return nil, tokenNotFound(tokenID)
	}
	return converter.TokenToResponse(token), nil
}

// ListSlotTokens returns the slot's allocated, in-progress, waiting and completed tokens by token number.
func (u *tokenQueryUsecase) ListSlotTokens(ctx context.Context, doctorID, slot, visitDate string) (*dto.SlotTokensResponse, error) {
	key, err := parseSlotKey(doctorID, slot, visitDate)
	if err != nil {
		return nil, err
	}

	tokens, err := u.tokenRepo.FindBySlot(ctx, key, entity.VisibleStatuses)
	if err != nil {
		u.log.Warnf("Failed to list tokens for %s: %+v", key, err)
		return nil, storeFailure("list tokens", err)
	}

	return &dto.SlotTokensResponse{
		DoctorID:  doctorID,
		Slot:      slot,
		VisitDate: visitDate,
		Tokens:    converter.TokensToResponses(tokens),
		Total:     len(tokens),
	}, nil
}

func (u *tokenQueryUsecase) SlotCapacity(ctx context.Context, doctorID, slot, visitDate string) (*dto.SlotCapacityResponse, error) {
	key, err := parseSlotKey(doctorID, slot, visitDate)
	if err != nil {
		return nil, err
	}

	return converter.SlotCapacityToResponse(key, u.capacity.SnapshotOrClosed(ctx, key)), nil
}

func (u *tokenQueryUsecase) TokenEvents(ctx context.Context, tokenID string) ([]dto.TokenEventResponse, error) {
	token, err := u.tokenRepo.FindByID(ctx, tokenID)
	if err != nil {
		u.log.Warnf("Failed to find token %s: %+v", tokenID, err)
		return nil, storeFailure("load token", err)
	}
	if token == nil {
		return nil, tokenNotFound(tokenID)
	}

	events, err := u.events.History(ctx, tokenID)
	if err != nil {
		return nil, storeFailure("load token events", err)
	}
	return converter.TokenEventsToResponses(events), nil
}

// parseSlotKey validates path parameters into a slot key.
func parseSlotKey(doctorID, slot, visitDate string) (entity.SlotKey, error) {
	date, err := entity.ParseVisitDate(visitDate)
	if err != nil {
		return entity.SlotKey{}, newTokenError(KindInvalidState, ReasonInvalidRequest, "date must be formatted as YYYY-MM-DD")
	}
	if _, err := entity.ParseSlot(slot); err != nil {
		return entity.SlotKey{}, newTokenError(KindInvalidState, ReasonSlotInvalid, err.Error())
	}
	return entity.NewSlotKey(doctorID, slot, date), nil
}
