package service

import (
	"context"
	"encoding/json"

	"opd-token-allocation/internal/domain/entity"
	"opd-token-allocation/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// TokenEventService appends engine steps to the token_events trail.
// Recording is best-effort: failures are logged and never fail the caller.
type TokenEventService interface {
	Record(ctx context.Context, tokenID string, key entity.SlotKey, eventType entity.TokenEventType, payload map[string]any)
	History(ctx context.Context, tokenID string) ([]entity.TokenEvent, error)
}

type tokenEventService struct {
	log       *logrus.Logger
	eventRepo repository.TokenEventRepository
}

func NewTokenEventService(log *logrus.Logger, eventRepo repository.TokenEventRepository) TokenEventService {
	return &tokenEventService{
		log:       log,
		eventRepo: eventRepo,
	}
}

// Record stores one event. tokenID may be empty for slot-wide events.
func (s *tokenEventService) Record(ctx context.Context, tokenID string, key entity.SlotKey, eventType entity.TokenEventType, payload map[string]any) {
	var body datatypes.JSON
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			s.log.Warnf("Failed to encode %s event payload for token %s: %+v", eventType, tokenID, err)
		} else {
			body = datatypes.JSON(raw)
		}
	}

	event := &entity.TokenEvent{
		ID:        uuid.NewString(),
		TokenID:   tokenID,
		SlotKey:   key.String(),
		EventType: eventType,
		Payload:   body,
	}

	if err := s.eventRepo.Create(ctx, event); err != nil {
		s.log.Warnf("Failed to record %s event for token %s: %+v", eventType, tokenID, err)
		return
	}

	s.log.WithFields(logrus.Fields{
		"token_id": tokenID,
		"slot":     key.String(),
		"event":    eventType,
	}).Debug("token event recorded")
}

func (s *tokenEventService) History(ctx context.Context, tokenID string) ([]entity.TokenEvent, error) {
	events, err := s.eventRepo.FindByTokenID(ctx, tokenID)
	if err != nil {
		s.log.Warnf("Failed to load events for token %s: %+v", tokenID, err)
		return nil, err
	}
	return events, nil
}
