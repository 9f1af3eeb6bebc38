package converter

import (
	"encoding/json"

	"opd-token-allocation/internal/delivery/dto"
	"opd-token-allocation/internal/domain/entity"
	"opd-token-allocation/internal/service"
)

// TokenToResponse converts a Token entity to TokenResponse DTO
func TokenToResponse(token *entity.Token) *dto.TokenResponse {
	if token == nil {
		return nil
	}

	return &dto.TokenResponse{
		TokenID:            token.ID,
		PatientID:          token.PatientID,
		DoctorID:           token.DoctorID,
		Slot:               token.Slot,
		VisitDate:          token.VisitDate.Format(entity.DateLayout),
		BookingType:        string(token.BookingType),
		Status:             string(token.Status),
		Priority:           token.Priority,
		TokenNumber:        token.TokenNumber,
		IsEmergency:        token.Emergency,
		OriginalSlot:       token.OriginalSlot,
		CancellationReason: token.CancellationReason,
		CreatedAt:          token.CreatedAt,
		CompletedAt:        token.CompletedAt,
		ExpiredAt:          token.ExpiredAt,
	}
}

// TokensToResponses converts a slice of Token entities to slice of TokenResponse DTOs
func TokensToResponses(tokens []entity.Token) []dto.TokenResponse {
	responses := make([]dto.TokenResponse, len(tokens))
	for i := range tokens {
		responses[i] = *TokenToResponse(&tokens[i])
	}
	return responses
}

func SlotCapacityToResponse(key entity.SlotKey, snap *service.SlotCapacity) *dto.SlotCapacityResponse {
	if snap == nil {
		return nil
	}

	return &dto.SlotCapacityResponse{
		DoctorID:         key.DoctorID,
		Slot:             key.Slot,
		VisitDate:        key.VisitDate.Format(entity.DateLayout),
		MaxCapacity:      snap.MaxCapacity,
		CurrentAllocated: snap.CurrentAllocated,
		AvailableSlots:   snap.AvailableSlots,
		ReservedBuffer:   snap.ReservedBuffer,
	}
}

func TokenEventsToResponses(events []entity.TokenEvent) []dto.TokenEventResponse {
	responses := make([]dto.TokenEventResponse, len(events))
	for i, e := range events {
		responses[i] = dto.TokenEventResponse{
			ID:        e.ID,
			EventType: string(e.EventType),
			SlotKey:   e.SlotKey,
			CreatedAt: e.CreatedAt,
		}
		if len(e.Payload) > 0 {
			responses[i].Payload = json.RawMessage(e.Payload)
		}
	}
	return responses
}
