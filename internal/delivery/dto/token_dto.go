package dto

import (
	"encoding/json"
	"time"
)

// Request DTOs

type AllocateTokenRequest struct {
	PatientID   string `json:"patient_id" validate:"required"`
	DoctorID    string `json:"doctor_id" validate:"required"`
	Slot        string `json:"slot" validate:"required"`
	VisitDate   string `json:"visit_date" validate:"required,datetime=2006-01-02"`
	BookingType string `json:"booking_type" validate:"required,oneof=ONLINE WALK_IN PAID_PRIORITY FOLLOW_UP"`
	IsEmergency bool   `json:"is_emergency"`
}

type SetSlotCapacityRequest struct {
	Capacity *int `json:"capacity" validate:"required,gte=0"`
}

type SlotDelayRequest struct {
	DelayMinutes int `json:"delay_minutes" validate:"required,gte=1,lte=720"`
}

// Response DTOs

type TokenResponse struct {
	TokenID            string     `json:"token_id"`
	PatientID          string     `json:"patient_id"`
	DoctorID           string     `json:"doctor_id"`
	Slot               string     `json:"slot"`
	VisitDate          string     `json:"visit_date"`
	BookingType        string     `json:"booking_type"`
	Status             string     `json:"status"`
	Priority           int        `json:"priority"`
	TokenNumber        *int       `json:"token_number,omitempty"`
	IsEmergency        bool       `json:"is_emergency"`
	OriginalSlot       string     `json:"original_slot,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	ExpiredAt          *time.Time `json:"expired_at,omitempty"`
}

type AllocationResponse struct {
	Token         *TokenResponse `json:"token"`
	Outcome       string         `json:"outcome"`
	RequestedSlot string         `json:"requested_slot"`
	Message       string         `json:"message"`
}

type SlotTokensResponse struct {
	DoctorID  string          `json:"doctor_id"`
	Slot      string          `json:"slot"`
	VisitDate string          `json:"visit_date"`
	Tokens    []TokenResponse `json:"tokens"`
	Total     int             `json:"total"`
}

type SlotCapacityResponse struct {
	DoctorID         string `json:"doctor_id"`
	Slot             string `json:"slot"`
	VisitDate        string `json:"visit_date"`
	MaxCapacity      int    `json:"max_capacity"`
	CurrentAllocated int    `json:"current_allocated"`
	AvailableSlots   int    `json:"available_slots"`
	ReservedBuffer   int    `json:"reserved_buffer"`
}

type TokenEventResponse struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	SlotKey   string          `json:"slot_key"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ErrorDetail is the error body for engine failures
type ErrorDetail struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}
