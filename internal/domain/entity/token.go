package entity

import (
	"time"
)

// BookingType is how the patient came to request the token
type BookingType string

const (
	BookingTypeOnline       BookingType = "ONLINE"
	BookingTypeWalkIn       BookingType = "WALK_IN"
	BookingTypePaidPriority BookingType = "PAID_PRIORITY"
	BookingTypeFollowUp     BookingType = "FOLLOW_UP"
)

// Priorities, lower is served first.
const (
	PriorityEmergency    = 0
	PriorityPaidPriority = 1
	PriorityFollowUp     = 2
	PriorityWalkIn       = 3
	PriorityOnline       = 4
)

// Valid reports whether b is a known booking type.
func (b BookingType) Valid() bool {
	switch b {
	case BookingTypeOnline, BookingTypeWalkIn, BookingTypePaidPriority, BookingTypeFollowUp:
		return true
	}
	return false
}

// PriorityFor maps a booking to its fixed priority. The emergency flag wins over the booking type.
func PriorityFor(bookingType BookingType, emergency bool) int {
	if emergency {
		return PriorityEmergency
	}

	switch bookingType {
	case BookingTypePaidPriority:
		return PriorityPaidPriority
	case BookingTypeFollowUp:
		return PriorityFollowUp
	case BookingTypeWalkIn:
		return PriorityWalkIn
	default:
		return PriorityOnline
	}
}

// Token is a patient's ticket for a doctor's slot on a visit date
type Token struct {
	ID                 string      `gorm:"column:token_id;type:varchar(50);primaryKey" json:"token_id"`
	PatientID          string      `gorm:"type:varchar(50);not null;index:idx_token_patient_date" json:"patient_id"`
	DoctorID           string      `gorm:"type:varchar(50);not null;index:idx_token_doctor_date" json:"doctor_id"`
	Slot               string      `gorm:"type:varchar(10);not null" json:"slot"`
	VisitDate          time.Time   `gorm:"type:date;not null;index:idx_token_doctor_date;index:idx_token_patient_date" json:"visit_date"`
	BookingType        BookingType `gorm:"type:varchar(20);not null" json:"booking_type"`
	Status             TokenStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Priority           int         `gorm:"not null" json:"priority"`
	TokenNumber        *int        `json:"token_number,omitempty"`
	Emergency          bool        `gorm:"not null;default:false" json:"emergency"`
	OriginalSlot       string      `gorm:"type:varchar(10)" json:"original_slot,omitempty"`
	CancellationReason string      `gorm:"type:text" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time   `gorm:"not null" json:"created_at"`
	CompletedAt        *time.Time  `json:"completed_at,omitempty"`
	ExpiredAt          *time.Time  `json:"expired_at,omitempty"`
	UpdatedAt          time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Token) TableName() string {
	return "tokens"
}

// SlotKey returns the queue key of the slot the token currently sits in.
func (t *Token) SlotKey() SlotKey {
	return NewSlotKey(t.DoctorID, t.Slot, t.VisitDate)
}

// Number returns the token number or 0 when unassigned.
func (t *Token) Number() int {
	if t.TokenNumber == nil {
		return 0
	}
	return *t.TokenNumber
}

func (t *Token) SetNumber(n int) {
	t.TokenNumber = &n
}

// QueueScore orders tokens inside a slot queue: priority dominates, earlier creation breaks ties.
func (t *Token) QueueScore() float64 {
	return float64(t.Priority)*1_000_000_000 + float64(t.CreatedAt.Unix())
}

// IsActive checks if the token still holds or waits for a slot position
func (t *Token) IsActive() bool {
	for _, s := range ActiveStatuses {
		if t.Status == s {
			return true
		}
	}
	return false
}
