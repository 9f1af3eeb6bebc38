package entity

import (
	"time"

	"gorm.io/datatypes"
)

// TokenEventType names a step in a token's history
type TokenEventType string

const (
	TokenEventAllocated         TokenEventType = "ALLOCATED"
	TokenEventRedirected        TokenEventType = "REDIRECTED"
	TokenEventQueued            TokenEventType = "QUEUED"
	TokenEventPromoted          TokenEventType = "PROMOTED"
	TokenEventCancelled         TokenEventType = "CANCELLED"
	TokenEventNoShow            TokenEventType = "NO_SHOW"
	TokenEventEmergencyInserted TokenEventType = "EMERGENCY_INSERTED"
	TokenEventStarted           TokenEventType = "STARTED"
	TokenEventCompleted         TokenEventType = "COMPLETED"
	TokenEventSlotDelayed       TokenEventType = "SLOT_DELAYED"
	TokenEventCapacityChanged   TokenEventType = "CAPACITY_CHANGED"
)

// TokenEvent is an append-only audit record of an engine step.
// TokenID is empty for slot-level events such as delays.
type TokenEvent struct {
	ID        string         `gorm:"type:varchar(50);primaryKey" json:"id"`
	TokenID   string         `gorm:"type:varchar(50);index" json:"token_id,omitempty"`
	SlotKey   string         `gorm:"type:varchar(100);index" json:"slot_key"`
	EventType TokenEventType `gorm:"type:varchar(30);not null" json:"event_type"`
	Payload   datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (TokenEvent) TableName() string {
	return "token_events"
}
