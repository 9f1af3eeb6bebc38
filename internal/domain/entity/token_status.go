package entity

import (
	"errors"
	"fmt"
	"time"
)

// TokenStatus represents the lifecycle status of a token
type TokenStatus string

const (
	TokenStatusWaiting     TokenStatus = "WAITING"
	TokenStatusAllocated   TokenStatus = "ALLOCATED"
	TokenStatusInProgress  TokenStatus = "IN_PROGRESS"
	TokenStatusCompleted   TokenStatus = "COMPLETED"
	TokenStatusCancelled   TokenStatus = "CANCELLED"
	TokenStatusExpired     TokenStatus = "EXPIRED"
	TokenStatusReallocated TokenStatus = "REALLOCATED"
)

var ErrIllegalTransition = errors.New("illegal token status transition")

// ActiveStatuses hold or wait for a slot position and count toward its allocation.
var ActiveStatuses = []TokenStatus{
	TokenStatusWaiting,
	TokenStatusAllocated,
	TokenStatusInProgress,
}

// HeldStatuses occupy a position in the slot.
var HeldStatuses = []TokenStatus{
	TokenStatusAllocated,
	TokenStatusInProgress,
}

// VisibleStatuses are the statuses listed for a slot.
var VisibleStatuses = []TokenStatus{
	TokenStatusAllocated,
	TokenStatusInProgress,
	TokenStatusWaiting,
	TokenStatusCompleted,
}

var allowedTransitions = map[TokenStatus][]TokenStatus{
	TokenStatusWaiting:     {TokenStatusAllocated, TokenStatusCancelled, TokenStatusExpired},
	TokenStatusAllocated:   {TokenStatusInProgress, TokenStatusCancelled, TokenStatusExpired},
	TokenStatusInProgress:  {TokenStatusCompleted, TokenStatusCancelled, TokenStatusExpired},
	TokenStatusReallocated: {TokenStatusAllocated, TokenStatusCancelled, TokenStatusExpired},
}

// CanTransition reports whether a token may move from one status to another.
func CanTransition(from, to TokenStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal checks if no transition leaves the status
func (s TokenStatus) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// TransitionTo moves the token to status, stamping completed_at or expired_at where relevant.
func (t *Token) TransitionTo(status TokenStatus, at time.Time) error {
	if !CanTransition(t.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, t.Status, status)
	}

	t.Status = status
	switch status {
	case TokenStatusCompleted:
		t.CompletedAt = &at
	case TokenStatusExpired:
		t.ExpiredAt = &at
	}
	return nil
}
