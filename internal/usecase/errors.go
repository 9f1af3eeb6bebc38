package usecase

import (
	"errors"
	"fmt"

	"opd-token-allocation/internal/service"
)

// ErrorKind groups token errors by how a caller should react
type ErrorKind string

const (
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindInvalidState      ErrorKind = "INVALID_STATE"
	KindCapacityExhausted ErrorKind = "CAPACITY_EXHAUSTED"
	KindBusy              ErrorKind = "BUSY"
	KindStoreFailure      ErrorKind = "STORE_FAILURE"
)

// Reason is the machine-readable cause reported to clients
type Reason string

const (
	ReasonDoctorUnavailable          Reason = "DOCTOR_UNAVAILABLE"
	ReasonPatientNotFound            Reason = "PATIENT_NOT_FOUND"
	ReasonSlotInvalid                Reason = "SLOT_INVALID"
	ReasonDuplicateActiveToken       Reason = "DUPLICATE_ACTIVE_TOKEN"
	ReasonEmergencyCapacityExhausted Reason = "EMERGENCY_CAPACITY_EXHAUSTED"
	ReasonSlotBusy                   Reason = "SLOT_BUSY"
	ReasonStoreFailure               Reason = "STORE_FAILURE"
	ReasonTokenNotFound              Reason = "TOKEN_NOT_FOUND"
	ReasonIllegalState               Reason = "ILLEGAL_STATE"
	ReasonNotEmergency               Reason = "NOT_EMERGENCY"
	ReasonDoctorNotFound             Reason = "DOCTOR_NOT_FOUND"
	ReasonDoctorExists               Reason = "DOCTOR_ALREADY_EXISTS"
	ReasonPatientExists              Reason = "PATIENT_ALREADY_EXISTS"
	ReasonInvalidCapacity            Reason = "INVALID_CAPACITY"
	ReasonInvalidRequest             Reason = "INVALID_REQUEST"
)

// TokenError is returned by every engine operation that fails
type TokenError struct {
	Kind    ErrorKind
	Reason  Reason
	Message string
	Err     error
}

func (e *TokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

func newTokenError(kind ErrorKind, reason Reason, message string) *TokenError {
	return &TokenError{Kind: kind, Reason: reason, Message: message}
}

func storeFailure(message string, err error) *TokenError {
	return &TokenError{Kind: KindStoreFailure, Reason: ReasonStoreFailure, Message: message, Err: err}
}

func tokenNotFound(id string) *TokenError {
	return newTokenError(KindNotFound, ReasonTokenNotFound, fmt.Sprintf("token %s not found", id))
}

func slotBusy(key fmt.Stringer) *TokenError {
	return newTokenError(KindBusy, ReasonSlotBusy, fmt.Sprintf("slot %s is busy, retry shortly", key))
}

// lockError maps a WithSlotLock failure. Errors raised inside the critical
// section are already *TokenError and pass through.
func lockError(key fmt.Stringer, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsTokenError(err); ok {
		return err
	}
	if errors.Is(err, service.ErrSlotLockNotAcquired) {
		return slotBusy(key)
	}
	return storeFailure(fmt.Sprintf("slot lock for %s", key), err)
}

// AsTokenError extracts a *TokenError from err.
func AsTokenError(err error) (*TokenError, bool) {
	var te *TokenError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsKind reports whether err is a *TokenError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	te, ok := AsTokenError(err)
	return ok && te.Kind == kind
}
