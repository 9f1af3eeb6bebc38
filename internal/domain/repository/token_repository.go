package repository

import (
	"context"
	"errors"
	"time"

	"opd-token-allocation/internal/domain/entity"
)

// ErrDuplicateActiveToken is returned by Create and Save when the patient
// already holds an active token for the visit date.
var ErrDuplicateActiveToken = errors.New("patient already holds an active token for this visit date")

type TokenRepository interface {
	Create(ctx context.Context, token *entity.Token) error
	Save(ctx context.Context, token *entity.Token) error
	FindByID(ctx context.Context, id string) (*entity.Token, error)
	FindBySlot(ctx context.Context, key entity.SlotKey, statuses []entity.TokenStatus) ([]entity.Token, error)
	CountBySlot(ctx context.Context, key entity.SlotKey, statuses []entity.TokenStatus) (int64, error)
	MaxTokenNumber(ctx context.Context, key entity.SlotKey) (int, error)
	FindActiveByPatientAndDate(ctx context.Context, patientID string, visitDate time.Time) (*entity.Token, error)
	// FindActiveFrom pages active tokens with visit_date >= from, ordered by id, starting after afterID.
	FindActiveFrom(ctx context.Context, from time.Time, afterID string, limit int) ([]entity.Token, error)
	// PromoteEmergency shifts every other ALLOCATED token of the slot down by one and saves token, in one transaction.
	PromoteEmergency(ctx context.Context, token *entity.Token) error
}
