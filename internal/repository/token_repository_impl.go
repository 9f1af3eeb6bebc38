package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"opd-token-allocation/internal/domain/entity"
	domainRepo "opd-token-allocation/internal/domain/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type tokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) domainRepo.TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) Create(ctx context.Context, token *entity.Token) error {
	return translateTokenError(r.db.WithContext(ctx).Create(token).Error)
}

func (r *tokenRepository) Save(ctx context.Context, token *entity.Token) error {
	return translateTokenError(r.db.WithContext(ctx).Save(token).Error)
}

// translateTokenError maps a uq_tokens_patient_active violation. Token ids are
// uuids, so the partial index is the only unique key a write can trip.
func translateTokenError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", domainRepo.ErrDuplicateActiveToken, err)
	}
	return err
}

func (r *tokenRepository) FindByID(ctx context.Context, id string) (*entity.Token, error) {
	var token entity.Token
	err := r.db.WithContext(ctx).Where("token_id = ?", id).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &token, nil
}

func (r *tokenRepository) slotScope(key entity.SlotKey) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("doctor_id = ? AND slot = ? AND visit_date = ?", key.DoctorID, key.Slot, key.VisitDate)
	}
}

// FindBySlot returns the slot's tokens in the given statuses ordered by token number, unnumbered last.
func (r *tokenRepository) FindBySlot(ctx context.Context, key entity.SlotKey, statuses []entity.TokenStatus) ([]entity.Token, error) {
	var tokens []entity.Token
	err := r.db.WithContext(ctx).
		Scopes(r.slotScope(key)).
		Where("status IN ?", statuses).
		Order("token_number ASC NULLS LAST, created_at ASC").
		Find(&tokens).Error
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

func (r *tokenRepository) CountBySlot(ctx context.Context, key entity.SlotKey, statuses []entity.TokenStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Token{}).
		Scopes(r.slotScope(key)).
		Where("status IN ?", statuses).
		Count(&count).Error
	return count, err
}

// MaxTokenNumber returns the highest token number issued in the slot, 0 when none.
func (r *tokenRepository) MaxTokenNumber(ctx context.Context, key entity.SlotKey) (int, error) {
	var maxNumber int
	err := r.db.WithContext(ctx).
		Model(&entity.Token{}).
		Scopes(r.slotScope(key)).
		Select("COALESCE(MAX(token_number), 0)").
		Scan(&maxNumber).Error
	return maxNumber, err
}

func (r *tokenRepository) FindActiveByPatientAndDate(ctx context.Context, patientID string, visitDate time.Time) (*entity.Token, error) {
	var token entity.Token
	err := r.db.WithContext(ctx).
		Where("patient_id = ? AND visit_date = ? AND status IN ?", patientID, entity.NormalizeDate(visitDate), entity.ActiveStatuses).
		First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &token, nil
}

func (r *tokenRepository) FindActiveFrom(ctx context.Context, from time.Time, afterID string, limit int) ([]entity.Token, error) {
	var tokens []entity.Token
	err := r.db.WithContext(ctx).
		Where("visit_date >= ? AND status IN ? AND token_id > ?", entity.NormalizeDate(from), entity.ActiveStatuses, afterID).
		Order("token_id ASC").
		Limit(limit).
		Find(&tokens).Error
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// PromoteEmergency locks the slot's allocated rows, renumbers them behind the emergency token and saves it.
func (r *tokenRepository) PromoteEmergency(ctx context.Context, token *entity.Token) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var others []entity.Token
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Scopes(r.slotScope(token.SlotKey())).
			Where("status = ? AND token_id <> ?", entity.TokenStatusAllocated, token.ID).
			Find(&others).Error
		if err != nil {
			return err
		}

		if len(others) > 0 {
			err = tx.Model(&entity.Token{}).
				Scopes(r.slotScope(token.SlotKey())).
				Where("status = ? AND token_id <> ? AND token_number IS NOT NULL", entity.TokenStatusAllocated, token.ID).
				UpdateColumn("token_number", gorm.Expr("token_number + 1")).Error
			if err != nil {
				return err
			}
		}

		return tx.Save(token).Error
	})
}
