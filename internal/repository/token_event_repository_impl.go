package repository

import (
	"context"

	"opd-token-allocation/internal/domain/entity"
	domainRepo "opd-token-allocation/internal/domain/repository"

	"gorm.io/gorm"
)

type tokenEventRepository struct {
	db *gorm.DB
}

func NewTokenEventRepository(db *gorm.DB) domainRepo.TokenEventRepository {
	return &tokenEventRepository{db: db}
}

func (r *tokenEventRepository) Create(ctx context.Context, event *entity.TokenEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *tokenEventRepository) FindByTokenID(ctx context.Context, tokenID string) ([]entity.TokenEvent, error) {
	var events []entity.TokenEvent
	err := r.db.WithContext(ctx).
		Where("token_id = ?", tokenID).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
