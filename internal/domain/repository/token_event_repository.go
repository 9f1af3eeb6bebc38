package repository

import (
	"context"

	"opd-token-allocation/internal/domain/entity"
)

type TokenEventRepository interface {
	Create(ctx context.Context, event *entity.TokenEvent) error
	FindByTokenID(ctx context.Context, tokenID string) ([]entity.TokenEvent, error)
}
