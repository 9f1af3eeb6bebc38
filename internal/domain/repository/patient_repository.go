package repository

import (
	"context"

	"opd-token-allocation/internal/domain/entity"
)

type PatientRepository interface {
	Create(ctx context.Context, patient *entity.Patient) error
	FindByID(ctx context.Context, id string) (*entity.Patient, error)
	FindByPhone(ctx context.Context, phone string) (*entity.Patient, error)
	FindAll(ctx context.Context) ([]entity.Patient, error)
	IncrementNoShow(ctx context.Context, id string) error
}
