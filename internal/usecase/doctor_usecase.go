package usecase

import (
	"context"
	"fmt"

	"opd-token-allocation/internal/converter"
	"opd-token-allocation/internal/delivery/dto"
	"opd-token-allocation/internal/domain/repository"

	"github.com/sirupsen/logrus"
)

type DoctorUsecase interface {
	CreateDoctor(ctx context.Context, req *dto.CreateDoctorRequest) (*dto.DoctorResponse, error)
	GetDoctor(ctx context.Context, id string) (*dto.DoctorResponse, error)
	ListDoctors(ctx context.Context) (*dto.DoctorListResponse, error)
}

type doctorUsecase struct {
	log        *logrus.Logger
	doctorRepo repository.DoctorRepository
}

func NewDoctorUsecase(log *logrus.Logger, doctorRepo repository.DoctorRepository) DoctorUsecase {
	return &doctorUsecase{
		log:        log,
		doctorRepo: doctorRepo,
	}
}

// CreateDoctor registers a doctor after checking every slot id is an hour range
func (u *doctorUsecase) CreateDoctor(ctx context.Context, req *dto.CreateDoctorRequest) (*dto.DoctorResponse, error) {
	doctor := converter.DoctorRequestToEntity(req)
	if err := doctor.ValidateSlots(); err != nil {
		return nil, newTokenError(KindInvalidState, ReasonSlotInvalid, err.Error())
	}

	existing, err := u.doctorRepo.FindByID(ctx, req.ID)
	if err != nil {
		u.log.Warnf("Failed to check doctor %s: %+v", req.ID, err)
		return nil, storeFailure("load doctor", err)
	}
	if existing != nil {
		return nil, newTokenError(KindInvalidState, ReasonDoctorExists, fmt.Sprintf("doctor %s already exists", req.ID))
	}

	if err := u.doctorRepo.Create(ctx, doctor); err != nil {
		u.log.Warnf("Failed to create doctor %s: %+v", req.ID, err)
		return nil, storeFailure("create doctor", err)
	}

	u.log.Infof("Doctor created: id=%s, slots=%v", doctor.ID, doctor.SlotIDs())
	return converter.DoctorToResponse(doctor), nil
}

func (u *doctorUsecase) GetDoctor(ctx context.Context, id string) (*dto.DoctorResponse, error) {
	doctor, err := u.doctorRepo.FindByID(ctx, id)
	if err != nil {
		u.log.Warnf("Failed to find doctor %s: %+v", id, err)
		return nil, storeFailure("load doctor", err)
	}
	if doctor == nil {
		return nil, newTokenError(KindNotFound, ReasonDoctorNotFound, fmt.Sprintf("doctor %s not found", id))
	}
	return converter.DoctorToResponse(doctor), nil
}

func (u *doctorUsecase) ListDoctors(ctx context.Context) (*dto.DoctorListResponse, error) {
	doctors, err := u.doctorRepo.FindAll(ctx)
	if err != nil {
		u.log.Warnf("Failed to list doctors: %+v", err)
		return nil, storeFailure("list doctors", err)
	}

	return &dto.DoctorListResponse{
		Doctors: converter.DoctorsToResponses(doctors),
		Total:   len(doctors),
	}, nil
}
