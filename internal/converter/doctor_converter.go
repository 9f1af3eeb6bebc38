package converter

import (
	"opd-token-allocation/internal/delivery/dto"
	"opd-token-allocation/internal/domain/entity"
)

// DoctorToResponse converts a Doctor entity to DoctorResponse DTO
func DoctorToResponse(doctor *entity.Doctor) *dto.DoctorResponse {
	if doctor == nil {
		return nil
	}

	days := make([]string, 0, len(doctor.WorkingDays))
	for _, d := range doctor.WorkingDays {
		days = append(days, string(d.WorkingDay))
	}

	return &dto.DoctorResponse{
		ID:          doctor.ID,
		Name:        doctor.Name,
		Speciality:  doctor.Speciality,
		PhoneNumber: doctor.PhoneNumber,
		Email:       doctor.Email,
		Designation: doctor.Designation,
		Slots:       doctor.SlotIDs(),
		WorkingDays: days,
		Active:      doctor.Active,
		CreatedAt:   doctor.CreatedAt,
	}
}

func DoctorsToResponses(doctors []entity.Doctor) []dto.DoctorResponse {
	responses := make([]dto.DoctorResponse, len(doctors))
	for i := range doctors {
		responses[i] = *DoctorToResponse(&doctors[i])
	}
	return responses
}

// DoctorRequestToEntity builds a Doctor with its slots and working days from a create request
func DoctorRequestToEntity(req *dto.CreateDoctorRequest) *entity.Doctor {
	doctor := &entity.Doctor{
		ID:          req.ID,
		Name:        req.Name,
		Speciality:  req.Speciality,
		PhoneNumber: req.PhoneNumber,
		Email:       req.Email,
		Designation: req.Designation,
		Active:      true,
	}

	for _, s := range req.Slots {
		doctor.Slots = append(doctor.Slots, entity.DoctorSlot{DoctorID: req.ID, SlotTime: s})
	}
	for _, d := range req.WorkingDays {
		doctor.WorkingDays = append(doctor.WorkingDays, entity.DoctorWorkingDay{DoctorID: req.ID, WorkingDay: entity.WorkingDay(d)})
	}

	return doctor
}
