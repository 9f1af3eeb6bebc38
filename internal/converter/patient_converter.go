package converter

import (
	"opd-token-allocation/internal/delivery/dto"
	"opd-token-allocation/internal/domain/entity"
)

// PatientToResponse converts a Patient entity to PatientResponse DTO
func PatientToResponse(patient *entity.Patient) *dto.PatientResponse {
	if patient == nil {
		return nil
	}

	return &dto.PatientResponse{
		ID:          patient.ID,
		Name:        patient.Name,
		PhoneNumber: patient.PhoneNumber,
		Email:       patient.Email,
		Status:      string(patient.Status),
		NoShowCount: patient.NoShowCount,
		CreatedAt:   patient.CreatedAt,
	}
}

func PatientsToResponses(patients []entity.Patient) []dto.PatientResponse {
	responses := make([]dto.PatientResponse, len(patients))
	for i := range patients {
		responses[i] = *PatientToResponse(&patients[i])
	}
	return responses
}
