package dto

import "time"

// Request DTOs

type CreatePatientRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	PhoneNumber string `json:"phone_number" validate:"required,max=20"`
	Email       string `json:"email" validate:"omitempty,email"`
}

// Response DTOs

type PatientResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
	Email       string    `json:"email,omitempty"`
	Status      string    `json:"status"`
	NoShowCount int       `json:"no_show_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type PatientListResponse struct {
	Patients []PatientResponse `json:"patients"`
	Total    int               `json:"total"`
}
