package dto

import "time"

// Request DTOs

type CreateDoctorRequest struct {
	ID          string   `json:"id" validate:"required,max=50"`
	Name        string   `json:"name" validate:"required,max=255"`
	Speciality  string   `json:"speciality" validate:"required,max=100"`
	PhoneNumber string   `json:"phone_number" validate:"required,max=20"`
	Email       string   `json:"email" validate:"omitempty,email"`
	Designation string   `json:"designation" validate:"omitempty,max=100"`
	Slots       []string `json:"slots" validate:"required,min=1,dive,required,slot"`
	WorkingDays []string `json:"working_days" validate:"omitempty,dive,oneof=MON TUE WED THU FRI SAT SUN"`
}

// Response DTOs

type DoctorResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Speciality  string    `json:"speciality"`
	PhoneNumber string    `json:"phone_number"`
	Email       string    `json:"email,omitempty"`
	Designation string    `json:"designation,omitempty"`
	Slots       []string  `json:"slots"`
	WorkingDays []string  `json:"working_days"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type DoctorListResponse struct {
	Doctors []DoctorResponse `json:"doctors"`
	Total   int              `json:"total"`
}
