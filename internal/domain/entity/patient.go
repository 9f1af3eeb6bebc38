package entity

import (
	"time"
)

// PatientStatus represents the lifecycle status of a patient record
type PatientStatus string

const (
	PatientStatusActive   PatientStatus = "ACTIVE"
	PatientStatusBlocked  PatientStatus = "BLOCKED"
	PatientStatusDeceased PatientStatus = "DECEASED"
)

// Patient represents an OPD patient
type Patient struct {
	ID          string        `gorm:"type:varchar(50);primaryKey" json:"id"`
	Name        string        `gorm:"type:varchar(255);not null" json:"name"`
	PhoneNumber string        `gorm:"type:varchar(20);uniqueIndex;not null" json:"phone_number"`
	Email       string        `gorm:"type:varchar(255)" json:"email,omitempty"`
	Status      PatientStatus `gorm:"type:varchar(20);not null;default:'ACTIVE'" json:"status"`
	NoShowCount int           `gorm:"not null;default:0" json:"no_show_count"`
	CreatedAt   time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

func (Patient) TableName() string {
	return "patients"
}

func (p *Patient) IsActive() bool {
	return p.Status == PatientStatusActive
}
