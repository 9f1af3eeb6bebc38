package entity

import (
	"fmt"
	"sort"
	"time"
)

// WorkingDay is a weekday on which a doctor holds OPD.
type WorkingDay string

const (
	WorkingDayMon WorkingDay = "MON"
	WorkingDayTue WorkingDay = "TUE"
	WorkingDayWed WorkingDay = "WED"
	WorkingDayThu WorkingDay = "THU"
	WorkingDayFri WorkingDay = "FRI"
	WorkingDaySat WorkingDay = "SAT"
	WorkingDaySun WorkingDay = "SUN"
)

// Doctor represents a consulting doctor and the slots they offer
type Doctor struct {
	ID          string    `gorm:"column:doctor_id;type:varchar(50);primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Speciality  string    `gorm:"type:varchar(100);not null;index" json:"speciality"`
	PhoneNumber string    `gorm:"type:varchar(20);not null" json:"phone_number"`
	Email       string    `gorm:"type:varchar(255)" json:"email,omitempty"`
	Designation string    `gorm:"type:varchar(100)" json:"designation,omitempty"`
	Active      bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relationships
	Slots       []DoctorSlot       `gorm:"foreignKey:DoctorID;constraint:OnDelete:CASCADE" json:"slots,omitempty"`
	WorkingDays []DoctorWorkingDay `gorm:"foreignKey:DoctorID;constraint:OnDelete:CASCADE" json:"working_days,omitempty"`
}

func (Doctor) TableName() string {
	return "doctors"
}

// DoctorSlot is one slot identifier ("09-10") offered by a doctor
type DoctorSlot struct {
	DoctorID string `gorm:"type:varchar(50);primaryKey" json:"-"`
	SlotTime string `gorm:"type:varchar(10);primaryKey" json:"slot_time"`
}

func (DoctorSlot) TableName() string {
	return "doctor_slots"
}

type DoctorWorkingDay struct {
	DoctorID   string     `gorm:"type:varchar(50);primaryKey" json:"-"`
	WorkingDay WorkingDay `gorm:"type:varchar(3);primaryKey" json:"working_day"`
}

func (DoctorWorkingDay) TableName() string {
	return "doctor_working_days"
}

// SlotIDs returns the doctor's slot identifiers in lexical order.
func (d *Doctor) SlotIDs() []string {
	ids := make([]string, 0, len(d.Slots))
	for _, s := range d.Slots {
		ids = append(ids, s.SlotTime)
	}
	sort.Strings(ids)
	return ids
}

// OffersSlot checks if slot is one of the doctor's slots
func (d *Doctor) OffersSlot(slot string) bool {
	for _, s := range d.Slots {
		if s.SlotTime == slot {
			return true
		}
	}
	return false
}

// ValidateSlots checks that every slot identifier parses to an hour range.
func (d *Doctor) ValidateSlots() error {
	seen := make(map[string]bool, len(d.Slots))
	for _, s := range d.Slots {
		if _, err := ParseSlot(s.SlotTime); err != nil {
			return err
		}
		if seen[s.SlotTime] {
			return fmt.Errorf("%w: %q listed twice", ErrInvalidSlot, s.SlotTime)
		}
		seen[s.SlotTime] = true
	}
	return nil
}
