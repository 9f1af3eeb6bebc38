// Package seed fills an empty database with fake doctors and patients for local runs.
package seed

import (
	"context"
	"fmt"

	"opd-token-allocation/internal/domain/entity"
	"opd-token-allocation/internal/domain/repository"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var specialities = []string{
	"General Medicine",
	"Cardiology",
	"Dermatology",
	"Orthopedics",
	"Pediatrics",
	"ENT",
	"Ophthalmology",
	"Neurology",
}

var designations = []string{"Consultant", "Senior Consultant", "Resident", "Head of Department"}

var weekdays = []entity.WorkingDay{
	entity.WorkingDayMon, entity.WorkingDayTue, entity.WorkingDayWed,
	entity.WorkingDayThu, entity.WorkingDayFri, entity.WorkingDaySat,
}

type Result struct {
	Doctors  int
	Patients int
}

type Seeder struct {
	log         *logrus.Logger
	doctorRepo  repository.DoctorRepository
	patientRepo repository.PatientRepository
	faker       *gofakeit.Faker
}

// NewSeeder builds a seeder. A zero seed picks a random one.
func NewSeeder(log *logrus.Logger, doctorRepo repository.DoctorRepository, patientRepo repository.PatientRepository, seed uint64) *Seeder {
	return &Seeder{
		log:         log,
		doctorRepo:  doctorRepo,
		patientRepo: patientRepo,
		faker:       gofakeit.New(seed),
	}
}

// Run creates up to doctors doctors (ids D001, D002, ...) and patients
// patients. Existing doctor ids and phone numbers are skipped.
func (s *Seeder) Run(ctx context.Context, doctors, patients int) (*Result, error) {
	result := &Result{}

	for i := 1; i <= doctors; i++ {
		id := fmt.Sprintf("D%03d", i)
		existing, err := s.doctorRepo.FindByID(ctx, id)
		if err != nil {
			return result, fmt.Errorf("check doctor %s: %w", id, err)
		}
		if existing != nil {
			continue
		}

		if err := s.doctorRepo.Create(ctx, s.fakeDoctor(id)); err != nil {
			return result, fmt.Errorf("create doctor %s: %w", id, err)
		}
		result.Doctors++
	}

	for i := 0; i < patients; i++ {
		patient := s.fakePatient()
		existing, err := s.patientRepo.FindByPhone(ctx, patient.PhoneNumber)
		if err != nil {
			return result, fmt.Errorf("check patient phone: %w", err)
		}
		if existing != nil {
			continue
		}

		if err := s.patientRepo.Create(ctx, patient); err != nil {
			return result, fmt.Errorf("create patient: %w", err)
		}
		result.Patients++
	}

	s.log.Infof("Seeded %d doctors and %d patients", result.Doctors, result.Patients)
	return result, nil
}

// fakeDoctor works a contiguous block of 3 to 6 one-hour slots starting between 08:00 and 12:00.
func (s *Seeder) fakeDoctor(id string) *entity.Doctor {
	doctor := &entity.Doctor{
		ID:          id,
		Name:        "Dr. " + s.faker.Name(),
		Speciality:  specialities[s.faker.Number(0, len(specialities)-1)],
		PhoneNumber: s.faker.Phone(),
		Email:       s.faker.Email(),
		Designation: designations[s.faker.Number(0, len(designations)-1)],
		Active:      true,
	}

	start := s.faker.Number(8, 12)
	hours := s.faker.Number(3, 6)
	for h := start; h < start+hours; h++ {
		doctor.Slots = append(doctor.Slots, entity.DoctorSlot{DoctorID: id, SlotTime: fmt.Sprintf("%02d-%02d", h, h+1)})
	}

	for _, day := range weekdays {
		if s.faker.Number(0, 3) > 0 {
			doctor.WorkingDays = append(doctor.WorkingDays, entity.DoctorWorkingDay{DoctorID: id, WorkingDay: day})
		}
	}

	return doctor
}

func (s *Seeder) fakePatient() *entity.Patient {
	return &entity.Patient{
		ID:          uuid.NewString(),
		Name:        s.faker.Name(),
		PhoneNumber: s.faker.Phone(),
		Email:       s.faker.Email(),
		Status:      entity.PatientStatusActive,
	}
}
