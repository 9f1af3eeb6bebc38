package entity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire and key format of a visit date.
const DateLayout = "2006-01-02"

var ErrInvalidSlot = errors.New("slot must be an hour range like 09-10")

// SlotRange is the parsed form of a slot identifier such as "09-10".
type SlotRange struct {
	StartHour int
	EndHour   int
}

// StartMinutes returns minutes since midnight of the slot start.
func (r SlotRange) StartMinutes() int {
	return r.StartHour * 60
}

// ParseSlot parses "HH-HH" into an hour range.
func ParseSlot(slot string) (SlotRange, error) {
	parts := strings.Split(slot, "-")
	if len(parts) != 2 {
		return SlotRange{}, ErrInvalidSlot
	}

	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return SlotRange{}, ErrInvalidSlot
	}
	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return SlotRange{}, ErrInvalidSlot
	}

	if start < 0 || end > 24 || start >= end {
		return SlotRange{}, ErrInvalidSlot
	}

	return SlotRange{StartHour: start, EndHour: end}, nil
}

// SlotKey identifies one doctor's slot on one visit date.
type SlotKey struct {
	DoctorID  string
	Slot      string
	VisitDate time.Time
}

func NewSlotKey(doctorID, slot string, visitDate time.Time) SlotKey {
	return SlotKey{DoctorID: doctorID, Slot: slot, VisitDate: NormalizeDate(visitDate)}
}

// String renders the key as doctor:slot:date, the suffix shared by every Redis key of the slot.
func (k SlotKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.DoctorID, k.Slot, k.VisitDate.Format(DateLayout))
}

// NormalizeDate drops the clock part of t, keeping the calendar date in UTC.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseVisitDate parses a YYYY-MM-DD date.
func ParseVisitDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
