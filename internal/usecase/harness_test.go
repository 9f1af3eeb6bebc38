package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"opd-token-allocation/config"
	"opd-token-allocation/internal/delivery/dto"
	"opd-token-allocation/internal/domain/entity"
	"opd-token-allocation/internal/service"
	"opd-token-allocation/internal/testutil"

	"github.com/alicebob/miniredis/v2"
)

const testDate = "2025-03-10"

var testVisitDate = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

type harness struct {
	t        *testing.T
	mr       *miniredis.Miniredis
	tokens   *testutil.TokenStore
	doctors  *testutil.DoctorStore
	patients *testutil.PatientStore
	events   *testutil.EventStore
	queue    *service.SlotQueueService
	capacity *service.SlotCapacityService
	alloc    *tokenAllocationUsecase
	realloc  *tokenReallocationUsecase
	query    TokenQueryUsecase
}

func newDoctor(id string, slots ...string) entity.Doctor {
	d := entity.Doctor{ID: id, Name: "Dr " + id, Speciality: "General", Active: true}
	for _, s := range slots {
		d.Slots = append(d.Slots, entity.DoctorSlot{DoctorID: id, SlotTime: s})
	}
	return d
}

// newHarness wires both engines over miniredis and in-memory stores.
// Doctor D1 offers 09-10 and 10-11; ceiling 10, reserved buffer 2.
func newHarness(t *testing.T, doctors ...entity.Doctor) *harness {
	t.Helper()

	mr, client := testutil.NewRedis(t)
	log := testutil.NewLogger()

	cfg := config.DefaultEngineConfig()
	cfg.SlotLockWait = 60 * time.Millisecond

	if len(doctors) == 0 {
		doctors = []entity.Doctor{newDoctor("D1", "09-10", "10-11")}
	}

	h := &harness{
		t:        t,
		mr:       mr,
		tokens:   testutil.NewTokenStore(),
		doctors:  testutil.NewDoctorStore(doctors...),
		patients: testutil.NewPatientStore(),
		events:   testutil.NewEventStore(),
	}

	clock := testutil.Clock(time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC))
	eventSvc := service.NewTokenEventService(log, h.events)
	h.queue = service.NewSlotQueueService(client, log, cfg)
	h.capacity = service.NewSlotCapacityService(client, log, h.tokens, cfg)
	h.realloc = newTokenReallocationUsecase(log, h.tokens, h.doctors, h.patients, h.queue, h.capacity, eventSvc, clock)
	h.alloc = newTokenAllocationUsecase(log, h.tokens, h.doctors, h.patients, h.queue, h.capacity, eventSvc, h.realloc, clock)
	h.query = NewTokenQueryUsecase(log, h.tokens, h.capacity, eventSvc)

	return h
}

func (h *harness) ctx() context.Context {
	return context.Background()
}

func (h *harness) key(slot string) entity.SlotKey {
	return entity.NewSlotKey("D1", slot, testVisitDate)
}

// request registers patient n and returns an allocation request for D1.
func (h *harness) request(n int, slot string, bookingType entity.BookingType, emergency bool) *dto.AllocateTokenRequest {
	id := fmt.Sprintf("P%02d", n)
	_ = h.patients.Create(h.ctx(), &entity.Patient{ID: id, Name: "Patient " + id, PhoneNumber: id, Status: entity.PatientStatusActive})

	return &dto.AllocateTokenRequest{
		PatientID:   id,
		DoctorID:    "D1",
		Slot:        slot,
		VisitDate:   testDate,
		BookingType: string(bookingType),
		IsEmergency: emergency,
	}
}

func (h *harness) allocate(n int, slot string, bookingType entity.BookingType) *AllocationResult {
	h.t.Helper()
	res, err := h.alloc.Allocate(h.ctx(), h.request(n, slot, bookingType, false))
	if err != nil {
		h.t.Fatalf("allocate patient %d: %v", n, err)
	}
	return res
}

// fillSlot allocates n ONLINE tokens for patients starting at first.
func (h *harness) fillSlot(slot string, first, n int) []*entity.Token {
	h.t.Helper()
	var out []*entity.Token
	for i := 0; i < n; i++ {
		res := h.allocate(first+i, slot, entity.BookingTypeOnline)
		if res.Outcome != OutcomeAllocated {
			h.t.Fatalf("expected ALLOCATED for patient %d, got %s", first+i, res.Outcome)
		}
		out = append(out, res.Token)
	}
	return out
}

// closeSlot leaves no regular capacity in slot.
func (h *harness) closeSlot(slot string) {
	h.t.Helper()
	if err := h.capacity.SetCapacity(h.ctx(), h.key(slot), 2); err != nil {
		h.t.Fatalf("close slot: %v", err)
	}
}

func (h *harness) token(id string) *entity.Token {
	h.t.Helper()
	tok, err := h.tokens.FindByID(h.ctx(), id)
	if err != nil || tok == nil {
		h.t.Fatalf("token %s missing: %v", id, err)
	}
	return tok
}

func (h *harness) countStatus(slot string, status entity.TokenStatus) int {
	n, _ := h.tokens.CountBySlot(h.ctx(), h.key(slot), []entity.TokenStatus{status})
	return int(n)
}

func assertKind(t *testing.T, err error, kind ErrorKind, reason Reason) {
	t.Helper()
	te, ok := AsTokenError(err)
	if !ok {
		t.Fatalf("expected *TokenError, got %v", err)
	}
	if te.Kind != kind || te.Reason != reason {
		t.Fatalf("expected %s/%s, got %s/%s (%s)", kind, reason, te.Kind, te.Reason, te.Message)
	}
}
