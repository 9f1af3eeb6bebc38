package usecase

import (
	"testing"
	"time"

	"opd-token-allocation/internal/domain/entity"
)

// queueBehind fills 09-10, closes 10-11 and queues one token per booking type.
func queueBehind(h *harness, bookingTypes ...entity.BookingType) []*entity.Token {
	h.t.Helper()
	h.fillSlot("09-10", 1, 8)
	h.closeSlot("10-11")

	var queued []*entity.Token
	for i, bt := range bookingTypes {
		res := h.allocate(9+i, "09-10", bt)
		if res.Outcome != OutcomeQueued {
			h.t.Fatalf("expected QUEUED for %s, got %s", bt, res.Outcome)
		}
		queued = append(queued, res.Token)
	}
	return queued
}

func TestFindAlternativeSlot(t *testing.T) {
	h := newHarness(t, newDoctor("D1", "08-09", "09-10", "10-11", "13-14"))

	slot, ok, err := h.realloc.FindAlternativeSlot(h.ctx(), "D1", testVisitDate, "09-10")
	if err != nil || !ok {
		t.Fatalf("expected an alternative, ok=%v err=%v", ok, err)
	}
	if slot != "08-09" {
		t.Errorf("equal distance should resolve to the lexically smaller slot, got %s", slot)
	}

	h.closeSlot("08-09")
	slot, _, _ = h.realloc.FindAlternativeSlot(h.ctx(), "D1", testVisitDate, "09-10")
	if slot != "10-11" {
		t.Errorf("expected 10-11 once 08-09 is full, got %s", slot)
	}

	h.closeSlot("10-11")
	slot, _, _ = h.realloc.FindAlternativeSlot(h.ctx(), "D1", testVisitDate, "09-10")
	if slot != "13-14" {
		t.Errorf("expected farthest open slot 13-14, got %s", slot)
	}

	h.closeSlot("13-14")
	if _, ok, err := h.realloc.FindAlternativeSlot(h.ctx(), "D1", testVisitDate, "09-10"); ok || err != nil {
		t.Errorf("expected no alternative, ok=%v err=%v", ok, err)
	}

	if _, ok, err := h.realloc.FindAlternativeSlot(h.ctx(), "D9", testVisitDate, "09-10"); ok || err != nil {
		t.Errorf("unknown doctor should have no alternative, ok=%v err=%v", ok, err)
	}
}

func TestCompleteToken_PromotesExactlyOneWaiting(t *testing.T) {
	h := newHarness(t)
	queued := queueBehind(h, entity.BookingTypeOnline, entity.BookingTypeOnline)
	first := h.tokens.All()
	var head string
	for _, tok := range first {
		if tok.Number() == 1 {
			head = tok.ID
		}
	}

	done, err := h.realloc.CompleteToken(h.ctx(), head)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != entity.TokenStatusCompleted || done.CompletedAt == nil {
		t.Errorf("unexpected completed token %+v", done)
	}

	promoted := h.token(queued[0].ID)
	if promoted.Status != entity.TokenStatusAllocated || promoted.Number() != 9 {
		t.Errorf("expected first waiting token allocated as 9, got %s/%d", promoted.Status, promoted.Number())
	}
	if still := h.token(queued[1].ID); still.Status != entity.TokenStatusWaiting {
		t.Errorf("second waiting token should stay WAITING, got %s", still.Status)
	}

	allocated, _ := h.queue.AllocatedMembers(h.ctx(), h.key("09-10"))
	for _, id := range allocated {
		if id == head {
			t.Error("completed token must leave the allocated queue")
		}
	}
	if ok, _ := h.queue.HasNoShowGrace(h.ctx(), promoted.ID); !ok {
		t.Error("promoted token should get a grace marker")
	}

	types := h.events.Types(queued[0].ID)
	if len(types) != 2 || types[1] != entity.TokenEventPromoted {
		t.Errorf("unexpected events %v", types)
	}
}

func TestCancelToken_TwiceFailsWithoutSecondDrain(t *testing.T) {
	h := newHarness(t)
	queued := queueBehind(h, entity.BookingTypeOnline, entity.BookingTypeOnline)
	target := h.tokens.All()[0]
	for _, tok := range h.tokens.All() {
		if tok.Number() == 3 {
			target = tok
		}
	}

	cancelled, err := h.realloc.CancelToken(h.ctx(), target.ID, "patient called")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != entity.TokenStatusCancelled || cancelled.CancellationReason != "patient called" {
		t.Errorf("unexpected cancelled token %+v", cancelled)
	}
	if got := h.token(queued[0].ID).Number(); got != 9 {
		t.Errorf("expected promotion with number 9, got %d", got)
	}

	_, err = h.realloc.CancelToken(h.ctx(), target.ID, "again")
	assertKind(t, err, KindInvalidState, ReasonIllegalState)

	if got := h.countStatus("09-10", entity.TokenStatusWaiting); got != 1 {
		t.Errorf("second cancel must not promote, waiting=%d", got)
	}
}

func TestCancelToken_WaitingLeavesQueue(t *testing.T) {
	h := newHarness(t)
	queued := queueBehind(h, entity.BookingTypeWalkIn)

	if _, err := h.realloc.CancelToken(h.ctx(), queued[0].ID, "no longer needed"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	waiting, _ := h.queue.WaitingMembers(h.ctx(), h.key("09-10"))
	if len(waiting) != 0 {
		t.Errorf("expected empty waiting queue, got %v", waiting)
	}
	if got := h.countStatus("09-10", entity.TokenStatusAllocated); got != 8 {
		t.Errorf("allocated tokens must be untouched, got %d", got)
	}
}

func TestCancelToken_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.realloc.CancelToken(h.ctx(), "missing", "x")
	assertKind(t, err, KindNotFound, ReasonTokenNotFound)
}

func TestMarkNoShow_InProgressExpiresAndPromotes(t *testing.T) {
	h := newHarness(t)
	queued := queueBehind(h, entity.BookingTypeOnline)
	var head entity.Token
	for _, tok := range h.tokens.All() {
		if tok.Number() == 1 {
			head = tok
		}
	}

	if _, err := h.realloc.StartToken(h.ctx(), head.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	expired, err := h.realloc.MarkNoShow(h.ctx(), head.ID)
	if err != nil {
		t.Fatalf("no-show: %v", err)
	}
	if expired.Status != entity.TokenStatusExpired || expired.ExpiredAt == nil {
		t.Errorf("unexpected expired token %+v", expired)
	}

	patient, _ := h.patients.FindByID(h.ctx(), head.PatientID)
	if patient.NoShowCount != 1 {
		t.Errorf("expected no-show count 1, got %d", patient.NoShowCount)
	}
	if got := h.token(queued[0].ID); got.Status != entity.TokenStatusAllocated {
		t.Errorf("expected waiting token promoted, got %s", got.Status)
	}

	_, err = h.realloc.CancelToken(h.ctx(), head.ID, "late")
	assertKind(t, err, KindInvalidState, ReasonIllegalState)
}

func TestSetSlotCapacity_PromotesByPriority(t *testing.T) {
	h := newHarness(t)
	queued := queueBehind(h, entity.BookingTypeOnline, entity.BookingTypeWalkIn, entity.BookingTypePaidPriority)
	online, walkIn, paid := queued[0], queued[1], queued[2]

	snap, err := h.realloc.SetSlotCapacity(h.ctx(), "D1", "09-10", testVisitDate, 12)
	if err != nil {
		t.Fatalf("set capacity: %v", err)
	}
	if snap.MaxCapacity != 12 || snap.CurrentAllocated != 11 {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	if got := h.token(paid.ID); got.Number() != 9 {
		t.Errorf("paid priority should be promoted first as 9, got %s/%d", got.Status, got.Number())
	}
	if got := h.token(walkIn.ID); got.Number() != 10 {
		t.Errorf("walk-in should be promoted second as 10, got %s/%d", got.Status, got.Number())
	}
	if got := h.token(online.ID); got.Status != entity.TokenStatusWaiting {
		t.Errorf("online token should still wait, got %s", got.Status)
	}

	_, err = h.realloc.SetSlotCapacity(h.ctx(), "D1", "09-10", testVisitDate, -1)
	assertKind(t, err, KindInvalidState, ReasonInvalidCapacity)
}

func TestProcessWaitingQueue_SkipsStaleEntries(t *testing.T) {
	h := newHarness(t)
	queued := queueBehind(h, entity.BookingTypeOnline)

	ghost := &entity.Token{ID: "ghost", DoctorID: "D1", Slot: "09-10", VisitDate: testVisitDate, Priority: entity.PriorityPaidPriority, CreatedAt: testVisitDate}
	if err := h.queue.AddToWaitingQueue(h.ctx(), ghost); err != nil {
		t.Fatal(err)
	}
	if err := h.capacity.SetCapacity(h.ctx(), h.key("09-10"), 11); err != nil {
		t.Fatal(err)
	}

	promoted, err := h.realloc.ProcessWaitingQueue(h.ctx(), "D1", "09-10", testVisitDate)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if promoted != 1 {
		t.Errorf("expected 1 promotion, got %d", promoted)
	}
	if got := h.token(queued[0].ID); got.Number() != 9 {
		t.Errorf("expected number 9, got %d", got.Number())
	}

	again, _ := h.realloc.ProcessWaitingQueue(h.ctx(), "D1", "09-10", testVisitDate)
	if again != 0 {
		t.Errorf("expected idempotent drain, got %d", again)
	}
}

func TestProcessWaitingQueue_SlotBusy(t *testing.T) {
	h := newHarness(t)
	if err := h.mr.Set("slot:D1:09-10:2025-03-10:lock", "another-instance"); err != nil {
		t.Fatal(err)
	}
	_, err := h.realloc.ProcessWaitingQueue(h.ctx(), "D1", "09-10", testVisitDate)
	assertKind(t, err, KindBusy, ReasonSlotBusy)
}

func TestInsertEmergencyToken_ShiftsAllocatedTokens(t *testing.T) {
	h := newHarness(t)
	regular := h.fillSlot("09-10", 1, 5)

	res, err := h.alloc.Allocate(h.ctx(), h.request(6, "09-10", entity.BookingTypeOnline, true))
	if err != nil {
		t.Fatalf("allocate emergency: %v", err)
	}
	if res.Token.Number() != 6 {
		t.Fatalf("expected emergency allocated as 6, got %d", res.Token.Number())
	}

	inserted, err := h.realloc.InsertEmergencyToken(h.ctx(), res.Token.ID)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if inserted.Number() != 1 || inserted.Priority != entity.PriorityEmergency {
		t.Errorf("unexpected inserted token %d/%d", inserted.Number(), inserted.Priority)
	}
	for i, tok := range regular {
		if got := h.token(tok.ID).Number(); got != i+2 {
			t.Errorf("token %d: expected number %d, got %d", i, i+2, got)
		}
	}

	allocated, _ := h.queue.AllocatedMembers(h.ctx(), h.key("09-10"))
	if len(allocated) != 6 || allocated[0] != inserted.ID {
		t.Errorf("emergency token should head the allocated queue, got %v", allocated)
	}
}

func TestInsertEmergencyToken_FromWaiting(t *testing.T) {
	h := newHarness(t)
	h.fillSlot("09-10", 1, 3)

	waiting := &entity.Token{
		ID: "emg-1", PatientID: "P50", DoctorID: "D1", Slot: "09-10", VisitDate: testVisitDate,
		BookingType: entity.BookingTypeWalkIn, Status: entity.TokenStatusWaiting,
		Priority: entity.PriorityEmergency, Emergency: true, CreatedAt: testVisitDate,
	}
	if err := h.tokens.Create(h.ctx(), waiting); err != nil {
		t.Fatal(err)
	}
	if err := h.queue.AddToWaitingQueue(h.ctx(), waiting); err != nil {
		t.Fatal(err)
	}

	inserted, err := h.realloc.InsertEmergencyToken(h.ctx(), waiting.ID)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if inserted.Status != entity.TokenStatusAllocated || inserted.Number() != 1 {
		t.Errorf("unexpected inserted token %s/%d", inserted.Status, inserted.Number())
	}

	members, _ := h.queue.WaitingMembers(h.ctx(), h.key("09-10"))
	if len(members) != 0 {
		t.Errorf("inserted token must leave the waiting queue, got %v", members)
	}
	if ok, _ := h.queue.HasNoShowGrace(h.ctx(), waiting.ID); !ok {
		t.Error("expected grace marker")
	}
}

func TestInsertEmergencyToken_Rejections(t *testing.T) {
	h := newHarness(t)
	h.closeSlot("10-11")
	regular := h.fillSlot("09-10", 1, 8)

	_, err := h.realloc.InsertEmergencyToken(h.ctx(), "missing")
	assertKind(t, err, KindNotFound, ReasonTokenNotFound)

	_, err = h.realloc.InsertEmergencyToken(h.ctx(), regular[0].ID)
	assertKind(t, err, KindInvalidState, ReasonNotEmergency)

	first, err := h.alloc.Allocate(h.ctx(), h.request(9, "09-10", entity.BookingTypeWalkIn, true))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.alloc.Allocate(h.ctx(), h.request(10, "09-10", entity.BookingTypeWalkIn, true)); err != nil {
		t.Fatal(err)
	}

	// slot is now at its ceiling of 10
	_, err = h.realloc.InsertEmergencyToken(h.ctx(), first.Token.ID)
	assertKind(t, err, KindCapacityExhausted, ReasonEmergencyCapacityExhausted)

	if _, err := h.realloc.StartToken(h.ctx(), first.Token.ID); err != nil {
		t.Fatal(err)
	}
	_, err = h.realloc.InsertEmergencyToken(h.ctx(), first.Token.ID)
	assertKind(t, err, KindInvalidState, ReasonIllegalState)
}

func TestStartAndCompleteTransitions(t *testing.T) {
	h := newHarness(t)
	queued := queueBehind(h, entity.BookingTypeOnline)
	tok := h.tokens.All()[0]
	for _, candidate := range h.tokens.All() {
		if candidate.Number() == 2 {
			tok = candidate
		}
	}

	_, err := h.realloc.StartToken(h.ctx(), queued[0].ID)
	assertKind(t, err, KindInvalidState, ReasonIllegalState)

	_, err = h.realloc.CompleteToken(h.ctx(), queued[0].ID)
	assertKind(t, err, KindInvalidState, ReasonIllegalState)

	started, err := h.realloc.StartToken(h.ctx(), tok.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != entity.TokenStatusInProgress {
		t.Errorf("expected IN_PROGRESS, got %s", started.Status)
	}
	if ok, _ := h.queue.HasNoShowGrace(h.ctx(), tok.ID); ok {
		t.Error("starting a token should clear its grace marker")
	}

	_, err = h.realloc.StartToken(h.ctx(), tok.ID)
	assertKind(t, err, KindInvalidState, ReasonIllegalState)

	if _, err := h.realloc.CompleteToken(h.ctx(), tok.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_, err = h.realloc.CompleteToken(h.ctx(), tok.ID)
	assertKind(t, err, KindInvalidState, ReasonIllegalState)
}

func TestGraceMarkerExpires(t *testing.T) {
	h := newHarness(t)
	res := h.allocate(1, "09-10", entity.BookingTypeOnline)

	h.mr.FastForward(16 * time.Minute)
	if ok, _ := h.queue.HasNoShowGrace(h.ctx(), res.Token.ID); ok {
		t.Error("grace marker should expire after the grace period")
	}
}

func TestHandleDelay(t *testing.T) {
	h := newHarness(t)

	if err := h.realloc.HandleDelay(h.ctx(), "D1", "09-10", testVisitDate, 20); err != nil {
		t.Fatalf("delay: %v", err)
	}
	if got := h.events.Types(""); len(got) != 1 || got[0] != entity.TokenEventSlotDelayed {
		t.Errorf("expected one SLOT_DELAYED event, got %v", got)
	}

	err := h.realloc.HandleDelay(h.ctx(), "D1", "09-10", testVisitDate, 0)
	assertKind(t, err, KindInvalidState, ReasonInvalidRequest)
}
