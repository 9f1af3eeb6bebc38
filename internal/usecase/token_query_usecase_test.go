package usecase

import (
	"errors"
	"testing"

	"opd-token-allocation/internal/domain/entity"
)

func TestTokenQuery_ListSlotTokensOrdersByNumber(t *testing.T) {
	h := newHarness(t)
	queued := queueBehind(h, entity.BookingTypeOnline)

	var cancelled string
	for _, tok := range h.tokens.All() {
		if tok.Number() == 4 {
			cancelled = tok.ID
		}
	}
	if _, err := h.realloc.CancelToken(h.ctx(), cancelled, "moved"); err != nil {
		t.Fatal(err)
	}

	res, err := h.query.ListSlotTokens(h.ctx(), "D1", "09-10", testDate)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	// cancelled token is hidden, the waiting token was promoted as 9
	if res.Total != 8 || len(res.Tokens) != 8 {
		t.Fatalf("expected 8 visible tokens, got %d", res.Total)
	}
	prev := 0
	for _, tok := range res.Tokens {
		if tok.TokenID == cancelled {
			t.Error("cancelled token must not be listed")
		}
		if tok.TokenNumber == nil || *tok.TokenNumber <= prev {
			t.Errorf("tokens out of order at %v", tok.TokenNumber)
			continue
		}
		prev = *tok.TokenNumber
	}
	if last := res.Tokens[len(res.Tokens)-1]; last.TokenID != queued[0].ID {
		t.Errorf("expected promoted token last, got %s", last.TokenID)
	}
}

func TestTokenQuery_GetTokenAndEvents(t *testing.T) {
	h := newHarness(t)
	res := h.allocate(1, "09-10", entity.BookingTypeFollowUp)

	got, err := h.query.GetToken(h.ctx(), res.Token.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != "ALLOCATED" || got.Priority != entity.PriorityFollowUp || got.VisitDate != testDate {
		t.Errorf("unexpected token response %+v", got)
	}

	events, err := h.query.TokenEvents(h.ctx(), res.Token.ID)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 || events[0].EventType != "ALLOCATED" {
		t.Errorf("unexpected events %+v", events)
	}

	_, err = h.query.GetToken(h.ctx(), "missing")
	assertKind(t, err, KindNotFound, ReasonTokenNotFound)

	_, err = h.query.TokenEvents(h.ctx(), "missing")
	assertKind(t, err, KindNotFound, ReasonTokenNotFound)
}

func TestTokenQuery_SlotCapacity(t *testing.T) {
	h := newHarness(t)
	h.fillSlot("09-10", 1, 3)

	res, err := h.query.SlotCapacity(h.ctx(), "D1", "09-10", testDate)
	if err != nil {
		t.Fatalf("capacity: %v", err)
	}
	if res.MaxCapacity != 10 || res.CurrentAllocated != 3 || res.AvailableSlots != 5 || res.ReservedBuffer != 2 {
		t.Errorf("unexpected capacity %+v", res)
	}

	h.tokens.Err = errors.New("db down")
	res, err = h.query.SlotCapacity(h.ctx(), "D1", "09-10", testDate)
	if err != nil {
		t.Fatalf("capacity with store down: %v", err)
	}
	if res.MaxCapacity != 0 || res.CurrentAllocated != 0 || res.AvailableSlots != 0 || res.ReservedBuffer != 2 {
		t.Errorf("expected a closed slot on store failure, got %+v", res)
	}
	h.tokens.Err = nil

	_, err = h.query.SlotCapacity(h.ctx(), "D1", "9-10am", testDate)
	assertKind(t, err, KindInvalidState, ReasonSlotInvalid)

	_, err = h.query.SlotCapacity(h.ctx(), "D1", "09-10", "tomorrow")
	assertKind(t, err, KindInvalidState, ReasonInvalidRequest)
}
