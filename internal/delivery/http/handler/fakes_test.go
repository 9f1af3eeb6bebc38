package handler

import (
	"context"
	"time"

	"opd-token-allocation/internal/delivery/dto"
	"opd-token-allocation/internal/domain/entity"
	"opd-token-allocation/internal/service"
	"opd-token-allocation/internal/usecase"
)

type fakeAllocation struct {
	allocate func(ctx context.Context, req *dto.AllocateTokenRequest) (*usecase.AllocationResult, error)
}

func (f *fakeAllocation) Allocate(ctx context.Context, req *dto.AllocateTokenRequest) (*usecase.AllocationResult, error) {
	return f.allocate(ctx, req)
}

type fakeReallocation struct {
	usecase.TokenReallocationUsecase

	transition  func(op, id, reason string) (*entity.Token, error)
	setCapacity func(key entity.SlotKey, capacity int) (*service.SlotCapacity, error)
	delay       func(key entity.SlotKey, minutes int) error
}

func (f *fakeReallocation) CancelToken(ctx context.Context, id, reason string) (*entity.Token, error) {
	return f.transition("cancel", id, reason)
}

func (f *fakeReallocation) MarkNoShow(ctx context.Context, id string) (*entity.Token, error) {
	return f.transition("no-show", id, "")
}

func (f *fakeReallocation) InsertEmergencyToken(ctx context.Context, id string) (*entity.Token, error) {
	return f.transition("emergency", id, "")
}

func (f *fakeReallocation) StartToken(ctx context.Context, id string) (*entity.Token, error) {
	return f.transition("start", id, "")
}

func (f *fakeReallocation) CompleteToken(ctx context.Context, id string) (*entity.Token, error) {
	return f.transition("complete", id, "")
}

func (f *fakeReallocation) SetSlotCapacity(ctx context.Context, doctorID, slot string, visitDate time.Time, capacity int) (*service.SlotCapacity, error) {
	return f.setCapacity(entity.NewSlotKey(doctorID, slot, visitDate), capacity)
}

func (f *fakeReallocation) HandleDelay(ctx context.Context, doctorID, slot string, visitDate time.Time, minutes int) error {
	return f.delay(entity.NewSlotKey(doctorID, slot, visitDate), minutes)
}

type fakeQuery struct {
	getToken func(id string) (*dto.TokenResponse, error)
	list     func(doctorID, slot, date string) (*dto.SlotTokensResponse, error)
	capacity func(doctorID, slot, date string) (*dto.SlotCapacityResponse, error)
	events   func(id string) ([]dto.TokenEventResponse, error)
}

func (f *fakeQuery) GetToken(ctx context.Context, id string) (*dto.TokenResponse, error) {
	return f.getToken(id)
}

func (f *fakeQuery) ListSlotTokens(ctx context.Context, doctorID, slot, date string) (*dto.SlotTokensResponse, error) {
	return f.list(doctorID, slot, date)
}

func (f *fakeQuery) SlotCapacity(ctx context.Context, doctorID, slot, date string) (*dto.SlotCapacityResponse, error) {
	return f.capacity(doctorID, slot, date)
}

func (f *fakeQuery) TokenEvents(ctx context.Context, id string) ([]dto.TokenEventResponse, error) {
	return f.events(id)
}
