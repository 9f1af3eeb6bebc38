package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"opd-token-allocation/internal/domain/entity"
	"opd-token-allocation/internal/testutil"
)

func seedTokens(t *testing.T, store *testutil.TokenStore, status entity.TokenStatus, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		tok := newToken(string(status)+"-"+string(rune('a'+i)), entity.PriorityOnline, time.Unix(int64(i), 0))
		tok.Status = status
		if err := store.Save(context.Background(), tok); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestSlotCapacityService_GetCapacitySeedsDefault(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	svc := NewSlotCapacityService(client, testutil.NewLogger(), testutil.NewTokenStore(), testEngineConfig())
	key := entity.NewSlotKey("D1", "09-10", testVisitDate)

	got, err := svc.GetCapacity(context.Background(), key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 10 {
		t.Errorf("expected default 10, got %d", got)
	}
	if ttl := mr.TTL("capacity:D1:09-10:2025-03-10"); ttl != 24*time.Hour {
		t.Errorf("expected 24h ttl, got %v", ttl)
	}
}

func TestSlotCapacityService_SetCapacity(t *testing.T) {
	_, client := testutil.NewRedis(t)
	svc := NewSlotCapacityService(client, testutil.NewLogger(), testutil.NewTokenStore(), testEngineConfig())
	ctx := context.Background()
	key := entity.NewSlotKey("D1", "09-10", testVisitDate)

	if err := svc.SetCapacity(ctx, key, 4); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := svc.GetCapacity(ctx, key); got != 4 {
		t.Errorf("expected 4, got %d", got)
	}
	if err := svc.SetCapacity(ctx, key, -1); !errors.Is(err, ErrNegativeCapacity) {
		t.Errorf("expected ErrNegativeCapacity, got %v", err)
	}
}

func TestSlotCapacityService_AvailabilityRules(t *testing.T) {
	tests := []struct {
		name          string
		allocated     int
		waiting       int
		wantAvailable bool
		wantEmergency bool
		wantPromote   bool
	}{
		{name: "empty", wantAvailable: true, wantEmergency: true, wantPromote: true},
		{name: "seven held", allocated: 7, wantAvailable: true, wantEmergency: true, wantPromote: true},
		{name: "eight held fills regular capacity", allocated: 8, wantAvailable: false, wantEmergency: true, wantPromote: false},
		{name: "waiting counts toward allocation", allocated: 7, waiting: 1, wantAvailable: false, wantEmergency: true, wantPromote: true},
		{name: "nine held", allocated: 9, wantAvailable: false, wantEmergency: true, wantPromote: false},
		{name: "ceiling reached", allocated: 10, wantAvailable: false, wantEmergency: false, wantPromote: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := testutil.NewRedis(t)
			store := testutil.NewTokenStore()
			seedTokens(t, store, entity.TokenStatusAllocated, tt.allocated)
			seedTokens(t, store, entity.TokenStatusWaiting, tt.waiting)
			svc := NewSlotCapacityService(client, testutil.NewLogger(), store, testEngineConfig())
			ctx := context.Background()
			key := entity.NewSlotKey("D1", "09-10", testVisitDate)

			if got := svc.HasAvailableCapacity(ctx, key); got != tt.wantAvailable {
				t.Errorf("HasAvailableCapacity = %v, want %v", got, tt.wantAvailable)
			}
			if got := svc.HasEmergencyCapacity(ctx, key); got != tt.wantEmergency {
				t.Errorf("HasEmergencyCapacity = %v, want %v", got, tt.wantEmergency)
			}
			if got := svc.HasPromotableCapacity(ctx, key); got != tt.wantPromote {
				t.Errorf("HasPromotableCapacity = %v, want %v", got, tt.wantPromote)
			}
		})
	}
}

func TestSlotCapacityService_Snapshot(t *testing.T) {
	_, client := testutil.NewRedis(t)
	store := testutil.NewTokenStore()
	seedTokens(t, store, entity.TokenStatusAllocated, 9)
	seedTokens(t, store, entity.TokenStatusCompleted, 3)
	svc := NewSlotCapacityService(client, testutil.NewLogger(), store, testEngineConfig())

	snap, err := svc.Snapshot(context.Background(), entity.NewSlotKey("D1", "09-10", testVisitDate))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.MaxCapacity != 10 || snap.CurrentAllocated != 9 || snap.AvailableSlots != 0 || snap.ReservedBuffer != 2 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestSlotCapacityService_FailsClosed(t *testing.T) {
	_, client := testutil.NewRedis(t)
	store := testutil.NewTokenStore()
	store.Err = errors.New("db down")
	svc := NewSlotCapacityService(client, testutil.NewLogger(), store, testEngineConfig())
	ctx := context.Background()
	key := entity.NewSlotKey("D1", "09-10", testVisitDate)

	if svc.HasAvailableCapacity(ctx, key) {
		t.Error("expected no capacity on store failure")
	}
	if svc.HasEmergencyCapacity(ctx, key) {
		t.Error("expected no emergency capacity on store failure")
	}
	if _, err := svc.Snapshot(ctx, key); err == nil {
		t.Error("expected Snapshot to report the store failure")
	}

	snap := svc.SnapshotOrClosed(ctx, key)
	if snap.MaxCapacity != 0 || snap.AvailableSlots != 0 || snap.ReservedBuffer != 2 {
		t.Errorf("expected a closed snapshot, got %+v", snap)
	}
}
