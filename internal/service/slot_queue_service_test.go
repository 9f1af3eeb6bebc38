package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"opd-token-allocation/config"
	"opd-token-allocation/internal/domain/entity"
	"opd-token-allocation/internal/testutil"
)

var testVisitDate = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func testEngineConfig() config.EngineConfig {
	cfg := config.DefaultEngineConfig()
	cfg.SlotLockWait = 60 * time.Millisecond
	return cfg
}

func newToken(id string, priority int, createdAt time.Time) *entity.Token {
	return &entity.Token{
		ID:        id,
		DoctorID:  "D1",
		Slot:      "09-10",
		VisitDate: testVisitDate,
		Priority:  priority,
		CreatedAt: createdAt,
	}
}

func TestSlotQueueService_PollNextWaitingPriorityOrder(t *testing.T) {
	_, client := testutil.NewRedis(t)
	svc := NewSlotQueueService(client, testutil.NewLogger(), testEngineConfig())
	ctx := context.Background()
	base := time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC)

	// Arrival order deliberately differs from service order.
	tokens := []*entity.Token{
		newToken("online-early", entity.PriorityOnline, base),
		newToken("walkin", entity.PriorityWalkIn, base.Add(time.Minute)),
		newToken("paid", entity.PriorityPaidPriority, base.Add(2*time.Minute)),
		newToken("online-late", entity.PriorityOnline, base.Add(3*time.Minute)),
	}
	for _, tok := range tokens {
		if err := svc.AddToWaitingQueue(ctx, tok); err != nil {
			t.Fatalf("add %s: %v", tok.ID, err)
		}
	}

	key := entity.NewSlotKey("D1", "09-10", testVisitDate)
	want := []string{"paid", "walkin", "online-early", "online-late"}
	for _, id := range want {
		got, ok, err := svc.PollNextWaiting(ctx, key)
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		if !ok || got != id {
			t.Fatalf("expected %s, got %s (ok=%v)", id, got, ok)
		}
	}

	_, ok, err := svc.PollNextWaiting(ctx, key)
	if err != nil {
		t.Fatalf("poll empty: %v", err)
	}
	if ok {
		t.Error("expected empty queue")
	}
}

func TestSlotQueueService_AllocatedQueueRemoveIsIdempotent(t *testing.T) {
	_, client := testutil.NewRedis(t)
	svc := NewSlotQueueService(client, testutil.NewLogger(), testEngineConfig())
	ctx := context.Background()
	base := time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC)
	key := entity.NewSlotKey("D1", "09-10", testVisitDate)

	_ = svc.AddToAllocatedQueue(ctx, newToken("a", entity.PriorityPaidPriority, base))
	_ = svc.AddToAllocatedQueue(ctx, newToken("b", entity.PriorityOnline, base))

	weakest, ok, err := svc.WeakestAllocated(ctx, key)
	if err != nil || !ok || weakest != "b" {
		t.Fatalf("expected weakest b, got %q ok=%v err=%v", weakest, ok, err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.RemoveFromAllocatedQueue(ctx, key, "b"); err != nil {
			t.Fatalf("remove #%d: %v", i+1, err)
		}
	}

	members, err := svc.AllocatedMembers(ctx, key)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 || members[0] != "a" {
		t.Errorf("unexpected members %v", members)
	}
}

func TestSlotQueueService_WithSlotLock(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	svc := NewSlotQueueService(client, testutil.NewLogger(), testEngineConfig())
	ctx := context.Background()
	key := entity.NewSlotKey("D1", "09-10", testVisitDate)

	ran := false
	err := svc.WithSlotLock(ctx, key, func(ctx context.Context) error {
		if !mr.Exists("slot:D1:09-10:2025-03-10:lock") {
			t.Error("expected lock key while held")
		}

		inner := svc.WithSlotLock(ctx, key, func(ctx context.Context) error {
			t.Error("nested holder must not run")
			return nil
		})
		if !errors.Is(inner, ErrSlotLockNotAcquired) {
			t.Errorf("expected ErrSlotLockNotAcquired, got %v", inner)
		}

		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Fatal("fn did not run")
	}
	if mr.Exists("slot:D1:09-10:2025-03-10:lock") {
		t.Error("lock not released")
	}
}

func TestSlotQueueService_ReleaseKeepsForeignLock(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	svc := NewSlotQueueService(client, testutil.NewLogger(), testEngineConfig())
	ctx := context.Background()
	key := entity.NewSlotKey("D1", "09-10", testVisitDate)
	lockKey := "slot:D1:09-10:2025-03-10:lock"

	err := svc.WithSlotLock(ctx, key, func(ctx context.Context) error {
		// Simulate expiry and takeover by another holder.
		mr.Del(lockKey)
		return mr.Set(lockKey, "someone-else")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := mr.Get(lockKey)
	if err != nil || got != "someone-else" {
		t.Errorf("foreign lock was released: %q, %v", got, err)
	}
}

func TestSlotQueueService_GraceMarker(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	svc := NewSlotQueueService(client, testutil.NewLogger(), testEngineConfig())
	ctx := context.Background()

	if err := svc.StartNoShowTimer(ctx, "tok-1"); err != nil {
		t.Fatalf("start timer: %v", err)
	}
	if ok, _ := svc.HasNoShowGrace(ctx, "tok-1"); !ok {
		t.Fatal("expected grace marker")
	}
	if ttl := mr.TTL("token:tok-1:grace"); ttl != 10*time.Minute {
		t.Errorf("expected 10m ttl, got %v", ttl)
	}

	mr.FastForward(11 * time.Minute)
	if ok, _ := svc.HasNoShowGrace(ctx, "tok-1"); ok {
		t.Error("expected marker to expire")
	}

	_ = svc.StartNoShowTimer(ctx, "tok-2")
	if err := svc.ClearNoShowTimer(ctx, "tok-2"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if ok, _ := svc.HasNoShowGrace(ctx, "tok-2"); ok {
		t.Error("expected cleared marker")
	}
}

func TestSlotQueueService_ReplaceSlotQueues(t *testing.T) {
	_, client := testutil.NewRedis(t)
	svc := NewSlotQueueService(client, testutil.NewLogger(), testEngineConfig())
	ctx := context.Background()
	base := time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC)
	key := entity.NewSlotKey("D1", "09-10", testVisitDate)

	_ = svc.AddToWaitingQueue(ctx, newToken("stale", entity.PriorityOnline, base))

	waiting := []entity.Token{*newToken("w1", entity.PriorityWalkIn, base)}
	allocated := []entity.Token{*newToken("a1", entity.PriorityOnline, base), *newToken("a2", entity.PriorityFollowUp, base)}
	if err := svc.ReplaceSlotQueues(ctx, key, waiting, allocated); err != nil {
		t.Fatalf("replace: %v", err)
	}

	w, _ := svc.WaitingMembers(ctx, key)
	if len(w) != 1 || w[0] != "w1" {
		t.Errorf("unexpected waiting %v", w)
	}
	a, _ := svc.AllocatedMembers(ctx, key)
	if len(a) != 2 || a[0] != "a2" || a[1] != "a1" {
		t.Errorf("unexpected allocated %v", a)
	}
}

func TestParseQueueKey(t *testing.T) {
	key := entity.NewSlotKey("D1", "09-10", testVisitDate)

	tests := []struct {
		name  string
		input string
		want  entity.SlotKey
		ok    bool
	}{
		{"waiting", WaitingQueueKey(key), key, true},
		{"allocated", AllocatedQueueKey(key), key, true},
		{"doctor id with colon", "slot:dept:D7:10-11:2025-03-10:waiting", entity.NewSlotKey("dept:D7", "10-11", testVisitDate), true},
		{"lock", slotLockKey(key), entity.SlotKey{}, false},
		{"capacity", "capacity:D1:09-10:2025-03-10", entity.SlotKey{}, false},
		{"bad date", "slot:D1:09-10:tomorrow:waiting", entity.SlotKey{}, false},
		{"bad slot", "slot:D1:9am:2025-03-10:waiting", entity.SlotKey{}, false},
		{"missing doctor", "slot::09-10:2025-03-10:waiting", entity.SlotKey{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseQueueKey(tt.input)
			if ok != tt.ok {
				t.Fatalf("ParseQueueKey(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && got.String() != tt.want.String() {
				t.Errorf("ParseQueueKey(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}
