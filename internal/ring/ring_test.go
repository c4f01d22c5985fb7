package ring

import "testing"

func TestBuffer_PushPopRoundTrip(t *testing.T) {
	b := New[int](Config{Capacity: 4, OverflowCapacity: 4})
	if err := b.Push(42); err != nil {
		t.Fatalf("unexpected push error: %v", err)
	}
	v, ok := b.Pop()
	if !ok || v != 42 {
		t.Fatalf("expected to pop 42, got %d ok=%v", v, ok)
	}
}

func TestBuffer_OverflowsToChannelWhenRingFull(t *testing.T) {
	b := New[int](Config{Capacity: 1, OverflowCapacity: 2})
	if err := b.Push(1); err != nil {
		t.Fatalf("unexpected error on first push: %v", err)
	}
	if err := b.Push(2); err != nil {
		t.Fatalf("unexpected error on overflow push: %v", err)
	}
	stats := b.Stats()
	if stats.Overflows != 1 {
		t.Fatalf("expected 1 overflow, got %d", stats.Overflows)
	}
}

func TestBuffer_DropsWithTransientErrorWhenSaturated(t *testing.T) {
	b := New[int](Config{Capacity: 1, OverflowCapacity: 1})
	_ = b.Push(1)
	_ = b.Push(2)
	if err := b.Push(3); err == nil {
		t.Fatal("expected a transient ingress error once both ring and overflow are full")
	}
	if b.Stats().Dropped != 1 {
		t.Fatalf("expected 1 dropped item, got %d", b.Stats().Dropped)
	}
}

func TestBuffer_RateLimitDropsExcessPushes(t *testing.T) {
	b := New[int](Config{Capacity: 10, OverflowCapacity: 10, RateLimitPerSec: 1, RateLimitBurst: 1})
	_ = b.Push(1)
	if err := b.Push(2); err == nil {
		t.Fatal("expected the second immediate push to be rate-limited")
	}
}
