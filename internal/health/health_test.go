package health

import (
	"context"
	"testing"
	"time"
)

func TestSource_StaysUpUnderNoErrors(t *testing.T) {
	s := NewSource("binance", DefaultThresholds())
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		s.RecordLatency(ctx, 1_000_000)
	}
	if s.GetCurrentState().(State) != Up {
		t.Fatalf("expected Up, got %v", s.GetCurrentState())
	}
}

func TestSource_DegradesOnElevatedErrorRate(t *testing.T) {
	th := DefaultThresholds()
	s := NewSource("kraken", th)
	ctx := context.Background()
	for i := 0; i < 19; i++ {
		s.RecordLatency(ctx, 1_000_000)
	}
	s.RecordError(ctx) // 1/20 = 5% triggers Degraded at the default threshold
	if s.GetCurrentState().(State) != Degraded {
		t.Fatalf("expected Degraded, got %v", s.GetCurrentState())
	}
}

func TestSource_GoesDownOnHeartbeatTimeout(t *testing.T) {
	th := DefaultThresholds()
	th.HeartbeatTimeout = 1 * time.Millisecond
	s := NewSource("coinbase", th)
	ctx := context.Background()
	s.RecordLatency(ctx, 1_000_000)
	time.Sleep(5 * time.Millisecond)
	s.RecordError(ctx)
	if s.GetCurrentState().(State) != Down {
		t.Fatalf("expected Down after heartbeat timeout, got %v", s.GetCurrentState())
	}
}

func TestMonitor_CreatesSourceOnFirstAccess(t *testing.T) {
	m := NewMonitor(DefaultThresholds())
	s1 := m.Source("okx")
	s2 := m.Source("okx")
	if s1 != s2 {
		t.Fatal("expected the same Source instance on repeated access")
	}
	if len(m.Snapshot()) != 1 {
		t.Fatalf("expected 1 tracked source, got %d", len(m.Snapshot()))
	}
}
