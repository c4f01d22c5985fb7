package threshold

import (
	"math"
	"testing"

	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
)

func TestThreshold_ClosedAndMaintenanceAreInfinite(t *testing.T) {
	th := New(DefaultConfig())
	if !math.IsInf(th.Compute(model.MarketClosed, 0.5), 1) {
		t.Fatal("expected +Inf for Closed")
	}
	if !math.IsInf(th.Compute(model.MarketMaintenance, 0.5), 1) {
		t.Fatal("expected +Inf for Maintenance")
	}
}

func TestThreshold_ScalesDownOnHighSuccessRate(t *testing.T) {
	cfg := DefaultConfig()
	th := New(cfg)
	base := cfg.BaseByState[model.MarketNormal]
	got := th.Compute(model.MarketNormal, 0.9)
	want := base * (1 - cfg.AdjustmentFactor)
	if got != want {
		t.Fatalf("expected %f, got %f", want, got)
	}
}

func TestThreshold_ScalesUpOnLowSuccessRate(t *testing.T) {
	cfg := DefaultConfig()
	th := New(cfg)
	base := cfg.BaseByState[model.MarketNormal]
	got := th.Compute(model.MarketNormal, 0.1)
	want := base * (1 + cfg.AdjustmentFactor)
	if got != want {
		t.Fatalf("expected %f, got %f", want, got)
	}
}

// TestThreshold_RespondsImmediatelyToSuccessRate covers spec.md §8 scenario
// 5: back-to-back calls for the same state with different success rates
// must scale differently on every call, not just after some TTL expires.
func TestThreshold_RespondsImmediatelyToSuccessRate(t *testing.T) {
	cfg := DefaultConfig()
	th := New(cfg)
	base := cfg.BaseByState[model.MarketNormal]

	high := th.Compute(model.MarketNormal, 0.9)
	if want := base * (1 - cfg.AdjustmentFactor); high != want {
		t.Fatalf("high success rate: expected %f, got %f", want, high)
	}

	low := th.Compute(model.MarketNormal, 0.3)
	if want := base * (1 + cfg.AdjustmentFactor); low != want {
		t.Fatalf("low success rate: expected %f, got %f", want, low)
	}

	if high == low {
		t.Fatalf("expected the threshold to change between calls, got %f both times", high)
	}
}

func TestThreshold_InvalidateIsHarmless(t *testing.T) {
	th := New(DefaultConfig())
	th.Invalidate(model.MarketNormal)
	th.Compute(model.MarketNormal, 0.9)
}
