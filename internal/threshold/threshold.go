// Package threshold implements C11, the Adaptive Profit Threshold: a base
// threshold per market state, adjusted by the recent success rate the
// orchestrator tracks as an EWMA (alpha 0.1, one update per dispatched
// opportunity, no time window) (spec.md §4.11). The
// adjustment itself is recomputed on every call: the success rate it reacts
// to changes every cycle, so nothing here may be cached longer than that.
package threshold

import (
	"math"

	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
)

// Config holds the per-state base thresholds and the adjustment knobs.
type Config struct {
	BaseByState      map[model.MarketStateKind]float64
	TargetSuccessRate float64
	AdjustmentFactor  float64
}

// DefaultConfig provides sane per-state bases; Closed/Maintenance are
// handled specially by Threshold (always +Inf) rather than listed here.
func DefaultConfig() Config {
	return Config{
		BaseByState: map[model.MarketStateKind]float64{
			model.MarketNormal:   0.001,
			model.MarketCautious: 0.003,
			model.MarketExtreme:  0.01,
		},
		TargetSuccessRate: 0.6,
		AdjustmentFactor:  0.1,
	}
}

// Threshold computes the adaptive minimum profit threshold.
type Threshold struct {
	cfg Config
}

// New constructs a Threshold from cfg.
func New(cfg Config) *Threshold {
	return &Threshold{cfg: cfg}
}

// Compute returns the minimum profit threshold for state given the recent
// success rate (spec.md §4.11). This is plain arithmetic over cfg and the
// two arguments, so there is nothing worth caching: the orchestrator calls
// this every 10ms with a successRate that moves every cycle, and a cache
// keyed on state alone would freeze the adjustment against exactly the
// input it is supposed to react to.
func (t *Threshold) Compute(state model.MarketStateKind, successRate float64) float64 {
	if state == model.MarketClosed || state == model.MarketMaintenance {
		return math.Inf(1)
	}

	base, ok := t.cfg.BaseByState[state]
	if !ok {
		base = t.cfg.BaseByState[model.MarketNormal]
	}

	switch {
	case successRate > t.cfg.TargetSuccessRate:
		return base * (1 - t.cfg.AdjustmentFactor)
	case successRate < 0.7*t.cfg.TargetSuccessRate:
		return base * (1 + t.cfg.AdjustmentFactor)
	default:
		return base
	}
}

// Invalidate is a no-op: Compute no longer caches anything, so there is
// nothing to invalidate after a config reload (spec.md §6). Kept so
// internal/manager's reload path doesn't need a special case.
func (t *Threshold) Invalidate(state model.MarketStateKind) {}
