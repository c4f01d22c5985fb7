// Package marketstate implements C10, the Market-State Judge: a weighted
// multi-indicator risk score mapped to {Normal, Cautious, Extreme}, gated by
// either persistence or indicator consensus before a transition commits
// (spec.md §4.10).
//
// The transition machinery reuses pkg/interfaces/state_machine.go, the same
// interface internal/health builds on, generalized here from health states
// to market-risk states. Indicator math uses gonum.org/v1/gonum/stat for
// rolling mean/stddev over volatility samples and
// github.com/markcheno/go-talib for an ATR-style volatility read off recent
// trade prices — both present in the teacher's go.mod but previously
// reachable only from the deleted strategy subsystem.
package marketstate

import (
	"context"
	"sync"
	"time"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/abdoElHodaky/arb-pipeline/pkg/interfaces"
	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
)

// Weights configures the linear combination of indicator scores, each
// itself a normalized [0,1] value (spec.md §4.10, `weights.*`).
type Weights struct {
	Volatility  float64
	Liquidity   float64
	Volume      float64
	PriceChange float64
	APIHealth   float64
	ExternalRisk float64
}

// DefaultWeights distributes weight evenly across the six indicators.
func DefaultWeights() Weights {
	return Weights{
		Volatility:   1.0 / 6,
		Liquidity:    1.0 / 6,
		Volume:       1.0 / 6,
		PriceChange:  1.0 / 6,
		APIHealth:    1.0 / 6,
		ExternalRisk: 1.0 / 6,
	}
}

// Thresholds configures the normal/extreme boundary per indicator plus the
// persistence/consensus gates (spec.md §4.10, §6 market_state.* config).
type Thresholds struct {
	VolatilityNormal, VolatilityExtreme float64
	LiquidityNormal, LiquidityExtreme   float64
	VolumeSpike, VolumeExtreme         float64
	PriceChangeNormal, PriceChangeExtreme float64
	APILatencyNormal, APILatencyExtreme float64

	StateChangePersistence time.Duration
	IndicatorConsensus     int
}

// Inputs is one judging pass's raw indicator readings.
type Inputs struct {
	RecentPrices1h []float64 // for gonum/talib volatility estimation
	LiquidityIndex float64
	VolumeRatio    float64
	MaxPriceChange1m5m float64
	APILatencyMs   float64
	APIErrorRate   float64
	ExternalRisk   float64 // optional input, 0 if unavailable
}

// Decision is one judging pass's outcome. Only passes that commit a
// transition are journaled.
type Decision struct {
	Score              float64
	Target             State
	AbnormalIndicators int
	Timestamp          time.Time
	TriggeredTransition bool
}

// State is one of the three market regimes.
type State int

const (
	Normal State = iota
	Cautious
	Extreme
)

func (s State) Name() string { return s.String() }

func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case Cautious:
		return "cautious"
	case Extreme:
		return "extreme"
	default:
		return "unknown"
	}
}

// JournalEntry records one committed transition (spec.md §4.10 "all
// transitions are journaled with triggering indicators, score, timestamps").
type JournalEntry struct {
	From, To   State
	Score      float64
	Indicators int
	Manual     bool
	Timestamp  time.Time
}

// Judge tracks the current market state and the pending-transition timer.
type Judge struct {
	mu         sync.Mutex
	current    State
	weights    Weights
	thresholds Thresholds

	pendingTarget State
	pendingSince  time.Time
	hasPending    bool

	journal  []JournalEntry
	handlers []interfaces.StateTransitionHandler
}

// New constructs a Judge starting in Normal.
func New(weights Weights, thresholds Thresholds) *Judge {
	return &Judge{current: Normal, weights: weights, thresholds: thresholds}
}

// Score computes the weighted risk score in [0,1] from raw inputs.
func (j *Judge) Score(in Inputs) (float64, int) {
	volScore, volAbnormal := j.volatilityScore(in.RecentPrices1h)
	liqScore, liqAbnormal := normalizedAbove(in.LiquidityIndex, j.thresholds.LiquidityNormal, j.thresholds.LiquidityExtreme)
	volumeScore, volumeAbnormal := normalizedAbove(in.VolumeRatio, j.thresholds.VolumeSpike, j.thresholds.VolumeExtreme)
	priceScore, priceAbnormal := normalizedAbove(in.MaxPriceChange1m5m, j.thresholds.PriceChangeNormal, j.thresholds.PriceChangeExtreme)
	apiScore, apiAbnormal := normalizedAbove(in.APILatencyMs, j.thresholds.APILatencyNormal, j.thresholds.APILatencyExtreme)

	abnormalCount := 0
	for _, abnormal := range []bool{volAbnormal, liqAbnormal, volumeAbnormal, priceAbnormal, apiAbnormal} {
		if abnormal {
			abnormalCount++
		}
	}
	if in.ExternalRisk >= 0.7 {
		abnormalCount++
	}

	score := j.weights.Volatility*volScore +
		j.weights.Liquidity*liqScore +
		j.weights.Volume*volumeScore +
		j.weights.PriceChange*priceScore +
		j.weights.APIHealth*apiScore +
		j.weights.ExternalRisk*clamp01(in.ExternalRisk)

	return clamp01(score), abnormalCount
}

// volatilityScore blends a gonum stddev-of-returns estimate with a
// talib-style ATR read, normalizing both against the configured thresholds.
func (j *Judge) volatilityScore(prices []float64) (float64, bool) {
	if len(prices) < 2 {
		return 0, false
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	if len(returns) == 0 {
		return 0, false
	}
	mean := stat.Mean(returns, nil)
	vol := stat.StdDev(returns, nil)
	_ = mean

	atr := talib.Atr(prices, prices, prices, min(14, len(prices)-1))
	atrLast := 0.0
	if len(atr) > 0 {
		atrLast = atr[len(atr)-1]
	}

	combined := vol + atrLast/averageOf(prices)
	return normalizedAbove(combined, j.thresholds.VolatilityNormal, j.thresholds.VolatilityExtreme)
}

// Evaluate runs one judging pass, recording the pending-transition timer
// and committing a transition only once persistence or consensus is met
// (spec.md §4.10).
func (j *Judge) Evaluate(ctx context.Context, in Inputs, nowTime time.Time) Decision {
	score, abnormalCount := j.Score(in)
	target := mapScoreToState(score)

	j.mu.Lock()
	defer j.mu.Unlock()

	decision := Decision{Score: score, Target: target, AbnormalIndicators: abnormalCount, Timestamp: nowTime}

	if target == j.current {
		j.hasPending = false
		return decision
	}

	consensusMet := abnormalCount >= j.thresholds.IndicatorConsensus

	if !j.hasPending || j.pendingTarget != target {
		j.pendingTarget = target
		j.pendingSince = nowTime
		j.hasPending = true
	}
	persistenceMet := nowTime.Sub(j.pendingSince) >= j.thresholds.StateChangePersistence

	if consensusMet || persistenceMet {
		j.commitLocked(target, score, abnormalCount, false, nowTime)
		decision.TriggeredTransition = true
	}
	return decision
}

// Override forces a transition regardless of persistence/consensus,
// recorded as a manual entry (spec.md §4.10 "manual override is accepted
// and recorded").
func (j *Judge) Override(target State, nowTime time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.commitLocked(target, -1, 0, true, nowTime)
}

func (j *Judge) commitLocked(target State, score float64, abnormalCount int, manual bool, nowTime time.Time) {
	from := j.current
	j.current = target
	j.hasPending = false
	j.journal = append(j.journal, JournalEntry{
		From: from, To: target, Score: score, Indicators: abnormalCount, Manual: manual, Timestamp: nowTime,
	})
	handlers := append([]interfaces.StateTransitionHandler(nil), j.handlers...)
	for _, h := range handlers {
		_ = h(interfaces.Transition{From: from, To: target, Event: "market_state_transition", Context: context.Background()})
	}
}

// Current returns the market state currently in effect.
func (j *Judge) Current() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.current
}

// Journal returns every committed transition, oldest first.
func (j *Judge) Journal() []JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]JournalEntry(nil), j.journal...)
}

// AddTransitionHandler registers a callback invoked after each committed
// transition.
func (j *Judge) AddTransitionHandler(h interfaces.StateTransitionHandler) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.handlers = append(j.handlers, h)
}

func mapScoreToState(score float64) State {
	switch {
	case score < 0.3:
		return Normal
	case score < 0.7:
		return Cautious
	default:
		return Extreme
	}
}

// normalizedAbove maps a raw reading to [0,1] using normal/extreme
// thresholds as the 0/1 anchor points, reporting abnormal once it crosses
// the normal threshold.
func normalizedAbove(value, normalThreshold, extremeThreshold float64) (float64, bool) {
	if extremeThreshold <= normalThreshold {
		return 0, false
	}
	score := (value - normalThreshold) / (extremeThreshold - normalThreshold)
	return clamp01(score), value >= normalThreshold
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func averageOf(vs []float64) float64 {
	if len(vs) == 0 {
		return 1
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	avg := sum / float64(len(vs))
	if avg == 0 {
		return 1
	}
	return avg
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// map model.MarketStateKind <-> State for components built against the
// shared model package (C11, C12).
func (s State) ToModelKind() model.MarketStateKind {
	switch s {
	case Normal:
		return model.MarketNormal
	case Cautious:
		return model.MarketCautious
	case Extreme:
		return model.MarketExtreme
	default:
		return model.MarketNormal
	}
}
