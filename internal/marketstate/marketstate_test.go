package marketstate

import (
	"context"
	"testing"
	"time"
)

func calmThresholds() Thresholds {
	return Thresholds{
		VolatilityNormal: 0.01, VolatilityExtreme: 0.05,
		LiquidityNormal: 0.3, LiquidityExtreme: 0.8,
		VolumeSpike: 2.0, VolumeExtreme: 5.0,
		PriceChangeNormal: 0.01, PriceChangeExtreme: 0.05,
		APILatencyNormal: 200, APILatencyExtreme: 1000,
		StateChangePersistence: 5 * time.Minute,
		IndicatorConsensus:     3,
	}
}

func calmInputs() Inputs {
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 100
	}
	return Inputs{
		RecentPrices1h:     prices,
		LiquidityIndex:     0.1,
		VolumeRatio:        0.5,
		MaxPriceChange1m5m: 0.001,
		APILatencyMs:       50,
		APIErrorRate:       0,
		ExternalRisk:       0,
	}
}

func TestJudge_StaysNormalUnderCalmInputs(t *testing.T) {
	j := New(DefaultWeights(), calmThresholds())
	d := j.Evaluate(context.Background(), calmInputs(), time.Now())
	if d.Target != Normal {
		t.Fatalf("expected Normal, got %v (score=%f)", d.Target, d.Score)
	}
}

func TestJudge_ConsensusTriggersImmediateTransition(t *testing.T) {
	j := New(DefaultWeights(), calmThresholds())
	extreme := Inputs{
		RecentPrices1h:     []float64{100, 80, 120, 70, 130, 60},
		LiquidityIndex:     0.9,
		VolumeRatio:        6.0,
		MaxPriceChange1m5m: 0.08,
		APILatencyMs:       50,
		ExternalRisk:       0,
	}
	d := j.Evaluate(context.Background(), extreme, time.Now())
	if !d.TriggeredTransition {
		t.Fatalf("expected consensus to trigger an immediate transition, got score=%f abnormal=%d", d.Score, d.AbnormalIndicators)
	}
	if j.Current() != d.Target {
		t.Fatalf("expected current state to match decision target")
	}
}

func TestJudge_PersistenceGatesASingleAbnormalIndicator(t *testing.T) {
	th := calmThresholds()
	th.StateChangePersistence = 20 * time.Millisecond
	th.IndicatorConsensus = 10 // unreachable, forces the persistence path
	j := New(DefaultWeights(), th)

	borderline := calmInputs()
	borderline.LiquidityIndex = 0.9
	borderline.VolumeRatio = 3.5
	borderline.MaxPriceChange1m5m = 0.03
	borderline.APILatencyMs = 600

	start := time.Now()
	d1 := j.Evaluate(context.Background(), borderline, start)
	if d1.TriggeredTransition {
		t.Fatal("expected no immediate transition before the persistence window elapses")
	}

	d2 := j.Evaluate(context.Background(), borderline, start.Add(30*time.Millisecond))
	if !d2.TriggeredTransition {
		t.Fatal("expected the transition to commit once persistence is satisfied")
	}
}

func TestJudge_OverrideRecordsManualEntry(t *testing.T) {
	j := New(DefaultWeights(), calmThresholds())
	j.Override(Extreme, time.Now())
	if j.Current() != Extreme {
		t.Fatal("expected override to force Extreme")
	}
	journal := j.Journal()
	if len(journal) != 1 || !journal[0].Manual {
		t.Fatalf("expected exactly one manual journal entry, got %+v", journal)
	}
}
