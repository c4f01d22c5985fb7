package orchestrator

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/arb-pipeline/internal/bookstore"
	"github.com/abdoElHodaky/arb-pipeline/internal/health"
	"github.com/abdoElHodaky/arb-pipeline/internal/marketstate"
	"github.com/abdoElHodaky/arb-pipeline/internal/opportunity"
	"github.com/abdoElHodaky/arb-pipeline/internal/threshold"
	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
)

type fakeStrategy struct {
	opps []*model.ArbitrageOpportunity
	err  error
}

func (f *fakeStrategy) DetectOpportunities(ctx context.Context, books []*model.OrderBook, minProfit float64) ([]*model.ArbitrageOpportunity, error) {
	return f.opps, f.err
}

type fakeRisk struct{ approve bool }

func (f *fakeRisk) Approve(ctx context.Context, opp *model.ArbitrageOpportunity) (bool, error) {
	return f.approve, nil
}

type fakeAllocator struct{ sufficient bool }

func (f *fakeAllocator) Allocate(ctx context.Context, opp *model.ArbitrageOpportunity) (bool, error) {
	return f.sufficient, nil
}

type fakeExecution struct{ succeeded bool }

func (f *fakeExecution) Execute(ctx context.Context, opp *model.ArbitrageOpportunity) (bool, error) {
	return f.succeeded, nil
}

func newTestOrchestrator(strategy StrategyEngine, risk RiskEngine, allocator CapitalAllocator, execution ExecutionEngine) *Orchestrator {
	return New(
		zap.NewNop(),
		bookstore.New(),
		marketstate.New(marketstate.DefaultWeights(), marketstate.Thresholds{IndicatorConsensus: 3}),
		threshold.New(threshold.DefaultConfig()),
		opportunity.New(),
		health.NewMonitor(health.DefaultThresholds()),
		strategy,
		risk,
		allocator,
		execution,
	)
}

func TestRunCycle_NoStrategyStillComputesStateAndThreshold(t *testing.T) {
	o := newTestOrchestrator(nil, nil, nil, nil)
	outcome := o.RunCycle(context.Background(), time.Now())
	if outcome.MarketState != marketstate.Normal {
		t.Fatalf("expected Normal market state with no abnormal inputs, got %v", outcome.MarketState)
	}
	if outcome.MinProfit <= 0 {
		t.Fatalf("expected a positive minimum profit threshold, got %v", outcome.MinProfit)
	}
}

func TestRunCycle_DetectedOpportunityIsPooledAndSelected(t *testing.T) {
	opp := &model.ArbitrageOpportunity{
		Symbol: "BTC-USD", BuyExchange: "a", SellExchange: "b",
		NetProfit: 5, LiquidityScore: 0.8, EstimatedLatencyMs: 10,
		HistoricalSuccess: 0.5, RiskScore: 0.1, CreatedNs: time.Now().UnixNano(), TTLNs: int64(time.Minute),
	}
	o := newTestOrchestrator(&fakeStrategy{opps: []*model.ArbitrageOpportunity{opp}}, nil, nil, nil)
	outcome := o.RunCycle(context.Background(), time.Now())
	if outcome.Detected != 1 {
		t.Fatalf("expected 1 detected opportunity, got %d", outcome.Detected)
	}
	if outcome.Selected == nil {
		t.Fatal("expected a selected opportunity")
	}
}

func TestRunCycle_FullDispatchChainExecutes(t *testing.T) {
	opp := &model.ArbitrageOpportunity{
		Symbol: "BTC-USD", BuyExchange: "a", SellExchange: "b",
		NetProfit: 5, LiquidityScore: 0.8, EstimatedLatencyMs: 10,
		HistoricalSuccess: 0.5, RiskScore: 0.1, CreatedNs: time.Now().UnixNano(), TTLNs: int64(time.Minute),
	}
	o := newTestOrchestrator(
		&fakeStrategy{opps: []*model.ArbitrageOpportunity{opp}},
		&fakeRisk{approve: true},
		&fakeAllocator{sufficient: true},
		&fakeExecution{succeeded: true},
	)
	outcome := o.RunCycle(context.Background(), time.Now())
	if !outcome.Dispatched {
		t.Fatal("expected dispatch to risk to have happened")
	}
	if !outcome.Executed {
		t.Fatal("expected execution to have succeeded")
	}
}

func TestRunCycle_RiskRejectionStopsDispatchChain(t *testing.T) {
	opp := &model.ArbitrageOpportunity{
		Symbol: "BTC-USD", BuyExchange: "a", SellExchange: "b",
		NetProfit: 5, LiquidityScore: 0.8, EstimatedLatencyMs: 10,
		HistoricalSuccess: 0.5, RiskScore: 0.1, CreatedNs: time.Now().UnixNano(), TTLNs: int64(time.Minute),
	}
	o := newTestOrchestrator(
		&fakeStrategy{opps: []*model.ArbitrageOpportunity{opp}},
		&fakeRisk{approve: false},
		&fakeAllocator{sufficient: true},
		&fakeExecution{succeeded: true},
	)
	outcome := o.RunCycle(context.Background(), time.Now())
	if outcome.Dispatched {
		t.Fatal("expected dispatch to stop at risk rejection")
	}
	if outcome.Executed {
		t.Fatal("expected no execution after risk rejection")
	}
}

func TestStats_ReflectsCyclesRun(t *testing.T) {
	o := newTestOrchestrator(nil, nil, nil, nil)
	o.RunCycle(context.Background(), time.Now())
	o.RunCycle(context.Background(), time.Now())
	stats := o.Stats()
	if stats.CyclesRun != 2 {
		t.Fatalf("expected 2 cycles run, got %d", stats.CyclesRun)
	}
}
