package opportunity

import (
	"testing"

	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
)

func newOpp(netProfit float64, createdNs int64) *model.ArbitrageOpportunity {
	return &model.ArbitrageOpportunity{
		Symbol:             "BTC-USD",
		BuyExchange:        "binance",
		SellExchange:       "kraken",
		NetProfit:          netProfit,
		LiquidityScore:     0.5,
		EstimatedLatencyMs: 10,
		RiskScore:          0.2,
		CreatedNs:          createdNs,
		TTLNs:              int64(5 * 1e9),
		HistoricalSuccess:  0.5,
	}
}

func TestPool_AddAssignsIDAndStores(t *testing.T) {
	p := New()
	opp := newOpp(10, 0)
	if !p.Add(opp, 0) {
		t.Fatal("expected Add to succeed below capacity")
	}
	if opp.ID == "" {
		t.Fatal("expected an ID to be assigned")
	}
	if p.Len() != 1 {
		t.Fatalf("expected 1 item, got %d", p.Len())
	}
}

func TestPool_EvictsLowestScoreWhenFull(t *testing.T) {
	p := New()
	for i := 0; i < Capacity; i++ {
		p.Add(newOpp(1, 0), 0)
	}
	high := newOpp(1000, 0)
	if !p.Add(high, 0) {
		t.Fatal("expected a high-scoring newcomer to evict the lowest scorer")
	}
	if p.Len() != Capacity {
		t.Fatalf("expected pool to stay at capacity, got %d", p.Len())
	}
}

func TestPool_RejectsLowScoreWhenFull(t *testing.T) {
	p := New()
	for i := 0; i < Capacity; i++ {
		p.Add(newOpp(1000, 0), 0)
	}
	low := newOpp(0.001, 0)
	if p.Add(low, 0) {
		t.Fatal("expected a low-scoring newcomer to be rejected when the pool is full of better entries")
	}
}

func TestPool_SweepRemovesExpired(t *testing.T) {
	p := New()
	opp := newOpp(10, 0)
	p.Add(opp, 0)
	removed := p.Sweep(int64(10 * 1e9))
	if removed != 1 {
		t.Fatalf("expected 1 expired entry swept, got %d", removed)
	}
	if p.Len() != 0 {
		t.Fatal("expected the pool to be empty after sweep")
	}
}

func TestPool_BestReturnsErrorWhenEmpty(t *testing.T) {
	p := New()
	if _, err := p.Best(0); err == nil {
		t.Fatal("expected an error from an empty pool")
	}
}

func TestPool_RankedBreaksTiesByOlderCreatedFirst(t *testing.T) {
	p := New()
	a := newOpp(10, 100)
	b := newOpp(10, 50)
	p.Add(a, 0)
	p.Add(b, 0)
	ranked := p.Ranked(0)
	if ranked[0].CreatedNs != 50 {
		t.Fatalf("expected the older opportunity to rank first on a tie, got CreatedNs=%d", ranked[0].CreatedNs)
	}
}
