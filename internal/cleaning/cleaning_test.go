package cleaning

import (
	"testing"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/arb-pipeline/internal/architecture/fx/workerpool"
	"github.com/abdoElHodaky/arb-pipeline/internal/pool"
	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
)

func entry(raw int64, qty int64) model.OrderBookEntry {
	return model.OrderBookEntry{Price: model.NewPrice(raw, 2), Quantity: model.NewQuantity(qty, 2)}
}

func TestCleanFast_ProducesSortedNormalizedBook(t *testing.T) {
	p := New(pool.NewManager(), nil, model.MaxPrice)
	bids := []model.OrderBookEntry{entry(100, 100), entry(300, 50), entry(300, 25)}
	asks := []model.OrderBookEntry{entry(400, 10), entry(350, 20)}

	res, err := p.CleanFast("binance", "BTC-USD", bids, asks, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Book.Bids[0].Price.Raw() != 300 {
		t.Fatalf("expected highest bid first, got %+v", res.Book.Bids)
	}
	if res.Book.Bids[0].Quantity.Raw() != 75 {
		t.Fatalf("expected duplicate bid prices merged to 75, got %d", res.Book.Bids[0].Quantity.Raw())
	}
	if res.Book.Asks[0].Price.Raw() != 350 {
		t.Fatalf("expected lowest ask first, got %+v", res.Book.Asks)
	}
	if res.PathUsed != "A" {
		t.Fatalf("expected path A, got %s", res.PathUsed)
	}
}

func TestCleanSafe_MatchesCleanFastOutput(t *testing.T) {
	p := New(pool.NewManager(), nil, model.MaxPrice)
	bids := []model.OrderBookEntry{entry(100, 100), entry(300, 50)}
	asks := []model.OrderBookEntry{entry(400, 10)}

	fast, _ := p.CleanFast("binance", "BTC-USD", bids, asks, 1)
	safe, _ := p.CleanSafe("binance", "BTC-USD", bids, asks, 1)

	if len(fast.Book.Bids) != len(safe.Book.Bids) || fast.Book.Bids[0].Price.Raw() != safe.Book.Bids[0].Price.Raw() {
		t.Fatalf("expected identical canonical output across paths A and C, got %+v vs %+v", fast.Book.Bids, safe.Book.Bids)
	}
}

func TestCleanParallel_MatchesSafeOutput(t *testing.T) {
	factory := workerpool.NewWorkerPoolFactory(workerpool.WorkerPoolParams{Logger: zap.NewNop()})
	p := New(pool.NewManager(), factory, model.MaxPrice)
	bids := []model.OrderBookEntry{entry(100, 100), entry(300, 50), entry(200, 10)}
	asks := []model.OrderBookEntry{entry(400, 10), entry(350, 20)}

	parallel, err := p.CleanParallel("binance", "BTC-USD", bids, asks, 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	safe, _ := p.CleanSafe("binance", "BTC-USD", bids, asks, 1)

	if len(parallel.Book.Bids) != len(safe.Book.Bids) {
		t.Fatalf("expected matching bid count, got %d vs %d", len(parallel.Book.Bids), len(safe.Book.Bids))
	}
	for i := range parallel.Book.Bids {
		if parallel.Book.Bids[i].Price.Raw() != safe.Book.Bids[i].Price.Raw() {
			t.Fatalf("expected identical canonical output across paths B and C at index %d", i)
		}
	}
}

func TestCleanFast_AcceptsEmptyBook(t *testing.T) {
	p := New(pool.NewManager(), nil, model.MaxPrice)
	// No bids and no asks: an empty book is legal and passes cleaning.
	_, err := p.CleanFast("binance", "BTC-USD", nil, nil, 1)
	if err != nil {
		t.Fatalf("an empty book is valid and should not error: %v", err)
	}
}
