package batch

import (
	"testing"
	"time"

	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
)

func entry(raw int64) model.OrderBookEntry {
	return model.OrderBookEntry{
		Price:    model.NewPrice(raw, 2),
		Quantity: model.NewQuantity(100, 2),
	}
}

func TestBatch_AddReportsFullAtSize(t *testing.T) {
	b := NewBatch("BTC-USD")
	for i := 0; i < Size-1; i++ {
		if full := b.Add(entry(int64(i + 1))); full {
			t.Fatalf("batch reported full early at index %d", i)
		}
	}
	if full := b.Add(entry(Size)); !full {
		t.Fatal("expected batch to report full at Size entries")
	}
}

func TestBatch_DeadlineTriggersAfterDuration(t *testing.T) {
	b := NewBatch("BTC-USD")
	if b.Deadline(time.Hour) {
		t.Fatal("fresh batch should not be past a 1-hour deadline")
	}
	time.Sleep(2 * time.Millisecond)
	if !b.Deadline(time.Millisecond) {
		t.Fatal("expected deadline to trip after the configured duration elapsed")
	}
}

func TestSortByPriceDescending_OrdersHighToLow(t *testing.T) {
	entries := []model.OrderBookEntry{entry(100), entry(300), entry(200)}
	SortByPriceDescending(entries)
	if entries[0].Price.Raw() != 300 || entries[2].Price.Raw() != 100 {
		t.Fatalf("unexpected order: %+v", entries)
	}
}

func TestFilterValid_DropsOutOfRangePrices(t *testing.T) {
	entries := []model.OrderBookEntry{entry(-1), entry(100), entry(100000000)}
	filtered := FilterValid(entries, model.MaxPrice)
	if len(filtered) != 1 || filtered[0].Price.Raw() != 100 {
		t.Fatalf("expected only the single valid entry, got %+v", filtered)
	}
}

func TestProcess_ComputesCompressionRatioOnNonemptyBatch(t *testing.T) {
	entries := []model.OrderBookEntry{entry(100), entry(200), entry(300)}
	stats, out := Process(entries, model.MaxPrice, true)
	if stats.ProcessedCount != 3 {
		t.Fatalf("expected 3 processed, got %d", stats.ProcessedCount)
	}
	if stats.CompressionRatio <= 0 {
		t.Fatalf("expected a positive compression ratio, got %f", stats.CompressionRatio)
	}
	if out[0].Price.Raw() != 300 {
		t.Fatalf("expected descending sort in output, got %+v", out)
	}
}
