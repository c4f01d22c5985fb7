package model

import "testing"

func p(raw int64) Price       { return NewPrice(raw, 2) }
func q(raw int64) Quantity    { return NewQuantity(raw, 2) }
func entry(pr, qt int64) OrderBookEntry {
	return OrderBookEntry{Price: p(pr), Quantity: q(qt)}
}

// Scenario 1 from spec.md §8: basic normalization.
func TestNormalize_BasicScenario(t *testing.T) {
	bids := []OrderBookEntry{entry(10000, 100), entry(10200, 200), entry(10100, 0)}
	asks := []OrderBookEntry{entry(10300, 100), entry(10500, 200)}

	gotBids := Normalize(bids, true)
	gotAsks := Normalize(asks, false)

	if len(gotBids) != 2 || gotBids[0].Price.raw != 10200 || gotBids[1].Price.raw != 10000 {
		t.Fatalf("unexpected bids after normalize: %+v", gotBids)
	}
	if len(gotAsks) != 2 || gotAsks[0].Price.raw != 10300 || gotAsks[1].Price.raw != 10500 {
		t.Fatalf("unexpected asks after normalize: %+v", gotAsks)
	}
}

func TestNormalize_MergesDuplicatePrices(t *testing.T) {
	bids := []OrderBookEntry{entry(100, 5), entry(100, 3)}
	got := Normalize(bids, true)
	if len(got) != 1 || got[0].Quantity.raw != 8 {
		t.Fatalf("expected merged quantity 8, got %+v", got)
	}
}

func TestOrderBook_Crossed(t *testing.T) {
	b := &OrderBook{
		Bids: []OrderBookEntry{entry(50050, 1)},
		Asks: []OrderBookEntry{entry(50000, 1)},
	}
	if !b.Crossed() {
		t.Fatal("expected crossed book to be detected")
	}
}

func TestOrderBook_EmptyAndSingleSidedPass(t *testing.T) {
	empty := &OrderBook{}
	if empty.Crossed() {
		t.Fatal("empty book cannot be crossed")
	}
	if !empty.ValidateSorted() {
		t.Fatal("empty book is trivially sorted")
	}

	singleSided := &OrderBook{Bids: []OrderBookEntry{entry(100, 1)}}
	if !singleSided.ValidateSorted() {
		t.Fatal("single-sided book must validate")
	}
	if _, ok := singleSided.BestAsk(); ok {
		t.Fatal("single-sided book has no ask")
	}
}

// Scenario 3 from spec.md §8: incremental update application.
func TestApplyDelta_Scenario(t *testing.T) {
	bids := []OrderBookEntry{entry(10000, 10), entry(9900, 3)}
	delta := []OrderBookEntry{entry(10000, 0), entry(9900, 5)}

	got := ApplyDelta(bids, delta, true)
	if len(got) != 1 || got[0].Price.raw != 9900 || got[0].Quantity.raw != 5 {
		t.Fatalf("unexpected book after delta: %+v", got)
	}
}

func TestOrderBookUpdate_Contiguous(t *testing.T) {
	u := &OrderBookUpdate{FirstUpdateID: 43, FinalUpdateID: 45}
	if !u.Contiguous(42) {
		t.Fatal("expected contiguous update to apply")
	}
	u2 := &OrderBookUpdate{FirstUpdateID: 47}
	if u2.Contiguous(45) {
		t.Fatal("expected gap to be detected as non-contiguous")
	}
}

func TestCloneBook_Independent(t *testing.T) {
	orig := &OrderBook{Bids: []OrderBookEntry{entry(100, 1)}}
	clone := CloneBook(orig)
	clone.Bids[0].Quantity = q(999)
	if orig.Bids[0].Quantity.raw == 999 {
		t.Fatal("clone must not alias the original slice")
	}
}
