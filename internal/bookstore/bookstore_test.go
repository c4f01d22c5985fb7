package bookstore

import (
	"testing"

	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
)

func newBook(exchange, symbol string, consistent bool) *model.OrderBook {
	return &model.OrderBook{ExchangeID: exchange, Symbol: symbol, Consistent: consistent}
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := New()
	book := newBook("binance", "BTC-USD", true)
	s.Put(book)

	got := s.Get(book.Key())
	if got == nil || got.ExchangeID != "binance" {
		t.Fatalf("expected to read back the published book, got %+v", got)
	}
}

func TestStore_GetMissingKeyReturnsNil(t *testing.T) {
	s := New()
	if s.Get(model.BookKey{ExchangeID: "x", Symbol: "y"}) != nil {
		t.Fatal("expected nil for an unpublished key")
	}
}

func TestStore_MarkInconsistentExcludesFromSnapshot(t *testing.T) {
	s := New()
	book := newBook("binance", "BTC-USD", true)
	s.Put(book)
	s.MarkInconsistent(book.Key())

	if len(s.Snapshot()) != 0 {
		t.Fatal("expected an inconsistent book to be excluded from the snapshot")
	}
	got := s.Get(book.Key())
	if got == nil || got.Consistent {
		t.Fatal("expected the stored book to now report Consistent=false")
	}
}

func TestStore_SnapshotIncludesOnlyConsistentBooks(t *testing.T) {
	s := New()
	s.Put(newBook("binance", "BTC-USD", true))
	s.Put(newBook("kraken", "BTC-USD", false))

	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].ExchangeID != "binance" {
		t.Fatalf("expected exactly the consistent book in the snapshot, got %+v", snap)
	}
}
