package model

import "sort"

// OrderBookEntry is a single resting price level: (price, quantity).
// Valid iff Quantity > 0 and Price is within the configured bound (I2, §3).
type OrderBookEntry struct {
	Price    Price
	Quantity Quantity
}

// Valid checks the per-entry invariant (I2): positive quantity, bounded price.
func (e OrderBookEntry) Valid(maxPrice int64) bool {
	return e.Quantity.IsPositive() && e.Price.IsValid(maxPrice)
}

// OrderBook is the canonical per-(exchange,symbol) book: bids sorted
// strictly descending, asks strictly ascending, no duplicate prices per
// side (I1, hard). Timestamp is monotonic per (exchange,symbol) when a
// sequence is present and contiguous (I4).
type OrderBook struct {
	ExchangeID string
	Symbol     string
	Bids       []OrderBookEntry
	Asks       []OrderBookEntry
	TimestampNs int64
	Sequence    uint64
	HasSequence bool

	// Consistent is false after a non-contiguous update until a resync
	// lands; such books are excluded from detection (§4.7, §4.3 scenario 3).
	Consistent bool
}

// Key identifies the book in the order-book store.
type BookKey struct {
	ExchangeID string
	Symbol     string
}

// Key returns the store key for this book.
func (b *OrderBook) Key() BookKey {
	return BookKey{ExchangeID: b.ExchangeID, Symbol: b.Symbol}
}

// BestBid returns the highest bid, or false if the book has no bids
// (empty/single-sided books are legal, §4.7).
func (b *OrderBook) BestBid() (OrderBookEntry, bool) {
	if len(b.Bids) == 0 {
		return OrderBookEntry{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the lowest ask, or false if the book has no asks.
func (b *OrderBook) BestAsk() (OrderBookEntry, bool) {
	if len(b.Asks) == 0 {
		return OrderBookEntry{}, false
	}
	return b.Asks[0], true
}

// Crossed reports whether best_bid >= best_ask on a two-sided book (I3).
// A crossed book is still emitted (soft invariant); this only detects it.
func (b *OrderBook) Crossed() bool {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return false
	}
	return bid.Price.Cmp(ask.Price) >= 0
}

// ValidateSorted checks I1: strict ordering, no duplicate prices per side.
// This is the hard invariant — a violation means the book must be rejected.
func (b *OrderBook) ValidateSorted() bool {
	return isStrictlyOrdered(b.Bids, true) && isStrictlyOrdered(b.Asks, false)
}

func isStrictlyOrdered(entries []OrderBookEntry, descending bool) bool {
	for i := 1; i < len(entries); i++ {
		cmp := entries[i-1].Price.Cmp(entries[i].Price)
		if descending && cmp <= 0 {
			return false
		}
		if !descending && cmp >= 0 {
			return false
		}
	}
	return true
}

// Normalize sorts a side (bids desc / asks asc), drops zero-quantity
// entries, and merges duplicate prices by summing quantity — the
// normalization rule every cleaning path applies regardless of which path
// ran (§4.7 "Normalization").
func Normalize(entries []OrderBookEntry, descending bool) []OrderBookEntry {
	byPrice := make(map[int64]OrderBookEntry, len(entries))
	order := make([]int64, 0, len(entries))
	for _, e := range entries {
		if e.Quantity.IsZero() || !e.Quantity.IsPositive() {
			continue
		}
		key := e.Price.raw
		if existing, ok := byPrice[key]; ok {
			existing.Quantity = existing.Quantity.Add(e.Quantity)
			byPrice[key] = existing
		} else {
			byPrice[key] = e
			order = append(order, key)
		}
	}
	out := make([]OrderBookEntry, 0, len(order))
	for _, k := range order {
		out = append(out, byPrice[k])
	}
	sort.Slice(out, func(i, j int) bool {
		cmp := out[i].Price.Cmp(out[j].Price)
		if descending {
			return cmp > 0
		}
		return cmp < 0
	})
	return out
}

// OrderBookUpdate is an incremental delta. Applied only if
// FirstUpdateID == lastApplied+1; otherwise it triggers a resync (§3, §4.7).
type OrderBookUpdate struct {
	ExchangeID    string
	Symbol        string
	BidsDelta     []OrderBookEntry
	AsksDelta     []OrderBookEntry
	FirstUpdateID uint64
	FinalUpdateID uint64
}

// Contiguous reports whether this update directly follows lastApplied.
func (u *OrderBookUpdate) Contiguous(lastApplied uint64) bool {
	return u.FirstUpdateID == lastApplied+1
}

// ApplyDelta upserts a delta side into a sorted, normalized side. A
// quantity of zero removes the level; any other quantity upserts it.
func ApplyDelta(side []OrderBookEntry, delta []OrderBookEntry, descending bool) []OrderBookEntry {
	byPrice := make(map[int64]OrderBookEntry, len(side)+len(delta))
	order := make([]int64, 0, len(side)+len(delta))
	for _, e := range side {
		byPrice[e.Price.raw] = e
		order = append(order, e.Price.raw)
	}
	for _, d := range delta {
		key := d.Price.raw
		if d.Quantity.IsZero() {
			if _, ok := byPrice[key]; ok {
				delete(byPrice, key)
			}
			continue
		}
		if _, ok := byPrice[key]; !ok {
			order = append(order, key)
		}
		byPrice[key] = d
	}
	out := make([]OrderBookEntry, 0, len(byPrice))
	for _, k := range order {
		if e, ok := byPrice[k]; ok {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		cmp := out[i].Price.Cmp(out[j].Price)
		if descending {
			return cmp > 0
		}
		return cmp < 0
	})
	return out
}

// CloneBook returns a deep, independent copy suitable for a consistent
// point-in-time read (C8's lock-free snapshot contract).
func CloneBook(b *OrderBook) *OrderBook {
	if b == nil {
		return nil
	}
	cp := *b
	cp.Bids = append([]OrderBookEntry(nil), b.Bids...)
	cp.Asks = append([]OrderBookEntry(nil), b.Asks...)
	return &cp
}
