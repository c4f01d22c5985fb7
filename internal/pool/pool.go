// Package pool implements C2, the Memory Pool: fixed-count, fixed-capacity
// buffer arrays for order-book entry slices and order-book slots, checked
// out wait-free via an atomic round-robin index (spec.md §4.2). Trades are
// not pooled.
//
// Grounded on internal/hft/memory/manager.go's HFTMemoryManager: that file's
// size-bucketed BufferPool/StringPool/MemoryProfiler shape is generalized
// here from raw []byte pooling to typed order-book-entry-slice pooling, and the fixed-count slot design replaces its open-ended
// sync.Pool-per-type map (the spec requires fixed counts, not growth).
package pool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
)

// Sizing from spec.md §4.2.
const (
	NBidVecs             = 8192
	NAskVecs              = 8192
	VecCapacity           = 1000
	NUltraFastBuffers     = 65536
)

// EntrySlot is a borrowed, reusable []model.OrderBookEntry. Callers must
// treat it as scratch: never retain it past one pipeline stage (spec.md
// §4.2 — no reference counting).
type EntrySlot struct {
	Entries []model.OrderBookEntry
	index   int
}

// UltraFastBook is a zero-allocation order-book slot for Path A of the
// cleaning pipeline (spec.md §4.7).
type UltraFastBook struct {
	Bids  []model.OrderBookEntry
	Asks  []model.OrderBookEntry
	index int
}

// Stats reports pool utilization for the health/metrics path (a
// supplemented feature per SPEC_FULL.md, grounded on MemoryProfiler).
type Stats struct {
	BidChecked       int64
	AskChecked       int64
	UltraFastChecked int64
	TransientAllocs  int64
	Timestamp        time.Time
}

// Manager owns the fixed-count buffer arrays and hands out slots
// round-robin via an atomic index — wait-free, no locking on the hot path.
type Manager struct {
	bidVecs  [NBidVecs][]model.OrderBookEntry
	askVecs  [NAskVecs][]model.OrderBookEntry
	ultraFast [NUltraFastBuffers]UltraFastBook

	bidIdx       uint64
	askIdx       uint64
	ultraFastIdx uint64

	bidChecked       int64
	askChecked       int64
	ultraFastChecked int64
	transientAllocs  int64

	mu sync.RWMutex // not locked by any method
}

// NewManager preallocates every slot up front — the only allocation burst
// this package ever does.
func NewManager() *Manager {
	m := &Manager{}
	for i := range m.bidVecs {
		m.bidVecs[i] = make([]model.OrderBookEntry, 0, VecCapacity)
	}
	for i := range m.askVecs {
		m.askVecs[i] = make([]model.OrderBookEntry, 0, VecCapacity)
	}
	for i := range m.ultraFast {
		m.ultraFast[i] = UltraFastBook{
			Bids: make([]model.OrderBookEntry, 0, VecCapacity),
			Asks: make([]model.OrderBookEntry, 0, VecCapacity),
		}
	}
	return m
}

// CheckoutBidVec returns a reset bid-side scratch slice, wait-free.
func (m *Manager) CheckoutBidVec() []model.OrderBookEntry {
	idx := atomic.AddUint64(&m.bidIdx, 1) % NBidVecs
	atomic.AddInt64(&m.bidChecked, 1)
	return m.bidVecs[idx][:0]
}

// CheckoutAskVec returns a reset ask-side scratch slice, wait-free.
func (m *Manager) CheckoutAskVec() []model.OrderBookEntry {
	idx := atomic.AddUint64(&m.askIdx, 1) % NAskVecs
	atomic.AddInt64(&m.askChecked, 1)
	return m.askVecs[idx][:0]
}

// CheckoutUltraFast returns a reset zero-allocation book slot for Path A.
func (m *Manager) CheckoutUltraFast() *UltraFastBook {
	idx := atomic.AddUint64(&m.ultraFastIdx, 1) % NUltraFastBuffers
	atomic.AddInt64(&m.ultraFastChecked, 1)
	slot := &m.ultraFast[idx]
	slot.Bids = slot.Bids[:0]
	slot.Asks = slot.Asks[:0]
	return slot
}

// TransientEntryVec allocates a one-off slice when the fixed pool is under
// pressure. The pool fails open rather than blocking (spec.md §4.2).
func (m *Manager) TransientEntryVec(capacity int) []model.OrderBookEntry {
	atomic.AddInt64(&m.transientAllocs, 1)
	return make([]model.OrderBookEntry, 0, capacity)
}

// Stats returns a point-in-time utilization snapshot.
func (m *Manager) Stats() Stats {
	return Stats{
		BidChecked:       atomic.LoadInt64(&m.bidChecked),
		AskChecked:       atomic.LoadInt64(&m.askChecked),
		UltraFastChecked: atomic.LoadInt64(&m.ultraFastChecked),
		TransientAllocs:  atomic.LoadInt64(&m.transientAllocs),
		Timestamp:        time.Now(),
	}
}
