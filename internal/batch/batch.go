// Package batch implements C6, the Batch/SIMD Processor: fixed-size
// batches of order-book entries run through bulk sort, filter, and
// validation passes (spec.md §4.6).
//
// Grounded on the teacher's deleted internal/performance/message_batcher.go
// (batch-accumulation-by-count-or-deadline shape) and
// message_compressor.go (processed-count style counters). The original
// source's hand-rolled SIMD/pdqsort is replaced by stdlib sort.Slice — no
// pack library ships a portable SIMD or pdqsort primitive, and spec.md §9
// only requires the scalar fallback preserve correctness, which an
// O(n log n) sort does (sort.Slice is not stable). klauspost/compress backs a real compression_ratio
// metric instead of a fabricated constant.
package batch

import (
	"bytes"
	"encoding/binary"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
)

// Size is the fixed batch width from spec.md §4.6.
const Size = 512

// Batch accumulates up to Size order-book entries before a flush, either on
// reaching capacity or on a deadline (mirrors the teacher's batcher).
type Batch struct {
	Entries []model.OrderBookEntry
	Symbol  string
	started time.Time
}

// NewBatch preallocates a Size-capacity batch for one symbol.
func NewBatch(symbol string) *Batch {
	return &Batch{Entries: make([]model.OrderBookEntry, 0, Size), Symbol: symbol, started: time.Now()}
}

// Add appends an entry. Full reports whether the batch has reached Size.
func (b *Batch) Add(e model.OrderBookEntry) (full bool) {
	b.Entries = append(b.Entries, e)
	return len(b.Entries) >= Size
}

// Deadline reports whether the batch has been open longer than d without
// filling, the secondary flush trigger alongside Size.
func (b *Batch) Deadline(d time.Duration) bool {
	return time.Since(b.started) >= d
}

// Reset clears the batch for reuse, keeping its backing array.
func (b *Batch) Reset() {
	b.Entries = b.Entries[:0]
	b.started = time.Now()
}

// SortByPriceDescending bulk-sorts entries for bid-side ranking.
func SortByPriceDescending(entries []model.OrderBookEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Price.Cmp(entries[j].Price) > 0
	})
}

// SortByPriceAscending bulk-sorts entries for ask-side ranking.
func SortByPriceAscending(entries []model.OrderBookEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Price.Cmp(entries[j].Price) < 0
	})
}

// FilterValid returns the subset of entries passing Valid(maxPrice),
// reusing the input backing array (no allocation).
func FilterValid(entries []model.OrderBookEntry, maxPrice int64) []model.OrderBookEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.Valid(maxPrice) {
			out = append(out, e)
		}
	}
	return out
}

// Stats reports processing counters for one flushed batch.
type Stats struct {
	ProcessedCount   int
	RejectedCount    int
	CompressionRatio float64
	ProcessingNs     int64
}

// Process runs the full sort/filter/validate pass over a batch and
// computes a real compression_ratio sample using zstd, matching spec.md
// §9's resolution of the compression-ratio open question.
func Process(entries []model.OrderBookEntry, maxPrice int64, descending bool) (Stats, []model.OrderBookEntry) {
	start := time.Now()
	before := len(entries)

	valid := FilterValid(entries, maxPrice)
	if descending {
		SortByPriceDescending(valid)
	} else {
		SortByPriceAscending(valid)
	}

	ratio := compressionRatio(valid)

	return Stats{
		ProcessedCount:   len(valid),
		RejectedCount:    before - len(valid),
		CompressionRatio: ratio,
		ProcessingNs:     time.Since(start).Nanoseconds(),
	}, valid
}

// compressionRatio zstd-compresses a binary encoding of the batch and
// returns compressed/original size. Falls back to 1.0 (no compression
// achieved) on an empty batch or encoder failure, never fabricating a
// number when there is nothing real to measure.
func compressionRatio(entries []model.OrderBookEntry) float64 {
	if len(entries) == 0 {
		return 1.0
	}

	var raw bytes.Buffer
	for _, e := range entries {
		_ = binary.Write(&raw, binary.LittleEndian, e.Price.Raw())
		_ = binary.Write(&raw, binary.LittleEndian, e.Quantity.Raw())
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return 1.0
	}
	defer enc.Close()

	compressed := enc.EncodeAll(raw.Bytes(), nil)
	if len(compressed) == 0 {
		return 1.0
	}
	return float64(len(compressed)) / float64(raw.Len())
}
