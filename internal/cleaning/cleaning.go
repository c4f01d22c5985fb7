// Package cleaning implements C7, the Cleaning Pipeline: three paths that
// take a raw snapshot or delta from an adapter and produce a normalized,
// invariant-checked OrderBook (spec.md §4.7).
//
// Path A (zero-alloc) and Path C (safe fallback) share the atomic-pointer
// commit idiom learned from the teacher's pkg/matching/hft_engine.go (read
// for grounding, not retained — it is an execution/matching file outside
// this repo's scope, but its snapshot-swap-then-publish style is the model
// for Commit below). Path B's worker pool is
// internal/architecture/fx/workerpool, itself grounded on
// github.com/panjf2000/ants/v2.
package cleaning

import (
	"sync"
	"sync/atomic"

	"github.com/abdoElHodaky/arb-pipeline/internal/architecture/fx/workerpool"
	"github.com/abdoElHodaky/arb-pipeline/internal/pool"
	pipelineerrors "github.com/abdoElHodaky/arb-pipeline/pkg/errors"
	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
)

// Result is the outcome of cleaning one raw snapshot.
type Result struct {
	Book     *model.OrderBook
	Crossed  bool
	PathUsed string
}

// Pipeline runs the configured cleaning path over raw snapshots, publishing
// committed books via an atomic pointer swap so readers never observe a
// partially-built book.
type Pipeline struct {
	memPool *pool.Manager
	pools   *workerpool.WorkerPoolFactory
	maxPrice int64

	published atomic.Pointer[model.OrderBook]
	mu        sync.Mutex // not locked by any path
}

// New constructs a Pipeline. pools may be nil to disable Path B (callers
// relying only on Path A/C, e.g. in tests).
func New(memPool *pool.Manager, pools *workerpool.WorkerPoolFactory, maxPrice int64) *Pipeline {
	return &Pipeline{memPool: memPool, pools: pools, maxPrice: maxPrice}
}

// CleanFast is Path A: a zero-allocation pass using pooled scratch slices,
// for the common case of small, well-formed snapshots (§4.7, ~100us target).
func (p *Pipeline) CleanFast(exchangeID, symbol string, rawBids, rawAsks []model.OrderBookEntry, timestampNs int64) (Result, error) {
	slot := p.memPool.CheckoutUltraFast()
	slot.Bids = appendValid(slot.Bids, rawBids, p.maxPrice)
	slot.Asks = appendValid(slot.Asks, rawAsks, p.maxPrice)

	bids := model.Normalize(slot.Bids, true)
	asks := model.Normalize(slot.Asks, false)

	book := &model.OrderBook{
		ExchangeID:  exchangeID,
		Symbol:      symbol,
		Bids:        bids,
		Asks:        asks,
		TimestampNs: timestampNs,
		Consistent:  true,
	}
	if !book.ValidateSorted() {
		return Result{}, pipelineerrors.New(pipelineerrors.KindValidationHard, pipelineerrors.CodeUnsortablePrices, "book failed strict ordering after normalize")
	}

	p.Commit(book)
	return Result{Book: book, Crossed: book.Crossed(), PathUsed: "A"}, nil
}

// CleanParallel is Path B: split the raw entries into buckets round-robin
// by position (entry i goes to bucket i % buckets; prices are not
// quantized into ranges) and normalize each bucket concurrently via the
// ants pool, for larger snapshots where Path A's single-threaded pass
// would miss budget.
func (p *Pipeline) CleanParallel(exchangeID, symbol string, rawBids, rawAsks []model.OrderBookEntry, timestampNs int64, buckets int) (Result, error) {
	if p.pools == nil || buckets <= 1 {
		return p.CleanSafe(exchangeID, symbol, rawBids, rawAsks, timestampNs)
	}

	bidBuckets := bucketize(rawBids, buckets)
	askBuckets := bucketize(rawAsks, buckets)

	normalizedBids := make([][]model.OrderBookEntry, len(bidBuckets))
	normalizedAsks := make([][]model.OrderBookEntry, len(askBuckets))

	var wg sync.WaitGroup
	var firstErr error
	var errMu sync.Mutex

	submit := func(i int, entries []model.OrderBookEntry, descending bool, out [][]model.OrderBookEntry) {
		wg.Add(1)
		err := p.pools.Submit(workerpool.PathBPoolName, func() {
			defer wg.Done()
			out[i] = model.Normalize(filterValid(entries, p.maxPrice), descending)
		})
		if err != nil {
			wg.Done()
			errMu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			errMu.Unlock()
		}
	}

	for i, bucket := range bidBuckets {
		submit(i, bucket, true, normalizedBids)
	}
	for i, bucket := range askBuckets {
		submit(i, bucket, false, normalizedAsks)
	}
	wg.Wait()

	if firstErr != nil {
		return p.CleanSafe(exchangeID, symbol, rawBids, rawAsks, timestampNs)
	}

	bids := model.Normalize(flatten(normalizedBids), true)
	asks := model.Normalize(flatten(normalizedAsks), false)

	book := &model.OrderBook{
		ExchangeID:  exchangeID,
		Symbol:      symbol,
		Bids:        bids,
		Asks:        asks,
		TimestampNs: timestampNs,
		Consistent:  true,
	}
	if !book.ValidateSorted() {
		return Result{}, pipelineerrors.New(pipelineerrors.KindValidationHard, pipelineerrors.CodeUnsortablePrices, "book failed strict ordering after parallel normalize")
	}

	p.Commit(book)
	return Result{Book: book, Crossed: book.Crossed(), PathUsed: "B"}, nil
}

// CleanSafe is Path C: a single-threaded fallback with no pooling, used
// when the pools are unavailable or Path A/B reports an error it cannot
// recover from locally.
func (p *Pipeline) CleanSafe(exchangeID, symbol string, rawBids, rawAsks []model.OrderBookEntry, timestampNs int64) (Result, error) {
	bids := model.Normalize(filterValid(rawBids, p.maxPrice), true)
	asks := model.Normalize(filterValid(rawAsks, p.maxPrice), false)

	book := &model.OrderBook{
		ExchangeID:  exchangeID,
		Symbol:      symbol,
		Bids:        bids,
		Asks:        asks,
		TimestampNs: timestampNs,
		Consistent:  true,
	}
	if !book.ValidateSorted() {
		return Result{}, pipelineerrors.New(pipelineerrors.KindValidationHard, pipelineerrors.CodeUnsortablePrices, "book failed strict ordering")
	}

	p.Commit(book)
	return Result{Book: book, Crossed: book.Crossed(), PathUsed: "C"}, nil
}

// Commit atomically publishes book as the pipeline's latest output. Readers
// via Published never observe a partially-built book.
func (p *Pipeline) Commit(book *model.OrderBook) {
	p.published.Store(book)
}

// Published returns the most recently committed book, or nil if none yet.
func (p *Pipeline) Published() *model.OrderBook {
	return p.published.Load()
}

func appendValid(dst []model.OrderBookEntry, src []model.OrderBookEntry, maxPrice int64) []model.OrderBookEntry {
	for _, e := range src {
		if e.Valid(maxPrice) {
			dst = append(dst, e)
		}
	}
	return dst
}

func filterValid(entries []model.OrderBookEntry, maxPrice int64) []model.OrderBookEntry {
	out := make([]model.OrderBookEntry, 0, len(entries))
	return appendValid(out, entries, maxPrice)
}

func bucketize(entries []model.OrderBookEntry, buckets int) [][]model.OrderBookEntry {
	out := make([][]model.OrderBookEntry, buckets)
	for i, e := range entries {
		b := i % buckets
		out[b] = append(out[b], e)
	}
	return out
}

func flatten(buckets [][]model.OrderBookEntry) []model.OrderBookEntry {
	total := 0
	for _, b := range buckets {
		total += len(b)
	}
	out := make([]model.OrderBookEntry, 0, total)
	for _, b := range buckets {
		out = append(out, b...)
	}
	return out
}
