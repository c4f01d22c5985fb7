// Package opportunity implements C9, the Opportunity Pool: a bounded set of
// ArbitrageOpportunity candidates with per-item TTL and lowest-score
// eviction when the pool is full (spec.md §4.9).
//
// IDs are minted with github.com/segmentio/ksuid instead of a plain
// counter: ksuid's time-sortable encoding means sorting by ID alone gives a
// useful recency ordering for free, without a separate creation-time index.
package opportunity

import (
	"sort"
	"sync"

	"github.com/segmentio/ksuid"

	pipelineerrors "github.com/abdoElHodaky/arb-pipeline/pkg/errors"
	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
)

// Capacity is the bounded pool size from spec.md §4.9.
const Capacity = 1000

// Pool holds at most Capacity live opportunities, evicting the lowest-score
// entry to make room for a higher-scoring newcomer.
type Pool struct {
	mu    sync.Mutex
	items map[string]*model.ArbitrageOpportunity
}

// New constructs an empty Pool.
func New() *Pool {
	return &Pool{items: make(map[string]*model.ArbitrageOpportunity, Capacity)}
}

// NewID mints a time-sortable opportunity ID.
func NewID() string {
	return ksuid.New().String()
}

// Add inserts opp, assigning it an ID if it has none. If the pool is at
// capacity, the lowest-scoring existing entry (as of nowNs) is evicted to
// make room, but only if opp would outscore it; otherwise opp is dropped.
func (p *Pool) Add(opp *model.ArbitrageOpportunity, nowNs int64) bool {
	if opp.ID == "" {
		opp.ID = NewID()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.items) < Capacity {
		p.items[opp.ID] = opp
		return true
	}

	lowestID, lowestScore := "", -1.0
	for id, existing := range p.items {
		s := existing.Score(nowNs)
		if lowestID == "" || s < lowestScore {
			lowestID, lowestScore = id, s
		}
	}

	if opp.Score(nowNs) <= lowestScore {
		return false
	}
	delete(p.items, lowestID)
	p.items[opp.ID] = opp
	return true
}

// Sweep removes every expired entry as of nowNs, returning the count
// removed (spec.md §4.9's periodic TTL sweep).
func (p *Pool) Sweep(nowNs int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for id, opp := range p.items {
		if opp.Expired(nowNs) {
			delete(p.items, id)
			removed++
		}
	}
	return removed
}

// Best returns the highest-scoring live opportunity as of nowNs, or an
// error if the pool is empty — callers should never fabricate a result
// from an empty pool (spec.md §7's "data unavailable" policy).
func (p *Pool) Best(nowNs int64) (*model.ArbitrageOpportunity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.items) == 0 {
		return nil, pipelineerrors.DataUnavailable("no opportunities in pool")
	}

	var best *model.ArbitrageOpportunity
	bestScore := -1.0
	for _, opp := range p.items {
		s := opp.Score(nowNs)
		if best == nil || s > bestScore || (s == bestScore && opp.CreatedNs < best.CreatedNs) {
			best, bestScore = opp, s
		}
	}
	return best, nil
}

// Ranked returns every live opportunity sorted by score descending (ties
// broken by older CreatedNs first, per spec.md §4.13).
func (p *Pool) Ranked(nowNs int64) []*model.ArbitrageOpportunity {
	p.mu.Lock()
	out := make([]*model.ArbitrageOpportunity, 0, len(p.items))
	for _, opp := range p.items {
		out = append(out, opp)
	}
	p.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		si, sj := out[i].Score(nowNs), out[j].Score(nowNs)
		if si != sj {
			return si > sj
		}
		return out[i].CreatedNs < out[j].CreatedNs
	})
	return out
}

// Len returns the number of live (not yet swept) opportunities.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}
