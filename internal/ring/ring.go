// Package ring implements C3, the Lock-free Buffer: a bounded multi-producer
// multi-consumer ring per message kind, falling back to a bounded channel
// when the ring is full, with ingress rate shaping (spec.md §4.3).
//
// Grounded on internal/messaging/unified_dispatcher.go's queue-worker shape
// (queuedMessage/queueWorker, overflow counting, per-queue stats) — rewritten
// here as a generic slot-based ring instead of a generic message dispatcher,
// since the spec calls for a fixed-capacity structure with an explicit
// overflow path rather than an unbounded worker pool.
package ring

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	pipelineerrors "github.com/abdoElHodaky/arb-pipeline/pkg/errors"
)

// Stats reports buffer utilization and overflow counts.
type Stats struct {
	Enqueued  int64
	Dequeued  int64
	Dropped   int64
	Overflows int64
}

// Buffer is a bounded MPMC ring for a single message kind T. Producers never
// block on a full ring; they fall back to a bounded overflow channel, and if
// that is also full the item is dropped with a KindTransientIngress error.
type Buffer[T any] struct {
	slots []T
	valid []int32 // 0 empty, 1 filled; CAS-guarded per slot

	head uint64
	tail uint64

	overflow chan T
	limiter  *rate.Limiter

	enqueued  int64
	dequeued  int64
	dropped   int64
	overflows int64

	mu sync.Mutex // not locked by any method
}

// Config controls buffer and overflow sizing, plus optional ingress shaping.
type Config struct {
	Capacity         int
	OverflowCapacity int
	// RateLimitPerSec caps sustained ingress; 0 disables shaping.
	RateLimitPerSec float64
	RateLimitBurst  int
}

// New constructs a Buffer with the given kind-specific sizing.
func New[T any](cfg Config) *Buffer[T] {
	b := &Buffer[T]{
		slots:    make([]T, cfg.Capacity),
		valid:    make([]int32, cfg.Capacity),
		overflow: make(chan T, cfg.OverflowCapacity),
	}
	if cfg.RateLimitPerSec > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	}
	return b
}

// Push enqueues an item, wait-free on the ring-hit path. Returns a
// KindTransientIngress *PipelineError if both the ring and the overflow
// channel are saturated — the caller is expected to retry at the source
// (spec.md §7).
func (b *Buffer[T]) Push(item T) error {
	if b.limiter != nil && !b.limiter.Allow() {
		atomic.AddInt64(&b.dropped, 1)
		return pipelineerrors.New(pipelineerrors.KindTransientIngress, pipelineerrors.CodeBufferFull, "ingress rate exceeded")
	}

	n := uint64(len(b.slots))
	idx := atomic.AddUint64(&b.tail, 1) - 1
	slot := idx % n
	if atomic.CompareAndSwapInt32(&b.valid[slot], 0, 1) {
		b.slots[slot] = item
		atomic.AddInt64(&b.enqueued, 1)
		return nil
	}

	select {
	case b.overflow <- item:
		atomic.AddInt64(&b.overflows, 1)
		atomic.AddInt64(&b.enqueued, 1)
		return nil
	default:
		atomic.AddInt64(&b.dropped, 1)
		return pipelineerrors.New(pipelineerrors.KindTransientIngress, pipelineerrors.CodeBufferFull, "ring and overflow both saturated")
	}
}

// Pop attempts a non-blocking dequeue, draining the overflow channel first
// so overflowed items are not starved by ring-fresh ones.
func (b *Buffer[T]) Pop() (T, bool) {
	var zero T
	select {
	case item := <-b.overflow:
		atomic.AddInt64(&b.dequeued, 1)
		return item, true
	default:
	}

	n := uint64(len(b.slots))
	head := atomic.LoadUint64(&b.head)
	for head < atomic.LoadUint64(&b.tail) {
		slot := head % n
		if atomic.CompareAndSwapUint64(&b.head, head, head+1) {
			if atomic.CompareAndSwapInt32(&b.valid[slot], 1, 0) {
				atomic.AddInt64(&b.dequeued, 1)
				return b.slots[slot], true
			}
			return zero, false
		}
		head = atomic.LoadUint64(&b.head)
	}
	return zero, false
}

// PopContext blocks until an item is available or ctx is done, polling the
// non-blocking Pop. Intended for consumer goroutines, not the hot ingress
// path.
func (b *Buffer[T]) PopContext(ctx context.Context) (T, bool) {
	for {
		if item, ok := b.Pop(); ok {
			return item, true
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, false
		default:
		}
	}
}

// Stats returns a point-in-time snapshot of buffer counters.
func (b *Buffer[T]) Stats() Stats {
	return Stats{
		Enqueued:  atomic.LoadInt64(&b.enqueued),
		Dequeued:  atomic.LoadInt64(&b.dequeued),
		Dropped:   atomic.LoadInt64(&b.dropped),
		Overflows: atomic.LoadInt64(&b.overflows),
	}
}
