// Package bookstore implements C8, the Order-Book Store: a concurrent
// registry of the latest committed OrderBook per (exchange, symbol), read
// via an atomic pointer so a reader always sees a complete, consistent
// snapshot (spec.md §4.8).
//
// Grounded on the same atomic-pointer-swap idiom learned from
// pkg/matching/hft_engine.go that backs internal/cleaning's Commit.
package bookstore

import (
	"sync"
	"sync/atomic"

	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
)

// Store holds one atomic.Pointer[OrderBook] per (exchange, symbol) key.
type Store struct {
	mu     sync.RWMutex
	tables map[model.BookKey]*atomic.Pointer[model.OrderBook]
}

// New constructs an empty Store.
func New() *Store {
	return &Store{tables: make(map[model.BookKey]*atomic.Pointer[model.OrderBook])}
}

// Put publishes book as the latest state for its key, wait-free for any
// concurrent Get on the same key.
func (s *Store) Put(book *model.OrderBook) {
	key := book.Key()
	ptr := s.slot(key)
	ptr.Store(book)
}

// Get returns the latest committed book for key, or nil if none has ever
// been published.
func (s *Store) Get(key model.BookKey) *model.OrderBook {
	s.mu.RLock()
	ptr, ok := s.tables[key]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return ptr.Load()
}

// MarkInconsistent flags the book at key as not Consistent, excluding it
// from detection until a resync republishes it (spec.md §4.7 scenario 3).
// A no-op if no book has been published for key yet.
func (s *Store) MarkInconsistent(key model.BookKey) {
	s.mu.RLock()
	ptr, ok := s.tables[key]
	s.mu.RUnlock()
	if !ok {
		return
	}
	current := ptr.Load()
	if current == nil || !current.Consistent {
		return
	}
	cp := model.CloneBook(current)
	cp.Consistent = false
	ptr.Store(cp)
}

// Keys returns every (exchange, symbol) key currently tracked.
func (s *Store) Keys() []model.BookKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.BookKey, 0, len(s.tables))
	for k := range s.tables {
		out = append(out, k)
	}
	return out
}

// Snapshot returns a consistent-books-only view, for the orchestrator's
// read step (inconsistent books are excluded from detection, §4.7).
func (s *Store) Snapshot() []*model.OrderBook {
	s.mu.RLock()
	ptrs := make([]*atomic.Pointer[model.OrderBook], 0, len(s.tables))
	for _, p := range s.tables {
		ptrs = append(ptrs, p)
	}
	s.mu.RUnlock()

	out := make([]*model.OrderBook, 0, len(ptrs))
	for _, p := range ptrs {
		if b := p.Load(); b != nil && b.Consistent {
			out = append(out, b)
		}
	}
	return out
}

func (s *Store) slot(key model.BookKey) *atomic.Pointer[model.OrderBook] {
	s.mu.RLock()
	ptr, ok := s.tables[key]
	s.mu.RUnlock()
	if ok {
		return ptr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ptr, ok := s.tables[key]; ok {
		return ptr
	}
	ptr = &atomic.Pointer[model.OrderBook]{}
	s.tables[key] = ptr
	return ptr
}
