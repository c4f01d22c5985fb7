package cache

import (
	"encoding/gob"
	"testing"
)

type testPayload struct {
	Name  string
	Count int
}

func init() {
	gob.Register(testPayload{})
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("unexpected error constructing cache: %v", err)
	}
	return c
}

func TestCache_SetGetHitsL1(t *testing.T) {
	c := newTestCache(t)
	if err := c.Set("k", testPayload{Name: "a", Count: 1}); err != nil {
		t.Fatalf("unexpected set error: %v", err)
	}
	v, ok := c.Get("k")
	if !ok {
		t.Fatal("expected a hit")
	}
	if v.(testPayload).Name != "a" {
		t.Fatalf("unexpected value: %+v", v)
	}
	if c.Stats().HitsL1 != 1 {
		t.Fatalf("expected L1 hit counted, got %+v", c.Stats())
	}
}

func TestCache_PromotesL2HitToL1(t *testing.T) {
	c := newTestCache(t)
	_ = c.Set("k", testPayload{Name: "b", Count: 2})
	c.l1.Delete("k") // force an L1 miss so the lookup falls through to L2

	v, ok := c.Get("k")
	if !ok {
		t.Fatal("expected an L2 hit")
	}
	if v.(testPayload).Name != "b" {
		t.Fatalf("unexpected value: %+v", v)
	}
	if _, ok := c.l1.Get("k"); !ok {
		t.Fatal("expected the L2 hit to be promoted back into L1")
	}
}

func TestCache_DeleteRemovesFromAllTiers(t *testing.T) {
	c := newTestCache(t)
	_ = c.Set("k", testPayload{Name: "c"})
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected a miss after delete")
	}
}

func TestCache_MissIncrementsStat(t *testing.T) {
	c := newTestCache(t)
	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected a miss")
	}
	if c.Stats().Misses != 1 {
		t.Fatalf("expected 1 miss, got %+v", c.Stats())
	}
}
