package pool

import (
	"testing"

	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
)

func TestManager_CheckoutBidVecIsResetAndReused(t *testing.T) {
	m := NewManager()
	v := m.CheckoutBidVec()
	if len(v) != 0 {
		t.Fatalf("expected zero-length checkout, got %d", len(v))
	}
	if cap(v) != VecCapacity {
		t.Fatalf("expected capacity %d, got %d", VecCapacity, cap(v))
	}
}

func TestManager_CheckoutRoundRobinsAcrossSlots(t *testing.T) {
	m := NewManager()
	for i := 0; i < NBidVecs+10; i++ {
		m.CheckoutBidVec()
	}
	stats := m.Stats()
	if stats.BidChecked != NBidVecs+10 {
		t.Fatalf("expected %d checkouts recorded, got %d", NBidVecs+10, stats.BidChecked)
	}
}

func TestManager_CheckoutUltraFastNextSlotStartsEmpty(t *testing.T) {
	m := NewManager()
	slot := m.CheckoutUltraFast()
	slot.Bids = append(slot.Bids, model.OrderBookEntry{Price: model.NewPrice(1, 0), Quantity: model.NewQuantity(1, 0)})
	slot2 := m.CheckoutUltraFast()
	if len(slot2.Bids) != 0 {
		t.Fatal("expected a fresh slot to start empty regardless of prior writes to a different slot")
	}
	_ = slot
}

func TestManager_TransientAllocIncrementsStat(t *testing.T) {
	m := NewManager()
	m.TransientEntryVec(10)
	if m.Stats().TransientAllocs != 1 {
		t.Fatal("expected transient alloc to be counted")
	}
}
