package messaging

import "testing"

func TestEnvelope_MetadataRoundTrip(t *testing.T) {
	e := NewSystemEnvelope("adapter.nats", "warn", "reconnecting")
	e.SetMetadata("exchange", "binance")
	v, ok := e.GetMetadata("exchange")
	if !ok || v != "binance" {
		t.Fatalf("expected metadata round trip, got %q ok=%v", v, ok)
	}
	if e.GetKind() != KindSystem {
		t.Fatalf("expected KindSystem, got %v", e.GetKind())
	}
}
