package storage

import (
	"testing"

	"github.com/abdoElHodaky/arb-pipeline/pkg/model"
)

func TestFileStore_SystemStateRoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := model.SystemState{UptimeNs: 42, ProcessedOpportunities: 7, CurrentMarketState: model.MarketCautious}
	if err := s.SaveSystemState(want); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	got, err := s.LoadSystemState()
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestFileStore_LoadMissingReturnsDataUnavailable(t *testing.T) {
	s, _ := NewFileStore(t.TempDir())
	if _, err := s.LoadPerformanceStats(); err == nil {
		t.Fatal("expected an error loading a snapshot that was never saved")
	}
}

func TestFileStore_PerformanceStatsRoundTrip(t *testing.T) {
	s, _ := NewFileStore(t.TempDir())
	want := model.PerformanceStats{CyclesRun: 100, SuccessRateEWMA: 0.75}
	_ = s.SavePerformanceStats(want)
	got, err := s.LoadPerformanceStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}
