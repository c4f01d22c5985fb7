package clock

import "testing"

func TestSource_NowNsMonotonic(t *testing.T) {
	s := New()
	a := s.NowNs()
	b := s.NowNs()
	if b < a {
		t.Fatalf("expected monotonic non-decreasing timestamps, got %d then %d", a, b)
	}
}

func TestSource_CPUCyclesFallsBackWithoutCalibration(t *testing.T) {
	s := New()
	if s.CPUCycles() == 0 {
		t.Fatal("expected a non-zero fallback reading")
	}
}

func TestSource_CalibrateIdempotent(t *testing.T) {
	s := New()
	s.Calibrate()
	s.Calibrate() // must not panic or deadlock
}
