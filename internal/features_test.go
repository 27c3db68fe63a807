package internal

import (
	"sync"
	"testing"
)

// --- One-shot request flags ---

// TestTakeStartExactlyOnce validates exactly-once consumption.
//
// Contract:
//   - A request set between iterations is observed exactly once
//   - Never dropped, never double-applied
func TestTakeStartExactlyOnce(t *testing.T) {
	var s featureState

	if s.takeStart() {
		t.Error("takeStart() true without a request")
	}

	s.requestStart()
	if !s.takeStart() {
		t.Error("takeStart() false after a request")
	}
	if s.takeStart() {
		t.Error("takeStart() true twice for one request")
	}
}

// TestTakeStopExactlyOnce mirrors the start-flag contract for stop.
func TestTakeStopExactlyOnce(t *testing.T) {
	var s featureState

	s.requestStop()
	if !s.takeStop() {
		t.Error("takeStop() false after a request")
	}
	if s.takeStop() {
		t.Error("takeStop() true twice for one request")
	}
}

// TestConcurrentTakersSeeOneRequest validates the compare-and-swap under
// contention: many takers, one request, exactly one winner.
func TestConcurrentTakersSeeOneRequest(t *testing.T) {
	var s featureState
	s.requestStart()

	const takers = 32
	var wg sync.WaitGroup
	results := make(chan bool, takers)
	for i := 0; i < takers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.takeStart()
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for won := range results {
		if won {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("one request consumed %d times, want exactly 1", wins)
	}
}

// TestEnableIdempotent validates feature-bit merging.
//
// Contract:
//   - enable merges, never clears
//   - enabling an already-enabled bit is a no-op
func TestEnableIdempotent(t *testing.T) {
	var s featureState

	got := s.enable(FeatureColorStream)
	if got != FeatureColorStream {
		t.Errorf("enable(color) = %v, want color", got)
	}

	got = s.enable(FeatureColorStream | FeatureDepthStream)
	if !got.Has(FeatureColorStream) || !got.Has(FeatureDepthStream) {
		t.Errorf("enable(color|depth) = %v, want both set", got)
	}

	got = s.enable(FeatureColorStream)
	if !got.Has(FeatureDepthStream) {
		t.Error("re-enabling color cleared depth")
	}
}

// TestReconstructTargetPair validates that the loop never observes the
// request flag without a consistent format/filename pair.
func TestReconstructTargetPair(t *testing.T) {
	var s featureState

	if _, _, ok := s.takeReconstruct(); ok {
		t.Error("takeReconstruct() true without a request")
	}

	s.requestReconstruct(FormatPLY, "scan.ply")
	format, filename, ok := s.takeReconstruct()
	if !ok {
		t.Fatal("takeReconstruct() false after a request")
	}
	if format != FormatPLY || filename != "scan.ply" {
		t.Errorf("target = (%v, %q), want (ply, scan.ply)", format, filename)
	}

	if _, _, ok := s.takeReconstruct(); ok {
		t.Error("takeReconstruct() true twice for one request")
	}
}

// TestRequestStartClearsCompleted validates that a new scan invalidates the
// previous completion result.
func TestRequestStartClearsCompleted(t *testing.T) {
	var s featureState

	s.scanCompleted.Store(true)
	s.requestStart()
	if s.scanCompleted.Load() {
		t.Error("scanCompleted still set after a new start request")
	}
}
