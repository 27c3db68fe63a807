package internal

import (
	"sync"
	"sync/atomic"
)

// featureState holds the enable flags and pending one-shot requests shared
// between the consumer thread and the acquisition loop.
//
// Single-writer-per-field discipline:
//   - feature bits: written by the consumer (EnableFeatures, re-apply on
//     stop), read by the loop
//   - one-shot request flags: set by the consumer, consumed-and-cleared
//     exactly once by the loop via compare-and-swap
//   - scanCompleted / scanSizeChanged: written by the loop, read-only (and
//     possibly stale until the next published frame) for the consumer
//   - reconstruct format+filename: guarded by a narrow mutex for the pair,
//     never a coarse lock shared with the buffer swap
type featureState struct {
	features atomic.Uint32

	startRequested       atomic.Bool
	stopRequested        atomic.Bool
	reconstructRequested atomic.Bool

	scanCompleted   atomic.Bool
	scanSizeChanged atomic.Bool

	targetMu sync.Mutex
	format   FileFormat
	filename string
}

// current returns the enabled feature bitset.
func (s *featureState) current() FeatureSet {
	return FeatureSet(s.features.Load())
}

// enable merges set into the current feature bitset and returns the merged
// value. Idempotent for bits already enabled.
func (s *featureState) enable(set FeatureSet) FeatureSet {
	for {
		old := s.features.Load()
		merged := old | uint32(set)
		if s.features.CompareAndSwap(old, merged) {
			return FeatureSet(merged)
		}
	}
}

// requestStart sets the start-scan one-shot flag. A new scan invalidates the
// previous completion result.
func (s *featureState) requestStart() {
	s.scanCompleted.Store(false)
	s.startRequested.Store(true)
}

// requestStop sets the stop-scan one-shot flag.
func (s *featureState) requestStop() {
	s.stopRequested.Store(true)
}

// requestReconstruct stores the reconstruction target and sets the one-shot
// flag. The pair is stored before the flag so the loop never observes the
// flag without a consistent target.
func (s *featureState) requestReconstruct(format FileFormat, filename string) {
	s.targetMu.Lock()
	s.format = format
	s.filename = filename
	s.targetMu.Unlock()
	s.reconstructRequested.Store(true)
}

// takeStart consumes the start-scan flag. Returns true at most once per
// request: a request made between iterations is applied exactly once, on the
// next iteration, never dropped and never double-applied.
func (s *featureState) takeStart() bool {
	return s.startRequested.CompareAndSwap(true, false)
}

// takeStop consumes the stop-scan flag, at most once per request.
func (s *featureState) takeStop() bool {
	return s.stopRequested.CompareAndSwap(true, false)
}

// takeReconstruct consumes the reconstruct flag and returns the stored
// target, at most once per request.
func (s *featureState) takeReconstruct() (FileFormat, string, bool) {
	if !s.reconstructRequested.CompareAndSwap(true, false) {
		return 0, "", false
	}
	s.targetMu.Lock()
	format, filename := s.format, s.filename
	s.targetMu.Unlock()
	return format, filename, true
}

// reconstructTarget returns the stored reconstruction target without
// consuming the request flag.
func (s *featureState) reconstructTarget() (FileFormat, string) {
	s.targetMu.Lock()
	defer s.targetMu.Unlock()
	return s.format, s.filename
}
