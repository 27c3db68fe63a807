package internal

import "sync"

// tripleBuffer implements the background/mid/foreground handoff between the
// acquisition loop and the consumer.
//
// Role table (index-based, reassigned under mu):
//   - background: written only by the acquisition loop, never locked
//   - mid:        the last fully published frame; mu guards its identity
//   - foreground: owned by the consumer between AcquireLatest calls
//
// Exactly one buffer occupies each role at all times. Ownership moves by
// index swap, never by copy, and mu protects only the role indices during a
// swap - never buffer contents while they are written.
//
// Consequence of the protocol: the consumer always reads a complete frame,
// at the cost of skipping frames when it polls slower than the producer.
// Freshness over completeness-of-history: there is no queue and no
// backpressure on the producer.
type tripleBuffer struct {
	mu   sync.Mutex
	bufs [3]Frame
	bg   int
	mid  int
	fg   int
}

func newTripleBuffer() *tripleBuffer {
	return &tripleBuffer{bg: 0, mid: 1, fg: 2}
}

// background returns the producer-owned buffer. Only the acquisition loop
// may call this, and only between publish calls.
func (t *tripleBuffer) background() *Frame {
	return &t.bufs[t.bg]
}

// publish exchanges the background and mid roles, making the just-written
// frame available for consumption. Called only by the acquisition loop after
// the background buffer is fully populated. Never blocks on the consumer
// beyond the brief identity swap.
func (t *tripleBuffer) publish() {
	t.mu.Lock()
	t.bg, t.mid = t.mid, t.bg
	t.mu.Unlock()
}

// acquireLatest exchanges the foreground and mid roles iff mid holds a newer
// frame, and returns the foreground buffer plus whether it was refreshed.
//
// Called by the consumer from any thread. If no frame was published since
// the last call the foreground is left untouched - not an error, merely "no
// update". Before the first publish (mid.Seq == 0) this is a no-op and the
// foreground stays at its initial zeroed state.
func (t *tripleBuffer) acquireLatest() (*Frame, bool) {
	t.mu.Lock()
	fresh := t.bufs[t.fg].Seq < t.bufs[t.mid].Seq
	if fresh {
		t.fg, t.mid = t.mid, t.fg
	}
	fg := &t.bufs[t.fg]
	t.mu.Unlock()
	return fg, fresh
}

// foreground returns the consumer-owned buffer without checking for updates.
func (t *tripleBuffer) foreground() *Frame {
	t.mu.Lock()
	fg := &t.bufs[t.fg]
	t.mu.Unlock()
	return fg
}

// forEach applies fn to all three buffers. Only safe while the acquisition
// loop is idle: resizing is serialized with loop iterations by doing it
// before the loop starts.
func (t *tripleBuffer) forEach(fn func(*Frame)) {
	for i := range t.bufs {
		fn(&t.bufs[i])
	}
}
