package internal

import "time"

// Frame holds one acquisition's outputs: a monotonic sequence number and the
// color, depth and scan-preview payloads with their current dimensions.
//
// OWNERSHIP CONTRACT:
//   - While in the background role the acquisition loop is the only writer.
//   - While in the foreground role the consumer is the only reader.
//   - The consumer MUST NOT retain a *Frame across AcquireLatest calls: a
//     later call may rotate the buffer back into the producer's hands.
//
// A Frame is internally consistent: each payload's length matches the
// dimensions that were active when it was written (length = width x height x
// bytes-per-pixel for that stream).
type Frame struct {
	// Seq is the monotonic frame number. 0 means "never produced".
	Seq uint64

	// Timestamp is when the source sample was captured.
	Timestamp time.Time

	// TraceID is a unique identifier for distributed tracing, carried over
	// from the source sample.
	TraceID string

	// Color is the RGBA color payload (ColorWidth x ColorHeight x 4 bytes).
	Color []byte
	// Depth is the 16-bit depth payload (DepthWidth x DepthHeight x 2 bytes).
	Depth []byte
	// Scan is the RGBA scan-preview payload (ScanWidth x ScanHeight x 4 bytes).
	Scan []byte

	ColorWidth  int
	ColorHeight int
	DepthWidth  int
	DepthHeight int
	ScanWidth   int
	ScanHeight  int
}

// resizeColor reallocates the color payload for the given dimensions.
// The new buffer is zero-filled.
func (f *Frame) resizeColor(width, height int) {
	f.ColorWidth = width
	f.ColorHeight = height
	f.Color = make([]byte, width*height*ColorBytesPerPixel)
}

// resizeDepth reallocates the depth payload for the given dimensions.
// The new buffer is zero-filled.
func (f *Frame) resizeDepth(width, height int) {
	f.DepthWidth = width
	f.DepthHeight = height
	f.Depth = make([]byte, width*height*DepthBytesPerPixel)
}

// resizeScan reallocates the scan-preview payload for the given dimensions.
// The new buffer is zero-filled.
func (f *Frame) resizeScan(width, height int) {
	f.ScanWidth = width
	f.ScanHeight = height
	f.Scan = make([]byte, width*height*ScanBytesPerPixel)
}
