// Package device provides Device implementations for the depthcapture
// pipeline: a GStreamer-backed capture device for UVC depth cameras and a
// deterministic simulated device for tests and offline runs.
package device

import (
	"errors"

	depthcapture "github.com/e7canasta/orion-depth-capture"
)

var (
	// ErrNotOpen is returned when a sample is requested from a closed device.
	ErrNotOpen = errors.New("device: not open")
	// ErrAlreadyOpen is returned when stream configuration is attempted on a
	// running device.
	ErrAlreadyOpen = errors.New("device: already open, stream configuration is latched before Open")
)

// validStreamSet is the shared stream-profile policy: every color/depth
// combination is supported except full-HD color paired with the low depth
// mode, which exceeds the shared bus budget on the supported cameras.
func validStreamSet(color depthcapture.ColorResolution, depth depthcapture.DepthResolution) bool {
	return !(color == depthcapture.ColorRes1080p && depth == depthcapture.DepthRes240p)
}
