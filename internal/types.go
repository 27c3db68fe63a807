package internal

import "errors"

// Internal errors - mapped to public errors in depthcapture package
var (
	ErrNoDevice         = errors.New("depth-capture: no device configured")
	ErrPipelineRunning  = errors.New("depth-capture: pipeline is running")
	ErrInvalidStreamSet = errors.New("depth-capture: unsupported stream resolution combination")
	ErrScanNotEnabled   = errors.New("depth-capture: 3D scan feature not enabled")
	ErrScanUnavailable  = errors.New("depth-capture: device has no 3D scan support")
)

// FeatureSet is a bitset of enabled camera subsystems.
type FeatureSet uint32

const (
	// FeatureColorStream enables color frame copies into published frames.
	FeatureColorStream FeatureSet = 1 << iota
	// FeatureDepthStream enables depth frame copies into published frames.
	FeatureDepthStream
	// FeatureScan3D enables the 3D scanning middleware and scan previews.
	FeatureScan3D
)

// Has reports whether every bit in want is set.
func (f FeatureSet) Has(want FeatureSet) bool {
	return f&want == want
}

// String returns a human-readable list of enabled features.
func (f FeatureSet) String() string {
	if f == 0 {
		return "none"
	}
	s := ""
	if f.Has(FeatureColorStream) {
		s += "color+"
	}
	if f.Has(FeatureDepthStream) {
		s += "depth+"
	}
	if f.Has(FeatureScan3D) {
		s += "scan3d+"
	}
	return s[:len(s)-1]
}

// Bytes per pixel for each stream's pixel format. Color and scan previews
// are RGBA, depth is 16-bit millimeters.
const (
	ColorBytesPerPixel = 4
	DepthBytesPerPixel = 2
	ScanBytesPerPixel  = 4
)

// ColorResolution enumerates supported color stream modes.
type ColorResolution int

const (
	// ColorRes480p represents 640x480 @ 60fps
	ColorRes480p ColorResolution = iota
	// ColorRes720p represents 1280x720 @ 30fps
	ColorRes720p
	// ColorRes1080p represents 1920x1080 @ 30fps
	ColorRes1080p
)

// Dimensions returns the width and height for the resolution
func (r ColorResolution) Dimensions() (width, height int) {
	switch r {
	case ColorRes480p:
		return 640, 480
	case ColorRes720p:
		return 1280, 720
	case ColorRes1080p:
		return 1920, 1080
	default:
		// Safe default: 480p
		return 640, 480
	}
}

// FPS returns the stream rate for the resolution
func (r ColorResolution) FPS() float64 {
	switch r {
	case ColorRes480p:
		return 60
	default:
		return 30
	}
}

// String returns a human-readable string representation of the resolution
func (r ColorResolution) String() string {
	switch r {
	case ColorRes720p:
		return "720p"
	case ColorRes1080p:
		return "1080p"
	default:
		return "480p"
	}
}

// DepthResolution enumerates supported depth stream modes.
type DepthResolution int

const (
	// DepthRes240p represents 320x240 @ 30fps
	DepthRes240p DepthResolution = iota
	// DepthRes480p represents 640x480 @ 60fps
	DepthRes480p
)

// Dimensions returns the width and height for the resolution
func (r DepthResolution) Dimensions() (width, height int) {
	switch r {
	case DepthRes240p:
		return 320, 240
	default:
		return 640, 480
	}
}

// FPS returns the stream rate for the resolution
func (r DepthResolution) FPS() float64 {
	if r == DepthRes240p {
		return 30
	}
	return 60
}

// String returns a human-readable string representation of the resolution
func (r DepthResolution) String() string {
	if r == DepthRes240p {
		return "240p"
	}
	return "480p"
}

// FileFormat selects the mesh file format written by Scanner.Reconstruct.
type FileFormat int

const (
	FormatOBJ FileFormat = iota
	FormatPLY
	FormatSTL
)

// Ext returns the file extension for the format (with leading dot).
func (f FileFormat) Ext() string {
	switch f {
	case FormatPLY:
		return ".ply"
	case FormatSTL:
		return ".stl"
	default:
		return ".obj"
	}
}

// String returns the format name
func (f FileFormat) String() string {
	switch f {
	case FormatPLY:
		return "ply"
	case FormatSTL:
		return "stl"
	default:
		return "obj"
	}
}

// ScanMode selects the scanning middleware's target profile.
type ScanMode int

const (
	ScanVariable ScanMode = iota
	ScanObject
	ScanFace
	ScanHead
	ScanBody
)

// String returns the mode name
func (m ScanMode) String() string {
	switch m {
	case ScanObject:
		return "object"
	case ScanFace:
		return "face"
	case ScanHead:
		return "head"
	case ScanBody:
		return "body"
	default:
		return "variable"
	}
}

// CameraModel identifies the connected depth camera family.
type CameraModel int

const (
	ModelUnknown CameraModel = iota
	ModelF200
	ModelR200
	ModelSR300
)

// String returns the model name
func (m CameraModel) String() string {
	switch m {
	case ModelF200:
		return "F200"
	case ModelR200:
		return "R200"
	case ModelSR300:
		return "SR300"
	default:
		return "unknown"
	}
}

// PipelineStats is a snapshot of pipeline operational state.
type PipelineStats struct {
	// Running is true while the acquisition loop is executing.
	Running bool `json:"running"`

	// Features is the currently enabled feature bitset.
	Features FeatureSet `json:"-"`

	// FramesProduced counts frames published by the acquisition loop.
	FramesProduced uint64 `json:"frames_produced"`

	// FramesDelivered counts AcquireLatest calls that returned a fresh frame.
	FramesDelivered uint64 `json:"frames_delivered"`

	// FramesSkipped counts published frames the consumer never observed.
	// Non-zero is EXPECTED when the consumer polls slower than the producer:
	// freshness over completeness-of-history.
	FramesSkipped uint64 `json:"frames_skipped"`

	// PollMisses counts AcquireLatest calls that found no new frame.
	// Non-zero is expected when the consumer polls faster than the producer.
	PollMisses uint64 `json:"poll_misses"`

	// ScanCompleted is true after a requested reconstruction finished.
	ScanCompleted bool `json:"scan_completed"`

	// LastError holds the error that terminated the last run, empty if none.
	LastError string `json:"last_error,omitempty"`
}
