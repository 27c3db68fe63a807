package internal

import "time"

// Sample is one acquisition pulled from a Device. Payload slices belong to
// the device until Release is called; the pipeline copies out of them before
// releasing and never retains them.
type Sample struct {
	// Color is the RGBA color payload, nil if the sample carries none.
	Color []byte
	// Depth is the 16-bit depth payload, nil if the sample carries none.
	Depth []byte

	ColorWidth  int
	ColorHeight int
	DepthWidth  int
	DepthHeight int

	// Timestamp is the capture time reported by the device.
	Timestamp time.Time

	// TraceID is a unique identifier for distributed tracing.
	TraceID string

	// Release returns the sample's resources to the device. May be nil for
	// devices that hand out heap-owned payloads.
	Release func()
}

// FieldOfView holds a stream's horizontal and vertical field of view in
// degrees. Zero values mean the device could not report it (device absent).
type FieldOfView struct {
	Horizontal float64
	Vertical   float64
}

// StreamKind identifies a configurable camera stream.
type StreamKind int

const (
	StreamColor StreamKind = iota
	StreamDepth
)

// String returns the stream name
func (k StreamKind) String() string {
	if k == StreamDepth {
		return "depth"
	}
	return "color"
}

// Device is the opaque sensor collaborator the pipeline drives. Discovery,
// capability negotiation and raw format conversion live behind this
// interface, not in the core.
//
// Implementations must guarantee:
//   - AcquireSample(true) blocks until a sample is available or fails
//   - EnableStream is accepted before Open (configuration is latched)
//   - Close releases the processing pipeline; Open after Close re-creates it
//   - FOV queries return zero values when no physical device is present
type Device interface {
	// Open initializes the device's processing pipeline. A failure here is
	// fatal to a pipeline run and is surfaced by Start.
	Open() error

	// Close shuts the processing pipeline down. Idempotent.
	Close() error

	// EnableStream configures one stream's resolution and rate. Called only
	// while the acquisition loop is idle.
	EnableStream(kind StreamKind, width, height int, fps float64) error

	// ValidStreamSet reports whether the color and depth resolutions are
	// supported together as a set.
	ValidStreamSet(color ColorResolution, depth DepthResolution) bool

	// AcquireSample returns the next sample. With block=true it waits for
	// one; with block=false it may return (nil, nil) when none is ready.
	AcquireSample(block bool) (*Sample, error)

	// ColorFOV returns the color stream's field of view, zeroes if unknown.
	ColorFOV() FieldOfView
	// DepthFOV returns the depth stream's field of view, zeroes if unknown.
	DepthFOV() FieldOfView

	// Model identifies the connected camera family.
	Model() CameraModel
	// Firmware returns the camera firmware version as a printable string.
	Firmware() string

	// Enable3DScan activates the scanning middleware and returns its handle.
	// Devices without scan support return ErrScanUnavailable.
	Enable3DScan() (Scanner, error)
}

// ScanConfig is the scanning middleware's configuration. Scanning defers the
// actual start of data collection: requests flip it from the acquisition
// loop, never directly from the consumer thread.
type ScanConfig struct {
	Mode     ScanMode
	Solidify bool
	Texture  bool
	Scanning bool
}

// ScanArea is the 3D volume the scanner collects data in, with the voxel
// resolution to use while scanning.
type ScanArea struct {
	// Width, Height, Depth are the bounding volume extents in meters.
	Width  float64
	Height float64
	Depth  float64
	// Resolution is the voxel resolution per axis.
	Resolution int
}

// PreviewImage is one scan preview. The middleware may change its dimensions
// between acquisitions; the pipeline resizes its scan buffers to follow.
type PreviewImage struct {
	Data   []byte
	Width  int
	Height int
}

// Scanner is the optional 3D scanning collaborator, obtained from
// Device.Enable3DScan when FeatureScan3D is enabled.
//
// Implementations must be safe for calls from both the consumer thread
// (SetConfiguration, SetArea) and the acquisition loop (AcquirePreview,
// Reconstruct).
type Scanner interface {
	// Configuration returns the current scanning configuration.
	Configuration() (ScanConfig, error)

	// SetConfiguration replaces the scanning configuration.
	SetConfiguration(ScanConfig) error

	// SetArea sets the scanning volume and voxel resolution.
	SetArea(ScanArea) error

	// AcquirePreview returns the current preview image, or nil when none is
	// available. The returned image is owned by the caller.
	AcquirePreview() *PreviewImage

	// Reconstruct converts the accumulated scan data into a mesh file at
	// path. Blocking and potentially slow; called only from the acquisition
	// loop, stalling frame publishing for its duration.
	Reconstruct(format FileFormat, path string) error
}

// ImageCopier transfers one payload into a destination buffer of the given
// dimensions. It is a pure function: format conversion, if any, happens
// upstream in the device. The default implementation is a bounds-clamped copy.
type ImageCopier func(src, dst []byte, width, height int)

// CopyImage is the default ImageCopier: a plain copy clamped to the shorter
// of the two buffers.
func CopyImage(src, dst []byte, width, height int) {
	copy(dst, src)
}
