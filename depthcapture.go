package depthcapture

import (
	"github.com/e7canasta/orion-depth-capture/internal"
)

// Frame is re-exported from the internal package to avoid import cycles.
// See internal/frame.go for the ownership contract.
type Frame = internal.Frame

// Sample, Device, Scanner and friends are the collaborator contracts the
// pipeline consumes. Implementations live in the device package (and in
// client code).
type (
	Sample       = internal.Sample
	Device       = internal.Device
	Scanner      = internal.Scanner
	ScanConfig   = internal.ScanConfig
	ScanArea     = internal.ScanArea
	PreviewImage = internal.PreviewImage
	FieldOfView  = internal.FieldOfView
	ImageCopier  = internal.ImageCopier
	StreamKind   = internal.StreamKind
)

// Enumerations re-exported as the stable public contract.
type (
	FeatureSet      = internal.FeatureSet
	ColorResolution = internal.ColorResolution
	DepthResolution = internal.DepthResolution
	FileFormat      = internal.FileFormat
	ScanMode        = internal.ScanMode
	CameraModel     = internal.CameraModel
)

const (
	FeatureColorStream = internal.FeatureColorStream
	FeatureDepthStream = internal.FeatureDepthStream
	FeatureScan3D      = internal.FeatureScan3D

	ColorRes480p  = internal.ColorRes480p
	ColorRes720p  = internal.ColorRes720p
	ColorRes1080p = internal.ColorRes1080p

	DepthRes240p = internal.DepthRes240p
	DepthRes480p = internal.DepthRes480p

	FormatOBJ = internal.FormatOBJ
	FormatPLY = internal.FormatPLY
	FormatSTL = internal.FormatSTL

	ScanVariable = internal.ScanVariable
	ScanObject   = internal.ScanObject
	ScanFace     = internal.ScanFace
	ScanHead     = internal.ScanHead
	ScanBody     = internal.ScanBody

	ModelUnknown = internal.ModelUnknown
	ModelF200    = internal.ModelF200
	ModelR200    = internal.ModelR200
	ModelSR300   = internal.ModelSR300

	StreamColor = internal.StreamColor
	StreamDepth = internal.StreamDepth

	ColorBytesPerPixel = internal.ColorBytesPerPixel
	DepthBytesPerPixel = internal.DepthBytesPerPixel
	ScanBytesPerPixel  = internal.ScanBytesPerPixel
)

// Public API errors - re-exported from internal as the stable contract.
var (
	ErrNoDevice         = internal.ErrNoDevice
	ErrPipelineRunning  = internal.ErrPipelineRunning
	ErrInvalidStreamSet = internal.ErrInvalidStreamSet
	ErrScanNotEnabled   = internal.ErrScanNotEnabled
	ErrScanUnavailable  = internal.ErrScanUnavailable
)

// Config configures a pipeline. See internal.Config for field documentation.
type Config = internal.Config

// PipelineStats is a snapshot of pipeline operational state.
type PipelineStats = internal.PipelineStats

// CopyImage is the default ImageCopier: a plain bounds-clamped copy.
// Format conversion, if any, happens upstream in the device.
func CopyImage(src, dst []byte, width, height int) {
	internal.CopyImage(src, dst, width, height)
}

// Pipeline is the public interface of the depth-capture core.
//
// Lifecycle: New() -> EnableFeatures()/Set*Resolution() -> Start() ->
// AcquireLatest()/Request*() -> Stop() (-> Start() again) -> Close().
//
// Thread-safety:
//   - Start/Stop/Close: safe for concurrent calls (serialized)
//   - AcquireLatest: safe from any goroutine, but the returned *Frame is
//     owned by the single logical consumer role until its next call
//   - Request*/EnableFeatures: safe from the consumer thread while Running
//   - Set*Resolution: only while Idle (returns ErrPipelineRunning otherwise)
type Pipeline interface {
	// Start spawns the acquisition loop. No-op when already Running.
	// Surfaces device initialization failure without entering the loop.
	Start() error

	// Stop signals cooperative cancellation, blocks until the acquisition
	// loop has fully exited (bounded by the current iteration's duration),
	// closes the processing pipeline and re-applies the selected feature
	// set. No-op when already Idle.
	Stop() error

	// Close behaves as Stop before releasing owned resources.
	Close() error

	// AcquireLatest returns the current foreground frame and whether it was
	// refreshed with a newer published frame. Before any frame was ever
	// published the foreground stays at its initial zeroed state
	// (Seq == 0) and the second return is false.
	AcquireLatest() (*Frame, bool)

	// EnableFeatures merges stream/scan enable bits into the configuration.
	// Idempotent for bits already enabled. Newly enabling FeatureScan3D
	// initializes the scanning middleware handle.
	EnableFeatures(set FeatureSet) error

	// Features returns the currently enabled feature bitset.
	Features() FeatureSet

	// SetColorResolution reconfigures the color stream and zero-fills all
	// three color buffers at the new size. Idle only.
	SetColorResolution(res ColorResolution) error

	// SetDepthResolution reconfigures the depth stream and zero-fills all
	// three depth buffers at the new size. Idle only.
	SetDepthResolution(res DepthResolution) error

	// ColorResolution returns the configured color stream mode.
	ColorResolution() ColorResolution

	// DepthResolution returns the configured depth stream mode.
	DepthResolution() DepthResolution

	// ValidStreamSet reports whether the device supports the two
	// resolutions together as a set.
	ValidStreamSet(color ColorResolution, depth DepthResolution) bool

	// RequestStartScan sets the start-scan one-shot flag, observed and
	// cleared exactly once by the acquisition loop. Clears ScanCompleted.
	RequestStartScan()

	// RequestStopScan sets the stop-scan one-shot flag, observed and
	// cleared exactly once by the acquisition loop.
	RequestStopScan()

	// RequestReconstruct stores the target format/filename and sets the
	// reconstruct one-shot flag. The loop performs the blocking
	// reconstruction on its next iteration and then sets ScanCompleted.
	RequestReconstruct(format FileFormat, filename string) error

	// ConfigureScanning sets scanning mode and reconstruction options,
	// postponing the start of scanning to a later RequestStartScan.
	ConfigureScanning(mode ScanMode, solidify, texture bool) error

	// SetScanningVolume sets the scanning volume bounds and voxel
	// resolution.
	SetScanningVolume(area ScanArea) error

	// ScanCompleted reports whether a requested reconstruction finished.
	// Read-only observation; may be stale until the next published frame.
	ScanCompleted() bool

	// ScanImageSizeChanged reports whether the last scan preview changed
	// the scan buffer dimensions. Read-only observation, possibly stale.
	ScanImageSizeChanged() bool

	// ColorFieldOfView and DepthFieldOfView return the streams' fields of
	// view in degrees, zero values when no physical device is present.
	ColorFieldOfView() FieldOfView
	DepthFieldOfView() FieldOfView

	// CameraModel and CameraFirmware identify the connected device.
	CameraModel() CameraModel
	CameraFirmware() string

	// Stats returns an operational snapshot (non-blocking).
	Stats() PipelineStats
}

// New creates a pipeline around cfg.Device with fail-fast validation.
//
// Returns the Pipeline interface; the implementation is internal.
func New(cfg Config) (Pipeline, error) {
	return internal.NewPipeline(cfg)
}
