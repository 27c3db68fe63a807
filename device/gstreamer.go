package device

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	depthcapture "github.com/e7canasta/orion-depth-capture"
)

// GstConfig configures a GStreamer-backed capture device for UVC depth
// cameras that expose their color and depth sensors as separate v4l2 nodes.
type GstConfig struct {
	// ColorDevice is the v4l2 node of the color sensor (required),
	// e.g. /dev/video2.
	ColorDevice string

	// DepthDevice is the v4l2 node of the depth sensor. Empty disables the
	// depth pipeline; samples then carry no depth payload.
	DepthDevice string

	// Model and Firmware are the reported device identity (v4l2 has no
	// portable query for them).
	Model    depthcapture.CameraModel
	Firmware string

	// ColorFOV and DepthFOV are the optics' fields of view in degrees.
	// Zero values mean unknown.
	ColorFOV depthcapture.FieldOfView
	DepthFOV depthcapture.FieldOfView
}

// GstDevice implements depthcapture.Device over two GStreamer pipelines:
//
//	v4l2src → videoconvert → videoscale → videorate → capsfilter → appsink
//
// with RGBA caps for color and GRAY16_LE for depth. The appsinks keep only
// the latest buffer (max-buffers=1, drop=true), so AcquireSample's blocking
// pull always yields the freshest frame.
type GstDevice struct {
	mu  sync.Mutex
	cfg GstConfig

	open bool

	colorWidth, colorHeight int
	colorFPS                float64
	depthWidth, depthHeight int
	depthFPS                float64

	colorPipe *gst.Pipeline
	colorSink *app.Sink
	depthPipe *gst.Pipeline
	depthSink *app.Sink
}

// NewGstDevice creates a GStreamer-backed device with fail-fast validation.
func NewGstDevice(cfg GstConfig) (*GstDevice, error) {
	if cfg.ColorDevice == "" {
		return nil, fmt.Errorf("device: color device node is required")
	}
	if err := checkGStreamerAvailable(); err != nil {
		return nil, fmt.Errorf("device: GStreamer not available: %w", err)
	}
	return &GstDevice{cfg: cfg}, nil
}

// EnableStream latches one stream's resolution and rate. Only accepted
// while closed: the pipelines are built from the latched configuration at
// Open time.
func (d *GstDevice) EnableStream(kind depthcapture.StreamKind, width, height int, fps float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return ErrAlreadyOpen
	}
	switch kind {
	case depthcapture.StreamColor:
		d.colorWidth, d.colorHeight, d.colorFPS = width, height, fps
	case depthcapture.StreamDepth:
		d.depthWidth, d.depthHeight, d.depthFPS = width, height, fps
	default:
		return fmt.Errorf("device: unknown stream kind %d", kind)
	}
	return nil
}

// ValidStreamSet applies the shared stream-profile policy.
func (d *GstDevice) ValidStreamSet(color depthcapture.ColorResolution, depth depthcapture.DepthResolution) bool {
	return validStreamSet(color, depth)
}

// Open builds and starts the capture pipelines.
func (d *GstDevice) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return nil
	}
	if d.colorWidth == 0 || d.colorHeight == 0 {
		return fmt.Errorf("device: color stream not configured")
	}

	colorPipe, colorSink, err := buildCapturePipeline(
		d.cfg.ColorDevice, "RGBA", d.colorWidth, d.colorHeight, d.colorFPS)
	if err != nil {
		return fmt.Errorf("device: building color pipeline: %w", err)
	}
	d.colorPipe, d.colorSink = colorPipe, colorSink

	if d.cfg.DepthDevice != "" {
		depthPipe, depthSink, err := buildCapturePipeline(
			d.cfg.DepthDevice, "GRAY16_LE", d.depthWidth, d.depthHeight, d.depthFPS)
		if err != nil {
			destroyPipeline(d.colorPipe)
			d.colorPipe, d.colorSink = nil, nil
			return fmt.Errorf("device: building depth pipeline: %w", err)
		}
		d.depthPipe, d.depthSink = depthPipe, depthSink
	}

	if err := startPipeline(d.colorPipe); err != nil {
		d.teardownLocked()
		return fmt.Errorf("device: starting color pipeline: %w", err)
	}
	if d.depthPipe != nil {
		if err := startPipeline(d.depthPipe); err != nil {
			d.teardownLocked()
			return fmt.Errorf("device: starting depth pipeline: %w", err)
		}
	}

	d.open = true
	slog.Info("device: capture pipelines started",
		"color_device", d.cfg.ColorDevice,
		"depth_device", d.cfg.DepthDevice,
		"color", fmt.Sprintf("%dx%d@%.0f", d.colorWidth, d.colorHeight, d.colorFPS),
		"depth", fmt.Sprintf("%dx%d@%.0f", d.depthWidth, d.depthHeight, d.depthFPS),
	)
	return nil
}

// Close stops and releases the capture pipelines. Idempotent.
func (d *GstDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil
	}
	d.teardownLocked()
	d.open = false
	slog.Info("device: capture pipelines stopped")
	return nil
}

func (d *GstDevice) teardownLocked() {
	if d.colorPipe != nil {
		destroyPipeline(d.colorPipe)
		d.colorPipe, d.colorSink = nil, nil
	}
	if d.depthPipe != nil {
		destroyPipeline(d.depthPipe)
		d.depthPipe, d.depthSink = nil, nil
	}
}

// AcquireSample pulls the freshest color (and depth) buffers. With
// block=true PullSample waits for the next buffer; with block=false the
// device reports "no sample ready" instead of waiting.
func (d *GstDevice) AcquireSample(block bool) (*depthcapture.Sample, error) {
	d.mu.Lock()
	colorSink, depthSink := d.colorSink, d.depthSink
	open := d.open
	cw, ch, dw, dh := d.colorWidth, d.colorHeight, d.depthWidth, d.depthHeight
	d.mu.Unlock()

	if !open {
		return nil, ErrNotOpen
	}
	if !block {
		// The appsinks are pull-based; without blocking there is nothing to
		// report until the next buffer lands.
		return nil, nil
	}

	color, err := pullFrame(colorSink)
	if err != nil {
		return nil, fmt.Errorf("device: color stream: %w", err)
	}

	sample := &depthcapture.Sample{
		Color:       color,
		ColorWidth:  cw,
		ColorHeight: ch,
		DepthWidth:  dw,
		DepthHeight: dh,
		Timestamp:   time.Now(),
		TraceID:     uuid.NewString(),
	}

	if depthSink != nil {
		depth, err := pullFrame(depthSink)
		if err != nil {
			return nil, fmt.Errorf("device: depth stream: %w", err)
		}
		sample.Depth = depth
	}

	return sample, nil
}

// ColorFOV returns the configured color field of view.
func (d *GstDevice) ColorFOV() depthcapture.FieldOfView {
	return d.cfg.ColorFOV
}

// DepthFOV returns the configured depth field of view.
func (d *GstDevice) DepthFOV() depthcapture.FieldOfView {
	return d.cfg.DepthFOV
}

// Model returns the configured camera family.
func (d *GstDevice) Model() depthcapture.CameraModel {
	return d.cfg.Model
}

// Firmware returns the configured firmware string, "unknown" when unset.
func (d *GstDevice) Firmware() string {
	if d.cfg.Firmware == "" {
		return "unknown"
	}
	return d.cfg.Firmware
}

// Enable3DScan reports that no scanning middleware is available on plain
// v4l2 capture.
func (d *GstDevice) Enable3DScan() (depthcapture.Scanner, error) {
	return nil, depthcapture.ErrScanUnavailable
}

// buildCapturePipeline assembles one v4l2 capture chain ending in an
// appsink that keeps only the latest buffer.
func buildCapturePipeline(node, format string, width, height int, fps float64) (*gst.Pipeline, *app.Sink, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", node)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create videoscale: %w", err)
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create videorate: %w", err)
	}
	videorate.SetProperty("drop-only", true)
	videorate.SetProperty("skip-to-first", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsStr := fmt.Sprintf("video/x-raw,format=%s,width=%d,height=%d,framerate=%d/1",
		format, width, height, int(fps))
	capsfilter.SetProperty("caps", gst.NewCapsFromString(capsStr))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)    // No sync with clock (real-time)
	appsink.SetProperty("max-buffers", 1) // Keep only latest frame
	appsink.SetProperty("drop", true)     // Drop old frames

	pipeline.AddMany(src, converter, scaler, videorate, capsfilter, appsink.Element)
	if err := gst.ElementLinkMany(src, converter, scaler, videorate, capsfilter, appsink.Element); err != nil {
		return nil, nil, fmt.Errorf("failed to link elements: %w", err)
	}

	return pipeline, appsink, nil
}

// startPipeline moves a pipeline to PLAYING and waits briefly for the state
// change to land.
func startPipeline(pipeline *gst.Pipeline) error {
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	bus := pipeline.GetPipelineBus()
	msg := bus.TimedPop(5 * time.Second)
	if msg != nil && msg.Type() == gst.MessageStateChanged {
		_, newState := msg.ParseStateChanged()
		if newState == gst.StatePlaying {
			slog.Debug("device: pipeline reached PLAYING state")
		}
	}
	return nil
}

func destroyPipeline(pipeline *gst.Pipeline) {
	if err := pipeline.SetState(gst.StateNull); err != nil {
		slog.Warn("device: failed to stop pipeline", "error", err)
	}
}

// pullFrame blocks for the next buffer on sink and copies it out
// (GStreamer will reuse the buffer).
func pullFrame(sink *app.Sink) ([]byte, error) {
	sample := sink.PullSample()
	if sample == nil {
		if sink.IsEOS() {
			return nil, fmt.Errorf("end of stream")
		}
		return nil, fmt.Errorf("failed to pull sample from appsink")
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return nil, fmt.Errorf("failed to get buffer from sample")
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return nil, fmt.Errorf("empty buffer received")
	}

	frame := make([]byte, len(data))
	copy(frame, data)
	buffer.Unmap()

	return frame, nil
}

// checkGStreamerAvailable is a fail-fast validation that runs at
// construction time.
func checkGStreamerAvailable() error {
	gst.Init(nil)

	elem, err := gst.NewElement("fakesrc")
	if err != nil {
		return fmt.Errorf("GStreamer not available or not properly installed: %w", err)
	}
	elem.SetState(gst.StateNull)

	return nil
}
