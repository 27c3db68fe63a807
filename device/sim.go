package device

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	depthcapture "github.com/e7canasta/orion-depth-capture"
	"github.com/e7canasta/orion-depth-capture/mesh"
)

// SimConfig configures a simulated device.
type SimConfig struct {
	// SampleInterval paces AcquireSample. 0 means no pacing (as fast as the
	// loop pulls).
	SampleInterval time.Duration

	// Model and Firmware are the reported device identity.
	// Defaults: SR300, "3.10.10.0".
	Model    depthcapture.CameraModel
	Firmware string

	// FailAfter, when > 0, makes AcquireSample fail once that many samples
	// have been produced. Used to exercise acquisition-failure handling.
	FailAfter int

	// PreviewGrowAfter, when > 0, doubles the scan preview dimensions after
	// that many previews, exercising the pipeline's adaptive scan resize.
	PreviewGrowAfter int
}

// SimDevice is a deterministic synthetic Device: color frames are an RGBA
// gradient keyed by the sample number, depth frames a 16-bit ramp. Payloads
// are heap-owned, so samples need no Release.
type SimDevice struct {
	mu  sync.Mutex
	cfg SimConfig

	open    bool
	samples int

	colorWidth, colorHeight int
	depthWidth, depthHeight int

	scanner *SimScanner
}

// NewSimDevice creates a simulated device.
func NewSimDevice(cfg SimConfig) *SimDevice {
	if cfg.Model == depthcapture.ModelUnknown {
		cfg.Model = depthcapture.ModelSR300
	}
	if cfg.Firmware == "" {
		cfg.Firmware = "3.10.10.0"
	}
	return &SimDevice{cfg: cfg}
}

// Open marks the simulated processing pipeline ready.
func (d *SimDevice) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = true
	slog.Debug("device: sim device opened",
		"model", d.cfg.Model.String(),
		"color", fmt.Sprintf("%dx%d", d.colorWidth, d.colorHeight),
		"depth", fmt.Sprintf("%dx%d", d.depthWidth, d.depthHeight),
	)
	return nil
}

// Close shuts the simulated pipeline down. Idempotent.
func (d *SimDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	return nil
}

// EnableStream latches one stream's dimensions for subsequent samples.
func (d *SimDevice) EnableStream(kind depthcapture.StreamKind, width, height int, fps float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch kind {
	case depthcapture.StreamColor:
		d.colorWidth, d.colorHeight = width, height
	case depthcapture.StreamDepth:
		d.depthWidth, d.depthHeight = width, height
	default:
		return fmt.Errorf("device: unknown stream kind %d", kind)
	}
	return nil
}

// ValidStreamSet applies the shared stream-profile policy.
func (d *SimDevice) ValidStreamSet(color depthcapture.ColorResolution, depth depthcapture.DepthResolution) bool {
	return validStreamSet(color, depth)
}

// AcquireSample produces the next synthetic sample. Deterministic: payload
// bytes depend only on the sample number and the configured dimensions.
func (d *SimDevice) AcquireSample(block bool) (*depthcapture.Sample, error) {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return nil, ErrNotOpen
	}
	d.samples++
	n := d.samples
	cw, ch := d.colorWidth, d.colorHeight
	dw, dh := d.depthWidth, d.depthHeight
	failAfter := d.cfg.FailAfter
	interval := d.cfg.SampleInterval
	scanner := d.scanner
	d.mu.Unlock()

	if failAfter > 0 && n > failAfter {
		return nil, fmt.Errorf("device: simulated acquisition failure after %d samples", failAfter)
	}

	if interval > 0 {
		time.Sleep(interval)
	}

	sample := &depthcapture.Sample{
		ColorWidth:  cw,
		ColorHeight: ch,
		DepthWidth:  dw,
		DepthHeight: dh,
		Timestamp:   time.Now(),
		TraceID:     uuid.NewString(),
	}
	if cw > 0 && ch > 0 {
		sample.Color = synthColor(n, cw, ch)
	}
	if dw > 0 && dh > 0 {
		sample.Depth = synthDepth(n, dw, dh)
	}

	if scanner != nil {
		scanner.observe(sample)
	}

	return sample, nil
}

// ColorFOV returns the SR300-like color field of view.
func (d *SimDevice) ColorFOV() depthcapture.FieldOfView {
	return depthcapture.FieldOfView{Horizontal: 68.0, Vertical: 41.5}
}

// DepthFOV returns the SR300-like depth field of view.
func (d *SimDevice) DepthFOV() depthcapture.FieldOfView {
	return depthcapture.FieldOfView{Horizontal: 71.5, Vertical: 55.0}
}

// Model returns the simulated camera family.
func (d *SimDevice) Model() depthcapture.CameraModel {
	return d.cfg.Model
}

// Firmware returns the simulated firmware version.
func (d *SimDevice) Firmware() string {
	return d.cfg.Firmware
}

// Enable3DScan returns the device's scanning middleware handle, creating it
// on first use. Subsequent calls return a fresh handle over the same
// accumulated state, mirroring middleware re-initialization after Close.
func (d *SimDevice) Enable3DScan() (depthcapture.Scanner, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.scanner == nil {
		d.scanner = newSimScanner(d.cfg.PreviewGrowAfter)
	}
	return d.scanner, nil
}

// synthColor builds an RGBA gradient keyed by the sample number.
func synthColor(n, width, height int) []byte {
	buf := make([]byte, width*height*depthcapture.ColorBytesPerPixel)
	for y := 0; y < height; y++ {
		row := y * width * 4
		for x := 0; x < width; x++ {
			i := row + x*4
			buf[i] = byte(x + n)
			buf[i+1] = byte(y)
			buf[i+2] = byte(x ^ y)
			buf[i+3] = 0xff
		}
	}
	return buf
}

// synthDepth builds a 16-bit little-endian ramp keyed by the sample number.
func synthDepth(n, width, height int) []byte {
	buf := make([]byte, width*height*depthcapture.DepthBytesPerPixel)
	for y := 0; y < height; y++ {
		row := y * width * 2
		for x := 0; x < width; x++ {
			binary.LittleEndian.PutUint16(buf[row+x*2:], uint16((x+y+n)%2048))
		}
	}
	return buf
}

// SimScanner is the simulated scanning middleware: it counts depth samples
// observed while scanning and reconstructs a deterministic mesh from the
// configured scanning volume.
type SimScanner struct {
	mu  sync.Mutex
	cfg depthcapture.ScanConfig

	area depthcapture.ScanArea

	sessionID string
	observed  int

	previews              int
	prevWidth, prevHeight int
	growAfter             int
}

func newSimScanner(growAfter int) *SimScanner {
	return &SimScanner{
		area:       depthcapture.ScanArea{Width: 0.5, Height: 0.5, Depth: 0.5, Resolution: 64},
		prevWidth:  320,
		prevHeight: 240,
		growAfter:  growAfter,
	}
}

// Configuration returns the current scanning configuration.
func (s *SimScanner) Configuration() (depthcapture.ScanConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, nil
}

// SetConfiguration replaces the scanning configuration. Flipping Scanning
// on begins a new scan session.
func (s *SimScanner) SetConfiguration(cfg depthcapture.ScanConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.Scanning && !s.cfg.Scanning {
		s.sessionID = uuid.NewString()
		s.observed = 0
		slog.Info("device: scan session started",
			"session", s.sessionID,
			"mode", cfg.Mode.String(),
		)
	}
	if !cfg.Scanning && s.cfg.Scanning {
		slog.Info("device: scan session stopped",
			"session", s.sessionID,
			"samples", s.observed,
		)
	}
	s.cfg = cfg
	return nil
}

// SetArea sets the scanning volume and voxel resolution.
func (s *SimScanner) SetArea(area depthcapture.ScanArea) error {
	if area.Width <= 0 || area.Height <= 0 || area.Depth <= 0 {
		return fmt.Errorf("device: invalid scanning volume %+v", area)
	}
	if area.Resolution <= 0 {
		return fmt.Errorf("device: invalid voxel resolution %d", area.Resolution)
	}
	s.mu.Lock()
	s.area = area
	s.mu.Unlock()
	return nil
}

// AcquirePreview returns a synthetic preview while a scan session is
// active, nil otherwise. After growAfter previews the dimensions double
// once, the way the real middleware adapts its preview size.
func (s *SimScanner) AcquirePreview() *depthcapture.PreviewImage {
	s.mu.Lock()
	if !s.cfg.Scanning {
		s.mu.Unlock()
		return nil
	}
	s.previews++
	if s.growAfter > 0 && s.previews == s.growAfter+1 {
		s.prevWidth *= 2
		s.prevHeight *= 2
	}
	n, w, h := s.previews, s.prevWidth, s.prevHeight
	s.mu.Unlock()

	return &depthcapture.PreviewImage{
		Data:   synthColor(n, w, h),
		Width:  w,
		Height: h,
	}
}

// Reconstruct writes a deterministic mesh of the scanning volume to path.
// Fails when no scan session ever started.
func (s *SimScanner) Reconstruct(format depthcapture.FileFormat, path string) error {
	s.mu.Lock()
	session := s.sessionID
	observed := s.observed
	area := s.area
	solidify := s.cfg.Solidify
	s.mu.Unlock()

	if session == "" {
		return fmt.Errorf("device: no scan data, start a scan before reconstructing")
	}

	tint := mesh.Color{R: 0x7f, G: byte(observed), B: 0x7f}
	m := mesh.Box(area.Width, area.Height, area.Depth, tint)
	if solidify {
		m.Recenter()
	}
	if err := m.WriteFile(path, format); err != nil {
		return fmt.Errorf("device: writing reconstruction: %w", err)
	}

	slog.Info("device: reconstruction written",
		"session", session,
		"samples", observed,
		"format", format.String(),
		"file", path,
	)
	return nil
}

// observe counts samples that carry depth data while a session is active.
func (s *SimScanner) observe(sample *depthcapture.Sample) {
	if sample.Depth == nil {
		return
	}
	s.mu.Lock()
	if s.cfg.Scanning {
		s.observed++
	}
	s.mu.Unlock()
}
