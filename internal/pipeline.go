// Package internal implements the depth-capture pipeline core.
//
// This package is INTERNAL - clients MUST use the public API in the parent
// package. Reason: allows internal refactoring without breaking changes.
package internal

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

// Config configures a pipeline. Validated fail-fast by NewPipeline.
type Config struct {
	// Device is the sensor collaborator. Required.
	Device Device

	// Copier transfers sample payloads into frame buffers.
	// Defaults to CopyImage.
	Copier ImageCopier

	// ColorResolution and DepthResolution select the initial stream modes.
	// The zero values are 480p color and 240p depth.
	ColorResolution ColorResolution
	DepthResolution DepthResolution

	// Features is the initially enabled feature bitset. More features can be
	// merged in later with EnableFeatures.
	Features FeatureSet

	// AcquireRetries is the number of consecutive immediate retries the
	// acquisition loop attempts after a transient sample failure before the
	// run terminates. 0 means fail fast.
	AcquireRetries int
}

// pipeline is the concrete implementation of the depthcapture.Pipeline
// interface.
//
// Goroutine topology:
//   - 1 fixed: acquisition loop (spawned by Start, joined by Stop), pinned
//     to an OS thread so blocking SDK calls stay on one thread
//   - consumer calls arrive from any external goroutine
//
// Shared-state discipline: the tripleBuffer mutex guards only the mid slot's
// identity; featureState carries its own per-field atomics; runMu serializes
// lifecycle transitions. Nothing else is shared.
type pipeline struct {
	dev    Device
	copier ImageCopier

	frames *tripleBuffer
	state  featureState

	scanMu  sync.Mutex
	scanner Scanner

	colorRes ColorResolution
	depthRes DepthResolution

	acquireRetries int

	// --- Lifecycle ---

	runMu   sync.Mutex  // serializes Start/Stop/Close and resolution changes
	running atomic.Bool // cancellation flag, observed once per iteration
	opened  bool        // device opened by Start, not yet closed by Stop
	wg      sync.WaitGroup

	seq uint64 // loop-owned, monotonic across runs

	// --- Operational stats ---

	framesProduced  atomic.Uint64
	framesDelivered atomic.Uint64
	pollMisses      atomic.Uint64

	errMu      sync.Mutex
	lastRunErr error
}

// NewPipeline creates a pipeline around the given device with fail-fast
// validation, sizing all three frame buffers for the configured resolutions.
func NewPipeline(cfg Config) (*pipeline, error) {
	if cfg.Device == nil {
		return nil, ErrNoDevice
	}
	if cfg.AcquireRetries < 0 {
		return nil, fmt.Errorf("depth-capture: invalid acquire retries %d (must be >= 0)", cfg.AcquireRetries)
	}

	copier := cfg.Copier
	if copier == nil {
		copier = CopyImage
	}

	p := &pipeline{
		dev:            cfg.Device,
		copier:         copier,
		frames:         newTripleBuffer(),
		acquireRetries: cfg.AcquireRetries,
	}

	if err := p.setColorResolution(cfg.ColorResolution); err != nil {
		return nil, err
	}
	if err := p.setDepthResolution(cfg.DepthResolution); err != nil {
		return nil, err
	}

	if cfg.Features != 0 {
		if err := p.EnableFeatures(cfg.Features); err != nil {
			return nil, err
		}
	}

	slog.Info("depth-capture: pipeline created",
		"model", p.dev.Model().String(),
		"firmware", p.dev.Firmware(),
		"color", p.colorRes.String(),
		"depth", p.depthRes.String(),
	)

	return p, nil
}

// Start transitions Idle -> Running: opens the device's processing pipeline
// and spawns the acquisition loop. No-op when already Running. A device
// initialization failure is returned here and the loop is never entered.
func (p *pipeline) Start() error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.running.Load() {
		return nil // already Running (idempotent)
	}

	if p.opened {
		// Previous run terminated on its own (acquisition failure). Close
		// the stale processing pipeline before reopening.
		if err := p.dev.Close(); err != nil {
			slog.Warn("depth-capture: closing stale device failed", "error", err)
		}
		p.opened = false
	}

	if err := p.dev.Open(); err != nil {
		return fmt.Errorf("depth-capture: device init failed: %w", err)
	}
	p.opened = true

	p.errMu.Lock()
	p.lastRunErr = nil
	p.errMu.Unlock()

	p.running.Store(true)
	p.wg.Add(1)
	go p.run()

	slog.Info("depth-capture: acquisition started",
		"features", p.state.current().String(),
	)
	return nil
}

// Stop transitions Running -> Idle: signals cooperative cancellation, joins
// the acquisition loop (bounded only by the current iteration's duration,
// reconstruction included), closes the processing pipeline and re-applies
// the previously selected feature set so a later Start resumes with the same
// configuration but freshly initialized subsystem handles. No-op when the
// pipeline was never started.
func (p *pipeline) Stop() error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if !p.opened {
		return nil // already Idle (idempotent)
	}

	p.running.Store(false)
	p.wg.Wait()
	p.opened = false

	err := p.dev.Close()
	p.reapplyFeatures()

	if err != nil {
		return fmt.Errorf("depth-capture: device close failed: %w", err)
	}

	slog.Info("depth-capture: acquisition stopped",
		"frames_produced", p.framesProduced.Load(),
	)
	return nil
}

// Close behaves as Stop. The acquisition loop never outlives the pipeline.
func (p *pipeline) Close() error {
	return p.Stop()
}

// run is the acquisition loop body. One iteration: blocking sample acquire,
// stamp sequence number, copy enabled payloads into the background frame,
// scan step, release sample, publish.
func (p *pipeline) run() {
	defer p.wg.Done()

	// Blocking SDK calls stay on one dedicated OS thread for the lifetime of
	// the run; the one-producer-thread model depends on it.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	retries := 0
	for p.running.Load() {
		sample, err := p.dev.AcquireSample(true)
		if err != nil {
			if retries < p.acquireRetries {
				retries++
				slog.Warn("depth-capture: sample acquisition failed, retrying",
					"attempt", retries,
					"max", p.acquireRetries,
					"error", err,
				)
				continue
			}
			p.errMu.Lock()
			p.lastRunErr = err
			p.errMu.Unlock()
			p.running.Store(false)
			slog.Error("depth-capture: acquisition failed, loop terminating",
				"error", err,
				"frames_produced", p.framesProduced.Load(),
			)
			return
		}
		retries = 0
		if sample == nil {
			continue
		}
		p.iterate(sample)
	}
}

// iterate processes one acquired sample. Either the full iteration completes
// and publishes, or the loop terminates: there is no partial-iteration
// publish.
func (p *pipeline) iterate(sample *Sample) {
	bg := p.frames.background()

	// Stamp the sequence number before any payload write. An observer of a
	// mid-write frame sees, at worst, data lagging its declared number -
	// never a too-low number for the data present, because the swap only
	// happens after the writes below.
	p.seq++
	bg.Seq = p.seq
	bg.Timestamp = sample.Timestamp
	bg.TraceID = sample.TraceID

	features := p.state.current()

	if features.Has(FeatureColorStream) && sample.Color != nil {
		p.copier(sample.Color, bg.Color, bg.ColorWidth, bg.ColorHeight)
	}

	if features.Has(FeatureDepthStream) && sample.Depth != nil {
		p.copier(sample.Depth, bg.Depth, bg.DepthWidth, bg.DepthHeight)
	}

	if features.Has(FeatureScan3D) {
		p.scanStep(bg)
	}

	if sample.Release != nil {
		sample.Release()
	}

	p.frames.publish()
	p.framesProduced.Add(1)
}

// scanStep applies pending one-shot scan requests, pulls a preview image and
// performs a requested reconstruction. Runs only on the acquisition loop.
func (p *pipeline) scanStep(bg *Frame) {
	p.scanMu.Lock()
	sc := p.scanner
	p.scanMu.Unlock()
	if sc == nil {
		return
	}

	if p.state.takeStart() {
		p.setScanning(sc, true)
	}
	if p.state.takeStop() {
		p.setScanning(sc, false)
	}

	if img := sc.AcquirePreview(); img != nil {
		p.updateScanImageSize(bg, img.Width, img.Height)
		p.copier(img.Data, bg.Scan, bg.ScanWidth, bg.ScanHeight)
	}

	if format, filename, ok := p.state.takeReconstruct(); ok {
		// Blocking and potentially slow. Publishing stalls for the duration:
		// an accepted latency spike, not an error.
		if err := sc.Reconstruct(format, filename); err != nil {
			slog.Error("depth-capture: reconstruction failed",
				"format", format.String(),
				"file", filename,
				"error", err,
			)
		} else {
			p.state.scanCompleted.Store(true)
			slog.Info("depth-capture: reconstruction complete",
				"format", format.String(),
				"file", filename,
			)
		}
	}
}

// setScanning flips the scanning middleware's start flag via its
// configuration, the way one-shot start/stop requests are applied.
func (p *pipeline) setScanning(sc Scanner, on bool) {
	cfg, err := sc.Configuration()
	if err != nil {
		slog.Error("depth-capture: scan configuration query failed", "error", err)
		return
	}
	cfg.Scanning = on
	if err := sc.SetConfiguration(cfg); err != nil {
		slog.Error("depth-capture: scan configuration update failed",
			"scanning", on,
			"error", err,
		)
	}
}

// updateScanImageSize is the single check-then-resize step for the adaptive
// scan preview, performed only by the producer on the frame it owns. The
// other two buffers adopt the new size as they rotate through the background
// role; each frame's dimensions describe its own payload, so no observer
// ever sees a length/dimension mismatch.
func (p *pipeline) updateScanImageSize(bg *Frame, width, height int) {
	changed := bg.ScanWidth != width || bg.ScanHeight != height
	p.state.scanSizeChanged.Store(changed)
	if !changed {
		return
	}
	bg.resizeScan(width, height)
	slog.Debug("depth-capture: scan preview resized",
		"width", width,
		"height", height,
		"seq", bg.Seq,
	)
}

// AcquireLatest returns the foreground frame, refreshed to the newest
// published frame when one is available, plus whether it was refreshed.
// Never blocks beyond the brief mid-slot identity swap. Safe to call from
// any goroutine, but the returned frame is owned by the single logical
// consumer role until its next call.
func (p *pipeline) AcquireLatest() (*Frame, bool) {
	frame, fresh := p.frames.acquireLatest()
	if fresh {
		p.framesDelivered.Add(1)
	} else {
		p.pollMisses.Add(1)
	}
	return frame, fresh
}

// EnableFeatures merges the given bits into the enabled feature set.
// Idempotent for bits already enabled. Newly enabling FeatureScan3D
// initializes the scanning middleware handle.
func (p *pipeline) EnableFeatures(set FeatureSet) error {
	if p.dev.Model() == ModelUnknown {
		slog.Warn("depth-capture: no depth camera detected")
	}

	p.state.enable(set)

	if set.Has(FeatureScan3D) {
		p.scanMu.Lock()
		defer p.scanMu.Unlock()
		if p.scanner == nil {
			sc, err := p.dev.Enable3DScan()
			if err != nil {
				return fmt.Errorf("depth-capture: enabling 3D scan: %w", err)
			}
			p.scanner = sc
		}
	}
	return nil
}

// reapplyFeatures re-initializes external subsystem handles for the
// previously selected feature set after the device pipeline was closed.
// Called with runMu held.
func (p *pipeline) reapplyFeatures() {
	if !p.state.current().Has(FeatureScan3D) {
		return
	}
	sc, err := p.dev.Enable3DScan()
	if err != nil {
		slog.Warn("depth-capture: re-enabling 3D scan failed", "error", err)
		return
	}
	p.scanMu.Lock()
	p.scanner = sc
	p.scanMu.Unlock()
}

// Features returns the currently enabled feature bitset.
func (p *pipeline) Features() FeatureSet {
	return p.state.current()
}

// SetColorResolution reconfigures the color stream and resizes all three
// color buffers, zero-filled. Rejected while Running: resizing is only safe
// when no swap is in flight.
func (p *pipeline) SetColorResolution(res ColorResolution) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.running.Load() {
		return ErrPipelineRunning
	}
	return p.setColorResolution(res)
}

func (p *pipeline) setColorResolution(res ColorResolution) error {
	if !p.dev.ValidStreamSet(res, p.depthRes) {
		return ErrInvalidStreamSet
	}
	width, height := res.Dimensions()
	if err := p.dev.EnableStream(StreamColor, width, height, res.FPS()); err != nil {
		return fmt.Errorf("depth-capture: enabling color stream: %w", err)
	}
	p.colorRes = res
	p.frames.forEach(func(f *Frame) { f.resizeColor(width, height) })
	slog.Info("depth-capture: color stream configured",
		"resolution", res.String(),
		"fps", res.FPS(),
	)
	return nil
}

// SetDepthResolution reconfigures the depth stream and resizes all three
// depth buffers, zero-filled. Rejected while Running.
func (p *pipeline) SetDepthResolution(res DepthResolution) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.running.Load() {
		return ErrPipelineRunning
	}
	return p.setDepthResolution(res)
}

func (p *pipeline) setDepthResolution(res DepthResolution) error {
	if !p.dev.ValidStreamSet(p.colorRes, res) {
		return ErrInvalidStreamSet
	}
	width, height := res.Dimensions()
	if err := p.dev.EnableStream(StreamDepth, width, height, res.FPS()); err != nil {
		return fmt.Errorf("depth-capture: enabling depth stream: %w", err)
	}
	p.depthRes = res
	p.frames.forEach(func(f *Frame) { f.resizeDepth(width, height) })
	slog.Info("depth-capture: depth stream configured",
		"resolution", res.String(),
		"fps", res.FPS(),
	)
	return nil
}

// ColorResolution returns the configured color stream mode.
func (p *pipeline) ColorResolution() ColorResolution {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.colorRes
}

// DepthResolution returns the configured depth stream mode.
func (p *pipeline) DepthResolution() DepthResolution {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.depthRes
}

// ValidStreamSet reports whether the device supports the two resolutions
// together as a set. Checked before configuration is applied, never
// attempted blindly.
func (p *pipeline) ValidStreamSet(color ColorResolution, depth DepthResolution) bool {
	return p.dev.ValidStreamSet(color, depth)
}

// RequestStartScan sets the start-scan one-shot flag, applied exactly once
// by the acquisition loop's next iteration. Clears ScanCompleted: a new scan
// invalidates the previous completion result.
func (p *pipeline) RequestStartScan() {
	p.state.requestStart()
}

// RequestStopScan sets the stop-scan one-shot flag, applied exactly once by
// the acquisition loop's next iteration.
func (p *pipeline) RequestStopScan() {
	p.state.requestStop()
}

// RequestReconstruct stores the reconstruction target and sets the one-shot
// flag. The acquisition loop performs the blocking reconstruction on its
// next iteration, then sets ScanCompleted.
func (p *pipeline) RequestReconstruct(format FileFormat, filename string) error {
	if filename == "" {
		return fmt.Errorf("depth-capture: reconstruction filename is required")
	}
	if !p.state.current().Has(FeatureScan3D) {
		return ErrScanNotEnabled
	}
	p.state.requestReconstruct(format, filename)
	return nil
}

// ConfigureScanning sets the scanning middleware's mode and reconstruction
// options, leaving the actual start of scanning to a later RequestStartScan.
func (p *pipeline) ConfigureScanning(mode ScanMode, solidify, texture bool) error {
	sc := p.currentScanner()
	if sc == nil {
		return ErrScanNotEnabled
	}
	cfg, err := sc.Configuration()
	if err != nil {
		return fmt.Errorf("depth-capture: querying scan configuration: %w", err)
	}
	cfg.Mode = mode
	cfg.Solidify = solidify
	cfg.Texture = texture
	cfg.Scanning = false
	if err := sc.SetConfiguration(cfg); err != nil {
		return fmt.Errorf("depth-capture: configuring scanning: %w", err)
	}
	return nil
}

// SetScanningVolume sets the 3D volume and voxel resolution the scanning
// middleware collects data in.
func (p *pipeline) SetScanningVolume(area ScanArea) error {
	sc := p.currentScanner()
	if sc == nil {
		return ErrScanNotEnabled
	}
	if err := sc.SetArea(area); err != nil {
		return fmt.Errorf("depth-capture: setting scanning volume: %w", err)
	}
	return nil
}

func (p *pipeline) currentScanner() Scanner {
	p.scanMu.Lock()
	defer p.scanMu.Unlock()
	return p.scanner
}

// ScanCompleted reports whether a requested reconstruction has finished.
// Read-only observation: may be stale until the next published frame.
func (p *pipeline) ScanCompleted() bool {
	return p.state.scanCompleted.Load()
}

// ScanImageSizeChanged reports whether the last scan preview changed the
// scan buffer dimensions. Read-only observation, possibly stale.
func (p *pipeline) ScanImageSizeChanged() bool {
	return p.state.scanSizeChanged.Load()
}

// ColorFieldOfView returns the color stream's field of view in degrees,
// zeroes when no device is present.
func (p *pipeline) ColorFieldOfView() FieldOfView {
	return p.dev.ColorFOV()
}

// DepthFieldOfView returns the depth stream's field of view in degrees,
// zeroes when no device is present.
func (p *pipeline) DepthFieldOfView() FieldOfView {
	return p.dev.DepthFOV()
}

// CameraModel returns the connected camera family.
func (p *pipeline) CameraModel() CameraModel {
	return p.dev.Model()
}

// CameraFirmware returns the camera firmware version string.
func (p *pipeline) CameraFirmware() string {
	return p.dev.Firmware()
}

// Stats returns an operational snapshot. Non-blocking; counters are atomic
// and may be slightly stale relative to each other.
func (p *pipeline) Stats() PipelineStats {
	produced := p.framesProduced.Load()
	delivered := p.framesDelivered.Load()

	var skipped uint64
	if produced > delivered {
		skipped = produced - delivered
	}

	var lastErr string
	p.errMu.Lock()
	if p.lastRunErr != nil {
		lastErr = p.lastRunErr.Error()
	}
	p.errMu.Unlock()

	return PipelineStats{
		Running:         p.running.Load(),
		Features:        p.state.current(),
		FramesProduced:  produced,
		FramesDelivered: delivered,
		FramesSkipped:   skipped,
		PollMisses:      p.pollMisses.Load(),
		ScanCompleted:   p.state.scanCompleted.Load(),
		LastError:       lastErr,
	}
}
