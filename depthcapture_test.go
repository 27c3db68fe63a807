package depthcapture_test

import (
	"path/filepath"
	"testing"
	"time"

	depthcapture "github.com/e7canasta/orion-depth-capture"
	"github.com/e7canasta/orion-depth-capture/device"
	"github.com/e7canasta/orion-depth-capture/mesh"
)

// waitUntil polls cond until it holds or the deadline expires. Deadline
// polling instead of fixed sleeps keeps the tests fast on fast machines and
// stable on loaded ones.
func waitUntil(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func newSimPipeline(t *testing.T, features depthcapture.FeatureSet) depthcapture.Pipeline {
	t.Helper()
	dev := device.NewSimDevice(device.SimConfig{SampleInterval: time.Millisecond})
	pipe, err := depthcapture.New(depthcapture.Config{
		Device:          dev,
		ColorResolution: depthcapture.ColorRes480p,
		DepthResolution: depthcapture.DepthRes480p,
		Features:        features,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return pipe
}

// TestPipelineDeliversFrames validates the basic produce/consume path
// through the public API against the simulated device.
//
// Scenario:
//  1. Start with color+depth enabled
//  2. Poll until a fresh frame arrives
//  3. Assert: payload lengths match the configured modes, RGBA alpha is
//     opaque (the sim writes 0xff), sequence numbers only grow
func TestPipelineDeliversFrames(t *testing.T) {
	pipe := newSimPipeline(t, depthcapture.FeatureColorStream|depthcapture.FeatureDepthStream)
	defer pipe.Close()

	if err := pipe.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	var frame *depthcapture.Frame
	waitUntil(t, func() bool {
		f, fresh := pipe.AcquireLatest()
		if fresh {
			frame = f
		}
		return frame != nil
	}, "a fresh frame")

	wantColor := 640 * 480 * depthcapture.ColorBytesPerPixel
	wantDepth := 640 * 480 * depthcapture.DepthBytesPerPixel
	if len(frame.Color) != wantColor {
		t.Errorf("color payload = %d bytes, want %d", len(frame.Color), wantColor)
	}
	if len(frame.Depth) != wantDepth {
		t.Errorf("depth payload = %d bytes, want %d", len(frame.Depth), wantDepth)
	}
	if frame.Color[3] != 0xff {
		t.Error("color payload missing opaque alpha, buffer not copied")
	}
	if frame.Seq == 0 {
		t.Error("fresh frame with Seq 0")
	}
	if frame.TraceID == "" {
		t.Error("fresh frame missing trace ID")
	}

	// Sequence numbers observed by the consumer never decrease.
	last := frame.Seq
	for i := 0; i < 50; i++ {
		f, _ := pipe.AcquireLatest()
		if f.Seq < last {
			t.Fatalf("Seq went backwards: %d after %d", f.Seq, last)
		}
		last = f.Seq
		time.Sleep(time.Millisecond)
	}
}

// TestSetColorResolutionResizesBuffers validates idle reconfiguration
// through the public API.
//
// Contract:
//   - All three color buffers are reallocated at the new size, zero-filled
//   - The change is visible on the next acquired frame
func TestSetColorResolutionResizesBuffers(t *testing.T) {
	pipe := newSimPipeline(t, depthcapture.FeatureColorStream)
	defer pipe.Close()

	if err := pipe.SetColorResolution(depthcapture.ColorRes1080p); err != nil {
		t.Fatalf("SetColorResolution(1080p) failed: %v", err)
	}
	if pipe.ColorResolution() != depthcapture.ColorRes1080p {
		t.Errorf("ColorResolution() = %v, want 1080p", pipe.ColorResolution())
	}

	frame, _ := pipe.AcquireLatest()
	want := 1920 * 1080 * depthcapture.ColorBytesPerPixel
	if len(frame.Color) != want {
		t.Errorf("color buffer = %d bytes, want %d", len(frame.Color), want)
	}
	for i := 0; i < 64; i++ {
		if frame.Color[i] != 0 {
			t.Error("resized buffer not zero-filled")
			break
		}
	}
}

// TestInvalidStreamSetRejected validates the public stream-set check against
// the shared device policy.
func TestInvalidStreamSetRejected(t *testing.T) {
	dev := device.NewSimDevice(device.SimConfig{SampleInterval: time.Millisecond})
	pipe, err := depthcapture.New(depthcapture.Config{
		Device:          dev,
		ColorResolution: depthcapture.ColorRes480p,
		DepthResolution: depthcapture.DepthRes240p,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer pipe.Close()

	if pipe.ValidStreamSet(depthcapture.ColorRes1080p, depthcapture.DepthRes240p) {
		t.Error("ValidStreamSet(1080p, 240p) = true, want false")
	}
	if err := pipe.SetColorResolution(depthcapture.ColorRes1080p); err == nil {
		t.Error("SetColorResolution into an unsupported set succeeded")
	}
}

// TestScanEndToEnd validates the full scan cycle through the public API:
// enable, configure, start, accumulate, stop, reconstruct, load.
func TestScanEndToEnd(t *testing.T) {
	pipe := newSimPipeline(t,
		depthcapture.FeatureColorStream|depthcapture.FeatureDepthStream|depthcapture.FeatureScan3D)
	defer pipe.Close()

	if err := pipe.ConfigureScanning(depthcapture.ScanObject, true, true); err != nil {
		t.Fatalf("ConfigureScanning() failed: %v", err)
	}
	if err := pipe.SetScanningVolume(depthcapture.ScanArea{
		Width: 1.0, Height: 0.5, Depth: 0.25, Resolution: 128,
	}); err != nil {
		t.Fatalf("SetScanningVolume() failed: %v", err)
	}

	if err := pipe.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	pipe.RequestStartScan()
	// Accumulate: scan previews start flowing once the loop applies the
	// start request.
	waitUntil(t, func() bool {
		f, _ := pipe.AcquireLatest()
		return len(f.Scan) > 0
	}, "a scan preview in the published frame")

	pipe.RequestStopScan()
	out := filepath.Join(t.TempDir(), "scan.obj")
	if err := pipe.RequestReconstruct(depthcapture.FormatOBJ, out); err != nil {
		t.Fatalf("RequestReconstruct() failed: %v", err)
	}
	waitUntil(t, pipe.ScanCompleted, "scan completion")

	m, err := mesh.LoadOBJ(out)
	if err != nil {
		t.Fatalf("LoadOBJ(%s) failed: %v", out, err)
	}
	if len(m.Vertices) != 8 || m.TriangleCount() != 12 {
		t.Errorf("reconstruction = %d vertices / %d triangles, want 8 / 12",
			len(m.Vertices), m.TriangleCount())
	}

	stats := pipe.Stats()
	if !stats.ScanCompleted {
		t.Error("Stats().ScanCompleted = false after completion")
	}
	t.Logf("✅ scan cycle complete: %s (%d frames produced)", out, stats.FramesProduced)
}

// TestScanRequestsRequireFeature validates the public preconditions.
func TestScanRequestsRequireFeature(t *testing.T) {
	pipe := newSimPipeline(t, depthcapture.FeatureColorStream)
	defer pipe.Close()

	if err := pipe.RequestReconstruct(depthcapture.FormatOBJ, "scan.obj"); err != depthcapture.ErrScanNotEnabled {
		t.Errorf("RequestReconstruct() = %v, want ErrScanNotEnabled", err)
	}
	if err := pipe.ConfigureScanning(depthcapture.ScanFace, false, false); err != depthcapture.ErrScanNotEnabled {
		t.Errorf("ConfigureScanning() = %v, want ErrScanNotEnabled", err)
	}
	if err := pipe.SetScanningVolume(depthcapture.ScanArea{Width: 1, Height: 1, Depth: 1, Resolution: 64}); err != depthcapture.ErrScanNotEnabled {
		t.Errorf("SetScanningVolume() = %v, want ErrScanNotEnabled", err)
	}
}

// TestStopStartPreservesFeatures validates lifecycle cycling through the
// public API.
//
// Scenario:
//  1. Run with color+depth+scan, stop
//  2. Assert: features unchanged, pipeline idle
//  3. Start again: frames flow again with the same feature set
func TestStopStartPreservesFeatures(t *testing.T) {
	features := depthcapture.FeatureColorStream | depthcapture.FeatureDepthStream | depthcapture.FeatureScan3D
	pipe := newSimPipeline(t, features)
	defer pipe.Close()

	if err := pipe.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	waitUntil(t, func() bool { return pipe.Stats().FramesProduced > 0 }, "first run frames")
	if err := pipe.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}

	if pipe.Features() != features {
		t.Errorf("Features() = %v after Stop, want %v", pipe.Features(), features)
	}
	if pipe.Stats().Running {
		t.Error("Running after Stop")
	}

	produced := pipe.Stats().FramesProduced
	if err := pipe.Start(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	waitUntil(t, func() bool { return pipe.Stats().FramesProduced > produced }, "second run frames")
}

// TestDeviceIdentity validates the pass-through camera queries.
func TestDeviceIdentity(t *testing.T) {
	pipe := newSimPipeline(t, 0)
	defer pipe.Close()

	if pipe.CameraModel() != depthcapture.ModelSR300 {
		t.Errorf("CameraModel() = %v, want SR300", pipe.CameraModel())
	}
	if pipe.CameraFirmware() == "" {
		t.Error("CameraFirmware() empty")
	}
	if fov := pipe.ColorFieldOfView(); fov.Horizontal == 0 || fov.Vertical == 0 {
		t.Errorf("ColorFieldOfView() = %+v, want non-zero", fov)
	}
	if fov := pipe.DepthFieldOfView(); fov.Horizontal == 0 || fov.Vertical == 0 {
		t.Errorf("DepthFieldOfView() = %+v, want non-zero", fov)
	}
}
