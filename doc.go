// Package depthcapture implements a triple-buffered acquisition pipeline
// for depth cameras (color + depth streaming, optional 3D scanning).
//
// # Philosophy
//
// "Last writer wins. Freshness > Completeness-of-history."
//
// A render or game loop polling a camera must never block on the producer
// and must never observe a half-written frame. depthcapture serves exactly
// one producer thread and one logical consumer role through a triple-buffer
// handoff: the producer writes the background buffer, publishes it into the
// shared mid slot, and the consumer swaps the mid slot into its foreground
// buffer when it is newer. Frames may be skipped; they are never torn,
// queued, or delivered out of order.
//
// # Design Principles
//
//  1. One narrow lock: a single mutex guards only the identity of the mid
//     buffer slot during a swap, never contents while they are written
//  2. Blocking producer: the acquisition loop runs on a dedicated OS thread
//     and performs real blocking waits (no cooperative scheduling)
//  3. One-shot requests: scan start/stop/reconstruct flags set by the
//     consumer are observed and cleared exactly once by the producer
//  4. No backpressure: publishing never waits on the consumer
//  5. Operational stats: produced/delivered/skipped counters, not benchmarks
//
// # Architecture
//
// The core sits between a Device collaborator and the consumer:
//
//	Device (blocking samples) → Acquisition Loop → Triple Buffer → Consumer
//	                                  ↑ one-shot requests, feature bits
//
// Device discovery, format conversion and mesh parsing are external
// collaborators behind the Device/Scanner interfaces; implementations live
// in the device package (GStreamer-backed and simulated).
//
// # Basic Usage
//
// Producer side setup and consumer poll:
//
//	dev := device.NewSimDevice(device.SimConfig{})
//	pipe, err := depthcapture.New(depthcapture.Config{
//	    Device:          dev,
//	    ColorResolution: depthcapture.ColorRes480p,
//	    DepthResolution: depthcapture.DepthRes480p,
//	    Features:        depthcapture.FeatureColorStream | depthcapture.FeatureDepthStream,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := pipe.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer pipe.Close()
//
//	// Consumer loop (e.g. once per render tick)
//	for tick := range ticks {
//	    frame, fresh := pipe.AcquireLatest()
//	    if fresh {
//	        draw(frame.Color, frame.ColorWidth, frame.ColorHeight)
//	    }
//	    _ = tick
//	}
//
// 3D scanning:
//
//	pipe.EnableFeatures(depthcapture.FeatureScan3D)
//	pipe.ConfigureScanning(depthcapture.ScanObject, true, true)
//	pipe.RequestStartScan()
//	// ... accumulate for a while ...
//	pipe.RequestStopScan()
//	pipe.RequestReconstruct(depthcapture.FormatOBJ, "scan.obj")
//	for !pipe.ScanCompleted() {
//	    time.Sleep(50 * time.Millisecond)
//	}
//
// # Skip Semantics
//
// Skipped frames are EXPECTED and HEALTHY. A consumer polling at 60 Hz
// against a 30 fps producer sees PollMisses; a consumer polling at 1 Hz
// sees FramesSkipped. Both mean the handoff is doing its job: the consumer
// always holds the newest complete frame, never a stale backlog.
//
// # Frame Ownership
//
// AcquireLatest returns a *Frame the consumer owns until its next call.
// Holding it longer races the producer: a later call may rotate the buffer
// back into the background role. Copy out what must outlive the poll.
//
// # Lifecycle
//
//  1. New(cfg): validate config, size the three frame buffers
//  2. Start(): open the device, spawn the acquisition loop (no-op if Running)
//  3. AcquireLatest()/Request*(): normal operation
//  4. Stop(): join the loop, close the device, re-apply the feature set
//  5. Start() again resumes with the same features and fresh device handles
//
// Stop latency is bounded by the current iteration's worst-case duration
// (a blocking reconstruction is not interrupted), not by a fixed timeout.
package depthcapture
