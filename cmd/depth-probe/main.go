// depth-probe exercises the capture pipeline end to end: it opens a device
// (simulated or GStreamer-backed), polls frames at a consumer rate, runs an
// optional 3D scan sequence and prints final stats. Intended for bring-up
// and soak testing on capture nodes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	depthcapture "github.com/e7canasta/orion-depth-capture"
	"github.com/e7canasta/orion-depth-capture/device"
	"github.com/e7canasta/orion-depth-capture/telemetry"
)

// probeConfig mirrors the flags for file-based runs.
type probeConfig struct {
	Device struct {
		Kind        string `yaml:"kind"` // "sim" or "gst"
		ColorDevice string `yaml:"color_device"`
		DepthDevice string `yaml:"depth_device"`
	} `yaml:"device"`

	Streams struct {
		Color string `yaml:"color"` // 480p, 720p, 1080p
		Depth string `yaml:"depth"` // 240p, 480p
	} `yaml:"streams"`

	Scan struct {
		Enabled  bool    `yaml:"enabled"`
		Mode     string  `yaml:"mode"`
		Seconds  float64 `yaml:"seconds"`
		File     string  `yaml:"file"`
		Format   string  `yaml:"format"`
		Solidify bool    `yaml:"solidify"`
	} `yaml:"scan"`

	Telemetry struct {
		Broker   string `yaml:"broker"`
		ClientID string `yaml:"client_id"`
	} `yaml:"telemetry"`
}

var (
	configPath = flag.String("config", "", "YAML config file (flags override)")
	deviceKind = flag.String("device", "sim", "Device backend: sim or gst")
	colorNode  = flag.String("color-device", "/dev/video2", "v4l2 node of the color sensor (gst)")
	depthNode  = flag.String("depth-device", "", "v4l2 node of the depth sensor (gst, empty = color only)")
	colorRes   = flag.String("color", "480p", "Color stream mode: 480p, 720p, 1080p")
	depthRes   = flag.String("depth", "480p", "Depth stream mode: 240p, 480p")
	pollHz     = flag.Float64("poll-hz", 60.0, "Consumer poll rate")
	duration   = flag.Duration("duration", 10*time.Second, "Run duration (0 = until CTRL+C)")
	doScan     = flag.Bool("scan", false, "Run a 3D scan sequence")
	scanFor    = flag.Duration("scan-for", 3*time.Second, "Scan accumulation window")
	scanMode   = flag.String("scan-mode", "object", "Scan mode: variable, object, face, head, body")
	scanFile   = flag.String("scan-file", "scan.obj", "Reconstruction output file")
	scanFormat = flag.String("scan-format", "obj", "Reconstruction format: obj, ply, stl")
	solidify   = flag.Bool("solidify", true, "Solidify the reconstructed mesh")
	broker     = flag.String("mqtt-broker", "", "MQTT broker for telemetry (empty = disabled)")
	verbose    = flag.Bool("v", false, "Debug logging")
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *configPath != "" {
		if err := applyConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	color, err := parseColorRes(*colorRes)
	if err != nil {
		log.Fatal(err)
	}
	depth, err := parseDepthRes(*depthRes)
	if err != nil {
		log.Fatal(err)
	}

	dev, err := buildDevice()
	if err != nil {
		log.Fatalf("Failed to create device: %v", err)
	}

	features := depthcapture.FeatureColorStream | depthcapture.FeatureDepthStream
	if *doScan {
		features |= depthcapture.FeatureScan3D
	}

	pipe, err := depthcapture.New(depthcapture.Config{
		Device:          dev,
		ColorResolution: color,
		DepthResolution: depth,
		Features:        features,
	})
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}

	if err := pipe.Start(); err != nil {
		log.Fatalf("Failed to start pipeline: %v", err)
	}
	defer pipe.Close()

	log.Printf("Pipeline running: model=%s firmware=%s color=%s depth=%s",
		pipe.CameraModel(), pipe.CameraFirmware(), color, depth)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Interrupted, shutting down...")
		cancel()
	}()

	var pub *telemetry.Publisher
	if *broker != "" {
		pub, err = telemetry.New(telemetry.Config{BrokerURL: *broker})
		if err != nil {
			log.Fatalf("Failed to connect telemetry: %v", err)
		}
		defer pub.Close()
		go pub.Run(ctx, pipe.Stats)
	}

	if *doScan {
		go runScanSequence(ctx, pipe, pub)
	}

	pollLoop(ctx, pipe)

	stats := pipe.Stats()
	data, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Printf("%s\n", data)
}

// pollLoop polls the foreground frame at the configured consumer rate and
// logs a summary line each second.
func pollLoop(ctx context.Context, pipe depthcapture.Pipeline) {
	interval := time.Duration(float64(time.Second) / *pollHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	report := time.NewTicker(1 * time.Second)
	defer report.Stop()

	var fresh, stale uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, ok := pipe.AcquireLatest()
			if ok {
				fresh++
				slog.Debug("frame",
					"seq", frame.Seq,
					"trace_id", frame.TraceID,
					"color_bytes", len(frame.Color),
					"depth_bytes", len(frame.Depth),
				)
			} else {
				stale++
			}
		case <-report.C:
			s := pipe.Stats()
			log.Printf("produced=%d delivered=%d skipped=%d misses=%d (this run: fresh=%d stale=%d)",
				s.FramesProduced, s.FramesDelivered, s.FramesSkipped, s.PollMisses, fresh, stale)
		}
	}
}

// runScanSequence drives one start → accumulate → stop → reconstruct cycle.
func runScanSequence(ctx context.Context, pipe depthcapture.Pipeline, pub *telemetry.Publisher) {
	format, err := parseFormat(*scanFormat)
	if err != nil {
		log.Printf("Scan skipped: %v", err)
		return
	}
	mode, err := parseScanMode(*scanMode)
	if err != nil {
		log.Printf("Scan skipped: %v", err)
		return
	}

	if err := pipe.ConfigureScanning(mode, *solidify, true); err != nil {
		log.Printf("Scan skipped: %v", err)
		return
	}
	pipe.RequestStartScan()
	log.Printf("Scan started, accumulating for %v", *scanFor)

	select {
	case <-ctx.Done():
		return
	case <-time.After(*scanFor):
	}

	pipe.RequestStopScan()
	if err := pipe.RequestReconstruct(format, *scanFile); err != nil {
		log.Printf("Reconstruction request failed: %v", err)
		return
	}

	for !pipe.ScanCompleted() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
	log.Printf("Scan complete: %s", *scanFile)
	if pub != nil {
		if err := pub.PublishScanComplete(format, *scanFile); err != nil {
			log.Printf("Scan event publish failed: %v", err)
		}
	}
}

func buildDevice() (depthcapture.Device, error) {
	switch *deviceKind {
	case "sim":
		return device.NewSimDevice(device.SimConfig{
			SampleInterval: 16 * time.Millisecond,
		}), nil
	case "gst":
		return device.NewGstDevice(device.GstConfig{
			ColorDevice: *colorNode,
			DepthDevice: *depthNode,
			Model:       depthcapture.ModelSR300,
		})
	default:
		return nil, fmt.Errorf("unknown device backend %q (want sim or gst)", *deviceKind)
	}
}

// applyConfigFile loads a YAML run config and pushes its values into the
// corresponding flags, so explicit flags still win (flag.Parse ran first,
// file values only replace defaults the user did not touch).
func applyConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var cfg probeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	apply := func(name, value string) {
		if value != "" && !set[name] {
			flag.Set(name, value)
		}
	}

	apply("device", cfg.Device.Kind)
	apply("color-device", cfg.Device.ColorDevice)
	apply("depth-device", cfg.Device.DepthDevice)
	apply("color", cfg.Streams.Color)
	apply("depth", cfg.Streams.Depth)
	if cfg.Scan.Enabled && !set["scan"] {
		flag.Set("scan", "true")
	}
	if cfg.Scan.Seconds > 0 && !set["scan-for"] {
		flag.Set("scan-for", time.Duration(cfg.Scan.Seconds*float64(time.Second)).String())
	}
	apply("scan-mode", cfg.Scan.Mode)
	apply("scan-file", cfg.Scan.File)
	apply("scan-format", cfg.Scan.Format)
	if cfg.Scan.Solidify && !set["solidify"] {
		flag.Set("solidify", "true")
	}
	apply("mqtt-broker", cfg.Telemetry.Broker)
	return nil
}

func parseColorRes(s string) (depthcapture.ColorResolution, error) {
	switch s {
	case "480p":
		return depthcapture.ColorRes480p, nil
	case "720p":
		return depthcapture.ColorRes720p, nil
	case "1080p":
		return depthcapture.ColorRes1080p, nil
	default:
		return 0, fmt.Errorf("unknown color mode %q (want 480p, 720p or 1080p)", s)
	}
}

func parseDepthRes(s string) (depthcapture.DepthResolution, error) {
	switch s {
	case "240p":
		return depthcapture.DepthRes240p, nil
	case "480p":
		return depthcapture.DepthRes480p, nil
	default:
		return 0, fmt.Errorf("unknown depth mode %q (want 240p or 480p)", s)
	}
}

func parseScanMode(s string) (depthcapture.ScanMode, error) {
	switch s {
	case "variable":
		return depthcapture.ScanVariable, nil
	case "object":
		return depthcapture.ScanObject, nil
	case "face":
		return depthcapture.ScanFace, nil
	case "head":
		return depthcapture.ScanHead, nil
	case "body":
		return depthcapture.ScanBody, nil
	default:
		return 0, fmt.Errorf("unknown scan mode %q", s)
	}
}

func parseFormat(s string) (depthcapture.FileFormat, error) {
	switch s {
	case "obj":
		return depthcapture.FormatOBJ, nil
	case "ply":
		return depthcapture.FormatPLY, nil
	case "stl":
		return depthcapture.FormatSTL, nil
	default:
		return 0, fmt.Errorf("unknown scan format %q (want obj, ply or stl)", s)
	}
}
