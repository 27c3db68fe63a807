// Package telemetry publishes pipeline operational snapshots over MQTT so a
// fleet of capture nodes can be watched from one broker.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	depthcapture "github.com/e7canasta/orion-depth-capture"
)

// Config configures an MQTT telemetry publisher.
type Config struct {
	// BrokerURL is the broker address, e.g. "tcp://localhost:1883" (required).
	BrokerURL string

	// ClientID identifies this node on the broker. Empty generates
	// "depth-capture-<uuid>".
	ClientID string

	// TopicPrefix is prepended to all topics. Default "depthcapture".
	TopicPrefix string

	// Interval paces periodic stats publishing. Default 5s.
	Interval time.Duration

	// QoS is the MQTT quality of service for all publishes (0, 1 or 2).
	QoS byte
}

// Publisher pushes pipeline stats and scan events to an MQTT broker.
//
// Topics:
//
//	<prefix>/<client-id>/stats — periodic PipelineStats snapshots
//	<prefix>/<client-id>/scan  — scan completion events
type Publisher struct {
	client mqtt.Client
	cfg    Config
}

// scanEvent is the payload published on scan completion.
type scanEvent struct {
	Event     string    `json:"event"`
	File      string    `json:"file"`
	Format    string    `json:"format"`
	Timestamp time.Time `json:"timestamp"`
}

// New connects to the broker with fail-fast validation.
func New(cfg Config) (*Publisher, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("telemetry: broker URL is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "depth-capture-" + uuid.NewString()
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "depthcapture"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetOrderMatters(false)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("telemetry: timed out connecting to %s", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("telemetry: connecting to %s: %w", cfg.BrokerURL, err)
	}

	slog.Info("telemetry: connected to broker",
		"broker", cfg.BrokerURL,
		"client_id", cfg.ClientID,
	)
	return &Publisher{client: client, cfg: cfg}, nil
}

// Run publishes stats from statsFn every Interval until ctx is canceled.
// Blocking; run it on its own goroutine.
func (p *Publisher) Run(ctx context.Context, statsFn func() depthcapture.PipelineStats) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.PublishStats(statsFn()); err != nil {
				slog.Warn("telemetry: stats publish failed", "error", err)
			}
		}
	}
}

// PublishStats pushes one stats snapshot.
func (p *Publisher) PublishStats(stats depthcapture.PipelineStats) error {
	return p.publishJSON(p.topic("stats"), stats)
}

// PublishScanComplete pushes a scan completion event.
func (p *Publisher) PublishScanComplete(format depthcapture.FileFormat, file string) error {
	return p.publishJSON(p.topic("scan"), scanEvent{
		Event:     "scan_complete",
		File:      file,
		Format:    format.String(),
		Timestamp: time.Now(),
	})
}

// Close disconnects from the broker, letting in-flight publishes drain
// briefly.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

func (p *Publisher) topic(leaf string) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.TopicPrefix, p.cfg.ClientID, leaf)
}

func (p *Publisher) publishJSON(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telemetry: encoding payload: %w", err)
	}
	token := p.client.Publish(topic, p.cfg.QoS, false, data)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("telemetry: publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: publishing to %s: %w", topic, err)
	}
	return nil
}
