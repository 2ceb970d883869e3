// Package nats implements the subscriber sink port on NATS JetStream so
// stream notifications reach out-of-process consumers.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const streamName = "STREAMFORGE"

// subjectPrefix is prepended to the notification kind to form the subject,
// e.g. chat.events.stream-delta.
const subjectPrefix = "chat.events."

// Publisher publishes stream notifications to NATS JetStream.
type Publisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the JetStream stream exists.
func Connect(ctx context.Context, url string) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectPrefix + ">"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Publisher{nc: nc, js: js}, nil
}

// Emit publishes the notification on its kind's subject. Publish failures
// are logged, never surfaced: a broker outage must not fail turn delivery.
func (p *Publisher) Emit(ctx context.Context, kind string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal notification for nats", "kind", kind, "error", err)
		return
	}
	if _, err := p.js.Publish(ctx, subjectPrefix+kind, data); err != nil {
		slog.Error("nats publish failed", "kind", kind, "error", err)
	}
}

// Close shuts down the NATS connection.
func (p *Publisher) Close() error {
	p.nc.Close()
	return nil
}
