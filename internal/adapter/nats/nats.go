// Package nats implements the event stream ports using NATS JetStream.
package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/apfabric/apfabric/internal/port/events"
)

const streamName = "APFABRIC"

// Stream publishes and consumes invoice processing events over JetStream.
type Stream struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect establishes a connection to NATS and ensures the JetStream stream
// capturing invoice events exists.
func Connect(ctx context.Context, url string) (*Stream, error) {
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
		Subjects: []string{"invoices.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Stream{nc: nc, js: js}, nil
}

var (
	_ events.Publisher  = (*Stream)(nil)
	_ events.Subscriber = (*Stream)(nil)
)

// Publish sends a message to the given subject.
func (s *Stream) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := s.js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for messages on the given subject.
func (s *Stream) Subscribe(ctx context.Context, subject string, handler events.Handler) (func(), error) {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		dispatch(handler, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

// ackableMsg is the slice of jetstream.Msg the dispatch loop needs.
type ackableMsg interface {
	Subject() string
	Data() []byte
	Ack() error
	Nak() error
}

// dispatch runs the handler and acknowledges the message, naking it for
// redelivery when the handler fails.
func dispatch(handler events.Handler, msg ackableMsg) {
	if err := handler(msg.Subject(), msg.Data()); err != nil {
		slog.Error("event handler failed", "subject", msg.Subject(), "error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			slog.Error("nats nak failed", "error", nakErr)
		}
		return
	}
	if ackErr := msg.Ack(); ackErr != nil {
		slog.Error("nats ack failed", "error", ackErr)
	}
}

// Close shuts down the NATS connection.
func (s *Stream) Close() error {
	s.nc.Close()
	return nil
}
