package subscriber

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev12/flashsum/go/internal/flash/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConfig holds configuration for the JetStream event source
type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string // subscribed to once per known event type
	MaxReconnects int
	ReconnectWait time.Duration
	BufferSize    int
}

// DefaultJetStreamConfig returns default JetStream source configuration
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:           nats.DefaultURL,
		StreamName:    "FLASH_EVENTS",
		SubjectPrefix: "flash.events",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		BufferSize:    256,
	}
}

// JetStreamSource consumes backend events from JetStream. It uses an ordered,
// ephemeral consumer that only delivers new messages: replaying an old
// session's events would drive the controller through stale transitions.
type JetStreamSource struct {
	config JetStreamConfig
	sink   Sink
	nc     *nats.Conn
	js     jetstream.JetStream
}

// NewJetStreamSource connects to NATS.
func NewJetStreamSource(config JetStreamConfig, sink Sink) (*JetStreamSource, error) {
	opts := []nats.Option{
		nats.Name("flashsum-surface"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	return &JetStreamSource{config: config, sink: sink, nc: nc, js: js}, nil
}

// Run consumes until ctx is cancelled.
func (s *JetStreamSource) Run(ctx context.Context) error {
	stream, err := s.js.Stream(ctx, s.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumer, err := stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: events.Subjects(s.config.SubjectPrefix),
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create ordered consumer: %w", err)
	}

	log.Info().
		Str("stream", s.config.StreamName).
		Str("prefix", s.config.SubjectPrefix).
		Msg("starting JetStream event source")

	messageCh := make(chan jetstream.Msg, s.config.BufferSize)
	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("JetStream event source shutting down")
			return nil
		case msg := <-messageCh:
			if err := dispatch(ctx, s.sink, msg.Data(), msg.Subject()); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to deliver event")
			}
		}
	}
}

// Close closes the NATS connection.
func (s *JetStreamSource) Close() error {
	log.Info().Msg("closing JetStream event source")
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}
