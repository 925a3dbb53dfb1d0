// Package backend serves the flash sum engine: the JSON command API, the
// WebSocket event hub and the optional JetStream mirror of the event stream.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flashsum/go/internal/flash/engine"
	"github.com/mcdev12/flashsum/go/internal/flash/events"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// EventSink receives every enveloped event.
type EventSink interface {
	PublishEvent(ctx context.Context, ev *events.Event) error
}

// Envelope stamps each engine notification once so every transport carries
// the same event id and timestamp.
type Envelope struct {
	clock clockwork.Clock
	sinks []EventSink
}

func NewEnvelope(clock clockwork.Clock, sinks ...EventSink) *Envelope {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Envelope{clock: clock, sinks: sinks}
}

// Publish implements engine.Publisher.
func (e *Envelope) Publish(ctx context.Context, n events.Notification) error {
	ev, err := events.New(n, e.clock.Now())
	if err != nil {
		return err
	}

	var errs []error
	for _, sink := range e.sinks {
		if err := sink.PublishEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config holds configuration for the backend service.
type Config struct {
	Engine         engine.Config
	Hub            HubConfig
	JetStream      *JetStreamConfig // nil disables the JetStream mirror
	AllowedOrigins []string
}

func DefaultConfig() Config {
	return Config{
		Engine:         engine.DefaultConfig(),
		Hub:            DefaultHubConfig(),
		AllowedOrigins: []string{"*"},
	}
}

// Service owns the engine and its event transports.
type Service struct {
	config    Config
	engine    *engine.Engine
	hub       *Hub
	jetstream *JetStreamPublisher
	counters  *engine.EventCounters
}

func NewService(clock clockwork.Clock, config Config) (*Service, error) {
	hub := NewHub(config.Hub)
	sinks := []EventSink{hub}

	var js *JetStreamPublisher
	if config.JetStream != nil {
		var err error
		js, err = NewJetStreamPublisher(*config.JetStream)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
		}
		sinks = append(sinks, js)
	}

	counters := engine.NewEventCounters()
	publisher := engine.NewMetricPublisher(NewEnvelope(clock, sinks...), counters)

	return &Service{
		config:    config,
		engine:    engine.New(clock, publisher, config.Engine),
		hub:       hub,
		jetstream: js,
		counters:  counters,
	}, nil
}

// Start runs the event hub until ctx is cancelled, then stops the engine.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("jetstream", s.jetstream != nil).Msg("starting flash backend service")

	s.hub.Start(ctx)

	log.Info().Msg("flash backend service shutting down")
	return s.Stop()
}

// Stop shuts down the engine and the JetStream connection.
func (s *Service) Stop() error {
	var errs []error
	if err := s.engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close engine: %w", err))
	}
	if s.jetstream != nil {
		if err := s.jetstream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close JetStream publisher: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Handler returns the full HTTP surface: routes, CORS and h2c.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}

// Stats returns the publish counters and the subscriber count.
func (s *Service) Stats() map[string]interface{} {
	return map[string]interface{}{
		"service":     "flashd",
		"running":     s.engine.Running(),
		"connections": s.hub.Connections(),
		"events":      s.counters.Snapshot(),
	}
}
