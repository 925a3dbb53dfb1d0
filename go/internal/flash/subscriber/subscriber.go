// Package subscriber feeds backend events into a Sink from one of the event
// transports the backend publishes on.
package subscriber

import (
	"context"

	"github.com/mcdev12/flashsum/go/internal/flash/events"
	"github.com/rs/zerolog/log"
)

// Sink receives decoded events in the order they arrived.
type Sink interface {
	Deliver(ctx context.Context, n events.Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n events.Notification) error

func (f SinkFunc) Deliver(ctx context.Context, n events.Notification) error {
	return f(ctx, n)
}

// Source is a running event subscription.
type Source interface {
	Run(ctx context.Context) error
}

// dispatch decodes one raw envelope and delivers it. Malformed or unknown
// events are logged and skipped so one bad message cannot stall the stream.
func dispatch(ctx context.Context, sink Sink, raw []byte, origin string) error {
	event, n, err := events.DecodeMessage(raw)
	if err != nil {
		l := log.Warn().Err(err).Str("origin", origin)
		if event != nil {
			l = l.Str("event_id", event.ID).Str("event_type", string(event.Type))
		}
		l.Msg("Skipping undecodable event")
		return nil
	}

	log.Debug().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("origin", origin).
		Msg("Delivering event")
	return sink.Deliver(ctx, n)
}
