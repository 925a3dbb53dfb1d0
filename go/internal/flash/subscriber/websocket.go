package subscriber

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// WebSocketConfig holds configuration for the WebSocket event source
type WebSocketConfig struct {
	URL              string // e.g. ws://localhost:8080/ws/events
	HandshakeTimeout time.Duration
	ReconnectWait    time.Duration
	MaxReconnectWait time.Duration
	MaxMessageSize   int64

	// Clock paces reconnect backoff; nil means the real clock.
	Clock clockwork.Clock
}

// DefaultWebSocketConfig returns default WebSocket source configuration
func DefaultWebSocketConfig(url string) WebSocketConfig {
	return WebSocketConfig{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		ReconnectWait:    500 * time.Millisecond,
		MaxReconnectWait: 10 * time.Second,
		MaxMessageSize:   64 * 1024,
	}
}

// WebSocketSource reads events from the backend's event hub and reconnects
// with backoff whenever the connection drops.
type WebSocketSource struct {
	config WebSocketConfig
	clock  clockwork.Clock
	dialer *websocket.Dialer
	sink   Sink
}

func NewWebSocketSource(config WebSocketConfig, sink Sink) *WebSocketSource {
	clock := config.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &WebSocketSource{
		config: config,
		clock:  clock,
		dialer: &websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout},
		sink:   sink,
	}
}

// Run connects and delivers events until ctx is cancelled.
func (s *WebSocketSource) Run(ctx context.Context) error {
	wait := s.config.ReconnectWait
	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			log.Info().Str("url", s.config.URL).Msg("WebSocket event source stopped")
			return nil
		}
		if connected {
			wait = s.config.ReconnectWait
		}
		log.Warn().Err(err).Str("url", s.config.URL).Dur("retry_in", wait).Msg("WebSocket event source disconnected")

		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(wait):
		}
		wait = min(wait*2, s.config.MaxReconnectWait)
	}
}

// session runs one connection. It reports whether the dial succeeded.
func (s *WebSocketSource) session(ctx context.Context) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.config.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial event hub: %w", err)
	}
	defer conn.Close()

	if s.config.MaxMessageSize > 0 {
		conn.SetReadLimit(s.config.MaxMessageSize)
	}
	log.Info().Str("url", s.config.URL).Msg("Connected to event hub")

	// ReadMessage does not take a context; closing the connection unblocks it.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		msgType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true, errors.New("event hub closed the connection")
			}
			return true, fmt.Errorf("read event: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if err := dispatch(ctx, s.sink, message, "websocket"); err != nil {
			return true, fmt.Errorf("deliver event: %w", err)
		}
	}
}
