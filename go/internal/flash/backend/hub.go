package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/flashsum/go/internal/flash/events"
	"github.com/rs/zerolog/log"
)

// ErrBroadcastFull is returned when the hub cannot queue another event.
var ErrBroadcastFull = errors.New("broadcast channel full")

// Hub fans backend events out to every WebSocket subscriber in emission order.
type Hub struct {
	connections map[*subscriber]bool
	mu          sync.RWMutex

	upgrader websocket.Upgrader
	config   HubConfig

	broadcastCh chan []byte
}

type subscriber struct {
	id          string
	conn        *websocket.Conn
	send        chan []byte
	hub         *Hub
	connectedAt time.Time
}

// HubConfig holds configuration for subscriber connections.
type HubConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultHubConfig returns default subscriber configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewHub(config HubConfig) *Hub {
	return &Hub{
		connections: make(map[*subscriber]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan []byte, 1000),
	}
}

// Start processes broadcasts until ctx is cancelled.
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("event hub started")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			log.Info().Msg("event hub shutting down")
			return
		case data := <-h.broadcastCh:
			h.broadcast(data)
		}
	}
}

// PublishEvent queues ev for every subscriber. It never blocks the engine.
func (h *Hub) PublishEvent(ctx context.Context, ev *events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	select {
	case h.broadcastCh <- data:
		return nil
	default:
		log.Warn().Str("event_type", string(ev.Type)).Msg("broadcast channel full, dropping event")
		return ErrBroadcastFull
	}
}

// ServeHTTP upgrades the request into an event subscription.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the error response
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	s := &subscriber{
		id:          uuid.New().String(),
		conn:        conn,
		send:        make(chan []byte, h.config.SendBuffer),
		hub:         h,
		connectedAt: time.Now(),
	}
	h.register(s)

	go s.writePump()
	go s.readPump()

	log.Info().
		Str("connection_id", s.id).
		Str("remote_addr", r.RemoteAddr).
		Msg("event subscriber connected")
}

// Connections returns the number of live subscribers.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

func (h *Hub) register(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[s] = true

	log.Debug().
		Str("connection_id", s.id).
		Int("total_connections", len(h.connections)).
		Msg("subscriber registered")
}

func (h *Hub) unregister(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.connections[s]; ok {
		delete(h.connections, s)
		close(s.send)

		log.Info().
			Str("connection_id", s.id).
			Dur("connected_for", time.Since(s.connectedAt)).
			Msg("event subscriber disconnected")
	}
}

func (h *Hub) broadcast(data []byte) {
	var slow []*subscriber
	h.mu.RLock()
	delivered := len(h.connections)
	for s := range h.connections {
		select {
		case s.send <- data:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	// a subscriber that cannot keep up would see a gap; drop it so it reconnects
	for _, s := range slow {
		log.Warn().Str("connection_id", s.id).Msg("subscriber send buffer full, closing connection")
		h.unregister(s)
		s.conn.Close()
	}

	log.Debug().Int("connections", delivered-len(slow)).Msg("event broadcasted")
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.connections))
	for s := range h.connections {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		h.unregister(s)
	}
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(s.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
		s.hub.unregister(s)
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.hub.config.WriteTimeout))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", s.id).Msg("failed to write event")
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.hub.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", s.id).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump only services control frames; subscribers have nothing to say.
func (s *subscriber) readPump() {
	defer func() {
		s.hub.unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(s.hub.config.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.hub.config.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.hub.config.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", s.id).Msg("unexpected WebSocket close error")
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.hub.config.ReadTimeout))
	}
}

// AllowOrigins accepts WebSocket upgrades from the listed origins; "*" or an
// absent Origin header passes.
func AllowOrigins(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}
