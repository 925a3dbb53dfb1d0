package surface

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Messages pushed to browsers.
const (
	MessageView          = "view"           // {"type":"view","view":{...}}
	MessageSetFullscreen = "set_fullscreen" // {"type":"set_fullscreen","fullscreen":true}
	MessageError         = "error"
)

// Messages browsers send.
const (
	MessageFullscreenState = "fullscreen_state" // the browser's fullscreen mode changed
	MessageEscape          = "escape"           // the user pressed Escape
	MessageAnswerText      = "answer_text"      // the answer field was edited
)

// ClientMessage is the envelope of every surface WebSocket message.
type ClientMessage struct {
	Type       string          `json:"type"`
	View       json.RawMessage `json:"view,omitempty"`
	Fullscreen *bool           `json:"fullscreen,omitempty"`
	Text       string          `json:"text,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// ClientHandler reacts to browser messages. It is called from the
// connection's read goroutine.
type ClientHandler interface {
	HandleClientMessage(clientID string, msg ClientMessage)
	ClientGone(clientID string)
}

// ClientHubConfig holds configuration for browser connections.
type ClientHubConfig struct {
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	PingInterval      time.Duration
	MaxMessageSize    int64
	SendBuffer        int
	MessagesPerSecond float64
	MessageBurst      int
	CheckOrigin       func(r *http.Request) bool
}

func DefaultClientHubConfig() ClientHubConfig {
	return ClientHubConfig{
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       60 * time.Second,
		PingInterval:      30 * time.Second,
		MaxMessageSize:    4096,
		SendBuffer:        64,
		MessagesPerSecond: 20,
		MessageBurst:      40,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// ClientHub keeps the connected browsers and pushes to all of them. The last
// view is replayed to every new connection.
type ClientHub struct {
	clients map[*client]bool
	mu      sync.RWMutex

	upgrader websocket.Upgrader
	config   ClientHubConfig
	handler  ClientHandler

	broadcastCh chan []byte

	lastMu   sync.Mutex
	lastView []byte
}

type client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	hub     *ClientHub
	limiter *rate.Limiter
}

func NewClientHub(config ClientHubConfig) *ClientHub {
	return &ClientHub{
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan []byte, 256),
	}
}

// SetHandler installs the receiver of browser messages. It must be called
// before the hub serves connections.
func (h *ClientHub) SetHandler(handler ClientHandler) {
	h.handler = handler
}

// Start processes broadcasts until ctx is cancelled.
func (h *ClientHub) Start(ctx context.Context) {
	log.Info().Msg("client hub started")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			log.Info().Msg("client hub shutting down")
			return
		case data := <-h.broadcastCh:
			h.broadcast(data)
		}
	}
}

// PushView queues a rendered view for every browser and remembers it for
// late joiners.
func (h *ClientHub) PushView(v any) {
	view, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal view")
		return
	}
	data, err := json.Marshal(ClientMessage{Type: MessageView, View: view})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal view message")
		return
	}

	h.lastMu.Lock()
	h.lastView = data
	h.lastMu.Unlock()

	h.enqueue(data)
}

// Push queues msg for every browser.
func (h *ClientHub) Push(msg ClientMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("failed to marshal client message")
		return
	}
	h.enqueue(data)
}

func (h *ClientHub) enqueue(data []byte) {
	select {
	case h.broadcastCh <- data:
	default:
		log.Warn().Msg("client broadcast channel full, dropping message")
	}
}

// ServeHTTP upgrades the request into a browser connection.
func (h *ClientHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	c := &client{
		id:      uuid.New().String(),
		conn:    conn,
		send:    make(chan []byte, h.config.SendBuffer),
		hub:     h,
		limiter: rate.NewLimiter(rate.Limit(h.config.MessagesPerSecond), h.config.MessageBurst),
	}
	h.register(c)

	h.lastMu.Lock()
	last := h.lastView
	h.lastMu.Unlock()
	if last != nil {
		c.offer(last)
	}

	go c.writePump()
	go c.readPump()

	log.Info().Str("connection_id", c.id).Str("remote_addr", r.RemoteAddr).Msg("browser connected")
}

// Connections returns the number of connected browsers.
func (h *ClientHub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *ClientHub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *ClientHub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	log.Info().Str("connection_id", c.id).Msg("browser disconnected")
	if h.handler != nil {
		h.handler.ClientGone(c.id)
	}
}

func (h *ClientHub) broadcast(data []byte) {
	// sends are non-blocking, so holding the read lock keeps send channels open
	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Warn().Str("connection_id", c.id).Msg("browser send buffer full, closing connection")
		h.unregister(c)
		c.conn.Close()
	}
}

func (h *ClientHub) closeAll() {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.unregister(c)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.id).Msg("failed to write to browser")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.id).Msg("unexpected WebSocket close error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))

		if !c.limiter.Allow() {
			log.Warn().Str("connection_id", c.id).Msg("browser message rate limited")
			c.reply(ClientMessage{Type: MessageError, Error: "rate limit exceeded"})
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Debug().Err(err).Str("connection_id", c.id).Msg("ignoring malformed browser message")
			c.reply(ClientMessage{Type: MessageError, Error: "malformed message"})
			continue
		}
		if c.hub.handler != nil {
			c.hub.handler.HandleClientMessage(c.id, msg)
		}
	}
}

// reply sends msg to this browser only.
func (c *client) reply(msg ClientMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.offer(data)
}

// offer queues data unless the client is gone or its buffer is full.
func (c *client) offer(data []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
