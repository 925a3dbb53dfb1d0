package surface

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrNoDisplay is returned when no browser is connected to show fullscreen.
var ErrNoDisplay = errors.New("no browser connected")

// Window is the fullscreen.Window of the connected browsers. Mode changes are
// requested from every browser; the reported state is whatever a browser
// last said about itself.
type Window struct {
	hub *ClientHub

	mu       sync.Mutex
	reported map[string]bool
}

func NewWindow(hub *ClientHub) *Window {
	return &Window{hub: hub, reported: make(map[string]bool)}
}

// IsFullscreen reports true once any connected browser is fullscreen.
func (w *Window) IsFullscreen(ctx context.Context) (bool, error) {
	if w.hub.Connections() == 0 {
		return false, ErrNoDisplay
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, fullscreen := range w.reported {
		if fullscreen {
			return true, nil
		}
	}
	return false, nil
}

// SetFullscreen asks every browser to change mode.
func (w *Window) SetFullscreen(ctx context.Context, enabled bool) error {
	if w.hub.Connections() == 0 {
		return ErrNoDisplay
	}
	w.hub.Push(ClientMessage{Type: MessageSetFullscreen, Fullscreen: &enabled})
	return nil
}

// Report records a browser's own account of its mode.
func (w *Window) Report(clientID string, fullscreen bool) {
	w.mu.Lock()
	w.reported[clientID] = fullscreen
	w.mu.Unlock()

	log.Debug().Str("connection_id", clientID).Bool("fullscreen", fullscreen).Msg("fullscreen reported")
}

// Forget drops a disconnected browser's report.
func (w *Window) Forget(clientID string) {
	w.mu.Lock()
	delete(w.reported, clientID)
	w.mu.Unlock()
}
