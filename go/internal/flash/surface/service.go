// Package surface is the trainer's foreground: it owns the session controller,
// feeds it backend events, serves the browser UI its rendered views and
// drives browser fullscreen.
package surface

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flashsum/go/internal/flash/controller"
	"github.com/mcdev12/flashsum/go/internal/flash/fullscreen"
	"github.com/mcdev12/flashsum/go/internal/flash/history"
	"github.com/mcdev12/flashsum/go/internal/flash/session"
	"github.com/mcdev12/flashsum/go/internal/flash/subscriber"
	"github.com/mcdev12/flashsum/go/internal/flash/view"
	"github.com/rs/zerolog/log"
)

// Options wires a surface service.
type Options struct {
	Clock      clockwork.Clock
	Gateway    controller.Gateway
	Controller controller.Config
	Fullscreen fullscreen.Config
	Hub        ClientHubConfig

	// Window overrides the browser-backed window, e.g. with fullscreen.Virtual.
	Window fullscreen.Window

	// History, when set, records every validated round.
	History       *history.Store
	HistoryBuffer int

	// Defaults applied to a start request without a config.
	Session    session.Config
	AutoRepeat *session.AutoRepeatConfig

	AllowedOrigins []string
}

// Service ties the controller to its collaborators.
type Service struct {
	opts Options

	hub        *ClientHub
	browser    *Window
	coord      *fullscreen.Coordinator
	controller *controller.Controller
	recorder   *history.Recorder
}

func NewService(opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.HistoryBuffer <= 0 {
		opts.HistoryBuffer = 64
	}

	s := &Service{opts: opts}
	s.hub = NewClientHub(opts.Hub)
	s.hub.SetHandler(s)

	window := opts.Window
	if window == nil {
		s.browser = NewWindow(s.hub)
		window = s.browser
	}
	s.coord = fullscreen.New(window, opts.Clock, opts.Fullscreen)

	observers := []controller.Observer{s.pushView}
	if opts.History != nil {
		s.recorder = history.NewRecorder(opts.History, opts.Clock, opts.HistoryBuffer)
		observers = append(observers, s.recorder.Observe)
	}
	s.controller = controller.New(opts.Gateway, s.coord, opts.Clock, opts.Controller, observers...)

	return s
}

// Controller returns the session controller; event sources deliver into it.
func (s *Service) Controller() *controller.Controller {
	return s.controller
}

// Hub returns the browser hub.
func (s *Service) Hub() *ClientHub {
	return s.hub
}

// Run starts every component and the given event sources, and blocks until
// ctx is cancelled and all of them have returned.
func (s *Service) Run(ctx context.Context, sources ...subscriber.Source) {
	log.Info().
		Int("sources", len(sources)).
		Bool("history", s.recorder != nil).
		Bool("browser_fullscreen", s.browser != nil).
		Msg("starting surface service")

	// the first view is the idle setup screen
	s.pushView(controller.State{Phase: controller.PhaseIdle})

	var wg sync.WaitGroup
	run := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
			log.Debug().Str("component", name).Msg("surface component stopped")
		}()
	}

	run("client hub", func() { s.hub.Start(ctx) })
	run("fullscreen", func() { s.coord.Run(ctx) })
	run("controller", func() { s.controller.Run(ctx) })
	if s.recorder != nil {
		run("history", func() { s.recorder.Run(ctx) })
	}
	for _, src := range sources {
		run("event source", func() {
			if err := src.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("event source failed")
			}
		})
	}

	<-ctx.Done()
	wg.Wait()
	log.Info().Msg("surface service stopped")
}

func (s *Service) pushView(st controller.State) {
	s.hub.PushView(view.Render(st))
}

// HandleClientMessage implements ClientHandler.
func (s *Service) HandleClientMessage(clientID string, msg ClientMessage) {
	switch msg.Type {
	case MessageFullscreenState:
		if s.browser != nil && msg.Fullscreen != nil {
			s.browser.Report(clientID, *msg.Fullscreen)
		}

	case MessageEscape:
		// Escape leaves fullscreen in the browser; the running session goes with it
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.controller.Stop(ctx); err != nil {
			log.Warn().Err(err).Str("connection_id", clientID).Msg("stop on escape failed")
		}

	case MessageAnswerText:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.controller.SetAnswerText(ctx, msg.Text); err != nil {
			log.Warn().Err(err).Str("connection_id", clientID).Msg("answer text update failed")
		}

	default:
		log.Debug().Str("connection_id", clientID).Str("type", msg.Type).Msg("ignoring browser message")
	}
}

// ClientGone implements ClientHandler.
func (s *Service) ClientGone(clientID string) {
	if s.browser != nil {
		s.browser.Forget(clientID)
	}
}
