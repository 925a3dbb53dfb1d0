package controller

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flashsum/go/internal/flash/events"
	"github.com/mcdev12/flashsum/go/internal/flash/session"
	"github.com/rs/zerolog/log"
)

// Gateway issues commands to the session backend.
type Gateway interface {
	StartSession(ctx context.Context, cfg session.Config, autoRepeat *session.AutoRepeatConfig) (session.StartResult, error)
	StopSession(ctx context.Context) error
	CancelAutoRepeat(ctx context.Context) error
	SubmitAnswer(ctx context.Context, sessionID uint64, provided int64) (session.SubmitResult, error)
	SubmitAnswerText(ctx context.Context, sessionID uint64, text string) (session.SubmitResult, error)
	MarkValidated(ctx context.Context, sessionID uint64) (*events.AutoRepeatWaiting, error)
	AcknowledgeComplete(ctx context.Context, sessionID uint64) (*events.AutoRepeatWaiting, error)
}

// Screen is the fullscreen capability the controller drives.
type Screen interface {
	// TrySet requests a mode change without waiting for it.
	TrySet(enabled bool)
	// EnterAndConfirm enters fullscreen and returns once the window reports it.
	EnterAndConfirm(ctx context.Context) error
}

// Observer is called with a snapshot after every processed message. It runs on
// the controller loop and must not block.
type Observer func(State)

// Config tunes the controller.
type Config struct {
	BridgeInterval time.Duration // refresh rate of the local auto-repeat countdown
	CommandTimeout time.Duration
	InboxSize      int
}

func DefaultConfig() Config {
	return Config{
		BridgeInterval: 250 * time.Millisecond,
		CommandTimeout: 15 * time.Second,
		InboxSize:      256,
	}
}

// Controller keeps the local session state in step with the backend. All
// state is owned by the Run loop: public methods and event delivery post
// messages to it, and backend commands run off-loop so events keep flowing
// while a command is in flight.
type Controller struct {
	gateway   Gateway
	screen    Screen
	clock     clockwork.Clock
	config    Config
	observers []Observer

	inbox chan message
	done  chan struct{}

	// Loop-owned.
	state       State
	generation  uint64 // bumped by start and stop; older command results are stale
	round       uint64 // bumped whenever the tracked round changes; older answer results are stale
	bridge      *bridge
	bridgeToken uint64
}

// New creates a controller. Run must be called for it to process anything.
func New(gateway Gateway, screen Screen, clock clockwork.Clock, config Config, observers ...Observer) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	defaults := DefaultConfig()
	if config.BridgeInterval <= 0 {
		config.BridgeInterval = defaults.BridgeInterval
	}
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = defaults.CommandTimeout
	}
	if config.InboxSize <= 0 {
		config.InboxSize = defaults.InboxSize
	}

	return &Controller{
		gateway:   gateway,
		screen:    screen,
		clock:     clock,
		config:    config,
		observers: observers,
		inbox:     make(chan message, config.InboxSize),
		done:      make(chan struct{}),
		state:     State{Phase: PhaseIdle},
	}
}

// Run processes messages until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	defer c.stopBridge()

	log.Info().Msg("Session controller started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Session controller stopped")
			return ctx.Err()
		case m := <-c.inbox:
			m.apply(ctx, c)
			c.notify()
		}
	}
}

// Start begins a new session. It is a no-op unless the controller is idle.
// On success the backend has accepted the session; its events follow.
func (c *Controller) Start(ctx context.Context, cfg session.Config, autoRepeat *session.AutoRepeatConfig) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, startMsg{cfg: cfg, autoRepeat: autoRepeat, reply: reply}); err != nil {
		return err
	}
	return await(ctx, c, reply)
}

// Stop cancels the session from starting, countdown or flashing. Local state is
// cleared immediately; the backend is told in the background.
func (c *Controller) Stop(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, stopMsg{reply: reply}); err != nil {
		return err
	}
	return await(ctx, c, reply)
}

// Dismiss leaves the complete screen and returns to idle.
func (c *Controller) Dismiss(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, dismissMsg{reply: reply}); err != nil {
		return err
	}
	return await(ctx, c, reply)
}

// Deliver hands one backend event to the controller. Events are applied in
// delivery order.
func (c *Controller) Deliver(ctx context.Context, n events.Notification) error {
	return c.send(ctx, eventMsg{notification: n})
}

// SubmitAnswer validates a numeric answer for the current session.
func (c *Controller) SubmitAnswer(ctx context.Context, provided int64) (session.Validation, error) {
	reply := make(chan submitReply, 1)
	if err := c.send(ctx, submitMsg{provided: provided, reply: reply}); err != nil {
		return session.Validation{}, err
	}
	r, err := awaitValue(ctx, c, reply)
	if err != nil {
		return session.Validation{}, err
	}
	return r.validation, r.err
}

// SubmitAnswerText validates a typed answer. Text that is not a single integer
// is rejected locally with a *session.ValidationInputError.
func (c *Controller) SubmitAnswerText(ctx context.Context, text string) (session.Validation, error) {
	reply := make(chan submitReply, 1)
	if err := c.send(ctx, submitMsg{text: text, isText: true, reply: reply}); err != nil {
		return session.Validation{}, err
	}
	r, err := awaitValue(ctx, c, reply)
	if err != nil {
		return session.Validation{}, err
	}
	return r.validation, r.err
}

// SetAnswerText records the answer being typed.
func (c *Controller) SetAnswerText(ctx context.Context, text string) error {
	return c.send(ctx, answerTextMsg{text: text})
}

// MarkValidated tells the backend the user has seen the validation.
func (c *Controller) MarkValidated(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, markValidatedMsg{reply: reply}); err != nil {
		return err
	}
	return await(ctx, c, reply)
}

// AcknowledgeComplete reveals the answer of a finished session. A zero id
// means the current session.
func (c *Controller) AcknowledgeComplete(ctx context.Context, sessionID uint64) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, acknowledgeMsg{sessionID: sessionID, reply: reply}); err != nil {
		return err
	}
	return await(ctx, c, reply)
}

// CancelAutoRepeat stops any further automatic sessions.
func (c *Controller) CancelAutoRepeat(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, cancelAutoRepeatMsg{reply: reply}); err != nil {
		return err
	}
	return await(ctx, c, reply)
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot(ctx context.Context) (State, error) {
	reply := make(chan State, 1)
	if err := c.send(ctx, snapshotMsg{reply: reply}); err != nil {
		return State{}, err
	}
	return awaitValue(ctx, c, reply)
}

func (c *Controller) send(ctx context.Context, m message) error {
	select {
	case c.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrNotRunning
	}
}

// post is used by off-loop goroutines to hand results back.
func (c *Controller) post(m message) {
	select {
	case c.inbox <- m:
	case <-c.done:
	}
}

func (c *Controller) notify() {
	if len(c.observers) == 0 {
		return
	}
	for _, observe := range c.observers {
		observe(c.state.Clone())
	}
}

func await(ctx context.Context, c *Controller, reply <-chan error) error {
	err, waitErr := awaitValue(ctx, c, reply)
	if waitErr != nil {
		return waitErr
	}
	return err
}

func awaitValue[T any](ctx context.Context, c *Controller, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-c.done:
		return zero, ErrNotRunning
	}
}
