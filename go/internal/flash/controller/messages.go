package controller

import (
	"context"

	"github.com/mcdev12/flashsum/go/internal/flash/events"
	"github.com/mcdev12/flashsum/go/internal/flash/session"
)

// message is anything the Run loop processes.
type message interface {
	apply(ctx context.Context, c *Controller)
}

type startMsg struct {
	cfg        session.Config
	autoRepeat *session.AutoRepeatConfig
	reply      chan<- error
}

func (m startMsg) apply(ctx context.Context, c *Controller) { c.handleStart(ctx, m) }

type fullscreenReadyMsg struct {
	generation uint64
	start      startMsg
	err        error
}

func (m fullscreenReadyMsg) apply(ctx context.Context, c *Controller) { c.handleFullscreenReady(ctx, m) }

type startResultMsg struct {
	generation uint64
	result     session.StartResult
	err        error
	reply      chan<- error
}

func (m startResultMsg) apply(ctx context.Context, c *Controller) { c.handleStartResult(ctx, m) }

type stopMsg struct {
	reply chan<- error
}

func (m stopMsg) apply(ctx context.Context, c *Controller) { c.handleStop(ctx, m) }

type dismissMsg struct {
	reply chan<- error
}

func (m dismissMsg) apply(ctx context.Context, c *Controller) { c.handleDismiss(ctx, m) }

type eventMsg struct {
	notification events.Notification
}

func (m eventMsg) apply(_ context.Context, c *Controller) { c.handleEvent(m.notification) }

type submitReply struct {
	validation session.Validation
	err        error
}

type submitMsg struct {
	provided int64
	text     string
	isText   bool
	reply    chan<- submitReply
}

func (m submitMsg) apply(ctx context.Context, c *Controller) { c.handleSubmit(ctx, m) }

type submitResultMsg struct {
	sessionID uint64
	round     uint64
	result    session.SubmitResult
	err       error
	reply     chan<- submitReply
}

func (m submitResultMsg) apply(_ context.Context, c *Controller) { c.handleSubmitResult(m) }

type answerTextMsg struct {
	text string
}

func (m answerTextMsg) apply(_ context.Context, c *Controller) { c.state.AnswerText = m.text }

type markValidatedMsg struct {
	reply chan<- error
}

func (m markValidatedMsg) apply(ctx context.Context, c *Controller) { c.handleMarkValidated(ctx, m) }

type acknowledgeMsg struct {
	sessionID uint64
	reply     chan<- error
}

func (m acknowledgeMsg) apply(ctx context.Context, c *Controller) { c.handleAcknowledge(ctx, m) }

// waitingResultMsg carries the folded auto-repeat payload of mark_validated
// and acknowledge_complete.
type waitingResultMsg struct {
	command   string
	sessionID uint64
	round     uint64
	waiting   *events.AutoRepeatWaiting
	err       error
	reply     chan<- error
}

func (m waitingResultMsg) apply(_ context.Context, c *Controller) { c.handleWaitingResult(m) }

type cancelAutoRepeatMsg struct {
	reply chan<- error
}

func (m cancelAutoRepeatMsg) apply(ctx context.Context, c *Controller) {
	c.handleCancelAutoRepeat(ctx, m)
}

type commandResultMsg struct {
	command string
	err     error
	reply   chan<- error
}

func (m commandResultMsg) apply(_ context.Context, c *Controller) { c.handleCommandResult(m) }

type bridgeTickMsg struct {
	token uint64
}

func (m bridgeTickMsg) apply(_ context.Context, c *Controller) { c.handleBridgeTick(m) }

type snapshotMsg struct {
	reply chan<- State
}

func (m snapshotMsg) apply(_ context.Context, c *Controller) { m.reply <- c.state.Clone() }
