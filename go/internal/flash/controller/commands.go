package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/flashsum/go/internal/flash/session"
	"github.com/rs/zerolog/log"
)

func (c *Controller) handleStart(ctx context.Context, m startMsg) {
	if c.state.Phase != PhaseIdle {
		log.Debug().Str("phase", string(c.state.Phase)).Msg("Start ignored: session already active")
		m.reply <- nil
		return
	}

	c.resetSession()
	c.state.SessionID = 0
	c.state.LastError = ""
	c.transition(PhaseStarting, "start")
	c.generation++
	generation := c.generation

	go func() {
		err := c.screen.EnterAndConfirm(ctx)
		c.post(fullscreenReadyMsg{generation: generation, start: m, err: err})
	}()
}

func (c *Controller) handleFullscreenReady(ctx context.Context, m fullscreenReadyMsg) {
	if m.generation != c.generation {
		if c.state.Phase == PhaseIdle {
			c.screen.TrySet(false)
		}
		m.start.reply <- ErrStartCancelled
		return
	}

	if m.err != nil {
		err := m.err
		if !errors.Is(err, ErrFullscreenUnavailable) {
			err = fmt.Errorf("%w: %w", ErrFullscreenUnavailable, err)
		}
		log.Warn().Err(err).Msg("Start aborted: fullscreen unavailable")
		c.transition(PhaseIdle, "fullscreen unavailable")
		c.screen.TrySet(false)
		c.state.LastError = err.Error()
		m.start.reply <- err
		return
	}

	generation := m.generation
	go func() {
		cmdCtx, cancel := context.WithTimeout(ctx, c.config.CommandTimeout)
		defer cancel()
		result, err := c.gateway.StartSession(cmdCtx, m.start.cfg, m.start.autoRepeat)
		c.post(startResultMsg{generation: generation, result: result, err: err, reply: m.start.reply})
	}()
}

func (c *Controller) handleStartResult(ctx context.Context, m startResultMsg) {
	if m.generation != c.generation {
		if m.err == nil {
			log.Warn().Uint64("session_id", m.result.SessionID).Msg("Start response arrived after cancel")
			if c.state.Phase == PhaseIdle {
				// The backend may have begun the session after our stop reached it.
				c.runCommand(ctx, "stop_session", c.gateway.StopSession, nil)
			}
		}
		m.reply <- ErrStartCancelled
		return
	}

	if m.err != nil {
		log.Error().Err(m.err).Msg("Failed to start session")
		if c.state.Phase == PhaseCountdown || c.state.Phase == PhaseFlashing {
			// Events show the backend did start; the response was lost on the way back.
			c.runCommand(ctx, "stop_session", c.gateway.StopSession, nil)
		}
		if c.state.Phase.Cancellable() {
			c.transition(PhaseIdle, "start failed")
		}
		c.resetSession()
		c.state.SessionID = 0
		c.screen.TrySet(false)
		c.state.LastError = m.err.Error()
		m.reply <- &CommandError{Command: "start_session", Err: m.err}
		return
	}

	switch {
	case c.state.SessionID == 0:
		c.state.SessionID = m.result.SessionID
	case c.state.SessionID != m.result.SessionID:
		log.Warn().
			Uint64("tracked", c.state.SessionID).
			Uint64("response", m.result.SessionID).
			Msg("Start response names another session; keeping the one events reported")
	}

	effective := m.result.EffectiveConfig
	c.state.EffectiveConfig = &effective
	c.state.EffectiveAutoRepeat = m.result.EffectiveAutoRepeat
	c.state.AutoRepeat = AutoRepeatState{}
	if ar := m.result.EffectiveAutoRepeat; ar != nil && ar.Enabled {
		c.state.AutoRepeat.Enabled = true
		c.state.AutoRepeat.Remaining = uint32(max(ar.Repeats, 0))
	}

	log.Info().
		Uint64("session_id", c.state.SessionID).
		Int("total_numbers", effective.TotalNumbers).
		Bool("auto_repeat", c.state.AutoRepeat.Enabled).
		Msg("Session started")
	m.reply <- nil
}

func (c *Controller) handleStop(ctx context.Context, m stopMsg) {
	if !c.state.Phase.Cancellable() {
		m.reply <- nil
		return
	}

	c.generation++
	c.runCommand(ctx, "stop_session", c.gateway.StopSession, nil)

	c.resetSession()
	c.state.SessionID = 0
	c.state.AutoRepeat = AutoRepeatState{}
	c.transition(PhaseIdle, "stop")
	c.screen.TrySet(false)
	m.reply <- nil
}

func (c *Controller) handleDismiss(ctx context.Context, m dismissMsg) {
	if c.state.Phase != PhaseComplete {
		m.reply <- nil
		return
	}

	if c.state.AutoRepeat.Enabled {
		c.runCommand(ctx, "cancel_auto_repeat", c.gateway.CancelAutoRepeat, nil)
	}
	c.resetSession()
	c.state.SessionID = 0
	c.state.AutoRepeat = AutoRepeatState{}
	c.transition(PhaseIdle, "dismiss")
	c.screen.TrySet(false)
	m.reply <- nil
}

// answerable reports why the tracked round cannot take an answer, if it
// cannot.
func (c *Controller) answerable() error {
	switch {
	case c.state.SessionID == 0:
		return ErrNoActiveSession
	case c.state.Phase != PhaseComplete:
		return fmt.Errorf("%w: phase %s", ErrRoundNotComplete, c.state.Phase)
	}
	return nil
}

func (c *Controller) handleSubmit(ctx context.Context, m submitMsg) {
	if err := c.answerable(); err != nil {
		m.reply <- submitReply{err: err}
		return
	}
	sessionID, round := c.state.SessionID, c.round

	if m.isText {
		c.state.AnswerText = m.text
		if _, err := session.ParseAnswerText(m.text); err != nil {
			c.state.ValidationSummary = err.Error()
			m.reply <- submitReply{err: err}
			return
		}
	}

	go func() {
		cmdCtx, cancel := context.WithTimeout(ctx, c.config.CommandTimeout)
		defer cancel()

		var (
			result session.SubmitResult
			err    error
		)
		if m.isText {
			result, err = c.gateway.SubmitAnswerText(cmdCtx, sessionID, m.text)
		} else {
			result, err = c.gateway.SubmitAnswer(cmdCtx, sessionID, m.provided)
		}
		c.post(submitResultMsg{sessionID: sessionID, round: round, result: result, err: err, reply: m.reply})
	}()
}

func (c *Controller) handleSubmitResult(m submitResultMsg) {
	if m.err != nil {
		cmdErr := &CommandError{Command: "submit_answer", Err: m.err}
		if m.round == c.round {
			c.state.ValidationSummary = m.err.Error()
		}
		m.reply <- submitReply{err: cmdErr}
		return
	}

	if m.round != c.round {
		log.Debug().Uint64("session_id", m.sessionID).Msg("Dropping validation for a round no longer tracked")
		m.reply <- submitReply{validation: m.result.Validation}
		return
	}

	validation := m.result.Validation
	c.state.Validation = &validation
	c.state.ValidationSummary = ""
	c.state.ValidationSeq++
	c.state.HasValidated = true
	if m.result.AutoRepeatWaiting != nil {
		c.applyWaiting(*m.result.AutoRepeatWaiting)
	}

	log.Info().
		Uint64("session_id", m.sessionID).
		Bool("correct", validation.Correct).
		Int64("delta", validation.Delta).
		Msg("Answer validated")
	m.reply <- submitReply{validation: validation}
}

func (c *Controller) handleMarkValidated(ctx context.Context, m markValidatedMsg) {
	if err := c.answerable(); err != nil {
		m.reply <- err
		return
	}
	sessionID, round := c.state.SessionID, c.round

	go func() {
		cmdCtx, cancel := context.WithTimeout(ctx, c.config.CommandTimeout)
		defer cancel()
		waiting, err := c.gateway.MarkValidated(cmdCtx, sessionID)
		c.post(waitingResultMsg{command: "mark_validated", sessionID: sessionID, round: round, waiting: waiting, err: err, reply: m.reply})
	}()
}

func (c *Controller) handleAcknowledge(ctx context.Context, m acknowledgeMsg) {
	if err := c.answerable(); err != nil {
		m.reply <- err
		return
	}
	sessionID, round := m.sessionID, c.round
	if sessionID == 0 {
		sessionID = c.state.SessionID
	}
	if sessionID == c.state.SessionID {
		c.state.Revealed = true
	}

	go func() {
		cmdCtx, cancel := context.WithTimeout(ctx, c.config.CommandTimeout)
		defer cancel()
		waiting, err := c.gateway.AcknowledgeComplete(cmdCtx, sessionID)
		c.post(waitingResultMsg{command: "acknowledge_complete", sessionID: sessionID, round: round, waiting: waiting, err: err, reply: m.reply})
	}()
}

func (c *Controller) handleWaitingResult(m waitingResultMsg) {
	if m.err != nil {
		log.Warn().Err(m.err).Str("command", m.command).Uint64("session_id", m.sessionID).Msg("Command failed")
		if m.round == c.round {
			c.state.LastError = m.err.Error()
		}
		m.reply <- &CommandError{Command: m.command, Err: m.err}
		return
	}

	if m.round != c.round || m.sessionID != c.state.SessionID {
		log.Debug().Str("command", m.command).Uint64("session_id", m.sessionID).Msg("Dropping result for a round no longer tracked")
		m.reply <- nil
		return
	}
	if m.command == "mark_validated" {
		c.state.HasValidated = true
	}
	if m.waiting != nil {
		c.applyWaiting(*m.waiting)
	}
	m.reply <- nil
}

func (c *Controller) handleCancelAutoRepeat(ctx context.Context, m cancelAutoRepeatMsg) {
	c.state.AutoRepeat = AutoRepeatState{}
	c.stopBridge()
	c.runCommand(ctx, "cancel_auto_repeat", c.gateway.CancelAutoRepeat, m.reply)
}

func (c *Controller) handleCommandResult(m commandResultMsg) {
	if m.err != nil {
		log.Warn().Err(m.err).Str("command", m.command).Msg("Command failed")
		c.state.LastError = m.err.Error()
		if m.reply != nil {
			m.reply <- &CommandError{Command: m.command, Err: m.err}
		}
		return
	}
	if m.reply != nil {
		m.reply <- nil
	}
}

// runCommand issues a command without a payload off-loop. A nil reply makes
// it fire-and-forget; failures are still logged.
func (c *Controller) runCommand(ctx context.Context, command string, call func(context.Context) error, reply chan<- error) {
	go func() {
		cmdCtx, cancel := context.WithTimeout(ctx, c.config.CommandTimeout)
		defer cancel()
		err := call(cmdCtx)
		if reply == nil && err == nil {
			return
		}
		c.post(commandResultMsg{command: command, err: err, reply: reply})
	}()
}
