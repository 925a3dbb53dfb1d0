package controller

import (
	"strconv"

	"github.com/mcdev12/flashsum/go/internal/flash/events"
	"github.com/rs/zerolog/log"
)

func (c *Controller) handleEvent(n events.Notification) {
	switch ev := n.(type) {
	case events.CountdownTick:
		c.onCountdownTick(ev)
	case events.ShowNumber:
		c.onShowNumber(ev)
	case events.ClearScreen:
		c.state.Display = ""
	case events.SessionComplete:
		c.onSessionComplete(ev)
	case events.AutoRepeatWaiting:
		c.applyWaiting(ev)
	case events.AutoRepeatTick:
		c.onAutoRepeatTick(ev)
	default:
		log.Warn().Type("event", n).Msg("Ignoring unsupported event")
	}
}

func (c *Controller) onCountdownTick(ev events.CountdownTick) {
	switch c.state.Phase {
	case PhaseComplete:
		c.resetForIncoming()
		c.rollover(PhaseCountdown, ev.EventType())
	case PhaseStarting, PhaseCountdown:
		c.transition(PhaseCountdown, string(ev.EventType()))
	default:
		c.violation(ev.EventType(), PhaseCountdown)
		return
	}

	c.state.Display = ev.Value
	c.state.TickParity++
	c.screen.TrySet(true)
}

func (c *Controller) onShowNumber(ev events.ShowNumber) {
	switch c.state.Phase {
	case PhaseComplete:
		if ev.SessionID == c.state.SessionID {
			c.violation(ev.EventType(), PhaseFlashing)
			return
		}
		c.resetForIncoming()
		c.adoptSession(ev.SessionID)
		c.rollover(PhaseFlashing, ev.EventType())
	case PhaseCountdown, PhaseFlashing:
		c.adoptSession(ev.SessionID)
		c.transition(PhaseFlashing, string(ev.EventType()))
	default:
		c.violation(ev.EventType(), PhaseFlashing)
		return
	}

	c.state.Numbers = append(c.state.Numbers, ev.Value)
	c.state.Display = strconv.FormatInt(ev.Value, 10)
	c.state.Index = ev.Index
	c.state.Total = ev.Total
	c.state.RunningSum = ev.RunningSum
	c.screen.TrySet(true)
}

func (c *Controller) onSessionComplete(ev events.SessionComplete) {
	if c.state.Phase != PhaseFlashing {
		c.violation(ev.EventType(), PhaseComplete)
		return
	}
	if c.state.SessionID != 0 && ev.SessionID != c.state.SessionID {
		log.Warn().
			Uint64("tracked", c.state.SessionID).
			Uint64("event", ev.SessionID).
			Msg("Ignoring session_complete for another session")
		return
	}

	c.transition(PhaseComplete, string(ev.EventType()))
	c.state.SessionID = ev.SessionID

	// The backend's record is authoritative over whatever was captured live.
	c.state.Numbers = append([]int64(nil), ev.Numbers...)
	sum := ev.Sum
	c.state.ExpectedSum = &sum
	c.state.RunningSum = sum
	c.state.Display = ""

	c.clearAnswer()
	c.state.AutoRepeat.SecondsLeft = nil
	c.state.AutoRepeat.FromTick = false
	c.stopBridge()
	c.screen.TrySet(false)

	log.Info().Uint64("session_id", ev.SessionID).Int("numbers", len(ev.Numbers)).Msg("Session complete")
}

// applyWaiting handles auto_repeat_waiting from an event or folded into a
// command response.
func (c *Controller) applyWaiting(w events.AutoRepeatWaiting) {
	ar := &c.state.AutoRepeat
	switch {
	case !ar.Enabled:
		log.Debug().Uint64("session_id", w.SessionID).Msg("Ignoring auto_repeat_waiting: auto-repeat disabled")
		return
	case c.state.Phase != PhaseComplete || w.SessionID != c.state.SessionID:
		log.Debug().Uint64("session_id", w.SessionID).Msg("Ignoring auto_repeat_waiting for untracked session")
		return
	case ar.FromTick:
		log.Debug().Uint64("session_id", w.SessionID).Msg("auto_repeat_waiting after tick; keeping tick countdown")
		return
	}

	ar.Remaining = w.Remaining
	if w.NextStartAtMs == 0 {
		ar.SecondsLeft = nil
		c.stopBridge()
		return
	}
	c.startBridge(w.SessionID, msToTime(w.NextStartAtMs))
}

func (c *Controller) onAutoRepeatTick(t events.AutoRepeatTick) {
	ar := &c.state.AutoRepeat
	if !ar.Enabled || c.state.Phase != PhaseComplete || t.SessionID != c.state.SessionID {
		log.Debug().Uint64("session_id", t.SessionID).Msg("Ignoring auto_repeat_tick")
		return
	}

	c.stopBridge()
	seconds := t.SecondsLeft
	ar.SecondsLeft = &seconds
	ar.Remaining = t.Remaining
	ar.FromTick = true
}

// adoptSession switches to id, discarding numbers and answers captured for
// another one.
func (c *Controller) adoptSession(id uint64) {
	if id == c.state.SessionID {
		return
	}
	if c.state.SessionID != 0 {
		log.Info().Uint64("from", c.state.SessionID).Uint64("to", id).Msg("Switching to new session")
	}
	c.state.SessionID = id
	c.round++
	c.clearAnswer()
	c.state.Numbers = nil
	c.state.RunningSum = 0
	c.state.ExpectedSum = nil
	c.state.Index = 0
	c.state.Total = 0
}

// resetSession clears everything tied to one session except its id.
func (c *Controller) resetSession() {
	c.round++
	c.state.Display = ""
	c.state.Index = 0
	c.state.Total = 0
	c.state.Numbers = nil
	c.state.RunningSum = 0
	c.state.ExpectedSum = nil
	c.clearAnswer()
	c.state.AutoRepeat.SecondsLeft = nil
	c.state.AutoRepeat.FromTick = false
	c.stopBridge()
}

// resetForIncoming prepares for a session the backend started on its own.
// The tracked id stays until an event names the new one.
func (c *Controller) resetForIncoming() {
	log.Debug().Uint64("session_id", c.state.SessionID).Msg("Resetting for incoming session")
	c.resetSession()
}

func (c *Controller) clearAnswer() {
	c.state.AnswerText = ""
	c.state.Validation = nil
	c.state.ValidationSummary = ""
	c.state.HasValidated = false
	c.state.Revealed = false
}

func (c *Controller) transition(to Phase, cause string) bool {
	from := c.state.Phase
	if !CanTransition(from, to) {
		log.Error().Str("from", string(from)).Str("to", string(to)).Str("cause", cause).Msg("Refusing invalid phase transition")
		return false
	}
	c.state.Phase = to
	if from != to {
		log.Debug().Str("from", string(from)).Str("to", string(to)).Str("cause", cause).Msg("Phase changed")
	}
	return true
}

func (c *Controller) rollover(to Phase, cause events.EventType) {
	from := c.state.Phase
	if !CanRollover(from, to) {
		log.Error().Str("from", string(from)).Str("to", string(to)).Msg("Refusing invalid rollover")
		return
	}
	c.state.Phase = to
	log.Info().Str("to", string(to)).Str("event", string(cause)).Msg("Auto-repeat session rolled over")
}

func (c *Controller) violation(ev events.EventType, implied Phase) {
	c.state.Violations++
	log.Warn().
		Str("event", string(ev)).
		Str("phase", string(c.state.Phase)).
		Str("implied", string(implied)).
		Msg("Ignoring event: invalid phase transition")
}
