package engine

import (
	"context"
	"time"

	"github.com/mcdev12/flashsum/go/internal/flash/events"
	"github.com/mcdev12/flashsum/go/internal/flash/session"
	"github.com/rs/zerolog/log"
)

// autoRepeatPlan is armed for a session when it completes and consumed by the
// first validation or acknowledgement of that session.
type autoRepeatPlan struct {
	remaining         int
	delay             time.Duration
	timing            session.Timing
	awaitingSessionID uint64
}

func (e *Engine) configurePlanLocked(effective *session.EffectiveAutoRepeat, timing session.Timing) {
	if effective == nil {
		e.plan = nil
	} else {
		e.plan = &autoRepeatPlan{
			remaining: effective.Repeats,
			delay:     effective.Delay(),
			timing:    timing,
		}
	}
	e.generation++
}

// scheduleAutoRepeat consumes the plan armed for sessionID, publishes the
// waiting payload and starts the countdown to the next session. It returns
// nil when nothing was scheduled.
func (e *Engine) scheduleAutoRepeat(ctx context.Context, sessionID uint64) (*events.AutoRepeatWaiting, error) {
	e.mu.Lock()
	plan := e.plan
	if plan == nil || plan.awaitingSessionID != sessionID || plan.remaining == 0 {
		e.mu.Unlock()
		return nil, nil
	}
	plan.awaitingSessionID = 0
	plan.remaining--

	generation := e.generation
	remaining := uint32(plan.remaining)
	timing := plan.timing
	deadline := e.clock.Now().Add(plan.delay)
	e.mu.Unlock()

	waiting := events.AutoRepeatWaiting{
		SessionID:     sessionID,
		NextStartAtMs: uint64(deadline.UnixMilli()),
		Remaining:     remaining,
	}
	e.publish(waiting)

	go e.runAutoRepeat(generation, sessionID, deadline, remaining, timing)

	log.Info().
		Uint64("session_id", sessionID).
		Time("next_start_at", deadline).
		Uint32("remaining", remaining).
		Msg("auto-repeat scheduled")

	return &waiting, nil
}

// runAutoRepeat publishes a tick whenever the whole-second count changes, a
// final zero tick, and then starts the next session. A generation change at
// any step abandons it.
func (e *Engine) runAutoRepeat(generation, sessionID uint64, deadline time.Time, remaining uint32, timing session.Timing) {
	lastSent := uint64(0)
	sent := false

	for {
		if !e.generationIs(generation) {
			return
		}

		now := e.clock.Now()
		if !now.Before(deadline) {
			break
		}

		left := deadline.Sub(now)
		secondsLeft := ceilSeconds(left)
		if !sent || secondsLeft != lastSent {
			lastSent, sent = secondsLeft, true
			e.publish(events.AutoRepeatTick{SessionID: sessionID, SecondsLeft: secondsLeft, Remaining: remaining})
		}

		timer := e.clock.NewTimer(min(left, e.config.AutoRepeatTickStep))
		select {
		case <-timer.Chan():
		case <-e.closed:
			stopAndDrainTimer(timer)
			return
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != generation {
		return
	}

	// published under the lock so a concurrent stop cannot slip between the
	// final tick and the restart
	e.publish(events.AutoRepeatTick{SessionID: sessionID, SecondsLeft: 0, Remaining: remaining})
	id, err := e.startLocked(timing)
	if err != nil {
		log.Warn().Err(err).Uint64("previous_session_id", sessionID).Msg("auto-repeat start failed")
		return
	}
	log.Info().
		Uint64("session_id", id).
		Uint64("previous_session_id", sessionID).
		Uint32("remaining", remaining).
		Msg("auto-repeat session started")
}

func (e *Engine) generationIs(generation uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation == generation
}

func ceilSeconds(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64((d + time.Second - 1) / time.Second)
}
