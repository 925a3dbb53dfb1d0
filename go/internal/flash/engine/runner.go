package engine

import (
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flashsum/go/internal/flash/events"
	"github.com/rs/zerolog/log"
)

var countdownValues = []string{"3", "2", "1"}

// runSession drives one session: countdown, then every number followed by a
// clear, then session_complete. Each wait is scheduled from the previous
// emission so a delayed process never skips a number's visibility.
func (e *Engine) runSession(r *run) {
	defer close(r.done)

	e.publish(events.ClearScreen{})

	countdownStart := e.clock.Now()
	for i, value := range countdownValues {
		if !e.sleepUntil(r, countdownStart.Add(time.Duration(i)*e.config.CountdownStep)) {
			e.abort(r)
			return
		}
		e.publish(events.CountdownTick{Value: value})
	}

	if !e.sleepUntil(r, countdownStart.Add(time.Duration(len(countdownValues))*e.config.CountdownStep)) {
		e.abort(r)
		return
	}
	e.publish(events.ClearScreen{SessionID: r.id})

	gen := newGenerator(e.newRand(r.id), r.timing.DigitsPerNumber, r.timing.AllowNegativeNumbers)
	numbers := make([]int64, 0, r.timing.TotalNumbers)
	var sum int64
	nextOn := e.clock.Now()

	for i := 0; i < r.timing.TotalNumbers; i++ {
		if !e.sleepUntil(r, nextOn) {
			e.abort(r)
			return
		}

		value := gen.next(i, sum)
		sum = saturatingAdd(sum, value)
		numbers = append(numbers, value)

		shownAt := e.clock.Now()
		e.publish(events.ShowNumber{
			SessionID:   r.id,
			Index:       uint32(i + 1),
			Total:       uint32(r.timing.TotalNumbers),
			Value:       value,
			RunningSum:  sum,
			EmittedAtMs: shownAt.UnixMilli(),
		})

		completed := e.sleepUntil(r, shownAt.Add(r.timing.NumberDuration))
		clearedAt := e.clock.Now()
		e.publish(events.ClearScreen{SessionID: r.id, Index: uint32(i + 1), EmittedAtMs: clearedAt.UnixMilli()})
		if !completed {
			e.finish(r, nil)
			log.Debug().Uint64("session_id", r.id).Int("shown", i+1).Msg("session interrupted")
			return
		}
		nextOn = clearedAt.Add(r.timing.DelayBetweenNumbers)
	}

	e.publish(events.ClearScreen{SessionID: r.id})

	result := events.SessionComplete{SessionID: r.id, Numbers: numbers, Sum: sum}
	e.finish(r, &result)
	e.publish(result)

	log.Info().
		Uint64("session_id", r.id).
		Int("numbers", len(numbers)).
		Int64("sum", sum).
		Msg("session complete")
}

func (e *Engine) abort(r *run) {
	e.publish(events.ClearScreen{})
	e.finish(r, nil)
	log.Debug().Uint64("session_id", r.id).Msg("session interrupted")
}

// sleepUntil waits for deadline on the engine clock. It returns false when the
// run was stopped first.
func (e *Engine) sleepUntil(r *run, deadline time.Time) bool {
	d := deadline.Sub(e.clock.Now())
	if d <= 0 {
		select {
		case <-r.stop:
			return false
		default:
			return true
		}
	}

	timer := e.clock.NewTimer(d)
	select {
	case <-timer.Chan():
		return true
	case <-r.stop:
		stopAndDrainTimer(timer)
		return false
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

func saturatingAdd(a, b int64) int64 {
	s := a + b
	switch {
	case b > 0 && s < a:
		return math.MaxInt64
	case b < 0 && s > a:
		return math.MinInt64
	}
	return s
}
