package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flashsum/go/internal/flash/events"
	"github.com/mcdev12/flashsum/go/internal/flash/session"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionRunning = errors.New("session already running")
	ErrResultNotFound = errors.New("session result not found")
	ErrClosed         = errors.New("engine closed")
)

// Config tunes the engine's timing.
type Config struct {
	CountdownStep      time.Duration // interval between countdown values
	AutoRepeatTickStep time.Duration // poll step of the auto-repeat countdown
}

// DefaultConfig returns the timing the trainer has always used.
func DefaultConfig() Config {
	return Config{
		CountdownStep:      time.Second,
		AutoRepeatTickStep: 120 * time.Millisecond,
	}
}

// Engine is the authoritative session backend: it runs one session at a time,
// emits its events, keeps recent results for validation and schedules
// auto-repeat sessions.
type Engine struct {
	clock     clockwork.Clock
	publisher Publisher
	config    Config

	mu            sync.Mutex
	nextSessionID uint64
	current       *run
	results       recentResults
	plan          *autoRepeatPlan
	generation    uint64 // bumped on every plan change; stale repeats stop on mismatch

	closeOnce sync.Once
	closed    chan struct{}
}

type run struct {
	id     uint64
	timing session.Timing
	stop   chan struct{}
	done   chan struct{}

	stopOnce sync.Once
}

func (r *run) halt() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// New creates an engine publishing through p.
func New(clock clockwork.Clock, p Publisher, config Config) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		clock:         clock,
		publisher:     p,
		config:        config,
		nextSessionID: 1,
		closed:        make(chan struct{}),
	}
}

// StartSession normalizes the request, installs the auto-repeat plan and
// begins a new session.
func (e *Engine) StartSession(ctx context.Context, cfg session.Config, autoRepeat *session.AutoRepeatConfig) (session.StartResult, error) {
	timing, effective := session.Normalize(cfg)
	effectiveRepeat := session.NormalizeAutoRepeat(autoRepeat)

	e.mu.Lock()
	if e.current != nil {
		e.mu.Unlock()
		return session.StartResult{}, ErrSessionRunning
	}
	e.configurePlanLocked(effectiveRepeat, timing)
	id, err := e.startLocked(timing)
	e.mu.Unlock()
	if err != nil {
		return session.StartResult{}, err
	}

	log.Info().
		Uint64("session_id", id).
		Int("digits", timing.DigitsPerNumber).
		Int("total_numbers", timing.TotalNumbers).
		Dur("number_duration", timing.NumberDuration).
		Bool("auto_repeat", effectiveRepeat != nil).
		Msg("session started")

	return session.StartResult{
		SessionID:           id,
		EffectiveConfig:     effective,
		EffectiveAutoRepeat: effectiveRepeat,
	}, nil
}

// StopSession cancels any pending auto-repeat, forgets recent results and
// stops the running session, waiting for its runner to exit.
func (e *Engine) StopSession(ctx context.Context) error {
	e.mu.Lock()
	e.configurePlanLocked(nil, session.Timing{})
	e.results.clear()
	current := e.current
	if current != nil {
		current.halt()
	}
	e.mu.Unlock()

	if current == nil {
		return nil
	}

	select {
	case <-current.done:
		log.Info().Uint64("session_id", current.id).Msg("session stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CancelAutoRepeat drops the auto-repeat plan; pending countdowns stop at
// their next step.
func (e *Engine) CancelAutoRepeat(ctx context.Context) error {
	e.mu.Lock()
	e.configurePlanLocked(nil, session.Timing{})
	e.mu.Unlock()

	log.Info().Msg("auto-repeat cancelled")
	return nil
}

// SubmitAnswer validates a provided sum against a recent session and may
// schedule the next automatic session.
func (e *Engine) SubmitAnswer(ctx context.Context, sessionID uint64, provided int64) (session.SubmitResult, error) {
	e.mu.Lock()
	result, ok := e.results.find(sessionID)
	e.mu.Unlock()
	if !ok {
		return session.SubmitResult{}, ErrResultNotFound
	}

	validation := session.Validate(result.Sum, provided)
	waiting, err := e.scheduleAutoRepeat(ctx, sessionID)
	if err != nil {
		return session.SubmitResult{}, err
	}

	log.Info().
		Uint64("session_id", sessionID).
		Bool("correct", validation.Correct).
		Int64("delta", validation.Delta).
		Msg("answer validated")

	return session.SubmitResult{Validation: validation, AutoRepeatWaiting: waiting}, nil
}

// SubmitAnswerText parses a typed answer before validating it.
func (e *Engine) SubmitAnswerText(ctx context.Context, sessionID uint64, text string) (session.SubmitResult, error) {
	provided, err := session.ParseAnswerText(text)
	if err != nil {
		return session.SubmitResult{}, err
	}
	return e.SubmitAnswer(ctx, sessionID, provided)
}

// MarkValidated records that the round was validated elsewhere.
func (e *Engine) MarkValidated(ctx context.Context, sessionID uint64) (*events.AutoRepeatWaiting, error) {
	return e.scheduleAutoRepeat(ctx, sessionID)
}

// AcknowledgeComplete records that the answer was revealed.
func (e *Engine) AcknowledgeComplete(ctx context.Context, sessionID uint64) (*events.AutoRepeatWaiting, error) {
	return e.scheduleAutoRepeat(ctx, sessionID)
}

// Running reports whether a session runner is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}

// Close stops the running session and every pending auto-repeat.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		close(e.closed)

		e.mu.Lock()
		e.configurePlanLocked(nil, session.Timing{})
		current := e.current
		if current != nil {
			current.halt()
		}
		e.mu.Unlock()

		if current != nil {
			<-current.done
		}
	})
	return nil
}

func (e *Engine) startLocked(timing session.Timing) (uint64, error) {
	select {
	case <-e.closed:
		return 0, ErrClosed
	default:
	}
	if e.current != nil {
		return 0, ErrSessionRunning
	}

	r := &run{
		id:     e.nextSessionID,
		timing: timing,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	e.nextSessionID++
	e.current = r

	go e.runSession(r)
	return r.id, nil
}

// finish detaches r; the result, when present, is stored and the auto-repeat
// plan armed before session_complete goes out so an immediate answer finds both.
func (e *Engine) finish(r *run, result *events.SessionComplete) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == r {
		e.current = nil
	}
	if result == nil {
		return
	}
	e.results.add(*result)
	if e.plan != nil && e.plan.remaining > 0 {
		e.plan.awaitingSessionID = result.SessionID
	}
}

func (e *Engine) publish(n events.Notification) {
	if e.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.publisher.Publish(ctx, n); err != nil {
		log.Debug().Err(err).Str("event_type", string(n.EventType())).Msg("publish failed")
	}
}

func (e *Engine) newRand(sessionID uint64) *rand.Rand {
	seed := uint64(e.clock.Now().UnixNano())
	return rand.New(rand.NewPCG(seed, sessionID))
}

