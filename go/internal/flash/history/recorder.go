package history

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flashsum/go/internal/flash/controller"
	"github.com/rs/zerolog/log"
)

// Recorder turns controller snapshots into stored rounds. Observe runs on the
// controller loop, so it only queues; Run does the writes.
type Recorder struct {
	store   *Store
	clock   clockwork.Clock
	queue   chan Record
	lastSeq uint64
}

func NewRecorder(store *Store, clock clockwork.Clock, buffer int) *Recorder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Recorder{store: store, clock: clock, queue: make(chan Record, buffer)}
}

// Observe is a controller.Observer.
func (r *Recorder) Observe(s controller.State) {
	if s.ValidationSeq == r.lastSeq || s.Validation == nil {
		return
	}
	r.lastSeq = s.ValidationSeq

	rec := Record{
		SessionID:   s.SessionID,
		ExpectedSum: s.Validation.ExpectedSum,
		ProvidedSum: s.Validation.ProvidedSum,
		Delta:       s.Validation.Delta,
		Correct:     s.Validation.Correct,
		NumberCount: len(s.Numbers),
		RecordedAt:  r.clock.Now(),
	}
	if c := s.EffectiveConfig; c != nil {
		digits, duration := c.DigitsPerNumber, c.NumberDurationSeconds
		rec.DigitsPerNumber = &digits
		rec.NumberDuration = &duration
	}

	select {
	case r.queue <- rec:
	default:
		log.Warn().Uint64("session_id", rec.SessionID).Msg("History queue full, dropping round")
	}
}

// Run writes queued rounds until ctx is cancelled, then drains what is left.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case rec := <-r.queue:
			r.write(ctx, rec)
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case rec := <-r.queue:
			r.write(ctx, rec)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, rec Record) {
	id, err := r.store.Add(ctx, rec)
	if err != nil {
		log.Error().Err(err).Uint64("session_id", rec.SessionID).Msg("Failed to store round")
		return
	}
	log.Debug().Int64("id", id).Uint64("session_id", rec.SessionID).Bool("correct", rec.Correct).Msg("Stored round")
}
