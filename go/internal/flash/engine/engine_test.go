package engine

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flashsum/go/internal/flash/events"
	"github.com/mcdev12/flashsum/go/internal/flash/session"
)

type recorder struct {
	mu  sync.Mutex
	got []events.Notification
}

func (r *recorder) Publish(_ context.Context, n events.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *recorder) snapshot() []events.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Notification(nil), r.got...)
}

func completeFor(id uint64) func([]events.Notification) bool {
	return func(got []events.Notification) bool {
		for _, n := range got {
			if c, ok := n.(events.SessionComplete); ok && c.SessionID == id {
				return true
			}
		}
		return false
	}
}

// advanceUntil moves the fake clock in small steps until cond holds.
func advanceUntil(t *testing.T, clock *clockwork.FakeClock, rec *recorder, step time.Duration, cond func([]events.Notification) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond(rec.snapshot()) {
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached; events: %#v", rec.snapshot())
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		_ = clock.BlockUntilContext(ctx, 1)
		cancel()
		clock.Advance(step)
	}
}

func newTestEngine() (*Engine, *clockwork.FakeClock, *recorder) {
	clock := clockwork.NewFakeClock()
	rec := &recorder{}
	return New(clock, rec, DefaultConfig()), clock, rec
}

var quickConfig = session.Config{
	DigitsPerNumber:       2,
	NumberDurationSeconds: 0.1,
	TotalNumbers:          3,
}

func TestSessionEventSequence(t *testing.T) {
	e, clock, rec := newTestEngine()
	defer e.Close()
	ctx := context.Background()

	res, err := e.StartSession(ctx, quickConfig, nil)
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if res.SessionID != 1 {
		t.Fatalf("session id = %d, want 1", res.SessionID)
	}
	if res.EffectiveAutoRepeat != nil {
		t.Fatalf("auto-repeat should be disabled")
	}

	advanceUntil(t, clock, rec, 100*time.Millisecond, completeFor(1))

	got := rec.snapshot()
	var kinds []events.EventType
	for _, n := range got {
		kinds = append(kinds, n.EventType())
	}
	want := []events.EventType{
		events.EventTypeClearScreen,
		events.EventTypeCountdownTick, events.EventTypeCountdownTick, events.EventTypeCountdownTick,
		events.EventTypeClearScreen,
		events.EventTypeShowNumber, events.EventTypeClearScreen,
		events.EventTypeShowNumber, events.EventTypeClearScreen,
		events.EventTypeShowNumber, events.EventTypeClearScreen,
		events.EventTypeClearScreen,
		events.EventTypeSessionComplete,
	}
	if len(kinds) != len(want) {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d = %s, want %s (all: %v)", i, kinds[i], want[i], kinds)
		}
	}

	var shown []int64
	for _, n := range got {
		switch v := n.(type) {
		case events.CountdownTick:
			if v.Value != "3" && v.Value != "2" && v.Value != "1" {
				t.Fatalf("countdown value %q", v.Value)
			}
		case events.ShowNumber:
			if v.Value < 10 || v.Value > 99 {
				t.Fatalf("value %d outside two digits", v.Value)
			}
			shown = append(shown, v.Value)
		}
	}

	complete := got[len(got)-1].(events.SessionComplete)
	var sum int64
	for i, v := range complete.Numbers {
		if v != shown[i] {
			t.Fatalf("complete numbers %v differ from shown %v", complete.Numbers, shown)
		}
		sum += v
	}
	if complete.Sum != sum {
		t.Fatalf("sum = %d, want %d", complete.Sum, sum)
	}
	if e.Running() {
		t.Fatalf("engine still running after completion")
	}
}

func TestStartWhileRunning(t *testing.T) {
	e, _, _ := newTestEngine()
	defer e.Close()

	if _, err := e.StartSession(context.Background(), quickConfig, nil); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if _, err := e.StartSession(context.Background(), quickConfig, nil); !errors.Is(err, ErrSessionRunning) {
		t.Fatalf("err = %v, want ErrSessionRunning", err)
	}
}

func TestStopInterruptsSession(t *testing.T) {
	e, clock, rec := newTestEngine()
	defer e.Close()
	ctx := context.Background()

	if _, err := e.StartSession(ctx, quickConfig, nil); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	advanceUntil(t, clock, rec, 100*time.Millisecond, func(got []events.Notification) bool {
		for _, n := range got {
			if _, ok := n.(events.CountdownTick); ok {
				return true
			}
		}
		return false
	})

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := e.StopSession(stopCtx); err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	if e.Running() {
		t.Fatalf("engine still running after stop")
	}
	for _, n := range rec.snapshot() {
		if _, ok := n.(events.SessionComplete); ok {
			t.Fatalf("stopped session completed")
		}
	}
	if _, err := e.SubmitAnswer(ctx, 1, 0); !errors.Is(err, ErrResultNotFound) {
		t.Fatalf("err = %v, want ErrResultNotFound", err)
	}

	// stop is idempotent
	if err := e.StopSession(stopCtx); err != nil {
		t.Fatalf("second StopSession: %v", err)
	}
}

func TestSubmitAnswer(t *testing.T) {
	e, clock, rec := newTestEngine()
	defer e.Close()
	ctx := context.Background()

	if _, err := e.StartSession(ctx, quickConfig, nil); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	advanceUntil(t, clock, rec, 100*time.Millisecond, completeFor(1))

	got := rec.snapshot()
	complete := got[len(got)-1].(events.SessionComplete)

	res, err := e.SubmitAnswer(ctx, 1, complete.Sum)
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if !res.Validation.Correct || res.Validation.Delta != 0 {
		t.Fatalf("validation = %+v", res.Validation)
	}
	if res.AutoRepeatWaiting != nil {
		t.Fatalf("unexpected waiting payload %+v", res.AutoRepeatWaiting)
	}

	res, err = e.SubmitAnswerText(ctx, 1, "0")
	if err != nil {
		t.Fatalf("SubmitAnswerText: %v", err)
	}
	if res.Validation.Correct || res.Validation.Delta != -complete.Sum {
		t.Fatalf("validation = %+v", res.Validation)
	}

	var vErr *session.ValidationInputError
	if _, err := e.SubmitAnswerText(ctx, 1, "4,2"); !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want ValidationInputError", err)
	}
	if _, err := e.SubmitAnswer(ctx, 99, 1); !errors.Is(err, ErrResultNotFound) {
		t.Fatalf("err = %v, want ErrResultNotFound", err)
	}
}

func TestAutoRepeatStartsNextSession(t *testing.T) {
	e, clock, rec := newTestEngine()
	defer e.Close()
	ctx := context.Background()

	res, err := e.StartSession(ctx, quickConfig, &session.AutoRepeatConfig{Enabled: true, Repeats: 1, DelaySeconds: 5})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if res.EffectiveAutoRepeat == nil || res.EffectiveAutoRepeat.Repeats != 1 || res.EffectiveAutoRepeat.DelaySeconds != 5 {
		t.Fatalf("effective auto-repeat = %+v", res.EffectiveAutoRepeat)
	}
	advanceUntil(t, clock, rec, 100*time.Millisecond, completeFor(1))

	submittedAt := clock.Now()
	sub, err := e.SubmitAnswer(ctx, 1, 0)
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if sub.AutoRepeatWaiting == nil {
		t.Fatalf("expected waiting payload")
	}
	if sub.AutoRepeatWaiting.Remaining != 0 || sub.AutoRepeatWaiting.SessionID != 1 {
		t.Fatalf("waiting = %+v", sub.AutoRepeatWaiting)
	}
	if want := uint64(submittedAt.Add(5 * time.Second).UnixMilli()); sub.AutoRepeatWaiting.NextStartAtMs != want {
		t.Fatalf("next start = %d, want %d", sub.AutoRepeatWaiting.NextStartAtMs, want)
	}

	// a second trigger for the same session schedules nothing
	if w, err := e.AcknowledgeComplete(ctx, 1); err != nil || w != nil {
		t.Fatalf("AcknowledgeComplete = %+v, %v", w, err)
	}

	advanceUntil(t, clock, rec, 100*time.Millisecond, completeFor(2))

	var ticks []uint64
	for _, n := range rec.snapshot() {
		if tick, ok := n.(events.AutoRepeatTick); ok {
			ticks = append(ticks, tick.SecondsLeft)
		}
	}
	if len(ticks) < 2 || ticks[0] != 5 || ticks[len(ticks)-1] != 0 {
		t.Fatalf("ticks = %v, want 5 ... 0", ticks)
	}

	// repeats exhausted
	if w, err := e.MarkValidated(ctx, 2); err != nil || w != nil {
		t.Fatalf("MarkValidated = %+v, %v", w, err)
	}
}

func TestCancelAutoRepeat(t *testing.T) {
	e, clock, rec := newTestEngine()
	defer e.Close()
	ctx := context.Background()

	if _, err := e.StartSession(ctx, quickConfig, &session.AutoRepeatConfig{Enabled: true, Repeats: 3, DelaySeconds: 5}); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	advanceUntil(t, clock, rec, 100*time.Millisecond, completeFor(1))

	if w, err := e.MarkValidated(ctx, 1); err != nil || w == nil {
		t.Fatalf("MarkValidated = %+v, %v", w, err)
	}
	if err := e.CancelAutoRepeat(ctx); err != nil {
		t.Fatalf("CancelAutoRepeat: %v", err)
	}

	for range 80 {
		clock.Advance(100 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	if e.Running() {
		t.Fatalf("cancelled auto-repeat still started a session")
	}
	for _, n := range rec.snapshot() {
		if s, ok := n.(events.ShowNumber); ok && s.SessionID != 1 {
			t.Fatalf("unexpected session %d after cancel", s.SessionID)
		}
	}
}

func TestGeneratorConstraints(t *testing.T) {
	for _, digits := range []int{1, 2, 4} {
		g := newGenerator(rand.New(rand.NewPCG(7, uint64(digits))), digits, true)
		lo, hi := pow10(digits-1), pow10(digits)-1
		if digits == 1 {
			lo = 1
		}

		var sum int64
		var prev int64
		for i := 0; i < 2000; i++ {
			v := g.next(i, sum)
			if i == 0 && v < 0 {
				t.Fatalf("digits %d: first value negative", digits)
			}
			mag := v
			if mag < 0 {
				mag = -mag
			}
			if mag < lo || mag > hi {
				t.Fatalf("digits %d: value %d out of range", digits, v)
			}
			if i > 0 && v == prev {
				t.Fatalf("digits %d: consecutive duplicate %d", digits, v)
			}
			sum += v
			if sum < 0 {
				t.Fatalf("digits %d: running sum went negative at %d", digits, i)
			}
			prev = v
		}
	}
}

func TestRecentResultsKeepsLatest(t *testing.T) {
	var r recentResults
	for id := uint64(1); id <= 10; id++ {
		r.add(events.SessionComplete{SessionID: id})
	}
	if _, ok := r.find(2); ok {
		t.Fatalf("session 2 should have been evicted")
	}
	if _, ok := r.find(3); !ok {
		t.Fatalf("session 3 should be retained")
	}
	if _, ok := r.find(10); !ok {
		t.Fatalf("session 10 should be retained")
	}
}

func TestCeilSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want uint64
	}{
		{0, 0},
		{-time.Second, 0},
		{time.Millisecond, 1},
		{time.Second, 1},
		{4880 * time.Millisecond, 5},
	}
	for _, tt := range tests {
		if got := ceilSeconds(tt.in); got != tt.want {
			t.Fatalf("ceilSeconds(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMetricPublisherCounts(t *testing.T) {
	counters := NewEventCounters()
	failing := errors.New("transport down")
	fail := false
	p := NewMetricPublisher(PublisherFunc(func(context.Context, events.Notification) error {
		if fail {
			return failing
		}
		return nil
	}), counters)

	ctx := context.Background()
	if err := p.Publish(ctx, events.ClearScreen{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := p.Publish(ctx, events.ClearScreen{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	fail = true
	if err := p.Publish(ctx, events.CountdownTick{}); !errors.Is(err, failing) {
		t.Fatalf("Publish error = %v, want %v", err, failing)
	}

	snap := counters.Snapshot()
	published := snap["published"].(map[string]uint64)
	failed := snap["failed"].(map[string]uint64)
	if published[string(events.EventTypeClearScreen)] != 2 || failed[string(events.EventTypeCountdownTick)] != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}

	if err := NewMetricPublisher(PublisherFunc(func(context.Context, events.Notification) error { return nil }), nil).
		Publish(ctx, events.ClearScreen{}); err != nil {
		t.Fatalf("Publish without metrics: %v", err)
	}
}
