package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flashsum/go/internal/flash/events"
	"github.com/mcdev12/flashsum/go/internal/flash/session"
)

type fakeGateway struct {
	mu    sync.Mutex
	calls []string

	startResult session.StartResult
	startErr    error
	startGate   chan struct{} // when set, StartSession blocks until it is closed
	startCalled chan struct{}

	submitResult session.SubmitResult
	submitErr    error
	submitted    []string
	submitGate   chan struct{} // when set, submits block until it is closed
	submitCalled chan struct{}

	waiting    *events.AutoRepeatWaiting
	waitingErr error
	stopErr    error
}

func newFakeGateway(sessionID uint64) *fakeGateway {
	return &fakeGateway{
		startResult: session.StartResult{
			SessionID:       sessionID,
			EffectiveConfig: session.EffectiveConfig{DigitsPerNumber: 2, NumberDurationSeconds: 0.5, TotalNumbers: 3},
		},
		startCalled:  make(chan struct{}, 16),
		submitCalled: make(chan struct{}, 16),
	}
}

func (g *fakeGateway) record(call string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
}

func (g *fakeGateway) count(call string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (g *fakeGateway) StartSession(ctx context.Context, cfg session.Config, autoRepeat *session.AutoRepeatConfig) (session.StartResult, error) {
	g.record("start")
	g.startCalled <- struct{}{}

	g.mu.Lock()
	gate := g.startGate
	g.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return session.StartResult{}, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	result := g.startResult
	if autoRepeat != nil && autoRepeat.Enabled {
		result.EffectiveAutoRepeat = session.NormalizeAutoRepeat(autoRepeat)
	}
	return result, g.startErr
}

func (g *fakeGateway) StopSession(ctx context.Context) error {
	g.record("stop")
	return g.stopErr
}

func (g *fakeGateway) CancelAutoRepeat(ctx context.Context) error {
	g.record("cancel_auto_repeat")
	return nil
}

// awaitSubmitGate blocks a submit while a gate is installed.
func (g *fakeGateway) awaitSubmitGate(ctx context.Context) error {
	g.submitCalled <- struct{}{}
	g.mu.Lock()
	gate := g.submitGate
	g.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *fakeGateway) SubmitAnswer(ctx context.Context, sessionID uint64, provided int64) (session.SubmitResult, error) {
	g.record("submit")
	if err := g.awaitSubmitGate(ctx); err != nil {
		return session.SubmitResult{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submitResult, g.submitErr
}

func (g *fakeGateway) SubmitAnswerText(ctx context.Context, sessionID uint64, text string) (session.SubmitResult, error) {
	g.record("submit_text")
	if err := g.awaitSubmitGate(ctx); err != nil {
		return session.SubmitResult{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitted = append(g.submitted, text)
	return g.submitResult, g.submitErr
}

func (g *fakeGateway) MarkValidated(ctx context.Context, sessionID uint64) (*events.AutoRepeatWaiting, error) {
	g.record("mark_validated")
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiting, g.waitingErr
}

func (g *fakeGateway) AcknowledgeComplete(ctx context.Context, sessionID uint64) (*events.AutoRepeatWaiting, error) {
	g.record("acknowledge")
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiting, g.waitingErr
}

type fakeScreen struct {
	mu       sync.Mutex
	enterErr error
	enters   int
	sets     []bool
}

func (s *fakeScreen) TrySet(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets = append(s.sets, enabled)
}

func (s *fakeScreen) EnterAndConfirm(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enters++
	return s.enterErr
}

func (s *fakeScreen) lastSet() (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sets) == 0 {
		return false, false
	}
	return s.sets[len(s.sets)-1], true
}

type harness struct {
	t       *testing.T
	ctrl    *Controller
	gateway *fakeGateway
	screen  *fakeScreen
	clock   *clockwork.FakeClock
}

func newHarness(t *testing.T, sessionID uint64) *harness {
	t.Helper()

	h := &harness{
		t:       t,
		gateway: newFakeGateway(sessionID),
		screen:  &fakeScreen{},
		clock:   clockwork.NewFakeClock(),
	}
	h.ctrl = New(h.gateway, h.screen, h.clock, Config{BridgeInterval: 250 * time.Millisecond, CommandTimeout: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.ctrl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	h.t.Cleanup(cancel)
	return ctx
}

func (h *harness) snapshot() State {
	h.t.Helper()
	s, err := h.ctrl.Snapshot(h.ctx())
	if err != nil {
		h.t.Fatalf("Snapshot: %v", err)
	}
	return s
}

func (h *harness) deliver(notifications ...events.Notification) State {
	h.t.Helper()
	for _, n := range notifications {
		if err := h.ctrl.Deliver(h.ctx(), n); err != nil {
			h.t.Fatalf("Deliver: %v", err)
		}
	}
	return h.snapshot()
}

func (h *harness) start(autoRepeat *session.AutoRepeatConfig) {
	h.t.Helper()
	cfg := session.Config{DigitsPerNumber: 2, NumberDurationSeconds: 0.5, TotalNumbers: 3}
	if err := h.ctrl.Start(h.ctx(), cfg, autoRepeat); err != nil {
		h.t.Fatalf("Start: %v", err)
	}
}

// completeSession drives a started controller through a three number session.
func (h *harness) completeSession(id uint64, numbers ...int64) State {
	h.t.Helper()
	var sum int64
	var notifications []events.Notification
	notifications = append(notifications, events.CountdownTick{Value: "3"})
	for i, n := range numbers {
		sum += n
		notifications = append(notifications,
			events.ShowNumber{SessionID: id, Index: uint32(i + 1), Total: uint32(len(numbers)), Value: n, RunningSum: sum},
			events.ClearScreen{SessionID: id, Index: uint32(i + 1)},
		)
	}
	notifications = append(notifications, events.SessionComplete{SessionID: id, Numbers: numbers, Sum: sum})
	return h.deliver(notifications...)
}

func (h *harness) waitFor(what string, cond func(State) bool) State {
	h.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		s := h.snapshot()
		if cond(s) {
			return s
		}
		select {
		case <-deadline:
			h.t.Fatalf("timed out waiting for %s; state %+v", what, s)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

func (g *fakeGateway) waitForCount(t *testing.T, call string, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for g.count(call) < n {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d %s calls, got %d", n, call, g.count(call))
		case <-time.After(2 * time.Millisecond):
		}
	}
}
