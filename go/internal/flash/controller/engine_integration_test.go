package controller

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/flashsum/go/internal/flash/engine"
	"github.com/mcdev12/flashsum/go/internal/flash/events"
	"github.com/mcdev12/flashsum/go/internal/flash/fullscreen"
	"github.com/mcdev12/flashsum/go/internal/flash/session"
)

func TestControllerAgainstEngine(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	window := fullscreen.NewVirtual()
	screen := fullscreen.New(window, nil, fullscreen.Config{PollInterval: time.Millisecond, Attempts: 10, CallTimeout: time.Second})
	go screen.Run(ctx)

	var ctrl *Controller
	engineClock := clockwork.NewFakeClock()
	eng := engine.New(engineClock, engine.PublisherFunc(func(ctx context.Context, n events.Notification) error {
		return ctrl.Deliver(ctx, n)
	}), engine.DefaultConfig())
	defer eng.Close()

	ctrl = New(eng, screen, nil, DefaultConfig())
	go ctrl.Run(ctx)

	cfg := session.Config{DigitsPerNumber: 2, NumberDurationSeconds: 0.2, DelayBetweenNumbersSeconds: 0.1, TotalNumbers: 4}
	if err := ctrl.Start(ctx, cfg, nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !window.Fullscreen() {
		t.Fatalf("window not fullscreen after start")
	}

	var s State
	for {
		var err error
		s, err = ctrl.Snapshot(ctx)
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if s.Phase == PhaseComplete {
			break
		}
		if ctx.Err() != nil {
			t.Fatalf("session never completed, phase %s", s.Phase)
		}
		waitCtx, waitCancel := context.WithTimeout(ctx, 10*time.Millisecond)
		_ = engineClock.BlockUntilContext(waitCtx, 1)
		waitCancel()
		engineClock.Advance(50 * time.Millisecond)
	}

	if len(s.Numbers) != 4 || s.ExpectedSum == nil {
		t.Fatalf("complete state = %+v", s)
	}
	var sum int64
	for _, n := range s.Numbers {
		sum += n
	}
	if sum != *s.ExpectedSum {
		t.Fatalf("numbers %v do not add up to %d", s.Numbers, *s.ExpectedSum)
	}

	v, err := ctrl.SubmitAnswerText(ctx, strconv.FormatInt(sum, 10))
	if err != nil {
		t.Fatalf("SubmitAnswerText: %v", err)
	}
	if !v.Correct {
		t.Fatalf("validation = %+v", v)
	}

	v, err = ctrl.SubmitAnswer(ctx, sum+3)
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if v.Correct || v.Delta != 3 {
		t.Fatalf("validation = %+v, want delta 3", v)
	}
}
