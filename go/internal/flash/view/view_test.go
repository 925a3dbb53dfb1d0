package view

import (
	"reflect"
	"testing"

	"github.com/mcdev12/flashsum/go/internal/flash/controller"
	"github.com/mcdev12/flashsum/go/internal/flash/session"
)

func ptr[T any](v T) *T { return &v }

func TestRenderScreensAndControls(t *testing.T) {
	tests := []struct {
		name     string
		state    controller.State
		screen   Screen
		controls Controls
	}{
		{
			name:     "idle",
			state:    controller.State{Phase: controller.PhaseIdle},
			screen:   ScreenSetup,
			controls: Controls{Start: true},
		},
		{
			name:     "starting",
			state:    controller.State{Phase: controller.PhaseStarting},
			screen:   ScreenFlash,
			controls: Controls{Stop: true},
		},
		{
			name:     "flashing",
			state:    controller.State{Phase: controller.PhaseFlashing, Index: 2, Total: 5},
			screen:   ScreenFlash,
			controls: Controls{Stop: true},
		},
		{
			name:     "complete before answer",
			state:    controller.State{Phase: controller.PhaseComplete},
			screen:   ScreenResult,
			controls: Controls{Submit: true, Reveal: true, Dismiss: true},
		},
		{
			name: "complete with auto-repeat after answer",
			state: controller.State{
				Phase:        controller.PhaseComplete,
				HasValidated: true,
				Revealed:     true,
				AutoRepeat:   controller.AutoRepeatState{Enabled: true, Remaining: 2},
			},
			screen:   ScreenResult,
			controls: Controls{Dismiss: true, CancelAutoRepeat: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Render(tt.state)
			if v.Screen != tt.screen {
				t.Errorf("screen = %s, want %s", v.Screen, tt.screen)
			}
			if v.Controls != tt.controls {
				t.Errorf("controls = %+v, want %+v", v.Controls, tt.controls)
			}
		})
	}
}

func TestRenderProgress(t *testing.T) {
	v := Render(controller.State{Phase: controller.PhaseFlashing, Display: "42", Index: 3, Total: 10})
	if v.Progress != "3 / 10" || v.Display != "42" {
		t.Fatalf("view = %+v", v)
	}
}

func TestRenderHidesNumbersUntilRevealed(t *testing.T) {
	s := controller.State{
		Phase:       controller.PhaseComplete,
		Numbers:     []int64{1200, -7, 5},
		ExpectedSum: ptr(int64(1198)),
	}
	if v := Render(s); v.Numbers != nil || v.ExpectedSum != "" {
		t.Fatalf("numbers leaked before reveal: %+v", v)
	}

	s.Revealed = true
	v := Render(s)
	if !reflect.DeepEqual(v.Numbers, []string{"1,200", "-7", "5"}) || v.ExpectedSum != "1,198" {
		t.Fatalf("revealed view = %v %q", v.Numbers, v.ExpectedSum)
	}
}

func TestRenderVerdict(t *testing.T) {
	tests := []struct {
		name       string
		validation session.Validation
		want       Verdict
	}{
		{
			name:       "correct",
			validation: session.Validate(30, 30),
			want:       Verdict{Correct: true, Message: "Correct! The sum is 30."},
		},
		{
			name:       "too high",
			validation: session.Validate(30, 33),
			want:       Verdict{Message: "Not quite: 33 is 3 too high. The sum is 30."},
		},
		{
			name:       "too low",
			validation: session.Validate(2500, 1000),
			want:       Verdict{Message: "Not quite: 1,000 is 1,500 too low. The sum is 2,500."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Render(controller.State{Phase: controller.PhaseComplete, Validation: &tt.validation, HasValidated: true})
			if v.Verdict == nil || *v.Verdict != tt.want {
				t.Fatalf("verdict = %+v, want %+v", v.Verdict, tt.want)
			}
		})
	}
}

func TestRenderAutoRepeat(t *testing.T) {
	tests := []struct {
		ar   controller.AutoRepeatState
		want string
	}{
		{controller.AutoRepeatState{Enabled: true, Remaining: 2}, "Auto-repeat on, 2 rounds left"},
		{controller.AutoRepeatState{Enabled: true, Remaining: 1, SecondsLeft: ptr(uint64(7))}, "Next round in 7s (1 round left)"},
		{controller.AutoRepeatState{Enabled: true, Remaining: 0, SecondsLeft: ptr(uint64(0))}, "Next round starting…"},
		{controller.AutoRepeatState{Enabled: false, SecondsLeft: ptr(uint64(7))}, ""},
	}

	for _, tt := range tests {
		v := Render(controller.State{Phase: controller.PhaseComplete, AutoRepeat: tt.ar})
		if v.AutoRepeat != tt.want {
			t.Errorf("auto repeat %+v rendered %q, want %q", tt.ar, v.AutoRepeat, tt.want)
		}
	}
}

func TestRenderAlternatesWithTickParity(t *testing.T) {
	a := Render(controller.State{Phase: controller.PhaseCountdown, TickParity: 1})
	b := Render(controller.State{Phase: controller.PhaseCountdown, TickParity: 2})
	if a.Alternate == b.Alternate {
		t.Fatalf("consecutive ticks rendered the same treatment")
	}
}

func TestSettings(t *testing.T) {
	got := settings(&session.EffectiveConfig{
		DigitsPerNumber:            3,
		NumberDurationSeconds:      0.5,
		DelayBetweenNumbersSeconds: 0.2,
		TotalNumbers:               10,
		AllowNegativeNumbers:       true,
	})
	want := "10 numbers · 3 digits · 0.5s each · 0.2s gap · negatives"
	if got != want {
		t.Fatalf("settings = %q, want %q", got, want)
	}
	if settings(nil) != "" {
		t.Fatalf("nil config rendered settings")
	}
}

func TestFormatInt(t *testing.T) {
	tests := map[int64]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		-1234567: "-1,234,567",
		100000:   "100,000",
	}
	for in, want := range tests {
		if got := formatInt(in); got != want {
			t.Errorf("formatInt(%d) = %q, want %q", in, got, want)
		}
	}
}
