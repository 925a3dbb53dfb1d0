// Package view turns controller state into what the surface draws.
package view

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mcdev12/flashsum/go/internal/flash/controller"
	"github.com/mcdev12/flashsum/go/internal/flash/session"
)

// Screen selects the surface layout.
type Screen string

const (
	ScreenSetup  Screen = "setup"
	ScreenFlash  Screen = "flash"
	ScreenResult Screen = "result"
)

// View is everything the surface renders for one state.
type View struct {
	Screen    Screen `json:"screen"`
	Phase     string `json:"phase"`
	SessionID uint64 `json:"session_id,omitempty"`

	Display   string `json:"display"`
	Alternate bool   `json:"alternate"` // flips on every countdown tick
	Progress  string `json:"progress,omitempty"`
	Status    string `json:"status"`

	AnswerText  string   `json:"answer_text,omitempty"`
	Numbers     []string `json:"numbers,omitempty"`
	ExpectedSum string   `json:"expected_sum,omitempty"`
	Verdict     *Verdict `json:"verdict,omitempty"`
	Hint        string   `json:"hint,omitempty"`

	AutoRepeat string `json:"auto_repeat,omitempty"`
	Settings   string `json:"settings,omitempty"`
	Error      string `json:"error,omitempty"`

	Controls Controls `json:"controls"`
}

// Verdict is the rendered validation result.
type Verdict struct {
	Correct bool   `json:"correct"`
	Message string `json:"message"`
}

// Controls lists which user actions are currently meaningful.
type Controls struct {
	Start            bool `json:"start"`
	Stop             bool `json:"stop"`
	Submit           bool `json:"submit"`
	Reveal           bool `json:"reveal"`
	Dismiss          bool `json:"dismiss"`
	CancelAutoRepeat bool `json:"cancel_auto_repeat"`
}

// Render is a pure function of s.
func Render(s controller.State) View {
	v := View{
		Phase:      string(s.Phase),
		SessionID:  s.SessionID,
		Display:    s.Display,
		Alternate:  s.TickParity%2 == 1,
		AnswerText: s.AnswerText,
		Settings:   settings(s.EffectiveConfig),
		Error:      s.LastError,
	}

	switch s.Phase {
	case controller.PhaseIdle:
		v.Screen = ScreenSetup
		v.Status = "Ready"
		v.Controls.Start = true

	case controller.PhaseStarting:
		v.Screen = ScreenFlash
		v.Status = "Starting…"
		v.Controls.Stop = true

	case controller.PhaseCountdown:
		v.Screen = ScreenFlash
		v.Status = "Get ready"
		v.Controls.Stop = true

	case controller.PhaseFlashing:
		v.Screen = ScreenFlash
		v.Status = "Watch closely"
		if s.Total > 0 {
			v.Progress = fmt.Sprintf("%d / %d", s.Index, s.Total)
		}
		v.Controls.Stop = true

	case controller.PhaseComplete:
		v.Screen = ScreenResult
		v.Status = "What was the sum?"
		renderResult(&v, s)
	}

	return v
}

func renderResult(v *View, s controller.State) {
	v.Controls.Submit = !s.HasValidated
	v.Controls.Reveal = !s.Revealed
	v.Controls.Dismiss = true
	v.Hint = s.ValidationSummary

	if s.Validation != nil {
		v.Verdict = verdict(*s.Validation)
		v.Status = "Answer checked"
	}

	if s.Revealed || s.Validation != nil {
		v.Numbers = make([]string, len(s.Numbers))
		for i, n := range s.Numbers {
			v.Numbers[i] = formatInt(n)
		}
		if s.ExpectedSum != nil {
			v.ExpectedSum = formatInt(*s.ExpectedSum)
		}
	}

	ar := s.AutoRepeat
	if ar.Enabled {
		v.Controls.CancelAutoRepeat = true
		v.AutoRepeat = autoRepeat(ar)
	}
}

func verdict(val session.Validation) *Verdict {
	if val.Correct {
		return &Verdict{Correct: true, Message: fmt.Sprintf("Correct! The sum is %s.", formatInt(val.ExpectedSum))}
	}
	direction := "high"
	if val.Delta < 0 {
		direction = "low"
	}
	return &Verdict{
		Message: fmt.Sprintf("Not quite: %s is %s too %s. The sum is %s.",
			formatInt(val.ProvidedSum), formatInt(abs(val.Delta)), direction, formatInt(val.ExpectedSum)),
	}
}

func autoRepeat(ar controller.AutoRepeatState) string {
	rounds := "rounds"
	if ar.Remaining == 1 {
		rounds = "round"
	}
	if ar.SecondsLeft == nil {
		return fmt.Sprintf("Auto-repeat on, %d %s left", ar.Remaining, rounds)
	}
	if *ar.SecondsLeft == 0 {
		return "Next round starting…"
	}
	return fmt.Sprintf("Next round in %ds (%d %s left)", *ar.SecondsLeft, ar.Remaining, rounds)
}

func settings(c *session.EffectiveConfig) string {
	if c == nil {
		return ""
	}
	parts := []string{
		fmt.Sprintf("%d numbers", c.TotalNumbers),
		fmt.Sprintf("%d digits", c.DigitsPerNumber),
		strconv.FormatFloat(c.NumberDurationSeconds, 'f', -1, 64) + "s each",
	}
	if c.DelayBetweenNumbersSeconds > 0 {
		parts = append(parts, strconv.FormatFloat(c.DelayBetweenNumbersSeconds, 'f', -1, 64)+"s gap")
	}
	if c.AllowNegativeNumbers {
		parts = append(parts, "negatives")
	}
	return strings.Join(parts, " · ")
}

// formatInt groups thousands with commas, the same form answer input accepts.
func formatInt(n int64) string {
	digits := strconv.FormatInt(n, 10)
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}
	if len(digits) <= 3 {
		return sign + digits
	}

	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return sign + b.String()
}

func abs(n int64) int64 {
	if n < 0 {
		if n == -n { // math.MinInt64
			return n
		}
		return -n
	}
	return n
}
