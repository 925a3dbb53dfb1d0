package session

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Bounds applied by the backend. Inputs outside them are clamped, not rejected.
const (
	MinDigitsPerNumber = 1
	MaxDigitsPerNumber = 18 // 10^18 still fits in int64
	MinTotalNumbers    = 1
	MaxTotalNumbers    = 10_000

	MinNumberDuration   = 100 * time.Millisecond
	MaxNumberDuration   = 60 * time.Second
	MaxDelayBetween     = 60 * time.Second
	MinAutoRepeats      = 1
	MaxAutoRepeats      = 20
	MinAutoRepeatDelayS = 5
	MaxAutoRepeatDelayS = 120
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid session config")

// Config is the practice configuration accepted by start_session.
type Config struct {
	DigitsPerNumber            int     `json:"digits_per_number" yaml:"digits_per_number"`
	NumberDurationSeconds      float64 `json:"number_duration_seconds" yaml:"number_duration_seconds"`
	DelayBetweenNumbersSeconds float64 `json:"delay_between_numbers_seconds" yaml:"delay_between_numbers_seconds"`
	TotalNumbers               int     `json:"total_numbers" yaml:"total_numbers"`
	AllowNegativeNumbers       bool    `json:"allow_negative_numbers" yaml:"allow_negative_numbers"`
}

// Validate checks the sign constraints of the configuration surface. Range
// limits are the backend's business.
func (c Config) Validate() error {
	switch {
	case c.DigitsPerNumber <= 0:
		return fmt.Errorf("%w: digits_per_number must be > 0", ErrInvalidConfig)
	case !(c.NumberDurationSeconds > 0):
		return fmt.Errorf("%w: number_duration_seconds must be > 0", ErrInvalidConfig)
	case !(c.DelayBetweenNumbersSeconds >= 0):
		return fmt.Errorf("%w: delay_between_numbers_seconds must be >= 0", ErrInvalidConfig)
	case c.TotalNumbers <= 0:
		return fmt.Errorf("%w: total_numbers must be > 0", ErrInvalidConfig)
	}
	return nil
}

// AutoRepeatConfig asks the backend to start new sessions automatically after
// each validated round.
type AutoRepeatConfig struct {
	Enabled      bool `json:"enabled" yaml:"enabled"`
	Repeats      int  `json:"repeats" yaml:"repeats"`
	DelaySeconds int  `json:"delay_seconds" yaml:"delay_seconds"`
}

// EffectiveConfig is the configuration the backend actually runs, with
// durations rounded to a tenth of a second.
type EffectiveConfig struct {
	DigitsPerNumber            int     `json:"digits_per_number"`
	NumberDurationSeconds      float64 `json:"number_duration_seconds"`
	DelayBetweenNumbersSeconds float64 `json:"delay_between_numbers_seconds"`
	TotalNumbers               int     `json:"total_numbers"`
	AllowNegativeNumbers       bool    `json:"allow_negative_numbers"`
}

// EffectiveAutoRepeat is the auto-repeat plan the backend accepted.
type EffectiveAutoRepeat struct {
	Enabled      bool `json:"enabled"`
	Repeats      int  `json:"repeats"`
	DelaySeconds int  `json:"delay_seconds"`
}

// Timing is the normalized configuration the session runner uses.
type Timing struct {
	DigitsPerNumber      int
	NumberDuration       time.Duration
	DelayBetweenNumbers  time.Duration
	TotalNumbers         int
	AllowNegativeNumbers bool
}

// Normalize clamps a requested configuration into the supported ranges.
func Normalize(c Config) (Timing, EffectiveConfig) {
	timing := Timing{
		DigitsPerNumber:      clampInt(c.DigitsPerNumber, MinDigitsPerNumber, MaxDigitsPerNumber),
		NumberDuration:       secondsToDuration(c.NumberDurationSeconds, MinNumberDuration, MaxNumberDuration),
		DelayBetweenNumbers:  secondsToDuration(c.DelayBetweenNumbersSeconds, 0, MaxDelayBetween),
		TotalNumbers:         clampInt(c.TotalNumbers, MinTotalNumbers, MaxTotalNumbers),
		AllowNegativeNumbers: c.AllowNegativeNumbers,
	}

	return timing, EffectiveConfig{
		DigitsPerNumber:            timing.DigitsPerNumber,
		NumberDurationSeconds:      roundTenth(timing.NumberDuration.Seconds()),
		DelayBetweenNumbersSeconds: roundTenth(timing.DelayBetweenNumbers.Seconds()),
		TotalNumbers:               timing.TotalNumbers,
		AllowNegativeNumbers:       timing.AllowNegativeNumbers,
	}
}

// NormalizeAutoRepeat returns nil when auto-repeat is absent or disabled.
func NormalizeAutoRepeat(a *AutoRepeatConfig) *EffectiveAutoRepeat {
	if a == nil || !a.Enabled {
		return nil
	}
	return &EffectiveAutoRepeat{
		Enabled:      true,
		Repeats:      clampInt(a.Repeats, MinAutoRepeats, MaxAutoRepeats),
		DelaySeconds: clampInt(a.DelaySeconds, MinAutoRepeatDelayS, MaxAutoRepeatDelayS),
	}
}

// Delay returns the pause between validation and the next automatic start.
func (a EffectiveAutoRepeat) Delay() time.Duration {
	return time.Duration(a.DelaySeconds) * time.Second
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func secondsToDuration(seconds float64, lo, hi time.Duration) time.Duration {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return lo
	}
	if seconds >= hi.Seconds() {
		return hi
	}
	ms := math.Round(seconds * 1000)
	if ms <= 0 {
		return lo
	}
	d := time.Duration(ms) * time.Millisecond
	return max(lo, min(d, hi))
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
