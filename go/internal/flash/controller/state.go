package controller

import "github.com/mcdev12/flashsum/go/internal/flash/session"

// State is the controller's owned record. Observers and Snapshot only ever
// see copies.
type State struct {
	Phase     Phase  `json:"phase"`
	SessionID uint64 `json:"session_id,omitempty"` // 0 when no session is tracked

	Display    string `json:"display"`
	TickParity uint64 `json:"tick_parity"`
	Index      uint32 `json:"index"`
	Total      uint32 `json:"total"`

	Numbers     []int64 `json:"numbers"`
	RunningSum  int64   `json:"running_sum"`
	ExpectedSum *int64  `json:"expected_sum,omitempty"`

	AnswerText        string              `json:"answer_text,omitempty"`
	Validation        *session.Validation `json:"validation,omitempty"`
	ValidationSummary string              `json:"validation_summary,omitempty"`
	ValidationSeq     uint64              `json:"validation_seq"`
	HasValidated      bool                `json:"has_validated"`
	Revealed          bool                `json:"revealed"`

	AutoRepeat AutoRepeatState `json:"auto_repeat"`

	EffectiveConfig     *session.EffectiveConfig     `json:"effective_config,omitempty"`
	EffectiveAutoRepeat *session.EffectiveAutoRepeat `json:"effective_auto_repeat,omitempty"`

	LastError  string `json:"last_error,omitempty"`
	Violations uint64 `json:"violations"`
}

// AutoRepeatState is the local view of the backend's auto-repeat schedule.
type AutoRepeatState struct {
	Enabled     bool    `json:"enabled"`
	Remaining   uint32  `json:"remaining"`
	SecondsLeft *uint64 `json:"seconds_left,omitempty"`
	FromTick    bool    `json:"from_tick"` // a tick arrived for the tracked session
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	if s.Numbers != nil {
		out.Numbers = append([]int64(nil), s.Numbers...)
	}
	out.ExpectedSum = clonePtr(s.ExpectedSum)
	out.Validation = clonePtr(s.Validation)
	out.AutoRepeat.SecondsLeft = clonePtr(s.AutoRepeat.SecondsLeft)
	out.EffectiveConfig = clonePtr(s.EffectiveConfig)
	out.EffectiveAutoRepeat = clonePtr(s.EffectiveAutoRepeat)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
