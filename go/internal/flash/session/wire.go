package session

import "github.com/mcdev12/flashsum/go/internal/flash/events"

// Request and response bodies of the command API.

type StartRequest struct {
	Config     Config            `json:"config"`
	AutoRepeat *AutoRepeatConfig `json:"auto_repeat,omitempty"`
}

type StartResult struct {
	SessionID           uint64               `json:"session_id"`
	EffectiveConfig     EffectiveConfig      `json:"effective_config"`
	EffectiveAutoRepeat *EffectiveAutoRepeat `json:"effective_auto_repeat,omitempty"`
}

type SubmitAnswerRequest struct {
	ProvidedSum int64 `json:"provided_sum"`
}

type SubmitAnswerTextRequest struct {
	ProvidedText string `json:"provided_text"`
}

// SubmitResult folds the auto-repeat waiting payload into the validation
// response so both are observed together.
type SubmitResult struct {
	Validation        Validation                `json:"validation"`
	AutoRepeatWaiting *events.AutoRepeatWaiting `json:"auto_repeat_waiting,omitempty"`
}

type WaitingResponse struct {
	AutoRepeatWaiting *events.AutoRepeatWaiting `json:"auto_repeat_waiting,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
