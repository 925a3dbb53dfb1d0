package events

import "encoding/json"

// Event payload types shared by the engine, the backend hub and the client subscriber.

// CountdownTick carries one countdown value ("3", "2", "1"). On the wire the
// payload is a bare JSON string.
type CountdownTick struct {
	Value string
}

func (CountdownTick) EventType() EventType { return EventTypeCountdownTick }

func (c CountdownTick) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Value)
}

func (c *CountdownTick) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &c.Value)
}

// ShowNumber is emitted once per flashed value.
type ShowNumber struct {
	SessionID   uint64 `json:"session_id"`
	Index       uint32 `json:"index"`
	Total       uint32 `json:"total"`
	Value       int64  `json:"value"`
	RunningSum  int64  `json:"running_sum"`
	EmittedAtMs int64  `json:"emitted_at_ms,omitempty"`
}

func (ShowNumber) EventType() EventType { return EventTypeShowNumber }

// ClearScreen blanks the display. It is sent between numbers and around the
// countdown, so it never implies completion.
type ClearScreen struct {
	SessionID   uint64 `json:"session_id,omitempty"`
	Index       uint32 `json:"index,omitempty"`
	EmittedAtMs int64  `json:"emitted_at_ms,omitempty"`
}

func (ClearScreen) EventType() EventType { return EventTypeClearScreen }

// SessionComplete is the backend's record of a finished session.
type SessionComplete struct {
	SessionID uint64  `json:"session_id"`
	Numbers   []int64 `json:"numbers"`
	Sum       int64   `json:"sum"`
}

func (SessionComplete) EventType() EventType { return EventTypeSessionComplete }

// AutoRepeatWaiting announces that a new session will start at NextStartAtMs
// (unix milliseconds). A zero deadline means the backend did not send one.
type AutoRepeatWaiting struct {
	SessionID     uint64 `json:"session_id"`
	NextStartAtMs uint64 `json:"next_start_at_ms"`
	Remaining     uint32 `json:"remaining"`
}

func (AutoRepeatWaiting) EventType() EventType { return EventTypeAutoRepeatWaiting }

// AutoRepeatTick is the authoritative auto-repeat countdown.
type AutoRepeatTick struct {
	SessionID   uint64 `json:"session_id"`
	SecondsLeft uint64 `json:"seconds_left"`
	Remaining   uint32 `json:"remaining"`
}

func (AutoRepeatTick) EventType() EventType { return EventTypeAutoRepeatTick }
