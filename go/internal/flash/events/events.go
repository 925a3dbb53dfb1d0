package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope every push event travels in, on the WebSocket hub and
// on JetStream alike.
type Event struct {
	ID        string          `json:"id"`        // Event UUID
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Emission time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType names a push event.
type EventType string

const (
	EventTypeCountdownTick     EventType = "countdown_tick"
	EventTypeShowNumber        EventType = "show_number"
	EventTypeClearScreen       EventType = "clear_screen"
	EventTypeSessionComplete   EventType = "session_complete"
	EventTypeAutoRepeatWaiting EventType = "auto_repeat_waiting"
	EventTypeAutoRepeatTick    EventType = "auto_repeat_tick"
)

// AllTypes lists every event type in emission order of a typical session.
var AllTypes = []EventType{
	EventTypeClearScreen,
	EventTypeCountdownTick,
	EventTypeShowNumber,
	EventTypeSessionComplete,
	EventTypeAutoRepeatWaiting,
	EventTypeAutoRepeatTick,
}

// ErrUnknownEventType is returned by Decode for types outside AllTypes.
var ErrUnknownEventType = errors.New("unknown event type")

// Notification is a decoded event payload.
type Notification interface {
	EventType() EventType
}

// New wraps a payload in an envelope stamped with at.
func New(n Notification, at time.Time) (*Event, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", n.EventType(), err)
	}

	return &Event{
		ID:        uuid.New().String(),
		Type:      n.EventType(),
		Timestamp: at.UTC(),
		Data:      data,
	}, nil
}

// Decode parses event data into the matching payload struct.
func Decode(event *Event) (Notification, error) {
	switch event.Type {
	case EventTypeCountdownTick:
		var payload CountdownTick
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", event.Type, err)
		}
		return payload, nil

	case EventTypeShowNumber:
		var payload ShowNumber
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", event.Type, err)
		}
		return payload, nil

	case EventTypeClearScreen:
		var payload ClearScreen
		// clear_screen may arrive with no data at all
		if len(event.Data) > 0 && string(event.Data) != "null" {
			if err := json.Unmarshal(event.Data, &payload); err != nil {
				return nil, fmt.Errorf("decode %s: %w", event.Type, err)
			}
		}
		return payload, nil

	case EventTypeSessionComplete:
		var payload SessionComplete
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", event.Type, err)
		}
		return payload, nil

	case EventTypeAutoRepeatWaiting:
		var payload AutoRepeatWaiting
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", event.Type, err)
		}
		return payload, nil

	case EventTypeAutoRepeatTick:
		var payload AutoRepeatTick
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", event.Type, err)
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, event.Type)
	}
}

// DecodeMessage parses a raw envelope and its payload.
func DecodeMessage(raw []byte) (*Event, Notification, error) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, nil, fmt.Errorf("unmarshal event envelope: %w", err)
	}

	n, err := Decode(&event)
	if err != nil {
		return &event, nil, err
	}
	return &event, n, nil
}

// Subject returns the JetStream subject an event type is published on.
func Subject(prefix string, t EventType) string {
	return fmt.Sprintf("%s.%s", prefix, t)
}

// Subjects returns the subjects of every known event type under prefix.
func Subjects(prefix string) []string {
	subjects := make([]string, 0, len(AllTypes))
	for _, t := range AllTypes {
		subjects = append(subjects, Subject(prefix, t))
	}
	return subjects
}
