package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/timerboard/go/internal/timers"
)

// Event payload types that are shared between the relay and the event mirror

// Type names a frame on the board protocol
type Type string

const (
	// client -> relay
	TypeAddTimer     Type = "add-timer"
	TypeRequestTime  Type = "request-time"
	TypeTimerUpdate  Type = "timer-update"
	TypeMoveTimer    Type = "move-timer"
	TypeTimerDeleted Type = "timer-deleted"

	// relay -> client
	TypeInitTimers Type = "init-timers"
	TypeTimerAdded Type = "timer-added"
	TypeTimerSync  Type = "timer-sync"
	TypeTimerMoved Type = "timer-moved"
	TypeError      Type = "error"
)

// Envelope is the JSON frame exchanged over the socket
type Envelope struct {
	Type      Type            `json:"type"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into a frame stamped with at.
func NewEnvelope(eventType Type, at time.Time, data interface{}) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{Type: eventType, Timestamp: &at, Data: raw}, nil
}

// AddTimerPayload is sent with add-timer and re-announced as timer-added
type AddTimerPayload = timers.Timer

// RequestTimePayload asks for one timer's current remaining time
type RequestTimePayload struct {
	ID string `json:"id"`
}

// TimerUpdatePayload is a client-reported countdown value
type TimerUpdatePayload struct {
	ID              string `json:"id"`
	TimeLeftSeconds int    `json:"timeLeftSeconds"`
}

// TimerSyncPayload carries the authoritative remaining time for one timer.
// Clients filter on ID.
type TimerSyncPayload struct {
	ID              string `json:"id"`
	TimeLeftSeconds int    `json:"timeLeftSeconds"`
}

// MoveTimerPayload is used both for move-timer and timer-moved
type MoveTimerPayload struct {
	ID      string         `json:"id"`
	Section timers.Section `json:"section"`
}

// ErrorPayload tells the sender a frame was refused
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeBadFrame       = "bad_frame"
	ErrCodeUnknownType    = "unknown_type"
	ErrCodeInvalidSection = "invalid_section"
	ErrCodeDuplicateID    = "duplicate_id"
)
