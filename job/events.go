package job

import (
	"github.com/google/uuid"
)

// EventType identifies what an Event reports.
type EventType int

const (
	JobLoaded EventType = iota
	StateChanged
	BoardStarted
	BoardCompleted
	PartStarted
	PartCompleted
	PartPicked
	PartPlaced
	ErrorReported
	DetailedStatus
)

var eventNames = [...]string{
	JobLoaded:      "job_loaded",
	StateChanged:   "state_changed",
	BoardStarted:   "board_started",
	BoardCompleted: "board_completed",
	PartStarted:    "part_started",
	PartCompleted:  "part_completed",
	PartPicked:     "part_picked",
	PartPlaced:     "part_placed",
	ErrorReported:  "error",
	DetailedStatus: "status",
}

func (t EventType) String() string {
	if t >= 0 && int(t) < len(eventNames) {
		return eventNames[t]
	}
	return "unknown"
}

// Event is a notification from the engine. Only the fields relevant to
// Type are set.
type Event struct {
	Type  EventType
	RunID uuid.UUID

	State     State
	Board     string
	Placement string
	Err       *Error
	Status    string
}

// A Listener receives engine events. Events are delivered synchronously,
// in order, from the goroutine that caused them; listeners must not block.
type Listener interface {
	JobEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (fn ListenerFunc) JobEvent(e Event) { fn(e) }
