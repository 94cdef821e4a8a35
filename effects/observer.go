package effects

import (
	"time"

	"github.com/google/uuid"
)

// EventKind classifies what the loop did.
type EventKind string

const (
	EventPassBegin EventKind = "pass_begin"
	EventKeep      EventKind = "keep"
	EventStart     EventKind = "start"
	EventStop      EventKind = "stop"
	EventPassEnd   EventKind = "pass_end"
	// EventDone is emitted when an effect's completion is processed.
	EventDone EventKind = "done"
	// EventStale is emitted when a dispatch from an effect that is no longer
	// running is dropped.
	EventStale     EventKind = "stale"
	EventTerminate EventKind = "terminate"
)

// Event describes one step of the loop. Key and Instance are empty for
// pass-level events.
type Event struct {
	Kind     EventKind
	Pass     uint64
	Key      Key
	Instance uuid.UUID
	At       time.Time
}

// Observer receives loop events synchronously on the loop goroutine. It must
// not block and must not call back into the loop.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) {
	f(e)
}

type nopObserver struct{}

func (nopObserver) Observe(Event) {}
