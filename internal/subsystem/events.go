package subsystem

import (
	"time"

	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
	"github.com/nerrad567/gray-logic-subsystems/internal/model"
)

// Event is delivered to Subsystem.OnEvent. Implementations switch on the
// concrete type.
type Event interface {
	// Kind names the event for logs and traces.
	Kind() string
}

// AddedEvent is delivered once, before any other event, to a subsystem
// whose model has never been persisted.
type AddedEvent struct{}

// StartedEvent is delivered when the place's executor starts.
type StartedEvent struct{}

// StoppedEvent is delivered when the place's executor stops.
type StoppedEvent struct{}

// RemovedEvent is delivered when the place is deleted. The context is
// deleted after the event is handled.
type RemovedEvent struct{}

// MessageReceivedEvent carries a platform message.
type MessageReceivedEvent struct {
	Message messaging.Message
}

// ScheduledEvent is delivered when a wake-up requested with
// Context.WakeUpIn or Context.WakeUpAt fires.
type ScheduledEvent struct {
	Address messaging.Address
	Time    time.Time

	id uint64
}

// ResponseEvent carries the outcome of a request sent with
// Context.SendAndExpectResponse: either the matching response or, when
// TimedOut is set, notice that none arrived in time.
type ResponseEvent struct {
	Address       messaging.Address
	CorrelationID string
	Request       messaging.Message
	Response      messaging.Message
	TimedOut      bool

	handler ResponseHandler
}

// ModelEvent relays a change in the place's model store.
type ModelEvent struct {
	Change model.Event
}

// ResponseHandler receives the ResponseEvent for a request. When a request
// is sent with a handler, the handler is called instead of OnEvent.
type ResponseHandler func(evt ResponseEvent, sc *Context)

func (AddedEvent) Kind() string           { return "added" }
func (StartedEvent) Kind() string         { return "started" }
func (StoppedEvent) Kind() string         { return "stopped" }
func (RemovedEvent) Kind() string         { return "removed" }
func (MessageReceivedEvent) Kind() string { return "message" }
func (ScheduledEvent) Kind() string       { return "scheduled" }
func (ResponseEvent) Kind() string        { return "response" }
func (ModelEvent) Kind() string           { return "model" }
