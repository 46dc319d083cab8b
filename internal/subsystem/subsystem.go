package subsystem

import "github.com/nerrad567/gray-logic-subsystems/internal/messaging"

// Subsystem is the business logic of one subsystem type.
//
// One instance serves every place. OnEvent is called from the place's
// dispatch goroutine with that place's context; a panic is recovered and
// logged and the event counts as handled.
type Subsystem interface {
	// Name is the human readable subsystem name, e.g. "subalarm".
	Name() string

	// Namespace is the address namespace of the subsystem's model.
	Namespace() string

	// Version is recorded on the model as subs:version.
	Version() string

	// OnEvent handles one event for one place.
	OnEvent(evt Event, sc *Context)
}

// Address returns the address of s in a place.
func Address(s Subsystem, placeID string) messaging.Address {
	return messaging.SubsystemAddress(s.Namespace(), placeID)
}
