package subsystems

import "github.com/nerrad567/gray-logic-subsystems/internal/subsystem"

// Generic is a subsystem with only the common behaviour.
type Generic struct {
	Base
}

// NewSecurity returns the security subsystem.
func NewSecurity() *Generic {
	return &Generic{Base: NewBase("subsecurity", NamespaceSecurity, StateSuspended)}
}

// NewSafety returns the safety subsystem.
func NewSafety() *Generic {
	return &Generic{Base: NewBase("subsafety", NamespaceSafety, StateSuspended)}
}

// OnEvent implements subsystem.Subsystem.
func (g *Generic) OnEvent(evt subsystem.Event, sc *subsystem.Context) {
	if g.HandleCommon(evt, sc) {
		return
	}
	if m, ok := evt.(subsystem.MessageReceivedEvent); ok {
		Unsupported(m.Message, sc)
	}
}
