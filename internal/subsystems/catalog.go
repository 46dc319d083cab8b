package subsystems

import (
	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
	"github.com/nerrad567/gray-logic-subsystems/internal/subsystem"
)

// Namespaces and states re-exported for catalog users.
const (
	NamespaceAlarm    = messaging.NamespaceAlarm
	NamespaceSecurity = messaging.NamespaceSecurity
	NamespaceSafety   = messaging.NamespaceSafety
	NamespacePresence = messaging.NamespacePresence

	StateActive    = messaging.SubsystemStateActive
	StateSuspended = messaging.SubsystemStateSuspended
)

// All returns one instance of every catalog subsystem, in dispatch order.
func All() []subsystem.Subsystem {
	return []subsystem.Subsystem{
		NewAlarm(),
		NewSecurity(),
		NewSafety(),
		NewPresence(),
	}
}
