package messaging

import "strings"

// Base capability: shared by every addressable model.
const (
	NamespaceBase = "base"

	AttrAddress = "base:address"
	AttrType    = "base:type"
	AttrID      = "base:id"

	EventAdded       = "base:Added"
	EventValueChange = "base:ValueChange"
	EventDeleted     = "base:Deleted"

	GetAttributes         = "base:GetAttributes"
	GetAttributesResponse = "base:GetAttributesResponse"
	EmptyResponse         = "EmptyMessage"
)

// Subsystem capability: attributes and requests common to every subsystem.
const (
	NamespaceSubsystem = "subs"

	// ModelTypeSubsystem is the base:type of every subsystem model.
	ModelTypeSubsystem = "subs"

	AttrSubsystemName      = "subs:name"
	AttrSubsystemVersion   = "subs:version"
	AttrSubsystemAccount   = "subs:account"
	AttrSubsystemPlace     = "subs:place"
	AttrSubsystemAvailable = "subs:available"
	AttrSubsystemState     = "subs:state"

	SubsystemStateActive    = "ACTIVE"
	SubsystemStateSuspended = "SUSPENDED"

	SubsystemActivate = "subs:Activate"
	SubsystemSuspend  = "subs:Suspend"

	// ListSubsystems is answered by the subsystem service pseudo-address.
	ListSubsystems         = "subs:ListSubsystems"
	ListSubsystemsResponse = "subs:ListSubsystemsResponse"
	AttrSubsystems         = "subsystems"
)

// Namespaces the runtime routes on.
const (
	NamespacePlace         = "place"
	NamespaceAlarmIncident = "incident"
	NamespaceAlarm         = "subalarm"
	NamespaceSecurity      = "subsecurity"
	NamespaceSafety        = "subsafety"
	NamespacePresence      = "subspres"

	// Message type namespaces intercepted by an active alarm subsystem.
	TypeNamespaceSecurity = "security"
	TypeNamespaceSafety   = "safety"
)

// Model types the runtime tracks for a place.
const (
	ModelTypeDevice = "dev"
	ModelTypeHub    = "hub"
	ModelTypePerson = "person"
	ModelTypePlace  = "place"
)

// TypeNamespace returns the namespace portion of a message type,
// e.g. "security" for "security:Arm". Types without a namespace return "".
func TypeNamespace(messageType string) string {
	ns, _, found := strings.Cut(messageType, ":")
	if !found {
		return ""
	}
	return ns
}

// SubsystemServiceAddress is the pseudo-address of the subsystem service
// itself (SERV:subs:), used for requests such as ListSubsystems.
func SubsystemServiceAddress() Address {
	return ServiceAddress(NamespaceSubsystem, "")
}

// PlaceAddress returns SERV:place:<placeID>.
func PlaceAddress(placeID string) Address {
	return ServiceAddress(NamespacePlace, placeID)
}

// SubsystemAddress returns SERV:<namespace>:<placeID>.
func SubsystemAddress(namespace, placeID string) Address {
	return ServiceAddress(namespace, placeID)
}
