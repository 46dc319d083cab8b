// Package messaging defines the platform message envelope exchanged between
// place-scoped subsystems and the rest of the Gray Logic platform.
//
// A Message carries a typed Body (a namespaced type such as "base:ValueChange"
// plus an attribute map), the source and destination Address, the place and
// population it belongs to, and an optional correlation id and time-to-live.
//
// # Addresses
//
// Addresses have the textual form GROUP:NAMESPACE:ID, for example
// "SERV:subalarm:3f2c..." for the alarm subsystem of a place. The zero
// Address is the broadcast address.
//
// The wire encoding of messages is owned by the bus package; this package
// is transport independent.
package messaging
