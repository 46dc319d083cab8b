// Package subsystems holds the catalog of subsystem types hosted for every
// place.
//
// Each type embeds Base, which implements the behaviour shared by all
// subsystems: identity attributes on first load, availability across
// executor start and stop, and the generic base:GetAttributes,
// subs:Activate and subs:Suspend requests. Requests a subsystem does not
// understand are answered with an UnsupportedMessageType error.
package subsystems
