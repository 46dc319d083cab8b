// Package model holds the in-memory model state of a place: the mutable
// attribute bags (Entity) backing every addressable object, the typed
// SubsystemModel view, and the observable Store that keeps them in sync
// with platform traffic.
//
// # Ownership
//
// Entities and stores are not safe for concurrent use. Each place's store,
// and every entity in it, is owned by that place's single dispatch goroutine.
//
// # Self-update suppression
//
// Subsystem contexts mutate their own entities directly and then broadcast
// the change. A store built with NewSubsystemStore ignores added and
// value-change messages describing subsystem models so that those
// broadcasts, when they loop back through the bus, are not applied twice.
// Models of every other type (devices, hubs, people, the place) are updated
// from bus traffic normally.
package model
