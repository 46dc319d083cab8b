package model

import "github.com/nerrad567/gray-logic-subsystems/internal/messaging"

// Event is a change notification fired by a Store.
type Event interface {
	Address() messaging.Address
	modelEvent()
}

// AddedEvent reports a model added to the store.
type AddedEvent struct {
	Model *Entity
}

func (e AddedEvent) Address() messaging.Address { return e.Model.Address() }

func (AddedEvent) modelEvent() {}

// ChangedEvent reports a single attribute change.
type ChangedEvent struct {
	Model     messaging.Address
	ModelType string
	Attribute string
	Value     any
	OldValue  any
}

func (e ChangedEvent) Address() messaging.Address { return e.Model }

func (ChangedEvent) modelEvent() {}

// RemovedEvent reports a model removed from the store.
type RemovedEvent struct {
	Model *Entity
}

func (e RemovedEvent) Address() messaging.Address { return e.Model.Address() }

func (RemovedEvent) modelEvent() {}

// Listener observes store events.
type Listener func(Event)
