package subsystems

import (
	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
	"github.com/nerrad567/gray-logic-subsystems/internal/model"
	"github.com/nerrad567/gray-logic-subsystems/internal/subsystem"
)

// Presence attributes.
const (
	// AttrPersonPresent is set on person models by the presence drivers.
	AttrPersonPresent = "pres:present"

	AttrPresenceOccupied  = "subspres:occupied"
	AttrPresenceOccupants = "subspres:occupants"
)

// Presence derives place occupancy from the people in the place.
type Presence struct {
	Base
}

// NewPresence returns the presence subsystem.
func NewPresence() *Presence {
	return &Presence{Base: NewBase("subspres", NamespacePresence, StateActive)}
}

// OnEvent implements subsystem.Subsystem.
func (p *Presence) OnEvent(evt subsystem.Event, sc *subsystem.Context) {
	switch ev := evt.(type) {
	case subsystem.StartedEvent:
		p.HandleCommon(evt, sc)
		p.refresh(sc)
		return
	case subsystem.ModelEvent:
		if isPersonChange(ev.Change) {
			p.refresh(sc)
		}
		return
	}
	if p.HandleCommon(evt, sc) {
		return
	}
	if m, ok := evt.(subsystem.MessageReceivedEvent); ok {
		Unsupported(m.Message, sc)
	}
}

func (p *Presence) refresh(sc *subsystem.Context) {
	occupants := 0
	for _, person := range sc.Models().ModelsOfType(messaging.ModelTypePerson) {
		if person.GetBool(AttrPersonPresent) {
			occupants++
		}
	}
	// Stored counts come back from persistence as float64.
	if current, ok := asInt(sc.Model().Get(AttrPresenceOccupants)); !ok || current != occupants {
		sc.Model().Set(AttrPresenceOccupants, occupants)
	}
	sc.Model().Set(AttrPresenceOccupied, occupants > 0)
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}

func isPersonChange(evt model.Event) bool {
	switch ev := evt.(type) {
	case model.AddedEvent:
		return ev.Model.Type() == messaging.ModelTypePerson
	case model.RemovedEvent:
		return ev.Model.Type() == messaging.ModelTypePerson
	case model.ChangedEvent:
		return ev.ModelType == messaging.ModelTypePerson && ev.Attribute == AttrPersonPresent
	}
	return false
}
