package model

import (
	"fmt"
	"maps"
	"reflect"
	"time"

	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
)

// Entity is a mutable, namespaced bag of attributes representing one
// addressable object (device, hub, person, place or subsystem).
//
// A tracking entity records which attributes changed since the last
// ClearDirty so that commits can persist and broadcast only the delta.
// The value an attribute held before its first change is kept so change
// events can report it. Entities built with Simple skip change tracking;
// they mirror state owned elsewhere and are only updated from bus traffic.
type Entity struct {
	address    messaging.Address
	modelType  string
	attributes map[string]any
	dirty      map[string]any
	tracking   bool
	created    time.Time
	modified   time.Time
}

// NewEntity creates a new, never persisted, tracking entity. The identity
// attributes are set and count as dirty.
func NewEntity(address messaging.Address, modelType string) *Entity {
	e := &Entity{
		address:    address,
		modelType:  modelType,
		attributes: make(map[string]any),
		dirty:      make(map[string]any),
		tracking:   true,
	}
	e.Set(messaging.AttrAddress, address.String())
	e.Set(messaging.AttrType, modelType)
	e.Set(messaging.AttrID, address.ID)
	return e
}

// FromAttributes rebuilds a tracking entity from stored attributes.
// The returned entity has no dirty attributes.
func FromAttributes(attrs map[string]any, created, modified time.Time) (*Entity, error) {
	raw, _ := attrs[messaging.AttrAddress].(string)
	address, err := messaging.ParseAddress(raw)
	if err != nil || address.IsBroadcast() {
		return nil, fmt.Errorf("%w: %q", ErrMissingAddress, raw)
	}
	modelType, _ := attrs[messaging.AttrType].(string)
	return &Entity{
		address:    address,
		modelType:  modelType,
		attributes: maps.Clone(attrs),
		dirty:      make(map[string]any),
		tracking:   true,
		created:    created,
		modified:   modified,
	}, nil
}

// Simple returns a copy of e that does not track changes.
func Simple(e *Entity) *Entity {
	return &Entity{
		address:    e.address,
		modelType:  e.modelType,
		attributes: maps.Clone(e.attributes),
		dirty:      make(map[string]any),
		created:    e.created,
		modified:   e.modified,
	}
}

// Address returns the address of the model.
func (e *Entity) Address() messaging.Address { return e.address }

// Type returns the base:type of the model.
func (e *Entity) Type() string { return e.modelType }

// ID returns the id portion of the address.
func (e *Entity) ID() string { return e.address.ID }

// IsSubsystem reports whether the entity backs a subsystem model.
func (e *Entity) IsSubsystem() bool { return e.modelType == messaging.ModelTypeSubsystem }

// Tracking reports whether the entity records dirty attributes.
func (e *Entity) Tracking() bool { return e.tracking }

// Get returns the value of an attribute, or nil.
func (e *Entity) Get(name string) any {
	return e.attributes[name]
}

// GetString returns an attribute as a string, or "".
func (e *Entity) GetString(name string) string {
	v, _ := e.attributes[name].(string)
	return v
}

// GetBool returns an attribute as a bool, or false.
func (e *Entity) GetBool(name string) bool {
	v, _ := e.attributes[name].(bool)
	return v
}

// Has reports whether the attribute is set.
func (e *Entity) Has(name string) bool {
	_, ok := e.attributes[name]
	return ok
}

// Set assigns an attribute and returns the previous value. A nil value
// removes the attribute. Setting an equal value is a no-op and does not
// mark the attribute dirty.
func (e *Entity) Set(name string, value any) any {
	old, existed := e.attributes[name]
	if existed && reflect.DeepEqual(old, value) {
		return old
	}
	if !existed && value == nil {
		return nil
	}
	if value == nil {
		delete(e.attributes, name)
	} else {
		e.attributes[name] = value
	}
	if e.tracking {
		if _, seen := e.dirty[name]; !seen {
			e.dirty[name] = old
		}
	}
	return old
}

// Update applies every attribute in attrs and returns the names that changed.
func (e *Entity) Update(attrs map[string]any) []string {
	var changed []string
	for name, value := range attrs {
		old, existed := e.attributes[name]
		if existed && reflect.DeepEqual(old, value) {
			continue
		}
		if !existed && value == nil {
			continue
		}
		e.Set(name, value)
		changed = append(changed, name)
	}
	return changed
}

// Attributes returns a snapshot of every attribute.
func (e *Entity) Attributes() map[string]any {
	return maps.Clone(e.attributes)
}

// IsDirty reports whether any attribute changed since the last ClearDirty.
func (e *Entity) IsDirty() bool {
	return len(e.dirty) > 0
}

// DirtyAttributes returns the current value of every dirty attribute.
// Removed attributes are reported with a nil value.
func (e *Entity) DirtyAttributes() map[string]any {
	out := make(map[string]any, len(e.dirty))
	for name := range e.dirty {
		out[name] = e.attributes[name]
	}
	return out
}

// Previous returns the value a dirty attribute had before its first change
// since the last ClearDirty.
func (e *Entity) Previous(name string) any {
	return e.dirty[name]
}

// ClearDirty forgets every recorded change.
func (e *Entity) ClearDirty() {
	clear(e.dirty)
}

// Created returns when the entity was first persisted.
func (e *Entity) Created() time.Time { return e.created }

// SetCreated records the first-persisted timestamp. The zero time marks the
// entity as not persisted.
func (e *Entity) SetCreated(t time.Time) { e.created = t }

// Modified returns the last persisted modification time.
func (e *Entity) Modified() time.Time { return e.modified }

// SetModified records the last persisted modification time.
func (e *Entity) SetModified(t time.Time) { e.modified = t }

// IsPersisted reports whether the entity has ever been written.
func (e *Entity) IsPersisted() bool {
	return !e.created.IsZero()
}
