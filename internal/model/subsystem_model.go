package model

import "github.com/nerrad567/gray-logic-subsystems/internal/messaging"

// SubsystemModel is the typed view over an entity backing a subsystem.
// Subsystems with extra capabilities wrap it in their own views.
type SubsystemModel struct {
	entity *Entity
}

// NewSubsystemModel wraps e.
func NewSubsystemModel(e *Entity) *SubsystemModel {
	return &SubsystemModel{entity: e}
}

// Entity returns the backing entity.
func (m *SubsystemModel) Entity() *Entity {
	return m.entity
}

// Address returns the subsystem address.
func (m *SubsystemModel) Address() messaging.Address {
	return m.entity.Address()
}

// Namespace returns the subsystem namespace, e.g. "subalarm".
func (m *SubsystemModel) Namespace() string {
	return m.entity.Address().Namespace
}

// Get returns a raw attribute.
func (m *SubsystemModel) Get(name string) any {
	return m.entity.Get(name)
}

// Set assigns a raw attribute.
func (m *SubsystemModel) Set(name string, value any) {
	m.entity.Set(name, value)
}

// Name returns subs:name, the subsystem display name.
func (m *SubsystemModel) Name() string {
	return m.entity.GetString(messaging.AttrSubsystemName)
}

// SetName assigns subs:name.
func (m *SubsystemModel) SetName(name string) {
	m.entity.Set(messaging.AttrSubsystemName, name)
}

// Version returns subs:version.
func (m *SubsystemModel) Version() string {
	return m.entity.GetString(messaging.AttrSubsystemVersion)
}

// SetVersion assigns subs:version.
func (m *SubsystemModel) SetVersion(v string) {
	m.entity.Set(messaging.AttrSubsystemVersion, v)
}

// Place returns subs:place, the id of the owning place.
func (m *SubsystemModel) Place() string {
	return m.entity.GetString(messaging.AttrSubsystemPlace)
}

// SetPlace assigns subs:place.
func (m *SubsystemModel) SetPlace(placeID string) {
	m.entity.Set(messaging.AttrSubsystemPlace, placeID)
}

// Account returns subs:account, the id of the owning account.
func (m *SubsystemModel) Account() string {
	return m.entity.GetString(messaging.AttrSubsystemAccount)
}

// SetAccount assigns subs:account.
func (m *SubsystemModel) SetAccount(accountID string) {
	m.entity.Set(messaging.AttrSubsystemAccount, accountID)
}

// Available reports subs:available, whether the place may use the subsystem.
func (m *SubsystemModel) Available() bool {
	return m.entity.GetBool(messaging.AttrSubsystemAvailable)
}

// SetAvailable assigns subs:available.
func (m *SubsystemModel) SetAvailable(available bool) {
	m.entity.Set(messaging.AttrSubsystemAvailable, available)
}

// State returns subs:state, ACTIVE or SUSPENDED.
func (m *SubsystemModel) State() string {
	return m.entity.GetString(messaging.AttrSubsystemState)
}

// SetState assigns subs:state.
func (m *SubsystemModel) SetState(state string) {
	m.entity.Set(messaging.AttrSubsystemState, state)
}

// IsActive reports whether subs:state is ACTIVE.
func (m *SubsystemModel) IsActive() bool {
	return m.State() == messaging.SubsystemStateActive
}
