package model

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
)

func TestNewEntity_IdentityIsDirty(t *testing.T) {
	addr := messaging.SubsystemAddress(messaging.NamespaceAlarm, "p1")
	e := NewEntity(addr, messaging.ModelTypeSubsystem)

	if e.IsPersisted() {
		t.Error("new entity reports persisted")
	}
	dirty := e.DirtyAttributes()
	for _, name := range []string{messaging.AttrAddress, messaging.AttrType, messaging.AttrID} {
		if _, ok := dirty[name]; !ok {
			t.Errorf("identity attribute %s not dirty", name)
		}
	}
	if got := e.GetString(messaging.AttrAddress); got != addr.String() {
		t.Errorf("base:address = %q, want %q", got, addr.String())
	}
	if !e.IsSubsystem() {
		t.Error("IsSubsystem() = false")
	}
}

func TestEntity_SetTracksOnlyChanges(t *testing.T) {
	e := NewEntity(messaging.PlaceAddress("p1"), messaging.ModelTypePlace)
	e.ClearDirty()

	e.Set("x", 1)
	e.Set("x", 1)
	if got := len(e.DirtyAttributes()); got != 1 {
		t.Fatalf("dirty count = %d, want 1", got)
	}
	e.ClearDirty()

	e.Set("x", 1)
	if e.IsDirty() {
		t.Error("setting an equal value marked the attribute dirty")
	}

	e.Set("x", nil)
	dirty := e.DirtyAttributes()
	if v, ok := dirty["x"]; !ok || v != nil {
		t.Errorf("removed attribute dirty = %v/%v, want nil/true", v, ok)
	}
	if e.Has("x") {
		t.Error("attribute still present after nil set")
	}
}

func TestEntity_SetNilOnMissingIsNoop(t *testing.T) {
	e := NewEntity(messaging.PlaceAddress("p1"), messaging.ModelTypePlace)
	e.ClearDirty()
	e.Set("missing", nil)
	if e.IsDirty() {
		t.Error("removing an absent attribute marked it dirty")
	}
}

func TestSimple_DoesNotTrack(t *testing.T) {
	e := NewEntity(messaging.DriverAddress("d1"), messaging.ModelTypeDevice)
	s := Simple(e)
	s.Set("dev:name", "lamp")
	if s.IsDirty() {
		t.Error("simple entity tracked a change")
	}
	if s.Tracking() {
		t.Error("Tracking() = true")
	}
	if e.Has("dev:name") {
		t.Error("Simple shares attributes with the source entity")
	}
}

func TestFromAttributes(t *testing.T) {
	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	e, err := FromAttributes(map[string]any{
		messaging.AttrAddress: "SERV:subalarm:p1",
		messaging.AttrType:    messaging.ModelTypeSubsystem,
		"subs:state":          "ACTIVE",
	}, created, created)
	if err != nil {
		t.Fatalf("FromAttributes() error = %v", err)
	}
	if !e.IsPersisted() || e.IsDirty() {
		t.Errorf("persisted=%v dirty=%v, want true/false", e.IsPersisted(), e.IsDirty())
	}
	if e.ID() != "p1" {
		t.Errorf("ID() = %q, want p1", e.ID())
	}

	_, err = FromAttributes(map[string]any{"x": 1}, created, created)
	if !errors.Is(err, ErrMissingAddress) {
		t.Errorf("missing address error = %v, want ErrMissingAddress", err)
	}
}

func TestSubsystemModel_Accessors(t *testing.T) {
	m := NewSubsystemModel(NewEntity(messaging.SubsystemAddress(messaging.NamespaceAlarm, "p1"), messaging.ModelTypeSubsystem))
	m.SetName("subalarm")
	m.SetVersion("1.0")
	m.SetPlace("p1")
	m.SetAccount("a1")
	m.SetAvailable(true)
	m.SetState(messaging.SubsystemStateActive)

	if m.Name() != "subalarm" || m.Version() != "1.0" || m.Place() != "p1" || m.Account() != "a1" {
		t.Errorf("accessors = %q %q %q %q", m.Name(), m.Version(), m.Place(), m.Account())
	}
	if !m.Available() || !m.IsActive() {
		t.Errorf("Available()=%v IsActive()=%v", m.Available(), m.IsActive())
	}
	if m.Namespace() != messaging.NamespaceAlarm {
		t.Errorf("Namespace() = %q", m.Namespace())
	}
}

func TestEntity_PreviousKeepsFirstValue(t *testing.T) {
	e := NewEntity(messaging.PlaceAddress("p1"), messaging.ModelTypePlace)
	e.Set("x", "a")
	e.ClearDirty()

	e.Set("x", "b")
	e.Set("x", "c")
	if got := e.Previous("x"); got != "a" {
		t.Errorf("Previous() = %v, want a", got)
	}
}
