package model

import (
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
)

// UpdateFilter decides whether a bus message may be applied to the store.
// existing is the model the message describes, or nil when unknown.
type UpdateFilter func(existing *Entity, msg messaging.Message) bool

// Store is an observable, in-memory collection of models keyed by address.
//
// Store is not safe for concurrent use; see the package documentation.
type Store struct {
	models    map[messaging.Address]*Entity
	listeners []*listenerEntry
	filter    UpdateFilter
}

type listenerEntry struct {
	fn Listener
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithUpdateFilter installs a filter consulted by Update.
func WithUpdateFilter(f UpdateFilter) StoreOption {
	return func(s *Store) { s.filter = f }
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{models: make(map[messaging.Address]*Entity)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSubsystemStore creates a store that ignores added and value-change
// messages for subsystem models. Subsystem contexts are the sole writers of
// those models; their own broadcasts must not be re-applied.
func NewSubsystemStore() *Store {
	return NewStore(WithUpdateFilter(ignoreSubsystemUpdates))
}

func ignoreSubsystemUpdates(existing *Entity, msg messaging.Message) bool {
	switch msg.Type() {
	case messaging.EventAdded:
		if existing != nil && existing.IsSubsystem() {
			return false
		}
		return msg.Body.StringAttr(messaging.AttrType) != messaging.ModelTypeSubsystem
	case messaging.EventValueChange:
		return existing == nil || !existing.IsSubsystem()
	}
	return true
}

// AddModels bulk-loads models without firing events.
func (s *Store) AddModels(models []*Entity) {
	for _, m := range models {
		s.models[m.Address()] = m
	}
}

// Add inserts or replaces a model and fires an AddedEvent.
func (s *Store) Add(m *Entity) {
	s.models[m.Address()] = m
	s.FireModelEvent(AddedEvent{Model: m})
}

// Get returns the model at addr.
func (s *Store) Get(addr messaging.Address) (*Entity, bool) {
	m, ok := s.models[addr]
	return m, ok
}

// Remove deletes the model at addr and fires a RemovedEvent.
func (s *Store) Remove(addr messaging.Address) (*Entity, bool) {
	m, ok := s.models[addr]
	if !ok {
		return nil, false
	}
	delete(s.models, addr)
	s.FireModelEvent(RemovedEvent{Model: m})
	return m, true
}

// Len returns the number of models held.
func (s *Store) Len() int {
	return len(s.models)
}

// Models returns every model ordered by address.
func (s *Store) Models() []*Entity {
	out := make([]*Entity, 0, len(s.models))
	for _, m := range s.models {
		out = append(out, m)
	}
	sortByAddress(out)
	return out
}

// ModelsOfType returns every model of the given base:type ordered by address.
func (s *Store) ModelsOfType(modelType string) []*Entity {
	var out []*Entity
	for _, m := range s.models {
		if m.Type() == modelType {
			out = append(out, m)
		}
	}
	sortByAddress(out)
	return out
}

// AddListener registers l and returns a function that removes it.
func (s *Store) AddListener(l Listener) func() {
	entry := &listenerEntry{fn: l}
	s.listeners = append(s.listeners, entry)
	return func() {
		s.listeners = slices.DeleteFunc(s.listeners, func(e *listenerEntry) bool {
			return e == entry
		})
	}
}

// FireModelEvent notifies every listener of evt. Listeners added or removed
// while firing take effect on the next event.
func (s *Store) FireModelEvent(evt Event) {
	for _, l := range slices.Clone(s.listeners) {
		l.fn(evt)
	}
}

// Update applies an added, value-change or deleted message describing the
// model at msg.Source. It reports whether the store changed.
func (s *Store) Update(msg messaging.Message) bool {
	existing := s.models[msg.Source]
	if s.filter != nil && !s.filter(existing, msg) {
		return false
	}

	switch msg.Type() {
	case messaging.EventAdded:
		return s.applyAdded(existing, msg)
	case messaging.EventValueChange:
		if existing == nil {
			return false
		}
		return s.applyChanges(existing, msg.Body.Attributes)
	case messaging.EventDeleted:
		if existing == nil {
			return false
		}
		_, removed := s.Remove(msg.Source)
		return removed
	default:
		return false
	}
}

func (s *Store) applyAdded(existing *Entity, msg messaging.Message) bool {
	if existing != nil {
		return s.applyChanges(existing, msg.Body.Attributes)
	}
	attrs := msg.Body.Attributes
	if _, ok := attrs[messaging.AttrAddress]; !ok {
		attrs = withAddress(attrs, msg.Source)
	}
	entity, err := FromAttributes(attrs, msg.Timestamp, msg.Timestamp)
	if err != nil {
		return false
	}
	s.Add(Simple(entity))
	return true
}

func (s *Store) applyChanges(m *Entity, attrs map[string]any) bool {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	slices.Sort(names)

	changed := false
	for _, name := range names {
		value := attrs[name]
		old := m.Get(name)
		if !m.Has(name) && value == nil {
			continue
		}
		if m.Has(name) && reflect.DeepEqual(old, value) {
			continue
		}
		m.Set(name, value)
		changed = true
		s.FireModelEvent(ChangedEvent{
			Model:     m.Address(),
			ModelType: m.Type(),
			Attribute: name,
			Value:     value,
			OldValue:  old,
		})
	}
	return changed
}

func withAddress(attrs map[string]any, addr messaging.Address) map[string]any {
	out := maps.Clone(attrs)
	if out == nil {
		out = make(map[string]any, 1)
	}
	out[messaging.AttrAddress] = addr.String()
	return out
}

func sortByAddress(models []*Entity) {
	slices.SortFunc(models, func(a, b *Entity) int {
		return strings.Compare(a.Address().String(), b.Address().String())
	})
}
