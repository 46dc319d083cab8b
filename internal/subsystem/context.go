package subsystem

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
	"github.com/nerrad567/gray-logic-subsystems/internal/model"
)

// VariablePrefix prefixes the attribute names of subsystem variables.
// Attributes with this prefix are persisted but never broadcast.
const VariablePrefix = "_var:"

// Context binds one subsystem model to its place and gives subsystem logic
// its messaging, scheduling and persistence primitives.
//
// A Context is owned by its executor's dispatch goroutine and must not be
// used from any other goroutine.
type Context struct {
	exec   *Executor
	entity *model.Entity
	model  *model.SubsystemModel
	logger *slog.Logger

	actor        messaging.Address
	introduced   bool // AddedEvent delivered
	added        bool // base:Added broadcast
	deleted      bool
	failedToSave map[string]any
	wakeUps      map[uint64]Timer
}

func newContext(exec *Executor, entity *model.Entity) *Context {
	return &Context{
		exec:    exec,
		entity:  entity,
		model:   model.NewSubsystemModel(entity),
		logger:  exec.logger.With("subsystem", entity.Address().String()),
		wakeUps: make(map[uint64]Timer),
	}
}

// Model returns the typed view over the subsystem's model.
func (sc *Context) Model() *model.SubsystemModel { return sc.model }

// Address returns the subsystem's address.
func (sc *Context) Address() messaging.Address { return sc.entity.Address() }

// PlaceID returns the place the context belongs to.
func (sc *Context) PlaceID() string { return sc.exec.place.ID }

// AccountID returns the account owning the place.
func (sc *Context) AccountID() string { return sc.exec.place.AccountID }

// Population returns the place's population label.
func (sc *Context) Population() string { return sc.exec.place.Population }

// Models returns the place's model store.
func (sc *Context) Models() *model.Store { return sc.exec.store }

// Logger returns a logger bound to the subsystem address.
func (sc *Context) Logger() *slog.Logger { return sc.logger }

// Now returns the scheduler's current time.
func (sc *Context) Now() time.Time { return sc.exec.scheduler.Now() }

// IsPersisted reports whether the model has ever been written.
func (sc *Context) IsPersisted() bool { return sc.entity.IsPersisted() }

// IsDeleted reports whether the context has been deleted.
func (sc *Context) IsDeleted() bool { return sc.deleted }

// FailedToSave returns a copy of the attributes awaiting a retried write.
func (sc *Context) FailedToSave() map[string]any { return maps.Clone(sc.failedToSave) }

// SetActor attributes outbound messages to addr until the next commit.
func (sc *Context) SetActor(addr messaging.Address) { sc.actor = addr }

// Actor returns the address outbound messages are attributed to. An unset
// or broadcast actor resolves to the subsystem itself.
func (sc *Context) Actor() messaging.Address {
	if sc.actor.IsBroadcast() {
		return sc.Address()
	}
	return sc.actor
}

// Variable decodes the subsystem variable name into dst. It reports false
// when the variable is not set.
func (sc *Context) Variable(name string, dst any) (bool, error) {
	raw, ok := sc.entity.Get(VariablePrefix + name).(string)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return true, fmt.Errorf("decoding variable %s: %w", name, err)
	}
	return true, nil
}

// SetVariable stores value as the subsystem variable name. A nil value
// removes the variable.
func (sc *Context) SetVariable(name string, value any) error {
	if value == nil {
		sc.entity.Set(VariablePrefix+name, nil)
		return nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding variable %s: %w", name, err)
	}
	sc.entity.Set(VariablePrefix+name, string(b))
	return nil
}

// Snapshot returns the model attributes with variables removed.
func (sc *Context) Snapshot() map[string]any {
	return withoutVariables(sc.entity.Attributes())
}

// Commit makes pending model changes visible and durable.
//
// The first commit of a model that was never persisted broadcasts
// base:Added with the full snapshot and writes the row. Later commits
// broadcast base:ValueChange with the dirty attributes, then write them
// together with any attributes from earlier failed writes. Dirty tracking
// is cleared whether or not the write succeeds; failed attributes are
// retried on the next commit. The actor is reset in every case.
func (sc *Context) Commit() {
	defer sc.resetActor()
	if sc.deleted {
		return
	}

	if !sc.IsPersisted() && !sc.added {
		sc.Broadcast(messaging.NewBody(messaging.EventAdded, sc.Snapshot()))
		sc.added = true
		if err := sc.persist(); err != nil {
			sc.failedToSave = sc.entity.Attributes()
		}
		sc.entity.ClearDirty()
		return
	}

	if !sc.entity.IsDirty() && len(sc.failedToSave) == 0 {
		return
	}

	dirty := sc.entity.DirtyAttributes()
	if visible := withoutVariables(dirty); len(visible) > 0 {
		sc.Broadcast(messaging.NewBody(messaging.EventValueChange, visible))
	}

	if err := sc.persist(); err != nil {
		if sc.failedToSave == nil {
			sc.failedToSave = make(map[string]any, len(dirty))
		}
		maps.Copy(sc.failedToSave, dirty)
	} else {
		sc.failedToSave = nil
	}

	changes := make([]model.ChangedEvent, 0, len(dirty))
	for _, name := range slices.Sorted(maps.Keys(dirty)) {
		changes = append(changes, model.ChangedEvent{
			Model:     sc.Address(),
			ModelType: sc.entity.Type(),
			Attribute: name,
			Value:     dirty[name],
			OldValue:  sc.entity.Previous(name),
		})
	}
	sc.entity.ClearDirty()
	for _, evt := range changes {
		sc.exec.store.FireModelEvent(evt)
	}
}

// Delete removes the model. Pending failed writes are discarded, the row is
// deleted, and base:Deleted is broadcast with the final snapshot. Wake-ups
// and outstanding requests are cancelled.
func (sc *Context) Delete() {
	defer sc.resetActor()
	if sc.deleted {
		return
	}
	sc.deleted = true
	sc.failedToSave = nil

	ctx, cancel := sc.exec.persistContext()
	err := sc.exec.dao.DeleteByAddress(ctx, sc.Address())
	cancel()
	if err != nil {
		sc.logger.Error("failed to delete subsystem model", "error", err)
	}
	sc.entity.SetCreated(time.Time{})

	sc.Broadcast(messaging.NewBody(messaging.EventDeleted, sc.Snapshot()))
	sc.CancelWakeUps()
	sc.exec.correlator.CancelOwner(sc.Address())
}

func (sc *Context) persist() error {
	ctx, cancel := sc.exec.persistContext()
	defer cancel()

	modified, err := sc.exec.dao.Save(ctx, sc.PlaceID(), sc.entity, sc.failedToSave)
	if err != nil {
		sc.logger.Error("failed to save subsystem model", "error", err,
			"failed_attributes", len(sc.failedToSave)+len(sc.entity.DirtyAttributes()))
		sc.exec.metrics.CommitFailed(sc.PlaceID(), sc.Address().String())
		return err
	}
	if !sc.IsPersisted() {
		sc.entity.SetCreated(modified)
	}
	sc.entity.SetModified(modified)
	return nil
}

func (sc *Context) resetActor() {
	sc.actor = messaging.Address{}
}

// Broadcast sends body to every listener of the place.
func (sc *Context) Broadcast(body messaging.Body) {
	msg := messaging.NewBroadcast(sc.Address(), sc.PlaceID(), sc.Population(), body)
	sc.Send(msg)
}

// Send delivers msg, attributing it to the current actor. Send failures are
// logged and otherwise ignored.
func (sc *Context) Send(msg messaging.Message) {
	if msg.Actor.IsBroadcast() {
		msg.Actor = sc.Actor()
	}
	if err := sc.exec.sender.Send(sc.exec.ctx, msg); err != nil {
		sc.logger.Warn("failed to send message",
			"error", err,
			"message_type", msg.Type(),
			"destination", msg.Destination.String(),
		)
	}
}

// Request sends a request to destination without tracking a response.
func (sc *Context) Request(destination messaging.Address, body messaging.Body) messaging.Message {
	return sc.RequestWithTTL(destination, body, 0)
}

// RequestWithTTL sends a request that expires after ttl. A zero ttl never
// expires.
func (sc *Context) RequestWithTTL(destination messaging.Address, body messaging.Body, ttl time.Duration) messaging.Message {
	msg := messaging.NewRequest(sc.Address(), destination, sc.PlaceID(), sc.Population(), body)
	msg.TimeToLive = ttl
	sc.Send(msg)
	return msg
}

// SendAndExpectResponse sends a request and arranges for exactly one
// ResponseEvent: the matching response, or a timeout after timeout has
// elapsed. handler may be nil, in which case the event goes to OnEvent.
// It returns the correlation id.
func (sc *Context) SendAndExpectResponse(destination messaging.Address, body messaging.Body, timeout time.Duration, handler ResponseHandler) string {
	msg := messaging.NewRequest(sc.Address(), destination, sc.PlaceID(), sc.Population(), body)
	msg.CorrelationID = messaging.NewCorrelationID()
	msg.TimeToLive = timeout
	sc.exec.correlator.Track(sc.Address(), msg, timeout, handler)
	sc.Send(msg)
	return msg.CorrelationID
}

// SendResponse answers request with body.
func (sc *Context) SendResponse(request messaging.Message, body messaging.Body) {
	sc.Send(messaging.NewResponse(request, sc.Address(), body))
}

// WakeUpIn schedules a ScheduledEvent for this subsystem after d and
// returns the wake-up time.
func (sc *Context) WakeUpIn(d time.Duration) time.Time {
	at := sc.Now().Add(d)
	sc.exec.scheduleWakeUp(sc, at, d)
	return at
}

// WakeUpAt schedules a ScheduledEvent for this subsystem at t. A time in
// the past fires immediately.
func (sc *Context) WakeUpAt(t time.Time) time.Time {
	d := max(t.Sub(sc.Now()), 0)
	sc.exec.scheduleWakeUp(sc, t, d)
	return t
}

// CancelWakeUps cancels every pending wake-up. Events already queued are
// dropped when they reach the dispatcher.
func (sc *Context) CancelWakeUps() {
	for id, t := range sc.wakeUps {
		t.Stop()
		delete(sc.wakeUps, id)
	}
}

// PendingWakeUps returns the number of wake-ups not yet delivered.
func (sc *Context) PendingWakeUps() int { return len(sc.wakeUps) }

// consumeWakeUp reports whether id is still pending and forgets it.
func (sc *Context) consumeWakeUp(id uint64) bool {
	if _, ok := sc.wakeUps[id]; !ok {
		return false
	}
	delete(sc.wakeUps, id)
	return true
}

// withoutVariables returns a copy of attrs without subsystem variables.
func withoutVariables(attrs map[string]any) map[string]any {
	out := maps.Clone(attrs)
	maps.DeleteFunc(out, func(name string, _ any) bool {
		return strings.HasPrefix(name, VariablePrefix)
	})
	return out
}
