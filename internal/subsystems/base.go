package subsystems

import (
	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
	"github.com/nerrad567/gray-logic-subsystems/internal/subsystem"
)

// Version is recorded as subs:version on every catalog subsystem.
const Version = "1.0.0"

// Base implements the lifecycle and requests common to every subsystem.
type Base struct {
	name         string
	namespace    string
	version      string
	initialState string
}

// NewBase returns a Base for a subsystem whose model starts in initialState.
func NewBase(name, namespace, initialState string) Base {
	return Base{
		name:         name,
		namespace:    namespace,
		version:      Version,
		initialState: initialState,
	}
}

func (b Base) Name() string      { return b.name }
func (b Base) Namespace() string { return b.namespace }
func (b Base) Version() string   { return b.version }

// HandleCommon applies the shared behaviour for evt and reports whether the
// event was fully handled.
func (b Base) HandleCommon(evt subsystem.Event, sc *subsystem.Context) bool {
	switch ev := evt.(type) {
	case subsystem.AddedEvent:
		b.onAdded(sc)
		return true
	case subsystem.StartedEvent:
		sc.Model().SetAvailable(true)
		return true
	case subsystem.StoppedEvent:
		sc.CancelWakeUps()
		return true
	case subsystem.RemovedEvent:
		return true
	case subsystem.MessageReceivedEvent:
		return b.onRequest(ev.Message, sc)
	case subsystem.ResponseEvent:
		if ev.TimedOut {
			sc.Logger().Warn("request timed out", "message_type", ev.Request.Type())
		} else if ev.Response.IsError() {
			sc.Logger().Warn("request failed",
				"message_type", ev.Request.Type(),
				"code", ev.Response.Body.StringAttr(messaging.AttrErrorCode),
			)
		}
		return false
	}
	return false
}

func (b Base) onAdded(sc *subsystem.Context) {
	m := sc.Model()
	m.SetName(b.name)
	m.SetVersion(b.version)
	m.SetPlace(sc.PlaceID())
	m.SetAccount(sc.AccountID())
	m.SetAvailable(false)
	if m.State() == "" {
		m.SetState(b.initialState)
	}
	sc.Logger().Info("subsystem added")
}

func (b Base) onRequest(msg messaging.Message, sc *subsystem.Context) bool {
	if msg.IsBroadcast() {
		return false
	}
	switch msg.Type() {
	case messaging.GetAttributes:
		sc.SendResponse(msg, messaging.NewBody(messaging.GetAttributesResponse, sc.Snapshot()))
	case messaging.SubsystemActivate:
		sc.SetActor(msg.Source)
		sc.Model().SetState(messaging.SubsystemStateActive)
		sc.SendResponse(msg, messaging.NewBody(messaging.EmptyResponse, nil))
	case messaging.SubsystemSuspend:
		sc.SetActor(msg.Source)
		sc.Model().SetState(messaging.SubsystemStateSuspended)
		sc.SendResponse(msg, messaging.NewBody(messaging.EmptyResponse, nil))
	default:
		return false
	}
	return true
}

// Unsupported answers a request the subsystem does not handle. Other
// messages are ignored.
func Unsupported(msg messaging.Message, sc *subsystem.Context) {
	if !msg.Request {
		return
	}
	sc.Logger().Debug("unsupported request", "message_type", msg.Type())
	sc.SendResponse(msg, messaging.UnsupportedMessageType(msg.Type()))
}
