package subsystems

import (
	"time"

	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
	"github.com/nerrad567/gray-logic-subsystems/internal/subsystem"
)

// Alarm attributes.
const (
	AttrAlarmLastRequest   = "subalarm:lastRequest"
	AttrAlarmLastRequestAt = "subalarm:lastRequestTime"

	// alarmRequestsVar holds the recent intercepted requests.
	alarmRequestsVar = "requests"

	// maxAlarmRequests bounds the intercepted request history.
	maxAlarmRequests = 20
)

// Alarm receives incident requests, and security and safety requests while
// it is active.
type Alarm struct {
	Base
}

// InterceptedRequest is one entry of the alarm's request history.
type InterceptedRequest struct {
	Type        string    `json:"type"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	At          time.Time `json:"at"`
}

// NewAlarm returns the alarm subsystem.
func NewAlarm() *Alarm {
	return &Alarm{Base: NewBase("subalarm", NamespaceAlarm, StateSuspended)}
}

// OnEvent implements subsystem.Subsystem.
func (a *Alarm) OnEvent(evt subsystem.Event, sc *subsystem.Context) {
	if a.HandleCommon(evt, sc) {
		return
	}
	m, ok := evt.(subsystem.MessageReceivedEvent)
	if !ok || m.Message.IsBroadcast() {
		return
	}
	switch messaging.TypeNamespace(m.Message.Type()) {
	case messaging.NamespaceAlarmIncident, messaging.TypeNamespaceSecurity, messaging.TypeNamespaceSafety:
		a.intercept(m.Message, sc)
	default:
		Unsupported(m.Message, sc)
	}
}

// intercept records msg and acknowledges it.
func (a *Alarm) intercept(msg messaging.Message, sc *subsystem.Context) {
	var history []InterceptedRequest
	if _, err := sc.Variable(alarmRequestsVar, &history); err != nil {
		sc.Logger().Warn("discarding unreadable request history", "error", err)
		history = nil
	}
	entry := InterceptedRequest{
		Type:        msg.Type(),
		Source:      msg.Source.String(),
		Destination: msg.Destination.String(),
		At:          sc.Now(),
	}
	history = append(history, entry)
	if len(history) > maxAlarmRequests {
		history = history[len(history)-maxAlarmRequests:]
	}
	if err := sc.SetVariable(alarmRequestsVar, history); err != nil {
		sc.Logger().Error("failed to store request history", "error", err)
	}

	sc.SetActor(msg.Source)
	sc.Model().Set(AttrAlarmLastRequest, entry.Type)
	sc.Model().Set(AttrAlarmLastRequestAt, entry.At.UTC().Format(time.RFC3339Nano))
	if msg.Request {
		sc.SendResponse(msg, messaging.NewBody(messaging.EmptyResponse, nil))
	}
}

// History returns the intercepted requests recorded for the place.
func (a *Alarm) History(sc *subsystem.Context) ([]InterceptedRequest, error) {
	var history []InterceptedRequest
	if _, err := sc.Variable(alarmRequestsVar, &history); err != nil {
		return nil, err
	}
	return history, nil
}
