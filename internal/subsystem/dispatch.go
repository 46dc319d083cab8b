package subsystem

import (
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
)

// handleMessage routes one platform message. Rules, in order:
//  1. the place's own base:Deleted broadcast removes every subsystem
//  2. any other broadcast goes to every subsystem, then the model store,
//     then every context is committed
//  3. requests to SERV:subs: are answered by the executor itself
//  4. anything else goes to its (possibly redirected) destination
func (e *Executor) handleMessage(msg messaging.Message) {
	if msg.Expired(e.scheduler.Now()) {
		e.logger.Warn("dropping expired message",
			"message_type", msg.Type(),
			"source", msg.Source.String(),
			"destination", msg.Destination.String(),
		)
		e.metrics.EventDropped(e.place.ID, DropExpired)
		return
	}

	switch {
	case msg.IsBroadcast() && e.isPlaceDeletion(msg):
		e.logger.Info("place deleted, removing subsystems")
		e.removeAll()
	case msg.IsBroadcast():
		e.handleBroadcast(msg)
	case msg.Destination == messaging.SubsystemServiceAddress():
		e.handleServiceRequest(msg)
	default:
		e.handleAddressed(msg)
	}
}

func (e *Executor) isPlaceDeletion(msg messaging.Message) bool {
	return msg.Type() == messaging.EventDeleted && msg.Source == messaging.PlaceAddress(e.place.ID)
}

func (e *Executor) handleBroadcast(msg messaging.Message) {
	evt := MessageReceivedEvent{Message: msg}
	for _, b := range e.ordered {
		e.dispatch(b, evt)
	}
	e.store.Update(msg)
	// Commit even when nothing changed so earlier failed writes are retried.
	for _, b := range e.ordered {
		e.save(b, evt)
	}
}

func (e *Executor) handleServiceRequest(msg messaging.Message) {
	switch msg.Type() {
	case messaging.ListSubsystems:
		snapshots := e.snapshots()
		subsystems := make([]any, len(snapshots))
		for i, snap := range snapshots {
			subsystems[i] = snap
		}
		e.reply(msg, messaging.SubsystemServiceAddress(), messaging.NewBody(messaging.ListSubsystemsResponse, map[string]any{
			messaging.AttrSubsystems: subsystems,
		}))
	default:
		e.logger.Warn("unsupported subsystem service request", "message_type", msg.Type())
		e.metrics.EventDropped(e.place.ID, DropUnsupported)
		e.reply(msg, messaging.SubsystemServiceAddress(), messaging.UnsupportedMessageType(msg.Type()))
	}
}

func (e *Executor) snapshots() []map[string]any {
	out := make([]map[string]any, 0, len(e.ordered))
	for _, b := range e.ordered {
		if b.ctx.IsDeleted() {
			continue
		}
		out = append(out, b.ctx.Snapshot())
	}
	return out
}

func (e *Executor) handleAddressed(msg messaging.Message) {
	dest := e.resolveDestination(msg)
	b, ok := e.bindings[dest]
	if !ok {
		e.logger.Warn("dropping message for unknown subsystem",
			"subsystem", dest.String(),
			"message_type", msg.Type(),
			"source", msg.Source.String(),
		)
		e.metrics.EventDropped(e.place.ID, DropNotFound)
		e.reply(msg, dest, messaging.NotFound(dest))
		return
	}
	e.deliver(b, MessageReceivedEvent{Message: msg})
}

// resolveDestination applies the alarm redirects. Incident traffic other
// than base requests always goes to the alarm subsystem; security and
// safety traffic goes there only while the alarm subsystem is active.
func (e *Executor) resolveDestination(msg messaging.Message) messaging.Address {
	dest := msg.Destination
	alarm := messaging.SubsystemAddress(messaging.NamespaceAlarm, e.place.ID)

	if dest.Namespace == messaging.NamespaceAlarmIncident && !strings.HasPrefix(msg.Type(), messaging.NamespaceBase+":") {
		e.redirected(msg, alarm, RedirectIncident)
		return alarm
	}

	switch messaging.TypeNamespace(msg.Type()) {
	case messaging.TypeNamespaceSecurity, messaging.TypeNamespaceSafety:
		if dest == alarm {
			return dest
		}
		if b, ok := e.bindings[alarm]; ok && b.ctx.Model().IsActive() {
			e.redirected(msg, alarm, RedirectAlarmActive)
			return alarm
		}
	}
	return dest
}

func (e *Executor) redirected(msg messaging.Message, to messaging.Address, rule string) {
	e.logger.Debug("redirecting message",
		"message_type", msg.Type(),
		"destination", msg.Destination.String(),
		"subsystem", to.String(),
		"rule", rule,
	)
	e.metrics.EventRedirected(e.place.ID, rule)
}

func (e *Executor) handleScheduled(evt ScheduledEvent) {
	b, ok := e.bindings[evt.Address]
	if !ok {
		e.logger.Info("dropping wake-up for missing subsystem", "subsystem", evt.Address.String())
		e.metrics.EventDropped(e.place.ID, DropNotFound)
		return
	}
	// id 0 marks a wake-up submitted from outside the executor.
	if evt.id != 0 && !b.ctx.consumeWakeUp(evt.id) {
		e.logger.Debug("dropping cancelled wake-up", "subsystem", evt.Address.String())
		e.metrics.EventDropped(e.place.ID, DropCanceled)
		return
	}
	e.deliver(b, evt)
}

func (e *Executor) handleResponse(evt ResponseEvent) {
	if evt.TimedOut {
		expired, ok := e.correlator.Expire(evt.CorrelationID)
		if !ok {
			// Answered before the timer fired.
			e.metrics.EventDropped(e.place.ID, DropUnmatched)
			return
		}
		evt = expired
	}
	b, ok := e.bindings[evt.Address]
	if !ok {
		e.logger.Info("dropping response for missing subsystem",
			"subsystem", evt.Address.String(),
			"correlation_id", evt.CorrelationID,
		)
		e.metrics.EventDropped(e.place.ID, DropNotFound)
		return
	}
	e.deliver(b, evt)
}

func (e *Executor) lifecycle(evt Event) {
	for _, b := range e.ordered {
		e.deliver(b, evt)
	}
}

func (e *Executor) removeAll() {
	e.lifecycle(RemovedEvent{})
}

func (e *Executor) drainModelEvents() {
	for round := 0; len(e.pendingModelEvents) > 0; round++ {
		if round == maxModelEventRounds {
			e.logger.Warn("dropping cascading model events", "pending", len(e.pendingModelEvents))
			e.pendingModelEvents = nil
			return
		}
		events := e.pendingModelEvents
		e.pendingModelEvents = nil
		for _, change := range events {
			evt := ModelEvent{Change: change}
			for _, b := range e.ordered {
				e.deliver(b, evt)
			}
		}
	}
}

// deliver dispatches evt to one subsystem and saves its context.
func (e *Executor) deliver(b *binding, evt Event) {
	e.dispatch(b, evt)
	e.save(b, evt)
}

// dispatch hands evt to one subsystem. A subsystem whose model was never
// persisted first receives AddedEvent; a deleted subsystem receives
// nothing. A message answering a tracked request is preceded by its
// ResponseEvent.
func (e *Executor) dispatch(b *binding, evt Event) {
	sc := b.ctx
	if !sc.IsPersisted() && !sc.introduced && !sc.deleted {
		sc.introduced = true
		e.invoke(b, AddedEvent{})
	}
	if sc.deleted {
		sc.logger.Debug("dropping event for deleted subsystem", "event", evt.Kind())
		e.metrics.EventDropped(e.place.ID, DropDeleted)
		return
	}
	if m, ok := evt.(MessageReceivedEvent); ok && !m.Message.IsBroadcast() {
		if resp, ok := e.correlator.Correlate(sc.Address(), m.Message); ok {
			e.invoke(b, resp)
		}
	}
	e.invoke(b, evt)
}

// invoke calls the subsystem with a logger bound to the event. Panics are
// logged and swallowed.
func (e *Executor) invoke(b *binding, evt Event) {
	sc := b.ctx
	spanCtx, span := e.tracer.Start(e.ctx, "subsystem.dispatch", trace.WithAttributes(
		attribute.String("place.id", e.place.ID),
		attribute.String("subsystem", sc.Address().String()),
		attribute.String("event", evt.Kind()),
	))
	defer span.End()

	base := sc.logger
	sc.logger = base.With(eventAttrs(evt)...)
	defer func() {
		sc.logger = base
		if r := recover(); r != nil {
			base.ErrorContext(spanCtx, "subsystem failed handling event", "event", evt.Kind(), "panic", r)
			span.SetStatus(codes.Error, "panic")
		}
	}()

	if resp, ok := evt.(ResponseEvent); ok && resp.handler != nil {
		resp.handler(resp, sc)
		return
	}
	b.subsystem.OnEvent(evt, sc)
}

// save commits the context, or deletes it after a RemovedEvent.
func (e *Executor) save(b *binding, evt Event) {
	if _, ok := evt.(RemovedEvent); ok {
		b.ctx.Delete()
		return
	}
	b.ctx.Commit()
}

// reply answers request from source. Non-requests get no reply.
func (e *Executor) reply(request messaging.Message, source messaging.Address, body messaging.Body) {
	if !request.Request {
		return
	}
	if err := e.sender.Send(e.ctx, messaging.NewResponse(request, source, body)); err != nil {
		e.logger.Warn("failed to send response",
			"error", err,
			"message_type", body.Type,
			"destination", request.Source.String(),
		)
	}
}

func eventAttrs(evt Event) []any {
	attrs := []any{"event", evt.Kind()}
	switch ev := evt.(type) {
	case MessageReceivedEvent:
		attrs = append(attrs, "message_type", ev.Message.Type())
		if ev.Message.CorrelationID != "" {
			attrs = append(attrs, "correlation_id", ev.Message.CorrelationID)
		}
	case ResponseEvent:
		attrs = append(attrs, "correlation_id", ev.CorrelationID, "timed_out", ev.TimedOut)
	}
	return attrs
}
