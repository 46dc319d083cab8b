package subsystem

import (
	"time"

	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
)

// Correlator matches responses to outstanding requests.
//
// Track, Correlate, Expire and the Cancel methods must all be called from
// the owning executor's dispatch goroutine. Timers only report the expired
// correlation id through the timeout callback; the callback must enqueue
// work rather than touch the correlator.
type Correlator struct {
	scheduler Scheduler
	onTimeout func(correlationID string)
	pending   map[string]*tracked
}

type tracked struct {
	owner   messaging.Address
	request messaging.Message
	handler ResponseHandler
	timer   Timer
}

// NewCorrelator creates a correlator whose timers call onTimeout.
func NewCorrelator(scheduler Scheduler, onTimeout func(correlationID string)) *Correlator {
	return &Correlator{
		scheduler: scheduler,
		onTimeout: onTimeout,
		pending:   make(map[string]*tracked),
	}
}

// Track registers request, sent by owner, and arms its timeout. It must be
// called before the request is sent. Re-tracking an id replaces the
// earlier registration.
func (c *Correlator) Track(owner messaging.Address, request messaging.Message, timeout time.Duration, handler ResponseHandler) {
	id := request.CorrelationID
	if prev, ok := c.pending[id]; ok {
		prev.timer.Stop()
	}
	c.pending[id] = &tracked{
		owner:   owner,
		request: request,
		handler: handler,
		timer:   c.scheduler.AfterFunc(timeout, func() { c.onTimeout(id) }),
	}
}

// Correlate returns the response event for msg when it answers a request
// tracked by owner. A correlation id matches at most once.
func (c *Correlator) Correlate(owner messaging.Address, msg messaging.Message) (ResponseEvent, bool) {
	if msg.CorrelationID == "" {
		return ResponseEvent{}, false
	}
	t, ok := c.pending[msg.CorrelationID]
	if !ok || t.owner != owner {
		return ResponseEvent{}, false
	}
	delete(c.pending, msg.CorrelationID)
	t.timer.Stop()
	return ResponseEvent{
		Address:       t.owner,
		CorrelationID: msg.CorrelationID,
		Request:       t.request,
		Response:      msg,
		handler:       t.handler,
	}, true
}

// Expire returns the timeout event for correlationID if the request is
// still outstanding. It returns false when a response already matched.
func (c *Correlator) Expire(correlationID string) (ResponseEvent, bool) {
	t, ok := c.pending[correlationID]
	if !ok {
		return ResponseEvent{}, false
	}
	delete(c.pending, correlationID)
	return ResponseEvent{
		Address:       t.owner,
		CorrelationID: correlationID,
		Request:       t.request,
		TimedOut:      true,
		handler:       t.handler,
	}, true
}

// CancelOwner drops every request tracked by owner without delivering
// anything and returns how many were dropped.
func (c *Correlator) CancelOwner(owner messaging.Address) int {
	n := 0
	for id, t := range c.pending {
		if t.owner == owner {
			t.timer.Stop()
			delete(c.pending, id)
			n++
		}
	}
	return n
}

// CancelAll drops every outstanding request.
func (c *Correlator) CancelAll() {
	for id, t := range c.pending {
		t.timer.Stop()
		delete(c.pending, id)
	}
}

// Len returns the number of outstanding requests.
func (c *Correlator) Len() int {
	return len(c.pending)
}
