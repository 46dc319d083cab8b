// Package subsystem is the per-place subsystem runtime.
//
// A subsystem is a stateful, place-scoped service (alarm, security, safety,
// presence) that reacts to platform messages, model changes and timers, and
// maintains one subsystem model. Subsystem implementations are stateless
// singletons; all per-place state lives in the *Context handed to OnEvent.
//
// # Components
//
//   - Registry: lazily builds, caches and evicts one Executor per place.
//   - Executor: a single dispatch goroutine per place. Every event for the
//     place (bus messages, wake-ups, response timeouts, lifecycle events) is
//     queued and handled in submission order.
//   - Context: binds one subsystem model to its place and implements the
//     commit protocol against persistence.
//   - Correlator: matches responses to requests sent with
//     Context.SendAndExpectResponse and turns expired requests into
//     timeout events.
//
// # Threading
//
// No two events for the same place are processed concurrently. Contexts, the
// place's model store and the correlator are touched only from the dispatch
// goroutine. Timers never run subsystem code directly: they enqueue an event
// and the dispatch goroutine handles it like any other.
//
// # Commit protocol
//
// After every dispatch the affected context is committed. A change is
// broadcast before it is persisted. When persistence fails, the failed
// attributes are kept and merged into the next write, so state converges as
// soon as a later commit succeeds. Other components may observe a change
// that is not yet durable.
//
// # Backpressure
//
// Each executor's queue is bounded. Submissions that would exceed it fail
// with ErrQueueFull; callers decide whether to redeliver.
package subsystem
