package metrics

import subsys "github.com/nerrad567/gray-logic-subsystems/internal/subsystem"

// Multi forwards every observation to each of its members in order.
type Multi []subsys.Metrics

var (
	_ subsys.Metrics = Multi(nil)
	_ subsys.Metrics = (*Prometheus)(nil)
	_ subsys.Metrics = (*InfluxSink)(nil)
)

func (m Multi) each(fn func(subsys.Metrics)) {
	for _, member := range m {
		fn(member)
	}
}

func (m Multi) CacheHit()         { m.each(func(x subsys.Metrics) { x.CacheHit() }) }
func (m Multi) CacheMiss()        { m.each(func(x subsys.Metrics) { x.CacheMiss() }) }
func (m Multi) CacheLoadFailure() { m.each(func(x subsys.Metrics) { x.CacheLoadFailure() }) }

func (m Multi) CacheEviction(reason string) {
	m.each(func(x subsys.Metrics) { x.CacheEviction(reason) })
}

func (m Multi) QueueDepth(placeID string, depth int) {
	m.each(func(x subsys.Metrics) { x.QueueDepth(placeID, depth) })
}

func (m Multi) QueueRejected(placeID string) {
	m.each(func(x subsys.Metrics) { x.QueueRejected(placeID) })
}

func (m Multi) EventDropped(placeID, reason string) {
	m.each(func(x subsys.Metrics) { x.EventDropped(placeID, reason) })
}

func (m Multi) EventRedirected(placeID, rule string) {
	m.each(func(x subsys.Metrics) { x.EventRedirected(placeID, rule) })
}

func (m Multi) CommitFailed(placeID, subsystem string) {
	m.each(func(x subsys.Metrics) { x.CommitFailed(placeID, subsystem) })
}

func (m Multi) ForgetPlace(placeID string) {
	m.each(func(x subsys.Metrics) { x.ForgetPlace(placeID) })
}
