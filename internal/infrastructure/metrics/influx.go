package metrics

import (
	"github.com/nerrad567/gray-logic-subsystems/internal/infrastructure/influxdb"
)

// EventWriter records runtime events. *influxdb.Client implements it.
type EventWriter interface {
	WriteRuntimeEvent(event string, tags map[string]string)
}

// InfluxSink writes noteworthy runtime events as points. Cache hits,
// misses and queue depth are left to Prometheus.
type InfluxSink struct {
	w EventWriter
}

// NewInfluxSink returns a sink writing to w.
func NewInfluxSink(w EventWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

func (s *InfluxSink) CacheHit()              {}
func (s *InfluxSink) CacheMiss()             {}
func (s *InfluxSink) QueueDepth(string, int) {}
func (s *InfluxSink) ForgetPlace(string)     {}

func (s *InfluxSink) CacheEviction(reason string) {
	s.w.WriteRuntimeEvent(influxdb.EventEviction, map[string]string{"reason": reason})
}

func (s *InfluxSink) CacheLoadFailure() {
	s.w.WriteRuntimeEvent(influxdb.EventLoadFailed, nil)
}

func (s *InfluxSink) QueueRejected(placeID string) {
	s.w.WriteRuntimeEvent(influxdb.EventQueueRejected, map[string]string{"place_id": placeID})
}

func (s *InfluxSink) EventDropped(placeID, reason string) {
	s.w.WriteRuntimeEvent(influxdb.EventDropped, map[string]string{"place_id": placeID, "reason": reason})
}

func (s *InfluxSink) EventRedirected(placeID, rule string) {
	s.w.WriteRuntimeEvent(influxdb.EventRedirected, map[string]string{"place_id": placeID, "rule": rule})
}

func (s *InfluxSink) CommitFailed(placeID, subsystem string) {
	s.w.WriteRuntimeEvent(influxdb.EventCommitFailed, map[string]string{"place_id": placeID, "subsystem": subsystem})
}
