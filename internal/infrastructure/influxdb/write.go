package influxdb

import (
	"maps"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementRuntime is the measurement holding subsystem runtime events.
const MeasurementRuntime = "subsystem_runtime"

// Runtime event kinds, written as the "event" tag.
const (
	EventCommitFailed  = "commit_failed"
	EventQueueRejected = "queue_rejected"
	EventEviction      = "cache_eviction"
	EventDropped       = "event_dropped"
	EventRedirected    = "event_redirected"
	EventLoadFailed    = "cache_load_failed"
)

// WriteRuntimeEvent records one occurrence of a runtime event. tags should
// be low cardinality apart from place_id.
//
//	client.WriteRuntimeEvent(influxdb.EventCommitFailed, map[string]string{
//	    "place_id":  "p1",
//	    "subsystem": "SERV:subalarm:p1",
//	})
func (c *Client) WriteRuntimeEvent(event string, tags map[string]string) {
	if !c.IsConnected() {
		return
	}

	allTags := make(map[string]string, len(tags)+1)
	maps.Copy(allTags, tags)
	allTags["event"] = event

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementRuntime,
		allTags,
		map[string]any{"count": 1},
		c.now(),
	))
}

// WritePoint writes a point with arbitrary tags and fields at the current
// time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, c.now()))
}
