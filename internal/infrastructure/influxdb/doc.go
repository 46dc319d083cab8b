// Package influxdb records subsystem runtime events in InfluxDB.
//
// Prometheus holds the current rates; InfluxDB keeps the history. Each
// commit failure, queue rejection, cache eviction, dropped or redirected
// event becomes one point of the subsystem_runtime measurement, tagged
// with the event kind and, where known, the place and subsystem.
//
// The integration is optional: Connect returns ErrDisabled when the
// influxdb section is not enabled, and the runtime runs without it.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // runtime events are only counted in Prometheus
//	}
//	defer client.Close()
//
// Writes are non-blocking and batched by the underlying write API.
package influxdb
