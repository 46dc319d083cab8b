// Package metrics implements the subsystem runtime's metric hooks.
//
// Prometheus collectors count cache behaviour, queue pressure and event
// outcomes and are served on /metrics. The InfluxDB sink writes each
// noteworthy runtime event as a point. Multi fans one set of hooks out to
// both.
//
//	reg := metrics.NewRegistry(db.DB)
//	prom, err := metrics.NewPrometheus(reg)
//	hooks := metrics.Multi{prom, metrics.NewInfluxSink(influxClient)}
package metrics
