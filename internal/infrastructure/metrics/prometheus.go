package metrics

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/gray-logic-subsystems/internal/messaging"
)

const (
	namespace = "graylogic"
	subsystem = "subsystems"
)

// NewRegistry returns a registry with the Go runtime, process and, when db
// is non-nil, database pool collectors registered.
func NewRegistry(db *sql.DB) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if db != nil {
		reg.MustRegister(collectors.NewDBStatsCollector(db, "subsystems"))
	}
	return reg
}

// Prometheus implements the runtime and bus metric hooks with Prometheus
// collectors. Per-place series are removed by ForgetPlace.
type Prometheus struct {
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	cacheLoadFailures prometheus.Counter
	cacheEvictions    *prometheus.CounterVec

	queueDepth    *prometheus.GaugeVec
	queueRejected *prometheus.CounterVec

	eventsDropped    *prometheus.CounterVec
	eventsRedirected *prometheus.CounterVec
	commitFailures   *prometheus.CounterVec

	busReceived    *prometheus.CounterVec
	busRedelivered prometheus.Counter
	busDropped     *prometheus.CounterVec
	busSent        *prometheus.CounterVec
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "cache_hits_total",
			Help: "Executor lookups served from the cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "cache_misses_total",
			Help: "Executor lookups that had to build an executor.",
		}),
		cacheLoadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "cache_load_failures_total",
			Help: "Executor builds that failed and were not cached.",
		}),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "cache_evictions_total",
			Help: "Executors removed from the cache, by reason.",
		}, []string{"reason"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "queue_depth",
			Help: "Events waiting in a place's dispatch queue.",
		}, []string{"place_id"}),
		queueRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "queue_rejected_total",
			Help: "Events rejected because a place's dispatch queue was full.",
		}, []string{"place_id"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "events_dropped_total",
			Help: "Events not dispatched to any subsystem, by reason.",
		}, []string{"reason"}),
		eventsRedirected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "events_redirected_total",
			Help: "Requests redirected to another subsystem, by rule.",
		}, []string{"rule"}),
		commitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "commit_failures_total",
			Help: "Subsystem commits whose persistence failed, by subsystem namespace.",
		}, []string{"subsystem"}),
		busReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "bus_received_total",
			Help: "Platform messages received from the bus, by kind.",
		}, []string{"kind"}),
		busRedelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "bus_redelivered_total",
			Help: "Redelivery attempts after a full dispatch queue.",
		}),
		busDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "bus_dropped_total",
			Help: "Platform messages the router could not deliver, by reason.",
		}, []string{"reason"}),
		busSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "bus_sent_total",
			Help: "Platform messages published, by outcome.",
		}, []string{"success"}),
	}

	for _, c := range []prometheus.Collector{
		p.cacheHits, p.cacheMisses, p.cacheLoadFailures, p.cacheEvictions,
		p.queueDepth, p.queueRejected,
		p.eventsDropped, p.eventsRedirected, p.commitFailures,
		p.busReceived, p.busRedelivered, p.busDropped, p.busSent,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering subsystem metrics: %w", err)
		}
	}
	return p, nil
}

func (p *Prometheus) CacheHit()                      { p.cacheHits.Inc() }
func (p *Prometheus) CacheMiss()                     { p.cacheMisses.Inc() }
func (p *Prometheus) CacheLoadFailure()              { p.cacheLoadFailures.Inc() }
func (p *Prometheus) CacheEviction(reason string)    { p.cacheEvictions.WithLabelValues(reason).Inc() }
func (p *Prometheus) QueueRejected(placeID string)   { p.queueRejected.WithLabelValues(placeID).Inc() }
func (p *Prometheus) EventDropped(_, reason string)  { p.eventsDropped.WithLabelValues(reason).Inc() }
func (p *Prometheus) EventRedirected(_, rule string) { p.eventsRedirected.WithLabelValues(rule).Inc() }

func (p *Prometheus) QueueDepth(placeID string, depth int) {
	p.queueDepth.WithLabelValues(placeID).Set(float64(depth))
}

// CommitFailed counts by subsystem namespace; the place is left out to
// bound cardinality.
func (p *Prometheus) CommitFailed(_, subsystem string) {
	p.commitFailures.WithLabelValues(namespaceOf(subsystem)).Inc()
}

// ForgetPlace deletes the per-place series of a stopped executor.
func (p *Prometheus) ForgetPlace(placeID string) {
	p.queueDepth.DeleteLabelValues(placeID)
	p.queueRejected.DeleteLabelValues(placeID)
}

// MessageReceived counts an inbound message; kind is broadcast, request
// or response.
func (p *Prometheus) MessageReceived(kind string) { p.busReceived.WithLabelValues(kind).Inc() }

// MessageRedelivered counts one redelivery attempt.
func (p *Prometheus) MessageRedelivered() { p.busRedelivered.Inc() }

// MessageDropped counts a message the router gave up on.
func (p *Prometheus) MessageDropped(reason string) { p.busDropped.WithLabelValues(reason).Inc() }

// MessageSent counts a publish attempt.
func (p *Prometheus) MessageSent(err error) {
	p.busSent.WithLabelValues(strconv.FormatBool(err == nil)).Inc()
}

func namespaceOf(addr string) string {
	parsed, err := messaging.ParseAddress(addr)
	if err != nil || parsed.IsBroadcast() {
		return "unknown"
	}
	return parsed.Namespace
}
