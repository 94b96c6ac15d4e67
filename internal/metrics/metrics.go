package metrics

import "github.com/prometheus/client_golang/prometheus"

type Counter interface {
	Inc(labels ...string)
	Add(v float64, labels ...string)
}

type Gauge interface {
	Set(v float64)
}

// Counters groups the delivery pipeline instruments.
type Counters struct {
	ItemsEnqueued  Counter
	SyncRequests   Counter
	ItemsSpilled   Counter
	ItemsReplayed  Counter
	WatchdogTrips  Counter
	QueueDepth     Gauge
	OverflowWrites Counter
}

type PrometheusCounter struct {
	counter *prometheus.CounterVec
}

func newPrometheusCounter(name, help string, labels []string) *PrometheusCounter {
	return &PrometheusCounter{
		counter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flairnode",
			Name:      name,
			Help:      help,
		}, labels),
	}
}

func (p *PrometheusCounter) Inc(labels ...string) {
	p.counter.WithLabelValues(labels...).Inc()
}

func (p *PrometheusCounter) Add(v float64, labels ...string) {
	p.counter.WithLabelValues(labels...).Add(v)
}

type PrometheusGauge struct {
	gauge prometheus.Gauge
}

func (p *PrometheusGauge) Set(v float64) { p.gauge.Set(v) }

// New builds the counters and registers them with reg.
func New(reg prometheus.Registerer) *Counters {
	enqueued := newPrometheusCounter("queue_items_enqueued_total", "Telemetry items accepted into the outbound queue", []string{"type"})
	syncs := newPrometheusCounter("uplink_sync_requests_total", "Uplink sync attempts by result", []string{"result"})
	spilled := newPrometheusCounter("overflow_items_spilled_total", "Items moved from memory to the overflow file", nil)
	replayed := newPrometheusCounter("overflow_items_replayed_total", "Items read back from the overflow file", nil)
	watchdog := newPrometheusCounter("uplink_watchdog_trips_total", "Sync cycles started while a previous request was still outstanding", nil)
	writes := newPrometheusCounter("overflow_writes_total", "Overflow file writes by result", []string{"result"})
	depth := &PrometheusGauge{gauge: prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "flairnode",
		Name:      "queue_depth",
		Help:      "Items waiting in the in-memory outbound queue",
	})}

	reg.MustRegister(enqueued.counter, syncs.counter, spilled.counter, replayed.counter, watchdog.counter, writes.counter, depth.gauge)

	return &Counters{
		ItemsEnqueued:  enqueued,
		SyncRequests:   syncs,
		ItemsSpilled:   spilled,
		ItemsReplayed:  replayed,
		WatchdogTrips:  watchdog,
		QueueDepth:     depth,
		OverflowWrites: writes,
	}
}

// NewTestCounters registers against a private registry so tests can build
// as many pipelines as they need.
func NewTestCounters() *Counters {
	return New(prometheus.NewRegistry())
}
