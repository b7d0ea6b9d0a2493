package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jglrxavpok/carrot-handles/handle"
	"github.com/jglrxavpok/carrot-handles/scene"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "carrot_handles"

// Options configures the metrics exported for a set of storages.
type Options struct {
	// Namespace prefixes metric names. Empty means DefaultNamespace.
	Namespace string

	// Locker is held while stats are read from the sources. Pass the lock
	// that guards the storages when they are driven on another goroutine.
	Locker sync.Locker
}

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}

func (o Options) withDefaults() Options {
	if o.Namespace == "" {
		o.Namespace = DefaultNamespace
	}
	if o.Locker == nil {
		o.Locker = nopLocker{}
	}
	return o
}

// Collector exports handle.Stats of one or more storages as Prometheus
// metrics labeled by storage name. Stats are read at scrape time.
type Collector struct {
	sources []handle.StatsSource
	lock    sync.Locker

	slots     *prometheus.Desc
	live      *prometheus.Desc
	pending   *prometheus.Desc
	free      *prometheus.Desc
	emplaced  *prometheus.Desc
	reclaimed *prometheus.Desc
}

// NewCollector creates a collector over sources.
func NewCollector(opts Options, sources ...handle.StatsSource) *Collector {
	opts = opts.withDefaults()
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(opts.Namespace, "", name), help, []string{"storage"}, nil)
	}
	return &Collector{
		sources:   sources,
		lock:      opts.Locker,
		slots:     desc("slots", "Slots ever created by the storage."),
		live:      desc("live", "Objects with at least one strong handle."),
		pending:   desc("pending", "Objects with no strong handle awaiting cleanup."),
		free:      desc("free", "Reclaimed slots ready for reuse."),
		emplaced:  desc("emplaced_total", "Objects constructed in the storage."),
		reclaimed: desc("reclaimed_total", "Objects destroyed by cleanup."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.slots
	ch <- c.live
	ch <- c.pending
	ch <- c.free
	ch <- c.emplaced
	ch <- c.reclaimed
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.lock.Lock()
	stats := make([]handle.Stats, len(c.sources))
	for i, src := range c.sources {
		stats[i] = src.Stats()
	}
	c.lock.Unlock()

	for _, st := range stats {
		ch <- prometheus.MustNewConstMetric(c.slots, prometheus.GaugeValue, float64(st.Slots), st.Name)
		ch <- prometheus.MustNewConstMetric(c.live, prometheus.GaugeValue, float64(st.Live), st.Name)
		ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, float64(st.Pending), st.Name)
		ch <- prometheus.MustNewConstMetric(c.free, prometheus.GaugeValue, float64(st.Free), st.Name)
		ch <- prometheus.MustNewConstMetric(c.emplaced, prometheus.CounterValue, float64(st.Emplaced), st.Name)
		ch <- prometheus.MustNewConstMetric(c.reclaimed, prometheus.CounterValue, float64(st.Reclaimed), st.Name)
	}
}

// EventCounter counts slot lifecycle events. Subscribe it to storages
// with handle.Storage.Subscribe.
type EventCounter struct {
	events *prometheus.CounterVec
}

// NewEventCounter creates an event counter registered with reg.
func NewEventCounter(reg prometheus.Registerer, opts Options) *EventCounter {
	opts = opts.withDefaults()
	return &EventCounter{
		events: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "slot_events_total",
			Help:      "Slot lifecycle events by storage and type.",
		}, []string{"storage", "event"}),
	}
}

// OnSlotEvent implements handle.Observer.
func (e *EventCounter) OnSlotEvent(ev handle.Event) {
	e.events.WithLabelValues(ev.Storage, ev.Type.String()).Inc()
}

// TickRecorder records per-tick reclamation.
type TickRecorder struct {
	ticks        prometheus.Counter
	reclaimed    *prometheus.HistogramVec
	activeLights prometheus.Gauge
}

// NewTickRecorder creates a tick recorder registered with reg.
func NewTickRecorder(reg prometheus.Registerer, opts Options) *TickRecorder {
	opts = opts.withDefaults()
	f := promauto.With(reg)
	return &TickRecorder{
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Name:      "ticks_total",
			Help:      "Scene ticks run.",
		}),
		reclaimed: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Name:      "tick_reclaimed",
			Help:      "Objects reclaimed per tick by storage.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"storage"}),
		activeLights: f.NewGauge(prometheus.GaugeOpts{
			Namespace: opts.Namespace,
			Name:      "active_lights",
			Help:      "Enabled lights packed by the last tick.",
		}),
	}
}

// Observe records one tick.
func (t *TickRecorder) Observe(r scene.TickResult) {
	t.ticks.Inc()
	t.reclaimed.WithLabelValues("instances").Observe(float64(r.Instances))
	t.reclaimed.WithLabelValues("meshes").Observe(float64(r.Meshes))
	t.reclaimed.WithLabelValues("lights").Observe(float64(r.Lights))
	t.activeLights.Set(float64(len(r.Frame.Active)))
}
