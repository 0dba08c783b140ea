package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dyewash.ai/internal/sim/world"
)

const namespace = "dyewash"

// WorldSource is the read side of a running world.
type WorldSource interface {
	ID() string
	Metrics() world.WorldMetrics
}

// Metrics owns a private registry; all world values are read from the latest
// WorldMetrics snapshot at scrape time.
type Metrics struct {
	registry *prometheus.Registry
}

func NewMetrics(w WorldSource) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := &Metrics{registry: reg}
	if w != nil {
		m.registerWorld(w)
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gauge registers a gauge read from fn at scrape time.
func (m *Metrics) Gauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Counter registers a monotonically increasing value read from fn at scrape time.
func (m *Metrics) Counter(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

func (m *Metrics) registerWorld(w WorldSource) {
	labels := prometheus.Labels{"world": w.ID()}
	gauge := func(name, help string, fn func(world.WorldMetrics) float64) {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "world",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return fn(w.Metrics()) }))
	}
	counter := func(name, help string, fn func(world.WorldMetrics) float64) {
		m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "bleach",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return fn(w.Metrics()) }))
	}

	gauge("tick", "Current world tick.", func(s world.WorldMetrics) float64 { return float64(s.Tick) })
	gauge("items", "Dropped item entities in the world.", func(s world.WorldMetrics) float64 { return float64(s.Items) })
	gauge("cauldrons", "Tracked cauldrons.", func(s world.WorldMetrics) float64 { return float64(s.Cauldrons) })
	gauge("clients", "Connected sessions.", func(s world.WorldMetrics) float64 { return float64(s.Clients) })
	gauge("step_ms", "Last tick step duration in milliseconds.", func(s world.WorldMetrics) float64 { return s.StepMS })
	gauge("inbox_depth", "Commands waiting for the next tick.", func(s world.WorldMetrics) float64 { return float64(s.QueueDepths.Inbox) })
	gauge("pending", "Scheduled transformations not yet fired.", func(s world.WorldMetrics) float64 { return float64(s.Bleach.Pending) })

	counter("scheduled_total", "Transformations scheduled.", func(s world.WorldMetrics) float64 { return float64(s.Bleach.Scheduled) })
	counter("ignored_total", "Drops of materials with no undyed form.", func(s world.WorldMetrics) float64 { return float64(s.Bleach.Ignored) })
	counter("cancelled_total", "Pending transformations cancelled.", func(s world.WorldMetrics) float64 { return float64(s.Bleach.Cancelled) })
	counter("rescheduled_total", "Pending transformations rescheduled by a merge.", func(s world.WorldMetrics) float64 { return float64(s.Bleach.Rescheduled) })
	counter("fired_total", "Pending transformations fired.", func(s world.WorldMetrics) float64 { return float64(s.Bleach.Fired) })
	counter("transformed_total", "Fired transformations that converted items.", func(s world.WorldMetrics) float64 { return float64(s.Bleach.Transformed) })
	counter("items_converted_total", "Items converted to their undyed form.", func(s world.WorldMetrics) float64 { return float64(s.Bleach.ItemsConverted) })
	counter("no_charge_total", "Fired transformations with too little water.", func(s world.WorldMetrics) float64 { return float64(s.Bleach.NoCharge) })
	counter("no_cauldron_total", "Fired transformations with no water cauldron.", func(s world.WorldMetrics) float64 { return float64(s.Bleach.NoCauldron) })
	counter("item_gone_total", "Fired transformations whose item had left.", func(s world.WorldMetrics) float64 { return float64(s.Bleach.ItemGone) })
}
