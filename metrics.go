package smokerlog

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	fetches        *prometheus.CounterVec
	flushes        prometheus.Counter
	flushErrors    prometheus.Counter
	cachedReadings prometheus.Gauge
	temperature    *prometheus.GaugeVec
	subscribers    prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smokerlog_fetches_total",
			Help: "Data source fetches by result (reading or empty)",
		}, []string{"result"}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smokerlog_flushes_total",
			Help: "Completed cache flushes to the sensor log files",
		}),
		flushErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smokerlog_flush_errors_total",
			Help: "Cache flushes that failed and left readings queued",
		}),
		cachedReadings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smokerlog_cached_readings",
			Help: "Readings waiting in the cache buffer",
		}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "smokerlog_sensor_temperature",
			Help: "Most recent temperature per sensor in the source unit",
		}, []string{"sensor"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smokerlog_plot_subscribers",
			Help: "Connected live plot clients",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.fetches,
		m.flushes,
		m.flushErrors,
		m.cachedReadings,
		m.temperature,
		m.subscribers,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) fetched(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.fetches.WithLabelValues("reading").Inc()
	} else {
		m.fetches.WithLabelValues("empty").Inc()
	}
}

func (m *Metrics) flushed(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.flushErrors.Inc()
		return
	}
	m.flushes.Inc()
}

func (m *Metrics) cacheLen(n int) {
	if m == nil {
		return
	}
	m.cachedReadings.Set(float64(n))
}

func (m *Metrics) subscribersChanged(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

// HandleReading records the latest value of every sensor.
func (m *Metrics) HandleReading(r Reading) {
	if m == nil {
		return
	}
	for _, sv := range r.Temps {
		m.temperature.WithLabelValues(sv.Name).Set(sv.Value)
	}
}

// Reset forgets per-sensor gauges, used when the data is cleared.
func (m *Metrics) Reset() {
	if m == nil {
		return
	}
	m.temperature.Reset()
}
