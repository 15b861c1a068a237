package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lumy"

// Metrics records display, widget, cloud and HTTP activity.
type Metrics struct {
	registry *prometheus.Registry

	displayOps      *prometheus.CounterVec
	displayDuration *prometheus.HistogramVec
	lastRefresh     prometheus.Gauge
	widgetUpdates   *prometheus.CounterVec
	widgetDuration  *prometheus.HistogramVec
	cloudRequests   *prometheus.CounterVec
	commands        *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers the collectors, plus the Go runtime and process
// collectors, in a fresh registry.
func New(version string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	f.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "build_info",
		Help:        "Build information; always 1.",
		ConstLabels: prometheus.Labels{"version": version},
	}).Set(1)

	return &Metrics{
		registry: reg,
		displayOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "display_operations_total",
			Help:      "Panel operations by operation and result.",
		}, []string{"operation", "result"}),
		displayDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "display_operation_duration_seconds",
			Help:      "Panel operation duration, including wake and sleep.",
			Buckets:   []float64{.1, .5, 1, 2, 5, 10, 20, 40},
		}, []string{"operation"}),
		lastRefresh: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "display_last_refresh_timestamp_seconds",
			Help:      "Unix time of the last successful panel write.",
		}),
		widgetUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "widget_updates_total",
			Help:      "Widget data refreshes by widget type and result.",
		}, []string{"type", "result"}),
		widgetDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "widget_update_duration_seconds",
			Help:      "Widget data refresh duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		cloudRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cloud_requests_total",
			Help:      "Cloud sync operations by kind and result.",
		}, []string{"kind", "result"}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands submitted through the command bus by name and result.",
		}, []string{"command", "result"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Local API requests by route and status class.",
		}, []string{"route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Local API request duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// GaugeFunc registers a gauge whose value is read at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	if m == nil {
		return
	}
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)
}

// ObserveDisplay records one panel operation.
func (m *Metrics) ObserveDisplay(operation string, success bool, d time.Duration, at time.Time) {
	if m == nil {
		return
	}
	m.displayOps.WithLabelValues(operation, result(success)).Inc()
	m.displayDuration.WithLabelValues(operation).Observe(d.Seconds())
	if success && operation == "render" {
		m.lastRefresh.Set(float64(at.Unix()))
	}
}

// ObserveWidget records one widget refresh.
func (m *Metrics) ObserveWidget(widgetType string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.widgetUpdates.WithLabelValues(widgetType, result(success)).Inc()
	m.widgetDuration.WithLabelValues(widgetType).Observe(d.Seconds())
}

// ObserveCloud records one cloud operation (config, heartbeat, register).
func (m *Metrics) ObserveCloud(kind string, err error) {
	if m == nil {
		return
	}
	m.cloudRequests.WithLabelValues(kind, result(err == nil)).Inc()
}

// ObserveCommand records one command reply.
func (m *Metrics) ObserveCommand(name string, success bool) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name, result(success)).Inc()
}

// ObserveHTTP records one local API request. route is the chi pattern, not
// the raw path, to bound label cardinality.
func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return strconv.Itoa(code)
	}
	return strconv.Itoa(code/100) + "xx"
}
