// metrics.go - Prometheus metrics for the spool daemon.
//
// Each Server owns its registry so tests can build many servers without
// colliding on the global default registerer.
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mail-spool/internal/spool"
)

const metricsNamespace = "mailspool"

// Metrics holds the collectors exported on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	itemsStored     prometheus.Counter
	bytesStored     prometheus.Counter
	itemsRead       prometheus.Counter
	bytesRead       prometheus.Counter
	storeErrors     *prometheus.CounterVec
	ingestRejected  *prometheus.CounterVec
	authDenied      *prometheus.CounterVec
}

// NewMetrics registers the spool collectors plus the Go runtime and
// process collectors on a fresh registry.
func NewMetrics(build BuildInfo) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route, method and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),
		itemsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "items_stored_total",
			Help:      "Payloads written to the spool.",
		}),
		bytesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stored_bytes_total",
			Help:      "Payload bytes written to the spool.",
		}),
		itemsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "items_read_total",
			Help:      "Spool items served to consumers.",
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "read_bytes_total",
			Help:      "Spool item bytes served to consumers.",
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "store_errors_total",
			Help:      "Spool operations that failed, by error kind.",
		}, []string{"op", "kind"}),
		ingestRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ingest_rejected_total",
			Help:      "Ingest requests rejected before reaching the spool.",
		}, []string{"reason"}),
		authDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "auth_denied_total",
			Help:      "Requests refused by the access gate.",
		}, []string{"reason"}),
	}

	buildInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "build_info",
		Help:      "Build information, always 1.",
	}, []string{"version", "commit"})
	buildInfo.WithLabelValues(build.Version, build.Commit).Set(1)

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		buildInfo,
		m.requestDuration,
		m.itemsStored,
		m.bytesStored,
		m.itemsRead,
		m.bytesRead,
		m.storeErrors,
		m.ingestRejected,
		m.authDenied,
	)
	return m
}

// RecordRequest records one finished HTTP request.
func (m *Metrics) RecordRequest(route, method string, status int, d time.Duration) {
	m.requestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}

// RecordStored records a successful Create.
func (m *Metrics) RecordStored(size int) {
	m.itemsStored.Inc()
	m.bytesStored.Add(float64(size))
}

// RecordRead records an item served to a consumer.
func (m *Metrics) RecordRead(size int) {
	m.itemsRead.Inc()
	m.bytesRead.Add(float64(size))
}

// RecordStoreError counts a failed spool operation by its error kind.
func (m *Metrics) RecordStoreError(op string, err error) {
	m.storeErrors.WithLabelValues(op, spool.Kind(err)).Inc()
}

// RecordIngestRejected counts an ingest refused before storage.
func (m *Metrics) RecordIngestRejected(reason string) {
	m.ingestRejected.WithLabelValues(reason).Inc()
}

// RecordAuthDenied counts a request refused by the gate.
func (m *Metrics) RecordAuthDenied(reason string) {
	m.authDenied.WithLabelValues(reason).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
