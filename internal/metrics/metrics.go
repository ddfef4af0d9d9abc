// Package metrics exposes Prometheus instrumentation for the marketplace
// server.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics captures request and pipeline metrics for the artifact server.
type Metrics interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
	IncIngested(scanStatus string)
	IncRejected()
	IncDelivered(source string)
	IncRateLimited()
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) ObserveRequest(string, string, string, float64) {}
func (Noop) IncIngested(string)                             {}
func (Noop) IncRejected()                                   {}
func (Noop) IncDelivered(string)                            {}
func (Noop) IncRateLimited()                                {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	ingested    *prometheus.CounterVec
	rejected    prometheus.Counter
	delivered   *prometheus.CounterVec
	rateLimited prometheus.Counter
	once        sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_ingested_total",
			Help:      "Artifacts accepted by scan status",
		}, []string{"scan_status"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_rejected_total",
			Help:      "Uploads rejected by the integrity scanner",
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packages_delivered_total",
			Help:      "Packages delivered by content source",
		}, []string{"source"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_rate_limited_total",
			Help:      "Requests refused by the rate limiter",
		}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.requests, p.latency, p.ingested, p.rejected, p.delivered, p.rateLimited)
	})
}

func (p *Prom) ObserveRequest(method, route, status string, durationSeconds float64) {
	p.requests.WithLabelValues(method, route, status).Inc()
	p.latency.WithLabelValues(method, route).Observe(durationSeconds)
}

func (p *Prom) IncIngested(scanStatus string) {
	p.ingested.WithLabelValues(scanStatus).Inc()
}

func (p *Prom) IncRejected() {
	p.rejected.Inc()
}

func (p *Prom) IncDelivered(source string) {
	p.delivered.WithLabelValues(source).Inc()
}

func (p *Prom) IncRateLimited() {
	p.rateLimited.Inc()
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
