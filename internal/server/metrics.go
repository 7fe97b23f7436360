package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry           *prometheus.Registry
	registrationsTotal *prometheus.CounterVec
	proxyRequestsTotal *prometheus.CounterVec
	verificationsTotal *prometheus.CounterVec
	proxyDuration      prometheus.Histogram
}

func newMetricsRegistry() *metricsRegistry {
	registrations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paygate_registrations_total",
		Help: "Total number of service registration requests",
	}, []string{"status"})

	proxies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paygate_proxy_requests_total",
		Help: "Total number of proxy requests by terminal outcome",
	}, []string{"outcome"})

	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paygate_verifications_total",
		Help: "Payment verification decisions",
	}, []string{"result"})

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "paygate_proxy_duration_seconds",
		Help:    "End-to-end proxy request handling time",
		Buckets: prometheus.DefBuckets,
	})

	r := prometheus.NewRegistry()
	r.MustRegister(registrations, proxies, verifications, duration)

	return &metricsRegistry{
		registry:           r,
		registrationsTotal: registrations,
		proxyRequestsTotal: proxies,
		verificationsTotal: verifications,
		proxyDuration:      duration,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incRegistration(status string) {
	m.registrationsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incProxy(outcome string) {
	m.proxyRequestsTotal.WithLabelValues(outcome).Inc()
}

func (m *metricsRegistry) incVerification(result string) {
	m.verificationsTotal.WithLabelValues(result).Inc()
}

func (m *metricsRegistry) observeProxy(d time.Duration) {
	m.proxyDuration.Observe(d.Seconds())
}
