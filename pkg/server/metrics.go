package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of a server. Each Metrics has its
// own registry so several servers can live in one process.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ResultsCount     *prometheus.HistogramVec
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	DocsIndexedTotal prometheus.Counter
	DocsRemovedTotal prometheus.Counter
	Documents        prometheus.Gauge
	Terms            prometheus.Gauge
}

// NewMetrics creates and registers the server collectors together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docserve_requests_total",
				Help: "Total IPC requests by op and status.",
			},
			[]string{"op", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docserve_request_duration_seconds",
				Help:    "IPC request latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"op"},
		),
		ResultsCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docserve_results_count",
				Help:    "Number of results returned per search or suggest request.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
			[]string{"op"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docserve_suggest_cache_hits_total",
				Help: "Total suggest requests served from the hot cache.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docserve_suggest_cache_misses_total",
				Help: "Total suggest requests computed from the index.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docserve_docs_indexed_total",
				Help: "Total documents added.",
			},
		),
		DocsRemovedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docserve_docs_removed_total",
				Help: "Total documents removed, including clears.",
			},
		),
		Documents: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docserve_documents",
				Help: "Number of documents currently indexed.",
			},
		),
		Terms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "docserve_terms",
				Help: "Number of distinct terms currently indexed.",
			},
		),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestsTotal,
		m.RequestDuration,
		m.ResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DocsIndexedTotal,
		m.DocsRemovedTotal,
		m.Documents,
		m.Terms,
	)
	return m
}

// Handler returns the scrape handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Serve exposes /metrics on addr in the background. The returned server can
// be shut down by the caller.
func (m *Metrics) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Debugf("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server: %v", err)
		}
	}()
	return srv
}

func (m *Metrics) observe(op, status string, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(op, status).Inc()
	m.RequestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) setIndexSize(docs, terms int) {
	m.Documents.Set(float64(docs))
	m.Terms.Set(float64(terms))
}
