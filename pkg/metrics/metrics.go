package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus collectors for the service.
// All helpers are nil-safe so tests can pass a nil *Metrics.
type Metrics struct {
	Registry             *prometheus.Registry
	VisitsRecordedTotal  prometheus.Counter
	VisitorResetsTotal   prometheus.Counter
	VisitorCount         prometheus.Gauge
	RecommendationsTotal *prometheus.CounterVec
	ErrorsTotal          *prometheus.CounterVec
	PredictDuration      prometheus.Histogram
	PredictionCacheHits  prometheus.Counter
}

// New constructs and registers all metrics on a dedicated registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	visits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crop_advisor_visits_recorded_total",
		Help: "Sessions counted by the visitor store since process start.",
	})
	resets := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crop_advisor_visitor_resets_total",
		Help: "Visitor counter resets since process start.",
	})
	visitorCount := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "crop_advisor_visitor_count",
		Help: "Persisted visitor count after the last store operation.",
	})
	recommendations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crop_advisor_recommendations_total",
			Help: "Successful recommendations by crop.",
		},
		[]string{"crop"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crop_advisor_errors_total",
			Help: "Operation failures by error type.",
		},
		[]string{"error_type"},
	)
	predictDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "crop_advisor_predict_duration_seconds",
		Help:    "Classifier predict latency.",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
	})
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crop_advisor_prediction_cache_hits_total",
		Help: "Recommendations answered from the prediction cache.",
	})

	registry.MustRegister(
		visits, resets, visitorCount, recommendations, errorsTotal, predictDuration, cacheHits,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		Registry:             registry,
		VisitsRecordedTotal:  visits,
		VisitorResetsTotal:   resets,
		VisitorCount:         visitorCount,
		RecommendationsTotal: recommendations,
		ErrorsTotal:          errorsTotal,
		PredictDuration:      predictDuration,
		PredictionCacheHits:  cacheHits,
	}
}

// Handler exposes the registry over HTTP
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// IncVisit records a counted session and the resulting total
func (m *Metrics) IncVisit(count int64) {
	if m == nil {
		return
	}
	m.VisitsRecordedTotal.Inc()
	m.VisitorCount.Set(float64(count))
}

// IncReset records a visitor counter reset
func (m *Metrics) IncReset() {
	if m == nil {
		return
	}
	m.VisitorResetsTotal.Inc()
	m.VisitorCount.Set(0)
}

// SetVisitorCount publishes the persisted count
func (m *Metrics) SetVisitorCount(count int64) {
	if m == nil {
		return
	}
	m.VisitorCount.Set(float64(count))
}

// IncRecommendation increments the per-crop recommendation counter
func (m *Metrics) IncRecommendation(crop string) {
	if m == nil {
		return
	}
	m.RecommendationsTotal.WithLabelValues(crop).Inc()
}

// IncError increments the errors counter for a type label
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// ObservePredict records classifier latency
func (m *Metrics) ObservePredict(d time.Duration) {
	if m == nil {
		return
	}
	m.PredictDuration.Observe(d.Seconds())
}

// IncCacheHit counts a prediction cache hit
func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.PredictionCacheHits.Inc()
}
