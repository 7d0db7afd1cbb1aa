package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var durationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// Metrics instruments the engine. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	detectionRuns     prometheus.Counter
	cacheHits         prometheus.Counter
	anomalies         *prometheus.CounterVec
	detectionDuration prometheus.Histogram
	loadedRecords     prometheus.Gauge
	loads             prometheus.Counter
}

// NewMetrics creates the engine collectors and registers them with reg.
// Collectors already registered by an earlier engine are reused. A nil
// reg leaves the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		detectionRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "accesslens",
			Subsystem: "engine",
			Name:      "detection_runs_total",
			Help:      "Number of anomaly detection pipeline runs",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "accesslens",
			Subsystem: "engine",
			Name:      "detection_cache_hits_total",
			Help:      "Number of detection requests served from the cache",
		}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "accesslens",
			Subsystem: "engine",
			Name:      "anomalies_total",
			Help:      "Number of anomalies emitted, by rule",
		}, []string{"rule"}),
		detectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "accesslens",
			Subsystem: "engine",
			Name:      "detection_duration_seconds",
			Help:      "Latency distribution of detection pipeline runs",
			Buckets:   durationBuckets,
		}),
		loadedRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "accesslens",
			Subsystem: "engine",
			Name:      "loaded_records",
			Help:      "Number of records in the current record set",
		}),
		loads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "accesslens",
			Subsystem: "engine",
			Name:      "loads_total",
			Help:      "Number of record set loads",
		}),
	}
	if reg == nil {
		return m
	}

	m.detectionRuns = register(reg, m.detectionRuns)
	m.cacheHits = register(reg, m.cacheHits)
	m.anomalies = register(reg, m.anomalies)
	m.detectionDuration = register(reg, m.detectionDuration)
	m.loadedRecords = register(reg, m.loadedRecords)
	m.loads = register(reg, m.loads)
	return m
}

// register registers c, returning the existing collector when an equal
// one is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) observeLoad(n int) {
	if m == nil {
		return
	}
	m.loads.Inc()
	m.loadedRecords.Set(float64(n))
}

func (m *Metrics) observeCacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) observeRun(elapsed time.Duration, rules map[string]int) {
	if m == nil {
		return
	}
	m.detectionRuns.Inc()
	m.detectionDuration.Observe(elapsed.Seconds())
	for rule, n := range rules {
		m.anomalies.WithLabelValues(rule).Add(float64(n))
	}
}
