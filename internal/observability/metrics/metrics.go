package metrics

import "github.com/prometheus/client_golang/prometheus"

// ExtractionMetrics exposes counters/histograms for LLM extraction calls.
type ExtractionMetrics struct {
	attemptsTotal *prometheus.CounterVec
	cacheTotal    *prometheus.CounterVec
	callLatency   prometheus.Histogram
}

func NewExtractionMetrics(reg prometheus.Registerer) *ExtractionMetrics {
	m := &ExtractionMetrics{
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oncotrack",
			Subsystem: "extraction",
			Name:      "attempts_total",
			Help:      "Total LLM extraction attempts",
		}, []string{"kind", "outcome"}),
		cacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oncotrack",
			Subsystem: "extraction",
			Name:      "cache_total",
			Help:      "Extraction cache lookups",
		}, []string{"result"}),
		callLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "oncotrack",
			Subsystem: "extraction",
			Name:      "call_latency_seconds",
			Help:      "Latency of individual LLM extraction calls",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.attemptsTotal, m.cacheTotal, m.callLatency)
	return m
}

func (m *ExtractionMetrics) ObserveAttempt(kind, outcome string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *ExtractionMetrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheTotal.WithLabelValues(result).Inc()
}

func (m *ExtractionMetrics) ObserveCallLatency(seconds float64) {
	if m == nil {
		return
	}
	m.callLatency.Observe(seconds)
}

// TrackingMetrics exposes counters/histograms for the tracking pipeline.
type TrackingMetrics struct {
	patientsTotal      *prometheus.CounterVec
	degradedTimepoints prometheus.Counter
	lesionsCreated     prometheus.Counter
	patientLatency     prometheus.Histogram
}

func NewTrackingMetrics(reg prometheus.Registerer) *TrackingMetrics {
	m := &TrackingMetrics{
		patientsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oncotrack",
			Subsystem: "tracking",
			Name:      "patients_total",
			Help:      "Patients processed by tracking outcome",
		}, []string{"status"}),
		degradedTimepoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oncotrack",
			Subsystem: "tracking",
			Name:      "degraded_timepoints_total",
			Help:      "Timepoints processed with zero observations after exhausted retries",
		}),
		lesionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "oncotrack",
			Subsystem: "tracking",
			Name:      "lesions_created_total",
			Help:      "Lesion identities created across all patients",
		}),
		patientLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "oncotrack",
			Subsystem: "tracking",
			Name:      "patient_latency_seconds",
			Help:      "Wall time to track one patient end to end",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.patientsTotal, m.degradedTimepoints, m.lesionsCreated, m.patientLatency)
	return m
}

func (m *TrackingMetrics) ObservePatient(status string) {
	if m == nil {
		return
	}
	m.patientsTotal.WithLabelValues(status).Inc()
}

func (m *TrackingMetrics) ObserveDegradedTimepoint() {
	if m == nil {
		return
	}
	m.degradedTimepoints.Inc()
}

func (m *TrackingMetrics) ObserveLesionsCreated(n int) {
	if m == nil {
		return
	}
	m.lesionsCreated.Add(float64(n))
}

func (m *TrackingMetrics) ObservePatientLatency(seconds float64) {
	if m == nil {
		return
	}
	m.patientLatency.Observe(seconds)
}
