package metrics

import "github.com/prometheus/client_golang/prometheus"

// CompanionMetrics exposes counters/histograms for the safety and retrieval pipeline.
// All methods are nil-safe so components can run without metrics wired.
type CompanionMetrics struct {
	crisisAssessments  *prometheus.CounterVec
	detectorFallbacks  *prometheus.CounterVec
	screeningsTotal    *prometheus.CounterVec
	retrievalLatency   prometheus.Histogram
	retrievalPapers    prometheus.Histogram
	retrievalFailures  *prometheus.CounterVec
	llmLatency         *prometheus.HistogramVec
	llmTokensTotal     *prometheus.CounterVec
	summariesTotal     *prometheus.CounterVec
	persistenceFailure *prometheus.CounterVec
}

// NewCompanionMetrics registers collectors on reg (default registerer when nil).
func NewCompanionMetrics(reg prometheus.Registerer) *CompanionMetrics {
	m := &CompanionMetrics{
		crisisAssessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellness",
			Subsystem: "crisis",
			Name:      "assessments_total",
			Help:      "Crisis assessments by risk level and detector source",
		}, []string{"risk_level", "source"}),
		detectorFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellness",
			Subsystem: "crisis",
			Name:      "detector_fallback_total",
			Help:      "Times the keyword detector replaced the model detector",
		}, []string{"reason"}),
		screeningsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellness",
			Subsystem: "cssrs",
			Name:      "screenings_total",
			Help:      "C-SSRS screenings by lifecycle event and final risk level",
		}, []string{"event", "risk_level"}),
		retrievalLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wellness",
			Subsystem: "research",
			Name:      "retrieval_latency_seconds",
			Help:      "Latency of research context retrieval",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 6, 10},
		}),
		retrievalPapers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "wellness",
			Subsystem: "research",
			Name:      "papers_returned",
			Help:      "Papers included in a research context block",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		}),
		retrievalFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellness",
			Subsystem: "research",
			Name:      "query_failures_total",
			Help:      "Expanded queries skipped because embedding or search failed",
		}, []string{"stage"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wellness",
			Subsystem: "companion",
			Name:      "llm_latency_seconds",
			Help:      "Latency of LLM calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10, 15, 20, 30},
		}, []string{"operation", "status"}),
		llmTokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellness",
			Subsystem: "companion",
			Name:      "llm_tokens_total",
			Help:      "Tokens used by the LLM",
		}, []string{"operation", "type"}),
		summariesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellness",
			Subsystem: "memory",
			Name:      "summaries_total",
			Help:      "Conversation summaries by outcome",
		}, []string{"status"}),
		persistenceFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wellness",
			Subsystem: "companion",
			Name:      "persistence_failures_total",
			Help:      "Non-fatal persistence failures",
		}, []string{"target"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.crisisAssessments,
		m.detectorFallbacks,
		m.screeningsTotal,
		m.retrievalLatency,
		m.retrievalPapers,
		m.retrievalFailures,
		m.llmLatency,
		m.llmTokensTotal,
		m.summariesTotal,
		m.persistenceFailure,
	)
	return m
}

func (m *CompanionMetrics) ObserveAssessment(riskLevel, source string) {
	if m == nil {
		return
	}
	m.crisisAssessments.WithLabelValues(riskLevel, source).Inc()
}

func (m *CompanionMetrics) ObserveDetectorFallback(reason string) {
	if m == nil {
		return
	}
	m.detectorFallbacks.WithLabelValues(reason).Inc()
}

func (m *CompanionMetrics) ObserveScreening(event, riskLevel string) {
	if m == nil {
		return
	}
	m.screeningsTotal.WithLabelValues(event, riskLevel).Inc()
}

func (m *CompanionMetrics) ObserveRetrieval(seconds float64, papers int) {
	if m == nil {
		return
	}
	m.retrievalLatency.Observe(seconds)
	m.retrievalPapers.Observe(float64(papers))
}

func (m *CompanionMetrics) ObserveRetrievalFailure(stage string) {
	if m == nil {
		return
	}
	m.retrievalFailures.WithLabelValues(stage).Inc()
}

func (m *CompanionMetrics) ObserveLLM(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(operation, status).Observe(seconds)
}

func (m *CompanionMetrics) ObserveTokens(operation string, input, output int32) {
	if m == nil {
		return
	}
	if input > 0 {
		m.llmTokensTotal.WithLabelValues(operation, "input").Add(float64(input))
	}
	if output > 0 {
		m.llmTokensTotal.WithLabelValues(operation, "output").Add(float64(output))
	}
}

func (m *CompanionMetrics) ObserveSummary(status string) {
	if m == nil {
		return
	}
	m.summariesTotal.WithLabelValues(status).Inc()
}

func (m *CompanionMetrics) ObservePersistenceFailure(target string) {
	if m == nil {
		return
	}
	m.persistenceFailure.WithLabelValues(target).Inc()
}
