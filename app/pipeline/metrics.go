package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	ItemsProcessed  *prometheus.CounterVec
	CandidatesSeen  *prometheus.CounterVec
	SourcesFetched  *prometheus.CounterVec
	GenerativeCalls *prometheus.CounterVec
	JobDuration     *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ItemsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "content_forge_items_processed_total",
			Help: "Items taken through the rewrite pass, by outcome",
		}, []string{"outcome"}),
		CandidatesSeen: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "content_forge_candidates_total",
			Help: "Candidates harvested from sources, by result (new, duplicate, error)",
		}, []string{"result"}),
		SourcesFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "content_forge_sources_fetched_total",
			Help: "Source fetches, by result",
		}, []string{"result"}),
		GenerativeCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "content_forge_generative_calls_total",
			Help: "Logical rewrite calls to the generative service, by result",
		}, []string{"result"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "content_forge_job_duration_seconds",
			Help:    "Duration of pipeline jobs",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"job_type", "status"}),
	}
}

func (m *Metrics) itemProcessed(outcome Outcome) {
	if m == nil {
		return
	}
	m.ItemsProcessed.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) candidate(result string) {
	if m == nil {
		return
	}
	m.CandidatesSeen.WithLabelValues(result).Inc()
}

func (m *Metrics) sourceFetched(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.SourcesFetched.WithLabelValues(result).Inc()
}

func (m *Metrics) generativeCall(result string) {
	if m == nil {
		return
	}
	m.GenerativeCalls.WithLabelValues(result).Inc()
}

func (m *Metrics) jobFinished(jobType, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.JobDuration.WithLabelValues(jobType, status).Observe(duration.Seconds())
}
