package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	PagesFetched     prometheus.Counter
	ChallengesSolved prometheus.Counter
	CasesExtracted   prometheus.Counter
	CasesPersisted   *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		PagesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scraper_pages_fetched_total",
			Help: "The total number of pages fetched from the court website",
		}),
		ChallengesSolved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scraper_challenges_solved_total",
			Help: "The total number of captcha challenges solved",
		}),
		CasesExtracted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scraper_cases_extracted_total",
			Help: "The total number of case records extracted from HTML",
		}),
		CasesPersisted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_cases_persisted_total",
			Help: "The total number of case upserts by result",
		}, []string{"result"}), // 'inserted', 'updated', 'skipped'
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "The total number of errors encountered",
		}, []string{"type"}), // e.g. 'network_error', 'solver_error'
	}
}

func (m *Metrics) IncPagesFetched() {
	m.PagesFetched.Inc()
}

func (m *Metrics) IncChallengesSolved() {
	m.ChallengesSolved.Inc()
}

func (m *Metrics) AddCasesExtracted(n int) {
	m.CasesExtracted.Add(float64(n))
}

func (m *Metrics) AddPersisted(summary map[string]int) {
	for result, n := range summary {
		m.CasesPersisted.WithLabelValues(result).Add(float64(n))
	}
}

func (m *Metrics) IncErrorsTotal(errorType string) {
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
