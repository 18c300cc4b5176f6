// Package metrics exposes Prometheus instrumentation for evaluations and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rimborsami/rimborsami/internal/domain"
)

const namespace = "rimborsami"

// Recorder receives evaluation outcomes. Implementations must be safe for
// concurrent use.
type Recorder interface {
	QuizEvaluated(eval *domain.QuizEvaluation)
	DocumentAssessed(eval *domain.DocumentEvaluation)
	HTTPRequest(method, route string, status int, elapsed time.Duration)
}

// Nop discards everything.
type Nop struct{}

func (Nop) QuizEvaluated(*domain.QuizEvaluation)           {}
func (Nop) DocumentAssessed(*domain.DocumentEvaluation)    {}
func (Nop) HTTPRequest(string, string, int, time.Duration) {}

// Prometheus records into a private registry served by Handler.
type Prometheus struct {
	registry *prometheus.Registry

	quizEvaluations  prometheus.Counter
	matched          *prometheus.CounterVec
	estimatedEuros   prometheus.Counter
	documentAssessed *prometheus.CounterVec
	levelMismatches  prometheus.Counter
	requestDuration  *prometheus.HistogramVec
}

// NewPrometheus creates a recorder with process and Go runtime collectors.
func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
		collectors.NewGoCollector(),
	)

	p := &Prometheus{
		registry: registry,
		quizEvaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quiz_evaluations_total",
			Help:      "Quiz submissions evaluated.",
		}),
		matched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_matched_total",
			Help:      "Opportunities matched, by category.",
		}, []string{"category"}),
		estimatedEuros: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimated_refund_euros_total",
			Help:      "Sum of estimated amounts across matched opportunities.",
		}),
		documentAssessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_assessments_total",
			Help:      "Document risk assessments, by level.",
		}, []string{"level"}),
		levelMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_level_mismatches_total",
			Help:      "Assessments whose explicit risk level contradicted the score.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "route", "status"}),
	}

	registry.MustRegister(
		p.quizEvaluations,
		p.matched,
		p.estimatedEuros,
		p.documentAssessed,
		p.levelMismatches,
		p.requestDuration,
	)
	return p
}

// QuizEvaluated counts the evaluation and its matches.
func (p *Prometheus) QuizEvaluated(eval *domain.QuizEvaluation) {
	p.quizEvaluations.Inc()
	for _, m := range eval.Matches {
		p.matched.WithLabelValues(string(m.Category)).Inc()
	}
	total, _ := eval.TotalEstimated.Float64()
	if total > 0 {
		p.estimatedEuros.Add(total)
	}
}

// DocumentAssessed counts the assessment by level.
func (p *Prometheus) DocumentAssessed(eval *domain.DocumentEvaluation) {
	p.documentAssessed.WithLabelValues(string(eval.Assessment.Level)).Inc()
	if eval.Assessment.LevelMismatch {
		p.levelMismatches.Inc()
	}
}

// HTTPRequest observes one request.
func (p *Prometheus) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	p.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Registry returns the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
