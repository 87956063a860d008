// Package metrics provides the Prometheus collectors for the kora daemon.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nadzzz/kora/internal/followup"
	"github.com/nadzzz/kora/internal/interview"
	"github.com/nadzzz/kora/internal/message"
	"github.com/nadzzz/kora/internal/style"
)

const namespace = "kora"

// Metrics holds the daemon's collectors on a private registry.
// It implements interview.Stats and dispatch.Observer.
type Metrics struct {
	registry *prometheus.Registry

	sessionsStarted   *prometheus.CounterVec
	sessionsCompleted prometheus.Counter
	answersTotal      *prometheus.CounterVec
	followupsTotal    *prometheus.CounterVec
	actionsTotal      *prometheus.CounterVec
	actionDuration    *prometheus.HistogramVec
}

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_started_total",
				Help:      "Total number of interviews begun",
			},
			[]string{"style"},
		),
		sessionsCompleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_completed_total",
				Help:      "Total number of interviews that reached the summary",
			},
		),
		answersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "answers_total",
				Help:      "Total number of submitted answers",
			},
			[]string{"slot", "source"},
		),
		followupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "followups_total",
				Help:      "Total number of generated follow-up questions",
			},
			[]string{"outcome"}, // remote, no_credential, fallback
		),
		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Total number of handled actions",
			},
			[]string{"action", "status"}, // status: ok, refused
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Duration of handled actions in seconds",
				Buckets:   []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"action"},
		),
	}

	m.registry.MustRegister(
		m.sessionsStarted,
		m.sessionsCompleted,
		m.answersTotal,
		m.followupsTotal,
		m.actionsTotal,
		m.actionDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// SessionStarted counts a begun interview.
func (m *Metrics) SessionStarted(s style.Style) {
	m.sessionsStarted.WithLabelValues(string(s)).Inc()
}

// SessionCompleted counts an interview that reached the summary.
func (m *Metrics) SessionCompleted() {
	m.sessionsCompleted.Inc()
}

// AnswerSubmitted counts an answer by slot and source.
func (m *Metrics) AnswerSubmitted(slot interview.SubSlot, source interview.AnswerSource) {
	m.answersTotal.WithLabelValues(string(slot), string(source)).Inc()
}

// FollowupGenerated counts a follow-up by how it was produced. It matches
// followup.Generator.Observe.
func (m *Metrics) FollowupGenerated(o followup.Outcome) {
	m.followupsTotal.WithLabelValues(string(o)).Inc()
}

// ActionHandled records a dispatched action.
func (m *Metrics) ActionHandled(action message.Action, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "refused"
	}
	m.actionsTotal.WithLabelValues(string(action), status).Inc()
	m.actionDuration.WithLabelValues(string(action)).Observe(elapsed.Seconds())
}
