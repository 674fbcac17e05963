// Package metrics holds the prometheus collectors for ledger activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ledger"

// Outcome labels for transition counters.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics groups every collector so tests can use an isolated registry.
type Metrics struct {
	registry prometheus.Gatherer

	EntriesCreated   *prometheus.CounterVec
	EntryTransitions *prometheus.CounterVec
	AgreementChanges *prometheus.CounterVec
	StorageRetries   *prometheus.CounterVec
	OverdueReminders prometheus.Counter
	HTTPDuration     *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		EntriesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_created_total",
			Help:      "Ledger entries recorded, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		EntryTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entry_transitions_total",
			Help:      "Ledger entry status change attempts.",
		}, []string{"from", "to", "outcome"}),
		AgreementChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agreement_transitions_total",
			Help:      "Rental agreement status change attempts.",
		}, []string{"to", "outcome"}),
		StorageRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_retries_total",
			Help:      "Transient storage failures that were retried.",
		}, []string{"operation"}),
		OverdueReminders: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overdue_reminders_sent_total",
			Help:      "Overdue installment reminders delivered.",
		}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP API latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
}

// Nop returns collectors bound to a throwaway registry.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one request.
func (m *Metrics) ObserveHTTP(route string, code int, started time.Time) {
	m.HTTPDuration.WithLabelValues(route, strconv.Itoa(code)).Observe(time.Since(started).Seconds())
}
