package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersAndHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.EntryTransitions.WithLabelValues("PENDING", "PROCESSING", OutcomeOK).Inc()
	m.EntryTransitions.WithLabelValues("PENDING", "PROCESSING", OutcomeOK).Inc()
	m.EntriesCreated.WithLabelValues("RENTAL", OutcomeRejected).Inc()
	m.ObserveHTTP("entries.get", 200, time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EntryTransitions.WithLabelValues("PENDING", "PROCESSING", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EntriesCreated.WithLabelValues("RENTAL", OutcomeRejected)))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "ledger_entry_transitions_total")
	assert.Contains(t, rec.Body.String(), "ledger_http_request_duration_seconds")
}

func TestNopIsIsolated(t *testing.T) {
	a, b := Nop(), Nop()
	a.OverdueReminders.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.OverdueReminders))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.OverdueReminders))
}
