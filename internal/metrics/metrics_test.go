package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.IncTaskDerived("reminder_30")
	m.IncTaskDerived("reminder_30")
	m.IncWarning("invalid_date")
	m.IncTransition("ok")
	m.SetAvgCompliance(67)
	m.ObserveEvaluation(time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TasksDerived.WithLabelValues("reminder_30")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Warnings.WithLabelValues("invalid_date")))
	assert.Equal(t, 67.0, testutil.ToFloat64(m.AvgCompliance))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `certline_tasks_derived_total{type="reminder_30"} 2`)
	assert.Contains(t, string(body), "certline_evaluation_duration_seconds_count 1")
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.IncTransition("ok")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Transitions.WithLabelValues("ok")))
}
