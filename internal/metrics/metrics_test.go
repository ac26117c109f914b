package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ReportsSubmitted.WithLabelValues("high").Inc()
	m.ClassifierOutcomes.WithLabelValues(OutcomeParsed).Add(2)
	m.Notifications.WithLabelValues(NotificationFailed).Inc()
	m.PersistFailures.Inc()
	m.DialogueSessions.WithLabelValues(SessionStarted).Inc()
	m.ClassifierDuration.Observe(0.5)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReportsSubmitted.WithLabelValues("high")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ClassifierOutcomes.WithLabelValues(OutcomeParsed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 6)
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	m.Notifications.WithLabelValues(NotificationSent).Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues(NotificationSent)))
}
