package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	reportsSubmittedMetricName   = "besafe_reports_submitted_total"
	classifierOutcomeMetricName  = "besafe_classifier_outcomes_total"
	notificationMetricName       = "besafe_notifications_total"
	persistFailureMetricName     = "besafe_report_persist_failures_total"
	dialogueSessionsMetricName   = "besafe_dialogue_sessions_total"
	classifierDurationMetricName = "besafe_classifier_duration_seconds"
)

// Classifier outcomes.
const (
	OutcomeParsed     = "parsed"
	OutcomeUnparsed   = "unparsed"
	OutcomeNoResponse = "no_response"
	OutcomeUpstream   = "upstream_error"
)

// Notification outcomes.
const (
	NotificationSent   = "sent"
	NotificationFailed = "failed"
)

// Dialogue session events.
const (
	SessionStarted = "started"
	SessionEnded   = "ended"
	SessionFailed  = "failed"
)

type Metrics struct {
	ReportsSubmitted   *prometheus.CounterVec
	ClassifierOutcomes *prometheus.CounterVec
	ClassifierDuration prometheus.Histogram
	Notifications      *prometheus.CounterVec
	PersistFailures    prometheus.Counter
	DialogueSessions   *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg creates unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ReportsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: reportsSubmittedMetricName,
			Help: "Reports stored, by classifier risk level.",
		}, []string{"risk_level"}),
		ClassifierOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: classifierOutcomeMetricName,
			Help: "Classifier calls by outcome (parsed, unparsed, no_response, upstream_error).",
		}, []string{"outcome"}),
		ClassifierDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    classifierDurationMetricName,
			Help:    "Time spent waiting for the classifier.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: notificationMetricName,
			Help: "Trusted adult notification attempts by outcome.",
		}, []string{"outcome"}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: persistFailureMetricName,
			Help: "Reports that could not be written to the store.",
		}),
		DialogueSessions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: dialogueSessionsMetricName,
			Help: "Dialogue sessions by lifecycle event.",
		}, []string{"event"}),
	}
}
