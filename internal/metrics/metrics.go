// Package metrics exposes Prometheus collectors for escalations, notifications,
// integration validations and audit writes. A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "onboardline"

type Recorder struct {
	registry      *prometheus.Registry
	escalations   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	validations   *prometheus.CounterVec
	auditWrites   *prometheus.CounterVec
	runDuration   prometheus.Histogram
}

// New registers the collectors on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Escalations emitted, by kind and urgency.",
		}, []string{"kind", "urgency"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries, by type, channel and outcome.",
		}, []string{"type", "channel", "outcome"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integration_validations_total",
			Help:      "Integration validation runs, by integration type and overall status.",
		}, []string{"integration_type", "overall_status"}),
		auditWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_writes_total",
			Help:      "Audit ledger writes, by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "escalation_run_duration_seconds",
			Help:      "Duration of batch escalation runs.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(r.escalations, r.notifications, r.validations, r.auditWrites, r.runDuration)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests and embedding.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

func (r *Recorder) Escalation(kind, urgency string) {
	if r == nil {
		return
	}
	r.escalations.WithLabelValues(kind, urgency).Inc()
}

func (r *Recorder) Notification(typ, channel string, ok bool) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(typ, channel, outcome(ok)).Inc()
}

func (r *Recorder) Validation(integrationType, status string) {
	if r == nil {
		return
	}
	r.validations.WithLabelValues(integrationType, status).Inc()
}

func (r *Recorder) AuditWrite(ok bool) {
	if r == nil {
		return
	}
	r.auditWrites.WithLabelValues(outcome(ok)).Inc()
}

func (r *Recorder) EscalationRun(d time.Duration) {
	if r == nil {
		return
	}
	r.runDuration.Observe(d.Seconds())
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
