// Package metrics exposes scheduler measurements in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/mmsgate/internal/app"
	"github.com/bft-labs/mmsgate/internal/domain"
)

const namespace = "mmsgate"

// Recorder implements app.Recorder on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	admissions  *prometheus.CounterVec
	completions *prometheus.CounterVec
	pending     prometheus.Gauge
	processing  prometheus.Gauge
	lease       prometheus.Gauge
	renewals    *prometheus.CounterVec
	sent        prometheus.Counter
	received    prometheus.Counter
}

// NewRecorder creates and registers all collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Submitted requests by kind and admission outcome.",
		}, []string{"kind", "outcome"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Finished transactions by kind and final state.",
		}, []string{"kind", "state"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_transactions",
			Help:      "Transactions waiting for connectivity.",
		}),
		processing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "processing_transactions",
			Help:      "Transactions currently running.",
		}),
		lease: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lease_state",
			Help:      "Connectivity lease: 0 inactive, 1 requested, 2 active.",
		}),
		renewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lease_renewals_total",
			Help:      "Lease renewal attempts by result.",
		}, []string{"result"}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Outgoing messages accepted by the relay.",
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Incoming messages downloaded from the relay.",
		}),
	}
	r.registry.MustRegister(
		r.admissions, r.completions, r.pending, r.processing,
		r.lease, r.renewals, r.sent, r.received,
		prometheus.NewGoCollector(),
	)
	return r
}

func (r *Recorder) Admitted(kind domain.Kind, outcome string) {
	r.admissions.WithLabelValues(kind.String(), outcome).Inc()
}

func (r *Recorder) Completed(c domain.Completion) {
	r.completions.WithLabelValues(c.Kind.String(), string(c.State)).Inc()
	if c.State != domain.FinalSuccess {
		return
	}
	switch c.Kind {
	case domain.KindSend:
		r.sent.Inc()
	case domain.KindNotify, domain.KindRetrieve:
		if c.ResultLocator != "" {
			r.received.Inc()
		}
	}
}

func (r *Recorder) QueueDepth(pending, processing int) {
	r.pending.Set(float64(pending))
	r.processing.Set(float64(processing))
}

func (r *Recorder) Lease(state app.LeaseState) {
	r.lease.Set(float64(state))
}

func (r *Recorder) Renewed(result string) {
	r.renewals.WithLabelValues(result).Inc()
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

var _ app.Recorder = (*Recorder)(nil)
