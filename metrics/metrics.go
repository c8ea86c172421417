// Package metrics exposes the daemon's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eureka-network/proof-experiments/common/log"
)

var (
	// PrivateMetrics about the internal world (go process, private stuff)
	PrivateMetrics = prometheus.NewRegistry()

	// SubmissionCounter counts trace submissions by terminal disposition.
	SubmissionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "submission_counter",
		Help: "Number of trace submissions received, by disposition",
	}, []string{"disposition"})

	// ProofOutcomeCounter counts verification outcomes per backend.
	ProofOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "proof_outcome_counter",
		Help: "Number of proofs by backend and verification outcome",
	}, []string{"backend", "outcome"})

	// ProvingDuration observes how long proof generation takes per backend.
	ProvingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "proving_duration_seconds",
		Help:    "histogram of proof generation latencies",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"backend"})

	// LedgerWriteConflicts counts append conflicts seen before retry.
	LedgerWriteConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledger_write_conflicts",
		Help: "Number of conflicting ledger appends detected",
	})

	// HTTPCallCounter counts http requests against the public surface.
	HTTPCallCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_call_counter",
		Help: "Number of HTTP calls received",
	}, []string{"code", "method"})

	metricsBound = false
)

// Bind registers all collectors on the private registry. It is idempotent.
func Bind(l log.Logger) {
	if metricsBound {
		return
	}
	metricsBound = true

	for _, c := range []prometheus.Collector{
		SubmissionCounter,
		ProofOutcomeCounter,
		ProvingDuration,
		LedgerWriteConflicts,
		HTTPCallCounter,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := PrivateMetrics.Register(c); err != nil {
			l.Errorw("error in registering of metric", "err", err)
		}
	}
}

// Handler serves the private registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(PrivateMetrics, promhttp.HandlerOpts{})
}
