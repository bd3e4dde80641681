// Package metrics records OFX ingestion observability signals in
// Prometheus exposition format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Statuses for the duration histogram.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// unknownLabel replaces blank label values. Empty label values break
// downstream aggregation, so account and bank labels are never left
// empty.
const unknownLabel = "unknown"

// Recorder owns the ingestion metric families. Register it against a
// dedicated registry per process instance.
type Recorder struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	active   *prometheus.GaugeVec
}

// NewRecorder creates and registers the metric families.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ofx_ingestion_duration_seconds",
			Help:    "Duration of OFX ingestion calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"client_id", "bank_account_id", "bank_name", "status"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ofx_ingestion_errors_total",
			Help: "OFX ingestion failures by pipeline stage.",
		}, []string{"client_id", "bank_account_id", "bank_name", "stage"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ofx_ingestion_active",
			Help: "OFX ingestion calls currently in flight.",
		}, []string{"client_id", "bank_account_id", "bank_name"}),
	}
	reg.MustRegister(r.duration, r.errors, r.active)
	return r
}

// ObserveDuration records one finished ingestion call.
func (r *Recorder) ObserveDuration(clientID, bankAccountID, bankName, status string, elapsed time.Duration) {
	r.duration.WithLabelValues(clientID, normalize(bankAccountID), normalize(bankName), status).
		Observe(elapsed.Seconds())
}

// IncError counts one failure at the given pipeline stage.
func (r *Recorder) IncError(clientID, bankAccountID, bankName, stage string) {
	r.errors.WithLabelValues(clientID, normalize(bankAccountID), normalize(bankName), stage).Inc()
}

// IncActive marks an ingestion call as in flight.
func (r *Recorder) IncActive(clientID, bankAccountID, bankName string) {
	r.active.WithLabelValues(clientID, normalize(bankAccountID), normalize(bankName)).Inc()
}

// DecActive marks an ingestion call as finished. Must be called with
// the same labels as the matching IncActive.
func (r *Recorder) DecActive(clientID, bankAccountID, bankName string) {
	r.active.WithLabelValues(clientID, normalize(bankAccountID), normalize(bankName)).Dec()
}

func normalize(value string) string {
	if value == "" {
		return unknownLabel
	}
	return value
}
