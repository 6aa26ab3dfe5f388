package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every anchord metric.
const Namespace = "anchor"

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the engine collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	submissions      *prometheus.CounterVec
	attempts         *prometheus.CounterVec
	mirrorFailures   prometheus.Counter
	confirmationTime prometheus.Histogram
	reverifications  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		submissions: newCounterVec(
			"submissions_total",
			"Ledger submissions by final outcome.",
			[]string{"outcome"},
		),
		attempts: newCounterVec(
			"submission_attempts_total",
			"Failed submission attempts by classified error code.",
			[]string{"code"},
		),
		mirrorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "mirror_failures_total",
			Help:      "Content store mirror failures (anchoring continued in degraded mode).",
		}),
		confirmationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "confirmation_seconds",
			Help:      "The time (in seconds) from broadcast to a mined receipt.",
			Buckets:   []float64{1, 2, 5, 10, 15, 30, 60, 120},
		}),
		reverifications: newCounterVec(
			"reverifications_total",
			"Re-verifications by result.",
			[]string{"result"},
		),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.submissions, m.attempts, m.mirrorFailures, m.confirmationTime, m.reverifications} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	}, labels)
}

// SubmissionCompleted counts a finished submission.
func (m *Metrics) SubmissionCompleted(success bool) {
	if m == nil {
		return
	}
	outcome := OutcomeFailure
	if success {
		outcome = OutcomeSuccess
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

// AttemptFailed counts a failed attempt under its error code.
func (m *Metrics) AttemptFailed(code string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(code).Inc()
}

// MirrorFailed counts a content store failure.
func (m *Metrics) MirrorFailed() {
	if m == nil {
		return
	}
	m.mirrorFailures.Inc()
}

// ConfirmationTime records the time from broadcast to receipt.
func (m *Metrics) ConfirmationTime(value time.Duration) {
	if m == nil {
		return
	}
	m.confirmationTime.Observe(value.Seconds())
}

// Reverified counts a re-verification by whether the hash still matched.
func (m *Metrics) Reverified(matches bool) {
	if m == nil {
		return
	}
	result := "mismatch"
	if matches {
		result = "match"
	}
	m.reverifications.WithLabelValues(result).Inc()
}
