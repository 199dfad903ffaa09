// Package metrics defines the Prometheus instruments shared by the submission,
// confirmation and device components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every instrument. A nil *Metrics is valid and records nothing.
type Metrics struct {
	SubmissionsTotal     *prometheus.CounterVec
	ResubmissionsTotal   prometheus.Counter
	ConfirmationOutcomes *prometheus.CounterVec
	PollErrorsTotal      prometheus.Counter
	ConfirmationDuration prometheus.Histogram
	PendingConfirmations prometheus.Gauge
	DeviceCallsTotal     *prometheus.CounterVec
	FeeEstimatesTotal    *prometheus.CounterVec
}

// New registers all instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SubmissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_link_submissions_total",
			Help: "Transaction submissions by result",
		}, []string{"result"}),
		ResubmissionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wallet_link_resubmissions_total",
			Help: "Rebroadcasts of identical signed bytes",
		}),
		ConfirmationOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_link_confirmation_outcomes_total",
			Help: "Terminal confirmation outcomes by status",
		}, []string{"status"}),
		PollErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wallet_link_poll_errors_total",
			Help: "Transient RPC errors swallowed while polling",
		}),
		ConfirmationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wallet_link_confirmation_duration_seconds",
			Help:    "Time from submission to a terminal outcome",
			Buckets: prometheus.DefBuckets,
		}),
		PendingConfirmations: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wallet_link_pending_confirmations",
			Help: "Transactions currently being monitored",
		}),
		DeviceCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_link_device_calls_total",
			Help: "Device typed calls by command and result",
		}, []string{"command", "result"}),
		FeeEstimatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_link_fee_estimates_total",
			Help: "Fee estimates by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncSubmission(result string) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncResubmission() {
	if m == nil {
		return
	}
	m.ResubmissionsTotal.Inc()
}

func (m *Metrics) ObserveOutcome(status string, seconds float64) {
	if m == nil {
		return
	}
	m.ConfirmationOutcomes.WithLabelValues(status).Inc()
	m.ConfirmationDuration.Observe(seconds)
}

func (m *Metrics) IncPollError() {
	if m == nil {
		return
	}
	m.PollErrorsTotal.Inc()
}

func (m *Metrics) AddPending(delta float64) {
	if m == nil {
		return
	}
	m.PendingConfirmations.Add(delta)
}

func (m *Metrics) IncDeviceCall(command, result string) {
	if m == nil {
		return
	}
	m.DeviceCallsTotal.WithLabelValues(command, result).Inc()
}

func (m *Metrics) IncFeeEstimate(result string) {
	if m == nil {
		return
	}
	m.FeeEstimatesTotal.WithLabelValues(result).Inc()
}
