package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 定义业务监控指标
type BusinessMetrics struct {
	PayoutSuccessTotal    prometheus.Counter
	PayoutRejectedTotal   *prometheus.CounterVec
	PayoutEscalatedTotal  prometheus.Counter
	PayoutRefundTotal     prometheus.Counter
	PayoutAmountTotal     prometheus.Counter
	AttemptDuration       *prometheus.HistogramVec
	QueueDepth            *prometheus.GaugeVec
	NoOpValidationsTotal  prometheus.Counter
	TransitionConflicts   prometheus.Counter
	ReconciliationCommits prometheus.Counter
}

// Global Metrics Instance
var Business *BusinessMetrics

// InitBusinessMetrics 初始化业务指标
func InitBusinessMetrics() {
	Business = &BusinessMetrics{
		PayoutSuccessTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payout_success_total",
			Help: "The total number of successfully executed withdrawals",
		}),
		PayoutRejectedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "payout_rejected_total",
			Help: "The total number of rejected withdrawals",
		}, []string{"reason"}),
		PayoutEscalatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payout_escalated_total",
			Help: "The total number of withdrawals escalated to an operator",
		}),
		PayoutRefundTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payout_refund_amount_total",
			Help: "The total amount refunded on failed or rejected withdrawals",
		}),
		PayoutAmountTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payout_amount_total",
			Help: "The total amount of successful withdrawals",
		}),
		AttemptDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payout_attempt_duration_seconds",
			Help:    "Duration of withdrawal processing attempts",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "payout_queue_depth",
			Help: "Number of jobs per queue state",
		}, []string{"state"}),
		NoOpValidationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payout_noop_validations_total",
			Help: "Jobs skipped because the request was already resolved",
		}),
		TransitionConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payout_transition_conflicts_total",
			Help: "Conditional status transitions lost to a concurrent writer",
		}),
		ReconciliationCommits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payout_reconciliation_commits_total",
			Help: "Withdrawals committed from a pre-retry exchange reconciliation",
		}),
	}
}
