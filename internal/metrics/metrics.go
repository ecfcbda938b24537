package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "charitybot_build_info",
			Help: "Build information of charitybot",
		},
		[]string{"version"},
	)

	TipQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "charitybot_tip_queue_depth",
			Help: "Donation events waiting to be split",
		},
	)

	TipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charitybot_tips_total",
			Help: "Donation events by outcome",
		},
		[]string{"outcome"}, // received, split, dropped, underfunded, invalid
	)

	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charitybot_payments_total",
			Help: "Payment calls to beneficiaries",
		},
		[]string{"source", "status"}, // source: split, reconcile
	)

	PaymentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "charitybot_payment_duration_seconds",
			Help:    "Duration of a single beneficiary payment",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)

	ReconcileRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charitybot_reconcile_runs_total",
			Help: "Remaining-balance reconcile checks by result",
		},
		[]string{"result"}, // skipped, indivisible, empty, paid, failed
	)

	PostQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "charitybot_post_queue_depth",
			Help: "Announcements waiting to be posted",
		},
	)

	PostRemainingQuota = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "charitybot_post_remaining_quota",
			Help: "Posts left in the current rate window",
		},
	)

	PostsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charitybot_posts_total",
			Help: "Post attempts by outcome",
		},
		[]string{"outcome"}, // sent, retried_too_long, retried_duplicate, dropped
	)

	StoreWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charitybot_store_writes_total",
			Help: "Durable store writes",
		},
		[]string{"key", "status"},
	)

	Halted = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "charitybot_halted",
			Help: "1 when startup failed and the bot is not interacting with external services",
		},
	)
)
