package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	rewardMetricsOnce sync.Once
	rewardRegistry    *RewardMetrics
)

// RewardMetrics wraps collectors tracking the reward workflow and its
// external collaborators.
type RewardMetrics struct {
	verifications   *prometheus.CounterVec
	payoutOutcomes  *prometheus.CounterVec
	payoutLatency   prometheus.Histogram
	rewardsRecorded *prometheus.CounterVec
}

// Reward returns the lazily-initialised metrics registry for the reward
// workflow.
func Reward() *RewardMetrics {
	rewardMetricsOnce.Do(func() {
		rewardRegistry = &RewardMetrics{
			verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "satsbridge",
				Subsystem: "ledger",
				Name:      "verifications_total",
				Help:      "Ledger verification attempts segmented by outcome.",
			}, []string{"outcome"}),
			payoutOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "satsbridge",
				Subsystem: "payout",
				Name:      "requests_total",
				Help:      "Payout provider submissions segmented by outcome.",
			}, []string{"outcome"}),
			payoutLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "satsbridge",
				Subsystem: "payout",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for payout provider submissions.",
				Buckets:   prometheus.DefBuckets,
			}),
			rewardsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "satsbridge",
				Subsystem: "reward",
				Name:      "transactions_total",
				Help:      "Reward records written segmented by payout status.",
			}, []string{"status"}),
		}
		prometheus.MustRegister(
			rewardRegistry.verifications,
			rewardRegistry.payoutOutcomes,
			rewardRegistry.payoutLatency,
			rewardRegistry.rewardsRecorded,
		)
	})
	return rewardRegistry
}

// RecordVerification counts a verification attempt by outcome.
func (m *RewardMetrics) RecordVerification(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObservePayout records a payout submission and its latency.
func (m *RewardMetrics) ObservePayout(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.payoutOutcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.payoutLatency.Observe(d.Seconds())
}

// RecordTransaction counts a persisted reward record by payout status.
func (m *RewardMetrics) RecordTransaction(status string) {
	if m == nil {
		return
	}
	m.rewardsRecorded.WithLabelValues(normalizeLabel(status)).Inc()
}

func normalizeLabel(value string) string {
	cleaned := strings.ToLower(strings.TrimSpace(value))
	if cleaned == "" {
		return "unknown"
	}
	return cleaned
}
