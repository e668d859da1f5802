package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// ScanMetrics covers the discovery side: scheduler cycles and venue quoting.
type ScanMetrics struct {
	Cycles              prometheus.Counter
	SkippedTicks        prometheus.Counter
	CycleDuration       prometheus.Histogram
	QuotesCollected     prometheus.Counter
	QuoteFailures       prometheus.Counter
	OpportunitiesFound  prometheus.Counter
	StoredOpportunities prometheus.Gauge
}

func NewScanMetrics(namespace string) *ScanMetrics {
	return &ScanMetrics{
		Cycles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_cycles_total",
			Help:      "Total number of completed scan cycles",
		}),
		SkippedTicks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_ticks_total",
			Help:      "Ticks skipped because the previous cycle was still running",
		}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one discovery cycle",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		QuotesCollected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_collected_total",
			Help:      "Total number of successful venue quotes",
		}),
		QuoteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_failures_total",
			Help:      "Total number of failed or timed-out venue quotes",
		}),
		OpportunitiesFound: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_found_total",
			Help:      "Total number of profitable discrepancies discovered",
		}),
		StoredOpportunities: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_opportunities",
			Help:      "Opportunities currently held by the store",
		}),
	}
}

// ExecutionMetrics covers the orchestrator and the trade outcomes.
type ExecutionMetrics struct {
	Attempts       prometheus.Counter
	Successes      prometheus.Counter
	Reverts        prometheus.Counter
	Timeouts       prometheus.Counter
	RealizedProfit prometheus.Counter
	RealizedLoss   prometheus.Counter
	SuccessRate    prometheus.Gauge
	Latency        prometheus.Histogram
}

func NewExecutionMetrics(namespace string) *ExecutionMetrics {
	return &ExecutionMetrics{
		Attempts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_attempts_total",
			Help:      "Total number of execution attempts submitted",
		}),
		Successes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_successes_total",
			Help:      "Total number of confirmed executions",
		}),
		Reverts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_reverts_total",
			Help:      "Total number of on-chain reverts",
		}),
		Timeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_timeouts_total",
			Help:      "Total number of confirmations that timed out",
		}),
		RealizedProfit: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realized_profit_total",
			Help:      "Cumulative realized profit in quote currency",
		}),
		RealizedLoss: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realized_loss_total",
			Help:      "Cumulative realized loss in quote currency",
		}),
		SuccessRate: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "execution_success_rate",
			Help:      "Ratio of confirmed executions to attempts",
		}),
		Latency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_latency_seconds",
			Help:      "Submit-to-settle latency",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}

// ProviderMetrics covers flash-loan provider selection.
type ProviderMetrics struct {
	Selections prometheus.CounterVec
	NoEligible prometheus.Counter
	Online     prometheus.GaugeVec
}

func NewProviderMetrics(namespace string) *ProviderMetrics {
	return &ProviderMetrics{
		Selections: *promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_selections_total",
			Help:      "Number of times each flash-loan provider was selected",
		}, []string{"provider"}),
		NoEligible: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_no_eligible_total",
			Help:      "Selections that found no eligible provider",
		}),
		Online: *promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_online",
			Help:      "Provider online status (1 online, 0 offline)",
		}, []string{"provider"}),
	}
}

// CounterValue reads the current value of a counter through the collector
// interface. Used where a derived gauge needs the raw count.
func CounterValue(c prometheus.Counter) float64 {
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := <-ch
	out := &dto.Metric{}
	if err := m.Write(out); err != nil || out.Counter == nil {
		return 0
	}
	return out.Counter.GetValue()
}

// HistogramCount reads a histogram's observation count the same way.
func HistogramCount(h prometheus.Histogram) uint64 {
	ch := make(chan prometheus.Metric, 1)
	h.Collect(ch)
	m := <-ch
	out := &dto.Metric{}
	if err := m.Write(out); err != nil || out.Histogram == nil {
		return 0
	}
	return out.Histogram.GetSampleCount()
}
