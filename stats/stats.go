package stats

import (
	"sync"

	"github.com/dkrasnoff/flasharb/types"
	"go.uber.org/zap"
)

// historySize bounds the in-memory record of recent execution results.
const historySize = 256

// Aggregator maintains the running trade statistics. All updates pass
// through one mutex, so totals never tear even when multiple executions
// settle concurrently.
type Aggregator struct {
	mu sync.Mutex

	totalTrades      uint64
	successfulTrades uint64
	totalProfit      float64

	cumulative  float64
	peak        float64
	maxDrawdown float64

	history []types.ExecutionResult
	next    int
	full    bool

	logger *zap.Logger
}

// New creates an empty aggregator.
func New(logger *zap.Logger) *Aggregator {
	return &Aggregator{
		history: make([]types.ExecutionResult, historySize),
		logger:  logger,
	}
}

// Record folds one execution result into the running aggregate. Every
// attempt counts toward the total; only confirmed trades count as
// successes. RealizedProfit is signed, so reverts pull the cumulative
// curve down and feed the drawdown.
func (a *Aggregator) Record(res types.ExecutionResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalTrades++
	if res.Success {
		a.successfulTrades++
	}
	a.totalProfit += res.RealizedProfit

	a.cumulative += res.RealizedProfit
	if a.cumulative > a.peak {
		a.peak = a.cumulative
	}
	if dd := a.peak - a.cumulative; dd > a.maxDrawdown {
		a.maxDrawdown = dd
	}

	a.history[a.next] = res
	a.next = (a.next + 1) % historySize
	if a.next == 0 {
		a.full = true
	}

	a.logger.Debug("Recorded execution result",
		zap.String("fingerprint", res.Fingerprint),
		zap.Bool("success", res.Success),
		zap.Float64("realized", res.RealizedProfit),
		zap.Uint64("total_trades", a.totalTrades))
}

// Snapshot returns the current aggregate. SuccessRate is zero when no
// trade has been recorded yet.
func (a *Aggregator) Snapshot() types.TradingStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := types.TradingStats{
		TotalTrades:      a.totalTrades,
		SuccessfulTrades: a.successfulTrades,
		TotalProfit:      a.totalProfit,
		MaxDrawdown:      a.maxDrawdown,
	}
	if a.totalTrades > 0 {
		s.SuccessRate = float64(a.successfulTrades) / float64(a.totalTrades)
	}
	return s
}

// History returns the retained execution results, oldest first.
func (a *Aggregator) History() []types.ExecutionResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.full {
		out := make([]types.ExecutionResult, a.next)
		copy(out, a.history[:a.next])
		return out
	}
	out := make([]types.ExecutionResult, 0, historySize)
	out = append(out, a.history[a.next:]...)
	out = append(out, a.history[:a.next]...)
	return out
}
