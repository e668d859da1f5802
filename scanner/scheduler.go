package scanner

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkrasnoff/flasharb/chain"
	"github.com/dkrasnoff/flasharb/flashloan"
	"github.com/dkrasnoff/flasharb/oracle"
	"github.com/dkrasnoff/flasharb/profit"
	"github.com/dkrasnoff/flasharb/stats"
	"github.com/dkrasnoff/flasharb/store"
	"github.com/dkrasnoff/flasharb/types"
	"github.com/dkrasnoff/flasharb/utils/metrics"
	"github.com/dkrasnoff/flasharb/venue"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// arbitrageHops is the number of swaps in one borrow-swap-swap-repay cycle.
const arbitrageHops = 2

// Executor runs one execution attempt for a reserved opportunity.
type Executor interface {
	Execute(ctx context.Context, opp *types.Opportunity) types.ExecutionResult
}

// Target is one (chain, pair) scan assignment with its probe size in quote
// currency.
type Target struct {
	Chain    string
	Pair     types.Pair
	AmountIn float64
}

func (t Target) key() string {
	return t.Chain + ":" + t.Pair.String()
}

// ChainResources bundles the per-chain collaborators a scan loop needs.
type ChainResources struct {
	Aggregator *venue.Aggregator
	Registry   *flashloan.Registry
	Gas        *chain.GasTracker
}

// Config controls scan pacing and execution policy.
type Config struct {
	Interval     time.Duration
	StaleHorizon time.Duration
	MinProfit    float64
	AutoExecute  bool
}

// Scheduler runs one fixed-interval discovery loop per target. A tick that
// fires while the previous cycle is still running is skipped outright, so
// slow RPC never builds a backlog of queued scans.
type Scheduler struct {
	cfg     Config
	chains  map[string]*ChainResources
	targets []Target
	store   *store.Store
	rates   oracle.RateSource
	exec    Executor
	stats   *stats.Aggregator
	logger  *zap.Logger
	metrics *metrics.ScanMetrics

	results chan types.ExecutionResult

	mu     sync.RWMutex
	halted map[string]error
}

// New creates a scheduler. exec may be nil when autoExecute is disabled.
func New(cfg Config, chains map[string]*ChainResources, targets []Target,
	s *store.Store, rates oracle.RateSource, exec Executor, agg *stats.Aggregator,
	logger *zap.Logger, m *metrics.ScanMetrics) *Scheduler {

	return &Scheduler{
		cfg:     cfg,
		chains:  chains,
		targets: targets,
		store:   s,
		rates:   rates,
		exec:    exec,
		stats:   agg,
		logger:  logger,
		metrics: m,
		results: make(chan types.ExecutionResult, 64),
		halted:  make(map[string]error),
	}
}

// Run starts all scan loops and blocks until the context is cancelled.
// A loop that hits a fatal configuration error halts alone; the rest keep
// scanning.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, target := range s.targets {
		target := target
		g.Go(func() error {
			s.runLoop(gctx, target)
			return nil
		})
	}
	err := g.Wait()
	close(s.results)
	return err
}

func (s *Scheduler) runLoop(ctx context.Context, target Target) {
	log := s.logger.With(
		zap.String("chain", target.Chain),
		zap.String("pair", target.Pair.String()))

	res, ok := s.chains[target.Chain]
	if !ok {
		err := fmt.Errorf("no resources configured for chain %s", target.Chain)
		log.Error("Scan loop halted", zap.Error(err))
		s.halt(target, err)
		return
	}
	if res.Aggregator.Venues() < 2 {
		err := fmt.Errorf("chain %s has %d venues, need at least 2", target.Chain, res.Aggregator.Venues())
		log.Error("Scan loop halted", zap.Error(err))
		s.halt(target, err)
		return
	}

	log.Info("Scan loop started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Float64("amount_in", target.AmountIn))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	// The cycle runs off the tick goroutine so a slow cycle leaves the
	// ticker observable: ticks arriving mid-cycle are counted and dropped,
	// never queued.
	var busy int32
	var cycles sync.WaitGroup
	defer cycles.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !atomic.CompareAndSwapInt32(&busy, 0, 1) {
				s.metrics.SkippedTicks.Inc()
				log.Debug("Skipped tick, previous cycle still running")
				continue
			}
			cycles.Add(1)
			go func() {
				defer cycles.Done()
				defer atomic.StoreInt32(&busy, 0)
				s.cycle(ctx, target, res, log)
			}()
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context, target Target, res *ChainResources, log *zap.Logger) {
	start := time.Now()
	defer func() {
		s.metrics.Cycles.Inc()
		s.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	quotes := res.Aggregator.Collect(ctx, target.Pair, target.AmountIn)
	if len(quotes) < 2 {
		log.Debug("Not enough quotes this cycle", zap.Int("quotes", len(quotes)))
		s.store.EvictStale(s.cfg.StaleHorizon)
		return
	}

	rate, err := s.rates.Rate(ctx, target.Chain)
	if err != nil {
		log.Warn("No native rate, skipping cycle", zap.Error(err))
		return
	}
	loanFee, err := res.Registry.CheapestFee(target.Pair.Quote)
	if err != nil {
		log.Debug("No flash loan provider for pair", zap.Error(err))
		return
	}
	gasNative := res.Gas.CostNative(chain.ArbitrageGas(arbitrageHops))

	found := 0
	for i, buy := range quotes {
		for j, counter := range quotes {
			if i == j || counter.BaseOut <= 0 {
				continue
			}

			sell := deriveSell(buy, counter)
			eval, err := profit.Evaluate(buy, sell, loanFee, gasNative, rate)
			if err != nil {
				continue
			}
			if eval.NetProfit <= 0 {
				continue
			}

			opp := types.NewOpportunity(target.Chain, buy, sell, eval.GrossSpreadPct, eval.NetProfit, time.Now())
			if s.store.Upsert(opp) {
				found++
				log.Info("Opportunity discovered",
					zap.String("fingerprint", opp.Fingerprint),
					zap.String("buy", buy.Venue),
					zap.String("sell", sell.Venue),
					zap.Float64("spread_pct", eval.GrossSpreadPct),
					zap.Float64("net_profit", eval.NetProfit))
			}
		}
	}
	if found > 0 {
		s.metrics.OpportunitiesFound.Add(float64(found))
	}

	s.store.EvictStale(s.cfg.StaleHorizon)

	if s.cfg.AutoExecute && s.exec != nil {
		s.autoExecute(ctx, log)
	}
}

// deriveSell prices the sell leg: the base bought on the buy venue is sold
// at the counter venue's base-to-quote rate from the same cycle.
func deriveSell(buy, counter types.Quote) types.Quote {
	sell := counter
	sell.AmountIn = buy.AmountIn
	sell.BaseOut = buy.BaseOut
	sell.AmountOut = buy.BaseOut * (counter.AmountOut / counter.BaseOut)
	return sell
}

// autoExecute reserves and executes the single best opportunity at or
// above the profit floor. At most one execution per cycle per loop.
func (s *Scheduler) autoExecute(ctx context.Context, log *zap.Logger) {
	best, ok := s.store.Best(s.cfg.MinProfit)
	if !ok {
		return
	}

	opp, err := s.store.Reserve(best.Fingerprint)
	if err != nil {
		// Another loop claimed it between Best and Reserve.
		log.Debug("Reservation lost", zap.String("fingerprint", best.Fingerprint), zap.Error(err))
		return
	}

	result := s.exec.Execute(ctx, opp)
	s.stats.Record(result)

	select {
	case s.results <- result:
	default:
		log.Warn("Result channel full, dropping result",
			zap.String("fingerprint", result.Fingerprint))
	}
}

func (s *Scheduler) halt(target Target, err error) {
	s.mu.Lock()
	s.halted[target.key()] = err
	s.mu.Unlock()
}

// HaltedLoops reports targets whose loops stopped on configuration errors.
func (s *Scheduler) HaltedLoops() map[string]error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]error, len(s.halted))
	for k, v := range s.halted {
		out[k] = v
	}
	return out
}

// Results streams execution outcomes to interested consumers. The channel
// closes when Run returns.
func (s *Scheduler) Results() <-chan types.ExecutionResult {
	return s.results
}

// Opportunities returns the store's current view, best first.
func (s *Scheduler) Opportunities() []types.Opportunity {
	return s.store.Snapshot()
}

// Stats returns the running trade aggregate.
func (s *Scheduler) Stats() types.TradingStats {
	return s.stats.Snapshot()
}
