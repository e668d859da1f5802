package scanner

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkrasnoff/flasharb/chain"
	"github.com/dkrasnoff/flasharb/flashloan"
	"github.com/dkrasnoff/flasharb/oracle"
	"github.com/dkrasnoff/flasharb/stats"
	"github.com/dkrasnoff/flasharb/store"
	"github.com/dkrasnoff/flasharb/types"
	"github.com/dkrasnoff/flasharb/utils/metrics"
	"github.com/dkrasnoff/flasharb/venue"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var scanTestMetrics = metrics.NewScanMetrics("scanner_test")

var testPair = types.Pair{Base: "WETH", Quote: "USDC"}

type stubQuoter struct {
	name  string
	quote types.Quote
	delay time.Duration
}

func (s *stubQuoter) Name() string { return s.name }

func (s *stubQuoter) Quote(ctx context.Context, pair types.Pair, amountIn float64) (types.Quote, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return types.Quote{}, venue.ErrVenueUnavailable
		case <-time.After(s.delay):
		}
	}
	q := s.quote
	q.Pair = pair
	q.AmountIn = amountIn
	return q, nil
}

type stubExecutor struct {
	store *store.Store
	count int32
}

func (e *stubExecutor) Execute(ctx context.Context, opp *types.Opportunity) types.ExecutionResult {
	atomic.AddInt32(&e.count, 1)
	e.store.Settle(opp.Fingerprint, true)
	return types.ExecutionResult{
		Fingerprint:    opp.Fingerprint,
		Chain:          opp.Chain,
		Pair:           opp.Pair,
		Success:        true,
		RealizedProfit: opp.NetProfit,
		Timestamp:      time.Now(),
	}
}

// spreadQuoters builds two venues where buying on "cheap" and selling on
// "rich" clears a wide spread.
func spreadQuoters(delay time.Duration) []venue.Quoter {
	cheap := &stubQuoter{
		name:  "cheap",
		delay: delay,
		quote: types.Quote{Venue: "cheap", BaseOut: 0.26, AmountOut: 995,
			Router: common.HexToAddress("0x01")},
	}
	rich := &stubQuoter{
		name:  "rich",
		delay: delay,
		quote: types.Quote{Venue: "rich", BaseOut: 0.25, AmountOut: 1010,
			Router: common.HexToAddress("0x02")},
	}
	return []venue.Quoter{cheap, rich}
}

func newResources(t *testing.T, quoters []venue.Quoter) *ChainResources {
	t.Helper()
	log := zaptest.NewLogger(t)

	registry := flashloan.NewRegistry(log, nil)
	require.NoError(t, registry.Register(flashloan.NewBalancer(
		common.HexToAddress("0xBA12222222228d8Ba445958a75a0704d566BF2C8"), []string{"USDC"})))

	return &ChainResources{
		Aggregator: venue.NewAggregator(quoters, 200*time.Millisecond, nil, log, scanTestMetrics),
		Registry:   registry,
		Gas:        chain.NewGasTracker(nil, time.Second, log),
	}
}

func runScheduler(t *testing.T, s *Scheduler, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, s.Run(ctx))
}

func TestCycleDiscoversOpportunity(t *testing.T) {
	opps := store.New(time.Minute, zaptest.NewLogger(t), nil)
	sched := New(
		Config{Interval: 20 * time.Millisecond, StaleHorizon: time.Minute, MinProfit: 10},
		map[string]*ChainResources{"ethereum": newResources(t, spreadQuoters(0))},
		[]Target{{Chain: "ethereum", Pair: testPair, AmountIn: 1000}},
		opps, oracle.Fixed{"ethereum": 3800}, nil, stats.New(zaptest.NewLogger(t)),
		zaptest.NewLogger(t), scanTestMetrics)

	runScheduler(t, sched, 150*time.Millisecond)

	snap := sched.Opportunities()
	require.NotEmpty(t, snap, "spread between venues must surface an opportunity")

	best := snap[0]
	assert.Equal(t, "cheap", best.BuyQuote.Venue)
	assert.Equal(t, "rich", best.SellQuote.Venue)
	// Selling 0.26 base at rich's 1010/0.25 rate returns 1050.4 on 1000 in.
	assert.InDelta(t, 50.4, best.NetProfit, 1e-6)
	assert.Equal(t, types.Fingerprint("ethereum", testPair, "cheap", "rich"), best.Fingerprint)
}

func TestAutoExecuteRunsBestOnly(t *testing.T) {
	opps := store.New(time.Minute, zaptest.NewLogger(t), nil)
	exec := &stubExecutor{store: opps}
	tradeStats := stats.New(zaptest.NewLogger(t))

	sched := New(
		Config{Interval: 20 * time.Millisecond, StaleHorizon: time.Minute, MinProfit: 10, AutoExecute: true},
		map[string]*ChainResources{"ethereum": newResources(t, spreadQuoters(0))},
		[]Target{{Chain: "ethereum", Pair: testPair, AmountIn: 1000}},
		opps, oracle.Fixed{"ethereum": 3800}, exec, tradeStats,
		zaptest.NewLogger(t), scanTestMetrics)

	done := make(chan struct{})
	var results []types.ExecutionResult
	go func() {
		defer close(done)
		for res := range sched.Results() {
			results = append(results, res)
		}
	}()

	runScheduler(t, sched, 150*time.Millisecond)
	<-done

	require.NotEmpty(t, results)
	assert.True(t, results[0].Success)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&exec.count), int32(1))

	snap := tradeStats.Snapshot()
	assert.Equal(t, uint64(len(results)), snap.TotalTrades)
}

// Two loops over the same pair share one store, so their Best->Reserve
// windows overlap on the same fingerprint. Only the reservation winner may
// execute and record a trade; the loser discards its attempt.
func TestAutoExecuteSingleWinnerAcrossLoops(t *testing.T) {
	opps := store.New(time.Minute, zaptest.NewLogger(t), nil)
	exec := &stubExecutor{store: opps}
	tradeStats := stats.New(zaptest.NewLogger(t))

	sched := New(
		Config{Interval: 20 * time.Millisecond, StaleHorizon: time.Minute, MinProfit: 10, AutoExecute: true},
		map[string]*ChainResources{"ethereum": newResources(t, spreadQuoters(0))},
		[]Target{
			{Chain: "ethereum", Pair: testPair, AmountIn: 1000},
			{Chain: "ethereum", Pair: testPair, AmountIn: 1000},
		},
		opps, oracle.Fixed{"ethereum": 3800}, exec, tradeStats,
		zaptest.NewLogger(t), scanTestMetrics)

	done := make(chan struct{})
	var results []types.ExecutionResult
	go func() {
		defer close(done)
		for res := range sched.Results() {
			results = append(results, res)
		}
	}()

	runScheduler(t, sched, 150*time.Millisecond)
	<-done

	assert.Equal(t, int32(1), atomic.LoadInt32(&exec.count),
		"exactly one loop may win the reservation and execute")
	assert.Len(t, results, 1)
	assert.Equal(t, uint64(1), tradeStats.Snapshot().TotalTrades,
		"the losing loop must not record a stats entry")
}

// Hammers autoExecute directly so some callers pass Best and then lose the
// Reserve swap to the winner.
func TestAutoExecuteReservationLoserDiscards(t *testing.T) {
	opps := store.New(time.Minute, zaptest.NewLogger(t), nil)
	exec := &stubExecutor{store: opps}
	tradeStats := stats.New(zaptest.NewLogger(t))
	log := zaptest.NewLogger(t)

	sched := New(
		Config{MinProfit: 10, AutoExecute: true},
		nil, nil, opps, oracle.Fixed{"ethereum": 3800}, exec, tradeStats,
		log, scanTestMetrics)

	buy := types.Quote{Venue: "cheap", Pair: testPair, AmountIn: 1000, BaseOut: 0.26, AmountOut: 995}
	sell := types.Quote{Venue: "rich", Pair: testPair, AmountIn: 1000, BaseOut: 0.26, AmountOut: 1050.4}
	require.True(t, opps.Upsert(types.NewOpportunity("ethereum", buy, sell, 1.5, 50.4, time.Now())))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.autoExecute(context.Background(), log)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&exec.count))
	assert.Equal(t, uint64(1), tradeStats.Snapshot().TotalTrades,
		"losers observe the lost reservation and record nothing")
}

func TestTickSkippedWhileCycleRuns(t *testing.T) {
	before := metrics.CounterValue(scanTestMetrics.SkippedTicks)

	opps := store.New(time.Minute, zaptest.NewLogger(t), nil)
	sched := New(
		Config{Interval: 20 * time.Millisecond, StaleHorizon: time.Minute, MinProfit: 10},
		map[string]*ChainResources{"ethereum": newResources(t, spreadQuoters(120*time.Millisecond))},
		[]Target{{Chain: "ethereum", Pair: testPair, AmountIn: 1000}},
		opps, oracle.Fixed{"ethereum": 3800}, nil, stats.New(zaptest.NewLogger(t)),
		zaptest.NewLogger(t), scanTestMetrics)

	runScheduler(t, sched, 300*time.Millisecond)

	after := metrics.CounterValue(scanTestMetrics.SkippedTicks)
	assert.Greater(t, after, before, "ticks during a running cycle must be skipped, not queued")
}

func TestLoopHaltsOnUnknownChain(t *testing.T) {
	opps := store.New(time.Minute, zaptest.NewLogger(t), nil)
	sched := New(
		Config{Interval: 20 * time.Millisecond, StaleHorizon: time.Minute},
		map[string]*ChainResources{},
		[]Target{{Chain: "polygon", Pair: testPair, AmountIn: 1000}},
		opps, oracle.Fixed{}, nil, stats.New(zaptest.NewLogger(t)),
		zaptest.NewLogger(t), scanTestMetrics)

	runScheduler(t, sched, 80*time.Millisecond)

	halted := sched.HaltedLoops()
	require.Len(t, halted, 1)
	assert.Error(t, halted["polygon:WETH/USDC"])
}

func TestLoopHaltsWithSingleVenue(t *testing.T) {
	opps := store.New(time.Minute, zaptest.NewLogger(t), nil)
	single := newResources(t, spreadQuoters(0)[:1])
	sched := New(
		Config{Interval: 20 * time.Millisecond, StaleHorizon: time.Minute},
		map[string]*ChainResources{"ethereum": single},
		[]Target{{Chain: "ethereum", Pair: testPair, AmountIn: 1000}},
		opps, oracle.Fixed{"ethereum": 3800}, nil, stats.New(zaptest.NewLogger(t)),
		zaptest.NewLogger(t), scanTestMetrics)

	runScheduler(t, sched, 80*time.Millisecond)

	halted := sched.HaltedLoops()
	require.Len(t, halted, 1)
}

func TestDeriveSellPricesBoughtBase(t *testing.T) {
	buy := types.Quote{Venue: "cheap", AmountIn: 1000, BaseOut: 0.26, AmountOut: 995}
	counter := types.Quote{Venue: "rich", AmountIn: 1000, BaseOut: 0.25, AmountOut: 1010}

	sell := deriveSell(buy, counter)
	assert.Equal(t, "rich", sell.Venue)
	assert.Equal(t, buy.AmountIn, sell.AmountIn)
	assert.InDelta(t, 0.26*(1010/0.25), sell.AmountOut, 1e-9)
}
