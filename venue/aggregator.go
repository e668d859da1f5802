package venue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkrasnoff/flasharb/types"
	"github.com/dkrasnoff/flasharb/utils/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Aggregator fans a quote request out to every configured venue
// concurrently and collects the quotes that survive. A venue failing or
// timing out never aborts its siblings; when every venue fails the result
// is simply an empty slice, not an error.
type Aggregator struct {
	quoters []Quoter
	timeout time.Duration
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.ScanMetrics
}

// NewAggregator creates an aggregator over the given quoters. perQuote
// bounds each venue call; the limiter throttles the aggregate RPC rate
// across cycles and may be nil.
func NewAggregator(quoters []Quoter, perQuote time.Duration, limiter *rate.Limiter, logger *zap.Logger, m *metrics.ScanMetrics) *Aggregator {
	return &Aggregator{
		quoters: quoters,
		timeout: perQuote,
		limiter: limiter,
		logger:  logger,
		metrics: m,
	}
}

// Venues returns the number of configured quoters.
func (a *Aggregator) Venues() int {
	return len(a.quoters)
}

// Collect issues all venue quotes concurrently and returns the successful
// ones. The slice order is unspecified.
func (a *Aggregator) Collect(ctx context.Context, pair types.Pair, amountIn float64) []types.Quote {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil
		}
	}

	var (
		mu     sync.Mutex
		quotes []types.Quote
		wg     sync.WaitGroup
	)

	for _, q := range a.quoters {
		wg.Add(1)
		go func(q Quoter) {
			defer wg.Done()

			qctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			quote, err := q.Quote(qctx, pair, amountIn)
			if err != nil {
				a.observeFailure(q, pair, err)
				return
			}

			mu.Lock()
			quotes = append(quotes, quote)
			mu.Unlock()
		}(q)
	}
	wg.Wait()

	if a.metrics != nil {
		a.metrics.QuotesCollected.Add(float64(len(quotes)))
	}
	return quotes
}

func (a *Aggregator) observeFailure(q Quoter, pair types.Pair, err error) {
	if a.metrics != nil {
		a.metrics.QuoteFailures.Inc()
	}

	// ErrNoRoute is a property of the pair, not venue health; keep it quiet.
	if errors.Is(err, ErrNoRoute) {
		a.logger.Debug("Venue has no route",
			zap.String("venue", q.Name()),
			zap.String("pair", pair.String()))
		return
	}

	a.logger.Warn("Venue quote failed",
		zap.String("venue", q.Name()),
		zap.String("pair", pair.String()),
		zap.Error(err))
}
