package profit

import (
	"errors"

	"github.com/dkrasnoff/flasharb/types"
)

// ErrInvalidQuote is returned when a quote carries non-positive amounts.
var ErrInvalidQuote = errors.New("invalid quote amounts")

// Result holds the outcome of evaluating a buy/sell quote pair.
type Result struct {
	GrossSpreadPct float64
	NetProfit      float64
}

// Evaluate computes the net profit of buying on one venue and selling on
// another with flash-loaned capital. All amounts are quote-currency units;
// gasEstimateNative is the gas cost in the chain's native currency and is
// converted with nativeToQuoteRate.
//
// It is a pure function: identical inputs always yield identical outputs.
func Evaluate(buy, sell types.Quote, loanFeeRate, gasEstimateNative, nativeToQuoteRate float64) (Result, error) {
	if buy.AmountIn <= 0 || buy.AmountOut <= 0 || sell.AmountIn <= 0 || sell.AmountOut <= 0 {
		return Result{}, ErrInvalidQuote
	}
	if loanFeeRate < 0 || gasEstimateNative < 0 || nativeToQuoteRate < 0 {
		return Result{}, ErrInvalidQuote
	}

	grossProfit := sell.AmountOut - buy.AmountIn
	grossSpreadPct := grossProfit / buy.AmountIn * 100

	// The borrowed amount is what the buy leg consumes.
	loanFee := buy.AmountIn * loanFeeRate
	gasCost := gasEstimateNative * nativeToQuoteRate

	return Result{
		GrossSpreadPct: grossSpreadPct,
		NetProfit:      grossProfit - loanFee - gasCost,
	}, nil
}
