package oracle

import "context"

// RateSource supplies the native-currency to quote-currency conversion
// rate used when pricing gas. The engine never computes this internally;
// it is always sourced from outside.
type RateSource interface {
	// Rate returns how many quote-currency units one native unit is
	// worth on the given chain.
	Rate(ctx context.Context, chain string) (float64, error)
}

// Fixed is a RateSource returning a constant rate per chain. Used in tests
// and for stablecoin-quoted pairs where operators pin the rate.
type Fixed map[string]float64

func (f Fixed) Rate(_ context.Context, chain string) (float64, error) {
	if r, ok := f[chain]; ok {
		return r, nil
	}
	return 0, ErrUnknownChain
}
