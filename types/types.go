package types

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
)

// Pair identifies a traded token pair. Engine amounts are expressed in the
// quote currency (e.g. for WETH/USDC amounts are USDC).
type Pair struct {
	Base  string `yaml:"base" json:"base"`
	Quote string `yaml:"quote" json:"quote"`
}

func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// Quote is one venue's executable price for a (pair, amountIn) probe.
// AmountIn is the quote currency spent on the buy leg, BaseOut the base
// tokens it buys, and AmountOut the quote currency received selling BaseOut
// back against the same reserves. Amounts are normalized into
// quote-currency and base units. A Quote is immutable once produced and
// only valid for the discovery cycle that produced it.
type Quote struct {
	Venue       string
	Pair        Pair
	AmountIn    float64
	BaseOut     float64
	AmountOut   float64
	GasEstimate uint64
	PriceImpact float64
	Router      common.Address
}

// OpportunityState tracks an opportunity through its lifecycle.
type OpportunityState int32

const (
	StateDiscovered OpportunityState = iota
	StateReserved
	StateExecuting
	StateSettled
	StateExpired
)

func (s OpportunityState) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateReserved:
		return "reserved"
	case StateExecuting:
		return "executing"
	case StateSettled:
		return "settled"
	case StateExpired:
		return "expired"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Opportunity is a priced discrepancy between two venues. Identity is the
// fingerprint, which is stable across re-discovery of the same discrepancy.
type Opportunity struct {
	Fingerprint    string
	Chain          string
	Pair           Pair
	BuyQuote       Quote
	SellQuote      Quote
	GrossSpreadPct float64
	NetProfit      float64
	LastSeen       time.Time

	state int32
}

// NewOpportunity creates an opportunity in the Discovered state.
func NewOpportunity(chain string, buy, sell Quote, grossSpreadPct, netProfit float64, seen time.Time) *Opportunity {
	return &Opportunity{
		Fingerprint:    Fingerprint(chain, buy.Pair, buy.Venue, sell.Venue),
		Chain:          chain,
		Pair:           buy.Pair,
		BuyQuote:       buy,
		SellQuote:      sell,
		GrossSpreadPct: grossSpreadPct,
		NetProfit:      netProfit,
		LastSeen:       seen,
	}
}

// State returns the current lifecycle state.
func (o *Opportunity) State() OpportunityState {
	return OpportunityState(atomic.LoadInt32(&o.state))
}

// CompareAndSwapState transitions the state atomically. This is the
// reservation gate: exactly one caller wins a Discovered->Reserved swap.
func (o *Opportunity) CompareAndSwapState(from, to OpportunityState) bool {
	return atomic.CompareAndSwapInt32(&o.state, int32(from), int32(to))
}

// SetState unconditionally overwrites the state. Callers outside the store
// should prefer CompareAndSwapState.
func (o *Opportunity) SetState(s OpportunityState) {
	atomic.StoreInt32(&o.state, int32(s))
}

// Fingerprint derives the stable identity of a discrepancy. It depends only
// on the chain, pair and the two venues involved, never on time, so
// re-detection collapses to the same key.
func Fingerprint(chain string, pair Pair, buyVenue, sellVenue string) string {
	h := xxhash.New()
	h.WriteString(chain)
	h.WriteString("|")
	h.WriteString(pair.String())
	h.WriteString("|")
	h.WriteString(buyVenue)
	h.WriteString("|")
	h.WriteString(sellVenue)
	return fmt.Sprintf("%016x", h.Sum64())
}

// ExecutionResult is the append-only record of one execution attempt.
// RealizedProfit is signed; losses (gas spent on a revert) are negative.
type ExecutionResult struct {
	Fingerprint    string
	Chain          string
	Pair           Pair
	Success        bool
	RealizedProfit float64
	TxHash         common.Hash
	FailureReason  string
	Timestamp      time.Time
}

// TradingStats is a point-in-time snapshot of the running aggregate.
type TradingStats struct {
	TotalTrades      uint64
	SuccessfulTrades uint64
	TotalProfit      float64
	MaxDrawdown      float64
	SuccessRate      float64
}
