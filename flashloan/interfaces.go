package flashloan

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNoEligibleProvider means no online provider supports the requested
// asset and amount. This is a business rejection, not a fault: the caller
// skips the opportunity.
var ErrNoEligibleProvider = errors.New("no eligible flash loan provider")

// Provider describes one flash-loan source. Fee and asset support are
// read-mostly reference data; online status is flipped only by health
// probes, never by trading logic.
type Provider interface {
	// ID returns the stable provider identifier. Selection ties are
	// broken by ID ordering.
	ID() string

	// FeeRate returns the loan premium as a fraction (0.0009 = 9 bps).
	FeeRate() float64

	// Supports reports whether the provider lends the given asset.
	Supports(asset string) bool

	// Online reports the last known health status.
	Online() bool

	// Pool returns the lending pool contract the borrow call targets.
	Pool() common.Address
}
