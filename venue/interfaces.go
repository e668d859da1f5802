package venue

import (
	"context"
	"errors"

	"github.com/dkrasnoff/flasharb/types"
)

var (
	// ErrVenueUnavailable indicates a network failure or timeout while
	// querying the venue.
	ErrVenueUnavailable = errors.New("venue unavailable")

	// ErrNoRoute indicates the venue cannot price the requested pair.
	ErrNoRoute = errors.New("no route for pair")
)

// Quoter prices a swap on one trading venue. Implementations must respect
// the context deadline and must not retry internally; retry policy belongs
// to the caller.
type Quoter interface {
	// Name returns the venue identifier used in fingerprints.
	Name() string

	// Quote returns an executable quote for swapping amountIn of the
	// pair's quote currency through the venue. Fails with
	// ErrVenueUnavailable or ErrNoRoute.
	Quote(ctx context.Context, pair types.Pair, amountIn float64) (types.Quote, error)
}
