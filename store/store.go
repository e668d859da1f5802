package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dkrasnoff/flasharb/types"
	"github.com/dkrasnoff/flasharb/utils/metrics"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

var (
	// ErrNotFound means no live opportunity exists for the fingerprint.
	ErrNotFound = errors.New("opportunity not found")

	// ErrAlreadyReserved means another caller won the reservation race.
	ErrAlreadyReserved = errors.New("opportunity already reserved")
)

// settledCacheSize bounds the cooldown cache of recently settled
// fingerprints.
const settledCacheSize = 512

// Store holds the current best-known opportunities keyed by fingerprint.
// It is the engine's single serialization point: Reserve is the atomic
// gate that guarantees at most one in-flight execution per fingerprint.
type Store struct {
	mu       sync.RWMutex
	opps     map[string]*types.Opportunity
	settled  *lru.Cache
	cooldown time.Duration
	logger   *zap.Logger
	metrics  *metrics.ScanMetrics
}

// New creates a store. cooldown suppresses re-admission of a fingerprint
// right after it settled successfully, so one landed trade does not
// immediately re-trigger on stale quotes.
func New(cooldown time.Duration, logger *zap.Logger, m *metrics.ScanMetrics) *Store {
	cache, err := lru.New(settledCacheSize)
	if err != nil {
		panic(err) // only fails on non-positive size
	}
	return &Store{
		opps:     make(map[string]*types.Opportunity),
		settled:  cache,
		cooldown: cooldown,
		logger:   logger,
		metrics:  m,
	}
}

// Upsert inserts a fresh opportunity or refreshes an existing entry with
// the same fingerprint. An entry in any execution-related state is left
// untouched and the fresher data is discarded; mutating an opportunity
// mid-execution is never allowed. Returns true when the store accepted
// the data.
func (s *Store) Upsert(opp *types.Opportunity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if until, ok := s.settled.Get(opp.Fingerprint); ok {
		if time.Now().Before(until.(time.Time)) {
			return false
		}
		s.settled.Remove(opp.Fingerprint)
	}

	existing, ok := s.opps[opp.Fingerprint]
	if !ok {
		s.opps[opp.Fingerprint] = opp
		s.updateGauge()
		return true
	}

	if existing.State() != types.StateDiscovered {
		return false
	}

	// Refresh in place: identity fields are equal by construction.
	existing.BuyQuote = opp.BuyQuote
	existing.SellQuote = opp.SellQuote
	existing.GrossSpreadPct = opp.GrossSpreadPct
	existing.NetProfit = opp.NetProfit
	if opp.LastSeen.After(existing.LastSeen) {
		existing.LastSeen = opp.LastSeen
	}
	return true
}

// Reserve claims exclusive execution rights for a fingerprint. The
// Discovered->Reserved transition is a compare-and-swap, so under
// concurrent invocation exactly one caller succeeds and the rest get
// ErrAlreadyReserved.
func (s *Store) Reserve(fingerprint string) (*types.Opportunity, error) {
	// The swap happens under the write lock so Upsert can never refresh
	// quotes on an entry that is being claimed.
	s.mu.Lock()
	defer s.mu.Unlock()

	opp, ok := s.opps[fingerprint]
	if !ok {
		return nil, ErrNotFound
	}
	if !opp.CompareAndSwapState(types.StateDiscovered, types.StateReserved) {
		return nil, ErrAlreadyReserved
	}
	return opp, nil
}

// Release frees a fingerprint after a failed execution attempt so the
// discrepancy can be re-reserved if it reappears.
func (s *Store) Release(fingerprint string) {
	s.mu.RLock()
	opp, ok := s.opps[fingerprint]
	s.mu.RUnlock()
	if !ok {
		return
	}
	opp.SetState(types.StateDiscovered)
}

// Settle marks an opportunity terminal and removes it. A successful trade
// enters the cooldown cache so the same fingerprint is not instantly
// re-admitted from quotes that predate the settling transaction.
func (s *Store) Settle(fingerprint string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	opp, ok := s.opps[fingerprint]
	if !ok {
		return
	}
	if success {
		opp.SetState(types.StateSettled)
		s.settled.Add(fingerprint, time.Now().Add(s.cooldown))
	} else {
		opp.SetState(types.StateExpired)
	}
	delete(s.opps, fingerprint)
	s.updateGauge()
}

// EvictStale removes Discovered entries whose LastSeen predates
// now - maxAge. Entries in execution states are never evicted; the
// orchestrator settles them. Returns the number evicted.
func (s *Store) EvictStale(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	evicted := 0
	for fp, opp := range s.opps {
		if opp.State() != types.StateDiscovered {
			continue
		}
		if opp.LastSeen.Before(cutoff) {
			opp.SetState(types.StateExpired)
			delete(s.opps, fp)
			evicted++
		}
	}
	if evicted > 0 {
		s.updateGauge()
	}
	return evicted
}

// Best returns the most profitable Discovered opportunity at or above
// minProfit, or false when none qualifies.
func (s *Store) Best(minProfit float64) (*types.Opportunity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *types.Opportunity
	for _, opp := range s.opps {
		if opp.State() != types.StateDiscovered || opp.NetProfit < minProfit {
			continue
		}
		if best == nil || opp.NetProfit > best.NetProfit {
			best = opp
		}
	}
	return best, best != nil
}

// Snapshot returns copies of the live opportunities ordered by net profit
// descending. The copies are safe for the presentation layer to hold.
func (s *Store) Snapshot() []types.Opportunity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.Opportunity, 0, len(s.opps))
	for _, opp := range s.opps {
		c := types.Opportunity{
			Fingerprint:    opp.Fingerprint,
			Chain:          opp.Chain,
			Pair:           opp.Pair,
			BuyQuote:       opp.BuyQuote,
			SellQuote:      opp.SellQuote,
			GrossSpreadPct: opp.GrossSpreadPct,
			NetProfit:      opp.NetProfit,
			LastSeen:       opp.LastSeen,
		}
		c.SetState(opp.State())
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NetProfit > out[j].NetProfit })
	return out
}

// Len returns the number of live opportunities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.opps)
}

func (s *Store) updateGauge() {
	if s.metrics != nil {
		s.metrics.StoredOpportunities.Set(float64(len(s.opps)))
	}
}
