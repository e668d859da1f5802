package flashloan

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dkrasnoff/flasharb/utils/metrics"
	"go.uber.org/zap"
)

// Registry holds the known flash-loan providers for one chain and selects
// the cheapest eligible one per request. Reads are concurrent; status
// updates come from the health prober.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	logger    *zap.Logger
	metrics   *metrics.ProviderMetrics
}

// NewRegistry creates an empty provider registry.
func NewRegistry(logger *zap.Logger, m *metrics.ProviderMetrics) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		logger:    logger,
		metrics:   m,
	}
}

// Register adds a provider. Registering the same ID twice is an error.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[p.ID()]; ok {
		return fmt.Errorf("provider %s already registered", p.ID())
	}
	r.providers[p.ID()] = p
	return nil
}

// SelectProvider returns the online provider with the minimum fee rate
// among those supporting the asset; ties are broken by ID ordering so the
// choice is deterministic. Fails with ErrNoEligibleProvider when the
// filtered set is empty.
func (r *Registry) SelectProvider(asset string, amount float64) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if amount <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount", ErrNoEligibleProvider)
	}

	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var best Provider
	for _, id := range ids {
		p := r.providers[id]
		if !p.Online() || !p.Supports(asset) {
			continue
		}
		if best == nil || p.FeeRate() < best.FeeRate() {
			best = p
		}
	}

	if best == nil {
		if r.metrics != nil {
			r.metrics.NoEligible.Inc()
		}
		return nil, ErrNoEligibleProvider
	}

	if r.metrics != nil {
		r.metrics.Selections.WithLabelValues(best.ID()).Inc()
	}
	return best, nil
}

// CheapestFee returns the minimum fee rate an online provider charges for
// the asset. Used by discovery to price the loan leg before execution.
func (r *Registry) CheapestFee(asset string) (float64, error) {
	p, err := r.SelectProvider(asset, 1)
	if err != nil {
		return 0, err
	}
	return p.FeeRate(), nil
}

// Providers returns a snapshot of the registered providers.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
