package flashloan

import (
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultAaveFeeRate is the Aave V3 flashloan premium (9 bps).
const DefaultAaveFeeRate = 0.0009

// StaticProvider is a Provider backed by configured reference data. The
// online flag is the only mutable field and is owned by the health prober.
type StaticProvider struct {
	id      string
	feeRate float64
	pool    common.Address
	assets  map[string]struct{}
	online  int32
}

// NewStaticProvider creates a provider from configuration. It starts online.
func NewStaticProvider(id string, feeRate float64, pool common.Address, assets []string) *StaticProvider {
	set := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		set[a] = struct{}{}
	}
	return &StaticProvider{
		id:      id,
		feeRate: feeRate,
		pool:    pool,
		assets:  set,
		online:  1,
	}
}

// NewAave creates an Aave-style provider with the standard 9 bps premium.
func NewAave(pool common.Address, assets []string) *StaticProvider {
	return NewStaticProvider("aave", DefaultAaveFeeRate, pool, assets)
}

// NewBalancer creates a Balancer-style provider. Balancer vault flash loans
// are currently free.
func NewBalancer(vault common.Address, assets []string) *StaticProvider {
	return NewStaticProvider("balancer", 0, vault, assets)
}

func (p *StaticProvider) ID() string           { return p.id }
func (p *StaticProvider) FeeRate() float64     { return p.feeRate }
func (p *StaticProvider) Pool() common.Address { return p.pool }

func (p *StaticProvider) Supports(asset string) bool {
	_, ok := p.assets[asset]
	return ok
}

func (p *StaticProvider) Online() bool {
	return atomic.LoadInt32(&p.online) == 1
}

// SetOnline updates the health status. Called by the prober only.
func (p *StaticProvider) SetOnline(online bool) {
	var v int32
	if online {
		v = 1
	}
	atomic.StoreInt32(&p.online, v)
}
