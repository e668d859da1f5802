package chain

import (
	"context"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"
)

// weiPerNative converts wei into whole native-currency units.
var weiPerNative = new(big.Float).SetFloat64(1e18)

// GasTracker caches the suggested gas price and converts gas units into
// native-currency cost for profit evaluation.
type GasTracker struct {
	rpc      RPC
	logger   *zap.Logger
	interval time.Duration

	mu       sync.RWMutex
	gasPrice *big.Int
}

// NewGasTracker creates a tracker that refreshes at the given interval
// once Run is started. Before the first refresh the zero price makes every
// estimate free, so callers should start Run before scanning.
func NewGasTracker(rpc RPC, interval time.Duration, logger *zap.Logger) *GasTracker {
	return &GasTracker{
		rpc:      rpc,
		logger:   logger,
		interval: interval,
		gasPrice: big.NewInt(0),
	}
}

// Run refreshes the cached gas price until the context is cancelled.
func (g *GasTracker) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.update(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.update(ctx)
		}
	}
}

func (g *GasTracker) update(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, g.interval)
	defer cancel()

	price, err := g.rpc.GasPrice(cctx)
	if err != nil {
		g.logger.Warn("Failed to refresh gas price", zap.Error(err))
		return
	}

	g.mu.Lock()
	g.gasPrice = price
	g.mu.Unlock()
}

// GasPrice returns the cached suggested gas price in wei.
func (g *GasTracker) GasPrice() *big.Int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return new(big.Int).Set(g.gasPrice)
}

// CostNative converts a gas-unit estimate into native currency at the
// cached price.
func (g *GasTracker) CostNative(gasLimit uint64) float64 {
	g.mu.RLock()
	price := new(big.Int).Set(g.gasPrice)
	g.mu.RUnlock()

	wei := new(big.Int).Mul(price, new(big.Int).SetUint64(gasLimit))
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerNative).Float64()
	return out
}

// ArbitrageGas estimates gas for a flash-loan arbitrage with the given
// number of swap hops: base transaction cost, loan overhead, and a
// per-hop cost covering storage reads, transfers and swap execution.
func ArbitrageGas(numHops int) uint64 {
	const (
		baseCost     = uint64(21000)
		loanOverhead = uint64(90000)
		costPerHop   = uint64(152000)
	)
	return baseCost + loanOverhead + costPerHop*uint64(numHops)
}
