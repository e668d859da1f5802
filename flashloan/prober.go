package flashloan

import (
	"context"
	"time"

	"github.com/dkrasnoff/flasharb/utils/metrics"
	"go.uber.org/zap"
)

// HealthCheck verifies one provider is reachable and serviceable. The
// chain package supplies an implementation that checks the pool contract
// exists at the head block.
type HealthCheck interface {
	Check(ctx context.Context, p Provider) error
}

// Prober flips provider online status from periodic health checks. It is
// the only writer of that status.
type Prober struct {
	providers []*StaticProvider
	check     HealthCheck
	interval  time.Duration
	timeout   time.Duration
	logger    *zap.Logger
	metrics   *metrics.ProviderMetrics
}

// NewProber creates a prober over the given providers.
func NewProber(providers []*StaticProvider, check HealthCheck, interval time.Duration, logger *zap.Logger, m *metrics.ProviderMetrics) *Prober {
	return &Prober{
		providers: providers,
		check:     check,
		interval:  interval,
		timeout:   interval / 2,
		logger:    logger,
		metrics:   m,
	}
}

// Run probes until the context is cancelled.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.probeAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeAll(ctx)
		}
	}
}

func (p *Prober) probeAll(ctx context.Context) {
	for _, provider := range p.providers {
		cctx, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.check.Check(cctx, provider)
		cancel()

		wasOnline := provider.Online()
		provider.SetOnline(err == nil)

		if p.metrics != nil {
			v := 0.0
			if err == nil {
				v = 1.0
			}
			p.metrics.Online.WithLabelValues(provider.ID()).Set(v)
		}

		if err != nil && wasOnline {
			p.logger.Warn("Flash loan provider went offline",
				zap.String("provider", provider.ID()),
				zap.Error(err))
		} else if err == nil && !wasOnline {
			p.logger.Info("Flash loan provider back online",
				zap.String("provider", provider.ID()))
		}
	}
}
