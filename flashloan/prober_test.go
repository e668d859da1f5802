package flashloan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

// scriptedCheck returns a fixed sequence of results, then stays healthy.
type scriptedCheck struct {
	mu   sync.Mutex
	errs []error
	idx  int
}

func (c *scriptedCheck) Check(ctx context.Context, p Provider) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idx >= len(c.errs) {
		return nil
	}
	err := c.errs[c.idx]
	c.idx++
	return err
}

func TestProberFlipsOnlineStatus(t *testing.T) {
	probeErr := errors.New("pool unreachable")

	cases := []struct {
		name   string
		errs   []error
		online []bool
	}{
		{"stays online while healthy", []error{nil, nil}, []bool{true, true}},
		{"goes offline on failure", []error{nil, probeErr}, []bool{true, false}},
		{"stays offline while failing", []error{probeErr, probeErr}, []bool{false, false}},
		{"recovers after failure", []error{probeErr, nil}, []bool{false, true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			provider := NewBalancer(balancerVault, []string{"USDC"})
			prober := NewProber([]*StaticProvider{provider}, &scriptedCheck{errs: tc.errs},
				time.Second, zaptest.NewLogger(t), nil)

			for i := range tc.errs {
				prober.probeAll(context.Background())
				assert.Equal(t, tc.online[i], provider.Online(), "status after probe %d", i+1)
			}
		})
	}
}

func TestProberOfflineProviderLeavesSelection(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t), nil)
	balancer := NewBalancer(balancerVault, []string{"USDC"})
	if err := r.Register(balancer); err != nil {
		t.Fatal(err)
	}

	probeErr := errors.New("pool unreachable")
	prober := NewProber([]*StaticProvider{balancer}, &scriptedCheck{errs: []error{probeErr}},
		time.Second, zaptest.NewLogger(t), nil)

	prober.probeAll(context.Background())
	_, err := r.SelectProvider("USDC", 100)
	assert.ErrorIs(t, err, ErrNoEligibleProvider, "an offline provider must drop out of selection")

	prober.probeAll(context.Background())
	p, err := r.SelectProvider("USDC", 100)
	assert.NoError(t, err)
	assert.Equal(t, "balancer", p.ID(), "recovery must restore eligibility")
}

func TestProberRunStopsOnCancel(t *testing.T) {
	provider := NewBalancer(balancerVault, []string{"USDC"})
	prober := NewProber([]*StaticProvider{provider}, &scriptedCheck{},
		10*time.Millisecond, zaptest.NewLogger(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		prober.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("prober did not stop after cancel")
	}
	assert.True(t, provider.Online())
}
