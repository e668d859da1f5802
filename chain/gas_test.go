package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type fakeRPC struct {
	gasPrice *big.Int
	gasErr   error
}

func (f *fakeRPC) BlockNumber(ctx context.Context) (uint64, error) { return 100, nil }

func (f *fakeRPC) GasPrice(ctx context.Context) (*big.Int, error) {
	if f.gasErr != nil {
		return nil, f.gasErr
	}
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeRPC) Receipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRPC) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}

func (f *fakeRPC) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func TestGasTrackerCostNative(t *testing.T) {
	rpc := &fakeRPC{gasPrice: big.NewInt(20_000_000_000)} // 20 gwei
	g := NewGasTracker(rpc, time.Second, zaptest.NewLogger(t))

	g.update(context.Background())

	assert.Equal(t, int64(20_000_000_000), g.GasPrice().Int64())
	// 415000 gas at 20 gwei is 0.0083 native.
	assert.InDelta(t, 0.0083, g.CostNative(415000), 1e-12)
}

func TestGasTrackerKeepsLastPriceOnError(t *testing.T) {
	rpc := &fakeRPC{gasPrice: big.NewInt(10_000_000_000)}
	g := NewGasTracker(rpc, time.Second, zaptest.NewLogger(t))

	g.update(context.Background())
	rpc.gasErr = errors.New("rpc down")
	g.update(context.Background())

	assert.Equal(t, int64(10_000_000_000), g.GasPrice().Int64(), "a failed refresh must not clear the cache")
}

func TestArbitrageGas(t *testing.T) {
	assert.Equal(t, uint64(21000+90000+2*152000), ArbitrageGas(2))
	assert.Equal(t, uint64(21000+90000+3*152000), ArbitrageGas(3))
}
