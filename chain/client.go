package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/dkrasnoff/flasharb/flashloan"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// RPC is the chain collaborator surface the engine needs. The orchestrator
// treats everything behind it as opaque.
type RPC interface {
	BlockNumber(ctx context.Context) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	Receipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
}

// Client adapts an ethclient connection to the RPC interface.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
}

// Dial connects to an RPC endpoint and verifies the chain ID matches.
func Dial(ctx context.Context, endpoint string, wantChainID uint64) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}

	id, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	if wantChainID != 0 && id.Uint64() != wantChainID {
		eth.Close()
		return nil, fmt.Errorf("endpoint %s serves chain %d, want %d", endpoint, id.Uint64(), wantChainID)
	}

	return &Client{eth: eth, chainID: id}, nil
}

// ChainID returns the connected chain's ID.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Eth exposes the underlying client for components that need the full
// ethclient surface (venue reserve reads, the signer).
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	return c.eth.SuggestGasPrice(ctx)
}

func (c *Client) Receipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	return c.eth.TransactionReceipt(ctx, txHash)
}

func (c *Client) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	return c.eth.PendingNonceAt(ctx, account)
}

func (c *Client) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return c.eth.CodeAt(ctx, account, nil)
}

// Close tears down the underlying connection.
func (c *Client) Close() {
	c.eth.Close()
}

// ProviderHealth checks a flash-loan provider by verifying its pool
// contract exists at the head block.
type ProviderHealth struct {
	rpc RPC
}

func NewProviderHealth(rpc RPC) *ProviderHealth {
	return &ProviderHealth{rpc: rpc}
}

func (h *ProviderHealth) Check(ctx context.Context, p flashloan.Provider) error {
	code, err := h.rpc.CodeAt(ctx, p.Pool())
	if err != nil {
		return fmt.Errorf("failed to read pool code: %w", err)
	}
	if len(code) == 0 {
		return fmt.Errorf("no contract at pool %s", p.Pool().Hex())
	}
	return nil
}
