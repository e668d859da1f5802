package sushiswap

import (
	"github.com/dkrasnoff/flasharb/venue/uniswap"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Mainnet deployment. SushiSwap is a V2 fork; only the factory, router and
// pair init code hash differ.
var (
	MainnetRouter   = common.HexToAddress("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F")
	MainnetFactory  = common.HexToAddress("0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac")
	MainnetInitCode = common.FromHex("0xe18a34eb0e04b04f7a0ac29a6e80748dca96319b42c54d679cb821dca90c6303")
)

// NewMainnet creates the SushiSwap quoter backed by an RPC client.
func NewMainnet(client *ethclient.Client, tokens map[string]uniswap.Token) *uniswap.V2Quoter {
	return uniswap.NewV2Quoter(
		"SushiSwapV2",
		MainnetFactory,
		MainnetRouter,
		MainnetInitCode,
		tokens,
		uniswap.NewEthReserveReader(client),
	)
}

// New creates a quoter for a SushiSwap deployment on another chain.
func New(factory, router common.Address, client *ethclient.Client, tokens map[string]uniswap.Token) *uniswap.V2Quoter {
	return uniswap.NewV2Quoter(
		"SushiSwapV2",
		factory,
		router,
		MainnetInitCode,
		tokens,
		uniswap.NewEthReserveReader(client),
	)
}
