package uniswap

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/dkrasnoff/flasharb/types"
	"github.com/dkrasnoff/flasharb/venue"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Mainnet deployment
var (
	MainnetRouter   = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	MainnetFactory  = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	MainnetInitCode = common.FromHex("0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f")
)

const pairABIJson = `[{"constant":true,"inputs":[],"name":"getReserves","outputs":[{"internalType":"uint112","name":"_reserve0","type":"uint112"},{"internalType":"uint112","name":"_reserve1","type":"uint112"},{"internalType":"uint32","name":"_blockTimestampLast","type":"uint32"}],"payable":false,"stateMutability":"view","type":"function"}]`

// swapGas approximates one V2 swap: storage reads, token transfers and
// the swap itself.
const swapGas = 152000

// Token holds the on-chain metadata needed to normalize amounts.
type Token struct {
	Address  common.Address
	Decimals uint8
}

// ReserveReader fetches current pair reserves. Split out so tests can run
// against fixed reserves without a node.
type ReserveReader interface {
	Reserves(ctx context.Context, pair common.Address) (reserve0, reserve1 *big.Int, err error)
}

// V2Quoter prices swaps on a Uniswap-V2-compatible venue from pair
// reserves using the constant product formula. Forks (SushiSwap et al.)
// reuse it with their own factory and init code hash.
type V2Quoter struct {
	name     string
	factory  common.Address
	router   common.Address
	initCode []byte
	tokens   map[string]Token
	reserves ReserveReader
}

// NewV2Quoter creates a quoter for one V2-compatible deployment. tokens
// maps symbol to on-chain metadata for every token the quoter may price.
func NewV2Quoter(name string, factory, router common.Address, initCode []byte, tokens map[string]Token, reserves ReserveReader) *V2Quoter {
	return &V2Quoter{
		name:     name,
		factory:  factory,
		router:   router,
		initCode: initCode,
		tokens:   tokens,
		reserves: reserves,
	}
}

// NewMainnet creates the canonical Uniswap V2 quoter backed by an RPC client.
func NewMainnet(client *ethclient.Client, tokens map[string]Token) *V2Quoter {
	return NewV2Quoter("UniswapV2", MainnetFactory, MainnetRouter, MainnetInitCode, tokens, NewEthReserveReader(client))
}

// Name returns the venue identifier.
func (u *V2Quoter) Name() string {
	return u.name
}

// Quote prices a quote-currency probe through the pair's reserves. Both the
// buy leg (quote in, base out) and the reverse rate are derived from the
// same reserve snapshot.
func (u *V2Quoter) Quote(ctx context.Context, pair types.Pair, amountIn float64) (types.Quote, error) {
	base, ok := u.tokens[pair.Base]
	if !ok {
		return types.Quote{}, fmt.Errorf("%w: unknown token %s", venue.ErrNoRoute, pair.Base)
	}
	quote, ok := u.tokens[pair.Quote]
	if !ok {
		return types.Quote{}, fmt.Errorf("%w: unknown token %s", venue.ErrNoRoute, pair.Quote)
	}
	if amountIn <= 0 {
		return types.Quote{}, fmt.Errorf("%w: non-positive amount", venue.ErrNoRoute)
	}

	pairAddr := u.pairFor(base.Address, quote.Address)
	r0, r1, err := u.reserves.Reserves(ctx, pairAddr)
	if err != nil {
		return types.Quote{}, fmt.Errorf("%w: %v", venue.ErrVenueUnavailable, err)
	}

	// getReserves orders by token address; orient to (base, quote).
	reserveBase, reserveQuote := r0, r1
	if !tokenLess(base.Address, quote.Address) {
		reserveBase, reserveQuote = r1, r0
	}
	if reserveBase.Sign() == 0 || reserveQuote.Sign() == 0 {
		return types.Quote{}, fmt.Errorf("%w: empty reserves", venue.ErrNoRoute)
	}

	amountInRaw := unitsToRaw(amountIn, quote.Decimals)
	baseOutRaw := getAmountOut(amountInRaw, reserveQuote, reserveBase)
	if baseOutRaw.Sign() == 0 {
		return types.Quote{}, fmt.Errorf("%w: insufficient liquidity", venue.ErrNoRoute)
	}

	// Reverse leg against the same snapshot: selling the bought base back.
	quoteBackRaw := getAmountOut(baseOutRaw, reserveBase, reserveQuote)

	impact := rawRatio(amountInRaw, new(big.Int).Add(reserveQuote, amountInRaw))

	return types.Quote{
		Venue:       u.name,
		Pair:        pair,
		AmountIn:    amountIn,
		BaseOut:     rawToUnits(baseOutRaw, base.Decimals),
		AmountOut:   rawToUnits(quoteBackRaw, quote.Decimals),
		GasEstimate: swapGas,
		PriceImpact: impact,
		Router:      u.router,
	}, nil
}

// pairFor calculates the CREATE2 pair address for two tokens.
func (u *V2Quoter) pairFor(token0, token1 common.Address) common.Address {
	if !tokenLess(token0, token1) {
		token0, token1 = token1, token0
	}

	salt := crypto.Keccak256(token0.Bytes(), token1.Bytes())
	return common.BytesToAddress(crypto.Keccak256([]byte{
		0xff,
	}, u.factory.Bytes(), salt, u.initCode))
}

func tokenLess(a, b common.Address) bool {
	return strings.ToLower(a.Hex()) < strings.ToLower(b.Hex())
}

// getAmountOut applies the constant product formula with the 0.3% fee.
func getAmountOut(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(997))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(
		new(big.Int).Mul(reserveIn, big.NewInt(1000)),
		amountInWithFee,
	)
	return new(big.Int).Div(numerator, denominator)
}

func unitsToRaw(amount float64, decimals uint8) *big.Int {
	f := new(big.Float).Mul(
		big.NewFloat(amount),
		new(big.Float).SetFloat64(math.Pow10(int(decimals))),
	)
	raw, _ := f.Int(nil)
	return raw
}

func rawToUnits(raw *big.Int, decimals uint8) float64 {
	f := new(big.Float).Quo(
		new(big.Float).SetInt(raw),
		new(big.Float).SetFloat64(math.Pow10(int(decimals))),
	)
	out, _ := f.Float64()
	return out
}

func rawRatio(num, den *big.Int) float64 {
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(num),
		new(big.Float).SetInt(den),
	).Float64()
	return f
}

// EthReserveReader reads pair reserves through an RPC client.
type EthReserveReader struct {
	client  *ethclient.Client
	pairABI abi.ABI
}

func NewEthReserveReader(client *ethclient.Client) *EthReserveReader {
	parsed, err := abi.JSON(strings.NewReader(pairABIJson))
	if err != nil {
		panic(err) // static ABI
	}
	return &EthReserveReader{client: client, pairABI: parsed}
}

// Reserves calls getReserves on the pair contract.
func (r *EthReserveReader) Reserves(ctx context.Context, pair common.Address) (*big.Int, *big.Int, error) {
	callData, err := r.pairABI.Pack("getReserves")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to pack getReserves: %w", err)
	}

	out, err := r.client.CallContract(ctx, ethereum.CallMsg{
		To:   &pair,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to call getReserves: %w", err)
	}

	vals, err := r.pairABI.Unpack("getReserves", out)
	if err != nil || len(vals) < 2 {
		return nil, nil, fmt.Errorf("failed to unpack reserves: %w", err)
	}

	reserve0, ok0 := vals[0].(*big.Int)
	reserve1, ok1 := vals[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, fmt.Errorf("unexpected reserve types")
	}
	return reserve0, reserve1, nil
}
