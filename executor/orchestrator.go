package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/dkrasnoff/flasharb/chain"
	"github.com/dkrasnoff/flasharb/flashloan"
	"github.com/dkrasnoff/flasharb/oracle"
	"github.com/dkrasnoff/flasharb/relay"
	"github.com/dkrasnoff/flasharb/store"
	"github.com/dkrasnoff/flasharb/types"
	"github.com/dkrasnoff/flasharb/utils/metrics"
	"github.com/dkrasnoff/flasharb/wallet"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

var (
	// ErrNotReserved means the caller passed an opportunity it does not
	// hold a reservation for.
	ErrNotReserved = errors.New("opportunity is not reserved")
)

const executorABIJson = `[{"inputs":[{"name":"pool","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"params","type":"bytes"}],"name":"executeFlashLoan","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

// Token resolves a symbol to its on-chain representation for calldata.
type Token struct {
	Address  common.Address
	Decimals uint8
}

// Config carries the per-chain wiring the orchestrator needs.
type Config struct {
	Contract       common.Address
	Tokens         map[string]Token
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// Orchestrator drives one execution attempt end to end: provider selection,
// transaction construction, submission, and settlement. It never touches
// the chain before a provider is selected, and it always resolves the
// store reservation exactly once.
type Orchestrator struct {
	cfg      Config
	rpc      chain.RPC
	gas      *chain.GasTracker
	registry *flashloan.Registry
	signer   wallet.Signer
	relay    *relay.Client
	store    *store.Store
	rates    oracle.RateSource
	logger   *zap.Logger
	metrics  *metrics.ExecutionMetrics
	abi      abi.ABI
	inner    abi.Arguments
}

// New creates an orchestrator. relayClient may be nil, in which case
// transactions are broadcast through the signer's RPC connection.
func New(cfg Config, rpc chain.RPC, gas *chain.GasTracker, registry *flashloan.Registry,
	signer wallet.Signer, relayClient *relay.Client, s *store.Store,
	rates oracle.RateSource, logger *zap.Logger, m *metrics.ExecutionMetrics) (*Orchestrator, error) {

	parsed, err := abi.JSON(strings.NewReader(executorABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse executor abi: %w", err)
	}

	addressTy, _ := abi.NewType("address", "", nil)
	uint256Ty, _ := abi.NewType("uint256", "", nil)
	inner := abi.Arguments{
		{Name: "tokenIn", Type: addressTy},
		{Name: "tokenOut", Type: addressTy},
		{Name: "buyRouter", Type: addressTy},
		{Name: "sellRouter", Type: addressTy},
		{Name: "amountIn", Type: uint256Ty},
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 90 * time.Second
	}

	return &Orchestrator{
		cfg:      cfg,
		rpc:      rpc,
		gas:      gas,
		registry: registry,
		signer:   signer,
		relay:    relayClient,
		store:    s,
		rates:    rates,
		logger:   logger,
		metrics:  m,
		abi:      parsed,
		inner:    inner,
	}, nil
}

// Execute runs one attempt for a reserved opportunity and returns the
// outcome. The store reservation is settled on confirm and revert, and
// released on every path that leaves the on-chain outcome unknown or
// never submits.
func (o *Orchestrator) Execute(ctx context.Context, opp *types.Opportunity) types.ExecutionResult {
	start := time.Now()
	o.metrics.Attempts.Inc()

	log := o.logger.With(
		zap.String("fingerprint", opp.Fingerprint),
		zap.String("chain", opp.Chain),
		zap.String("pair", opp.Pair.String()),
	)

	if opp.State() != types.StateReserved {
		return o.fail(opp, ErrNotReserved.Error(), false)
	}

	provider, err := o.registry.SelectProvider(opp.Pair.Quote, opp.BuyQuote.AmountIn)
	if err != nil {
		log.Warn("No eligible flash loan provider", zap.Error(err))
		return o.fail(opp, err.Error(), true)
	}
	log.Info("Selected flash loan provider",
		zap.String("provider", provider.ID()),
		zap.Float64("fee_rate", provider.FeeRate()))

	tx, err := o.buildTx(ctx, opp, provider)
	if err != nil {
		log.Error("Failed to build transaction", zap.Error(err))
		return o.fail(opp, err.Error(), true)
	}

	opp.SetState(types.StateExecuting)

	signed, err := o.signer.SignTx(tx)
	if err != nil {
		log.Error("Failed to sign transaction", zap.Error(err))
		return o.fail(opp, err.Error(), true)
	}

	if err := o.submit(ctx, signed); err != nil {
		log.Error("Failed to submit transaction", zap.Error(err))
		return o.fail(opp, err.Error(), true)
	}
	log.Info("Submitted flash loan transaction",
		zap.String("tx", signed.Hash().Hex()),
		zap.Uint64("nonce", signed.Nonce()))

	receipt, err := o.awaitReceipt(ctx, signed.Hash())
	if err != nil {
		log.Warn("Confirmation timed out", zap.String("tx", signed.Hash().Hex()), zap.Error(err))
		o.metrics.Timeouts.Inc()
		o.store.Release(opp.Fingerprint)
		res := types.ExecutionResult{
			Fingerprint:   opp.Fingerprint,
			Chain:         opp.Chain,
			Pair:          opp.Pair,
			Success:       false,
			TxHash:        signed.Hash(),
			FailureReason: "confirmation timed out",
			Timestamp:     time.Now(),
		}
		o.metrics.Latency.Observe(time.Since(start).Seconds())
		o.updateSuccessRate()
		return res
	}

	res := o.settle(ctx, opp, signed, receipt, log)
	o.metrics.Latency.Observe(time.Since(start).Seconds())
	o.updateSuccessRate()
	return res
}

func (o *Orchestrator) buildTx(ctx context.Context, opp *types.Opportunity, provider flashloan.Provider) (*ethtypes.Transaction, error) {
	tokenIn, ok := o.cfg.Tokens[opp.Pair.Quote]
	if !ok {
		return nil, fmt.Errorf("unknown token %s", opp.Pair.Quote)
	}
	tokenOut, ok := o.cfg.Tokens[opp.Pair.Base]
	if !ok {
		return nil, fmt.Errorf("unknown token %s", opp.Pair.Base)
	}

	amountRaw := unitsToRaw(opp.BuyQuote.AmountIn, tokenIn.Decimals)
	params, err := o.inner.Pack(
		tokenIn.Address,
		tokenOut.Address,
		opp.BuyQuote.Router,
		opp.SellQuote.Router,
		amountRaw,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack swap params: %w", err)
	}

	calldata, err := o.abi.Pack("executeFlashLoan", provider.Pool(), tokenIn.Address, amountRaw, params)
	if err != nil {
		return nil, fmt.Errorf("failed to pack calldata: %w", err)
	}

	nonce, err := o.rpc.PendingNonce(ctx, o.signer.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice := o.gas.GasPrice()
	if gasPrice.Sign() == 0 {
		gasPrice, err = o.rpc.GasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get gas price: %w", err)
		}
	}

	gasLimit := opp.BuyQuote.GasEstimate + opp.SellQuote.GasEstimate + 90000 + 21000
	if preflight, ok := o.signer.(interface {
		CheckBalance(context.Context, uint64, *big.Int) error
	}); ok {
		if err := preflight.CheckBalance(ctx, gasLimit, gasPrice); err != nil {
			return nil, err
		}
	}

	return ethtypes.NewTransaction(nonce, o.cfg.Contract, big.NewInt(0), gasLimit, gasPrice, calldata), nil
}

func (o *Orchestrator) submit(ctx context.Context, tx *ethtypes.Transaction) error {
	if o.relay != nil {
		return o.relay.SendPrivate(ctx, tx)
	}
	return o.signer.SendTx(ctx, tx)
}

// awaitReceipt polls until the transaction lands or the confirm timeout
// elapses, then makes a short reconciliation pass with backoff before
// giving up.
func (o *Orchestrator) awaitReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	deadline := time.Now().Add(o.cfg.ConfirmTimeout)
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := o.rpc.Receipt(ctx, txHash)
			if err == nil {
				return receipt, nil
			}
			if !errors.Is(err, ethereum.NotFound) {
				o.logger.Warn("Receipt lookup failed", zap.String("tx", txHash.Hex()), zap.Error(err))
			}
		}
	}

	// Reconciliation: the transaction may still land moments after the
	// deadline, so retry a few times before declaring the outcome unknown.
	delay := o.cfg.PollInterval
	for attempt := 0; attempt < 3; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if receipt, err := o.rpc.Receipt(ctx, txHash); err == nil {
			return receipt, nil
		}
		delay *= 2
	}
	return nil, fmt.Errorf("no receipt for %s within %s", txHash.Hex(), o.cfg.ConfirmTimeout)
}

func (o *Orchestrator) settle(ctx context.Context, opp *types.Opportunity, tx *ethtypes.Transaction,
	receipt *ethtypes.Receipt, log *zap.Logger) types.ExecutionResult {

	res := types.ExecutionResult{
		Fingerprint: opp.Fingerprint,
		Chain:       opp.Chain,
		Pair:        opp.Pair,
		TxHash:      tx.Hash(),
		Timestamp:   time.Now(),
	}

	if receipt.Status == ethtypes.ReceiptStatusSuccessful {
		res.Success = true
		res.RealizedProfit = opp.NetProfit
		o.metrics.Successes.Inc()
		o.metrics.RealizedProfit.Add(opp.NetProfit)
		o.store.Settle(opp.Fingerprint, true)
		log.Info("Flash loan arbitrage confirmed",
			zap.String("tx", tx.Hash().Hex()),
			zap.Uint64("gas_used", receipt.GasUsed),
			zap.Float64("profit", opp.NetProfit))
		return res
	}

	res.Success = false
	res.FailureReason = "transaction reverted"
	res.RealizedProfit = -o.gasSpent(ctx, opp.Chain, receipt)
	o.metrics.Reverts.Inc()
	o.metrics.RealizedLoss.Add(-res.RealizedProfit)
	o.store.Settle(opp.Fingerprint, false)
	log.Warn("Flash loan arbitrage reverted",
		zap.String("tx", tx.Hash().Hex()),
		zap.Uint64("gas_used", receipt.GasUsed),
		zap.Float64("loss", -res.RealizedProfit))
	return res
}

// gasSpent converts the gas burned by a reverted transaction into
// quote-currency loss.
func (o *Orchestrator) gasSpent(ctx context.Context, chainName string, receipt *ethtypes.Receipt) float64 {
	price := receipt.EffectiveGasPrice
	if price == nil {
		price = o.gas.GasPrice()
	}
	wei := new(big.Int).Mul(price, new(big.Int).SetUint64(receipt.GasUsed))
	native, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18)).Float64()

	rate, err := o.rates.Rate(ctx, chainName)
	if err != nil {
		o.logger.Warn("Failed to price gas loss, recording native amount", zap.Error(err))
		return native
	}
	return native * rate
}

// fail records a pre-submission failure. release controls whether the
// reservation goes back to the pool; a caller-side misuse keeps the state
// untouched.
func (o *Orchestrator) fail(opp *types.Opportunity, reason string, release bool) types.ExecutionResult {
	if release {
		o.store.Release(opp.Fingerprint)
	}
	o.updateSuccessRate()
	return types.ExecutionResult{
		Fingerprint:   opp.Fingerprint,
		Chain:         opp.Chain,
		Pair:          opp.Pair,
		Success:       false,
		FailureReason: reason,
		Timestamp:     time.Now(),
	}
}

func (o *Orchestrator) updateSuccessRate() {
	attempts := metrics.CounterValue(o.metrics.Attempts)
	if attempts == 0 {
		o.metrics.SuccessRate.Set(0)
		return
	}
	o.metrics.SuccessRate.Set(metrics.CounterValue(o.metrics.Successes) / attempts)
}

func unitsToRaw(amount float64, decimals uint8) *big.Int {
	scaled := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(math.Pow10(int(decimals))))
	out, _ := scaled.Int(nil)
	return out
}
