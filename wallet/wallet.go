package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrInsufficientBalance means the wallet cannot cover the worst-case gas
// cost of a submission.
var ErrInsufficientBalance = errors.New("insufficient wallet balance")

// Signer signs and broadcasts transactions. The orchestrator builds the
// unsigned transaction; everything key-related stays behind this interface.
type Signer interface {
	// Address returns the sending account.
	Address() common.Address

	// SignTx signs a transaction for the configured chain.
	SignTx(tx *ethtypes.Transaction) (*ethtypes.Transaction, error)

	// SendTx broadcasts a signed transaction.
	SendTx(ctx context.Context, tx *ethtypes.Transaction) error
}

// LocalSigner holds a private key in memory and broadcasts through a
// standard RPC connection.
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	eth     *ethclient.Client
}

// NewLocalSigner parses a hex private key (no 0x prefix required) and binds
// it to a chain ID for EIP-155 signing.
func NewLocalSigner(hexKey string, chainID *big.Int, eth *ethclient.Client) (*LocalSigner, error) {
	if len(hexKey) >= 2 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		eth:     eth,
	}, nil
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SignTx(tx *ethtypes.Transaction) (*ethtypes.Transaction, error) {
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

func (s *LocalSigner) SendTx(ctx context.Context, tx *ethtypes.Transaction) error {
	if err := s.eth.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("failed to broadcast transaction: %w", err)
	}
	return nil
}

// CheckBalance verifies the wallet can pay for gasLimit at gasPrice.
// Run before submission so a doomed transaction never leaves the process.
func (s *LocalSigner) CheckBalance(ctx context.Context, gasLimit uint64, gasPrice *big.Int) error {
	balance, err := s.eth.BalanceAt(ctx, s.address, nil)
	if err != nil {
		return fmt.Errorf("failed to read wallet balance: %w", err)
	}
	need := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	if balance.Cmp(need) < 0 {
		return fmt.Errorf("%w: have %s wei, need %s wei", ErrInsufficientBalance, balance, need)
	}
	return nil
}
