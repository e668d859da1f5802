package wallet

import (
	"math/big"
	"testing"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestNewLocalSignerDerivesAddress(t *testing.T) {
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	want := crypto.PubkeyToAddress(key.PublicKey)

	s, err := NewLocalSigner(testKeyHex, big.NewInt(1), nil)
	require.NoError(t, err)
	assert.Equal(t, want, s.Address())

	// A 0x prefix is accepted too.
	s2, err := NewLocalSigner("0x"+testKeyHex, big.NewInt(1), nil)
	require.NoError(t, err)
	assert.Equal(t, want, s2.Address())
}

func TestNewLocalSignerRejectsGarbage(t *testing.T) {
	_, err := NewLocalSigner("not-a-key", big.NewInt(1), nil)
	assert.Error(t, err)
}

func TestSignTxRecoverableSender(t *testing.T) {
	chainID := big.NewInt(1)
	s, err := NewLocalSigner(testKeyHex, chainID, nil)
	require.NoError(t, err)

	tx := ethtypes.NewTransaction(3, s.Address(), big.NewInt(0), 21000, big.NewInt(1e9), nil)
	signed, err := s.SignTx(tx)
	require.NoError(t, err)

	sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), sender)
}
