package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedTx(t *testing.T) *ethtypes.Transaction {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	tx := ethtypes.NewTransaction(1, crypto.PubkeyToAddress(key.PublicKey), big.NewInt(0), 21000, big.NewInt(1e9), nil)
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(big.NewInt(1)), key)
	require.NoError(t, err)
	return signed
}

func TestSendPrivateSignsRequest(t *testing.T) {
	authKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	var gotHeader string
	var gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get(signatureHeader)

		var body struct {
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotMethod = body.Method

		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":"0x0"}`)
	}))
	defer server.Close()

	c := NewClient(server.URL, authKey)
	require.NoError(t, c.SendPrivate(context.Background(), signedTx(t)))

	assert.Equal(t, methodSendPrivate, gotMethod)
	assert.Contains(t, gotHeader, crypto.PubkeyToAddress(authKey.PublicKey).Hex(),
		"signature header must identify the auth key")
	assert.Contains(t, gotHeader, ":")
}

func TestSendPrivateRelayRejection(t *testing.T) {
	authKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32600,"message":"nonce too low"}}`)
	}))
	defer server.Close()

	c := NewClient(server.URL, authKey)
	err = c.SendPrivate(context.Background(), signedTx(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonce too low")
}

func TestSendPrivateHTTPFailure(t *testing.T) {
	authKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	c := NewClient(server.URL, authKey)
	assert.Error(t, c.SendPrivate(context.Background(), signedTx(t)))
}
