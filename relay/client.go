package relay

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	contentTypeJSON   = "application/json"
	signatureHeader   = "X-Flashbots-Signature"
	methodSendPrivate = "eth_sendPrivateTransaction"
)

// Client submits transactions to a private relay so pending arbitrage
// transactions never appear in the public mempool. Requests are signed with
// a separate auth key that identifies the searcher, not the trading wallet.
type Client struct {
	httpClient *http.Client
	relayURL   string
	authKey    *ecdsa.PrivateKey
}

// NewClient creates a relay client for the given endpoint.
func NewClient(relayURL string, authKey *ecdsa.PrivateKey) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 3 * time.Second},
		relayURL:   relayURL,
		authKey:    authKey,
	}
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendPrivate submits a signed transaction for private inclusion.
func (c *Client) SendPrivate(ctx context.Context, tx *ethtypes.Transaction) error {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode transaction: %w", err)
	}

	params := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  methodSendPrivate,
		"params": []interface{}{
			map[string]interface{}{
				"tx":             hexutil.Encode(raw),
				"maxBlockNumber": nil,
				"preferences": map[string]interface{}{
					"fast": true,
				},
			},
		},
	}

	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	header, err := c.signPayload(payload)
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", contentTypeJSON)
	req.Header.Add("Accept", contentTypeJSON)
	req.Header.Add(signatureHeader, header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay request failed: %s", string(body))
	}

	var result struct {
		Error *rpcError `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != nil {
		return fmt.Errorf("relay rejected transaction: %s", result.Error.Message)
	}
	return nil
}

func (c *Client) signPayload(payload []byte) (string, error) {
	signature, err := crypto.Sign(
		accounts.TextHash([]byte(hexutil.Encode(crypto.Keccak256(payload)))),
		c.authKey,
	)
	if err != nil {
		return "", fmt.Errorf("failed to sign request: %w", err)
	}
	return fmt.Sprintf("%s:%s",
		crypto.PubkeyToAddress(c.authKey.PublicKey).Hex(),
		hexutil.Encode(signature),
	), nil
}
