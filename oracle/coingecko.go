package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

var ErrUnknownChain = errors.New("no rate for chain")

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// CoinGecko fetches native-currency prices in the quote currency with a
// short-lived cache so scan cycles do not hammer the API.
type CoinGecko struct {
	baseURL    string
	httpClient *http.Client
	vsCurrency string
	coinIDs    map[string]string // chain -> coingecko coin id
	ttl        time.Duration
	retryDelay time.Duration

	mu     sync.Mutex
	cached map[string]cachedRate
}

type cachedRate struct {
	rate float64
	at   time.Time
}

// NewCoinGecko creates a rate source. coinIDs maps chain names to
// CoinGecko coin identifiers (e.g. "ethereum", "matic-network");
// vsCurrency is the quote currency in lowercase ("usd").
func NewCoinGecko(coinIDs map[string]string, vsCurrency string, ttl time.Duration) *CoinGecko {
	return &CoinGecko{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		vsCurrency: vsCurrency,
		coinIDs:    coinIDs,
		ttl:        ttl,
		retryDelay: time.Second,
		cached:     make(map[string]cachedRate),
	}
}

// Rate returns the cached rate when fresh, otherwise refetches with
// exponential backoff.
func (c *CoinGecko) Rate(ctx context.Context, chain string) (float64, error) {
	coinID, ok := c.coinIDs[chain]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownChain, chain)
	}

	c.mu.Lock()
	if entry, ok := c.cached[chain]; ok && time.Since(entry.at) < c.ttl {
		c.mu.Unlock()
		return entry.rate, nil
	}
	c.mu.Unlock()

	rate, err := c.fetch(ctx, coinID)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.cached[chain] = cachedRate{rate: rate, at: time.Now()}
	c.mu.Unlock()
	return rate, nil
}

func (c *CoinGecko) fetch(ctx context.Context, coinID string) (float64, error) {
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s",
		c.baseURL, url.QueryEscape(coinID), url.QueryEscape(c.vsCurrency))

	const maxAttempts = 3
	delay := c.retryDelay

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		rate, err := c.fetchOnce(ctx, endpoint, coinID)
		if err == nil {
			return rate, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return 0, fmt.Errorf("rate fetch failed after %d attempts: %w", maxAttempts, lastErr)
}

func (c *CoinGecko) fetchOnce(ctx context.Context, endpoint, coinID string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("coingecko returned status %d", resp.StatusCode)
	}

	var data map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return 0, fmt.Errorf("decode: %w", err)
	}

	rate := data[coinID][c.vsCurrency]
	if rate <= 0 {
		return 0, fmt.Errorf("invalid rate %f for %s", rate, coinID)
	}
	return rate, nil
}
