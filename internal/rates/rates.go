// Package rates resolves ETH/USD exchange rates per epoch from a
// CoinGecko-compatible API, memoizing one rate per epoch per run.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/yourorg/octant-daoip5/internal/epoch"
	"github.com/yourorg/octant-daoip5/internal/metrics"
)

// Client fetches spot and historical ETH/USD rates.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a rate client for the given CoinGecko-compatible base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// HistoricalRate returns the ETH/USD rate for a DD-MM-YYYY date.
func (c *Client) HistoricalRate(ctx context.Context, date string) (float64, bool) {
	var body struct {
		MarketData struct {
			CurrentPrice struct {
				USD float64 `json:"usd"`
			} `json:"current_price"`
		} `json:"market_data"`
	}
	endpoint := "/api/v3/coins/ethereum/history?date=" + url.QueryEscape(date)
	if !c.get(ctx, endpoint, &body) || body.MarketData.CurrentPrice.USD == 0 {
		return 0, false
	}
	logrus.Infof("Historical ETH/USD rate for %s: $%.2f", date, body.MarketData.CurrentPrice.USD)
	return body.MarketData.CurrentPrice.USD, true
}

// CurrentRate returns the current ETH/USD rate.
func (c *Client) CurrentRate(ctx context.Context) (float64, bool) {
	var body struct {
		Ethereum struct {
			USD float64 `json:"usd"`
		} `json:"ethereum"`
	}
	if !c.get(ctx, "/api/v3/simple/price?ids=ethereum&vs_currencies=usd", &body) || body.Ethereum.USD == 0 {
		return 0, false
	}
	logrus.Infof("Current ETH/USD rate: $%.2f", body.Ethereum.USD)
	return body.Ethereum.USD, true
}

func (c *Client) get(ctx context.Context, endpoint string, v any) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logrus.Warnf("Could not fetch exchange rate from %s: %v", endpoint, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logrus.Warnf("Exchange rate request %s returned status %d", endpoint, resp.StatusCode)
		return false
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		logrus.Warnf("Could not decode exchange rate response from %s: %v", endpoint, err)
		return false
	}
	return true
}

// Cache memoizes one resolved rate per epoch for the lifetime of a run.
// It is safe for concurrent use; concurrent lookups of the same epoch are
// collapsed into a single upstream query.
type Cache struct {
	client *Client

	mu    sync.RWMutex
	rates map[int]float64
	group singleflight.Group
}

// NewCache creates an empty per-run rate cache around the given client.
func NewCache(client *Client) *Cache {
	return &Cache{
		client: client,
		rates:  make(map[int]float64),
	}
}

// RateForEpoch resolves the ETH/USD rate for an epoch: cached value first,
// then the historical rate at the epoch's end date, then the current rate.
// It reports false when no source resolves; callers must propagate the
// absence, never substitute zero.
func (c *Cache) RateForEpoch(ctx context.Context, epochNum int) (float64, bool) {
	c.mu.RLock()
	rate, ok := c.rates[epochNum]
	c.mu.RUnlock()
	if ok {
		metrics.RateLookups.WithLabelValues("cache").Inc()
		return rate, true
	}

	v, err, _ := c.group.Do(strconv.Itoa(epochNum), func() (any, error) {
		rate, ok := c.client.HistoricalRate(ctx, epoch.RateDate(epochNum))
		if ok {
			metrics.RateLookups.WithLabelValues("historical").Inc()
		} else {
			logrus.Warnf("Could not get historical rate for epoch %d, using current rate", epochNum)
			rate, ok = c.client.CurrentRate(ctx)
			if ok {
				metrics.RateLookups.WithLabelValues("current").Inc()
			}
		}
		if !ok {
			metrics.RateLookups.WithLabelValues("none").Inc()
			return nil, fmt.Errorf("no ETH/USD rate resolvable for epoch %d", epochNum)
		}

		c.mu.Lock()
		c.rates[epochNum] = rate
		c.mu.Unlock()
		return rate, nil
	})
	if err != nil {
		return 0, false
	}
	return v.(float64), true
}

// CurrentRate returns the current spot rate, bypassing the per-epoch cache.
func (c *Cache) CurrentRate(ctx context.Context) (float64, bool) {
	return c.client.CurrentRate(ctx)
}

// Snapshot returns a copy of the resolved rates, keyed by epoch, for the
// freshness metadata block.
func (c *Cache) Snapshot() map[int]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int]float64, len(c.rates))
	for k, v := range c.rates {
		out[k] = v
	}
	return out
}
