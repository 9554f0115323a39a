// Package birdeye looks up historical token prices from the Birdeye public API.
package birdeye

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"solana-trade-inspector/internal/httpclient"
)

// Defaults for the public endpoint.
const (
	DefaultBaseURL = "https://public-api.birdeye.so"
	HistoryPath    = "/defi/history_price"
	Chain          = "solana"
)

// tradeTimeOffset converts GMT+8 wall-clock seconds to UTC epoch seconds.
const tradeTimeOffset = 8 * 60 * 60

// Config configures a Client.
type Config struct {
	BaseURL  string
	APIKey   string
	Interval time.Duration
	Timeout  time.Duration
}

// PriceQuery identifies one trade to price.
type PriceQuery struct {
	TokenMintAddress string `json:"token_mint_address"`
	// TradeTime is a GMT+8 wall-clock Unix timestamp in seconds.
	TradeTime int64 `json:"trade_time"`
}

type historyResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Items []struct {
			UnixTime int64   `json:"unixTime"`
			Value    float64 `json:"value"`
		} `json:"items"`
	} `json:"data"`
}

// Client queries one price per request, spaced by the configured interval.
type Client struct {
	http    *httpclient.Client
	baseURL string
	logger  *zap.Logger
}

// NewClient creates a client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	headers := map[string]string{
		"accept":  "application/json",
		"x-chain": Chain,
	}
	if cfg.APIKey != "" {
		headers["X-API-KEY"] = cfg.APIKey
	}
	return &Client{
		http: httpclient.New(httpclient.Config{
			Name:     "birdeye",
			Timeout:  cfg.Timeout,
			Interval: cfg.Interval,
			Headers:  headers,
		}, logger),
		baseURL: cfg.BaseURL,
		logger:  logger,
	}
}

// MinuteWindow returns the UTC minute containing a GMT+8 trade time.
func MinuteWindow(tradeTime int64) (from, to int64) {
	utc := tradeTime - tradeTimeOffset
	from = utc - ((utc%60)+60)%60
	return from, from + 59
}

// Price returns the first 1-minute price point in the minute of q.
// ok is false when the API returned no points.
func (c *Client) Price(ctx context.Context, q PriceQuery) (price float64, ok bool, err error) {
	from, to := MinuteWindow(q.TradeTime)
	var resp historyResponse
	err = c.http.Get(ctx, c.baseURL+HistoryPath, map[string]string{
		"address":      q.TokenMintAddress,
		"address_type": "token",
		"type":         "1m",
		"time_from":    strconv.FormatInt(from, 10),
		"time_to":      strconv.FormatInt(to, 10),
	}, &resp)
	if err != nil {
		return 0, false, fmt.Errorf("birdeye price %s at %d: %w", q.TokenMintAddress, q.TradeTime, err)
	}
	if len(resp.Data.Items) == 0 {
		return 0, false, nil
	}
	return resp.Data.Items[0].Value, true, nil
}

// BatchPrices prices each query in order. Failed or empty lookups yield nil
// and do not stop the batch; a canceled context ends it early.
func (c *Client) BatchPrices(ctx context.Context, queries []PriceQuery) []*float64 {
	out := make([]*float64, len(queries))
	for i, q := range queries {
		if ctx.Err() != nil {
			break
		}
		p, ok, err := c.Price(ctx, q)
		if err != nil {
			c.logger.Warn("price lookup failed", zap.String("token", q.TokenMintAddress), zap.Error(err))
			continue
		}
		if ok {
			out[i] = &p
		}
	}
	return out
}
