package solana

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"solana-trade-inspector/internal/httpclient"
)

// Default configuration values.
const (
	DefaultTimeout  = 10 * time.Second
	DefaultInterval = time.Second
)

// Config configures an HTTPClient.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	Interval time.Duration // spacing between consecutive calls
	Retries  int
}

// HTTPClient implements RPCClient over HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint  string
	http      *httpclient.Client
	logger    *zap.Logger
	requestID atomic.Uint64
}

// NewHTTPClient creates a new Solana RPC HTTP client.
func NewHTTPClient(cfg Config, logger *zap.Logger) *HTTPClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		endpoint: cfg.Endpoint,
		http: httpclient.New(httpclient.Config{
			Name:     "solana_rpc",
			Timeout:  cfg.Timeout,
			Interval: cfg.Interval,
			Retries:  cfg.Retries,
		}, logger),
		logger: logger,
	}
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response with a nullable integer result.
type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      uint64    `json:"id"`
	Result  *int64    `json:"result"`
	Error   *rpcError `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// GetBlockTime returns the block time of slot.
func (c *HTTPClient) GetBlockTime(ctx context.Context, slot int64) (*int64, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  "getBlockTime",
		Params:  []any{slot},
	}
	var resp rpcResponse
	if err := c.http.PostJSON(ctx, c.endpoint, req, &resp); err != nil {
		return nil, fmt.Errorf("getBlockTime %d: %w", slot, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("getBlockTime %d: %w", slot, resp.Error)
	}
	return resp.Result, nil
}

// SlotTimestamps resolves each slot in order, one call per slot. Slots
// that fail map to nil; a canceled context leaves the remaining slots nil.
func SlotTimestamps(ctx context.Context, client RPCClient, slots []int64, logger *zap.Logger) map[int64]*int64 {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make(map[int64]*int64, len(slots))
	for _, slot := range slots {
		if _, done := out[slot]; done {
			continue
		}
		out[slot] = nil
		if ctx.Err() != nil {
			continue
		}
		ts, err := client.GetBlockTime(ctx, slot)
		if err != nil {
			logger.Warn("block time lookup failed", zap.Int64("slot", slot), zap.Error(err))
			continue
		}
		out[slot] = ts
	}
	return out
}

// SlotTimestamps resolves slots with this client.
func (c *HTTPClient) SlotTimestamps(ctx context.Context, slots []int64) map[int64]*int64 {
	return SlotTimestamps(ctx, c, slots, c.logger)
}
