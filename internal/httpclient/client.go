// Package httpclient is a throttled JSON HTTP client shared by the outbound
// lookup clients.
package httpclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"resty.dev/v3"

	"solana-trade-inspector/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout  = 10 * time.Second
	DefaultInterval = time.Second
)

// Config configures a Client.
type Config struct {
	Name     string        // metrics label
	Timeout  time.Duration // per request
	Interval time.Duration // minimum spacing between requests
	Retries  int
	Headers  map[string]string
}

// Client sends requests no closer together than the configured interval.
// The first request is not delayed.
type Client struct {
	name    string
	client  *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Every(cfg.Interval), 1)

	rc := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetHeaders(cfg.Headers).
		AddRequestMiddleware(func(_ *resty.Client, r *resty.Request) error {
			if err := limiter.Wait(r.Context()); err != nil {
				return err
			}
			logger.Debug("outgoing request", zap.String("client", cfg.Name), zap.String("url", r.URL))
			return nil
		}).
		AddResponseMiddleware(func(_ *resty.Client, resp *resty.Response) error {
			if resp.StatusCode() >= 400 {
				logger.Warn("request failed",
					zap.String("client", cfg.Name),
					zap.Int("status", resp.StatusCode()),
					zap.String("url", resp.Request.URL),
				)
			}
			return nil
		})

	return &Client{name: cfg.Name, client: rc, limiter: limiter, logger: logger}
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.client.Close()
}

// Get sends a GET request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, url string, params map[string]string, out any) error {
	req := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(out)
	return c.do(req, "GET", url)
}

// PostJSON sends body as JSON and decodes the JSON response into out.
func (c *Client) PostJSON(ctx context.Context, url string, body, out any) error {
	req := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(out)
	return c.do(req, "POST", url)
}

func (c *Client) do(req *resty.Request, method, url string) (err error) {
	defer func(start time.Time) {
		observability.RecordOutbound(c.name, time.Since(start).Seconds(), err)
	}(time.Now())

	resp, err := req.Execute(method, url)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("%s %s: non-2xx status code: %d", method, url, resp.StatusCode())
	}
	return nil
}
