// Package quote provides upstream price sources and their wire-format parsers.
package quote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"trade-alert/internal/config"
	apperrors "trade-alert/internal/errors"
	"trade-alert/internal/models"
)

// BrowserUserAgent is sent to endpoints that reject non-browser clients.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

const maxBodyBytes = 1 << 20

// Client is the pooled HTTP client shared by every source.
type Client struct {
	http *http.Client
}

// NewClient builds a client whose requests are bounded by the configured
// timeout and whose idle connections are reaped after the pool idle timeout.
func NewClient(cfg config.PriceFetcherConfig) *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.MaxConcurrentRequests,
		IdleConnTimeout:     cfg.PoolIdleTimeout(),
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &Client{
		http: &http.Client{
			Timeout:   cfg.RequestTimeout(),
			Transport: transport,
		},
	}
}

// NewLimiter returns the per-source politeness limiter.
func NewLimiter(requestsPerSecond float64) *rate.Limiter {
	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// request describes one upstream GET.
type request struct {
	source  models.PriceSource
	symbol  string
	url     string
	headers map[string]string
	limiter *rate.Limiter
}

// get performs the request and returns the body with the HTTP status code.
// Transport failures become NetworkError; status checks are left to the
// caller since some upstreams carry an error payload on non-2xx replies.
func (c *Client) get(ctx context.Context, r request) ([]byte, int, error) {
	src := string(r.source)

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, 0, apperrors.NewNetworkError(src, r.symbol, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("building %s request: %w", src, err)
	}
	req.Header.Set("User-Agent", BrowserUserAgent)
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, apperrors.NewNetworkError(src, r.symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, apperrors.NewNetworkError(src, r.symbol, err)
	}

	return body, resp.StatusCode, nil
}

// getOK is get for endpoints whose non-2xx replies carry nothing useful.
func (c *Client) getOK(ctx context.Context, r request) ([]byte, error) {
	body, status, err := c.get(ctx, r)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, apperrors.NewUpstreamError(string(r.source), r.symbol, http.StatusText(status), fmt.Sprintf("HTTP %d", status))
	}
	return body, nil
}
