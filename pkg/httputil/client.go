package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/eodsnap/pkg/logger"
	"github.com/wonny/eodsnap/pkg/redis"
)

// maxErrorBody caps how much of a failed response is kept for diagnostics
const maxErrorBody = 512

// Client is an HTTP client wrapper with rate limiting and logging.
// Retries are not done here; callers own them through retry.Policy.
// ⭐ SSOT: 모든 외부 HTTP 요청은 이 클라이언트를 통해서만 수행
type Client struct {
	httpClient   *http.Client
	logger       *logger.Logger
	limiter      *rate.Limiter
	rateLimiter  *redis.RateLimiter
	rateLimitCfg *redis.RateLimitConfig
	userAgent    string
}

// StatusError is returned for any non-2xx response
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// New creates a client with a per-request timeout and a local token bucket of rps requests/sec
// ⭐ SSOT: http.Client 인스턴스는 여기서만 생성
func New(log *logger.Logger, timeout time.Duration, rps int) *Client {
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
		limiter:    rate.NewLimiter(rate.Limit(rps), rps),
		userAgent:  "Mozilla/5.0 (compatible; eodsnap/1.0)",
	}
}

// WithRateLimiter adds a Redis-backed limiter shared by every process hitting the same provider
func (c *Client) WithRateLimiter(limiter *redis.RateLimiter, cfg redis.RateLimitConfig) *Client {
	c.rateLimiter = limiter
	c.rateLimitCfg = &cfg
	return c
}

// Timeout returns the per-request timeout
func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}

// Get performs a GET request; the caller closes the body
func (c *Client) Get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create GET request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	return c.do(req)
}

// GetJSON performs a GET request and decodes a 2xx JSON body into dest.
// Non-2xx responses return *StatusError.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, dest interface{}) error {
	resp, err := c.Get(ctx, url, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, URL: url, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}

// do applies the rate limits and logs the exchange
func (c *Client) do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}
	if c.rateLimiter != nil && c.rateLimitCfg != nil {
		if err := c.rateLimiter.Wait(ctx, *c.rateLimitCfg); err != nil {
			return nil, fmt.Errorf("shared rate limit wait failed: %w", err)
		}
	}

	startTime := time.Now()
	url := req.URL.Redacted()

	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		c.logger.WithFields(map[string]interface{}{
			"method":   req.Method,
			"url":      url,
			"duration": duration,
			"error":    err.Error(),
		}).Warn("HTTP request failed")
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"method":      req.Method,
		"url":         url,
		"status_code": resp.StatusCode,
		"duration":    duration,
	}).Debug("HTTP request completed")

	return resp, nil
}

// IsRetryableStatus checks if a status code is worth retrying
func IsRetryableStatus(statusCode int) bool {
	// 5xx 서버 에러와 429 Too Many Requests만 재시도
	return statusCode >= 500 || statusCode == http.StatusTooManyRequests
}
