package alipan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tonimelisma/alipan-go/internal/metrics"
)

// Retry and backoff constants.
const (
	maxRetries     = 5
	baseBackoff    = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25
)

// Service endpoints and headers.
const (
	DefaultBaseURL   = "https://openapi.alipan.com"
	DefaultTokenURL  = "https://openapi.alipan.com/oauth/access_token"
	DefaultUserAgent = "alipan-go/0.1"

	// Referer must accompany requests to signed download URLs; the CDN
	// rejects them otherwise.
	Referer = "https://www.alipan.com/"
)

// TokenSource provides bearer access tokens. The session package provides
// the real implementation.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// tokenExpirer is implemented by token sources that can drop a cached token
// the server has rejected.
type tokenExpirer interface {
	Expire(token string)
}

// Client is an HTTP client for the Alipan open platform API.
// It handles request construction, authentication, rate limiting, retry
// with exponential backoff, and error classification.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	token      TokenSource
	limiter    atomic.Pointer[rate.Limiter]
	logger     *slog.Logger

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates an API client. baseURL is typically DefaultBaseURL.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger, userAgent string) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		sleepFunc:  timeSleep,
	}
	c.limiter.Store(rate.NewLimiter(rate.Inf, 0))

	return c
}

// SetRateLimit caps outgoing API requests per second. Zero or negative
// disables the limit. Safe to call while requests are in flight; requests
// already waiting finish under the old limit.
func (c *Client) SetRateLimit(rps float64) {
	if rps <= 0 {
		c.limiter.Store(rate.NewLimiter(rate.Inf, 0))

		return
	}

	burst := max(1, int(math.Ceil(rps)))
	c.limiter.Store(rate.NewLimiter(rate.Limit(rps), burst))
}

// HTTPClient returns the underlying HTTP client, shared by the transfer
// adapters that talk to signed URLs.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// UserAgent returns the User-Agent header value sent on every request.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// Call POSTs in as JSON to the API path and decodes the response into out.
// out may be nil when the response body is not needed.
func (c *Client) Call(ctx context.Context, path string, in, out any) error {
	op := operationName(path)

	var body []byte
	if in != nil {
		var err error

		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("alipan: encoding %s request: %w", op, err)
		}
	}

	resp, err := c.Do(ctx, path, body)
	if err != nil {
		metrics.RecordRemoteCall(op, false)

		return err
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			metrics.RecordRemoteCall(op, false)

			return fmt.Errorf("alipan: decoding %s response: %w", op, err)
		}
	}

	metrics.RecordRemoteCall(op, true)

	return nil
}

// Do executes a POST against the API. The path is appended to the base URL.
// The caller is responsible for closing the response body on success.
func (c *Client) Do(ctx context.Context, path string, body []byte) (*http.Response, error) {
	url := c.baseURL + path

	var (
		attempt   int
		reauthed  bool
		lastToken string
	)

	for {
		resp, tok, err := c.doOnce(ctx, url, body)
		if err != nil {
			var tokErr *tokenError
			if errors.As(err, &tokErr) {
				return nil, tokErr.err
			}

			// Context cancellation is not retryable.
			if ctx.Err() != nil {
				return nil, fmt.Errorf("alipan: request canceled: %w", ctx.Err())
			}

			if attempt < maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("path", path),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)
				metrics.RecordRemoteRetry(operationName(path))

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("alipan: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("alipan: POST %s failed after %d retries: %w", path, maxRetries, err)
		}

		lastToken = tok

		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
			c.logger.Debug("request succeeded",
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		apiErr := readAPIError(resp)

		// A rejected token is dropped once so the next attempt exchanges a
		// fresh one; a second rejection is final.
		if resp.StatusCode == http.StatusUnauthorized && !reauthed {
			if exp, ok := c.token.(tokenExpirer); ok {
				c.logger.Info("access token rejected, refreshing",
					slog.String("path", path),
					slog.String("code", apiErr.Code),
				)
				exp.Expire(lastToken)
				reauthed = true

				continue
			}
		}

		if isRetryable(resp.StatusCode) && attempt < maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.String("code", apiErr.Code),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)
			metrics.RecordRemoteRetry(operationName(path))

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("alipan: request canceled: %w", err)
			}

			attempt++

			continue
		}

		if attempt > 0 {
			c.logger.Error("request failed after retries",
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt+1),
			)
		}

		return nil, apiErr
	}
}

// operationName is the metrics label for an API path.
func operationName(path string) string {
	return strings.TrimPrefix(path, "/adrive/v1.0/")
}

// tokenError marks a failure to obtain a token, which is never retried here:
// the session layer has its own error taxonomy for it.
type tokenError struct {
	err error
}

func (e *tokenError) Error() string { return e.err.Error() }

func (e *tokenError) Unwrap() error { return e.err }

// doOnce executes a single HTTP request (no retry) and returns the token
// that was sent with it.
func (c *Client) doOnce(ctx context.Context, url string, body []byte) (*http.Response, string, error) {
	if err := c.limiter.Load().Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("waiting for rate limiter: %w", err)
	}

	tok, err := c.token.AccessToken(ctx)
	if err != nil {
		return nil, "", &tokenError{err: err}
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-Id", uuid.New().String())

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, tok, err
	}

	return resp, tok, nil
}

// readAPIError drains and closes an error response and builds the APIError.
func readAPIError(resp *http.Response) *APIError {
	raw, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()

	if readErr != nil {
		raw = []byte("(failed to read response body)")
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Ca-Request-Id"),
		Message:    strings.TrimSpace(string(raw)),
		Err:        classifyStatus(resp.StatusCode),
	}

	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil && eb.Code != "" {
		apiErr.Code = eb.Code
		apiErr.Message = eb.Message

		if eb.RequestID != "" {
			apiErr.RequestID = eb.RequestID
		}
	}

	// The service reports some missing files as 400 with a NotFound code.
	if apiErr.Err == ErrBadRequest && strings.HasPrefix(apiErr.Code, "NotFound") {
		apiErr.Err = ErrNotFound
	}

	return apiErr
}

// retryBackoff returns the backoff duration for a retryable response.
// For 429 responses with a Retry-After header, that value is used.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
