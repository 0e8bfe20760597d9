package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"mercator-hq/ganymede/pkg/limits"
	"mercator-hq/ganymede/pkg/security/credentials"
)

// unhealthyThreshold is the consecutive-failure count after which an
// upstream is reported unhealthy.
const unhealthyThreshold = 3

// UpstreamOptions configures one provider's upstream HTTP client.
type UpstreamOptions struct {
	// Provider is the provider id, used in errors and logs.
	Provider string

	// BaseURL is the upstream API base, without a trailing slash.
	BaseURL string

	// Timeout bounds each attempt including body read.
	Timeout time.Duration

	// MaxRetries is the number of re-attempts after the first try for
	// transient failures (network errors and 5xx).
	MaxRetries int

	// Gate, when set, is consulted before each request with
	// MinRequestInterval and WaitOnRateLimit.
	Gate               *limits.IntervalGate
	MinRequestInterval time.Duration
	WaitOnRateLimit    bool

	// Credentials and Source, when set, resolve a bearer token for
	// requests that don't carry their own Authorization header.
	Credentials *credentials.Cache
	Source      credentials.Source

	Logger *slog.Logger
}

// Upstream is the HTTP client a plugin uses to reach its provider API.
// It owns connection pooling, the retry loop, rate gating, bearer-token
// resolution, and consecutive-failure health tracking.
type Upstream struct {
	opts   UpstreamOptions
	client *http.Client
	logger *slog.Logger

	mu       sync.Mutex
	failures int
}

// NewUpstream creates the client for one provider upstream.
func NewUpstream(opts UpstreamOptions) *Upstream {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &Upstream{
		opts: opts,
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		logger: logger.With("component", "upstream", "provider", opts.Provider),
	}
}

// Healthy reports whether the upstream is below the consecutive-failure
// threshold.
func (u *Upstream) Healthy() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.failures < unhealthyThreshold
}

func (u *Upstream) recordResult(success bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if success {
		u.failures = 0
		return
	}
	u.failures++
	if u.failures == unhealthyThreshold {
		u.logger.Warn("upstream marked unhealthy", "consecutive_failures", u.failures)
	}
}

// ResolveToken resolves the upstream bearer token without sending a
// request. Fails with a credentials error when none are configured.
func (u *Upstream) ResolveToken(ctx context.Context) (string, error) {
	if u.opts.Credentials == nil {
		return "", &credentials.MissingError{Provider: u.opts.Provider}
	}
	return u.opts.Credentials.Resolve(ctx, u.opts.Provider, u.opts.Source)
}

// Do sends one request to the upstream. The path is appended to the base
// URL. A 2xx response is returned with its body unread so callers can
// stream it; the caller owns closing it. Non-2xx responses are drained
// and returned as typed errors.
func (u *Upstream) Do(ctx context.Context, method, path string, body []byte, header http.Header) (*http.Response, error) {
	if u.opts.Gate != nil && u.opts.MinRequestInterval > 0 {
		ok, remaining := u.opts.Gate.Gate(u.opts.MinRequestInterval, u.opts.WaitOnRateLimit)
		if !ok {
			return nil, &GateRefusedError{Provider: u.opts.Provider, Remaining: remaining}
		}
	}

	token := ""
	if header.Get("Authorization") == "" && u.opts.Credentials != nil {
		resolved, err := u.opts.Credentials.Resolve(ctx, u.opts.Provider, u.opts.Source)
		if err != nil {
			return nil, err
		}
		token = resolved
	}

	url := u.opts.BaseURL + path
	var lastErr error

	for attempt := 0; attempt <= u.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			u.logger.Debug("retrying upstream request", "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, &TransportError{Provider: u.opts.Provider, Cause: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create upstream request: %w", err)
		}
		for key, vals := range header {
			for _, v := range vals {
				req.Header.Add(key, v)
			}
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		if req.Header.Get("Content-Type") == "" && body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := u.client.Do(req)
		if err != nil {
			lastErr = &TransportError{Provider: u.opts.Provider, Cause: err}
			if ctx.Err() != nil {
				u.recordResult(false)
				return nil, lastErr
			}
			u.logger.Warn("upstream request failed, will retry", "attempt", attempt+1, "error", err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			u.recordResult(true)
			return resp, nil
		}

		errorBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			u.recordResult(false)
			return nil, &AuthError{Provider: u.opts.Provider, Message: string(errorBody)}

		case http.StatusTooManyRequests:
			u.recordResult(false)
			return nil, &RateLimitError{
				Provider:   u.opts.Provider,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				Body:       errorBody,
			}

		case http.StatusBadRequest, http.StatusNotFound:
			u.recordResult(false)
			return nil, &UpstreamError{Provider: u.opts.Provider, StatusCode: resp.StatusCode, Body: errorBody}

		default:
			lastErr = &UpstreamError{Provider: u.opts.Provider, StatusCode: resp.StatusCode, Body: errorBody}
			u.logger.Warn("upstream returned error status, will retry",
				"status", resp.StatusCode,
				"attempt", attempt+1,
			)
		}
	}

	u.recordResult(false)
	return nil, lastErr
}

// DoJSON sends reqBody as JSON and decodes the response into respBody.
func (u *Upstream) DoJSON(ctx context.Context, method, path string, reqBody, respBody any, header http.Header) error {
	var bodyBytes []byte
	if reqBody != nil {
		var err error
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal upstream request: %w", err)
		}
	}
	if header == nil {
		header = http.Header{}
	}

	resp, err := u.Do(ctx, method, path, bodyBytes, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Provider: u.opts.Provider, Cause: err}
	}
	if respBody != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, respBody); err != nil {
			return fmt.Errorf("failed to decode upstream response: %w", err)
		}
	}
	return nil
}

// Close releases idle connections.
func (u *Upstream) Close() error {
	u.client.CloseIdleConnections()
	return nil
}

// parseRetryAfter handles both delay-seconds and HTTP-date forms.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}
