package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Source describes how a provider's bearer token is obtained.
type Source struct {
	// Token is an explicit bearer token. When set it always wins and
	// no refresh call is made.
	Token string

	// Credential is a long-lived credential (e.g., a refresh token)
	// exchanged at RefreshURL for a short-lived bearer token.
	Credential string

	// RefreshURL is the token refresh endpoint.
	RefreshURL string
}

// MissingError indicates that neither an explicit token nor a credential
// is configured. Resolution never silently returns an empty token.
type MissingError struct {
	Provider string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("provider %q has no token or credential configured", e.Provider)
}

// RefreshError indicates a failed token refresh call.
type RefreshError struct {
	Provider string
	Message  string
	Cause    error
}

func (e *RefreshError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider %q token refresh failed: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("provider %q token refresh failed: %s", e.Provider, e.Message)
}

func (e *RefreshError) Unwrap() error {
	return e.Cause
}

// cachedToken is a refreshed bearer token with its expiry and the earlier
// refresh-due time after which a new refresh is attempted.
type cachedToken struct {
	token      string
	expiresAt  time.Time
	refreshDue time.Time
}

// Cache resolves and caches upstream bearer tokens. Refreshed tokens are
// cached keyed by the long-lived credential that obtained them; concurrent
// resolutions within the cached window reuse the cached token without
// touching the refresh endpoint.
type Cache struct {
	client *http.Client
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*cachedToken

	logger *slog.Logger
}

// NewCache creates a token cache using the given HTTP client for refresh
// calls. A nil client gets a default with a 30s timeout.
func NewCache(client *http.Client) *Cache {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Cache{
		client:  client,
		now:     time.Now,
		entries: make(map[string]*cachedToken),
		logger:  slog.Default().With("component", "security.credentials"),
	}
}

// refreshRequest is the wire shape of the token refresh call.
type refreshRequest struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
}

// refreshResponse is the wire shape of a successful refresh reply.
type refreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Resolve returns the bearer token for the provider described by src.
//
// Resolution order: an explicit token always wins and never triggers a
// refresh; otherwise the credential is exchanged at the refresh endpoint,
// with successful results cached until their refresh-due time. When
// neither is configured, Resolve returns a MissingError.
func (c *Cache) Resolve(ctx context.Context, provider string, src Source) (string, error) {
	if src.Token != "" {
		return src.Token, nil
	}
	if src.Credential == "" {
		return "", &MissingError{Provider: provider}
	}

	c.mu.Lock()
	if entry, ok := c.entries[src.Credential]; ok && c.now().Before(entry.refreshDue) {
		token := entry.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	// Refresh outside the lock; a racing refresh is harmless, the last
	// writer wins with an equally valid token.
	entry, err := c.refresh(ctx, provider, src)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[src.Credential] = entry
	c.mu.Unlock()

	return entry.token, nil
}

func (c *Cache) refresh(ctx context.Context, provider string, src Source) (*cachedToken, error) {
	body, err := json.Marshal(refreshRequest{GrantType: "refresh_token", RefreshToken: src.Credential})
	if err != nil {
		return nil, &RefreshError{Provider: provider, Message: "failed to encode refresh request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, src.RefreshURL, bytes.NewReader(body))
	if err != nil {
		return nil, &RefreshError{Provider: provider, Message: "failed to build refresh request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &RefreshError{Provider: provider, Message: "refresh call failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &RefreshError{
			Provider: provider,
			Message:  fmt.Sprintf("refresh endpoint returned status %d: %s", resp.StatusCode, bytes.TrimSpace(payload)),
		}
	}

	var rr refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, &RefreshError{Provider: provider, Message: "failed to decode refresh response", Cause: err}
	}
	if rr.AccessToken == "" {
		return nil, &RefreshError{Provider: provider, Message: "refresh response carried no access token"}
	}

	ttl := time.Duration(rr.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}

	now := c.now()
	entry := &cachedToken{
		token:     rr.AccessToken,
		expiresAt: now.Add(ttl),
		// Refresh ahead of expiry so in-flight requests never ride an
		// expiring token.
		refreshDue: now.Add(ttl * 4 / 5),
	}

	c.logger.Debug("refreshed upstream token",
		"provider", provider,
		"expires_at", entry.expiresAt,
		"refresh_due", entry.refreshDue,
	)
	return entry, nil
}

// Sweep evicts entries whose tokens have expired and returns the number
// evicted. The scheduled sweeper calls this periodically; it is also safe
// to call manually.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	evicted := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}

// Size returns the number of cached tokens.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
