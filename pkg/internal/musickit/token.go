package musickit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/viper"
)

// The upstream lifetime is shortened by this margin so a token never
// expires while a proxied request is still in flight.
const tokenEarlyExpiry = 300 * time.Second

// TokenCache is a single-slot, process-lifetime cache for the catalog
// API's client-credentials bearer token. A failed refresh leaves the
// previous slot in place so the next call can retry; two callers racing
// past an expired slot will both exchange and the last writer wins, which
// is accepted as self-healing.
type TokenCache struct {
	Endpoint     string
	ClientID     string
	ClientSecret string

	Client *http.Client
	Now    func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenCache() *TokenCache {
	return &TokenCache{
		Endpoint:     viper.GetString("music.token_endpoint"),
		ClientID:     viper.GetString("music.client_id"),
		ClientSecret: viper.GetString("music.client_secret"),
		Client:       &http.Client{Timeout: 10 * time.Second},
		Now:          time.Now,
	}
}

// GetToken returns a valid bearer token, reusing the cached one while it
// is fresh and exchanging client credentials otherwise.
func (c *TokenCache) GetToken(ctx context.Context) (string, error) {
	now := c.Now()

	c.mu.Lock()
	if len(c.token) > 0 && now.Before(c.expiresAt) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	if len(c.ClientID) == 0 || len(c.ClientSecret) == 0 {
		return "", fmt.Errorf("missing music catalog client credentials")
	}

	token, expiresIn, err := c.exchange(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.token = token
	c.expiresAt = c.Now().Add(time.Duration(expiresIn)*time.Second - tokenEarlyExpiry)
	c.mu.Unlock()

	return token, nil
}

// Invalidate drops the cached slot, forcing the next call to exchange.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *TokenCache) exchange(ctx context.Context) (string, int, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.Client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", 0, fmt.Errorf("token exchange failed with status %d", res.StatusCode)
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return "", 0, err
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := jsoniter.Unmarshal(raw, &payload); err != nil {
		return "", 0, err
	}
	if len(payload.AccessToken) == 0 {
		return "", 0, fmt.Errorf("token exchange returned an empty access token")
	}

	return payload.AccessToken, payload.ExpiresIn, nil
}
