package musickit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, status int, body string, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func newTestTokenCache(endpoint string, now time.Time) *TokenCache {
	return &TokenCache{
		Endpoint:     endpoint,
		ClientID:     "cid",
		ClientSecret: "secret",
		Client:       http.DefaultClient,
		Now:          func() time.Time { return now },
	}
}

func TestGetTokenUsesCachedValue(t *testing.T) {
	var hits atomic.Int64
	srv := newTokenServer(t, http.StatusOK, `{"access_token":"never","expires_in":3600}`, &hits)
	defer srv.Close()

	now := time.Now()
	cache := newTestTokenCache(srv.URL, now)
	cache.token = "cached"
	cache.expiresAt = now.Add(time.Minute)

	token, err := cache.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached", token)
	assert.Zero(t, hits.Load(), "a fresh cached token must not hit the network")
}

func TestGetTokenExchangesWhenExpired(t *testing.T) {
	var hits atomic.Int64
	srv := newTokenServer(t, http.StatusOK, `{"access_token":"fresh","expires_in":3600}`, &hits)
	defer srv.Close()

	now := time.Now()
	cache := newTestTokenCache(srv.URL, now)
	cache.token = "stale"
	cache.expiresAt = now.Add(-time.Minute)

	token, err := cache.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
	assert.Equal(t, int64(1), hits.Load())

	// Lifetime is shortened by the five minute safety margin.
	assert.Equal(t, now.Add(3600*time.Second-tokenEarlyExpiry), cache.expiresAt)

	// The fresh token is now served from cache.
	token, err = cache.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
	assert.Equal(t, int64(1), hits.Load())
}

func TestGetTokenFailureKeepsPreviousSlot(t *testing.T) {
	var hits atomic.Int64
	srv := newTokenServer(t, http.StatusBadGateway, `{"error":"upstream"}`, &hits)
	defer srv.Close()

	now := time.Now()
	cache := newTestTokenCache(srv.URL, now)
	cache.token = "stale"
	staleExpiry := now.Add(-time.Minute)
	cache.expiresAt = staleExpiry

	_, err := cache.GetToken(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(1), hits.Load())

	// The previous slot stays put for the next attempt to retry over.
	assert.Equal(t, "stale", cache.token)
	assert.Equal(t, staleExpiry, cache.expiresAt)
}

func TestGetTokenMissingCredentials(t *testing.T) {
	var hits atomic.Int64
	srv := newTokenServer(t, http.StatusOK, `{"access_token":"x","expires_in":60}`, &hits)
	defer srv.Close()

	cache := newTestTokenCache(srv.URL, time.Now())
	cache.ClientSecret = ""

	_, err := cache.GetToken(context.Background())
	require.Error(t, err)
	assert.Zero(t, hits.Load())
}

func TestInvalidateForcesExchange(t *testing.T) {
	var hits atomic.Int64
	srv := newTokenServer(t, http.StatusOK, `{"access_token":"fresh","expires_in":3600}`, &hits)
	defer srv.Close()

	now := time.Now()
	cache := newTestTokenCache(srv.URL, now)
	cache.token = "cached"
	cache.expiresAt = now.Add(time.Hour)

	cache.Invalidate()

	token, err := cache.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
	assert.Equal(t, int64(1), hits.Load())
}
