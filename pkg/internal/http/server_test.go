package http

import (
	"io"
	nhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniwave/calling/pkg/internal/musickit"
)

const upstreamSearchPayload = `{
  "tracks": {
    "data": [
      {
        "id": "t1",
        "name": "Midnight Drive",
        "duration": 214000,
        "url": "https://play.example.com/t1",
        "album": {
          "name": "Night Lines",
          "images": [{"url": "https://img.example.com/t1.jpg"}],
          "artist": {"name": "The Commuters"}
        }
      },
      {
        "id": "t2",
        "name": "Campus Lights",
        "duration": 189000,
        "url": "https://play.example.com/t2",
        "album": {
          "name": "Freshman Year",
          "images": [],
          "artist": {"name": "Dorm Echo"}
        }
      }
    ],
    "summary": {"total": 2}
  }
}`

func setupMusicUpstream(t *testing.T) {
	t.Helper()

	mux := nhttp.NewServeMux()
	mux.HandleFunc("/token", func(w nhttp.ResponseWriter, r *nhttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"test-token","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/search", func(w nhttp.ResponseWriter, r *nhttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(upstreamSearchPayload))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	musickit.K = &musickit.Client{
		BaseURL: srv.URL + "/v1",
		Tokens: &musickit.TokenCache{
			Endpoint:     srv.URL + "/token",
			ClientID:     "cid",
			ClientSecret: "secret",
			Client:       nhttp.DefaultClient,
			Now:          time.Now,
		},
		HTTP: nhttp.DefaultClient,
	}
}

func TestMusicSearchProxy(t *testing.T) {
	setupMusicUpstream(t)
	NewServer()

	req := httptest.NewRequest(nhttp.MethodGet, "/api/music/search?q=test", nil)
	res, err := A.Test(req)
	require.NoError(t, err)
	assert.Equal(t, nhttp.StatusOK, res.StatusCode)

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	var body struct {
		Tracks []struct {
			ID     string `json:"id"`
			Artist string `json:"artist"`
		} `json:"tracks"`
		Total int `json:"total"`
	}
	require.NoError(t, jsoniter.Unmarshal(raw, &body))
	assert.Equal(t, 2, body.Total)
	require.Len(t, body.Tracks, 2)
	assert.Equal(t, "t1", body.Tracks[0].ID)
	assert.Equal(t, "The Commuters", body.Tracks[0].Artist)
}

func TestMusicSearchMissingQuery(t *testing.T) {
	setupMusicUpstream(t)
	NewServer()

	req := httptest.NewRequest(nhttp.MethodGet, "/api/music/search", nil)
	res, err := A.Test(req)
	require.NoError(t, err)
	assert.Equal(t, nhttp.StatusBadRequest, res.StatusCode)

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	var body map[string]string
	require.NoError(t, jsoniter.Unmarshal(raw, &body))
	assert.Equal(t, "Missing query parameter 'q'", body["error"])
}

func TestMusicTrackMissingId(t *testing.T) {
	setupMusicUpstream(t)
	NewServer()

	req := httptest.NewRequest(nhttp.MethodGet, "/api/music/track", nil)
	res, err := A.Test(req)
	require.NoError(t, err)
	assert.Equal(t, nhttp.StatusBadRequest, res.StatusCode)
}

func TestMusicSearchPreflight(t *testing.T) {
	setupMusicUpstream(t)
	NewServer()

	req := httptest.NewRequest(nhttp.MethodOptions, "/api/music/search", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", nhttp.MethodGet)

	res, err := A.Test(req)
	require.NoError(t, err)
	assert.Less(t, res.StatusCode, 300)
	assert.NotEmpty(t, res.Header.Get("Access-Control-Allow-Origin"))

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestMusicSearchMethodNotAllowed(t *testing.T) {
	setupMusicUpstream(t)
	NewServer()

	req := httptest.NewRequest(nhttp.MethodPut, "/api/music/search", nil)
	res, err := A.Test(req)
	require.NoError(t, err)
	assert.Equal(t, nhttp.StatusMethodNotAllowed, res.StatusCode)
}

func TestCallsRequireAuthentication(t *testing.T) {
	setupMusicUpstream(t)
	NewServer()

	req := httptest.NewRequest(nhttp.MethodGet, "/api/calls/pending", nil)
	res, err := A.Test(req)
	require.NoError(t, err)
	assert.Equal(t, nhttp.StatusUnauthorized, res.StatusCode)
}

func TestAuthSubjectMustBeAccountId(t *testing.T) {
	setupMusicUpstream(t)
	NewServer()

	viper.Set("security.jwt_secret", "test-secret")
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "some-user-name",
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	// A valid signature is not enough; the subject must carry the id.
	req := httptest.NewRequest(nhttp.MethodGet, "/api/calls/pending", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := A.Test(req)
	require.NoError(t, err)
	assert.Equal(t, nhttp.StatusUnauthorized, res.StatusCode)
}
