package musickit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
	"github.com/spf13/viper"

	"github.com/uniwave/calling/pkg/internal/models"
)

// K is the shared catalog client, set up once in main.
var K *Client

func SetupClient() {
	K = NewClient(NewTokenCache())
}

// UpstreamError preserves the catalog API's status so the proxy surface
// can pass the failure class through.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream catalog error: status %d", e.Status)
}

// Client fronts the external music catalog API with the cached OAuth
// token and projects upstream payloads to the normalized track shape.
type Client struct {
	BaseURL string
	Tokens  *TokenCache
	HTTP    *http.Client
}

func NewClient(tokens *TokenCache) *Client {
	return &Client{
		BaseURL: viper.GetString("music.api_base"),
		Tokens:  tokens,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Upstream payload shapes; only the fields the projection needs.

type upstreamImage struct {
	URL string `json:"url"`
}

type upstreamTrack struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Duration int    `json:"duration"`
	URL      string `json:"url"`
	Album    struct {
		Name   string          `json:"name"`
		Images []upstreamImage `json:"images"`
		Artist struct {
			Name string `json:"name"`
		} `json:"artist"`
	} `json:"album"`
}

type upstreamSearch struct {
	Tracks struct {
		Data    []upstreamTrack `json:"data"`
		Summary struct {
			Total int `json:"total"`
		} `json:"summary"`
	} `json:"tracks"`
}

func projectTrack(in upstreamTrack) models.Track {
	var art string
	if len(in.Album.Images) > 0 {
		// The upstream orders images small to large; take the largest.
		art = in.Album.Images[len(in.Album.Images)-1].URL
	}
	return models.Track{
		ID:         in.ID,
		Name:       in.Name,
		Artist:     in.Album.Artist.Name,
		Album:      in.Album.Name,
		AlbumArt:   art,
		DurationMs: in.Duration,
		PreviewURL: in.URL,
	}
}

// Search queries the catalog for tracks matching q within a territory.
func (c *Client) Search(ctx context.Context, q, territory string, limit int) ([]models.Track, int, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	if len(territory) == 0 {
		territory = viper.GetString("music.default_territory")
	}

	query := url.Values{}
	query.Set("q", q)
	query.Set("type", "track")
	query.Set("territory", territory)
	query.Set("limit", fmt.Sprintf("%d", limit))

	var payload upstreamSearch
	if err := c.request(ctx, "/search?"+query.Encode(), &payload); err != nil {
		return nil, 0, err
	}

	tracks := lo.Map(payload.Tracks.Data, func(item upstreamTrack, idx int) models.Track {
		return projectTrack(item)
	})
	return tracks, payload.Tracks.Summary.Total, nil
}

// GetTrack looks a single track up by its catalog id.
func (c *Client) GetTrack(ctx context.Context, id, territory string) (models.Track, error) {
	if len(territory) == 0 {
		territory = viper.GetString("music.default_territory")
	}

	query := url.Values{}
	query.Set("territory", territory)

	var payload upstreamTrack
	if err := c.request(ctx, "/tracks/"+url.PathEscape(id)+"?"+query.Encode(), &payload); err != nil {
		return models.Track{}, err
	}
	return projectTrack(payload), nil
}

func (c *Client) request(ctx context.Context, path string, out any) error {
	token, err := c.Tokens.GetToken(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &UpstreamError{Status: res.StatusCode, Body: string(raw)}
	}

	return jsoniter.Unmarshal(raw, out)
}
