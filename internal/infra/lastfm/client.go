// Package lastfm provides a client for the Last.fm API.
package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/golang-lru/v2/expirable"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://ws.audioscrobbler.com/2.0/"
	defaultCacheSize = 1024
	defaultCacheTTL  = time.Hour
)

// Client is a Last.fm API client.
// Responses are cached by request and outgoing calls are rate limited.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *expirable.LRU[string, []byte]
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey            string
	RequestsPerSecond float64       // 0 = unlimited
	CacheTTL          time.Duration // 0 = one hour
	CacheSize         int           // 0 = 1024 responses
}

// SimilarTrack represents a similar track from Last.fm.
type SimilarTrack struct {
	Name   string
	Artist string
	Match  float64
}

// SimilarArtist represents a similar artist from Last.fm.
type SimilarArtist struct {
	Name  string
	Match float64
}

// TopTrack represents a top track for a tag or chart.
type TopTrack struct {
	Name   string
	Artist string
}

// GetSimilarResponse represents the response from track.getSimilar API.
type GetSimilarResponse struct {
	SimilarTracks struct {
		Track []struct {
			Name   string      `json:"name"`
			Match  json.Number `json:"match"`
			Artist struct {
				Name string `json:"name"`
			} `json:"artist"`
		} `json:"track"`
	} `json:"similartracks"`
}

// GetSimilarArtistsResponse represents the response from artist.getSimilar API.
type GetSimilarArtistsResponse struct {
	SimilarArtists struct {
		Artist []struct {
			Name  string      `json:"name"`
			Match json.Number `json:"match"`
		} `json:"artist"`
	} `json:"similarartists"`
}

// GetTopTracksResponse represents the response from tag.getTopTracks and
// chart.getTopTracks API.
type GetTopTracksResponse struct {
	Tracks struct {
		Track []struct {
			Name   string `json:"name"`
			Artist struct {
				Name string `json:"name"`
			} `json:"artist"`
		} `json:"track"`
	} `json:"tracks"`
}

// LastFMError represents an error response from Last.fm API.
type LastFMError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(limit, 1),
		cache:      expirable.NewLRU[string, []byte](size, nil, ttl),
	}, nil
}

// GetSimilarTracks retrieves similar tracks from Last.fm based on track name and artist.
// Reference: https://www.last.fm/api/show/track.getSimilar
func (c *Client) GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]SimilarTrack, error) {
	if trackName == "" || artistName == "" {
		return nil, errors.New("track name and artist name are required")
	}

	params := url.Values{}
	params.Set("method", "track.getSimilar")
	params.Set("artist", artistName)
	params.Set("track", trackName)
	params.Set("limit", fmt.Sprintf("%d", clampLimit(limit, 50)))
	params.Set("autocorrect", "1")

	var response GetSimilarResponse
	if err := c.get(ctx, params, &response); err != nil {
		return nil, err
	}

	similarTracks := make([]SimilarTrack, 0, len(response.SimilarTracks.Track))
	for _, t := range response.SimilarTracks.Track {
		match, _ := t.Match.Float64()
		similarTracks = append(similarTracks, SimilarTrack{
			Name:   t.Name,
			Artist: t.Artist.Name,
			Match:  match,
		})
	}
	return similarTracks, nil
}

// GetSimilarArtists retrieves artists similar to artistName.
// Reference: https://www.last.fm/api/show/artist.getSimilar
func (c *Client) GetSimilarArtists(ctx context.Context, artistName string, limit int) ([]SimilarArtist, error) {
	if artistName == "" {
		return nil, errors.New("artist name is required")
	}

	params := url.Values{}
	params.Set("method", "artist.getSimilar")
	params.Set("artist", artistName)
	params.Set("limit", fmt.Sprintf("%d", clampLimit(limit, 50)))
	params.Set("autocorrect", "1")

	var response GetSimilarArtistsResponse
	if err := c.get(ctx, params, &response); err != nil {
		return nil, err
	}

	artists := make([]SimilarArtist, 0, len(response.SimilarArtists.Artist))
	for _, a := range response.SimilarArtists.Artist {
		match, _ := a.Match.Float64()
		artists = append(artists, SimilarArtist{Name: a.Name, Match: match})
	}
	return artists, nil
}

// GetTopTracks retrieves top tracks for a tag from Last.fm.
// Reference: https://www.last.fm/api/show/tag.getTopTracks
func (c *Client) GetTopTracks(ctx context.Context, tagName string, limit int) ([]TopTrack, error) {
	if tagName == "" {
		return nil, errors.New("tag name is required")
	}

	params := url.Values{}
	params.Set("method", "tag.getTopTracks")
	params.Set("tag", tagName)
	params.Set("limit", fmt.Sprintf("%d", clampLimit(limit, 20)))

	return c.topTracks(ctx, params)
}

// GetChartTopTracks retrieves global top tracks from Last.fm charts.
// Reference: https://www.last.fm/api/show/chart.getTopTracks
func (c *Client) GetChartTopTracks(ctx context.Context, limit int) ([]TopTrack, error) {
	params := url.Values{}
	params.Set("method", "chart.getTopTracks")
	params.Set("limit", fmt.Sprintf("%d", clampLimit(limit, 20)))

	return c.topTracks(ctx, params)
}

func (c *Client) topTracks(ctx context.Context, params url.Values) ([]TopTrack, error) {
	var response GetTopTracksResponse
	if err := c.get(ctx, params, &response); err != nil {
		return nil, err
	}

	tracks := make([]TopTrack, 0, len(response.Tracks.Track))
	for _, t := range response.Tracks.Track {
		tracks = append(tracks, TopTrack{
			Name:   t.Name,
			Artist: t.Artist.Name,
		})
	}
	return tracks, nil
}

// get performs one API call and decodes the JSON body into out.
// Successful bodies are cached by request parameters.
func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	params.Set("format", "json")
	cacheKey := params.Encode()

	body, ok := c.cache.Get(cacheKey)
	if ok {
		zlog.Debug().Msgf("last.fm cache hit: method=%s", params.Get("method"))
	} else {
		var err error
		body, err = c.fetch(ctx, params)
		if err != nil {
			return err
		}
	}

	// Check for Last.fm API errors
	var apiError LastFMError
	if err := json.Unmarshal(body, &apiError); err == nil && apiError.Error != 0 {
		return errors.Errorf("last.fm API error %d: %s", apiError.Error, apiError.Message)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}

	if !ok {
		c.cache.Add(cacheKey, body)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter wait failed")
	}

	query := url.Values{}
	for k, v := range params {
		query[k] = v
	}
	query.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, errors.Newf("last.fm server error: status=%d", resp.StatusCode)
	}
	return body, nil
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return min(limit, 100)
}
