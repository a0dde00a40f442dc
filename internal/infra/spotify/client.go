// Package spotify provides a client for the Spotify API.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/dynbox/internal/domain/track"
)

const (
	playlistPageSize = 100
	savedPageSize    = 50
	addBatchSize     = 100
)

// Scopes are the OAuth scopes dynbox needs.
var Scopes = []string{
	spotifyauth.ScopePlaylistModifyPublic,
	spotifyauth.ScopePlaylistModifyPrivate,
	spotifyauth.ScopePlaylistReadPrivate,
	spotifyauth.ScopeUserLibraryRead,
}

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
}

// NewAuthenticator returns an authenticator for the authorization code flow.
func NewAuthenticator(clientID, clientSecret, redirectURL string) *spotifyauth.Authenticator {
	return spotifyauth.New(
		spotifyauth.WithRedirectURL(redirectURL),
		spotifyauth.WithClientID(clientID),
		spotifyauth.WithClientSecret(clientSecret),
		spotifyauth.WithScopes(Scopes...),
	)
}

// New creates a new Spotify client that refreshes its token automatically.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(Scopes...),
	)
	httpClient := auth.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	return newClient(spotify.New(httpClient), cfg.Market), nil
}

func newClient(client *spotify.Client, market string) *Client {
	if market == "" {
		market = "JP"
	}
	return &Client{
		client:     client,
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// newWithBaseURL targets a custom API endpoint.
func newWithBaseURL(httpClient *http.Client, baseURL, market string) *Client {
	return newClient(spotify.New(httpClient, spotify.WithBaseURL(baseURL)), market)
}

// StreamPlaylistTracks delivers the tracks of a playlist page by page.
func (c *Client) StreamPlaylistTracks(ctx context.Context, playlistURL string, emit func([]track.Track)) error {
	playlistID := extractPlaylistID(playlistURL)
	if playlistID == "" {
		return errors.New("invalid playlist URL")
	}

	for offset := 0; ; offset += playlistPageSize {
		var page *spotify.PlaylistItemPage
		err := c.retry(ctx, func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
				spotify.Limit(playlistPageSize),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "failed to get playlist items: playlist=%s offset=%d", playlistID, offset)
		}

		batch := make([]track.Track, 0, len(page.Items))
		for _, item := range page.Items {
			// Episodes are skipped
			if item.Track.Track != nil && item.Track.Track.ID != "" {
				batch = append(batch, c.convertTrack(item.Track.Track, item.AddedAt))
			}
		}
		if len(batch) > 0 {
			emit(batch)
		}

		if len(page.Items) < playlistPageSize || offset+len(page.Items) >= int(page.Total) {
			return nil
		}
	}
}

// StreamSavedTracks delivers the current user's saved tracks page by page.
// limit caps the number of tracks (0 = all).
func (c *Client) StreamSavedTracks(ctx context.Context, limit int, emit func([]track.Track)) error {
	delivered := 0
	for offset := 0; ; offset += savedPageSize {
		var page *spotify.SavedTrackPage
		err := c.retry(ctx, func() error {
			p, err := c.client.CurrentUsersTracks(ctx,
				spotify.Limit(savedPageSize),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "failed to get saved tracks: offset=%d", offset)
		}

		batch := make([]track.Track, 0, len(page.Tracks))
		for i := range page.Tracks {
			if limit > 0 && delivered+len(batch) >= limit {
				break
			}
			batch = append(batch, c.convertTrack(&page.Tracks[i].FullTrack, page.Tracks[i].AddedAt))
		}
		if len(batch) > 0 {
			emit(batch)
			delivered += len(batch)
		}

		if (limit > 0 && delivered >= limit) ||
			len(page.Tracks) < savedPageSize ||
			offset+len(page.Tracks) >= int(page.Total) {
			return nil
		}
	}
}

// CreatePlaylist creates a new public playlist for the current user.
func (c *Client) CreatePlaylist(ctx context.Context, name, description string) (string, error) {
	user, err := c.client.CurrentUser(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to get current user")
	}

	var playlist *spotify.FullPlaylist
	err = c.retry(ctx, func() error {
		p, err := c.client.CreatePlaylistForUser(ctx, user.ID, name, description, true, false)
		if err != nil {
			return err
		}
		playlist = p
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to create playlist")
	}

	return string(playlist.ID), nil
}

// AddTracksToPlaylist adds tracks to a playlist.
// trackIDs can be Spotify IDs, URLs, or URIs.
func (c *Client) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	ids := make([]spotify.ID, len(trackIDs))
	for i, trackID := range trackIDs {
		ids[i] = spotify.ID(extractTrackID(trackID))
	}

	for i := 0; i < len(ids); i += addBatchSize {
		batch := ids[i:min(i+addBatchSize, len(ids))]
		err := c.retry(ctx, func() error {
			_, err := c.client.AddTracksToPlaylist(ctx, spotify.ID(playlistID), batch...)
			return err
		})
		if err != nil {
			return errors.Wrap(err, "failed to add tracks to playlist")
		}
	}

	return nil
}

// GetPlaylistURL returns the Spotify URL for a playlist.
func (c *Client) GetPlaylistURL(playlistID string) string {
	return fmt.Sprintf("https://open.spotify.com/playlist/%s", playlistID)
}

// GetTrackURL returns the Spotify URL for a track.
func (c *Client) GetTrackURL(trackID string) string {
	return fmt.Sprintf("https://open.spotify.com/track/%s", trackID)
}

// convertTrack converts a Spotify FullTrack to domain Track.
// addedAt is the RFC 3339 time the track was added to the playlist or library.
func (c *Client) convertTrack(t *spotify.FullTrack, addedAt string) track.Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	// A missing or malformed time leaves Added unknown.
	added, _ := time.Parse(time.RFC3339, addedAt)

	return track.Track{
		ID:          string(t.ID),
		Name:        t.Name,
		Artists:     artists,
		Album:       t.Album.Name,
		TrackNumber: int(t.TrackNumber),
		DiscNumber:  int(t.DiscNumber),
		Year:        releaseYear(t.Album.ReleaseDate),
		Duration:    time.Duration(t.Duration) * time.Millisecond,
		Popularity:  int(t.Popularity),
		Added:       added,
		URL:         c.GetTrackURL(string(t.ID)),
	}
}

// releaseYear parses the year of "YYYY", "YYYY-MM" or "YYYY-MM-DD".
func releaseYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}

// retry retries an operation with linear backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "retry cancelled")
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractPlaylistID extracts the playlist ID from a Spotify playlist URL or URI.
func extractPlaylistID(input string) string {
	return extractID(input, "playlist")
}

// extractTrackID extracts the track ID from a Spotify track URL or URI.
func extractTrackID(input string) string {
	return extractID(input, "track")
}

// extractID handles "spotify:<kind>:ID", "https://open.spotify.com[/intl-xx]/<kind>/ID?..."
// and bare IDs.
func extractID(input, kind string) string {
	input = strings.TrimSpace(input)
	if rest, ok := strings.CutPrefix(input, "spotify:"+kind+":"); ok {
		return rest
	}

	marker := "/" + kind + "/"
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, marker) {
		parts := strings.Split(input, marker)
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	return input
}
