package bias

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/golang-lru/v2/expirable"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/dynbox/internal/app/dynamic"
	"github.com/osa030/dynbox/internal/domain/track"
)

// Last.fm bias modes.
const (
	ModeSimilarArtist = "similar_artist" // artists similar to the previous track's artist
	ModeSimilarTrack  = "similar_track"  // tracks similar to the previous track
	ModeTag           = "tag"            // top tracks of a tag
	ModeChart         = "chart"          // global chart
)

// DefaultLastFMCacheTTL is how long Last.fm answers are reused.
const DefaultLastFMCacheTTL = time.Hour

const lastFMCacheSize = 512

// LastFMSettings represents settings for the lastfm bias.
type LastFMSettings struct {
	Mode     string  `mapstructure:"mode" default:"similar_artist" validate:"oneof=similar_artist similar_track tag chart"`
	Tag      string  `mapstructure:"tag" validate:"required_if=Mode tag"`
	Limit    int     `mapstructure:"limit" default:"50" validate:"gte=1,lte=100"`
	MinMatch float64 `mapstructure:"min_match" validate:"gte=0,lte=1"`
}

func init() {
	Register(Factory{
		Name:        "lastfm",
		Description: "Matches tracks related to the previous track, a tag or the chart on Last.fm",
		New: func(settings map[string]any, _ []dynamic.Bias, deps Deps) (dynamic.Bias, error) {
			var s LastFMSettings
			if err := decodeSettings(settings, &s); err != nil {
				return nil, err
			}
			return NewLastFM(deps.LastFM, s, deps.CacheTTL)
		},
	})
}

// LastFM matches tracks using Last.fm similarity and popularity data.
// When Last.fm cannot answer, every track matches.
type LastFM struct {
	client   LastFMClient
	settings LastFMSettings
	cache    *expirable.LRU[string, map[string]struct{}]
	universe atomic.Pointer[dynamic.Universe]
}

// NewLastFM creates a lastfm bias. ttl <= 0 selects DefaultLastFMCacheTTL.
func NewLastFM(client LastFMClient, settings LastFMSettings, ttl time.Duration) (*LastFM, error) {
	if client == nil {
		return nil, errors.New("last.fm client is required")
	}
	if settings.Mode == ModeTag && settings.Tag == "" {
		return nil, errors.New("tag is required in tag mode")
	}
	if ttl <= 0 {
		ttl = DefaultLastFMCacheTTL
	}
	return &LastFM{
		client:   client,
		settings: settings,
		cache:    expirable.NewLRU[string, map[string]struct{}](lastFMCacheSize, nil, ttl),
	}, nil
}

// Name returns the bias type name.
func (b *LastFM) Name() string {
	return "lastfm"
}

func (b *LastFM) similar() bool {
	return b.settings.Mode == ModeSimilarArtist || b.settings.Mode == ModeSimilarTrack
}

// seed returns the cache key for the query that answers for a track
// following prev. ok is false when no query applies.
func (b *LastFM) seed(u *dynamic.Universe, prev string) (key string, seedTrack track.Track, ok bool) {
	switch b.settings.Mode {
	case ModeTag:
		return "tag:" + strings.ToLower(b.settings.Tag), track.Track{}, true
	case ModeChart:
		return "chart", track.Track{}, true
	}

	if prev == "" {
		return "", track.Track{}, false
	}
	t, found := u.Track(prev)
	if !found || t.MainArtist() == "" {
		return "", track.Track{}, false
	}
	if b.settings.Mode == ModeSimilarArtist {
		return "artist:" + strings.ToLower(t.MainArtist()), t, true
	}
	return "track:" + songKey(&t), t, true
}

// MatchingTracks returns the tracks related to the previous track (or to
// the configured tag or chart). Answers not cached yet are fetched in the
// background and delivered through req.Ready.
func (b *LastFM) MatchingTracks(ctx context.Context, req dynamic.Request) dynamic.TrackSet {
	b.universe.Store(req.Universe)

	prev := ""
	if n := len(req.Playlist); n > 0 {
		prev = req.Playlist[n-1]
	}
	key, seedTrack, ok := b.seed(req.Universe, prev)
	if !ok {
		return dynamic.NewTrackSet(req.Universe, true)
	}
	if keys, ok := b.cache.Get(key); ok {
		return b.matching(req.Universe, keys)
	}

	ready := req.Ready
	go func() {
		keys, err := b.fetch(ctx, seedTrack)
		if err != nil {
			zlog.Warn().Err(err).Msgf("last.fm query failed, accepting all tracks: mode=%s key=%q", b.settings.Mode, key)
			if ready != nil {
				ready(dynamic.NewTrackSet(req.Universe, true))
			}
			return
		}
		b.cache.Add(key, keys)
		if ready != nil {
			ready(b.matching(req.Universe, keys))
		}
	}()
	return dynamic.Outstanding()
}

// fetch queries Last.fm and returns the match keys of the answer.
func (b *LastFM) fetch(ctx context.Context, seedTrack track.Track) (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	limit := b.settings.Limit

	switch b.settings.Mode {
	case ModeSimilarArtist:
		artists, err := b.client.GetSimilarArtists(ctx, seedTrack.MainArtist(), limit)
		if err != nil {
			return nil, err
		}
		for _, a := range artists {
			if a.Match >= b.settings.MinMatch {
				keys[strings.ToLower(strings.TrimSpace(a.Name))] = struct{}{}
			}
		}
	case ModeSimilarTrack:
		tracks, err := b.client.GetSimilarTracks(ctx, seedTrack.Name, seedTrack.MainArtist(), limit)
		if err != nil {
			return nil, err
		}
		for _, t := range tracks {
			if t.Match >= b.settings.MinMatch {
				keys[nameKey(t.Artist, t.Name)] = struct{}{}
			}
		}
	case ModeTag:
		tracks, err := b.client.GetTopTracks(ctx, b.settings.Tag, limit)
		if err != nil {
			return nil, err
		}
		for _, t := range tracks {
			keys[nameKey(t.Artist, t.Name)] = struct{}{}
		}
	case ModeChart:
		tracks, err := b.client.GetChartTopTracks(ctx, limit)
		if err != nil {
			return nil, err
		}
		for _, t := range tracks {
			keys[nameKey(t.Artist, t.Name)] = struct{}{}
		}
	}
	return keys, nil
}

// matches reports whether t is covered by the match keys.
func (b *LastFM) matches(t *track.Track, keys map[string]struct{}) bool {
	if b.settings.Mode == ModeSimilarArtist {
		for _, artist := range t.Artists {
			if _, ok := keys[strings.ToLower(strings.TrimSpace(artist))]; ok {
				return true
			}
		}
		return false
	}
	_, ok := keys[songKey(t)]
	return ok
}

func (b *LastFM) matching(u *dynamic.Universe, keys map[string]struct{}) dynamic.TrackSet {
	set := dynamic.NewTrackSet(u, false)
	u.Each(func(_ int, t *track.Track) bool {
		if b.matches(t, keys) {
			set.Add(t.ID)
		}
		return true
	})
	return set
}

// TrackMatches reports whether the track at position is related to the
// track before it. Without a cached answer every track matches.
func (b *LastFM) TrackMatches(position int, playlist []string, _ int) bool {
	if position < 0 || position >= len(playlist) {
		return true
	}
	prev := ""
	if b.similar() && position > 0 {
		prev = playlist[position-1]
	}

	u := b.universe.Load()
	key, _, ok := b.seed(u, prev)
	if !ok {
		return true
	}
	keys, ok := b.cache.Peek(key)
	if !ok {
		return true
	}
	t, ok := u.Track(playlist[position])
	if !ok {
		return false
	}
	return b.matches(&t, keys)
}
