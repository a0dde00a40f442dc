package bias

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/golang-lru/v2/expirable"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/dynbox/internal/app/dynamic"
	"github.com/osa030/dynbox/internal/domain/track"
)

const (
	// DefaultMatchCacheTTL is how long a computed match set stays valid.
	DefaultMatchCacheTTL = 3 * time.Minute
	matchCacheSize       = 8
)

// Tag fields.
const (
	FieldTitle      = "title"
	FieldArtist     = "artist"
	FieldAlbum      = "album"
	FieldGenre      = "genre"
	FieldYear       = "year"
	FieldDuration   = "duration" // seconds
	FieldPopularity  = "popularity"
	FieldTrackNumber = "track_number"
	FieldAdded       = "added" // date the track entered the collection
	FieldAny         = "any"   // title, artist or album
)

// Conditions.
const (
	CondEquals   = "equals"
	CondContains = "contains"
	CondLess     = "less"
	CondGreater  = "greater"
	CondBetween  = "between" // inclusive
	CondOlder    = "older"   // added longer ago than the value
	CondNewer    = "newer"   // added more recently than the value
)

// TagMatchSettings represents settings for the tag match bias.
type TagMatchSettings struct {
	Field     string  `mapstructure:"field" default:"any" validate:"oneof=title artist album genre year duration popularity track_number added any"`
	Condition string  `mapstructure:"condition" default:"contains" validate:"oneof=equals contains less greater between older newer"`
	Value     string  `mapstructure:"value"`
	Min       float64 `mapstructure:"min"`
	Max       float64 `mapstructure:"max"`
	Invert    bool    `mapstructure:"invert"`
}

func init() {
	Register(Factory{
		Name:        "tag_match",
		Description: "Matches tracks by a condition on one of their tags",
		New: func(settings map[string]any, _ []dynamic.Bias, deps Deps) (dynamic.Bias, error) {
			var s TagMatchSettings
			if err := decodeSettings(settings, &s); err != nil {
				return nil, err
			}
			filter, err := NewTagFilter(s.Field, s.Condition, s.Value, s.Min, s.Max)
			if err != nil {
				return nil, err
			}
			return NewTagMatch(filter, s.Invert, deps.CacheTTL), nil
		},
	})
}

// TagFilter is a condition on one tag of a track.
type TagFilter struct {
	Field     string
	Condition string
	Value     string
	number    float64
	min, max  float64
	age       time.Duration
	now       func() time.Time
}

func isNumericField(field string) bool {
	switch field {
	case FieldYear, FieldDuration, FieldPopularity, FieldTrackNumber:
		return true
	}
	return false
}

// parseAge parses a duration such as "720h", "30d" or "2w".
func parseAge(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	for suffix, unit := range map[string]time.Duration{"d": 24 * time.Hour, "w": 7 * 24 * time.Hour} {
		if n, ok := strings.CutSuffix(value, suffix); ok {
			days, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return 0, err
			}
			return time.Duration(days * float64(unit)), nil
		}
	}
	return time.ParseDuration(value)
}

// NewTagFilter creates a filter. Text fields support equals and contains;
// numeric fields support equals, less, greater and between; the added
// date supports older and newer with an age such as "30d".
func NewTagFilter(field, condition, value string, minValue, maxValue float64) (TagFilter, error) {
	f := TagFilter{Field: field, Condition: condition, Value: value, min: minValue, max: maxValue, now: time.Now}

	if field == FieldAdded {
		if condition != CondOlder && condition != CondNewer {
			return TagFilter{}, errors.Newf("condition %s is not supported for field %s", condition, field)
		}
		age, err := parseAge(value)
		if err != nil || age < 0 {
			return TagFilter{}, errors.Newf("invalid age: field=%s value=%q", field, value)
		}
		f.age = age
		return f, nil
	}

	if isNumericField(field) {
		switch condition {
		case CondBetween:
			if minValue > maxValue {
				return TagFilter{}, errors.Newf("invalid range: min=%v max=%v", minValue, maxValue)
			}
		case CondEquals, CondLess, CondGreater:
			n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil {
				return TagFilter{}, errors.Wrapf(err, "invalid numeric value: field=%s value=%q", field, value)
			}
			f.number = n
		default:
			return TagFilter{}, errors.Newf("condition %s is not supported for field %s", condition, field)
		}
		return f, nil
	}

	switch condition {
	case CondEquals, CondContains:
		if value == "" {
			return TagFilter{}, errors.Newf("value is required: field=%s", field)
		}
	default:
		return TagFilter{}, errors.Newf("condition %s is not supported for field %s", condition, field)
	}
	return f, nil
}

// Matches reports whether t satisfies the filter.
func (f TagFilter) Matches(t *track.Track) bool {
	if f.Field == FieldAdded {
		return f.matchAge(t.Added)
	}
	if isNumericField(f.Field) {
		return f.matchNumber(f.numberOf(t))
	}

	switch f.Field {
	case FieldTitle:
		return f.matchText(t.Name)
	case FieldAlbum:
		return f.matchText(t.Album)
	case FieldArtist:
		return f.matchAny(t.Artists)
	case FieldGenre:
		return f.matchAny(t.Genres)
	case FieldAny:
		return f.matchText(t.Name) || f.matchText(t.Album) || f.matchAny(t.Artists)
	}
	return false
}

func (f TagFilter) numberOf(t *track.Track) float64 {
	switch f.Field {
	case FieldYear:
		return float64(t.Year)
	case FieldDuration:
		return t.Duration.Seconds()
	case FieldTrackNumber:
		return float64(t.TrackNumber)
	default:
		return float64(t.Popularity)
	}
}

func (f TagFilter) matchNumber(n float64) bool {
	switch f.Condition {
	case CondEquals:
		return n == f.number
	case CondLess:
		return n < f.number
	case CondGreater:
		return n > f.number
	case CondBetween:
		return n >= f.min && n <= f.max
	}
	return false
}

// matchAge compares when a track was added against the filter age.
// Tracks without a known time never match.
func (f TagFilter) matchAge(added time.Time) bool {
	if added.IsZero() {
		return false
	}
	cutoff := f.now().Add(-f.age)
	if f.Condition == CondOlder {
		return added.Before(cutoff)
	}
	return added.After(cutoff)
}

func (f TagFilter) matchText(s string) bool {
	if f.Condition == CondEquals {
		return strings.EqualFold(s, f.Value)
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(f.Value))
}

func (f TagFilter) matchAny(values []string) bool {
	for _, v := range values {
		if f.matchText(v) {
			return true
		}
	}
	return false
}

// TagMatch matches the tracks that satisfy a tag filter, or the ones that
// don't when inverted. The match set of a universe is computed in the
// background and cached.
type TagMatch struct {
	filter TagFilter
	invert bool
	cache  *expirable.LRU[*dynamic.Universe, dynamic.TrackSet]

	mu       sync.Mutex
	universe *dynamic.Universe // last universe seen
}

// NewTagMatch creates a tag match bias. ttl <= 0 selects DefaultMatchCacheTTL.
func NewTagMatch(filter TagFilter, invert bool, ttl time.Duration) *TagMatch {
	if ttl <= 0 {
		ttl = DefaultMatchCacheTTL
	}
	return &TagMatch{
		filter: filter,
		invert: invert,
		cache:  expirable.NewLRU[*dynamic.Universe, dynamic.TrackSet](matchCacheSize, nil, ttl),
	}
}

// Name returns the bias type name.
func (b *TagMatch) Name() string {
	return "tag_match"
}

// MatchingTracks returns the cached match set of the universe, or computes
// it in the background and delivers it through req.Ready.
func (b *TagMatch) MatchingTracks(ctx context.Context, req dynamic.Request) dynamic.TrackSet {
	b.mu.Lock()
	b.universe = req.Universe
	b.mu.Unlock()

	if set, ok := b.cache.Get(req.Universe); ok {
		return set.Clone()
	}

	ready := req.Ready
	go func() {
		set, complete := b.compute(ctx, req.Universe)
		if complete {
			b.cache.Add(req.Universe, set)
		}
		if ready != nil {
			ready(set.Clone())
		}
	}()
	return dynamic.Outstanding()
}

// compute evaluates the filter over u. It reports false when ctx ended
// before every track was evaluated.
func (b *TagMatch) compute(ctx context.Context, u *dynamic.Universe) (dynamic.TrackSet, bool) {
	start := time.Now()
	set := dynamic.NewTrackSet(u, b.invert)
	complete := true

	u.Each(func(i int, t *track.Track) bool {
		if i%1024 == 0 && ctx.Err() != nil {
			complete = false
			return false
		}
		if b.filter.Matches(t) {
			if b.invert {
				set.Subtract(t.ID)
			} else {
				set.Add(t.ID)
			}
		}
		return true
	})

	zlog.Debug().Msgf("tag match computed: field=%s condition=%s matched=%d universe=%d elapsed=%v",
		b.filter.Field, b.filter.Condition, set.TrackCount(), u.Len(), time.Since(start))
	return set, complete
}

// TrackMatches reports whether the track at position satisfies the bias.
// It uses the cached match set when one exists and evaluates the filter
// on the track otherwise.
func (b *TagMatch) TrackMatches(position int, playlist []string, _ int) bool {
	if position < 0 || position >= len(playlist) {
		return false
	}
	id := playlist[position]

	b.mu.Lock()
	u := b.universe
	b.mu.Unlock()

	if set, ok := b.cache.Peek(u); ok {
		return set.Contains(id)
	}
	t, ok := u.Track(id)
	if !ok {
		return b.invert
	}
	return b.filter.Matches(&t) != b.invert
}
