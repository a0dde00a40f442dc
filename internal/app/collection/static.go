package collection

import (
	"context"
	"time"

	"github.com/osa030/dynbox/internal/domain/track"
)

// StaticTrack is a track listed in the configuration.
type StaticTrack struct {
	ID          string   `mapstructure:"id" validate:"required"`
	Name        string   `mapstructure:"name"`
	Artists     []string `mapstructure:"artists"`
	Album       string   `mapstructure:"album"`
	TrackNumber int      `mapstructure:"track_number" validate:"gte=0"`
	DiscNumber  int      `mapstructure:"disc_number" validate:"gte=0"`
	Genres      []string `mapstructure:"genres"`
	Year        int      `mapstructure:"year"`
	DurationSec int      `mapstructure:"duration_sec" validate:"gte=0"`
	Popularity  int      `mapstructure:"popularity" validate:"gte=0,lte=100"`
	Added       string   `mapstructure:"added" validate:"omitempty,datetime=2006-01-02"`
}

// StaticSettings represents settings for the static source.
type StaticSettings struct {
	Tracks    []StaticTrack `mapstructure:"tracks" validate:"required,min=1,dive"`
	BatchSize int           `mapstructure:"batch_size" default:"100" validate:"gte=1"`
}

func init() {
	Register(Factory{
		Name:        "static",
		Description: "Tracks listed in the configuration file",
		New: func(settings map[string]any, _ Deps) (Source, error) {
			var s StaticSettings
			if err := decodeSettings(settings, &s); err != nil {
				return nil, err
			}
			tracks := make([]track.Track, len(s.Tracks))
			for i, st := range s.Tracks {
				tracks[i] = track.Track{
					ID:          st.ID,
					Name:        st.Name,
					Artists:     st.Artists,
					Album:       st.Album,
					TrackNumber: st.TrackNumber,
					DiscNumber:  st.DiscNumber,
					Genres:      st.Genres,
					Year:        st.Year,
					Duration:    time.Duration(st.DurationSec) * time.Second,
					Popularity:  st.Popularity,
				}
				if st.Added != "" {
					// Validated above.
					tracks[i].Added, _ = time.Parse(time.DateOnly, st.Added)
				}
			}
			return NewStatic(tracks, s.BatchSize), nil
		},
	})
}

// Static serves a fixed list of tracks.
type Static struct {
	tracks    []track.Track
	batchSize int
}

// NewStatic creates a static source delivering tracks in batches of
// batchSize (<= 0 delivers everything at once).
func NewStatic(tracks []track.Track, batchSize int) *Static {
	if batchSize <= 0 {
		batchSize = max(len(tracks), 1)
	}
	return &Static{tracks: tracks, batchSize: batchSize}
}

// Name returns the source name.
func (s *Static) Name() string {
	return "static"
}

// QueryTracks delivers the tracks in batches.
func (s *Static) QueryTracks(ctx context.Context, emit func([]track.Track)) error {
	for i := 0; i < len(s.tracks); i += s.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := make([]track.Track, min(s.batchSize, len(s.tracks)-i))
		copy(batch, s.tracks[i:])
		emit(batch)
	}
	return nil
}
