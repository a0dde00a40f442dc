package collection

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dhowden/tag"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/osa030/dynbox/internal/domain/track"
)

// LocalSettings represents settings for the local source.
type LocalSettings struct {
	Root        string   `mapstructure:"root" validate:"required"`
	Extensions  []string `mapstructure:"extensions" default:"[\".mp3\",\".m4a\",\".flac\",\".ogg\"]" validate:"min=1"`
	Concurrency int      `mapstructure:"concurrency" default:"8" validate:"gte=1,lte=64"`
	BatchSize   int      `mapstructure:"batch_size" default:"100" validate:"gte=1"`
}

func init() {
	Register(Factory{
		Name:        "local",
		Description: "Audio files below a directory, described by their tags",
		New: func(settings map[string]any, _ Deps) (Source, error) {
			var s LocalSettings
			if err := decodeSettings(settings, &s); err != nil {
				return nil, err
			}
			return NewLocal(s)
		},
	})
}

// Local reads the tags of the audio files below a directory.
// Track ids are file URLs of the absolute paths.
type Local struct {
	root       string
	extensions map[string]bool
	settings   LocalSettings
}

// NewLocal creates a local source.
func NewLocal(s LocalSettings) (*Local, error) {
	root, err := filepath.Abs(s.Root)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid root: %s", s.Root)
	}
	extensions := make(map[string]bool, len(s.Extensions))
	for _, ext := range s.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extensions[ext] = true
	}
	return &Local{root: root, extensions: extensions, settings: s}, nil
}

// Name returns the source name.
func (l *Local) Name() string {
	return "local"
}

// QueryTracks walks the root directory and delivers the tagged files.
// Files whose tags cannot be read are skipped.
func (l *Local) QueryTracks(ctx context.Context, emit func([]track.Track)) error {
	paths, err := l.scan()
	if err != nil {
		return err
	}
	zlog.Debug().Msgf("local files found: root=%s count=%d", l.root, len(paths))

	var mu sync.Mutex
	batch := make([]track.Track, 0, l.settings.BatchSize)
	flush := func() {
		if len(batch) > 0 {
			emit(batch)
			batch = make([]track.Track, 0, l.settings.BatchSize)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.settings.Concurrency)

	for _, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := readTrack(path)
			if err != nil {
				zlog.Debug().Msgf("skipping file: path=%s error=%v", path, err)
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			batch = append(batch, t)
			if len(batch) >= l.settings.BatchSize {
				flush()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "local scan cancelled")
	}
	flush()
	return nil
}

// scan lists the audio files below root in lexical order.
func (l *Local) scan() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && l.extensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to scan directory: %s", l.root)
	}
	return paths, nil
}

// readTrack reads the tags of one audio file.
func readTrack(path string) (track.Track, error) {
	file, err := os.Open(path)
	if err != nil {
		return track.Track{}, errors.Wrap(err, "failed to open file")
	}
	defer func() { _ = file.Close() }()

	metadata, err := tag.ReadFrom(file)
	if err != nil {
		return track.Track{}, errors.Wrap(err, "failed to read metadata")
	}

	title := metadata.Title()
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	var artists []string
	for _, artist := range []string{metadata.Artist(), metadata.AlbumArtist()} {
		if artist != "" && (len(artists) == 0 || !strings.EqualFold(artists[0], artist)) {
			artists = append(artists, artist)
		}
	}

	var genres []string
	if genre := metadata.Genre(); genre != "" {
		genres = []string{genre}
	}

	var added time.Time
	if info, err := file.Stat(); err == nil {
		added = info.ModTime()
	}

	trackNumber, _ := metadata.Track()
	discNumber, _ := metadata.Disc()
	url := "file://" + filepath.ToSlash(path)
	return track.Track{
		ID:          url,
		Name:        title,
		Artists:     artists,
		Album:       metadata.Album(),
		TrackNumber: trackNumber,
		DiscNumber:  discNumber,
		Genres:      genres,
		Year:        metadata.Year(),
		Added:       added,
		URL:         url,
	}, nil
}
