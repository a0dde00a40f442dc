// Package collection provides the track sources a solve draws its
// universe of candidate tracks from.
package collection

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/dynbox/internal/domain/track"
	"github.com/osa030/dynbox/internal/infra/config"
)

// Source is a collection of tracks that can be streamed in batches.
type Source interface {
	// QueryTracks delivers every track of the source through emit.
	// emit is never called concurrently.
	QueryTracks(ctx context.Context, emit func([]track.Track)) error

	// Name returns the source type name.
	Name() string
}

// SpotifyClient defines the Spotify operations needed by the Spotify sources.
type SpotifyClient interface {
	StreamPlaylistTracks(ctx context.Context, playlistURL string, emit func([]track.Track)) error
	StreamSavedTracks(ctx context.Context, limit int, emit func([]track.Track)) error
}

// Deps carries the services sources may depend on.
type Deps struct {
	Spotify SpotifyClient
}

// Factory creates sources of one type.
type Factory struct {
	Name        string
	Description string
	New         func(settings map[string]any, deps Deps) (Source, error)
}

// registry holds registered source factories.
var registry = make(map[string]Factory)

// Register registers a source factory.
func Register(f Factory) {
	registry[f.Name] = f
}

// GetRegistered returns all registered source factories.
func GetRegistered() map[string]Factory {
	return registry
}

// Names returns the registered source type names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build creates a chain over the configured sources.
func Build(cfgs []config.SourceConfig, deps Deps) (*Chain, error) {
	if len(cfgs) == 0 {
		return nil, errors.New("no collection sources configured")
	}

	sources := make([]Source, 0, len(cfgs))
	for i, cfg := range cfgs {
		f, ok := registry[cfg.Type]
		if !ok {
			return nil, errors.Newf("unsupported source type: %s (source index %d)", cfg.Type, i)
		}
		zlog.Debug().Msgf("creating collection source: index=%d type=%s settings=%+v", i+1, cfg.Type, cfg.Settings)

		src, err := f.New(cfg.Settings, deps)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create source (index %d, type %s)", i, cfg.Type)
		}
		sources = append(sources, src)
	}

	return NewChain(sources...), nil
}

// decodeSettings decodes a settings map into out, applies defaults and
// validates the result.
func decodeSettings(settings map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
