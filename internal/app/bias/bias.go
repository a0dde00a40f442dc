// Package bias provides the bias implementations the solver draws its
// candidates from, a registry of bias factories and a builder for bias
// trees described in the configuration.
package bias

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/dynbox/internal/app/dynamic"
	"github.com/osa030/dynbox/internal/infra/config"
	"github.com/osa030/dynbox/internal/infra/lastfm"
)

// LastFMClient is the subset of the Last.fm API used by the lastfm bias.
type LastFMClient interface {
	GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.SimilarTrack, error)
	GetSimilarArtists(ctx context.Context, artistName string, limit int) ([]lastfm.SimilarArtist, error)
	GetTopTracks(ctx context.Context, tagName string, limit int) ([]lastfm.TopTrack, error)
	GetChartTopTracks(ctx context.Context, limit int) ([]lastfm.TopTrack, error)
}

// Deps carries the services biases may depend on.
type Deps struct {
	LastFM   LastFMClient
	CacheTTL time.Duration // lifetime of cached bias results (0 = default)
}

// Factory creates biases of one type.
type Factory struct {
	Name        string
	Description string
	Composite   bool // takes child biases
	New         func(settings map[string]any, children []dynamic.Bias, deps Deps) (dynamic.Bias, error)
}

// registry holds registered bias factories.
var registry = make(map[string]Factory)

// Register registers a bias factory.
func Register(f Factory) {
	registry[f.Name] = f
}

// GetRegistered returns all registered bias factories.
func GetRegistered() map[string]Factory {
	return registry
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, bool) {
	f, ok := registry[name]
	return f, ok
}

// Names returns the registered bias type names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build creates the bias tree described by cfg.
func Build(cfg config.BiasConfig, deps Deps) (dynamic.Bias, error) {
	f, ok := Lookup(cfg.Type)
	if !ok {
		return nil, errors.Newf("unknown bias type: %s", cfg.Type)
	}
	if !f.Composite && len(cfg.Biases) > 0 {
		return nil, errors.Newf("bias %s does not take child biases", cfg.Type)
	}

	children := make([]dynamic.Bias, 0, len(cfg.Biases))
	for i, childCfg := range cfg.Biases {
		child, err := Build(childCfg, deps)
		if err != nil {
			return nil, errors.Wrapf(err, "bias %s child %d", cfg.Type, i+1)
		}
		children = append(children, child)
	}

	b, err := f.New(cfg.Settings, children, deps)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create bias %s", cfg.Type)
	}
	return b, nil
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
