// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Solver     SolverConfig     `yaml:"solver"`
	Playlist   PlaylistConfig   `yaml:"playlist"`
	Collection CollectionConfig `yaml:"collection"`
	Bias       BiasConfig       `yaml:"bias"`
	Spotify    SpotifyConfig    `yaml:"spotify"`
	LastFM     LastFMConfig     `yaml:"lastfm"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// SolverConfig represents the bias solver search settings.
type SolverConfig struct {
	AllowDuplicates   bool `yaml:"allow_duplicates"`
	TimeBudgetMs      int  `yaml:"time_budget_ms" default:"5000" validate:"gte=1"`
	MaxTries          int  `yaml:"max_tries" default:"5" validate:"gte=1"`
	FirstSlotMinTries int  `yaml:"first_slot_min_tries" default:"1" validate:"gte=1"`
	Workers           int  `yaml:"workers" default:"1" validate:"gte=1,lte=64"`
}

// TimeBudget returns the search budget as a duration.
func (c SolverConfig) TimeBudget() time.Duration {
	return time.Duration(c.TimeBudgetMs) * time.Millisecond
}

// PlaylistConfig represents the generated playlist settings.
type PlaylistConfig struct {
	Name             string   `yaml:"name" default:"dynbox"`
	Description      string   `yaml:"description" default:"Generated by dynbox"`
	Count            int      `yaml:"count" default:"20" validate:"gte=0,lte=1000"`
	Context          []string `yaml:"context"`
	ContextSize      int      `yaml:"context_size" default:"10" validate:"gte=0"`
	RequestTimeoutMs int      `yaml:"request_timeout_ms" default:"30000" validate:"gte=0"`
}

// RequestTimeout returns the per-request timeout (0 = none).
func (c PlaylistConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// CollectionConfig represents the universe sources.
type CollectionConfig struct {
	Sources []SourceConfig `yaml:"sources" validate:"required,min=1,dive"`
}

// SourceConfig represents a single collection source configuration.
type SourceConfig struct {
	Type     string         `yaml:"type" validate:"required"`
	Settings map[string]any `yaml:"settings"`
}

// BiasConfig represents a bias node; composite biases carry children.
type BiasConfig struct {
	Type     string         `yaml:"type" default:"random" validate:"required"`
	Settings map[string]any `yaml:"settings"`
	Biases   []BiasConfig   `yaml:"biases" validate:"dive"`
}

// SpotifyConfig represents Spotify API configuration.
// Credentials are only required when a Spotify feature is used.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// Validate checks that credentials are present.
func (c SpotifyConfig) Validate() error {
	switch {
	case c.ClientID == "":
		return errors.New("spotify ClientID is required")
	case c.ClientSecret == "":
		return errors.New("spotify ClientSecret is required")
	case c.RefreshToken == "":
		return errors.New("spotify RefreshToken is required")
	}
	return nil
}

// LastFMConfig represents Last.fm API configuration.
type LastFMConfig struct {
	APIKey            string  `yaml:"api_key"`
	RequestsPerSecond float64 `yaml:"requests_per_second" default:"5" validate:"gt=0"`
	CacheTTLSec       int     `yaml:"cache_ttl_sec" default:"3600" validate:"gte=0"`
}

// CacheTTL returns the response cache lifetime.
func (c LastFMConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSec) * time.Second
}

// MetricsConfig represents the Prometheus exporter configuration.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		c.LastFM.APIKey = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.UsesSource("spotify_playlist") || c.UsesSource("spotify_saved") {
		if err := c.Spotify.Validate(); err != nil {
			return errors.Wrap(err, "spotify source configured")
		}
	}
	if c.Bias.Uses("lastfm") && c.LastFM.APIKey == "" {
		return errors.New("lastfm bias configured but lastfm.api_key is empty")
	}

	return nil
}

// UsesSource reports whether a collection source of the given type is configured.
func (c *Config) UsesSource(sourceType string) bool {
	for _, s := range c.Collection.Sources {
		if s.Type == sourceType {
			return true
		}
	}
	return false
}

// Uses reports whether the bias tree contains a bias of the given type.
func (b BiasConfig) Uses(biasType string) bool {
	if b.Type == biasType {
		return true
	}
	for _, child := range b.Biases {
		if child.Uses(biasType) {
			return true
		}
	}
	return false
}
