// Package main provides the dynbox command line tool.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/dynbox/internal/app/bias"
	"github.com/osa030/dynbox/internal/app/biased"
	"github.com/osa030/dynbox/internal/app/collection"
	"github.com/osa030/dynbox/internal/app/dynamic"
	"github.com/osa030/dynbox/internal/app/jobs"
	"github.com/osa030/dynbox/internal/app/notification"
	"github.com/osa030/dynbox/internal/domain/playlist"
	"github.com/osa030/dynbox/internal/infra/config"
	"github.com/osa030/dynbox/internal/infra/lastfm"
	"github.com/osa030/dynbox/internal/infra/logger"
	"github.com/osa030/dynbox/internal/infra/metrics"
	"github.com/osa030/dynbox/internal/infra/spotify"
)

var (
	app        = kingpin.New("dynbox", "Dynamic playlist generator")
	configPath = app.Flag("config", "Path to config file").Default("config/dynbox.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stderr)").String()

	generateCmd     = app.Command("generate", "Generate a playlist (default)").Default()
	generateCount   = generateCmd.Flag("count", "Number of tracks to generate (default: playlist.count)").Int()
	generateContext = generateCmd.Flag("context", "Track ID the playlist continues from (repeatable)").Strings()
	generateName    = generateCmd.Flag("name", "Playlist name (default: playlist.name)").String()
	generatePush    = generateCmd.Flag("push", "Create the playlist on Spotify").Bool()

	listBiasesCmd  = app.Command("list-biases", "List available biases and exit")
	listSourcesCmd = app.Command("list-sources", "List available collection sources and exit")

	authCmd          = app.Command("auth", "Obtain a Spotify refresh token")
	authClientID     = authCmd.Flag("client-id", "Spotify Client ID").Envar("SPOTIFY_CLIENT_ID").Required().String()
	authClientSecret = authCmd.Flag("client-secret", "Spotify Client Secret").Envar("SPOTIFY_CLIENT_SECRET").Required().String()
	authPort         = authCmd.Flag("port", "Callback server port").Default("8888").Int()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	switch command {
	case listBiasesCmd.FullCommand():
		printBiases(os.Stdout)
		return
	case listSourcesCmd.FullCommand():
		printSources(os.Stdout)
		return
	case authCmd.FullCommand():
		if err := runAuth(*authClientID, *authClientSecret, *authPort); err != nil {
			fmt.Fprintf(os.Stderr, "auth failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	loggerConfig := logger.Config{
		Output: "stderr",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	closer, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func() { _ = closer.Close() }()

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Error().Msgf("Failed to load config: %v", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Generation failed: %v", err)
		_ = closer.Close()
		os.Exit(1)
	}
}

// run executes the generate command. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	if *generatePush {
		if err := cfg.Spotify.Validate(); err != nil {
			return errors.Wrap(err, "--push needs spotify credentials")
		}
	}

	var spotifyClient *spotify.Client
	if *generatePush || cfg.UsesSource("spotify_playlist") || cfg.UsesSource("spotify_saved") {
		c, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return errors.Wrap(err, "failed to create Spotify client")
		}
		spotifyClient = c
	}

	var biasDeps bias.Deps
	if cfg.Bias.Uses("lastfm") {
		c, err := lastfm.New(lastfm.Config{
			APIKey:            cfg.LastFM.APIKey,
			RequestsPerSecond: cfg.LastFM.RequestsPerSecond,
			CacheTTL:          cfg.LastFM.CacheTTL(),
		})
		if err != nil {
			return errors.Wrap(err, "failed to create Last.fm client")
		}
		biasDeps.LastFM = c
	}

	b, err := bias.Build(cfg.Bias, biasDeps)
	if err != nil {
		return errors.Wrap(err, "invalid bias config")
	}

	var sourceDeps collection.Deps
	if spotifyClient != nil {
		sourceDeps.Spotify = spotifyClient
	}
	sources, err := collection.Build(cfg.Collection.Sources, sourceDeps)
	if err != nil {
		return errors.Wrap(err, "invalid collection config")
	}

	registry := prometheus.NewRegistry()
	solverMetrics, err := metrics.NewSolverMetrics(registry)
	if err != nil {
		return errors.Wrap(err, "failed to register metrics")
	}
	if cfg.Metrics.Addr != "" {
		exporter := metrics.NewServer(cfg.Metrics.Addr, registry)
		exporter.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := exporter.Shutdown(shutdownCtx); err != nil {
				zlog.Error().Msgf("Failed to shutdown metrics exporter: %v", err)
			}
		}()
	}

	progress := notification.NewChanStream(256)
	defer progress.Close()
	go logProgress(progress.C())
	notifier := notification.NewManager()
	defer notifier.Close()
	notifier.Subscribe(progress)

	queue := jobs.NewQueue(cfg.Solver.Workers, cfg.Solver.Workers)
	defer queue.Close()

	pl, err := biased.New(b, sources, queue,
		biased.Config{
			ContextSize:    cfg.Playlist.ContextSize,
			RequestTimeout: cfg.Playlist.RequestTimeout(),
		},
		biased.WithMetrics(solverMetrics),
		biased.WithNotifier(notifier),
		biased.WithSolverOptions(
			dynamic.WithAllowDuplicates(cfg.Solver.AllowDuplicates),
			dynamic.WithTimeBudget(cfg.Solver.TimeBudget()),
			dynamic.WithMaxTries(cfg.Solver.MaxTries),
			dynamic.WithFirstSlotMinTries(cfg.Solver.FirstSlotMinTries),
		),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create playlist")
	}

	seed := cfg.Playlist.Context
	if len(*generateContext) > 0 {
		seed = *generateContext
	}
	pl.AddPlayed(seed...)

	// Abort the running solver on SIGINT/SIGTERM; its partial result is kept.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			zlog.Info().Msg("Received signal, aborting generation...")
			pl.RequestAbort()
		}
	}()

	count := resolveCount(*generateCount, cfg.Playlist.Count)
	zlog.Info().Msgf("Generating playlist: count=%d context=%d bias=%s", count, len(pl.Context()), b.Name())

	result, err := pl.Generate(ctx, count)
	if err != nil {
		return err
	}

	out := playlist.Playlist{
		Name:        firstNonEmpty(*generateName, cfg.Playlist.Name),
		Description: cfg.Playlist.Description,
		Requested:   count,
		Context:     seed,
		Tracks:      result.Tracks,
	}

	if *generatePush {
		if err := push(ctx, spotifyClient, &out); err != nil {
			return err
		}
	}

	printPlaylist(os.Stdout, &out, result)
	return nil
}

// push creates the playlist on Spotify.
func push(ctx context.Context, client *spotify.Client, pl *playlist.Playlist) error {
	ids := pushableIDs(pl.TrackIDs())
	if skipped := len(pl.Tracks) - len(ids); skipped > 0 {
		zlog.Warn().Msgf("Skipping tracks that are not on Spotify: count=%d", skipped)
	}
	if len(ids) == 0 {
		return errors.New("no Spotify tracks to push")
	}

	id, err := client.CreatePlaylist(ctx, pl.Name, pl.Description)
	if err != nil {
		return err
	}
	if err := client.AddTracksToPlaylist(ctx, id, ids); err != nil {
		return err
	}
	pl.ID = id
	pl.URL = client.GetPlaylistURL(id)
	zlog.Info().Msgf("Playlist pushed: id=%s tracks=%d", id, len(ids))
	return nil
}

// pushableIDs drops ids that do not name Spotify tracks.
func pushableIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !strings.Contains(id, "://") || strings.HasPrefix(id, "https://open.spotify.com/") {
			out = append(out, id)
		}
	}
	return out
}

func resolveCount(flag, configured int) int {
	if flag > 0 {
		return flag
	}
	return configured
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// logProgress logs solver progress in steps of ten percent.
func logProgress(ch <-chan notification.Notification) {
	last, total := 0, dynamic.TotalSteps
	for n := range ch {
		switch n.Event.Type {
		case dynamic.EventTotalSteps:
			last, total = 0, max(n.Event.Value, 1)
		case dynamic.EventIncrementProgress:
			if step := n.Event.Value * 10 / total; step > last {
				last = step
				zlog.Debug().Msgf("Solver progress: id=%s percent=%d", n.Event.SolverID, n.Event.Value*100/total)
			}
		case dynamic.EventCompleted, dynamic.EventFailed:
			zlog.Debug().Msgf("Solver finished: id=%s event=%s", n.Event.SolverID, n.Event.Type)
		}
	}
}

// printPlaylist writes the generated playlist.
func printPlaylist(w io.Writer, pl *playlist.Playlist, result biased.Result) {
	fmt.Fprintf(w, "%s (%d/%d tracks, %d artists, %s)\n",
		pl.Name, len(pl.Tracks), pl.Requested, pl.DistinctArtists(), pl.TotalDuration().Round(time.Second))
	if !result.Success {
		fmt.Fprintln(w, "  generation was aborted, the playlist is partial")
	} else if pl.Underfilled() {
		fmt.Fprintln(w, "  not enough matching tracks for the requested length")
	}
	for i, t := range pl.Tracks {
		fmt.Fprintf(w, "%3d. %s - %s\n", i+1, strings.Join(t.Artists, ", "), t.Name)
	}
	if pl.URL != "" {
		fmt.Fprintf(w, "\n%s\n", pl.URL)
	}
}

// printBiases prints available biases.
func printBiases(w io.Writer) {
	fmt.Fprintln(w, "Available Biases:")
	registered := bias.GetRegistered()
	for _, name := range bias.Names() {
		f := registered[name]
		kind := "leaf"
		if f.Composite {
			kind = "composite"
		}
		fmt.Fprintf(w, "  %-16s - %s [%s]\n", f.Name, f.Description, kind)
	}
}

// printSources prints available collection sources.
func printSources(w io.Writer) {
	fmt.Fprintln(w, "Available Sources:")
	registered := collection.GetRegistered()
	for _, name := range collection.Names() {
		f := registered[name]
		fmt.Fprintf(w, "  %-18s - %s\n", f.Name, f.Description)
	}
}
