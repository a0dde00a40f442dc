package collection

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/dynbox/internal/domain/track"
)

// Chain streams several sources one after another. A track id delivered
// by an earlier source is not delivered again.
type Chain struct {
	sources []Source
}

// NewChain creates a new source chain.
func NewChain(sources ...Source) *Chain {
	return &Chain{sources: sources}
}

// Name returns the chain name.
func (c *Chain) Name() string {
	return "chain"
}

// Sources returns the chained sources.
func (c *Chain) Sources() []Source {
	return c.sources
}

// QueryTracks streams all sources. A failing source is skipped; the query
// fails only when every source failed or ctx ended.
func (c *Chain) QueryTracks(ctx context.Context, emit func([]track.Track)) error {
	if len(c.sources) == 0 {
		return errors.New("no collection sources")
	}

	seen := make(map[string]bool)
	failed := 0
	total := 0

	for i, src := range c.sources {
		zlog.Debug().Msgf("querying source: index=%d total=%d source=%s", i+1, len(c.sources), src.Name())

		count := 0
		err := src.QueryTracks(ctx, func(batch []track.Track) {
			fresh := make([]track.Track, 0, len(batch))
			for _, t := range batch {
				if t.ID == "" || seen[t.ID] {
					continue
				}
				seen[t.ID] = true
				fresh = append(fresh, t)
			}
			if len(fresh) > 0 {
				count += len(fresh)
				emit(fresh)
			}
		})
		total += count

		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "collection query cancelled")
		}
		if err != nil {
			failed++
			zlog.Warn().Msgf("source failed, trying next: source=%s delivered=%d error=%v", src.Name(), count, err)
			continue
		}

		zlog.Info().Msgf("source delivered tracks: source=%s count=%d total_so_far=%d", src.Name(), count, total)
	}

	if failed == len(c.sources) {
		return errors.New("all collection sources failed")
	}
	return nil
}
