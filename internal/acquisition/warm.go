package acquisition

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammed-shakir/pvgrid-cache/internal/cache"
	"github.com/mohammed-shakir/pvgrid-cache/internal/core/observability"
	"github.com/mohammed-shakir/pvgrid-cache/internal/gridevents"
)

// HandleGridReady loads a grid persisted by some replica into the local
// summary tier. It never computes: a grid this replica cannot load from the
// cache or blob store is left for the next request.
func (e *Engine) HandleGridReady(ctx context.Context, ev gridevents.Event) error {
	req := Request{AzimuthRes: ev.AzimuthRes, SlopeRes: ev.SlopeRes, Lat: ev.Lat, Lon: ev.Lon, Year: ev.Year}
	if _, err := req.Validate(); err != nil {
		e.logger.WarnContext(ctx, "ignoring grid event with invalid request", "err", err)
		return nil
	}
	key := req.Key()
	name := key.String()
	if name != ev.CacheKey {
		e.logger.WarnContext(ctx, "ignoring grid event with mismatched key", "event_key", ev.CacheKey, "key", name)
		return nil
	}
	if _, ok := e.summaries.Get(name); ok {
		return nil
	}

	a, err := e.store.Load(ctx, key)
	switch {
	case err == nil:
		e.remember(Result{Summary: summarizeArtifact(a), Source: SourceCache})
		observability.ObserveCacheLookup("warm", true)
		return nil
	case errors.Is(err, cache.ErrNotFound), isCorrupt(err):
	default:
		return fmt.Errorf("warm %s: %w", name, err)
	}

	if a, ok := e.loadBlob(ctx, key); ok {
		e.remember(Result{Summary: summarizeArtifact(a), Source: SourceBlob})
		observability.ObserveCacheLookup("warm", true)
		return nil
	}
	observability.ObserveCacheLookup("warm", false)
	e.logger.DebugContext(ctx, "grid event for a grid not reachable here", "key", name)
	return nil
}
