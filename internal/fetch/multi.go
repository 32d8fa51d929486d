package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/gamepulse/internal/otel"
	"github.com/abelbrown/gamepulse/internal/store"
)

// Result is the outcome of fetching one source.
type Result struct {
	Source Source
	Posts  []store.Post
	Err    error
	Dur    time.Duration
}

// FetchAll fetches every source with at most concurrency requests in flight.
// Results are in source order. It errors only when every source failed.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source, concurrency int, l *otel.Logger) ([]Result, error) {
	if concurrency <= 0 {
		concurrency = 4
	}

	results := make([]Result, len(sources))
	var mu sync.Mutex
	errCount := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, src := range sources {
		g.Go(func() error {
			start := time.Now()
			posts, err := f.Fetch(gctx, src)
			results[i] = Result{Source: src, Posts: posts, Err: err, Dur: time.Since(start)}

			if err != nil {
				mu.Lock()
				errCount++
				mu.Unlock()
				l.Emit(otel.Event{Kind: otel.KindFeedError, Level: otel.LevelWarn, Comp: "feed", Query: src.Query(), Err: err.Error(), Dur: results[i].Dur})
				return nil
			}
			l.Emit(otel.Event{Kind: otel.KindFeedComplete, Level: otel.LevelInfo, Comp: "feed", Query: src.Query(), Count: len(posts), Dur: results[i].Dur})
			return nil
		})
	}
	g.Wait()

	if ctx.Err() != nil {
		return results, ctx.Err()
	}
	if errCount > 0 && errCount == len(sources) {
		return results, fmt.Errorf("all %d sources failed", errCount)
	}
	return results, nil
}
