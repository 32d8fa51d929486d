package classify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/gamepulse/internal/logging"
	"github.com/abelbrown/gamepulse/internal/otel"
	"github.com/abelbrown/gamepulse/internal/store"
)

// postTimeout bounds one classification call.
const postTimeout = 3 * time.Minute

// Summary counts the outcome of a run.
type Summary struct {
	Processed int
	Matched   int
	Failed    int
	Dur       time.Duration
}

// Progress is reported after each post.
type Progress struct {
	Done  int
	Total int
	Post  store.Post
	Guess Guess
	Err   error
}

// Runner classifies posts and stores the results.
type Runner struct {
	provider    Provider
	store       *store.Store
	events      *otel.Logger
	concurrency int

	// OnProgress, if set, is called after every post. Calls are serialized.
	OnProgress func(Progress)
}

// NewRunner creates a Runner. events may be nil.
func NewRunner(p Provider, s *store.Store, events *otel.Logger, concurrency int) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Runner{provider: p, store: s, events: events, concurrency: concurrency}
}

// Run classifies posts with at most concurrency calls in flight. A failed
// classification is stored as "None" with its error and the run goes on.
// Store errors and cancellation stop the run.
func (r *Runner) Run(ctx context.Context, posts []store.Post) (Summary, error) {
	start := time.Now()
	model := ""
	if m, ok := r.provider.(interface{ Model() string }); ok {
		model = m.Model()
	}

	r.events.Emit(otel.Event{
		Kind:  otel.KindClassifyStart,
		Level: otel.LevelInfo,
		Comp:  "classify",
		Count: len(posts),
		Msg:   r.provider.Name() + "/" + model,
	})

	var (
		done, matched, failed atomic.Int64
		progressMu            sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, p := range posts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			callStart := time.Now()
			callCtx, cancel := context.WithTimeout(gctx, postTimeout)
			guess, resp, err := r.provider.Classify(callCtx, p)
			cancel()

			// Parent cancellation is not a classification failure
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}

			c := store.Classification{
				PostURI:      p.URI,
				Title:        guess.Title,
				ReleaseYear:  guess.Year,
				Developer:    guess.Developer,
				Provider:     r.provider.Name(),
				Model:        resp.Model,
				RawResponse:  resp.Content,
				ClassifiedAt: time.Now(),
			}
			if c.Model == "" {
				c.Model = model
			}
			if err != nil {
				c.Title = store.NoTitleLabel
				c.ReleaseYear = ""
				c.Developer = ""
				c.Error = err.Error()
				failed.Add(1)
				logging.Warn("classify: post failed", "post", p.URI, "error", err)
				r.events.Emit(otel.Event{Kind: otel.KindClassifyError, Level: otel.LevelWarn, Comp: "classify", Post: p.URI, Err: err.Error(), Dur: time.Since(callStart)})
			} else {
				if !guess.IsNone() {
					matched.Add(1)
				}
				r.events.Emit(otel.Event{Kind: otel.KindClassifyPost, Level: otel.LevelDebug, Comp: "classify", Post: p.URI, Title: guess.Title, Dur: time.Since(callStart)})
			}

			if saveErr := r.store.SaveClassification(c); saveErr != nil {
				r.events.Error(otel.KindStoreError, "classify", saveErr)
				return saveErr
			}

			n := done.Add(1)
			if r.OnProgress != nil {
				progressMu.Lock()
				r.OnProgress(Progress{Done: int(n), Total: len(posts), Post: p, Guess: guess, Err: err})
				progressMu.Unlock()
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	sum := Summary{
		Processed: int(done.Load()),
		Matched:   int(matched.Load()),
		Failed:    int(failed.Load()),
		Dur:       time.Since(start),
	}

	ev := otel.Event{Kind: otel.KindClassifyComplete, Level: otel.LevelInfo, Comp: "classify", Count: sum.Processed, Dur: sum.Dur,
		Extra: map[string]any{"matched": sum.Matched, "failed": sum.Failed}}
	if err != nil && !errors.Is(err, context.Canceled) {
		ev.Level = otel.LevelError
		ev.Err = err.Error()
	}
	r.events.Emit(ev)

	return sum, err
}
