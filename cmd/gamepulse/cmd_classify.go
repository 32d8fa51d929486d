package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/abelbrown/gamepulse/internal/classify"
	"github.com/abelbrown/gamepulse/internal/config"
	"github.com/abelbrown/gamepulse/internal/logging"
)

type classifyOptions struct {
	limit       int
	provider    string
	retryFailed bool
	concurrency int
	quiet       bool
}

func newClassifyCmd(a *app) *cobra.Command {
	opts := &classifyOptions{}
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Ask the classifier which game each unclassified post is about",
		Long: `Classifies every stored post that has no classification yet and stores
the answer as title;year;developer. A post the model cannot answer for is
stored as None with the error, so later runs skip it unless
--retry-failed is given.

Providers:
  ollama      local Ollama model (ollama.model, default mistral)
  dictionary  offline matcher over classify.known_games_file
  auto        classify.provider if reachable, else any available one`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runClassify(cmd, opts)
		},
	}
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Classify at most N posts")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "ollama, dictionary or auto (default: classify.provider)")
	cmd.Flags().BoolVar(&opts.retryFailed, "retry-failed", false, "Also retry posts whose classification failed")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Requests in flight (default: classify.concurrency)")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Only print the summary")
	return cmd
}

// buildProviders registers every classifier the config can construct.
// The dictionary provider is only added when its file loads.
func buildProviders(cfg *config.Config) (*classify.ProviderManager, error) {
	pm := classify.NewProviderManager()
	pm.AddProvider(classify.NewOllamaProvider(classify.OllamaOptions{
		Endpoint:    cfg.Ollama.Endpoint,
		Model:       cfg.Ollama.Model,
		Temperature: cfg.Ollama.Temperature,
		Timeout:     cfg.OllamaTimeout(),
	}))

	if cfg.Classify.KnownGamesFile != "" {
		known, err := classify.LoadKnownGames(cfg.Classify.KnownGamesFile)
		if err != nil {
			return nil, err
		}
		pm.AddProvider(classify.NewDictionaryProvider(known))
	}
	pm.SetPreferred(cfg.Classify.Provider)
	return pm, nil
}

// pickProvider returns the named provider, requiring it to be available.
// "auto" takes the configured provider when available, else any other.
func pickProvider(ctx context.Context, pm *classify.ProviderManager, name string) (classify.Provider, error) {
	if name == "auto" {
		if p := pm.GetAvailable(ctx); p != nil {
			return p, nil
		}
		return nil, fmt.Errorf("%w: none of %v", classify.ErrUnavailable, pm.Names())
	}
	p := pm.GetByName(name)
	if p == nil {
		return nil, fmt.Errorf("unknown or unconfigured provider %q (have %v)", name, pm.Names())
	}
	if !p.Available(ctx) {
		return nil, fmt.Errorf("%w: %s", classify.ErrUnavailable, name)
	}
	return p, nil
}

func (a *app) runClassify(cmd *cobra.Command, opts *classifyOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	pm, err := buildProviders(a.cfg)
	if err != nil {
		return err
	}
	name := opts.provider
	if name == "" {
		name = a.cfg.Classify.Provider
	}
	p, err := pickProvider(ctx, pm, name)
	if err != nil {
		return err
	}

	posts, err := a.store.PostsNeedingClassification(opts.limit, opts.retryFailed)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		fmt.Fprintln(out, "Nothing to classify.")
		return nil
	}

	concurrency := opts.concurrency
	if concurrency <= 0 {
		concurrency = a.cfg.Classify.Concurrency
	}
	logging.Info("classify start", "provider", p.Name(), "posts", len(posts), "concurrency", concurrency)

	r := classify.NewRunner(p, a.store, a.events, concurrency)
	if !opts.quiet {
		r.OnProgress = progressPrinter(out)
	}

	sum, err := r.Run(ctx, posts)
	fmt.Fprintf(out, "\nProcessed %s posts: %s matched, %s failed (%s)\n",
		humanize.Comma(int64(sum.Processed)), humanize.Comma(int64(sum.Matched)),
		humanize.Comma(int64(sum.Failed)), sum.Dur.Round(1e6))
	return err
}

func progressPrinter(w io.Writer) func(classify.Progress) {
	return func(pr classify.Progress) {
		switch {
		case pr.Err != nil:
			fmt.Fprintf(w, "[%d/%d] %s  error: %v\n", pr.Done, pr.Total, pr.Post.URI, pr.Err)
		case pr.Guess.IsNone():
			fmt.Fprintf(w, "[%d/%d] %s  -\n", pr.Done, pr.Total, pr.Post.URI)
		default:
			fmt.Fprintf(w, "[%d/%d] %s  %s\n", pr.Done, pr.Total, pr.Post.URI, pr.Guess.Title)
		}
	}
}
