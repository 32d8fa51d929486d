package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/abelbrown/gamepulse/internal/classify"
	"github.com/abelbrown/gamepulse/internal/logging"
	"github.com/abelbrown/gamepulse/internal/otel"
	"github.com/abelbrown/gamepulse/internal/report"
	"github.com/abelbrown/gamepulse/internal/store"
	"github.com/abelbrown/gamepulse/internal/titles"
)

type analyzeOptions struct {
	name    string
	query   string
	out     string
	noFiles bool
	top     int
}

func newAnalyzeCmd(a *app) *cobra.Command {
	opts := &analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Group classified posts by game and rank the titles",
		Long: `Aggregates every classified post into one entry per game, merging
spellings that differ only in case, spacing, punctuation or word order.
Entries are ranked by mentions, then likes, then title.

The ranking is stored as a run (see 'gamepulse runs') and exported as
<name>_matched.csv, <name>_unmatched.csv and <name>_catalog.csv.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAnalyze(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.name, "name", "", "Export file prefix (default: game_analysis_YYYYMMDD_HHMMSS)")
	cmd.Flags().StringVar(&opts.query, "query", "", "Only posts fetched for this query (e.g. '#gamechallenge')")
	cmd.Flags().StringVar(&opts.out, "out", "", "Export directory (default: export dir)")
	cmd.Flags().BoolVar(&opts.noFiles, "no-files", false, "Store the run without writing CSV files")
	cmd.Flags().IntVar(&opts.top, "top", 10, "Print the top N entries")
	return cmd
}

// analysis is the result of one aggregation pass.
type analysis struct {
	run      store.Run
	entries  []store.CatalogEntry
	catalog  *titles.Catalog
	rows     []store.ClassifiedPost
	rejected []classify.Rejected
}

// analyze aggregates the classified posts for query into a new run.
func analyze(st *store.Store, query string) (*analysis, error) {
	rows, err := st.ClassifiedPosts(query)
	if err != nil {
		return nil, err
	}
	mentions, rejected := classify.Mentions(rows)
	for _, r := range rejected {
		logging.Warn("mention rejected", "post", r.PostURI, "reason", r.Reason)
	}

	cat, err := titles.Aggregate(mentions)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	label := query
	if label == "" {
		label = "all"
	}
	run := store.Run{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Label:     label,
		Posts:     len(rows),
		Mentions:  cat.TotalMentions(),
		Buckets:   cat.Len(),
	}
	return &analysis{
		run:      run,
		entries:  report.EntriesFromCatalog(run.ID, cat),
		catalog:  cat,
		rows:     rows,
		rejected: rejected,
	}, nil
}

func (a *app) runAnalyze(cmd *cobra.Command, opts *analyzeOptions) error {
	out := cmd.OutOrStdout()
	start := time.Now()

	res, err := analyze(a.store, opts.query)
	if err != nil {
		a.events.Error(otel.KindAnalyzeComplete, "analyze", err)
		return err
	}
	if len(res.rows) == 0 {
		fmt.Fprintln(out, "No classified posts. Run 'gamepulse classify' first.")
		return nil
	}

	if err := a.store.SaveRun(res.run, res.entries); err != nil {
		a.events.Error(otel.KindStoreError, "analyze", err)
		return err
	}
	a.events.Emit(otel.Event{
		Kind:  otel.KindAnalyzeComplete,
		Level: otel.LevelInfo,
		Comp:  "analyze",
		RunID: res.run.ID,
		Query: opts.query,
		Count: res.run.Buckets,
		Dur:   time.Since(start),
		Extra: map[string]any{"posts": res.run.Posts, "mentions": res.run.Mentions, "rejected": len(res.rejected)},
	})
	logging.Info("analysis stored", "run", res.run.ID, "games", res.run.Buckets, "mentions", res.run.Mentions)

	fmt.Fprintf(out, "Run %s: %s posts, %s mentions, %s games\n",
		res.run.ID, humanize.Comma(int64(res.run.Posts)),
		humanize.Comma(int64(res.run.Mentions)), humanize.Comma(int64(res.run.Buckets)))
	if len(res.rejected) > 0 {
		fmt.Fprintf(out, "%d rows rejected (see log)\n", len(res.rejected))
	}

	if !opts.noFiles {
		dir := opts.out
		if dir == "" {
			dir = a.cfg.ExportDir()
		}
		paths, err := report.WriteAnalysis(dir, opts.name, report.Rows(res.rows, res.catalog), res.entries)
		if err != nil {
			return err
		}
		a.events.Emit(otel.Event{Kind: otel.KindExportComplete, Level: otel.LevelInfo, Comp: "analyze", RunID: res.run.ID, Msg: paths.Catalog})
		fmt.Fprintf(out, "Wrote %s\n      %s\n      %s\n", paths.Matched, paths.Unmatched, paths.Catalog)
	}

	if opts.top > 0 {
		fmt.Fprintln(out)
		fmt.Fprint(out, report.RenderTable(res.entries, opts.top))
	}
	return nil
}
