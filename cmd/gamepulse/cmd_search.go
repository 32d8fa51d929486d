package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/abelbrown/gamepulse/internal/archive"
	"github.com/abelbrown/gamepulse/internal/bsky"
	"github.com/abelbrown/gamepulse/internal/logging"
	"github.com/abelbrown/gamepulse/internal/otel"
)

type searchOptions struct {
	tag      string
	query    string
	from     string
	to       string
	maxPages int
	sort     string
	noFiles  bool
}

func newSearchCmd(a *app) *cobra.Command {
	opts := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search Bluesky day by day and store the posts",
		Long: `Searches Bluesky for a hashtag one UTC day at a time, following result
cursors, and stores every post. Each day is also written to
posts_<tag>_<YYYYMMDD>.json under the data directory.

Requests are spaced by bluesky.delay (15s by default). With
bluesky.handle and bluesky.app_password set, searches go through an
authenticated session.

Example:
  gamepulse search --tag gamechallenge --from 2024-12-01 --to today`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSearch(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.tag, "tag", "", "Hashtag to search, without '#'")
	cmd.Flags().StringVar(&opts.query, "query", "", "Raw search query (default: #<tag>)")
	cmd.Flags().StringVar(&opts.from, "from", "yesterday", "First day (YYYY-MM-DD, today, yesterday)")
	cmd.Flags().StringVar(&opts.to, "to", "today", "End of range, exclusive")
	cmd.Flags().IntVar(&opts.maxPages, "max-pages", 0, "Page cap per day (default: bluesky.max_pages)")
	cmd.Flags().StringVar(&opts.sort, "sort", "latest", "Result order: latest or top")
	cmd.Flags().BoolVar(&opts.noFiles, "no-files", false, "Skip the per-day JSON files")
	return cmd
}

// searchQuery returns the query to send for tag, or the raw override.
func searchQuery(tag, raw string) (string, error) {
	if q := strings.TrimSpace(raw); q != "" {
		return q, nil
	}
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
	if tag == "" {
		return "", fmt.Errorf("--tag or --query is required")
	}
	return "#" + tag, nil
}

func (a *app) runSearch(cmd *cobra.Command, opts *searchOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	log := logging.WithPrefix("search")

	query, err := searchQuery(opts.tag, opts.query)
	if err != nil {
		return err
	}
	now := time.Now()
	from, err := bsky.ParseDate(opts.from, now)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to, err := bsky.ParseDate(opts.to, now)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}
	windows := bsky.DayWindows(from, to)
	if len(windows) == 0 {
		return fmt.Errorf("empty date range %s to %s", from.Format(time.DateOnly), to.Format(time.DateOnly))
	}

	maxPages := opts.maxPages
	if maxPages <= 0 {
		maxPages = a.cfg.Bluesky.MaxPages
	}

	client := bsky.NewClient(bsky.Options{
		BaseURL: a.cfg.Bluesky.BaseURL,
		PDSURL:  a.cfg.Bluesky.PDSURL,
		Timeout: a.cfg.BlueskyTimeout(),
		Delay:   a.cfg.SearchDelay(),
	})
	if a.cfg.Bluesky.Handle != "" && a.cfg.Bluesky.AppPassword != "" {
		if err := client.Login(ctx, a.cfg.Bluesky.Handle, a.cfg.Bluesky.AppPassword); err != nil {
			return fmt.Errorf("bluesky login: %w", err)
		}
		log.Info("logged in", "handle", client.Handle())
	}

	fileTag := opts.tag
	if fileTag == "" {
		fileTag = "search"
	}

	var total, added, skipped int
	start := time.Now()
	a.events.Emit(otel.Event{Kind: otel.KindSearchStart, Level: otel.LevelInfo, Comp: "search", Query: query, Count: len(windows)})

	for _, w := range windows {
		dayStart := time.Now()
		views, err := client.SearchAll(ctx, bsky.SearchParams{
			Query: query,
			Since: w.Since,
			Until: w.Until,
			Limit: a.cfg.Bluesky.PageLimit,
			Sort:  opts.sort,
		}, maxPages, func(page int, got []bsky.PostView) {
			a.events.Emit(otel.Event{Kind: otel.KindSearchPage, Level: otel.LevelDebug, Comp: "search", Query: query, Count: len(got), Extra: map[string]any{"day": w.Day(), "page": page}})
		})
		if err != nil {
			a.events.Emit(otel.Event{Kind: otel.KindSearchError, Level: otel.LevelError, Comp: "search", Query: query, Err: err.Error(), Extra: map[string]any{"day": w.Day()}})
			if ctx.Err() != nil || len(views) == 0 {
				return fmt.Errorf("search %s: %w", w.Day(), err)
			}
			log.Warn("search stopped early, keeping partial day", "day", w.Day(), "posts", len(views), "err", err)
		}

		posts, bad := bsky.FlattenAll(views, query, time.Now())
		if bad > 0 {
			log.Warn("skipped posts without uri", "day", w.Day(), "count", bad)
		}
		n, err := a.store.SavePosts(posts)
		if err != nil {
			a.events.Error(otel.KindStoreError, "search", err)
			return err
		}

		if !opts.noFiles {
			path, err := archive.WriteJSON(a.cfg.PostsDir(), archive.DayName(fileTag, w.Since), posts)
			if err != nil {
				return err
			}
			log.Debug("wrote day file", "path", path)
		}

		total += len(posts)
		added += n
		skipped += bad
		fmt.Fprintf(out, "%s  %5s posts  %5s new  (%s)\n",
			w.Since.Format(time.DateOnly), humanize.Comma(int64(len(posts))), humanize.Comma(int64(n)),
			time.Since(dayStart).Round(time.Second))
	}

	dur := time.Since(start)
	a.events.Emit(otel.Event{Kind: otel.KindSearchComplete, Level: otel.LevelInfo, Comp: "search", Query: query, Count: total, Dur: dur,
		Extra: map[string]any{"new": added, "skipped": skipped, "days": len(windows)}})
	log.Info("search complete", "query", query, "days", len(windows), "posts", total, "new", added)
	fmt.Fprintf(out, "\n%s posts over %d days, %s new\n", humanize.Comma(int64(total)), len(windows), humanize.Comma(int64(added)))
	return nil
}
