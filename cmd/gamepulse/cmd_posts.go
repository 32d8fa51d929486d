package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/abelbrown/gamepulse/internal/archive"
	"github.com/abelbrown/gamepulse/internal/bsky"
	"github.com/abelbrown/gamepulse/internal/fetch"
	"github.com/abelbrown/gamepulse/internal/logging"
	"github.com/abelbrown/gamepulse/internal/otel"
	"github.com/abelbrown/gamepulse/internal/store"
)

func newFeedCmd(a *app) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "feed HANDLE...",
		Short: "Import recent posts from Bluesky profile RSS feeds",
		Long: `Reads https://bsky.app/profile/<handle>/rss for each handle and stores
the posts. RSS carries no engagement counts, so these posts have zero likes.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources := fetch.SourcesForHandles(args)
			if len(sources) == 0 {
				return fmt.Errorf("no valid handles")
			}

			f := fetch.NewFetcher(a.cfg.BlueskyTimeout())
			results, err := f.FetchAll(cmd.Context(), sources, concurrency, a.events)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, r := range results {
				if r.Err != nil {
					logging.Warn("feed failed", "handle", r.Source.Handle, "err", r.Err)
					fmt.Fprintf(out, "%-30s  error: %v\n", r.Source.Handle, r.Err)
					continue
				}
				n, err := a.store.SavePosts(r.Posts)
				if err != nil {
					a.events.Error(otel.KindStoreError, "feed", err)
					return err
				}
				fmt.Fprintf(out, "%-30s  %4d posts  %4d new\n", r.Source.Handle, len(r.Posts), n)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Feeds fetched in parallel")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import PATTERN",
		Short: "Load JSON or CSV post files into the database",
		Long: `Loads every file matching PATTERN (a glob, relative to the posts
directory unless absolute) in file-name order. Both the JSON
{"posts": [...]} layout and the id,author,text,posted_at,likes,hashtags
CSV layout are accepted.

Example:
  gamepulse import 'posts_gamechallenge_202412*.json'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, pattern := a.cfg.PostsDir(), args[0]
			if filepath.IsAbs(pattern) || strings.ContainsRune(pattern, filepath.Separator) {
				dir, pattern = filepath.Split(pattern)
			}

			posts, err := archive.Load(dir, pattern)
			if err != nil {
				return err
			}
			n, err := a.store.SavePosts(posts)
			if err != nil {
				a.events.Error(otel.KindStoreError, "import", err)
				return err
			}
			logging.Info("import complete", "pattern", args[0], "posts", len(posts), "new", n)
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %s posts, %s new\n",
				humanize.Comma(int64(len(posts))), humanize.Comma(int64(n)))
			return nil
		},
	}
}

type exportPostsOptions struct {
	query  string
	since  string
	until  string
	limit  int
	format string
	out    string
	name   string
}

func newPostsCmd(a *app) *cobra.Command {
	opts := &exportPostsOptions{}
	cmd := &cobra.Command{
		Use:   "posts",
		Short: "Export stored posts to a JSON or CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := store.PostFilter{Query: opts.query, Limit: opts.limit}
			now := time.Now()
			if opts.since != "" {
				t, err := bsky.ParseDate(opts.since, now)
				if err != nil {
					return fmt.Errorf("--since: %w", err)
				}
				f.Since = t
			}
			if opts.until != "" {
				t, err := bsky.ParseDate(opts.until, now)
				if err != nil {
					return fmt.Errorf("--until: %w", err)
				}
				f.Until = t
			}

			posts, err := a.store.GetPosts(f)
			if err != nil {
				return err
			}

			dir := opts.out
			if dir == "" {
				dir = a.cfg.ExportDir()
			}
			var path string
			switch opts.format {
			case "json":
				path, err = archive.WriteJSON(dir, opts.name, posts)
			case "csv":
				path, err = archive.WriteCSV(dir, opts.name, posts)
			default:
				return fmt.Errorf("unknown format %q (json or csv)", opts.format)
			}
			if err != nil {
				return err
			}

			a.events.Emit(otel.Event{Kind: otel.KindExportComplete, Level: otel.LevelInfo, Comp: "posts", Query: opts.query, Count: len(posts), Msg: path})
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s posts to %s\n", humanize.Comma(int64(len(posts))), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.query, "query", "", "Only posts fetched for this query")
	cmd.Flags().StringVar(&opts.since, "since", "", "Created at or after")
	cmd.Flags().StringVar(&opts.until, "until", "", "Created before")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Maximum posts")
	cmd.Flags().StringVar(&opts.format, "format", "json", "json or csv")
	cmd.Flags().StringVar(&opts.out, "out", "", "Output directory (default: export dir)")
	cmd.Flags().StringVar(&opts.name, "name", "", "File name (default: posts_YYYYMMDD_HHMMSS.<ext>)")
	return cmd
}
