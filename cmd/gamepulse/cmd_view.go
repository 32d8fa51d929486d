package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/abelbrown/gamepulse/internal/otel"
	"github.com/abelbrown/gamepulse/internal/report"
	"github.com/abelbrown/gamepulse/internal/store"
	"github.com/abelbrown/gamepulse/internal/ui/catalog"
)

var errNoRuns = errors.New("no runs yet, run 'gamepulse analyze' first")

// resolveRun finds a run by full id or unique id prefix. Empty means latest.
func resolveRun(st *store.Store, id string) (*store.Run, error) {
	if id == "" {
		run, err := st.LatestRun()
		if err != nil {
			return nil, err
		}
		if run == nil {
			return nil, errNoRuns
		}
		return run, nil
	}

	run, err := st.GetRun(id)
	if err != nil || run != nil {
		return run, err
	}

	runs, err := st.ListRuns(0)
	if err != nil {
		return nil, err
	}
	var match *store.Run
	for i := range runs {
		if strings.HasPrefix(runs[i].ID, id) {
			if match != nil {
				return nil, fmt.Errorf("run prefix %q is ambiguous", id)
			}
			match = &runs[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("run %q not found", id)
	}
	return match, nil
}

func newTopCmd(a *app) *cobra.Command {
	var runID string
	var limit int
	var csvPath string
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the ranked games of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := resolveRun(a.store, runID)
			if err != nil {
				return err
			}
			entries, err := a.store.RunEntries(run.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s · %s · %s games\n", run.Label, humanize.Time(run.CreatedAt), humanize.Comma(int64(len(entries))))
			fmt.Fprint(out, report.RenderTable(entries, limit))

			if csvPath != "" {
				if err := report.WriteCatalog(csvPath, entries); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote %s\n", csvPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Run id or prefix (default: latest)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Entries to show (0 for all)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "Also write the ranking to this CSV file")
	return cmd
}

func newBrowseCmd(a *app) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse a run interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := resolveRun(a.store, runID)
			if err != nil {
				return err
			}
			entries, err := a.store.RunEntries(run.ID)
			if err != nil {
				return err
			}

			p := tea.NewProgram(catalog.New(*run, entries),
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
			)
			_, err = p.Run()
			return err
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Run id or prefix (default: latest)")
	return cmd
}

func newRunsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored analysis runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := a.store.ListRuns(limit)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), report.RenderRuns(runs))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Runs to show (0 for all)")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	var perDay bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show post and classification counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			posts, err := a.store.CountPosts()
			if err != nil {
				return err
			}
			classified, err := a.store.CountClassified()
			if err != nil {
				return err
			}
			matched, err := a.store.CountMatched()
			if err != nil {
				return err
			}
			failed, err := a.store.CountFailed()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Posts:       %s\n", humanize.Comma(int64(posts)))
			fmt.Fprintf(out, "Classified:  %s\n", humanize.Comma(int64(classified)))
			fmt.Fprintf(out, "  matched:   %s\n", humanize.Comma(int64(matched)))
			fmt.Fprintf(out, "  no title:  %s\n", humanize.Comma(int64(classified-matched-failed)))
			fmt.Fprintf(out, "  failed:    %s\n", humanize.Comma(int64(failed)))
			fmt.Fprintf(out, "Pending:     %s\n", humanize.Comma(int64(posts-classified)))

			if run, err := a.store.LatestRun(); err == nil && run != nil {
				fmt.Fprintf(out, "Latest run:  %s (%s, %s games)\n", run.ID[:min(8, len(run.ID))],
					humanize.Time(run.CreatedAt), humanize.Comma(int64(run.Buckets)))
			}

			if perDay {
				days, err := a.store.PostsPerDay()
				if err != nil {
					return err
				}
				fmt.Fprintln(out)
				for _, d := range days {
					fmt.Fprintf(out, "%s  %6s\n", d.Day, humanize.Comma(int64(d.Count)))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&perDay, "days", true, "Also list posts per day")
	return cmd
}

type eventsOptions struct {
	tail    int
	kind    string
	level   string
	comp    string
	run     string
	asJSON  bool
	summary bool
}

func newEventsCmd(a *app) *cobra.Command {
	opts := &eventsOptions{}
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the pipeline event log",
		Long: `Prints the last events from gamepulse.events.jsonl.

Examples:
  gamepulse events --kind classify --level warn
  gamepulse events --tail 200 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(a.cfg.EventLogPath())
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(cmd.OutOrStdout(), "No events yet.")
				return nil
			}
			if err != nil {
				return err
			}
			defer f.Close()

			events, err := otel.ReadTail(f, opts.tail, otel.Filter{
				KindPrefix: opts.kind,
				MinLevel:   otel.Level(strings.ToLower(opts.level)),
				Comp:       opts.comp,
				RunID:      opts.run,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.summary {
				for _, kc := range otel.Summarize(events) {
					fmt.Fprintf(out, "%-20s %6s  %s warn+\n", kc.Kind, humanize.Comma(int64(kc.Count)), humanize.Comma(int64(kc.Errors)))
				}
				return nil
			}
			if opts.asJSON {
				enc := json.NewEncoder(out)
				for _, ev := range events {
					if err := enc.Encode(ev); err != nil {
						return err
					}
				}
				return nil
			}
			for _, ev := range events {
				fmt.Fprintln(out, otel.Format(ev))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&opts.tail, "tail", "n", 50, "Number of events")
	cmd.Flags().StringVar(&opts.kind, "kind", "", "Kind prefix (search, classify.error, ...)")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level (debug, info, warn, error)")
	cmd.Flags().StringVar(&opts.comp, "comp", "", "Component")
	cmd.Flags().StringVar(&opts.run, "run", "", "Run id")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print raw JSONL")
	cmd.Flags().BoolVar(&opts.summary, "summary", false, "Count the selected events by kind")
	return cmd
}
