package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abelbrown/gamepulse/internal/config"
	"github.com/abelbrown/gamepulse/internal/logging"
	"github.com/abelbrown/gamepulse/internal/otel"
	"github.com/abelbrown/gamepulse/internal/store"
)

// app holds what every subcommand shares for one invocation.
type app struct {
	cfg    *config.Config
	store  *store.Store
	events *otel.Logger
}

// rootOptions are the persistent flags.
type rootOptions struct {
	configPath string
	dataDir    string
	verbose    bool
}

// newRootCmd builds the command tree around a. The caller closes a after
// Execute returns, whether or not a command failed.
func newRootCmd(a *app) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "gamepulse",
		Short: "Rank the video games people post about on Bluesky",
		Long: `gamepulse collects Bluesky posts for a hashtag challenge, asks a local
Ollama model which game each post is about, and builds a deduplicated,
ranked catalog of the titles people mentioned.

Typical flow:
  gamepulse search --tag gamechallenge --from 2024-12-01 --to today
  gamepulse classify
  gamepulse analyze
  gamepulse top`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd, opts)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (default: ~/.gamepulse/config.yaml)")
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Data directory (overrides config)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Mirror logs to stderr")

	root.AddCommand(
		newSearchCmd(a),
		newFeedCmd(a),
		newImportCmd(a),
		newPostsCmd(a),
		newClassifyCmd(a),
		newAnalyzeCmd(a),
		newTopCmd(a),
		newBrowseCmd(a),
		newRunsCmd(a),
		newStatsCmd(a),
		newEventsCmd(a),
		newCheckCmd(a),
		newConfigCmd(a, opts),
	)
	return root
}

// setup loads config and opens the log, event log and store.
func (a *app) setup(cmd *cobra.Command, opts *rootOptions) error {
	path := opts.configPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	a.cfg = cfg

	if err := logging.Init(logging.Options{Dir: cfg.LogDir(), Level: cfg.Logging.Level, Verbose: opts.verbose}); err != nil {
		return err
	}

	events, err := otel.OpenFile(cfg.EventLogPath())
	if err != nil {
		logging.Warn("event log unavailable", "path", cfg.EventLogPath(), "err", err)
		events = otel.NewNullLogger()
	}
	a.events = events
	a.events.Emit(otel.Event{Kind: otel.KindStartup, Level: otel.LevelInfo, Comp: "main", Msg: cmd.CommandPath()})

	if !needsStore(cmd) {
		return nil
	}
	st, err := store.Open(cfg.DBPath())
	if err != nil {
		a.events.Error(otel.KindStoreError, "main", err)
		return fmt.Errorf("open database: %w", err)
	}
	a.store = st
	logging.Debug("setup complete", "data_dir", cfg.DataDir, "command", cmd.Name())
	return nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
		a.store = nil
	}
	if a.events != nil {
		a.events.Emit(otel.Event{Kind: otel.KindShutdown, Level: otel.LevelInfo, Comp: "main"})
		a.events.Close()
		a.events = nil
	}
	logging.Close()
}

// needsStore reports whether cmd touches the database.
func needsStore(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "events", "check", "config", "show", "init":
		return false
	}
	return true
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
