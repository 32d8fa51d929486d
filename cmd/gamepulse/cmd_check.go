package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/abelbrown/gamepulse/internal/bsky"
	"github.com/abelbrown/gamepulse/internal/classify"
	"github.com/abelbrown/gamepulse/internal/config"
	"github.com/abelbrown/gamepulse/internal/logging"
)

func newCheckCmd(a *app) *cobra.Command {
	var pull, skipBluesky bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the Ollama endpoint, the model and Bluesky login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			o := classify.NewOllamaProvider(classify.OllamaOptions{
				Endpoint:    a.cfg.Ollama.Endpoint,
				Model:       a.cfg.Ollama.Model,
				Temperature: a.cfg.Ollama.Temperature,
				Timeout:     a.cfg.OllamaTimeout(),
			})

			models, err := o.ListModels(ctx)
			if err != nil {
				return fmt.Errorf("ollama at %s: %w", a.cfg.Ollama.Endpoint, err)
			}
			fmt.Fprintf(out, "ollama %s: %d models installed\n", a.cfg.Ollama.Endpoint, len(models))
			for _, m := range models {
				fmt.Fprintf(out, "  %-30s %8s  %s\n", m.Name, humanize.Bytes(uint64(m.Size)), humanize.Time(m.ModifiedAt))
			}

			if !o.Available(ctx) {
				if !pull {
					return fmt.Errorf("model %q is not installed (use --pull)", o.Model())
				}
				fmt.Fprintf(out, "pulling %s...\n", o.Model())
				last := ""
				err := o.Pull(ctx, func(p classify.PullProgress) {
					line := p.Status
					if p.Total > 0 {
						line = fmt.Sprintf("%s %s/%s", p.Status, humanize.Bytes(uint64(p.Completed)), humanize.Bytes(uint64(p.Total)))
					}
					if p.Status != last {
						fmt.Fprintln(out, "  "+line)
						last = p.Status
					}
				})
				if err != nil {
					return err
				}
			}

			start := time.Now()
			resp, err := o.Ping(ctx)
			if err != nil {
				return fmt.Errorf("model %s did not answer: %w", o.Model(), err)
			}
			fmt.Fprintf(out, "model %s answered %q in %s\n", o.Model(), strings.TrimSpace(resp.Content), time.Since(start).Round(time.Millisecond))

			if skipBluesky || a.cfg.Bluesky.Handle == "" || a.cfg.Bluesky.AppPassword == "" {
				fmt.Fprintln(out, "bluesky: anonymous search via", a.cfg.Bluesky.BaseURL)
				return nil
			}
			client := bsky.NewClient(bsky.Options{
				BaseURL: a.cfg.Bluesky.BaseURL,
				PDSURL:  a.cfg.Bluesky.PDSURL,
				Timeout: a.cfg.BlueskyTimeout(),
			})
			if err := client.Login(ctx, a.cfg.Bluesky.Handle, a.cfg.Bluesky.AppPassword); err != nil {
				return fmt.Errorf("bluesky login: %w", err)
			}
			logging.Info("bluesky login ok", "handle", client.Handle())
			fmt.Fprintln(out, "bluesky: logged in as", client.Handle())
			return nil
		},
	}
	cmd.Flags().BoolVar(&pull, "pull", false, "Pull the model when it is missing")
	cmd.Flags().BoolVar(&skipBluesky, "skip-bluesky", false, "Do not test the Bluesky login")
	return cmd
}

func newConfigCmd(a *app, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			shown := *a.cfg
			if shown.Bluesky.AppPassword != "" {
				shown.Bluesky.AppPassword = "********"
			}
			data, err := yaml.Marshal(&shown)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" {
				path = config.ConfigPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := config.DefaultConfig().Save(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Wrote", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
