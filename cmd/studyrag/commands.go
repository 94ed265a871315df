package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kart-io/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"studyrag/internal/app"
	"studyrag/internal/config"
	"studyrag/internal/server"
	"studyrag/internal/tui"
)

const commandDesc = `studyrag answers questions about uploaded course material.

It chunks and embeds documents into an in-memory index, retrieves the most
relevant excerpts per question, and asks a language model to chat, write a
quiz, give a hint or give a full answer grounded in them.`

type globalOptions struct {
	configPath string
	logLevel   string
}

func (o *globalOptions) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", "", "Path to YAML config file (defaults to ./config.yaml or ~/.config/studyrag/config.yaml)")
	fs.StringVar(&o.logLevel, "log-level", "", "Override the configured log level (DEBUG|INFO|WARN|ERROR)")
}

// load reads the config and initializes the global logger.
func (o *globalOptions) load() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if o.configPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(o.configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := app.InitLogger(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:          app.Name,
		Short:        "Retrieval-augmented study assistant",
		Long:         commandDesc,
		SilenceUsage: true,
	}
	opts.addFlags(cmd.PersistentFlags())
	cmd.AddCommand(
		newServeCommand(opts),
		newChatCommand(opts),
		newIngestCommand(opts),
		newCacheCommand(opts),
	)
	return cmd
}

// setupSignalContext returns a context that is cancelled on SIGINT or SIGTERM.
func setupSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newServeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Flush() }()

			ctx, cancel := setupSignalContext()
			defer cancel()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.New(a.Orchestrator, a.Ingestor, server.Options{
				Addr:            cfg.Server.Addr,
				Mode:            cfg.Server.Mode,
				RequestTimeout:  config.Seconds(cfg.Server.RequestTimeoutSecs),
				ShutdownTimeout: config.Seconds(cfg.Server.ShutdownTimeoutSecs),
				MaxUploadBytes:  cfg.Ingest.MaxBytes,
			})
			runErr := srv.Run(ctx)
			return errors.Join(runErr, a.SaveSnapshot())
		},
	}
}

func newChatCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat file [file...]",
		Short: "Ingest files and open the interactive study console",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Flush() }()

			ctx, cancel := setupSignalContext()
			defer cancel()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			docs, err := a.Ingestor.IngestPaths(ctx, args)
			if err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}
			ids := make([]string, len(docs))
			summaries := make([]string, 0, len(docs))
			for i, d := range docs {
				ids[i] = d.ID
				if d.Summary != "" {
					summaries = append(summaries, d.Summary)
				}
			}

			m := tui.New(a.Orchestrator, ids, strings.Join(summaries, " "), config.Seconds(cfg.Server.RequestTimeoutSecs))
			if _, err := tea.NewProgram(m, tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			return a.SaveSnapshot()
		},
	}
}

func newIngestCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest file [file...]",
		Short: "Ingest files and print what was indexed",
		Long:  "Ingest files and print what was indexed. With index.snapshot_path set, the index is saved for later serve or chat runs.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Flush() }()

			ctx, cancel := setupSignalContext()
			defer cancel()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			docs, err := a.Ingestor.IngestPaths(ctx, args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range docs {
				fmt.Fprintf(out, "%s  %s  pages=%d chunks=%d\n", d.ID, d.Name, d.Pages, d.Chunks)
				if d.Summary != "" {
					fmt.Fprintf(out, "    %s\n", d.Summary)
				}
			}
			return a.SaveSnapshot()
		},
	}
}

func newCacheCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the Redis embedding cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every cached embedding under the configured key prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Flush() }()
			if !cfg.Cache.Enabled {
				return errors.New("cache is not enabled in the config")
			}

			ctx, cancel := setupSignalContext()
			defer cancel()
			rdb, cache, err := app.ConnectCache(ctx, cfg.Cache)
			if err != nil {
				return err
			}
			defer rdb.Close()
			n, err := cache.Clear(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d cached embeddings\n", n)
			return nil
		},
	})
	return cmd
}
