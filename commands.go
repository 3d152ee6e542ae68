package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leafo/shelf/internal/action"
	"github.com/leafo/shelf/internal/batchfile"
	"github.com/leafo/shelf/internal/journal"
	"github.com/leafo/shelf/internal/shelf"
	"github.com/leafo/shelf/internal/sink"
	"github.com/leafo/shelf/internal/store"
	"github.com/leafo/shelf/internal/watch"
)

const defaultConfigFile = "shelf.yaml"

type globalFlags struct {
	configFile string
	root       string
	journal    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "shelf",
		Short: "Plan and dispatch batches of vault changes",
		Long: `Shelf turns batches of folder, file and note changes into a safe,
dependency ordered sequence and applies it to a vault directory:
  Collapse → Ensure → Order → Dispatch

Changes made by shelf itself are filtered out of watch mode, so only
edits coming from elsewhere are reported.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file (default: "+defaultConfigFile+" when present)")
	root.PersistentFlags().StringVar(&flags.root, "root", "", "vault root directory (overrides config)")
	root.PersistentFlags().StringVar(&flags.journal, "journal", "", "SQLite journal path (overrides config)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(newPlanCmd(flags))
	root.AddCommand(newApplyCmd(flags))
	root.AddCommand(newWatchCmd(flags))
	root.AddCommand(newHistoryCmd(flags))
	return root
}

func newPlanCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plan BATCH_FILE",
		Short: "Show the ordered actions a batch file would dispatch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd, flags, false)
			if err != nil {
				return err
			}
			defer env.Close()

			batch, err := batchfile.Load(args[0])
			if err != nil {
				return err
			}
			planned, err := env.shelf.Plan(cmd.Context(), batch)
			if err != nil {
				return err
			}
			printActions(cmd.OutOrStdout(), planned)
			return nil
		},
	}
}

func newApplyCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "apply BATCH_FILE",
		Short: "Plan and dispatch a batch file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd, flags, true)
			if err != nil {
				return err
			}
			defer env.Close()

			batch, err := batchfile.Load(args[0])
			if err != nil {
				return err
			}
			result, err := env.shelf.Apply(cmd.Context(), batch)
			out := cmd.OutOrStdout()
			if result.BatchID != "" {
				fmt.Fprintf(out, "batch %s\n", result.BatchID)
			}
			fmt.Fprintf(out, "applied %d of %d actions\n", result.Applied, len(result.Planned))
			var dispatchErr *store.DispatchError
			if errors.As(err, &dispatchErr) {
				fmt.Fprintln(out, "not applied:")
				printActions(out, dispatchErr.Remaining())
			}
			return err
		},
	}
}

func newWatchCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Report external changes to the vault and keep sinks up to date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := setup(cmd, flags, true)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err = env.shelf.Watch(ctx, watch.HandlerFunc(func(_ context.Context, events []store.Event) error {
				for _, ev := range events {
					env.logger.Info("External change", "op", ev.Op, "path", ev.Path)
				}
				return nil
			}))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [BATCH_ID]",
		Short: "List journaled batches, or the actions of one batch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd, flags, false)
			if err != nil {
				return err
			}
			defer env.Close()
			if env.journal == nil {
				return errors.New("no journal configured, set journal in the config or pass --journal")
			}

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				records, err := env.journal.Actions(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				for _, r := range records {
					status := "ok"
					if r.Error != "" {
						status = "failed: " + r.Error
					}
					fmt.Fprintf(out, "%3d  %s  [%s]\n", r.Seq+1, r.Description, status)
				}
				return nil
			}

			batches, err := env.journal.Batches(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, b := range batches {
				fmt.Fprintf(out, "%s  %s  %-8s %d/%d\n", b.ID, b.StartedAt.Local().Format(time.DateTime), b.Status, b.Applied, b.Planned)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of batches to list (0 for all)")
	return cmd
}

type environment struct {
	logger  *slog.Logger
	config  shelf.Config
	shelf   *shelf.Shelf
	journal *journal.Journal
}

func (e *environment) Close() {
	if e.journal != nil {
		e.journal.Close()
	}
}

// setup loads configuration and builds the shelf. Sinks are only connected
// for commands that dispatch or watch.
func setup(cmd *cobra.Command, flags *globalFlags, withSinks bool) (*environment, error) {
	logger, err := newLogger(cmd.ErrOrStderr(), flags.logLevel)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", cfg.Root, err)
	}
	cfg.Root = absRoot

	disk, err := store.NewDisk(cfg.Root, store.DiskOptions{TrashDir: cfg.TrashDir})
	if err != nil {
		return nil, err
	}

	opts := cfg.Options()
	s := shelf.New(disk, opts, logger)
	env := &environment{logger: logger, config: cfg, shelf: s}

	if cfg.Journal != "" {
		j, err := journal.Open(cmd.Context(), cfg.Journal)
		if err != nil {
			return nil, err
		}
		env.journal = j
		s.SetJournal(j)
		logger.Debug("Opened journal", "path", cfg.Journal)
	}

	if withSinks {
		target, err := sink.NewMeilisearch(cmd.Context(), cfg.Meilisearch, cfg.ChunkOptions(), logger)
		if err != nil {
			logger.Warn("Failed to initialize Meilisearch", "error", err)
		}
		s.RegisterTarget(target)
		s.RegisterTarget(sink.NewShell(cfg.Shell))
	}

	return env, nil
}

func loadConfig(flags *globalFlags) (shelf.Config, error) {
	cfg := shelf.DefaultConfig()
	path := flags.configFile
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	if path != "" {
		loaded, err := shelf.LoadConfig(path)
		if err != nil {
			return shelf.Config{}, err
		}
		cfg = loaded
	}
	if flags.root != "" {
		cfg.Root = flags.root
	}
	if flags.journal != "" {
		cfg.Journal = flags.journal
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func printActions(w io.Writer, actions []action.Action) {
	for i, a := range actions {
		fmt.Fprintf(w, "%3d  %s\n", i+1, a)
	}
}
