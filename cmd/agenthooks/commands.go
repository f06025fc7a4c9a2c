package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"agenthooks/internal/config"
	"agenthooks/internal/format"
	"agenthooks/internal/lifecycle"
	"agenthooks/internal/logging"
	"agenthooks/internal/startctx"
	"agenthooks/internal/store"
	"agenthooks/internal/view"

	"github.com/spf13/cobra"
)

// loadProject resolves the project directory and its config for the
// inspection commands. Logs go to the command's stderr.
func loadProject(cmd *cobra.Command) (string, *config.Config, error) {
	projectDir := config.ResolveProjectDir(projectDirFlag, "")
	cfg, err := config.Load(projectDir)
	if err != nil {
		return "", nil, err
	}
	if cfg.ProjectDir != "" && projectDirFlag == "" {
		projectDir = cfg.ProjectDir
	}
	if err := logging.Init(logging.Config{
		Level:   logging.ParseLevel(cfg.Log.Level),
		Version: version,
		Output:  cmd.ErrOrStderr(),
	}); err != nil {
		return "", nil, err
	}
	return projectDir, cfg, nil
}

func newListCmd() *cobra.Command {
	var (
		cwd          string
		sessionID    string
		subagents    bool
		afterStr     string
		beforeStr    string
		limit        int
		formatFlag   string
		noHeader     bool
		summaryWidth int
		logDir       string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the project's transcripts in reverse chronological order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			projectDir, _, err := loadProject(cmd)
			if err != nil {
				return err
			}
			if logDir == "" {
				logDir, err = store.ProjectLogDir(projectDir)
				if err != nil {
					return err
				}
			}

			after, err := parseTimeFlag("after", afterStr)
			if err != nil {
				return err
			}
			before, err := parseTimeFlag("before", beforeStr)
			if err != nil {
				return err
			}

			result, err := store.ListTranscripts(store.ListOptions{
				Root:       logDir,
				CWD:        cwd,
				ExactCWD:   cwd != "",
				SessionID:  sessionID,
				Subagents:  subagents,
				After:      after,
				Before:     before,
				Limit:      limit,
				MaxSummary: summaryWidth,
			})
			if err != nil {
				return err
			}

			for _, warn := range result.Warnings {
				logging.Warn("skipped transcript", "error", warn)
			}

			return format.WriteTranscripts(cmd.OutOrStdout(), result.Summaries, !noHeader, strings.ToLower(formatFlag))
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cwd, "cwd", "", "only transcripts whose cwd equals the provided path")
	flags.StringVar(&sessionID, "session", "", "only transcripts of the given session id")
	flags.BoolVar(&subagents, "subagents", false, "include subagent transcripts (agent-<id>.jsonl)")
	flags.StringVar(&afterStr, "after", "", "include transcripts starting on/after the given RFC3339 timestamp")
	flags.StringVar(&beforeStr, "before", "", "include transcripts starting on/before the given RFC3339 timestamp")
	flags.IntVar(&limit, "limit", 0, "limit number of transcripts returned (0 means no limit)")
	flags.StringVar(&formatFlag, "format", "table", "output format: table, plain, json, or jsonl")
	flags.BoolVar(&noHeader, "no-header", false, "omit header row for table and plain output")
	flags.IntVar(&summaryWidth, "summary-width", 160, "maximum characters included in the summary column")
	flags.StringVar(&logDir, "log-dir", "", "override the project log directory (default: ~/.claude/projects/<encoded project dir>)")

	return cmd
}

func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s value: %w", name, err)
	}
	return &t, nil
}

func newInfoCmd() *cobra.Command {
	var formatFlag string

	cmd := &cobra.Command{
		Use:   "info <agent-transcript>",
		Short: "Show how a subagent transcript correlates, without consuming its start context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir, cfg, err := loadProject(cmd)
			if err != nil {
				return err
			}
			logging.Debug("inspecting subagent transcript", "path", args[0], "project_dir", projectDir)
			c := newCoordinator(projectDir, cfg, logging.Default().Logger)
			res, err := c.Inspect(args[0])
			if err != nil {
				if errors.Is(err, lifecycle.ErrInvalidTranscriptKind) {
					return fmt.Errorf("%w (expected agent-<id>.jsonl)", err)
				}
				return err
			}
			return format.WriteResult(cmd.OutOrStdout(), res, formatFlag)
		},
	}

	cmd.Flags().StringVar(&formatFlag, "format", "text", "output format: text or json")
	return cmd
}

func newContextsCmd() *cobra.Command {
	var (
		formatFlag string
		noHeader   bool
		prune      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "contexts",
		Short: "List start contexts of subagents that have not stopped yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			projectDir, cfg, err := loadProject(cmd)
			if err != nil {
				return err
			}
			st := startctx.New(cfg.StorePath(projectDir), startctx.WithLockTimeout(cfg.Store.LockTimeout), startctx.WithTTL(cfg.Store.TTL))

			if prune > 0 {
				n, err := st.Prune(commandContext(cmd), prune)
				if err != nil {
					return err
				}
				logging.Info("pruned start contexts", "count", n, "store", st.Path())
				fmt.Fprintf(cmd.ErrOrStderr(), "pruned %d start context(s)\n", n)
			}

			return format.WriteContexts(cmd.OutOrStdout(), st.All(), !noHeader, strings.ToLower(formatFlag))
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&formatFlag, "format", "table", "output format: table, plain, json, or jsonl")
	flags.BoolVar(&noHeader, "no-header", false, "omit header row for table and plain output")
	flags.DurationVar(&prune, "prune", 0, "first remove contexts older than the given age (e.g. 2h)")
	return cmd
}

func newViewCmd() *cobra.Command {
	var (
		kindArg      string
		toolsOnly    bool
		raw          bool
		wrap         int
		maxEvents    int
		formatFlag   string
		forceColor   bool
		forceNoColor bool
		pager        bool
	)

	cmd := &cobra.Command{
		Use:   "view <transcript>",
		Short: "Render a transcript record by record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if forceColor && forceNoColor {
				return errors.New("--color and --no-color cannot be used together")
			}

			opts := view.Options{
				Path:         args[0],
				Format:       formatFlag,
				Wrap:         wrap,
				MaxEvents:    maxEvents,
				KindArg:      kindArg,
				ToolsOnly:    toolsOnly,
				ForceColor:   forceColor,
				ForceNoColor: forceNoColor,
				Pager:        pager,
				RawFile:      raw,
				Out:          cmd.OutOrStdout(),
			}
			if f, ok := cmd.OutOrStdout().(*os.File); ok {
				opts.OutFile = f
			}
			return view.Run(opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&kindArg, "kind", "", "comma separated record kinds: user, assistant, system, or all")
	flags.BoolVar(&toolsOnly, "tools", false, "only records with tool invocations or results")
	flags.BoolVar(&raw, "raw", false, "print the file as-is")
	flags.IntVar(&wrap, "wrap", 0, "wrap text at the given width (0 disables wrapping)")
	flags.IntVar(&maxEvents, "max", 0, "only the last N matching records (0 means all)")
	flags.StringVar(&formatFlag, "format", "text", "output format: text or raw")
	flags.BoolVar(&forceColor, "color", false, "force colored output")
	flags.BoolVar(&forceNoColor, "no-color", false, "disable colored output")
	flags.BoolVar(&pager, "pager", false, "page output through $PAGER when writing to a terminal")
	return cmd
}
